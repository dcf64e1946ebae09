package mabain

import (
	"errors"
	"testing"
)

func TestCheckVersionRejectsMismatch(t *testing.T) {
	dir := t.TempDir()
	h, _, err := openHeaderFile(dir, true)
	if err != nil {
		t.Fatalf("openHeaderFile: %v", err)
	}
	h.initialize(false)
	h.setVersion([4]uint16{99, 0, 0, 0})
	h.close()

	db, err := Open(Options{Dir: dir, Writer: false})
	if err == nil {
		db.Close()
		t.Fatalf("Open with mismatched version: got nil error, want failure")
	}
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("Open with mismatched version: got %v, want ErrVersionMismatch", err)
	}
}

func TestOpenReaderWithoutExistingDBFails(t *testing.T) {
	_, err := Open(Options{Dir: t.TempDir(), Writer: false})
	if !errors.Is(err, ErrNoDB) {
		t.Fatalf("Open reader on empty dir: got %v, want ErrNoDB", err)
	}
}

func TestHeaderAddU64RoundTrip(t *testing.T) {
	h := newTestHeader(t, false)
	h.addU64(hdrCount, 5)
	h.addU64(hdrCount, -2)
	if got := h.loadU64(hdrCount); got != 3 {
		t.Fatalf("hdrCount: got %d, want 3", got)
	}
}
