package mabain

import (
	"bytes"
	"crypto/rand"
	mrand "math/rand"
	"testing"
)

// randomBytes returns length random lowercase-ASCII bytes, matching the
// teacher's habit of keeping test keys printable for easy debugging.
func randomBytes(t *testing.T, length int) []byte {
	t.Helper()
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		t.Fatalf("randomBytes: %v", err)
	}
	for i := range buf {
		buf[i] = 'a' + (buf[i] % 26)
	}
	return buf
}

func isSorted(kvs []KeyValue) bool {
	for i := 1; i < len(kvs); i++ {
		if bytes.Compare(kvs[i-1].Key, kvs[i].Key) > 0 {
			return false
		}
	}
	return true
}

// openWriter opens a fresh writer DB rooted at t.TempDir(), closing it on
// test cleanup.
func openWriter(t *testing.T, opts Options) *DB {
	t.Helper()
	opts.Dir = t.TempDir()
	opts.Writer = true
	db, err := Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func shuffledIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	mrand.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	return idx
}
