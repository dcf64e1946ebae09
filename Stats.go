// Stats: diagnostics output, grounded on db.cpp/dict.cpp's PrintStats --
// one key/value pair per line, covering the header counters a CLI "show"
// command would consume.
package mabain

import (
	"fmt"
	"io"
)

// PrintStats writes a human-readable dump of the database's header
// counters and segment high-water marks to out.
func (db *DB) PrintStats(out io.Writer) error {
	if err := db.checkOpen(); err != nil {
		return err
	}

	h := db.header
	lines := []struct {
		label string
		value uint64
	}{
		{"Entry count in DB", h.loadU64(hdrCount)},
		{"Number of DB writer", uint64(h.loadU32(hdrNumWriter))},
		{"Number of DB reader", uint64(h.loadU32(hdrNumReader))},
		{"Index segment high water", h.loadU64(hdrMIndexOffset)},
		{"Data segment high water", h.loadU64(hdrMDataOffset)},
		{"Pending index bytes", h.loadU64(hdrPendingIndexBytes)},
		{"Pending data bytes", h.loadU64(hdrPendingDataBytes)},
		{"Resource collection count", h.loadU64(hdrRCCount)},
		{"Resource collection in progress", h.loadU64(hdrRCFlag)},
		{"Entry per bucket", h.loadU64(hdrEntryPerBucket)},
		{"Eviction bucket index", h.loadU64(hdrEvictionBucket)},
	}

	if _, err := fmt.Fprintln(out, "DB stats:"); err != nil {
		return newErr("PrintStats", KindWriteError, err)
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(out, "\t%s: %d\n", l.label, l.value); err != nil {
			return newErr("PrintStats", KindWriteError, err)
		}
	}
	return nil
}
