// Resource collector (§4.9): reclaims the index and data segment space
// left behind by COW node growth, edge splitting, overwrite, and Remove.
// Those paths never overwrite old bytes in place; they hand them to the
// allocator (a size-class free list, or the arena's pending counter), and
// the segments themselves never shrink until a collection rebuilds them.
//
// It runs as two phases:
//   - Reorder: walk the live trie and rebuild it, compacted, into a brand
//     new pair of index/data segments. The new segments are private until
//     Phase 2 publishes them, so this phase writes through dictMem.silent
//     rather than the lock-free publish protocol -- there is no reader to
//     protect yet.
//   - Collect: atomically swap the DB's live segments for the rebuilt
//     ones and retire the old segments. Any reader already mid-traversal
//     through the old segment keeps a valid (if stale) view of it, since
//     the old block files stay mapped until that reader's DB handle is
//     closed; only *new* lookups see the compacted trie.
package mabain

import (
	"fmt"
	"time"
)

type resourceCollector struct {
	db *DB
}

func newResourceCollector(db *DB) *resourceCollector {
	return &resourceCollector{db: db}
}

// rcSegmentPrefix disambiguates each rc run's private block files so a
// crash mid-collection never collides with the next run's files.
func rcSegmentPrefix(base string, gen uint64) string {
	return fmt.Sprintf("%s_rc%d", base, gen)
}

// Collect performs one full resource-collection pass. It must only be
// called from the writer goroutine.
func (rc *resourceCollector) Collect() error {
	db := rc.db
	if !db.isWriter {
		return newErr("Collect", KindNotAllowed, ErrNotAllowed)
	}

	gen := db.header.addU64(hdrRCCount, 1)

	root, err := db.search.root()
	if err != nil {
		return err
	}
	var live []KeyValue
	if err := db.search.collect(root, nil, &live); err != nil {
		return err
	}

	newIndex, err := openBlockPool(db.opts.Dir, rcSegmentPrefix("_mabain_i", gen), db.opts.IndexBlockSize, db.opts.MaxIndexBlocks, true)
	if err != nil {
		return err
	}
	newData, err := openBlockPool(db.opts.Dir, rcSegmentPrefix("_mabain_d", gen), db.opts.DataBlockSize, db.opts.MaxDataBlocks, true)
	if err != nil {
		newIndex.close()
		return err
	}

	// The rebuilt segments are private until the swap below, so they bump
	// their own in-memory high-water marks instead of the header's live
	// hdrMIndexOffset/hdrMDataOffset -- those still belong to the old,
	// still-readable segment until Phase 2 publishes the new ones.
	newIndexAlloc := &privateBumpAllocator{}
	newDataAlloc := &privateBumpAllocator{}
	newDM := newDictMem(newIndex, newIndexAlloc, db.header)
	newDM.silent = true
	if err := newDM.initRoot(); err != nil {
		newIndex.close()
		newData.close()
		return err
	}
	newDict := newDict(newDM, newData, newDataAlloc, db.header)

	for _, kv := range live {
		if err := newDict.Add(kv.Key, kv.Value, true); err != nil {
			newIndex.close()
			newData.close()
			return err
		}
	}

	// Phase 2: Collect. Record the rc-root and raise hdrRCFlag for the
	// duration of the swap (PrintStats reports the flag; no read path
	// consults either field), then cut the DB handle over and retire the
	// old segments.
	db.header.storeU64(hdrRCRootOffset, indexRootOffset)
	db.header.storeU64(hdrRCFlag, 1)

	db.header.storeU64(hdrMIndexOffset, newIndexAlloc.current())
	db.header.storeU64(hdrMDataOffset, newDataAlloc.current())
	db.header.storeU64(hdrPendingIndexBytes, 0)
	db.header.storeU64(hdrPendingDataBytes, 0)

	realIndexAlloc, realDataAlloc := makeAllocators(db.opts, newIndex, newData, db.header)
	newDM.alloc = realIndexAlloc
	newDM.silent = false
	newDict.dataAlloc = realDataAlloc

	oldIndex, oldData := db.index, db.data
	db.index = newIndex
	db.data = newData
	db.dictMem = newDM
	db.dict = newDict
	db.search = newSearchEngine(db.dictMem, db.dict, db.header)

	// Invalidate any outstanding reader snapshot against the old segment's
	// offsets: a fresh generation makes stale deltas look arbitrarily large,
	// which verifyRead already treats as verifyTryAgain.
	for i := 0; i < lfRingSize; i++ {
		db.header.addU32Counter()
	}

	db.header.storeU64(hdrRCFlag, 0)
	db.header.storeU64(hdrRCRootOffset, sentinelOffset)

	_ = oldIndex.close()
	_ = oldData.close()

	return nil
}

// scheduleCollect is the async entry point the command-queue consumer
// calls for a CMD_RC slot; it just runs Collect synchronously since the
// writer goroutine is itself the single consumer.
func (rc *resourceCollector) scheduleCollect() error {
	start := time.Now()
	err := rc.Collect()
	_ = start // hook point for future duration metrics
	return err
}
