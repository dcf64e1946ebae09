// Allocator (§4.2): two interchangeable strategies layered over a
// blockPool. Free-list mode buckets freed offsets by a size class rounded
// to an alignment; arena mode is a pure bump allocator whose "dalloc" is a
// no-op until the next resource collection. The mode is chosen at DB
// creation and stamped in the header so a reopen cannot silently switch
// modes (§4.2: "cannot be mixed... for the same DB").
package mabain

import (
	"sync"
)

// allocator is the interface DictMem and Dict program against, per the
// design note in §9 ("model the two allocator strategies as an interface").
type allocator interface {
	Reserve(size int) (uint64, error)
	Release(offset uint64, size int) error
	PendingBytes() uint64
}

// freeListAllocator buckets freed offsets by size class (size rounded up to
// alignment). Popping an exact-class offset is O(1); bumping the segment
// high-water is an atomic add on the header field.
type freeListAllocator struct {
	mu        sync.Mutex
	pool      *blockPool
	header    *headerFile
	highWater int // hdrMIndexOffset or hdrMDataOffset
	pending   int // hdrPendingIndexBytes or hdrPendingDataBytes
	alignment int
	classes   map[int][]uint64
}

func newFreeListAllocator(pool *blockPool, header *headerFile, highWaterField, pendingField, alignment int) *freeListAllocator {
	if alignment < 1 {
		alignment = 1
	}
	return &freeListAllocator{
		pool:      pool,
		header:    header,
		highWater: highWaterField,
		pending:   pendingField,
		alignment: alignment,
		classes:   make(map[int][]uint64),
	}
}

func (a *freeListAllocator) roundUp(size int) int {
	if a.alignment <= 1 {
		return size
	}
	rem := size % a.alignment
	if rem == 0 {
		return size
	}
	// The alignment slack produced here is never separately tracked as a
	// free node of its own class; it is absorbed into this allocation.
	// Release rounds the size the same way, so a freed block goes back to
	// the class it was reserved from.
	return size + (a.alignment - rem)
}

func (a *freeListAllocator) Reserve(size int) (uint64, error) {
	class := a.roundUp(size)

	a.mu.Lock()
	if free := a.classes[class]; len(free) > 0 {
		offset := free[len(free)-1]
		a.classes[class] = free[:len(free)-1]
		a.mu.Unlock()
		a.header.addU64(a.pending, -int64(class))
		return offset, nil
	}
	a.mu.Unlock()

	offset := a.header.addU64(a.highWater, int64(class)) - uint64(class)
	return offset, nil
}

func (a *freeListAllocator) Release(offset uint64, size int) error {
	class := a.roundUp(size)
	a.mu.Lock()
	a.classes[class] = append(a.classes[class], offset)
	a.mu.Unlock()
	a.header.addU64(a.pending, int64(class))
	return nil
}

func (a *freeListAllocator) PendingBytes() uint64 {
	return a.header.loadU64(a.pending)
}

// arenaAllocator is a bump allocator over the blockPool's high-water mark.
// Release is a no-op: the segment is append-only until the resource
// collector runs, matching §4.2's arena mode shape. purge advises the OS to
// drop the segment's mapped pages via madvise(MADV_DONTNEED); no code in
// this package calls it.
type arenaAllocator struct {
	pool      *blockPool
	header    *headerFile
	highWater int
	pending   int
}

func newArenaAllocator(pool *blockPool, header *headerFile, highWaterField, pendingField int) *arenaAllocator {
	return &arenaAllocator{pool: pool, header: header, highWater: highWaterField, pending: pendingField}
}

func (a *arenaAllocator) Reserve(size int) (uint64, error) {
	offset := a.header.addU64(a.highWater, int64(size)) - uint64(size)
	return offset, nil
}

func (a *arenaAllocator) Release(offset uint64, size int) error {
	a.header.addU64(a.pending, int64(size))
	return nil
}

func (a *arenaAllocator) PendingBytes() uint64 {
	return a.header.loadU64(a.pending)
}

func (a *arenaAllocator) purge() error {
	a.pool.mu.RLock()
	defer a.pool.mu.RUnlock()
	for _, b := range a.pool.blocks {
		if b == nil {
			continue
		}
		if err := madviseDontNeed(b.data); err != nil {
			return err
		}
	}
	return nil
}

// privateBumpAllocator is a bump allocator with its own in-memory
// high-water mark, untied to the header. The resource collector uses one
// per rebuilt segment while that segment is still private (pre-swap); the
// final high-water is copied into the header's real field once the
// segment is published.
type privateBumpAllocator struct {
	mu        sync.Mutex
	highWater uint64
}

func (a *privateBumpAllocator) Reserve(size int) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	offset := a.highWater
	a.highWater += uint64(size)
	return offset, nil
}

func (a *privateBumpAllocator) Release(offset uint64, size int) error { return nil }
func (a *privateBumpAllocator) PendingBytes() uint64                 { return 0 }

func (a *privateBumpAllocator) current() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.highWater
}

// makeAllocators builds the index/data allocator pair for a segment
// according to Options.UseArenaAllocator, sharing the header's high-water
// and pending-bytes fields the rest of the DB already agrees on.
func makeAllocators(opts Options, index, data *blockPool, header *headerFile) (allocator, allocator) {
	if opts.UseArenaAllocator {
		return newArenaAllocator(index, header, hdrMIndexOffset, hdrPendingIndexBytes),
			newArenaAllocator(data, header, hdrMDataOffset, hdrPendingDataBytes)
	}
	return newFreeListAllocator(index, header, hdrMIndexOffset, hdrPendingIndexBytes, 8),
		newFreeListAllocator(data, header, hdrMDataOffset, hdrPendingDataBytes, 1)
}
