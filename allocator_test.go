package mabain

import "testing"

func newTestHeader(t *testing.T, useArena bool) *headerFile {
	t.Helper()
	h, _, err := openHeaderFile(t.TempDir(), true)
	if err != nil {
		t.Fatalf("openHeaderFile: %v", err)
	}
	h.initialize(useArena)
	t.Cleanup(func() { h.close() })
	return h
}

func newTestPool(t *testing.T, prefix string) *blockPool {
	t.Helper()
	bp, err := openBlockPool(t.TempDir(), prefix, DefaultBlockSize, 0, true)
	if err != nil {
		t.Fatalf("openBlockPool: %v", err)
	}
	t.Cleanup(func() { bp.close() })
	return bp
}

func TestFreeListAllocatorReserveAdvancesHighWater(t *testing.T) {
	h := newTestHeader(t, false)
	pool := newTestPool(t, "_mabain_d")
	a := newFreeListAllocator(pool, h, hdrMDataOffset, hdrPendingDataBytes, 1)

	off1, err := a.Reserve(32)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	off2, err := a.Reserve(32)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if off2 <= off1 {
		t.Fatalf("Reserve: second offset %d did not advance past first %d", off2, off1)
	}
}

func TestFreeListAllocatorReleaseReusesSpace(t *testing.T) {
	h := newTestHeader(t, false)
	pool := newTestPool(t, "_mabain_d")
	a := newFreeListAllocator(pool, h, hdrMDataOffset, hdrPendingDataBytes, 1)

	off, err := a.Reserve(64)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	before := h.loadU64(hdrMDataOffset)
	if err := a.Release(off, 64); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := a.PendingBytes(); got != 64 {
		t.Fatalf("PendingBytes after Release: got %d, want 64", got)
	}

	reused, err := a.Reserve(64)
	if err != nil {
		t.Fatalf("Reserve after Release: %v", err)
	}
	if reused != off {
		t.Fatalf("Reserve after Release: got offset %d, want reused offset %d", reused, off)
	}
	if after := h.loadU64(hdrMDataOffset); after != before {
		t.Fatalf("high water moved on a reused Reserve: before=%d after=%d", before, after)
	}
}

func TestArenaAllocatorNeverReleases(t *testing.T) {
	h := newTestHeader(t, true)
	pool := newTestPool(t, "_mabain_d")
	a := newArenaAllocator(pool, h, hdrMDataOffset, hdrPendingDataBytes)

	off1, err := a.Reserve(16)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := a.Release(off1, 16); err != nil {
		t.Fatalf("Release: %v", err)
	}
	off2, err := a.Reserve(16)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if off2 == off1 {
		t.Fatalf("arena allocator reused a released offset: %d", off2)
	}
}

func TestPrivateBumpAllocatorIndependentOfHeader(t *testing.T) {
	a := &privateBumpAllocator{}
	off1, err := a.Reserve(10)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	off2, err := a.Reserve(10)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if off2 != off1+10 {
		t.Fatalf("Reserve: got %d, want %d", off2, off1+10)
	}
	if a.current() != off2+10 {
		t.Fatalf("current: got %d, want %d", a.current(), off2+10)
	}
}
