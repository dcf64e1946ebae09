// Lock-free reader/writer coordinator (§4.6): a small ring of recently
// mutated offsets lets readers detect, without locking, whether the single
// writer is concurrently touching the exact edge they are about to read.
package mabain

// lfRingSize mirrors hdrLFRingSize; kept distinct so the protocol reads as
// self-contained here even though both reference the same header layout.
const lfRingSize = hdrLFRingSize

// readerSnapshot is taken before a reader touches mapped memory.
type readerSnapshot struct {
	counter uint32
	offset  uint64
}

func (h *headerFile) readerBegin() readerSnapshot {
	return readerSnapshot{
		counter: h.loadU32(hdrLFCounter),
		offset:  h.loadU64(hdrLFOffset),
	}
}

type verifyOutcome int

const (
	verifyOK verifyOutcome = iota
	verifyTryAgain
	verifyUseSaved
)

// verifyRead implements §4.6's reader protocol steps 3-6. edgeOff is the
// offset the reader just read bytes from.
func (h *headerFile) verifyRead(snap readerSnapshot, edgeOff uint64) verifyOutcome {
	offset := h.loadU64(hdrLFOffset)
	counter := h.loadU32(hdrLFCounter)

	if offset == edgeOff {
		// Writer is mid-mutation on exactly this edge. The first time a
		// reader observes this it must fall back to the exception buffer
		// and retry; treating the buffer as authoritative without a retry
		// would race the writer's own exception-slot bookkeeping.
		return verifyUseSaved
	}

	delta := counter - snap.counter
	switch {
	case delta == 0:
		return verifyOK
	case delta >= lfRingSize:
		return verifyTryAgain
	}

	for i := uint32(0); i < delta; i++ {
		slot := (counter - 1 - i) % lfRingSize
		if h.loadU64(hdrLFRingBase+int(slot)*8) == edgeOff {
			return verifyTryAgain
		}
	}

	// Re-check the gap once more to catch a wraparound race that grew the
	// counter further while we scanned the ring.
	counter2 := h.loadU32(hdrLFCounter)
	if counter2-snap.counter >= lfRingSize {
		return verifyTryAgain
	}

	return verifyOK
}

// savedEdge reconstructs the 13-byte edge image the writer staged in the
// exception buffer, used when verifyRead returns verifyUseSaved and the
// caller's excepStatus indicates an edge-shaped staged mutation.
func (h *headerFile) savedEdge() []byte {
	return h.savedBuf(edgeSize)
}

// savedBuf returns the first n bytes the writer staged in the exception
// buffer, for callers guarding a field narrower than a full edge (e.g. the
// 8-byte node header region).
func (h *headerFile) savedBuf(n int) []byte {
	buf := make([]byte, n)
	copy(buf, h.data[hdrExcepBuff:hdrExcepBuff+n])
	return buf
}

// publishEdgeWrite performs the writer side of §4.6 for a single edge
// mutation at edgeOff: stage the exception slot, flip the lock-free offset
// to "in progress", perform doWrite, record the offset in the ring, bump
// the counter, and clear both the lock-free offset and the exception slot.
//
// excepBuf must be <= 16 bytes (the exception buffer's width).
func (h *headerFile) publishEdgeWrite(edgeOff uint64, status excepStatus, excepOffset, excepLFOffset uint64, excepBuf []byte, doWrite func() error) error {
	h.storeU64(hdrExcepOffset, excepOffset)
	h.storeU64(hdrExcepLFOff, excepLFOffset)
	copy(h.data[hdrExcepBuff:hdrExcepBuff+16], make([]byte, 16))
	copy(h.data[hdrExcepBuff:hdrExcepBuff+16], excepBuf)
	h.storeU64(hdrExcepStatus, uint64(status))

	h.storeU64(hdrLFOffset, edgeOff)

	if err := doWrite(); err != nil {
		// Leave the exception slot staged: a crash here is indistinguishable
		// from a crash after doWrite from the recovery path's point of view,
		// and ExceptionRecovery will safely replay the (unapplied) mutation
		// on next open. Still clear the lock-free offset so live readers
		// don't spin treating this edge as eternally in-flight.
		h.storeU64(hdrLFOffset, sentinelOffset)
		return err
	}

	counter := h.loadU32(hdrLFCounter)
	h.storeU64(hdrLFRingBase+int(counter%lfRingSize)*8, edgeOff)
	h.addU32Counter()
	h.storeU64(hdrLFOffset, sentinelOffset)
	h.storeU64(hdrExcepStatus, uint64(excepNone))

	return nil
}

func (h *headerFile) addU32Counter() {
	h.storeU32(hdrLFCounter, h.loadU32(hdrLFCounter)+1)
}
