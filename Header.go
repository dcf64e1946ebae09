// Header & shared state (§3.1, §6): a single mmap'd page holding the
// version stamp, segment counters and high-water marks, the lock-free slot,
// the single exception slot, the rc-root fields, and the command-queue
// indices. Field order below matches §3.1's listing order.
//
// Every multi-byte field is little-endian and every 8-byte field sits on an
// 8-byte boundary so sync/atomic's 64-bit primitives can operate on it
// directly via unsafe.Pointer, exactly the way the teacher's Meta.go reads
// the version/root-offset fields.
package mabain

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"
)

const headerFileName = "_mabain_h"

// Byte offsets into the header page. u48/u40 fields are still given 8 bytes
// of storage for atomic-access alignment; only the low 6 (or 5) bytes are
// meaningful on disk, matching how the teacher over-allocates uint64 slots
// for fields that are conceptually narrower.
const (
	hdrVersion0          = 0  // 4 x u16 version stamp, 8 bytes
	hdrCount             = 8
	hdrNumUpdate         = 16
	hdrMIndexOffset      = 24
	hdrMDataOffset       = 32
	hdrPendingIndexBytes = 40
	hdrPendingDataBytes  = 48
	hdrEntryPerBucket    = 56
	hdrEvictionBucket    = 64
	hdrNumWriter         = 72
	hdrNumReader         = 80

	// lock-free slot (§4.6)
	hdrLFCounter   = 88
	hdrLFOffset    = 96
	hdrLFRingBase  = 104 // 4 x 8 bytes
	hdrLFRingSize  = 4

	// exception slot (§3.1, §4.10)
	hdrExcepStatus = 136
	hdrExcepOffset = 144
	hdrExcepLFOff  = 152
	hdrExcepBuff   = 160 // 16 bytes
	// hdrExcepBuff .. +16 = 176

	// rc-root fields (§3.3, §4.9)
	hdrRCRootOffset    = 176
	hdrRCIndexOffPre   = 184
	hdrRCDataOffPre    = 192
	hdrRCCount         = 200
	hdrRCFlag          = 208

	// command queue indices (§4.7)
	hdrQueueIndex  = 216
	hdrWriterIndex = 224

	hdrUseArena = 232 // 1 byte, allocator mode stamped at creation

	headerUsedSize = 240
)

type headerFile struct {
	file *os.File
	data MMap
}

func openHeaderFile(dir string, writer bool) (*headerFile, bool, error) {
	path := filepath.Join(dir, headerFileName)
	_, statErr := os.Stat(path)
	firstOpen := os.IsNotExist(statErr)

	if firstOpen && !writer {
		return nil, false, newErr("openHeaderFile", KindNoDB, fmt.Errorf("%s does not exist", path))
	}

	flag := os.O_RDWR
	if writer {
		flag |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flag, 0600)
	if err != nil {
		return nil, false, newErr("openHeaderFile", KindOpenFailure, err)
	}

	size := int64(defaultPageSize)
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, newErr("openHeaderFile", KindOpenFailure, err)
	}
	if stat.Size() < size {
		if !writer {
			f.Close()
			return nil, false, newErr("openHeaderFile", KindNoDB, fmt.Errorf("truncated header"))
		}
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, false, newErr("openHeaderFile", KindWriteError, err)
		}
	}

	data, err := mmapFile(f, size)
	if err != nil {
		f.Close()
		return nil, false, newErr("openHeaderFile", KindMmapFailed, err)
	}

	h := &headerFile{file: f, data: data}
	return h, firstOpen, nil
}

func (h *headerFile) close() error {
	if err := munmapFile(h.data); err != nil {
		return err
	}
	return h.file.Close()
}

func (h *headerFile) flush() error {
	return msyncRange(h.data, 0, int64(len(h.data)))
}

func (h *headerFile) u64ptr(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&h.data[off]))
}

func (h *headerFile) loadU64(off int) uint64        { return atomic.LoadUint64(h.u64ptr(off)) }
func (h *headerFile) storeU64(off int, v uint64)     { atomic.StoreUint64(h.u64ptr(off), v) }
func (h *headerFile) addU64(off int, delta int64) uint64 {
	return atomic.AddUint64(h.u64ptr(off), uint64(delta))
}
func (h *headerFile) casU64(off int, old, new uint64) bool {
	return atomic.CompareAndSwapUint64(h.u64ptr(off), old, new)
}

func (h *headerFile) loadU32(off int) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&h.data[off])))
}
func (h *headerFile) storeU32(off int, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&h.data[off])), v)
}
func (h *headerFile) addU32(off int, delta int32) uint32 {
	return atomic.AddUint32((*uint32)(unsafe.Pointer(&h.data[off])), uint32(delta))
}

// version stamp: 4 x u16.
func (h *headerFile) version() [4]uint16 {
	var v [4]uint16
	for i := range v {
		v[i] = getUint16(h.data[hdrVersion0+i*2:])
	}
	return v
}

func (h *headerFile) setVersion(v [4]uint16) {
	for i, x := range v {
		putUint16(h.data[hdrVersion0+i*2:], x)
	}
}

var currentVersion = [4]uint16{1, 0, 0, 0}

func (h *headerFile) initialize(useArena bool) {
	h.setVersion(currentVersion)
	h.storeU64(hdrCount, 0)
	h.storeU64(hdrNumUpdate, 0)
	h.storeU64(hdrMIndexOffset, 0)
	h.storeU64(hdrMDataOffset, dataHeaderSize)
	h.storeU64(hdrPendingIndexBytes, 0)
	h.storeU64(hdrPendingDataBytes, 0)
	h.storeU64(hdrEntryPerBucket, 0)
	h.storeU64(hdrEvictionBucket, 0)
	h.storeU32(hdrNumWriter, 0)
	h.storeU32(hdrNumReader, 0)

	h.storeU32(hdrLFCounter, 0)
	h.storeU64(hdrLFOffset, sentinelOffset)
	for i := 0; i < hdrLFRingSize; i++ {
		h.storeU64(hdrLFRingBase+i*8, sentinelOffset)
	}

	h.storeU64(hdrExcepStatus, uint64(excepNone))
	h.storeU64(hdrExcepOffset, 0)
	h.storeU64(hdrExcepLFOff, 0)
	for i := range h.data[hdrExcepBuff : hdrExcepBuff+16] {
		h.data[hdrExcepBuff+i] = 0
	}

	h.storeU64(hdrRCRootOffset, 0)
	h.storeU64(hdrRCIndexOffPre, 0)
	h.storeU64(hdrRCDataOffPre, 0)
	h.storeU64(hdrRCCount, 0)
	h.storeU64(hdrRCFlag, 0)

	h.storeU64(hdrQueueIndex, 0)
	h.storeU64(hdrWriterIndex, 0)

	arenaFlag := byte(0)
	if useArena {
		arenaFlag = 1
	}
	h.data[hdrUseArena] = arenaFlag
}

func (h *headerFile) usesArena() bool { return h.data[hdrUseArena] == 1 }

// dataHeaderSize is the reserved prefix of the data segment before the
// first real record (kept as a named constant so RemoveAll's reset target
// is self-documenting, per §8's round-trip law).
const dataHeaderSize uint64 = 64

func (h *headerFile) checkVersion() error {
	v := h.version()
	if v != currentVersion {
		return newErr("checkVersion", KindVersionMismatch,
			fmt.Errorf("on-disk version %v != running version %v", v, currentVersion))
	}
	return nil
}
