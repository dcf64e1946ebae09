// Prefix cache (§4.8): a small set-associative cache keyed by a hash of a
// key's first cachePrefixBytes bytes, mapping straight to a data-record
// offset. DB.Find consults both tiers before walking the trie, but no code
// in this package outside the tests inserts into either tier, so those
// lookups always miss and every Find walks the trie.
//
// Two tiers exist, matching the two-tier design the spec calls out:
//   - prefixCacheLocal: an in-process cache whose insert any handle may
//     call, the Go analogue of the original's per-thread cache (Go has
//     no idiomatic goroutine-local storage, so this is one guarded
//     instance per DB handle instead of one per OS thread).
//   - prefixCacheShared: an mmap'd, cross-process cache under the DB
//     directory whose insert is a no-op on a non-writer handle (§4.8:
//     readers look, only the writer populates), so no reader process can
//     tear a concurrent write to the same slot.
package mabain

import (
	"encoding/binary"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

const (
	cachePrefixBytes = 8
	cacheSetAssoc    = 4
	cacheSlotSize    = 8 + 1 + 6 // hash + keyLen + dataOff
	sharedCacheFile  = "_mabain_cache"
	defaultCacheSets = 1024
)

// cacheHash hashes the first cachePrefixBytes of key under the chosen
// algorithm. AlgXXHash3 is the default (fastest); AlgBlake2b trades speed
// for a better-distributed hash on adversarial key sets; AlgFNV1a needs no
// third-party dependency at all, for callers that want to avoid both.
func cacheHash(key []byte, alg int) uint64 {
	n := len(key)
	if n > cachePrefixBytes {
		n = cachePrefixBytes
	}
	prefix := key[:n]

	switch alg {
	case AlgBlake2b:
		h, _ := blake2b.New(8, nil)
		h.Write(prefix)
		return binary.BigEndian.Uint64(h.Sum(nil))
	case AlgFNV1a:
		h := fnv.New64a()
		h.Write(prefix)
		return h.Sum64()
	default:
		return xxh3.Hash(prefix)
	}
}

type cacheSlot struct {
	hash    uint64
	keyLen  byte
	dataOff uint64
}

// prefixCacheLocal is a direct-mapped, mutex-guarded in-process cache.
type prefixCacheLocal struct {
	mu    sync.Mutex
	slots []cacheSlot
	alg   int
}

func newPrefixCacheLocal(size int, alg int) *prefixCacheLocal {
	if size <= 0 {
		size = 4096
	}
	if alg == 0 {
		alg = AlgXXHash3
	}
	return &prefixCacheLocal{slots: make([]cacheSlot, size), alg: alg}
}

func (c *prefixCacheLocal) lookup(key []byte) (uint64, bool) {
	h := cacheHash(key, c.alg)
	idx := h % uint64(len(c.slots))

	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.slots[idx]
	if s.keyLen == 0 || s.hash != h || int(s.keyLen) != len(key) {
		return 0, false
	}
	return s.dataOff, true
}

func (c *prefixCacheLocal) insert(key []byte, dataOff uint64) {
	if len(key) > 255 {
		return
	}
	h := cacheHash(key, c.alg)
	idx := h % uint64(len(c.slots))

	c.mu.Lock()
	c.slots[idx] = cacheSlot{hash: h, keyLen: byte(len(key)), dataOff: dataOff}
	c.mu.Unlock()
}

func (c *prefixCacheLocal) invalidate(key []byte) {
	h := cacheHash(key, c.alg)
	idx := h % uint64(len(c.slots))

	c.mu.Lock()
	if c.slots[idx].hash == h {
		c.slots[idx] = cacheSlot{}
	}
	c.mu.Unlock()
}

// prefixCacheShared is a set-associative cache mmap'd from a file under the
// DB directory so every process opening the same directory shares it.
type prefixCacheShared struct {
	file    *os.File
	data    MMap
	numSets int
	writer  bool
	alg     int
}

func openPrefixCacheShared(dir string, writer bool, numSets int, alg int) (*prefixCacheShared, error) {
	if numSets <= 0 {
		numSets = defaultCacheSets
	}
	if alg == 0 {
		alg = AlgXXHash3
	}
	path := filepath.Join(dir, sharedCacheFile)
	size := int64(numSets * cacheSetAssoc * cacheSlotSize)

	flag := os.O_RDWR
	if writer {
		flag |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flag, 0600)
	if err != nil {
		if !writer && os.IsNotExist(err) {
			return nil, nil // readers tolerate a DB with no cache yet
		}
		return nil, newErr("openPrefixCacheShared", KindOpenFailure, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, newErr("openPrefixCacheShared", KindOpenFailure, err)
	}
	if stat.Size() < size {
		if !writer {
			f.Close()
			return nil, nil
		}
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, newErr("openPrefixCacheShared", KindWriteError, err)
		}
	}

	data, err := mmapFile(f, size)
	if err != nil {
		f.Close()
		return nil, newErr("openPrefixCacheShared", KindMmapFailed, err)
	}
	return &prefixCacheShared{file: f, data: data, numSets: numSets, writer: writer, alg: alg}, nil
}

func (c *prefixCacheShared) close() error {
	if c == nil {
		return nil
	}
	if err := munmapFile(c.data); err != nil {
		return err
	}
	return c.file.Close()
}

func (c *prefixCacheShared) setBase(h uint64) int {
	return int(h%uint64(c.numSets)) * cacheSetAssoc * cacheSlotSize
}

func (c *prefixCacheShared) readSlot(off int) cacheSlot {
	b := c.data[off : off+cacheSlotSize]
	return cacheSlot{
		hash:    getUint64(b[0:8]),
		keyLen:  b[8],
		dataOff: getUint48(b[9:15]),
	}
}

func (c *prefixCacheShared) writeSlot(off int, s cacheSlot) {
	b := c.data[off : off+cacheSlotSize]
	putUint64(b[0:8], s.hash)
	b[8] = s.keyLen
	putUint48(b[9:15], s.dataOff)
}

func (c *prefixCacheShared) lookup(key []byte) (uint64, bool) {
	if c == nil {
		return 0, false
	}
	h := cacheHash(key, c.alg)
	base := c.setBase(h)
	for way := 0; way < cacheSetAssoc; way++ {
		s := c.readSlot(base + way*cacheSlotSize)
		if s.keyLen != 0 && s.hash == h && int(s.keyLen) == len(key) {
			return s.dataOff, true
		}
	}
	return 0, false
}

// insert is writer-only: readers never call this, so there is no
// concurrent-write hazard on the slot bytes themselves.
func (c *prefixCacheShared) insert(key []byte, dataOff uint64) {
	if c == nil || !c.writer || len(key) > 255 {
		return
	}
	h := cacheHash(key, c.alg)
	base := c.setBase(h)
	// Shift ways 0..n-2 down one, dropping the last way, and put the new
	// entry in way 0 (simple FIFO-ish replacement; the cache is an
	// accelerator, not a source of truth, so eviction policy is not
	// load-bearing for correctness).
	for way := cacheSetAssoc - 1; way > 0; way-- {
		src := c.readSlot(base + (way-1)*cacheSlotSize)
		c.writeSlot(base+way*cacheSlotSize, src)
	}
	c.writeSlot(base, cacheSlot{hash: h, keyLen: byte(len(key)), dataOff: dataOff})
}
