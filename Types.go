package mabain

import (
	"os"
	"sync"
	"sync/atomic"
)

// Options configures Open.
type Options struct {
	// Dir is the directory holding the database's block files.
	Dir string
	// Writer opens the handle as the single writer for Dir.
	Writer bool
	// IndexBlockSize / DataBlockSize is the size in bytes of each numbered
	// block file in the index and data segments. Defaults to DefaultBlockSize.
	IndexBlockSize int64
	DataBlockSize  int64
	// MaxIndexBlocks / MaxDataBlocks bounds the segment's high-water mark.
	// Zero means unbounded.
	MaxIndexBlocks int
	MaxDataBlocks  int
	// QueueSize is the number of slots in the shared command queue ring.
	// Only meaningful for writer opens; defaults to DefaultQueueSize.
	QueueSize int
	// QueueInShm places the command-queue file under /dev/shm instead of Dir.
	QueueInShm bool
	// UseArenaAllocator selects the arena-bound general allocator instead of
	// the size-classed free-list allocator. Must match across reopens.
	UseArenaAllocator bool
	// NodePoolSize is the number of slots in the in-process prefix cache.
	NodePoolSize int64
	// PrefixCacheHashAlgorithm selects the hash used to place keys into the
	// prefix cache's sets (AlgXXHash3, AlgFNV1a, or AlgBlake2b). Defaults to
	// AlgXXHash3.
	PrefixCacheHashAlgorithm int
}

// Prefix cache hash algorithm selectors for Options.PrefixCacheHashAlgorithm.
const (
	AlgXXHash3 = 1
	AlgFNV1a   = 2
	AlgBlake2b = 3
)

func (o Options) withDefaults() Options {
	if o.IndexBlockSize == 0 {
		o.IndexBlockSize = DefaultBlockSize
	}
	if o.DataBlockSize == 0 {
		o.DataBlockSize = DefaultBlockSize
	}
	if o.QueueSize == 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.NodePoolSize == 0 {
		o.NodePoolSize = 4096
	}
	if o.PrefixCacheHashAlgorithm == 0 {
		o.PrefixCacheHashAlgorithm = AlgXXHash3
	}
	return o
}

// DB is the open handle to a mabain directory: the mmap'd header page plus
// the lazily mapped index/data block pools, the trie read/write machinery,
// and (for writers) the async writer and command-queue consumer.
type DB struct {
	opts Options

	header *headerFile
	index  *blockPool
	data   *blockPool

	dictMem *dictMem
	dict    *dict
	search  *searchEngine

	threadCache *prefixCacheLocal
	sharedCache *prefixCacheShared

	writerLock *fileLock
	isWriter   bool

	queue *cmdQueue
	rc    *resourceCollector

	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	opened atomic.Bool
}

// KeyValue is a returned key/value pair, used by FindPrefix,
// FindLowerBound, and Iterator.
type KeyValue struct {
	Key   []byte
	Value []byte
}

const (
	// DefaultBlockSize is the size of one numbered block file, 128MiB.
	DefaultBlockSize int64 = 128 << 20
	// DefaultQueueSize is the number of command-queue ring slots.
	DefaultQueueSize = 256
	// MaxKeyLength is the largest key accepted by Add/Find/Remove.
	MaxKeyLength = 256
	// MaxDataSize is the largest value accepted by Add.
	MaxDataSize = 1 << 20
	// MaxOffset is the largest value a 6-byte offset can hold (2^48 - 1).
	MaxOffset = 1<<48 - 1
	// MaxOverflowOffset is the largest value a 5-byte overflow offset can hold.
	MaxOverflowOffset = 1<<40 - 1
	// sentinelOffset marks "no edge currently being mutated" in the
	// lock-free coordinator and "idle" in the rc-root field.
	sentinelOffset uint64 = MaxOffset

	// FindTraversalLimit bounds the number of edge hops a single find can
	// take, guarding against cycles introduced by corruption.
	FindTraversalLimit = 4096

	// MaxResize is 1GiB. No code in this package reads it: segments grow
	// one block file (IndexBlockSize/DataBlockSize bytes) at a time.
	MaxResize = 1 << 30
)

// node header / edge / data-record byte layout, exactly per spec §3.1.
const (
	nodeFlagsOff = 0
	nodeNtOff    = 1
	nodeDataOff  = 2 // 6 bytes
	nodeTableOff = 8 // nt+1 bytes, first-byte table

	edgeSize = 13
	// within a 13-byte edge:
	edgeLabelOff = 0 // 5 bytes: inline tail or 5-byte overflow offset
	edgeLenOff   = 5 // 1 byte
	edgeFlagsOff = 6 // 1 byte
	edgeChildOff = 7 // 6 bytes

	// node flags
	nodeFlagMatch  = 1 << 0
	nodeFlagSorted = 1 << 1

	// edge flags
	edgeFlagDataOff = 1 << 0

	inlineLabelMax = 5

	dataRecHeaderSize = 4 // 2-byte length + 2-byte bucket index
)

// root node always has nt = 255 (256 child slots).
const rootNt = 255

// numRootSlots is the number of root edge slots (one per first key byte).
const numRootSlots = 256

// excepStatus is the single staged-mutation kind recorded in the header's
// exception slot, per §4.10.
type excepStatus byte

const (
	excepNone       excepStatus = 0
	excepAddEdge    excepStatus = 1
	excepAddDataOff excepStatus = 2
	excepAddNode    excepStatus = 3
	excepRemoveEdge excepStatus = 4
	excepClearEdge  excepStatus = 5
	excepRCNode     excepStatus = 6
	excepRCData     excepStatus = 7
	excepRCEdgeStr  excepStatus = 8
)

// cmdType is a command-queue slot's action, per §4.7.
type cmdType byte

const (
	cmdNone cmdType = iota
	cmdAdd
	cmdAppend
	cmdRemove
	cmdRemoveAll
	cmdRC
	cmdBackup
	cmdFreeze
)

var defaultPageSize = os.Getpagesize()
