// Package mabain implements an embedded, on-disk key/value store backed by
// a memory-mapped radix trie, a single writer with lock-free concurrent
// readers, and crash consistency via a single staged-exception slot in the
// header. See Options and Open.
package mabain

import (
	"fmt"
	"os"
)

// Open opens (or creates, for a writer) the mabain database under
// opts.Dir. Only one writer handle may be open on a directory at a time;
// a second writer open returns ErrWriterExist. Any number of reader
// handles may be open concurrently with the writer, in this process or
// others.
func Open(opts Options) (*DB, error) {
	opts = opts.withDefaults()
	if opts.Dir == "" {
		return nil, newErr("Open", KindInvalidArg, fmt.Errorf("Dir must be set"))
	}
	if opts.Writer {
		if err := os.MkdirAll(opts.Dir, 0700); err != nil {
			return nil, newErr("Open", KindOpenFailure, err)
		}
	}

	header, firstOpen, err := openHeaderFile(opts.Dir, opts.Writer)
	if err != nil {
		return nil, err
	}
	if firstOpen {
		header.initialize(opts.UseArenaAllocator)
	} else {
		if err := header.checkVersion(); err != nil {
			header.close()
			return nil, err
		}
		if header.usesArena() != opts.UseArenaAllocator {
			header.close()
			return nil, newErr("Open", KindInvalidArg, fmt.Errorf("allocator mode does not match the one the DB was created with"))
		}
	}

	index, err := openBlockPool(opts.Dir, "_mabain_i", opts.IndexBlockSize, opts.MaxIndexBlocks, opts.Writer)
	if err != nil {
		header.close()
		return nil, err
	}
	data, err := openBlockPool(opts.Dir, "_mabain_d", opts.DataBlockSize, opts.MaxDataBlocks, opts.Writer)
	if err != nil {
		index.close()
		header.close()
		return nil, err
	}

	indexAlloc, dataAlloc := makeAllocators(opts, index, data, header)
	dm := newDictMem(index, indexAlloc, header)
	if firstOpen {
		if err := dm.initRoot(); err != nil {
			index.close()
			data.close()
			header.close()
			return nil, err
		}
	}

	d := newDict(dm, data, dataAlloc, header)
	se := newSearchEngine(dm, d, header)

	sharedCache, err := openPrefixCacheShared(opts.Dir, opts.Writer, 0, opts.PrefixCacheHashAlgorithm)
	if err != nil {
		index.close()
		data.close()
		header.close()
		return nil, err
	}

	db := &DB{
		opts:        opts,
		header:      header,
		index:       index,
		data:        data,
		dictMem:     dm,
		dict:        d,
		search:      se,
		threadCache: newPrefixCacheLocal(int(opts.NodePoolSize), opts.PrefixCacheHashAlgorithm),
		sharedCache: sharedCache,
		closing:     make(chan struct{}),
	}
	db.opened.Store(true)

	if opts.Writer {
		if err := db.startWriter(firstOpen); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

// Close releases every resource Open acquired. It is safe to call more
// than once.
func (db *DB) Close() error {
	var firstErr error
	db.closeOnce.Do(func() {
		db.opened.Store(false)
		close(db.closing)
		db.wg.Wait()

		if db.isWriter && db.writerLock != nil {
			if err := db.writerLock.unlock(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if db.queue != nil {
			if err := db.queue.close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := db.sharedCache.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := db.index.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := db.data.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := db.header.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

func (db *DB) checkOpen() error {
	if !db.opened.Load() {
		return newErr("checkOpen", KindDBClosed, ErrDBClosed)
	}
	return nil
}

// Add inserts key with value. If key already exists, overwrite controls
// the outcome: true replaces the existing value, false leaves it
// untouched and reports ErrInDict. Only valid on a writer handle.
func (db *DB) Add(key, value []byte, overwrite bool) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if !db.isWriter {
		return newErr("Add", KindNotAllowed, ErrNotAllowed)
	}
	if err := db.dict.Add(key, value, overwrite); err != nil {
		return err
	}
	db.threadCache.invalidate(key)
	return nil
}

// AddAsync enqueues an Add to be applied by the writer goroutine/process
// and returns without waiting for it to complete. The queued command
// always overwrites, matching the fire-and-forget nature of the async
// path: there is no return channel to report ErrInDict back through.
func (db *DB) AddAsync(key, value []byte) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if db.queue == nil {
		return newErr("AddAsync", KindNotAllowed, fmt.Errorf("no command queue available"))
	}
	return db.queue.Enqueue(cmdAdd, key, value)
}

// Remove deletes key. Only valid on a writer handle.
func (db *DB) Remove(key []byte) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if !db.isWriter {
		return newErr("Remove", KindNotAllowed, ErrNotAllowed)
	}
	if err := db.dict.Remove(key); err != nil {
		return err
	}
	db.threadCache.invalidate(key)
	return nil
}

// RemoveAll deletes every key. Only valid on a writer handle.
func (db *DB) RemoveAll() error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if !db.isWriter {
		return newErr("RemoveAll", KindNotAllowed, ErrNotAllowed)
	}
	return db.dict.RemoveAll()
}

// Find returns the value stored for key, or ErrNotExist.
func (db *DB) Find(key []byte) ([]byte, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if off, ok := db.threadCache.lookup(key); ok {
		if val, err := db.dict.readValue(off); err == nil {
			return val, nil
		}
	}
	if off, ok := db.sharedCache.lookup(key); ok {
		if val, err := db.dict.readValue(off); err == nil {
			return val, nil
		}
	}
	return db.search.Find(key)
}

// FindPrefix returns every key/value pair whose key starts with prefix, in
// sorted key order.
func (db *DB) FindPrefix(prefix []byte) ([]KeyValue, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.search.FindPrefix(prefix)
}

// FindLongestPrefix returns the longest stored key that is a prefix of
// input, along with its value.
func (db *DB) FindLongestPrefix(input []byte) (*KeyValue, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.search.FindLongestPrefix(input)
}

// FindLowerBound returns the largest stored key that is <= key (the floor
// of key), along with its value.
func (db *DB) FindLowerBound(key []byte) (*KeyValue, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.search.FindLowerBound(key)
}

// CollectResource runs a synchronous resource-collection pass, compacting
// the index and data segments. Only valid on a writer handle.
func (db *DB) CollectResource() error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if !db.isWriter {
		return newErr("CollectResource", KindNotAllowed, ErrNotAllowed)
	}
	return db.rc.Collect()
}

// CollectResourceAsync enqueues a resource-collection pass for the writer
// to run.
func (db *DB) CollectResourceAsync() error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if db.queue == nil {
		return newErr("CollectResourceAsync", KindNotAllowed, fmt.Errorf("no command queue available"))
	}
	return db.queue.Enqueue(cmdRC, nil, nil)
}

// Count returns the number of keys currently stored.
func (db *DB) Count() uint64 {
	return db.header.loadU64(hdrCount)
}
