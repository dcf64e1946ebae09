// OS-level file locking for the single-writer-per-directory invariant (§4.10).
//
// fileLock wraps flock(2) (Lock_unix.go) with a mutex that guards the file
// handle's lifetime, exactly as jpl-au-folio's fileLock does: the mutex is
// held for the whole syscall so Close cannot invalidate the fd mid-call.
package mabain

import (
	"os"
	"sync"
)

type fileLock struct {
	mu sync.Mutex
	f  *os.File
}

// tryLockExclusive attempts a non-blocking exclusive lock, returning false
// (not an error) if another writer already holds it.
func (l *fileLock) tryLockExclusive() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return false, nil
	}
	return l.tryLock()
}

func (l *fileLock) unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.unlockFile()
}

func (l *fileLock) setFile(f *os.File) {
	l.mu.Lock()
	l.f = f
	l.mu.Unlock()
}
