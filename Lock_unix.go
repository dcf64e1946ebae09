//go:build unix || linux || darwin

// flock(2) implementation. Called with l.mu already held.
package mabain

import "syscall"

func (l *fileLock) tryLock() (bool, error) {
	err := syscall.Flock(int(l.f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == syscall.EWOULDBLOCK {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *fileLock) unlockFile() error {
	return syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
}
