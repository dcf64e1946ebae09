//go:build unix || linux || darwin

package mabain

import (
	"os"
	"syscall"
)

func ensureFifo(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := syscall.Mkfifo(path, 0600); err != nil && !os.IsExist(err) {
		return newErr("ensureFifo", KindOpenFailure, err)
	}
	return nil
}
