//go:build !windows

package engine

import (
	"os"

	"golang.org/x/sys/unix"

	"strata/internal/errs"
)

// lockFile takes an exclusive, non-blocking advisory lock on f: a
// single open writer per database directory prevents two processes
// from racing the same WAL file.
func lockFile(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if err == unix.EWOULDBLOCK {
			return errs.New(errs.KindIo, "database directory is locked by another process")
		}
		return errs.Io(err)
	}
	return nil
}

func unlockFile(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		return errs.Io(err)
	}
	return nil
}
