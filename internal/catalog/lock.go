package catalog

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// Lock holds the catalog's single-writer advisory lock on pg_rman.ini for
// the lifetime of one session. Release is idempotent.
type Lock struct {
	f *os.File
}

// AcquireLock takes a non-blocking exclusive whole-file lock on path.
// Contention returns KindAlreadyRunning rather than blocking, so a second
// concurrent invocation fails fast.
func AcquireLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, rmanerr.Wrap(err, rmanerr.KindSystem, "opening lock file %s", path)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, rmanerr.New(rmanerr.KindAlreadyRunning, "another pg_rman process is already running against this catalog")
		}
		return nil, rmanerr.Wrap(err, rmanerr.KindSystem, "locking %s", path)
	}
	return &Lock{f: f}, nil
}

// Release unlocks and closes the lock file descriptor. It is also safe to
// rely on simple process exit: the advisory lock is released by the OS
// when the file descriptor table is torn down.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
