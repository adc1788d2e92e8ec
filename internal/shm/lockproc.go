package shm

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ProcLock is a held exclusive lock for one ProcClass in the shared
// per-process-class lock file.
type ProcLock struct {
	file   *os.File
	offset int64
}

// Release releases the lock and closes the underlying file descriptor.
func (p *ProcLock) Release() error {
	if p.file == nil {
		return nil
	}
	unlock := unix.Flock_t{Type: unix.F_UNLCK, Whence: 0, Start: p.offset, Len: 1}
	_ = unix.FcntlFlock(p.file.Fd(), unix.F_SETLK, &unlock)
	return p.file.Close()
}

// LockProc acquires an exclusive lock at the fixed offset for proc in
// the lock file at path, so that only one editor, one AMG, one FD, one
// archive-watch, and one statistics process can run at a time (spec
// section 4.1). If testOnly, it only probes: it never blocks and never
// holds the lock afterward, returning held=true if someone else
// currently holds it. The lock is an open-file-description lock, so a
// holder in the same process is seen just like one in another process.
func LockProc(path string, proc ProcClass, testOnly bool) (lock *ProcLock, held bool, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, false, err
	}

	fl := unix.Flock_t{Type: unix.F_WRLCK, Whence: 0, Start: int64(proc), Len: 1}
	cmdErr := unix.FcntlFlock(f.Fd(), unix.F_SETLK, &fl)
	if cmdErr != nil {
		if errors.Is(cmdErr, unix.EAGAIN) || errors.Is(cmdErr, unix.EACCES) {
			f.Close()
			return nil, true, nil
		}
		f.Close()
		return nil, false, cmdErr
	}

	if testOnly {
		unlock := unix.Flock_t{Type: unix.F_UNLCK, Whence: 0, Start: int64(proc), Len: 1}
		_ = unix.FcntlFlock(f.Fd(), unix.F_SETLK, &unlock)
		f.Close()
		return nil, false, nil
	}

	return &ProcLock{file: f, offset: int64(proc)}, false, nil
}
