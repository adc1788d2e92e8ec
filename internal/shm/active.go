package shm

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ActiveFileName is the fixed AfdActive file name under fifodir.
const ActiveFileName = "afd_active"

const (
	offActivePIDs      = 0
	offActiveHeartbeat = offActivePIDs + NumComponents*4
	offActiveShutdown  = offActiveHeartbeat + 4

	activeRecordSize = offActiveShutdown + 1
)

// Active is the supervisor's AfdActive mapping: PIDs in fixed slot
// order, a 32-bit heartbeat the supervisor increments every tick, and a
// one-byte shared shutdown flag (spec section 3).
type Active struct {
	file *os.File
	data []byte
}

func activePath(workDir string) string {
	return filepath.Join(workDir, "fifodir", ActiveFileName)
}

// CreateActive truncates (or creates) AfdActive and maps it, per
// spec section 4.6 step 4. The size-zero sentinel byte convention of
// the original source is represented here simply by a freshly zeroed
// record: all PIDs zero, heartbeat zero, shutdown clear.
func CreateActive(workDir string) (*Active, error) {
	path := activePath(workDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(activeRecordSize)); err != nil {
		f.Close()
		return nil, err
	}
	data, err := unix.Mmap(int(f.Fd()), 0, activeRecordSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Active{file: f, data: data}, nil
}

// OpenActive maps an existing AfdActive file without truncating it —
// used by check_afd_heartbeat and by read-only tools.
func OpenActive(workDir string) (*Active, error) {
	path := activePath(workDir)
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() < int64(activeRecordSize) {
		f.Close()
		return nil, ErrAreaUnavailable
	}
	data, err := unix.Mmap(int(f.Fd()), 0, activeRecordSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Active{file: f, data: data}, nil
}

// Close unmaps and closes AfdActive.
func (a *Active) Close() error {
	err := unix.Munmap(a.data)
	closeErr := a.file.Close()
	if err == nil {
		err = closeErr
	}
	return err
}

// Unlink removes the AfdActive file (part of shutdown, spec section 5).
func Unlink(workDir string) error {
	return os.Remove(activePath(workDir))
}

func (a *Active) pidSlice() []int32 {
	return unsafe.Slice((*int32)(unsafe.Pointer(&a.data[offActivePIDs])), NumComponents)
}

// SetPID records a component's PID in its fixed slot.
func (a *Active) SetPID(slot int, pid int32) {
	atomic.StoreInt32(&a.pidSlice()[slot], pid)
}

// PID returns a component's recorded PID.
func (a *Active) PID(slot int) int32 {
	return atomic.LoadInt32(&a.pidSlice()[slot])
}

func (a *Active) heartbeatPtr() *uint32 {
	return (*uint32)(unsafe.Pointer(&a.data[offActiveHeartbeat]))
}

// IncrementHeartbeat bumps the heartbeat word; called once per
// supervisor tick.
func (a *Active) IncrementHeartbeat() uint32 {
	return atomic.AddUint32(a.heartbeatPtr(), 1)
}

// Heartbeat reads the current heartbeat word.
func (a *Active) Heartbeat() uint32 {
	return atomic.LoadUint32(a.heartbeatPtr())
}

// SetShutdown sets or clears the shared shutdown bit.
func (a *Active) SetShutdown(v bool) {
	if v {
		a.data[offActiveShutdown] = 1
	} else {
		a.data[offActiveShutdown] = 0
	}
}

// IsShutdown reads the shared shutdown bit.
func (a *Active) IsShutdown() bool {
	return a.data[offActiveShutdown] != 0
}
