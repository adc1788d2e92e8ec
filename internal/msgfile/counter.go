package msgfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// CounterBound is the modulus the shared AFD counter wraps at, chosen
// to keep the unique field of a message name fixed-width (5 decimal
// digits) regardless of how long the daemon has been running.
const CounterBound = 100000

// Counter is the shared, byte-range-locked unique-id source message
// names draw their unique_counter field from.
type Counter struct {
	file *os.File
}

// OpenCounter opens (creating if absent) the AFD counter file at path.
func OpenCounter(path string) (*Counter, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("msgfile: open counter: %w", err)
	}
	if st, err := f.Stat(); err == nil && st.Size() < 4 {
		if _, err := f.WriteAt([]byte{0, 0, 0, 0}, 0); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &Counter{file: f}, nil
}

// Close closes the counter file.
func (c *Counter) Close() error { return c.file.Close() }

// Next atomically increments the counter modulo CounterBound and
// returns the new value, under an exclusive byte-range lock on the
// counter's single 4-byte field.
func (c *Counter) Next() (uint32, error) {
	lock := unix.Flock_t{Type: unix.F_WRLCK, Whence: 0, Start: 0, Len: 4}
	if err := unix.FcntlFlock(c.file.Fd(), unix.F_SETLKW, &lock); err != nil {
		return 0, fmt.Errorf("msgfile: lock counter: %w", err)
	}
	defer func() {
		unlock := unix.Flock_t{Type: unix.F_UNLCK, Whence: 0, Start: 0, Len: 4}
		_ = unix.FcntlFlock(c.file.Fd(), unix.F_SETLK, &unlock)
	}()

	buf := make([]byte, 4)
	if _, err := c.file.ReadAt(buf, 0); err != nil {
		return 0, fmt.Errorf("msgfile: read counter: %w", err)
	}
	cur := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	next := (cur + 1) % CounterBound
	buf[0] = byte(next)
	buf[1] = byte(next >> 8)
	buf[2] = byte(next >> 16)
	buf[3] = byte(next >> 24)
	if _, err := c.file.WriteAt(buf, 0); err != nil {
		return 0, fmt.Errorf("msgfile: write counter: %w", err)
	}
	return next, nil
}
