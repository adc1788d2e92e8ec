package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// Kind identifies which shared area a Handle maps.
type Kind int

const (
	KindFSA Kind = iota
	KindFRA
	KindStatus
)

func (k Kind) idFile() string {
	switch k {
	case KindFSA:
		return "fsa.id"
	case KindFRA:
		return "fra.id"
	case KindStatus:
		return "afd_status.id"
	default:
		panic("shm: unknown Kind")
	}
}

func (k Kind) baseName() string {
	switch k {
	case KindFSA:
		return "fsa_status"
	case KindFRA:
		return "fra_status"
	case KindStatus:
		return "afd.status"
	default:
		panic("shm: unknown Kind")
	}
}

// CurrentVersion is the schema version this build understands. A
// consumer that opens an area whose version does not match must refuse
// to proceed (spec section 3).
const CurrentVersion byte = 1

// ErrIncorrectVersion is returned by Attach when the mapped area's
// schema version does not match CurrentVersion.
var ErrIncorrectVersion = errors.New("shm: incorrect schema version")

// ErrAreaUnavailable is returned by Attach when the area cannot be
// resolved or is observed STALE at attach time.
var ErrAreaUnavailable = errors.New("shm: area unavailable")

// ErrAlreadyHeld distinguishes a non-blocking lock that is currently
// held by someone else from a fatal locking error.
var ErrAlreadyHeld = errors.New("shm: lock already held")

// Handle is a live mapping of one shared status area.
type Handle struct {
	mu      sync.Mutex
	kind    Kind
	workDir string
	id      string
	path    string
	file    *os.File
	data    []byte
	size    int
}

func idFilePath(workDir string, kind Kind) string {
	return filepath.Join(workDir, "fifodir", kind.idFile())
}

func areaPath(workDir string, kind Kind, id string) string {
	return filepath.Join(workDir, "fifodir", kind.baseName()+"."+id)
}

// readID reads the small text id file under a shared region lock,
// per spec section 4.1's attach contract.
func readID(idPath string) (string, error) {
	f, err := os.Open(idPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAreaUnavailable, err)
	}
	defer f.Close()

	lock := unix.Flock_t{Type: unix.F_RDLCK, Whence: 0, Start: 0, Len: 0}
	if err := unix.FcntlFlock(f.Fd(), unix.F_SETLKW, &lock); err != nil {
		return "", fmt.Errorf("%w: id file lock: %v", ErrAreaUnavailable, err)
	}
	defer func() {
		unlock := unix.Flock_t{Type: unix.F_UNLCK, Whence: 0, Start: 0, Len: 0}
		_ = unix.FcntlFlock(f.Fd(), unix.F_SETLK, &unlock)
	}()

	buf := make([]byte, 64)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return "", fmt.Errorf("%w: reading id: %v", ErrAreaUnavailable, err)
	}
	id := string(buf[:n])
	for len(id) > 0 && (id[len(id)-1] == '\n' || id[len(id)-1] == ' ') {
		id = id[:len(id)-1]
	}
	if id == "" {
		return "", fmt.Errorf("%w: empty id file", ErrAreaUnavailable)
	}
	return id, nil
}

// WriteID atomically publishes a new generation id for kind, under an
// exclusive lock on the id file — the supervisor's "flip the ID file"
// step of spec section 3's lifecycle.
func WriteID(workDir string, kind Kind, id string) error {
	idPath := idFilePath(workDir, kind)
	if err := os.MkdirAll(filepath.Dir(idPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(idPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	lock := unix.Flock_t{Type: unix.F_WRLCK, Whence: 0, Start: 0, Len: 0}
	if err := unix.FcntlFlock(f.Fd(), unix.F_SETLKW, &lock); err != nil {
		return fmt.Errorf("id file lock: %w", err)
	}
	defer func() {
		unlock := unix.Flock_t{Type: unix.F_UNLCK, Whence: 0, Start: 0, Len: 0}
		_ = unix.FcntlFlock(f.Fd(), unix.F_SETLK, &unlock)
	}()

	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(id), 0); err != nil {
		return err
	}
	return f.Sync()
}

// Create creates a brand-new area of the given kind and total size
// (header included), writes CurrentVersion into the header, publishes
// its id, and returns an attached Handle. Used at first use and on
// every schema-altering reload (spec section 3).
func Create(workDir string, kind Kind, id string, size int) (*Handle, error) {
	path := areaPath(workDir, kind, id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, err
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	Header{Version: CurrentVersion}.Encode(data)

	if err := WriteID(workDir, kind, id); err != nil {
		_ = unix.Munmap(data)
		f.Close()
		return nil, err
	}

	return &Handle{kind: kind, workDir: workDir, id: id, path: path, file: f, data: data, size: size}, nil
}

// Attach resolves the current area for kind by reading its ID file,
// opening the versioned mapping, and validating the schema version
// (spec section 4.1).
func Attach(workDir string, kind Kind) (*Handle, error) {
	id, err := readID(idFilePath(workDir, kind))
	if err != nil {
		return nil, err
	}
	path := areaPath(workDir, kind, id)
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAreaUnavailable, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrAreaUnavailable, err)
	}
	size := int(st.Size())
	if size < HeaderSize {
		f.Close()
		return nil, fmt.Errorf("%w: area too small", ErrAreaUnavailable)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: mmap: %v", ErrAreaUnavailable, err)
	}

	hdr := DecodeHeader(data)
	if hdr.IsStale() {
		_ = unix.Munmap(data)
		f.Close()
		return nil, ErrAreaUnavailable
	}
	if hdr.Version != CurrentVersion {
		_ = unix.Munmap(data)
		f.Close()
		return nil, ErrIncorrectVersion
	}

	return &Handle{kind: kind, workDir: workDir, id: id, path: path, file: f, data: data, size: size}, nil
}

// Detach releases the mapping; required after observing STALE or on
// shutdown.
func (h *Handle) Detach() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.data == nil {
		return nil
	}
	err := unix.Munmap(h.data)
	h.data = nil
	closeErr := h.file.Close()
	if err == nil {
		err = closeErr
	}
	return err
}

// CheckStale reads the size field and compares it to the STALE
// sentinel. Callers must call this before any long-running loop
// iteration that touches the area.
func (h *Handle) CheckStale() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.data == nil {
		return true
	}
	return readSizeOrStale(h.data) == StaleSentinel
}

// MarkStale overwrites this handle's own header with the STALE
// sentinel; called by the writer that is retiring this generation.
func (h *Handle) MarkStale() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.data != nil {
		MarkStale(h.data)
	}
}

// Size returns the handle's mapped size (header included).
func (h *Handle) Size() int { return h.size }

// ID returns the handle's generation id.
func (h *Handle) ID() string { return h.id }

// bytes returns the raw mapped slice for internal typed-field access.
func (h *Handle) bytes() []byte { return h.data }

// Field constructs a FieldLock for the byte-range at the given offset
// within this area (FieldLock is the typed handle Design Note 1 calls
// for: it can only be built from a Handle plus a known offset).
func (h *Handle) Field(offset int64) FieldLock {
	return FieldLock{h: h, offset: offset}
}
