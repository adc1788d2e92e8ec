package shm

// Field widths for FRA's fixed-size string fields.
const (
	dirAliasLen = 64
	dirURLLen   = 256
	hostAliasLen = 64
)

// DirStatus is the dir_status enum of spec section 3.
type DirStatus uint8

const (
	DirNormal DirStatus = iota
	DirDisabled
	DirStopped
)

// DirBehaviorFlags are DirEntry's behavior flags (spec section 3).
type DirBehaviorFlags uint32

const (
	FlagRemove DirBehaviorFlags = 1 << iota
	FlagStupidMode
	FlagForceReread
	FlagQueued
	FlagDeleteUnknownFiles
	FlagReportUnknownFiles
	FlagImportantDir
	FlagTimeOption
)

func (f DirBehaviorFlags) Has(bit DirBehaviorFlags) bool { return f&bit != 0 }

// DirEntry is one row of the Fileretrieve Status Area.
type DirEntry struct {
	Alias      string
	URL        string
	HostAlias  string
	Priority   byte // '0'..'9', '0' highest
	TimePattern string

	FilesInDir     int64
	BytesInDir     int64
	FilesQueued    int64
	BytesInQueue   int64
	FilesReceived  int64
	BytesReceived  int64
	ErrorCounter   int32

	Status DirStatus
	Flags  DirBehaviorFlags

	OldFileTimeSec int32
	EndCharacter   byte // 0 means "no requirement"

	NextCheckTimeUnix int64
	LastRetrievalUnix int64

	DirPos int32 // back-reference into the directory-name buffer
	FSAPos int32 // back-reference into FSA
}

const (
	offDirAlias        = 0
	offDirURL          = offDirAlias + dirAliasLen
	offDirHostAlias    = offDirURL + dirURLLen
	offDirPriority     = offDirHostAlias + hostAliasLen
	offDirTimePattern  = offDirPriority + 1
	offDirFilesInDir   = offDirTimePattern + 32
	offDirBytesInDir   = offDirFilesInDir + 8
	offDirFilesQueued  = offDirBytesInDir + 8
	offDirBytesInQueue = offDirFilesQueued + 8
	offDirFilesRecv    = offDirBytesInQueue + 8
	offDirBytesRecv    = offDirFilesRecv + 8
	offDirErrorCounter = offDirBytesRecv + 8 // lockable
	offDirStatus       = offDirErrorCounter + 4 // lockable
	offDirFlags        = offDirStatus + 1
	offDirOldFileTime  = offDirFlags + 4
	offDirEndChar      = offDirOldFileTime + 4
	offDirNextCheck    = offDirEndChar + 1
	offDirLastRetr     = offDirNextCheck + 8
	offDirPos          = offDirLastRetr + 8
	offDirFSAPos       = offDirPos + 4

	dirEntrySize = offDirFSAPos + 4
)

func encodeDirEntry(buf []byte, e DirEntry) {
	c := newCursor(buf)
	c.putString(e.Alias, dirAliasLen)
	c.putString(e.URL, dirURLLen)
	c.putString(e.HostAlias, hostAliasLen)
	c.putUint8(e.Priority)
	c.putString(e.TimePattern, 32)
	c.putInt64(e.FilesInDir)
	c.putInt64(e.BytesInDir)
	c.putInt64(e.FilesQueued)
	c.putInt64(e.BytesInQueue)
	c.putInt64(e.FilesReceived)
	c.putInt64(e.BytesReceived)
	c.putInt32(e.ErrorCounter)
	c.putUint8(uint8(e.Status))
	c.putUint32(uint32(e.Flags))
	c.putInt32(e.OldFileTimeSec)
	c.putUint8(e.EndCharacter)
	c.putInt64(e.NextCheckTimeUnix)
	c.putInt64(e.LastRetrievalUnix)
	c.putInt32(e.DirPos)
	c.putInt32(e.FSAPos)
}

func decodeDirEntry(buf []byte) DirEntry {
	c := newCursor(buf)
	var e DirEntry
	e.Alias = c.getString(dirAliasLen)
	e.URL = c.getString(dirURLLen)
	e.HostAlias = c.getString(hostAliasLen)
	e.Priority = c.getUint8()
	e.TimePattern = c.getString(32)
	e.FilesInDir = c.getInt64()
	e.BytesInDir = c.getInt64()
	e.FilesQueued = c.getInt64()
	e.BytesInQueue = c.getInt64()
	e.FilesReceived = c.getInt64()
	e.BytesReceived = c.getInt64()
	e.ErrorCounter = c.getInt32()
	e.Status = DirStatus(c.getUint8())
	e.Flags = DirBehaviorFlags(c.getUint32())
	e.OldFileTimeSec = c.getInt32()
	e.EndCharacter = c.getUint8()
	e.NextCheckTimeUnix = c.getInt64()
	e.LastRetrievalUnix = c.getInt64()
	e.DirPos = c.getInt32()
	e.FSAPos = c.getInt32()
	return e
}

// FRA is the attached Fileretrieve Status Area.
type FRA struct {
	h *Handle
}

// OpenFRA attaches the current FRA generation.
func OpenFRA(workDir string) (*FRA, error) {
	h, err := Attach(workDir, KindFRA)
	if err != nil {
		return nil, err
	}
	return &FRA{h: h}, nil
}

// CreateFRA creates a brand-new FRA generation with room for n
// directories.
func CreateFRA(workDir, id string, n int) (*FRA, error) {
	h, err := Create(workDir, KindFRA, id, HeaderSize+n*dirEntrySize)
	if err != nil {
		return nil, err
	}
	return &FRA{h: h}, nil
}

func (f *FRA) Handle() *Handle { return f.h }

func (f *FRA) NumDirs() int { return (f.h.size - HeaderSize) / dirEntrySize }

func (f *FRA) entryOffset(i int) int { return HeaderSize + i*dirEntrySize }

func (f *FRA) Read(i int) DirEntry {
	off := f.entryOffset(i)
	return decodeDirEntry(f.h.bytes()[off : off+dirEntrySize])
}

func (f *FRA) Write(i int, e DirEntry) {
	off := f.entryOffset(i)
	encodeDirEntry(f.h.bytes()[off:off+dirEntrySize], e)
}

// DirField names a lockable field of a DirEntry.
type DirField int

const (
	DirFieldErrorCounter DirField = iota
	DirFieldStatus
)

func (df DirField) offset() int {
	switch df {
	case DirFieldErrorCounter:
		return offDirErrorCounter
	case DirFieldStatus:
		return offDirStatus
	default:
		panic("shm: unknown DirField")
	}
}

func (f *FRA) Field(i int, field DirField) FieldLock {
	return f.h.Field(int64(f.entryOffset(i) + field.offset()))
}
