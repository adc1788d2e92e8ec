package shm

import "fmt"

// MaxNoParallelJobs bounds allowed_transfers and the JobSlot array
// length, per spec section 3.
const MaxNoParallelJobs = 8

// Field widths for the fixed-size string fields of a HostEntry/JobSlot.
const (
	aliasLen        = 64
	hostnameLen     = 64
	displayNameLen  = 64
	toggleStringLen = 8
	proxyNameLen    = 64
	fileNameLen     = 256
	uniqueNameLen   = 40
	jobIDHexLen     = 20
)

// ProtocolBits are the per-host protocol capability bits of spec
// section 3.
type ProtocolBits uint32

const (
	ProtoFTP ProtocolBits = 1 << iota
	ProtoLOC
	ProtoSMTP
	ProtoWMO
	ProtoMAP
	ProtoSCP1
)

// DirectionBits are the per-host direction bits of spec section 3.
type DirectionBits uint32

const (
	DirSend DirectionBits = 1 << iota
	DirRetrieve
)

// HostStatusBits is the host_status bitfield of spec section 3.
type HostStatusBits uint32

const (
	PauseQueue HostStatusBits = 1 << iota
	AutoPauseQueue
	AutoPauseQueueLock
	DangerPauseQueue
	StopTransfer
	HostDisabled
	HostErrorOffline
)

func (b HostStatusBits) Has(bit HostStatusBits) bool { return b&bit != 0 }

// TogglePosition selects which of a host's two real hostnames is
// active.
type TogglePosition uint8

const (
	HostOne TogglePosition = iota
	HostTwo
)

// ConnectStatus is the JobSlot state machine of spec section 4.4.
type ConnectStatus uint8

const (
	Disconnect ConnectStatus = iota
	Connecting
	FTPActive
	LOCActive
	EmailActive
	WMOActive
	SCP1Active
	MAPActive
	NotWorking
	FTPBurstTransferActive
	LOCBurstTransferActive
	EmailBurstTransferActive
	WMOBurstTransferActive
	SCP1BurstTransferActive
	MAPBurstTransferActive
	ClosingConnection
)

// JobSlot is one entry of a HostEntry's fixed-length parallelism array.
type JobSlot struct {
	Pid                int32
	ConnectStatus      ConnectStatus
	NoOfFiles          int32
	NoOfFilesDone      int32
	FileSize           int64
	FileSizeDone       int64
	BytesSent          int64
	FileNameInUse      string
	FileSizeInUse      int64
	FileSizeInUseDone  int64
	UniqueName         string
	BurstCounter       int32
	JobID              string
	ErrorFile          bool
}

// HostEntry is one row of the Filetransfer Status Area (spec section 3).
type HostEntry struct {
	Alias                  string
	RealHostname           [2]string
	DisplayName            string
	ToggleString           string
	ProxyName              string
	TogglePosition         TogglePosition
	OriginalTogglePosition TogglePosition
	AutoToggle             bool
	ProtocolFlags          ProtocolBits
	DirectionFlags         DirectionBits

	TotalFileCounter int64
	TotalFileSize    int64
	FileCounterDone  int64
	BytesSent        int64
	Connections      int64
	JobsQueued       int32
	ActiveTransfers  int32
	AllowedTransfers int32
	ErrorCounter     int32
	TotalErrors      int64
	MaxErrors        int32
	RetryInterval    int32
	BlockSize        int32

	LastRetryTimeUnix  int64
	LastConnectionUnix int64

	TransferTimeout      int32
	SuccessfulRetries    int32
	MaxSuccessfulRetries int32

	HostStatus  HostStatusBits
	SpecialFlag uint8 // low 5 bits: no-burst count, <= MaxNoParallelJobs

	JobSlots [MaxNoParallelJobs]JobSlot
}

// NoBurstCount extracts the reserved low-5-bit sub-field of SpecialFlag.
func (e HostEntry) NoBurstCount() uint8 { return e.SpecialFlag & 0x1f }

// CheckInvariants validates the quantified invariants of spec section 8
// items 1-3 and the HostEntry invariants of spec section 3 for this
// entry. It never mutates; callers that find a violation must clamp and
// log, per spec section 7's "programmer invariants" policy.
func (e HostEntry) CheckInvariants() error {
	if !(0 <= e.ActiveTransfers && e.ActiveTransfers <= e.AllowedTransfers && e.AllowedTransfers <= MaxNoParallelJobs) {
		return fmt.Errorf("shm: host %s: active_transfers=%d allowed_transfers=%d violates 0<=active<=allowed<=%d",
			e.Alias, e.ActiveTransfers, e.AllowedTransfers, MaxNoParallelJobs)
	}
	if e.ErrorCounter >= e.MaxErrors && !e.HostStatus.Has(AutoPauseQueue) && !e.HostStatus.Has(HostErrorOffline) {
		return fmt.Errorf("shm: host %s: error_counter=%d >= max_errors=%d but AUTO_PAUSE_QUEUE not set",
			e.Alias, e.ErrorCounter, e.MaxErrors)
	}
	if e.TotalFileCounter == 0 && e.TotalFileSize != 0 {
		return fmt.Errorf("shm: host %s: total_file_counter=0 but total_file_size=%d", e.Alias, e.TotalFileSize)
	}
	return nil
}

// hostEntry field byte offsets, computed explicitly so FieldLock can be
// constructed against a specific field of a specific host (Design
// Note 1). Offsets marked [lockable] are the ones the spec's mutation
// contract names explicitly (counters, host_status, toggle, special
// flag, retry/connection timestamps).
const (
	offAlias                  = 0
	offRealHostname0          = offAlias + aliasLen
	offRealHostname1          = offRealHostname0 + hostnameLen
	offDisplayName            = offRealHostname1 + hostnameLen
	offToggleString           = offDisplayName + displayNameLen
	offProxyName              = offToggleString + toggleStringLen
	offTogglePosition         = offProxyName + proxyNameLen // lockable
	offOriginalTogglePosition = offTogglePosition + 1
	offAutoToggle             = offOriginalTogglePosition + 1
	offProtocolFlags          = offAutoToggle + 1
	offDirectionFlags         = offProtocolFlags + 4
	offTotalFileCounter       = offDirectionFlags + 4 // lockable
	offTotalFileSize          = offTotalFileCounter + 8
	offFileCounterDone        = offTotalFileSize + 8 // lockable
	offBytesSentHost          = offFileCounterDone + 8
	offConnections            = offBytesSentHost + 8 // lockable
	offJobsQueued             = offConnections + 8    // lockable
	offActiveTransfers        = offJobsQueued + 4      // lockable
	offAllowedTransfers       = offActiveTransfers + 4  // lockable
	offErrorCounter           = offAllowedTransfers + 4 // lockable
	offTotalErrors            = offErrorCounter + 4
	offMaxErrors              = offTotalErrors + 8
	offRetryInterval          = offMaxErrors + 4
	offBlockSize              = offRetryInterval + 4
	offLastRetryTime          = offBlockSize + 4 // lockable
	offLastConnection         = offLastRetryTime + 8 // lockable
	offTransferTimeout        = offLastConnection + 8
	offSuccessfulRetries      = offTransferTimeout + 4
	offMaxSuccessfulRetries   = offSuccessfulRetries + 4
	offHostStatus             = offMaxSuccessfulRetries + 4 // lockable
	offSpecialFlag            = offHostStatus + 4            // lockable
	offJobSlots               = offSpecialFlag + 1

	jobSlotSize = 4 + 1 + 4 + 4 + 8 + 8 + 8 + fileNameLen + 8 + 8 + uniqueNameLen + 4 + jobIDHexLen + 1

	hostEntrySize = offJobSlots + MaxNoParallelJobs*jobSlotSize
)

func encodeHostEntry(buf []byte, e HostEntry) {
	c := newCursor(buf)
	c.putString(e.Alias, aliasLen)
	c.putString(e.RealHostname[0], hostnameLen)
	c.putString(e.RealHostname[1], hostnameLen)
	c.putString(e.DisplayName, displayNameLen)
	c.putString(e.ToggleString, toggleStringLen)
	c.putString(e.ProxyName, proxyNameLen)
	c.putUint8(uint8(e.TogglePosition))
	c.putUint8(uint8(e.OriginalTogglePosition))
	c.putBool(e.AutoToggle)
	c.putUint32(uint32(e.ProtocolFlags))
	c.putUint32(uint32(e.DirectionFlags))
	c.putInt64(e.TotalFileCounter)
	c.putInt64(e.TotalFileSize)
	c.putInt64(e.FileCounterDone)
	c.putInt64(e.BytesSent)
	c.putInt64(e.Connections)
	c.putInt32(e.JobsQueued)
	c.putInt32(e.ActiveTransfers)
	c.putInt32(e.AllowedTransfers)
	c.putInt32(e.ErrorCounter)
	c.putInt64(e.TotalErrors)
	c.putInt32(e.MaxErrors)
	c.putInt32(e.RetryInterval)
	c.putInt32(e.BlockSize)
	c.putInt64(e.LastRetryTimeUnix)
	c.putInt64(e.LastConnectionUnix)
	c.putInt32(e.TransferTimeout)
	c.putInt32(e.SuccessfulRetries)
	c.putInt32(e.MaxSuccessfulRetries)
	c.putUint32(uint32(e.HostStatus))
	c.putUint8(e.SpecialFlag)
	for i := 0; i < MaxNoParallelJobs; i++ {
		encodeJobSlot(c, e.JobSlots[i])
	}
}

func decodeHostEntry(buf []byte) HostEntry {
	c := newCursor(buf)
	var e HostEntry
	e.Alias = c.getString(aliasLen)
	e.RealHostname[0] = c.getString(hostnameLen)
	e.RealHostname[1] = c.getString(hostnameLen)
	e.DisplayName = c.getString(displayNameLen)
	e.ToggleString = c.getString(toggleStringLen)
	e.ProxyName = c.getString(proxyNameLen)
	e.TogglePosition = TogglePosition(c.getUint8())
	e.OriginalTogglePosition = TogglePosition(c.getUint8())
	e.AutoToggle = c.getBool()
	e.ProtocolFlags = ProtocolBits(c.getUint32())
	e.DirectionFlags = DirectionBits(c.getUint32())
	e.TotalFileCounter = c.getInt64()
	e.TotalFileSize = c.getInt64()
	e.FileCounterDone = c.getInt64()
	e.BytesSent = c.getInt64()
	e.Connections = c.getInt64()
	e.JobsQueued = c.getInt32()
	e.ActiveTransfers = c.getInt32()
	e.AllowedTransfers = c.getInt32()
	e.ErrorCounter = c.getInt32()
	e.TotalErrors = c.getInt64()
	e.MaxErrors = c.getInt32()
	e.RetryInterval = c.getInt32()
	e.BlockSize = c.getInt32()
	e.LastRetryTimeUnix = c.getInt64()
	e.LastConnectionUnix = c.getInt64()
	e.TransferTimeout = c.getInt32()
	e.SuccessfulRetries = c.getInt32()
	e.MaxSuccessfulRetries = c.getInt32()
	e.HostStatus = HostStatusBits(c.getUint32())
	e.SpecialFlag = c.getUint8()
	for i := 0; i < MaxNoParallelJobs; i++ {
		e.JobSlots[i] = decodeJobSlot(c)
	}
	return e
}

func encodeJobSlot(c *cursor, s JobSlot) {
	c.putInt32(s.Pid)
	c.putUint8(uint8(s.ConnectStatus))
	c.putInt32(s.NoOfFiles)
	c.putInt32(s.NoOfFilesDone)
	c.putInt64(s.FileSize)
	c.putInt64(s.FileSizeDone)
	c.putInt64(s.BytesSent)
	c.putString(s.FileNameInUse, fileNameLen)
	c.putInt64(s.FileSizeInUse)
	c.putInt64(s.FileSizeInUseDone)
	c.putString(s.UniqueName, uniqueNameLen)
	c.putInt32(s.BurstCounter)
	c.putString(s.JobID, jobIDHexLen)
	c.putBool(s.ErrorFile)
}

func decodeJobSlot(c *cursor) JobSlot {
	var s JobSlot
	s.Pid = c.getInt32()
	s.ConnectStatus = ConnectStatus(c.getUint8())
	s.NoOfFiles = c.getInt32()
	s.NoOfFilesDone = c.getInt32()
	s.FileSize = c.getInt64()
	s.FileSizeDone = c.getInt64()
	s.BytesSent = c.getInt64()
	s.FileNameInUse = c.getString(fileNameLen)
	s.FileSizeInUse = c.getInt64()
	s.FileSizeInUseDone = c.getInt64()
	s.UniqueName = c.getString(uniqueNameLen)
	s.BurstCounter = c.getInt32()
	s.JobID = c.getString(jobIDHexLen)
	s.ErrorFile = c.getBool()
	return s
}

// FSA is the attached Filetransfer Status Area.
type FSA struct {
	h *Handle
}

// OpenFSA attaches the current FSA generation.
func OpenFSA(workDir string) (*FSA, error) {
	h, err := Attach(workDir, KindFSA)
	if err != nil {
		return nil, err
	}
	return &FSA{h: h}, nil
}

// CreateFSA creates a brand-new FSA generation with room for n hosts.
func CreateFSA(workDir, id string, n int) (*FSA, error) {
	h, err := Create(workDir, KindFSA, id, HeaderSize+n*hostEntrySize)
	if err != nil {
		return nil, err
	}
	return &FSA{h: h}, nil
}

// Handle returns the underlying shared-area handle (for Detach,
// CheckStale, MarkStale).
func (f *FSA) Handle() *Handle { return f.h }

// NumHosts returns how many HostEntry slots this generation holds.
func (f *FSA) NumHosts() int { return (f.h.size - HeaderSize) / hostEntrySize }

func (f *FSA) entryOffset(i int) int { return HeaderSize + i*hostEntrySize }

// Read returns a snapshot copy of host i. Callers that need a
// consistent multi-field view should RLock the fields they read.
func (f *FSA) Read(i int) HostEntry {
	off := f.entryOffset(i)
	return decodeHostEntry(f.h.bytes()[off : off+hostEntrySize])
}

// Write stores e at host i. Callers must hold the relevant field locks
// for the fields they are changing.
func (f *FSA) Write(i int, e HostEntry) {
	off := f.entryOffset(i)
	encodeHostEntry(f.h.bytes()[off:off+hostEntrySize], e)
}

// Field builds a FieldLock for the named lockable field of host i.
func (f *FSA) Field(i int, field HostField) FieldLock {
	return f.h.Field(int64(f.entryOffset(i) + field.offset()))
}

// HostField names one of the lockable fields of a HostEntry.
type HostField int

const (
	FieldTogglePosition HostField = iota
	FieldTotalFileCounter
	FieldTotalFileSize
	FieldFileCounterDone
	FieldConnections
	FieldJobsQueued
	FieldActiveTransfers
	FieldAllowedTransfers
	FieldErrorCounter
	FieldLastRetryTime
	FieldLastConnection
	FieldHostStatus
	FieldSpecialFlag
	FieldJobSlots
)

func (hf HostField) offset() int {
	switch hf {
	case FieldTogglePosition:
		return offTogglePosition
	case FieldTotalFileCounter:
		return offTotalFileCounter
	case FieldTotalFileSize:
		return offTotalFileSize
	case FieldFileCounterDone:
		return offFileCounterDone
	case FieldConnections:
		return offConnections
	case FieldJobsQueued:
		return offJobsQueued
	case FieldActiveTransfers:
		return offActiveTransfers
	case FieldAllowedTransfers:
		return offAllowedTransfers
	case FieldErrorCounter:
		return offErrorCounter
	case FieldLastRetryTime:
		return offLastRetryTime
	case FieldLastConnection:
		return offLastConnection
	case FieldHostStatus:
		return offHostStatus
	case FieldSpecialFlag:
		return offSpecialFlag
	case FieldJobSlots:
		return offJobSlots
	default:
		panic("shm: unknown HostField")
	}
}

// ClaimJobSlot finds the first JobSlot in entry i with ConnectStatus
// Disconnect, fills it with s, and writes the entry back, all under
// the JobSlots field lock. It returns the claimed index, or ok=false
// if every slot is already in use (the caller should not have
// dispatched past active_transfers/allowed_transfers in that case).
func (f *FSA) ClaimJobSlot(i int, s JobSlot) (slot int, ok bool, err error) {
	err = f.Field(i, FieldJobSlots).WithLock(func() error {
		e := f.Read(i)
		for idx := range e.JobSlots {
			if e.JobSlots[idx].ConnectStatus == Disconnect {
				e.JobSlots[idx] = s
				f.Write(i, e)
				slot, ok = idx, true
				return nil
			}
		}
		return nil
	})
	return slot, ok, err
}

// ReleaseJobSlot resets entry i's JobSlot at idx to its zero value
// (ConnectStatus Disconnect), under the JobSlots field lock.
func (f *FSA) ReleaseJobSlot(i, idx int) error {
	return f.Field(i, FieldJobSlots).WithLock(func() error {
		e := f.Read(i)
		if idx < 0 || idx >= len(e.JobSlots) {
			return fmt.Errorf("shm: release_job_slot: index %d out of range", idx)
		}
		e.JobSlots[idx] = JobSlot{}
		f.Write(i, e)
		return nil
	})
}

// AddFileCounter applies a delta to total_file_counter under its field
// lock, re-reading, applying, and clamping per spec section 4.1: the
// counter must never go negative; an underflowing mutation clamps to 0
// and the caller should emit an informational event.
func (f *FSA) AddFileCounter(i int, delta int64) (clamped bool, err error) {
	lock := f.Field(i, FieldTotalFileCounter)
	err = lock.WithLock(func() error {
		off := f.entryOffset(i) + offTotalFileCounter
		buf := f.h.bytes()
		cur := newCursor(buf[off:]).getInt64()
		next := cur + delta
		if next < 0 {
			next = 0
			clamped = true
		}
		newCursor(buf[off:]).putInt64(next)
		return nil
	})
	return clamped, err
}
