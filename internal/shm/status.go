package shm

// ComponentState is one of ON/OFF/SHUTDOWN/STOPPED (spec section 3).
type ComponentState byte

const (
	ComponentOff ComponentState = iota
	ComponentOn
	ComponentShutdown
	ComponentStopped
)

// NumComponents is the number of supervised component slots AfdStatus
// and AfdActive both track, in the fixed order spec section 4.6's
// ChildSpec table iterates.
const NumComponents = 8

// NumLogChannels is the number of log fifos spec section 6 names:
// system, receive, transfer, trans_db.
const NumLogChannels = 4

// LogLevelFifoDepth is the rolling log-level fifo length per channel.
const LogLevelFifoDepth = 5

// HistoryRingDepth is the per-log-channel history ring length.
const HistoryRingDepth = 48

// AfdStatus is the fixed-layout record embedded in the afd.status
// mapping (spec section 3).
type AfdStatus struct {
	ComponentState [NumComponents]ComponentState

	LogLevelFifo [NumLogChannels][LogLevelFifoDepth]byte
	History      [NumLogChannels][HistoryRingDepth]byte

	ForkCounter          int32
	BurstCounter         int32 // global burst2_counter (spec section 4.4)
	QueueLengthHighWater int32
	DirectoryScanCount   int32

	NoOfTransfers int32
	JobsInQueue   int32
	StartTimeUnix int64
}

const (
	offComponentState = 0
	offLogLevelFifo    = offComponentState + NumComponents
	offHistory         = offLogLevelFifo + NumLogChannels*LogLevelFifoDepth
	offForkCounter     = offHistory + NumLogChannels*HistoryRingDepth
	offBurstCounter    = offForkCounter + 4
	offQueueHighWater  = offBurstCounter + 4 // lockable
	offDirScanCount    = offQueueHighWater + 4
	offNoOfTransfers   = offDirScanCount + 4
	offJobsInQueue     = offNoOfTransfers + 4 // lockable
	offStartTime       = offJobsInQueue + 4

	statusRecordSize = offStartTime + 8
)

func encodeAfdStatus(buf []byte, s AfdStatus) {
	c := newCursor(buf)
	for i := 0; i < NumComponents; i++ {
		c.putUint8(uint8(s.ComponentState[i]))
	}
	for ch := 0; ch < NumLogChannels; ch++ {
		for i := 0; i < LogLevelFifoDepth; i++ {
			c.putUint8(s.LogLevelFifo[ch][i])
		}
	}
	for ch := 0; ch < NumLogChannels; ch++ {
		for i := 0; i < HistoryRingDepth; i++ {
			c.putUint8(s.History[ch][i])
		}
	}
	c.putInt32(s.ForkCounter)
	c.putInt32(s.BurstCounter)
	c.putInt32(s.QueueLengthHighWater)
	c.putInt32(s.DirectoryScanCount)
	c.putInt32(s.NoOfTransfers)
	c.putInt32(s.JobsInQueue)
	c.putInt64(s.StartTimeUnix)
}

func decodeAfdStatus(buf []byte) AfdStatus {
	c := newCursor(buf)
	var s AfdStatus
	for i := 0; i < NumComponents; i++ {
		s.ComponentState[i] = ComponentState(c.getUint8())
	}
	for ch := 0; ch < NumLogChannels; ch++ {
		for i := 0; i < LogLevelFifoDepth; i++ {
			s.LogLevelFifo[ch][i] = c.getUint8()
		}
	}
	for ch := 0; ch < NumLogChannels; ch++ {
		for i := 0; i < HistoryRingDepth; i++ {
			s.History[ch][i] = c.getUint8()
		}
	}
	s.ForkCounter = c.getInt32()
	s.BurstCounter = c.getInt32()
	s.QueueLengthHighWater = c.getInt32()
	s.DirectoryScanCount = c.getInt32()
	s.NoOfTransfers = c.getInt32()
	s.JobsInQueue = c.getInt32()
	s.StartTimeUnix = c.getInt64()
	return s
}

// Status is the attached AfdStatus area (a single record, no array).
type Status struct {
	h *Handle
}

// OpenStatus attaches the current AfdStatus generation.
func OpenStatus(workDir string) (*Status, error) {
	h, err := Attach(workDir, KindStatus)
	if err != nil {
		return nil, err
	}
	return &Status{h: h}, nil
}

// CreateStatus creates a brand-new AfdStatus generation.
func CreateStatus(workDir, id string) (*Status, error) {
	h, err := Create(workDir, KindStatus, id, HeaderSize+statusRecordSize)
	if err != nil {
		return nil, err
	}
	return &Status{h: h}, nil
}

func (s *Status) Handle() *Handle { return s.h }

func (s *Status) Read() AfdStatus {
	return decodeAfdStatus(s.h.bytes()[HeaderSize : HeaderSize+statusRecordSize])
}

func (s *Status) Write(v AfdStatus) {
	encodeAfdStatus(s.h.bytes()[HeaderSize:HeaderSize+statusRecordSize], v)
}

// StatusField names a lockable field of AfdStatus.
type StatusField int

const (
	StatusFieldJobsInQueue StatusField = iota
	StatusFieldQueueHighWater
)

func (sf StatusField) offset() int {
	switch sf {
	case StatusFieldJobsInQueue:
		return offJobsInQueue
	case StatusFieldQueueHighWater:
		return offQueueHighWater
	default:
		panic("shm: unknown StatusField")
	}
}

func (s *Status) Field(field StatusField) FieldLock {
	return s.h.Field(int64(HeaderSize + field.offset()))
}
