package shm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateAttachDetach(t *testing.T) {
	dir := t.TempDir()

	fsa, err := CreateFSA(dir, "1", 2)
	require.NoError(t, err)
	require.Equal(t, 2, fsa.NumHosts())

	fsa2, err := OpenFSA(dir)
	require.NoError(t, err)
	require.Equal(t, 2, fsa2.NumHosts())
	require.NoError(t, fsa2.Handle().Detach())
	require.NoError(t, fsa.Handle().Detach())
}

func TestIncorrectVersionRejected(t *testing.T) {
	dir := t.TempDir()
	fsa, err := CreateFSA(dir, "1", 1)
	require.NoError(t, err)

	// Corrupt the version byte directly in the mapping.
	fsa.Handle().bytes()[7] = CurrentVersion + 1
	require.NoError(t, fsa.Handle().Detach())

	_, err = OpenFSA(dir)
	require.ErrorIs(t, err, ErrIncorrectVersion)
}

func TestStaleDetachReattach(t *testing.T) {
	dir := t.TempDir()
	fsa, err := CreateFSA(dir, "1", 1)
	require.NoError(t, err)

	// B4: mid-iteration staleness must be observed before the next
	// mutation.
	require.False(t, fsa.Handle().CheckStale())
	fsa.Handle().MarkStale()
	require.True(t, fsa.Handle().CheckStale())
	require.NoError(t, fsa.Handle().Detach())

	// Reattach must fail until a new generation id is published.
	_, err = OpenFSA(dir)
	require.ErrorIs(t, err, ErrAreaUnavailable)

	fsa2, err := CreateFSA(dir, "2", 1)
	require.NoError(t, err)
	require.NoError(t, fsa2.Handle().Detach())

	fsa3, err := OpenFSA(dir)
	require.NoError(t, err)
	require.Equal(t, "2", fsa3.Handle().ID())
	require.NoError(t, fsa3.Handle().Detach())
}

func TestHostEntryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fsa, err := CreateFSA(dir, "1", 3)
	require.NoError(t, err)
	defer fsa.Handle().Detach()

	e := HostEntry{
		Alias:            "host1",
		RealHostname:     [2]string{"h1.example.com", "h1-backup.example.com"},
		ProtocolFlags:    ProtoFTP | ProtoSCP1,
		DirectionFlags:   DirSend,
		AllowedTransfers: 3,
		MaxErrors:        2,
	}
	e.JobSlots[0].FileNameInUse = "report.csv"
	e.JobSlots[0].JobID = "deadbeef"
	fsa.Write(1, e)

	got := fsa.Read(1)
	require.Equal(t, "host1", got.Alias)
	require.Equal(t, [2]string{"h1.example.com", "h1-backup.example.com"}, got.RealHostname)
	require.Equal(t, ProtoFTP|ProtoSCP1, got.ProtocolFlags)
	require.Equal(t, int32(3), got.AllowedTransfers)
	require.Equal(t, "report.csv", got.JobSlots[0].FileNameInUse)
	require.Equal(t, "deadbeef", got.JobSlots[0].JobID)

	// Neighboring entries must be untouched.
	require.Equal(t, "", fsa.Read(0).Alias)
	require.Equal(t, "", fsa.Read(2).Alias)
}

// TestInvariant1 is spec section 8 quantified invariant 1.
func TestInvariant1(t *testing.T) {
	ok := HostEntry{ActiveTransfers: 2, AllowedTransfers: 3}
	require.NoError(t, ok.CheckInvariants())

	bad := HostEntry{ActiveTransfers: 4, AllowedTransfers: 3}
	require.Error(t, bad.CheckInvariants())

	tooMany := HostEntry{ActiveTransfers: 0, AllowedTransfers: MaxNoParallelJobs + 1}
	require.Error(t, tooMany.CheckInvariants())
}

// TestInvariant2 is spec section 8 quantified invariant 2.
func TestInvariant2(t *testing.T) {
	bad := HostEntry{ErrorCounter: 5, MaxErrors: 3}
	require.Error(t, bad.CheckInvariants())

	ok := HostEntry{ErrorCounter: 5, MaxErrors: 3, HostStatus: AutoPauseQueue}
	require.NoError(t, ok.CheckInvariants())

	offline := HostEntry{ErrorCounter: 5, MaxErrors: 3, HostStatus: HostErrorOffline}
	require.NoError(t, offline.CheckInvariants())
}

// TestInvariant3 is spec section 8 quantified invariant 3.
func TestInvariant3(t *testing.T) {
	bad := HostEntry{TotalFileCounter: 0, TotalFileSize: 100}
	require.Error(t, bad.CheckInvariants())

	ok := HostEntry{TotalFileCounter: 0, TotalFileSize: 0}
	require.NoError(t, ok.CheckInvariants())
}

// TestFieldLockRoundTripR3 is round-trip law R3: a counter mutation
// followed by its inverse, with the byte-lock held across both,
// returns the counter to its original value.
func TestFieldLockRoundTripR3(t *testing.T) {
	dir := t.TempDir()
	fsa, err := CreateFSA(dir, "1", 1)
	require.NoError(t, err)
	defer fsa.Handle().Detach()

	fsa.Write(0, HostEntry{Alias: "host1", TotalFileCounter: 10})

	lock := fsa.Field(0, FieldTotalFileCounter)
	require.NoError(t, lock.Lock())
	e := fsa.Read(0)
	e.TotalFileCounter += 5
	fsa.Write(0, e)
	e = fsa.Read(0)
	e.TotalFileCounter -= 5
	fsa.Write(0, e)
	require.NoError(t, lock.Unlock())

	require.Equal(t, int64(10), fsa.Read(0).TotalFileCounter)
}

func TestClaimAndReleaseJobSlot(t *testing.T) {
	dir := t.TempDir()
	fsa, err := CreateFSA(dir, "1", 1)
	require.NoError(t, err)
	defer fsa.Handle().Detach()

	fsa.Write(0, HostEntry{Alias: "host1"})

	idx, ok, err := fsa.ClaimJobSlot(0, JobSlot{ConnectStatus: LOCActive, UniqueName: "abc"})
	require.NoError(t, err)
	require.True(t, ok)

	got := fsa.Read(0)
	require.Equal(t, LOCActive, got.JobSlots[idx].ConnectStatus)
	require.Equal(t, "abc", got.JobSlots[idx].UniqueName)

	require.NoError(t, fsa.ReleaseJobSlot(0, idx))
	got = fsa.Read(0)
	require.Equal(t, Disconnect, got.JobSlots[idx].ConnectStatus)
	require.Empty(t, got.JobSlots[idx].UniqueName)
}

func TestClaimJobSlotNoneFreeReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	fsa, err := CreateFSA(dir, "1", 1)
	require.NoError(t, err)
	defer fsa.Handle().Detach()

	var e HostEntry
	e.Alias = "host1"
	for i := range e.JobSlots {
		e.JobSlots[i].ConnectStatus = LOCActive
	}
	fsa.Write(0, e)

	_, ok, err := fsa.ClaimJobSlot(0, JobSlot{ConnectStatus: SCP1Active})
	require.NoError(t, err)
	require.False(t, ok)
}

// TestToggleRoundTripR4 is round-trip law R4: flipping toggle_position
// twice returns the HostEntry to its original real-hostname selection.
func TestToggleRoundTripR4(t *testing.T) {
	dir := t.TempDir()
	fsa, err := CreateFSA(dir, "1", 1)
	require.NoError(t, err)
	defer fsa.Handle().Detach()

	fsa.Write(0, HostEntry{Alias: "host1", TogglePosition: HostOne})

	flip := func() {
		e := fsa.Read(0)
		if e.TogglePosition == HostOne {
			e.TogglePosition = HostTwo
		} else {
			e.TogglePosition = HostOne
		}
		fsa.Write(0, e)
	}
	flip()
	require.Equal(t, HostTwo, fsa.Read(0).TogglePosition)
	flip()
	require.Equal(t, HostOne, fsa.Read(0).TogglePosition)
}

// TestAddFileCounterClamp exercises the spec section 4.1 underflow
// clamp: a mutation that would go negative sets the value to 0.
func TestAddFileCounterClamp(t *testing.T) {
	dir := t.TempDir()
	fsa, err := CreateFSA(dir, "1", 1)
	require.NoError(t, err)
	defer fsa.Handle().Detach()

	fsa.Write(0, HostEntry{Alias: "host1", TotalFileCounter: 3})

	clamped, err := fsa.AddFileCounter(0, -10)
	require.NoError(t, err)
	require.True(t, clamped)
	require.Equal(t, int64(0), fsa.Read(0).TotalFileCounter)

	clamped, err = fsa.AddFileCounter(0, 7)
	require.NoError(t, err)
	require.False(t, clamped)
	require.Equal(t, int64(7), fsa.Read(0).TotalFileCounter)
}

func TestLockProcExclusivity(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/proc.lock"

	lock, held, err := LockProc(path, ProcAMG, false)
	require.NoError(t, err)
	require.False(t, held)
	require.NotNil(t, lock)

	_, held, err = LockProc(path, ProcAMG, true)
	require.NoError(t, err)
	require.True(t, held)

	// A different class is independent.
	lock2, held, err := LockProc(path, ProcFD, false)
	require.NoError(t, err)
	require.False(t, held)
	require.NoError(t, lock2.Release())

	require.NoError(t, lock.Release())

	_, held, err = LockProc(path, ProcAMG, true)
	require.NoError(t, err)
	require.False(t, held)
}

func TestActiveHeartbeatAndShutdown(t *testing.T) {
	dir := t.TempDir()
	active, err := CreateActive(dir)
	require.NoError(t, err)

	require.Equal(t, uint32(0), active.Heartbeat())
	active.IncrementHeartbeat()
	active.IncrementHeartbeat()
	require.Equal(t, uint32(2), active.Heartbeat())

	active.SetPID(0, 1234)
	require.Equal(t, int32(1234), active.PID(0))

	require.False(t, active.IsShutdown())
	active.SetShutdown(true)
	require.True(t, active.IsShutdown())

	require.NoError(t, active.Close())

	reopened, err := OpenActive(dir)
	require.NoError(t, err)
	require.Equal(t, uint32(2), reopened.Heartbeat())
	require.Equal(t, int32(1234), reopened.PID(0))
	require.True(t, reopened.IsShutdown())
	require.NoError(t, reopened.Close())
}

// TestFRARoundTrip exercises DirEntry encode/decode plus its field
// locks.
func TestFRARoundTrip(t *testing.T) {
	dir := t.TempDir()
	fra, err := CreateFRA(dir, "1", 2)
	require.NoError(t, err)
	defer fra.Handle().Detach()

	fra.Write(0, DirEntry{
		Alias:     "incoming1",
		URL:       "ftp://host/dir",
		HostAlias: "host1",
		Priority:  '5',
		Status:    DirNormal,
		Flags:     FlagRemove | FlagImportantDir,
	})

	got := fra.Read(0)
	require.Equal(t, "incoming1", got.Alias)
	require.Equal(t, byte('5'), got.Priority)
	require.True(t, got.Flags.Has(FlagRemove))
	require.True(t, got.Flags.Has(FlagImportantDir))
	require.False(t, got.Flags.Has(FlagStupidMode))

	lock := fra.Field(0, DirFieldErrorCounter)
	require.NoError(t, lock.Lock())
	e := fra.Read(0)
	e.ErrorCounter++
	fra.Write(0, e)
	require.NoError(t, lock.Unlock())
	require.Equal(t, int32(1), fra.Read(0).ErrorCounter)
}

func TestStatusRoundTrip(t *testing.T) {
	dir := t.TempDir()
	st, err := CreateStatus(dir, "1")
	require.NoError(t, err)
	defer st.Handle().Detach()

	st.Write(AfdStatus{JobsInQueue: 4, NoOfTransfers: 2, StartTimeUnix: 1700000000})
	got := st.Read()
	require.Equal(t, int32(4), got.JobsInQueue)
	require.Equal(t, int32(2), got.NoOfTransfers)
	require.Equal(t, int64(1700000000), got.StartTimeUnix)
}
