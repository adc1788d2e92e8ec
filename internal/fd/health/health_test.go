package health

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/afdcore/afd/internal/afdlog"
	"github.com/afdcore/afd/internal/shm"
)

func testFSA(t *testing.T) *shm.FSA {
	t.Helper()
	dir := t.TempDir()
	fsa, err := shm.CreateFSA(dir, "1", 1)
	require.NoError(t, err)
	t.Cleanup(func() { fsa.Handle().Detach() })
	return fsa
}

// TestTickScenarioS2 mirrors spec scenario S2: a host crossing its
// error threshold is auto-paused and error_action("start") fires; once
// errors fall back below the threshold the host resumes and
// error_action("stop") fires.
func TestTickScenarioS2(t *testing.T) {
	fsa := testFSA(t)
	fsa.Write(0, shm.HostEntry{Alias: "host1", ErrorCounter: 5, MaxErrors: 5})

	var actions []string
	errorAction := func(alias, action string) { actions = append(actions, alias+":"+action) }
	log := afdlog.NewStderr(afdlog.ChannelTransfer)

	require.NoError(t, Tick(fsa, Thresholds{}, errorAction, log))

	host := fsa.Read(0)
	require.True(t, host.HostStatus.Has(shm.AutoPauseQueue))
	require.Equal(t, []string{"host1:start"}, actions)

	// Errors drop back below threshold: rule 2 resumes the host.
	host.ErrorCounter = 0
	fsa.Write(0, host)
	require.NoError(t, Tick(fsa, Thresholds{}, errorAction, log))

	host = fsa.Read(0)
	require.False(t, host.HostStatus.Has(shm.AutoPauseQueue))
	require.Equal(t, []string{"host1:start", "host1:stop"}, actions)
}

// TestTickIdempotent verifies a tick that observes no state change
// emits no events, per spec section 4.5.
func TestTickIdempotent(t *testing.T) {
	fsa := testFSA(t)
	fsa.Write(0, shm.HostEntry{Alias: "host1", ErrorCounter: 1, MaxErrors: 5})

	var actions []string
	errorAction := func(alias, action string) { actions = append(actions, alias+":"+action) }
	log := afdlog.NewStderr(afdlog.ChannelTransfer)

	require.NoError(t, Tick(fsa, Thresholds{}, errorAction, log))
	require.NoError(t, Tick(fsa, Thresholds{}, errorAction, log))
	require.NoError(t, Tick(fsa, Thresholds{}, errorAction, log))

	require.Empty(t, actions)
}

// TestTickRuleThreeDangerPause exercises the queue-saturation
// back-pressure rule.
func TestTickRuleThreeDangerPause(t *testing.T) {
	fsa := testFSA(t)
	fsa.Write(0, shm.HostEntry{Alias: "host1", MaxErrors: 5, TotalFileCounter: 100})

	log := afdlog.NewStderr(afdlog.ChannelTransfer)
	th := Thresholds{LinkMax: 10, JobsInQueue: 5, DangerNoFiles: 50}

	require.NoError(t, Tick(fsa, th, nil, log))
	require.True(t, fsa.Read(0).HostStatus.Has(shm.DangerPauseQueue))

	// Draining below the threshold clears the bit again.
	host := fsa.Read(0)
	host.TotalFileCounter = 10
	fsa.Write(0, host)
	require.NoError(t, Tick(fsa, th, nil, log))
	require.False(t, fsa.Read(0).HostStatus.Has(shm.DangerPauseQueue))
}

// TestTickRuleFourClearsLockWhenDrained exercises rule 4: a fully
// drained host self-clears AUTO_PAUSE_QUEUE_LOCK.
func TestTickRuleFourClearsLockWhenDrained(t *testing.T) {
	fsa := testFSA(t)
	fsa.Write(0, shm.HostEntry{
		Alias:            "host1",
		MaxErrors:        5,
		TotalFileCounter: 0,
		HostStatus:       shm.AutoPauseQueueLock,
	})

	log := afdlog.NewStderr(afdlog.ChannelTransfer)
	require.NoError(t, Tick(fsa, Thresholds{}, nil, log))
	require.False(t, fsa.Read(0).HostStatus.Has(shm.AutoPauseQueueLock))
}

func TestSignPicksOfflineOverInfo(t *testing.T) {
	require.Equal(t, afdlog.SignOffline, Sign(shm.HostEntry{HostStatus: shm.HostErrorOffline}))
	require.Equal(t, afdlog.SignInfo, Sign(shm.HostEntry{}))
}
