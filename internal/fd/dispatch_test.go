package fd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/afdcore/afd/internal/afderr"
	"github.com/afdcore/afd/internal/afdlog"
	"github.com/afdcore/afd/internal/catalog"
	"github.com/afdcore/afd/internal/fd/driver"
	"github.com/afdcore/afd/internal/shm"
)

func testDispatcher(t *testing.T, resolve FileResolver) (*Dispatcher, *shm.FSA, func()) {
	t.Helper()
	dir := t.TempDir()
	fsa, err := shm.CreateFSA(dir, "1", 1)
	require.NoError(t, err)

	fsa.Write(0, shm.HostEntry{
		Alias:            "host1",
		RealHostname:     [2]string{"loc://" + filepath.Join(dir, "dest"), ""},
		ProtocolFlags:    shm.ProtoLOC,
		AllowedTransfers: 3,
		MaxErrors:        5,
	})

	cat, err := catalog.Open(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)

	registry := driver.NewRegistry()
	registry.Register("loc", driver.NewLoc())

	logger := afdlog.NewStderr(afdlog.ChannelTransfer)

	q := NewQueue()
	d := NewDispatcher(fsa, q, cat, registry, resolve, logger)

	cleanup := func() {
		cat.Close()
		fsa.Handle().Detach()
	}
	return d, fsa, cleanup
}

// TestDispatchOnceScenarioS1 mirrors spec scenario S1: a single
// eligible entry is dispatched, and file_counter_done/connections
// advance while the entry leaves the queue.
func TestDispatchOnceScenarioS1(t *testing.T) {
	srcDir := t.TempDir()
	srcFile := filepath.Join(srcDir, "a.txt")
	require.NoError(t, os.WriteFile(srcFile, []byte("hello"), 0o644))

	d, fsa, cleanup := testDispatcher(t, func(e *Entry) ([]string, string, error) {
		return []string{srcFile}, "", nil
	})
	defer cleanup()

	_, err := d.queue.Enqueue("5_1700000000_00001_deadbeefdeadbeef", "host1")
	require.NoError(t, err)

	n, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	host := fsa.Read(0)
	require.Equal(t, int64(1), host.FileCounterDone)
	require.Equal(t, int64(1), host.Connections)
	require.Equal(t, 0, d.queue.Len())
}

// TestDispatchOnceBoundaryB1 is boundary behavior B1.
func TestDispatchOnceBoundaryB1(t *testing.T) {
	d, _, cleanup := testDispatcher(t, nil)
	defer cleanup()

	n, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

// TestDispatchSkipsIneligibleHost verifies a host with PAUSE_QUEUE set
// is never dispatched to.
func TestDispatchSkipsIneligibleHost(t *testing.T) {
	d, fsa, cleanup := testDispatcher(t, func(e *Entry) ([]string, string, error) {
		return nil, "", nil
	})
	defer cleanup()

	host := fsa.Read(0)
	host.HostStatus = shm.PauseQueue
	fsa.Write(0, host)
	d.RefreshHosts()

	_, err := d.queue.Enqueue("5_1700000000_00001_deadbeefdeadbeef", "host1")
	require.NoError(t, err)

	n, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, 1, d.queue.Len())
}

// TestDispatchFailureIncrementsErrorCounter exercises the failure path
// of spec section 4.4: a resolver error increments error_counter and
// leaves the entry queued for retry.
func TestDispatchFailureIncrementsErrorCounter(t *testing.T) {
	d, fsa, cleanup := testDispatcher(t, func(e *Entry) ([]string, string, error) {
		return nil, "", context.DeadlineExceeded
	})
	defer cleanup()

	_, err := d.queue.Enqueue("5_1700000000_00001_deadbeefdeadbeef", "host1")
	require.NoError(t, err)

	n, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	host := fsa.Read(0)
	require.Equal(t, int32(1), host.ErrorCounter)
	require.Equal(t, 1, d.queue.Len())
}

// TestDispatchFailureFlipsToggleOnThreshold mirrors spec scenario S3:
// with auto_toggle on and max_errors crossed, the next dispatch uses
// the other real_hostname.
func TestDispatchFailureFlipsToggleOnThreshold(t *testing.T) {
	d, fsa, cleanup := testDispatcher(t, func(e *Entry) ([]string, string, error) {
		return nil, "", context.DeadlineExceeded
	})
	defer cleanup()

	host := fsa.Read(0)
	host.AutoToggle = true
	host.MaxErrors = 1
	host.TogglePosition = shm.HostOne
	fsa.Write(0, host)

	_, err := d.queue.Enqueue("5_1700000000_00001_deadbeefdeadbeef", "host1")
	require.NoError(t, err)

	n, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got := fsa.Read(0)
	require.Equal(t, shm.HostTwo, got.TogglePosition)
}

// TestDispatchStructuralFailureDropsEntry verifies a structural
// resolver error (spec section 7) drops the entry instead of leaving
// it queued for a retry that can never succeed.
func TestDispatchStructuralFailureDropsEntry(t *testing.T) {
	d, fsa, cleanup := testDispatcher(t, func(e *Entry) ([]string, string, error) {
		return nil, "", afderr.New(afderr.KindStructural, os.ErrNotExist)
	})
	defer cleanup()

	_, err := d.queue.Enqueue("5_1700000000_00001_deadbeefdeadbeef", "host1")
	require.NoError(t, err)

	n, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	host := fsa.Read(0)
	require.Equal(t, int32(1), host.ErrorCounter)
	require.Equal(t, 0, d.queue.Len())
}

func TestDeleteJobDecrementsCounters(t *testing.T) {
	d, fsa, cleanup := testDispatcher(t, nil)
	defer cleanup()

	host := fsa.Read(0)
	host.TotalFileCounter = 10
	host.TotalFileSize = 1000
	fsa.Write(0, host)

	_, err := d.queue.Enqueue("5_1700000000_00001_deadbeefdeadbeef", "host1")
	require.NoError(t, err)

	err = d.DeleteJob("5_1700000000_00001_deadbeefdeadbeef", func() (int64, int64, error) {
		return 2, 200, nil
	})
	require.NoError(t, err)

	got := fsa.Read(0)
	require.Equal(t, int64(8), got.TotalFileCounter)
	require.Equal(t, int64(800), got.TotalFileSize)
	require.Equal(t, 0, d.queue.Len())
}

// TestDispatchOnceClaimsAndReleasesJobSlot verifies a successful
// dispatch records and then clears its JobSlot bookkeeping entry.
func TestDispatchOnceClaimsAndReleasesJobSlot(t *testing.T) {
	srcDir := t.TempDir()
	srcFile := filepath.Join(srcDir, "a.txt")
	require.NoError(t, os.WriteFile(srcFile, []byte("hello"), 0o644))

	d, fsa, cleanup := testDispatcher(t, func(e *Entry) ([]string, string, error) {
		return []string{srcFile}, "", nil
	})
	defer cleanup()

	_, err := d.queue.Enqueue("5_1700000000_00001_deadbeefdeadbeef", "host1")
	require.NoError(t, err)

	_, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)

	host := fsa.Read(0)
	for _, slot := range host.JobSlots {
		require.Equal(t, shm.Disconnect, slot.ConnectStatus)
		require.Empty(t, slot.UniqueName)
	}
}
