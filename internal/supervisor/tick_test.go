package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/afdcore/afd/internal/afdlog"
	"github.com/afdcore/afd/internal/fd/health"
)

// backPressureThresholds returns a small Thresholds set chosen so a
// handful of sub-directories is enough to cross both boundaries:
// stopAt = LinkMax-StopAmgThreshold-DirsInFileDir = 7,
// startAt = LinkMax-StartAmgThreshold = 6.
func backPressureThresholds() health.Thresholds {
	return health.Thresholds{
		LinkMax: 10, StopAmgThreshold: 2, DirsInFileDir: 1, StartAmgThreshold: 4,
	}
}

func mkOutgoingSubdirs(t *testing.T, dir string, n int) {
	t.Helper()
	out := outgoingDir(dir)
	require.NoError(t, os.RemoveAll(out))
	require.NoError(t, os.MkdirAll(out, 0o755))
	for i := 0; i < n; i++ {
		require.NoError(t, os.Mkdir(filepath.Join(out, "msg"+string(rune('a'+i))), 0o755))
	}
}

// holdAmgFifoOpen keeps one descriptor on amg_cmd.fifo open for the
// rest of the test. A named pipe discards its buffered bytes once no
// descriptor refers to it, so without this the byte sendAmgCommand
// writes is gone before readAmgFifoByte opens the fifo.
func holdAmgFifoOpen(t *testing.T, workDir string) {
	t.Helper()
	f, err := openFifo(amgCmdFifoPath(workDir))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
}

func readAmgFifoByte(t *testing.T, workDir string) (byte, bool) {
	t.Helper()
	f, err := openFifo(amgCmdFifoPath(workDir))
	require.NoError(t, err)
	defer f.Close()
	var buf [1]byte
	n, _ := f.Read(buf[:])
	return buf[0], n == 1
}

// TestApplyBackPressureStopsAtThreshold mirrors spec scenario S4 and
// boundary B3's stop side: once the outgoing directory's link count
// reaches LinkMax-StopAmgThreshold-DirsInFileDir, STOP is sent to the
// message-generator within one tick.
func TestApplyBackPressureStopsAtThreshold(t *testing.T) {
	dir := t.TempDir()
	log := afdlog.NewStderr(afdlog.ChannelSystem)
	s := New(dir, nil, backPressureThresholds(), nil, log)
	require.NoError(t, s.Startup())
	defer s.active.Close()
	holdAmgFifoOpen(t, dir)

	// 5 sub-directories -> Nlink == 7 == stopAt exactly (B3).
	mkOutgoingSubdirs(t, dir, 5)

	s.applyBackPressure()

	require.True(t, s.amgStopped)
	b, ok := readAmgFifoByte(t, dir)
	require.True(t, ok)
	require.Equal(t, amgCmdStop, b)
}

// TestApplyBackPressureRestartsBelowThreshold mirrors S4's restart
// half: once the link count drops back below LinkMax-StartAmgThreshold,
// START is sent and amgStopped clears.
func TestApplyBackPressureRestartsBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	log := afdlog.NewStderr(afdlog.ChannelSystem)
	s := New(dir, nil, backPressureThresholds(), nil, log)
	require.NoError(t, s.Startup())
	defer s.active.Close()
	holdAmgFifoOpen(t, dir)

	mkOutgoingSubdirs(t, dir, 5)
	s.applyBackPressure()
	require.True(t, s.amgStopped)
	_, _ = readAmgFifoByte(t, dir) // drain the STOP byte

	// Drop to Nlink == 5, strictly below startAt == 6.
	mkOutgoingSubdirs(t, dir, 3)
	s.applyBackPressure()

	require.False(t, s.amgStopped)
	b, ok := readAmgFifoByte(t, dir)
	require.True(t, ok)
	require.Equal(t, amgCmdStart, b)
}

// TestApplyBackPressureStaysStoppedOneBelowStart is boundary B3's
// middle case: one above the strict restart threshold, the generator
// remains stopped.
func TestApplyBackPressureStaysStoppedAtStartThreshold(t *testing.T) {
	dir := t.TempDir()
	log := afdlog.NewStderr(afdlog.ChannelSystem)
	s := New(dir, nil, backPressureThresholds(), nil, log)
	require.NoError(t, s.Startup())
	defer s.active.Close()
	holdAmgFifoOpen(t, dir)

	mkOutgoingSubdirs(t, dir, 5)
	s.applyBackPressure()
	require.True(t, s.amgStopped)
	_, _ = readAmgFifoByte(t, dir)

	// Nlink == 6 == startAt exactly: "drops below" is strict, so this
	// still counts as stopped.
	mkOutgoingSubdirs(t, dir, 4)
	s.applyBackPressure()

	require.True(t, s.amgStopped)
	_, ok := readAmgFifoByte(t, dir)
	require.False(t, ok)
}
