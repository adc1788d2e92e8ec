package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/afdcore/afd/internal/afdlog"
	"github.com/afdcore/afd/internal/fd/health"
)

func TestCheckHeartbeatFalseWhenNoActiveFile(t *testing.T) {
	dir := t.TempDir()
	running, err := CheckHeartbeat(dir, 50*time.Millisecond)
	require.NoError(t, err)
	require.False(t, running)
}

func TestStartupCreatesRequiredDirectories(t *testing.T) {
	dir := t.TempDir()
	log := afdlog.NewStderr(afdlog.ChannelSystem)
	s := New(dir, nil, health.Thresholds{}, nil, log)

	require.NoError(t, s.Startup())
	defer s.active.Close()

	for _, sub := range requiredSubdirs {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
	require.FileExists(t, filepath.Join(dir, "fifodir", "afd_active"))
}

func TestRunIncrementsHeartbeatAndExitsOnShutdownByte(t *testing.T) {
	dir := t.TempDir()
	log := afdlog.NewStderr(afdlog.ChannelSystem)
	s := New(dir, nil, health.Thresholds{}, nil, log)
	require.NoError(t, s.Startup())
	defer s.active.Close()

	oldRescan := AfdRescanTime
	AfdRescanTime = 10 * time.Millisecond
	defer func() { AfdRescanTime = oldRescan }()

	first := s.active.Heartbeat()
	s.active.SetShutdown(true)

	done := make(chan struct{})
	go func() {
		_ = s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit on shutdown byte")
	}

	require.Greater(t, s.active.Heartbeat(), first)
}

func TestStartChildRestartsOnExitCodeTwo(t *testing.T) {
	dir := t.TempDir()
	log := afdlog.NewStderr(afdlog.ChannelSystem)
	children := []ChildSpec{
		{Name: "flaky", Path: "/bin/sh", Args: []string{"-c", "sleep 0.2; exit 2"}, RestartClass: RestartNormal, StatusSlot: 0},
	}
	s := New(dir, children, health.Thresholds{}, nil, log)
	require.NoError(t, s.Startup())
	defer s.active.Close()
	t.Cleanup(s.killAll)

	s.mu.Lock()
	firstPID := s.procs["flaky"].Process.Pid
	s.mu.Unlock()

	deadline := time.Now().Add(3 * time.Second)
	restarted := false
	for time.Now().Before(deadline) {
		s.reapChildren()
		s.mu.Lock()
		cmd, ok := s.procs["flaky"]
		s.mu.Unlock()
		if ok && cmd.Process.Pid != firstPID {
			restarted = true
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	require.True(t, restarted, "expected the child to be restarted with a new PID after exiting with code 2")
}
