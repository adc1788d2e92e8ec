package supervisor

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func exitedStatus(code int) syscall.WaitStatus {
	return syscall.WaitStatus(code << 8)
}

func signaledStatus(sig syscall.Signal) syscall.WaitStatus {
	return syscall.WaitStatus(sig)
}

func TestClassifyWaitStatusStopsOnCodeZero(t *testing.T) {
	o := classifyWaitStatus(exitedStatus(0), RestartNormal)
	require.True(t, o.stopped)
	require.False(t, o.restart)
}

func TestClassifyWaitStatusStopsOnCodeOne(t *testing.T) {
	o := classifyWaitStatus(exitedStatus(1), RestartNormal)
	require.True(t, o.stopped)
	require.False(t, o.restart)
}

func TestClassifyWaitStatusRestartsOnCodeTwoOrThree(t *testing.T) {
	require.True(t, classifyWaitStatus(exitedStatus(2), RestartNormal).restart)
	require.True(t, classifyWaitStatus(exitedStatus(3), RestartNormal).restart)
}

func TestClassifyWaitStatusRestartsOnAnyOtherCode(t *testing.T) {
	require.True(t, classifyWaitStatus(exitedStatus(7), RestartNormal).restart)
}

func TestClassifyWaitStatusSignaledAlwaysRestarts(t *testing.T) {
	o := classifyWaitStatus(signaledStatus(syscall.SIGSEGV), RestartCritical)
	require.True(t, o.restart)
	require.True(t, o.signaled)
	require.Equal(t, syscall.SIGSEGV, o.signal)
}
