package atexit

import (
	"runtime"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSignal struct{}

func (*fakeSignal) String() string { return "fake" }
func (*fakeSignal) Signal()        {}

func TestExitCode(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "plan9" {
		t.Skip("syscall.Signal semantics differ on this platform")
	}
	assert.Equal(t, 128+2, exitCode(syscall.SIGINT))
	assert.Equal(t, 128+9, exitCode(syscall.SIGKILL))
	assert.Equal(t, 1, exitCode(&fakeSignal{}))
}

func TestRegisterRunsEveryHandlerOnce(t *testing.T) {
	mu.Lock()
	handlers = nil
	once = sync.Once{}
	mu.Unlock()

	var calls int
	Register(func() { calls++ })
	Register(func() { calls++ })

	Run()
	Run()

	assert.Equal(t, 2, calls)
}
