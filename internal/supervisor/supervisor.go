// Package supervisor implements the AFD supervisor (C6) of spec
// section 4.6: single writer of AfdActive, owner of the heartbeat,
// parent of every component, and enforcer of shutdown.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/iguanesolutions/go-systemd/v5/notify"
	"github.com/sirupsen/logrus"

	"github.com/afdcore/afd/internal/afdlog"
	"github.com/afdcore/afd/internal/fd/health"
	"github.com/afdcore/afd/internal/shm"
	"github.com/afdcore/afd/lib/atexit"
)

// Tunable defaults named by spec section 4.6 but left to deployment
// configuration there. Vars, not consts, so tests can shrink them.
var (
	AfdRescanTime   = 10 * time.Second
	MaxShutdownTime = 30 * time.Second
)

// NoOfSavedCoreFiles bounds how many renamed core dumps accumulate per
// child, per spec section 4.6.
const NoOfSavedCoreFiles = 10

// Supervisor owns AfdActive, AfdStatus, the FSA health tick, and every
// child process.
type Supervisor struct {
	workDir  string
	children []ChildSpec
	log      *afdlog.Logger

	active *shm.Active
	status *shm.Status
	fsa    *shm.FSA

	health      health.Thresholds
	errorAction health.ErrorActionFunc

	cmdFifo *os.File

	mu    sync.Mutex
	procs map[string]*exec.Cmd // child name -> running process

	shuttingDown bool
	amgStopped   bool
}

// New constructs a Supervisor. Startup must be called before Run.
func New(workDir string, children []ChildSpec, th health.Thresholds, errorAction health.ErrorActionFunc, log *afdlog.Logger) *Supervisor {
	if errorAction == nil {
		errorAction = func(string, string) {}
	}
	return &Supervisor{
		workDir:     workDir,
		children:    children,
		log:         log,
		health:      th,
		errorAction: errorAction,
		procs:       make(map[string]*exec.Cmd),
	}
}

// Status returns the AfdStatus area created by Startup, or nil before
// Startup has run.
func (s *Supervisor) Status() *shm.Status { return s.status }

// FSA returns the FSA area opened by Startup, or nil if HOST_CONFIG
// has not been loaded yet.
func (s *Supervisor) FSA() *shm.FSA { return s.fsa }

// CheckHeartbeat implements check_afd_heartbeat(wait): if AfdActive
// exists and its heartbeat word advances within wait, another
// supervisor is already running this working directory.
func CheckHeartbeat(workDir string, wait time.Duration) (running bool, err error) {
	active, err := shm.OpenActive(workDir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer active.Close()

	first := active.Heartbeat()
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		if active.Heartbeat() != first {
			return true, nil
		}
	}
	return false, nil
}

// Startup runs the fixed eight-step sequence of spec section 4.6.
func (s *Supervisor) Startup() error {
	// Step 1/2: resolve and create the working directory tree.
	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		return fmt.Errorf("supervisor: working directory: %w", err)
	}
	for _, sub := range requiredSubdirs {
		if err := os.MkdirAll(filepath.Join(s.workDir, sub), 0o755); err != nil {
			return fmt.Errorf("supervisor: creating %s: %w", sub, err)
		}
	}

	// Step 3: refuse to start alongside a live supervisor.
	running, err := CheckHeartbeat(s.workDir, 2*time.Second)
	if err != nil {
		return fmt.Errorf("supervisor: check_afd_heartbeat: %w", err)
	}
	if running {
		return fmt.Errorf("supervisor: another instance is already running in %s", s.workDir)
	}

	// Step 4: truncate and map AfdActive.
	active, err := shm.CreateActive(s.workDir)
	if err != nil {
		return fmt.Errorf("supervisor: creating AfdActive: %w", err)
	}
	s.active = active

	status, err := shm.CreateStatus(s.workDir, "1")
	if err != nil {
		return fmt.Errorf("supervisor: creating AfdStatus: %w", err)
	}
	s.status = status
	st := s.status.Read()
	st.StartTimeUnix = time.Now().Unix()
	s.status.Write(st)

	// FSA is created by the configuration-reload path (HOST_CONFIG
	// load), which may not have run yet on a first start; the health
	// tick simply skips itself until it appears.
	if fsa, err := shm.OpenFSA(s.workDir); err == nil {
		s.fsa = fsa
	} else {
		s.log.Info("FSA not yet available, health tick deferred", logrus.Fields{"err": err.Error()})
	}

	// Step 5: open (creating if missing) the system log fifo.
	logFifo, err := openFifo(systemLogFifoPath(s.workDir))
	if err != nil {
		return fmt.Errorf("supervisor: opening system_log fifo: %w", err)
	}
	logFifo.Close()

	cmdFifo, err := openFifo(afdCmdFifoPath(s.workDir))
	if err != nil {
		return fmt.Errorf("supervisor: opening afd_cmd fifo: %w", err)
	}
	s.cmdFifo = cmdFifo

	// Step 6: atexit handler killing every child, syslog child last.
	atexit.Register(s.killAll)

	// Step 7: INT/TERM clean exit, SEGV/BUS abort-with-message, HUP
	// ignore. Go cannot catch SEGV/BUS meaningfully (they are runtime
	// faults, not recoverable signals here); INT/TERM trigger a clean
	// shutdown and HUP is explicitly ignored per the spec.
	atexit.IgnoreSIGHUP()
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		s.log.Info("received shutdown signal", logrus.Fields{"signal": sig.String()})
		s.Shutdown(context.Background())
	}()

	// Step 8: fork children in fixed order.
	for _, c := range s.children {
		if err := s.startChild(c); err != nil {
			return fmt.Errorf("supervisor: starting %s: %w", c.Name, err)
		}
	}

	// Optional: only meaningful under systemd (NOTIFY_SOCKET set); a
	// no-op everywhere else.
	if err := notify.Ready(); err != nil {
		s.log.Debug("systemd notify unavailable", logrus.Fields{"err": err.Error()})
	}

	return nil
}

func (s *Supervisor) startChild(c ChildSpec) error {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	s.mu.Lock()
	s.procs[c.Name] = cmd
	s.mu.Unlock()

	s.active.SetPID(c.StatusSlot, int32(cmd.Process.Pid))

	st := s.status.Read()
	st.ComponentState[c.StatusSlot] = shm.ComponentOn
	st.ForkCounter++
	s.status.Write(st)
	return nil
}

// killAll terminates every running child, the syslog child last, per
// the atexit contract of spec section 4.6 step 6.
func (s *Supervisor) killAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var syslogCmd *exec.Cmd
	for name, cmd := range s.procs {
		if name == "system_log" {
			syslogCmd = cmd
			continue
		}
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
	if syslogCmd != nil {
		_ = syslogCmd.Process.Signal(syscall.SIGTERM)
	}
}
