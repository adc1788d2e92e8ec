package supervisor

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/afdcore/afd/internal/fd/health"
	"github.com/afdcore/afd/internal/shm"
	"github.com/afdcore/afd/lib/atexit"
)

// Run executes the tick loop of spec section 4.6 until ctx is
// cancelled or Shutdown is called: increment heartbeat, check the
// shared shutdown byte, reap completed children, apply link-count
// back-pressure, run the health state machine, and service the
// command fifo.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(AfdRescanTime)
	defer ticker.Stop()

	lastStatsDay := -1

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.active.IncrementHeartbeat()

			if s.active.IsShutdown() {
				return nil
			}

			s.reapChildren()
			s.applyBackPressure()

			if s.fsa == nil {
				if fsa, err := shm.OpenFSA(s.workDir); err == nil {
					s.fsa = fsa
				}
			}
			if s.fsa != nil {
				if err := health.Tick(s.fsa, s.health, s.errorAction, s.log); err != nil {
					s.log.Error("health tick failed", logrus.Fields{"err": err.Error()})
				}
			}

			s.serviceCmdFifo()

			day := time.Now().YearDay()
			if day != lastStatsDay {
				s.emitDailyStats()
				lastStatsDay = day
			}
		}
	}
}

// reapChildren collects any child that has exited and applies the
// restart policy of spec section 4.6.
func (s *Supervisor) reapChildren() {
	s.mu.Lock()
	names := make([]string, 0, len(s.procs))
	for name := range s.procs {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		s.mu.Lock()
		cmd, ok := s.procs[name]
		s.mu.Unlock()
		if !ok {
			continue
		}

		// Non-blocking waitpid: WNOHANG returns pid 0 while the child
		// is still running, so a live child is never disturbed.
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(cmd.Process.Pid, &ws, syscall.WNOHANG, nil)
		if err != nil || pid == 0 {
			continue
		}
		s.reapOne(name, ws)
	}
}

func (s *Supervisor) reapOne(name string, ws syscall.WaitStatus) {
	var spec ChildSpec
	for _, c := range s.children {
		if c.Name == name {
			spec = c
			break
		}
	}

	outcome := classifyWaitStatus(ws, spec.RestartClass)

	st := s.status.Read()
	switch {
	case outcome.stopped:
		st.ComponentState[spec.StatusSlot] = shm.ComponentStopped
	default:
		st.ComponentState[spec.StatusSlot] = shm.ComponentOff
	}
	s.status.Write(st)

	if outcome.signaled {
		s.log.Error("child terminated by signal", logrus.Fields{
			"child": name, "signal": outcome.signal.String(),
		})
		s.renameCoreFile(name)
	}

	if !outcome.restart {
		s.mu.Lock()
		delete(s.procs, name)
		s.mu.Unlock()
		return
	}

	s.log.Info("restarting child", logrus.Fields{"child": name})
	if err := s.startChild(spec); err != nil {
		s.log.Error("restart failed", logrus.Fields{"child": name, "err": err.Error()})
	}
}

// renameCoreFile renames up to NoOfSavedCoreFiles core dumps for a
// signal-killed child with a timestamp suffix, per spec section 4.6.
func (s *Supervisor) renameCoreFile(name string) {
	core := "core." + name
	if _, err := os.Stat(core); err != nil {
		return
	}
	_ = os.Rename(core, core+"."+time.Now().Format("20060102150405"))
}

// applyBackPressure reads st_nlink of the outgoing directory and
// applies spec section 4.6's global back-pressure: once the link
// count reaches LinkMax-StopAmgThreshold-DirsInFileDir the
// message-generator is sent STOP; once it drops back below
// LinkMax-StartAmgThreshold it is sent START. The transition is
// edge-triggered on amgStopped so a steady-state tick is a no-op.
func (s *Supervisor) applyBackPressure() {
	fi, err := os.Stat(outgoingDir(s.workDir))
	if err != nil {
		return
	}
	st := s.status.Read()
	st.DirectoryScanCount++
	s.status.Write(st)

	stat, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	nlink := int64(stat.Nlink)

	stopAt := s.health.LinkMax - s.health.StopAmgThreshold - s.health.DirsInFileDir
	startAt := s.health.LinkMax - s.health.StartAmgThreshold

	switch {
	case !s.amgStopped && nlink >= stopAt:
		if err := sendAmgCommand(s.workDir, amgCmdStop); err != nil {
			s.log.Warn("sending STOP to message generator", logrus.Fields{"err": err.Error()})
			return
		}
		s.amgStopped = true
		s.log.Info("Have stopped AMG", logrus.Fields{"nlink": nlink, "stop_at": stopAt})
	case s.amgStopped && nlink < startAt:
		if err := sendAmgCommand(s.workDir, amgCmdStart); err != nil {
			s.log.Warn("sending START to message generator", logrus.Fields{"err": err.Error()})
			return
		}
		s.amgStopped = false
		s.log.Info("Have started AMG", logrus.Fields{"nlink": nlink, "start_at": startAt})
	}
}

func outgoingDir(workDir string) string {
	return workDir + "/files/outgoing"
}

// emitDailyStats logs the once-per-day statistics summary of spec
// section 4.6.
func (s *Supervisor) emitDailyStats() {
	st := s.status.Read()
	s.log.Info("daily statistics", logrus.Fields{
		"no_of_transfers": st.NoOfTransfers,
		"jobs_in_queue":   st.JobsInQueue,
		"fork_counter":    st.ForkCounter,
	})
}

// serviceCmdFifo decodes and acts on a single pending command byte, if
// any, per spec section 4.6's tick-loop command contract.
func (s *Supervisor) serviceCmdFifo() {
	cmd, ok, err := readCommand(s.cmdFifo)
	if err != nil || !ok {
		return
	}
	switch cmd {
	case CmdShutdown:
		s.Shutdown(context.Background())
	case CmdIsAlive:
		_ = writeProbeAck(s.workDir)
	case CmdStop, CmdStart, CmdAmgReady, CmdFdReady:
		// The tick loop does not act on these: no single component is
		// stopped or started and no child acknowledgement is recorded;
		// the byte is consumed and dropped.
	}
}

// Shutdown implements spec section 4.6's shutdown path: mark every
// component SHUTDOWN, wait up to MaxShutdownTime for AMG and FD to
// drain, then kill the rest and unlink AfdActive.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return nil
	}
	s.shuttingDown = true
	s.mu.Unlock()

	st := s.status.Read()
	for i := range st.ComponentState {
		st.ComponentState[i] = shm.ComponentShutdown
	}
	s.status.Write(st)

	s.active.SetShutdown(true)

	deadline := time.Now().Add(MaxShutdownTime)
	for time.Now().Before(deadline) {
		if s.allDrained() {
			break
		}
		time.Sleep(time.Second)
	}

	atexit.Run()

	_ = shm.Unlink(s.workDir)
	return s.active.Close()
}

func (s *Supervisor) allDrained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs) == 0
}
