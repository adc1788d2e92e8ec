package supervisor

import "syscall"

// exitOutcome classifies a finished child per spec section 4.6's
// restart policy.
type exitOutcome struct {
	restart  bool
	stopped  bool // code 0 or 1: leave the child stopped, no restart
	signaled bool
	signal   syscall.Signal
	code     int
}

// classifyWaitStatus interprets a raw waitpid(2) status per the
// exit-code/signal table of spec section 4.6. class does not change the
// outcome: every abnormal exit (any signal, any code other than 0 or 1)
// already restarts, which covers the critical children (log/archive-
// watch/FD/statistics/protocol logger) as well.
func classifyWaitStatus(ws syscall.WaitStatus, class RestartClass) exitOutcome {
	if ws.Signaled() {
		return exitOutcome{restart: true, signaled: true, signal: ws.Signal()}
	}
	code := ws.ExitStatus()
	switch code {
	case 0:
		return exitOutcome{stopped: true, code: 0}
	case 1:
		return exitOutcome{stopped: true, code: 1}
	case 2, 3:
		return exitOutcome{restart: true, code: code}
	default:
		// Any other abnormal exit also restarts, per spec section 4.6.
		return exitOutcome{restart: true, code: code}
	}
}
