// Package health implements the Error/Threshold State Machine (C5) of
// spec section 4.5: five idempotent per-tick rules evaluated over
// every HostEntry in FSA.
package health

import (
	"github.com/afdcore/afd/internal/afdlog"
	"github.com/afdcore/afd/internal/shm"
)

// ErrorActionFunc is the external error_action(alias, "start"|"stop")
// hook spec section 4.5 calls out; callers wire this to whatever
// operator-configured script or notification the deployment uses.
type ErrorActionFunc func(alias string, action string)

// Thresholds carries the per-run parameters rule 3 and the
// supervisor's global link-count back-pressure need; these come from
// ambient daemon configuration, not from the FSA itself.
type Thresholds struct {
	LinkMax       int64
	DangerNoFiles int64
	JobsInQueue   int64

	// StopAmgThreshold, StartAmgThreshold and DirsInFileDir parametrize
	// spec section 4.6's outgoing-directory link-count back-pressure:
	// the message-generator is stopped once the link count reaches
	// LinkMax-StopAmgThreshold-DirsInFileDir and restarted once it
	// drops back below LinkMax-StartAmgThreshold.
	StopAmgThreshold  int64
	StartAmgThreshold int64
	DirsInFileDir     int64
}

// Tick runs the five numbered rules of spec section 4.5 over every
// host in fsa, mutating host_status bits under their field lock and
// emitting EA_STOP_QUEUE / EA_START_QUEUE events. All transitions are
// idempotent: a host observed already in the target state produces no
// event.
func Tick(fsa *shm.FSA, th Thresholds, errorAction ErrorActionFunc, log *afdlog.Logger) error {
	for i := 0; i < fsa.NumHosts(); i++ {
		if err := tickHost(fsa, i, th, errorAction, log); err != nil {
			return err
		}
	}
	return nil
}

func tickHost(fsa *shm.FSA, pos int, th Thresholds, errorAction ErrorActionFunc, log *afdlog.Logger) error {
	// Rules 1 and 2 share the host_status field lock since both touch
	// AUTO_PAUSE_QUEUE.
	if err := fsa.Field(pos, shm.FieldHostStatus).WithLock(func() error {
		e := fsa.Read(pos)
		changed := false

		switch {
		case e.ErrorCounter >= e.MaxErrors && !e.HostStatus.Has(shm.AutoPauseQueue):
			// Rule 1.
			e.HostStatus |= shm.AutoPauseQueue
			changed = true
			log.Info("EA_STOP_QUEUE", fields(e))
			errorAction(e.Alias, "start")
		case e.ErrorCounter < e.MaxErrors && e.HostStatus.Has(shm.AutoPauseQueue):
			// Rule 2.
			e.HostStatus &^= shm.AutoPauseQueue
			changed = true
			if e.LastConnectionUnix > e.LastRetryTimeUnix {
				e.HostStatus &^= shm.DangerPauseQueue
			}
			log.Info("EA_START_QUEUE", fields(e))
			errorAction(e.Alias, "stop")
		}

		// Rule 3: queue-saturation back-pressure.
		danger := th.JobsInQueue >= th.LinkMax/2 && e.TotalFileCounter > th.DangerNoFiles
		switch {
		case danger && !e.HostStatus.Has(shm.DangerPauseQueue):
			e.HostStatus |= shm.DangerPauseQueue
			changed = true
		case !danger && e.HostStatus.Has(shm.DangerPauseQueue):
			e.HostStatus &^= shm.DangerPauseQueue
			changed = true
		}

		// Rule 4: a drained host's AUTO_PAUSE_QUEUE_LOCK self-clears.
		if e.TotalFileCounter == 0 && e.HostStatus.Has(shm.AutoPauseQueueLock) {
			e.HostStatus &^= shm.AutoPauseQueueLock
			changed = true
		}

		if changed {
			fsa.Write(pos, e)
		}
		return nil
	}); err != nil {
		return err
	}

	// Rule 5 has no state of its own beyond host_status's
	// HOST_ERROR_OFFLINE bit: it only picks a log sign, which Sign
	// computes. The log lines written by this tick do not use Sign.
	return nil
}

func fields(e shm.HostEntry) map[string]interface{} {
	return map[string]interface{}{
		"alias":         e.Alias,
		"error_counter": e.ErrorCounter,
		"max_errors":    e.MaxErrors,
	}
}

// Sign picks the log sign rule 5 names: OFFLINE instead of WARN/INFO
// when HOST_ERROR_OFFLINE is set.
func Sign(e shm.HostEntry) afdlog.Sign {
	if e.HostStatus.Has(shm.HostErrorOffline) {
		return afdlog.SignOffline
	}
	return afdlog.SignInfo
}
