package supervisor

// RestartClass names how the supervisor reacts to a child's exit,
// Design Note 7's typed ChildSpec table rendered as Go.
type RestartClass int

const (
	// RestartNormal restarts on the standard exit-code/signal policy
	// of spec section 4.6 (any signal, or any exit code other than 0
	// or 1).
	RestartNormal RestartClass = iota
	// RestartCritical is always restarted on abnormal exit regardless
	// of exit code: log, archive-watch, FD, statistics, and protocol
	// logger children.
	RestartCritical
)

// ChildSpec names one supervised component: its AfdActive/AfdStatus
// slot, how to launch it, and its restart policy class.
type ChildSpec struct {
	Name         string
	Path         string
	Args         []string
	RestartClass RestartClass
	StatusSlot   int
}
