// Package fd implements the queue and worker pool of spec section 4.4:
// a priority-ordered message queue, per-host dispatch respecting
// allowed_transfers and host_status, the connect_status state machine,
// burst handling, and the delete-job contract.
package fd

import (
	"fmt"
	"sync"

	"github.com/aalpar/deheap"

	"github.com/afdcore/afd/internal/msgfile"
)

// Entry is one Message Queue row (spec section 3's "Message Queue (QB)").
type Entry struct {
	MsgName      string
	HostAlias    string
	JobID        string
	Priority     byte
	CreationTime int64
	Pos          int // cache index into the job catalog
	ConnectPos   int // FSA slot currently serving it, or -1
	InErrorDir   bool

	// WorkerPID is the dispatching driver's pid-equivalent, or 0 for
	// PENDING (spec section 3's "worker pid (or PENDING sentinel)").
	WorkerPID int
}

// queueItems is the deheap.Interface backing the ordered queue: ordered
// primarily by priority (low codepoint first), secondarily by creation
// time, with msg_name as a final deterministic tiebreak (resolving the
// spec's disputed heapsort/quicksort tie-break into a real total
// order).
type queueItems []*Entry

func (q queueItems) Len() int { return len(q) }

func (q queueItems) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority < q[j].Priority
	}
	if q[i].CreationTime != q[j].CreationTime {
		return q[i].CreationTime < q[j].CreationTime
	}
	return q[i].MsgName < q[j].MsgName
}

func (q queueItems) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queueItems) Push(x interface{}) {
	*q = append(*q, x.(*Entry))
}

func (q *queueItems) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// Queue is the Message Queue (QB): a priority-then-creation-time
// ordered set of pending messages, plus an index by msg_name so
// DELETE_JOB and completion handling can find an entry directly.
type Queue struct {
	mu    sync.Mutex
	items queueItems
	byName map[string]*Entry
}

// NewQueue returns an empty, initialized Queue.
func NewQueue() *Queue {
	q := &Queue{byName: make(map[string]*Entry)}
	deheap.Init(&q.items)
	return q
}

// Enqueue parses name into an Entry and inserts it. Enqueue rejects a
// name whose job_id cannot resolve via lookupJob unless the caller
// already validated it — the scheduler is responsible for emitting the
// "unknown-job" warning named by spec section 8 invariant 5.
func (q *Queue) Enqueue(name string, hostAlias string) (*Entry, error) {
	n, err := msgfile.ParseName(name)
	if err != nil {
		return nil, fmt.Errorf("fd: enqueue: %w", err)
	}
	e := &Entry{
		MsgName:      name,
		HostAlias:    hostAlias,
		JobID:        n.JobID,
		Priority:     n.Priority,
		CreationTime: n.EpochSeconds,
		ConnectPos:   -1,
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.byName[name]; exists {
		return nil, fmt.Errorf("fd: enqueue: %s already queued", name)
	}
	deheap.Push(&q.items, e)
	q.byName[name] = e
	return e, nil
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// PeekOrdered returns a snapshot of queued entries in dispatch order,
// without removing them. Used by the dispatcher's scan-for-eligible-head
// pass and by queue-inspection tools (queue_spy).
func (q *Queue) PeekOrdered() []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := make(queueItems, len(q.items))
	copy(cp, q.items)
	deheap.Init(&cp)
	out := make([]*Entry, 0, len(cp))
	for cp.Len() > 0 {
		out = append(out, deheap.Pop(&cp).(*Entry))
	}
	return out
}

// Remove removes the entry named name, if present, and reports whether
// it was found. Used on dispatch success, on compaction, and by
// DELETE_JOB.
func (q *Queue) Remove(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byName[name]
	if !ok {
		return false
	}
	delete(q.byName, name)
	for i, item := range q.items {
		if item == e {
			deheap.Remove(&q.items, i)
			break
		}
	}
	return true
}

// Get returns the entry named name, if queued.
func (q *Queue) Get(name string) (*Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byName[name]
	return e, ok
}
