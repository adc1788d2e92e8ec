package fd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/afdcore/afd/internal/afderr"
	"github.com/afdcore/afd/internal/afdlog"
	"github.com/afdcore/afd/internal/catalog"
	"github.com/afdcore/afd/internal/fd/driver"
	"github.com/afdcore/afd/internal/shm"
)

// ineligible is the set of host_status bits that exclude a host from
// dispatch, per spec section 4.4's scheduling contract.
const ineligible = shm.PauseQueue | shm.AutoPauseQueue | shm.AutoPauseQueueLock |
	shm.DangerPauseQueue | shm.StopTransfer | shm.HostDisabled

// FileResolver maps a queue entry to the list of staged file paths
// its driver should transfer, and the soptions text to pass along.
// The outgoing-file directory layout itself (one sub-directory per
// msg_name) is a concern of the message-generator / caller, not this
// package.
type FileResolver func(e *Entry) (files []string, options string, err error)

// Dispatcher implements the per-host scheduling and dispatch contract
// of spec section 4.4: scan the ordered queue for the first entry
// whose host is eligible, hand it to a protocol driver bounded by that
// host's allowed_transfers, and apply the outcome under field locks.
type Dispatcher struct {
	fsa      *shm.FSA
	queue    *Queue
	catalog  *catalog.Catalog
	registry *driver.Registry
	resolve  FileResolver
	log      *afdlog.Logger

	hostPos map[string]int

	mu      sync.Mutex
	inFlight map[string]driver.Driver // job_id -> live driver, for bursting
}

// NewDispatcher builds a Dispatcher over fsa's current hosts, indexing
// them by alias. Callers must rebuild the Dispatcher (or call
// RefreshHosts) after an FSA reload.
func NewDispatcher(fsaArea *shm.FSA, queue *Queue, cat *catalog.Catalog, registry *driver.Registry, resolve FileResolver, log *afdlog.Logger) *Dispatcher {
	d := &Dispatcher{
		fsa:      fsaArea,
		queue:    queue,
		catalog:  cat,
		registry: registry,
		resolve:  resolve,
		log:      log,
		inFlight: make(map[string]driver.Driver),
	}
	d.RefreshHosts()
	return d
}

// RefreshHosts rebuilds the alias->position index; call after an FSA
// reload or resize.
func (d *Dispatcher) RefreshHosts() {
	d.hostPos = make(map[string]int, d.fsa.NumHosts())
	for i := 0; i < d.fsa.NumHosts(); i++ {
		e := d.fsa.Read(i)
		if e.Alias != "" {
			d.hostPos[e.Alias] = i
		}
	}
}

// eligible reports whether host entry e currently accepts a new
// dispatch.
func eligible(e shm.HostEntry) bool {
	return e.ActiveTransfers < e.AllowedTransfers && !e.HostStatus.Has(ineligible)
}

// DispatchOnce performs one scheduling pass: for every host with spare
// capacity, find the first eligible queued entry for that host and
// dispatch it. Boundary behavior B1: an empty queue returns
// immediately having dispatched nothing.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (dispatched int, err error) {
	ordered := d.queue.PeekOrdered()
	if len(ordered) == 0 {
		return 0, nil
	}

	taken := make(map[string]bool, d.fsa.NumHosts())
	g, gctx := errgroup.WithContext(ctx)

	for _, entry := range ordered {
		pos, ok := d.hostPos[entry.HostAlias]
		if !ok {
			// Structural corruption per spec section 7: the queue
			// names a host no longer present. Drop it.
			d.queue.Remove(entry.MsgName)
			d.log.Warn("queue entry references unknown host", mapFields(entry))
			continue
		}
		if taken[entry.HostAlias] {
			continue
		}
		host := d.fsa.Read(pos)
		if !eligible(host) {
			continue
		}
		taken[entry.HostAlias] = true

		entry, pos := entry, pos
		g.Go(func() error {
			return d.dispatchOne(gctx, pos, entry)
		})
		dispatched++
	}

	return dispatched, g.Wait()
}

func mapFields(e *Entry) map[string]interface{} {
	return map[string]interface{}{"msg_name": e.MsgName, "host_alias": e.HostAlias}
}

// dispatchOne runs the full lifecycle for one entry: claims an
// active_transfers slot, runs the driver, applies the result under
// field locks, and removes the entry from the queue on success.
func (d *Dispatcher) dispatchOne(ctx context.Context, pos int, entry *Entry) error {
	host := d.fsa.Read(pos)
	proto, err := protocolName(host)
	if err != nil {
		d.log.Warn(err.Error(), mapFields(entry))
		d.queue.Remove(entry.MsgName)
		return nil
	}

	if err := d.bumpActiveTransfers(pos, 1); err != nil {
		return err
	}
	defer d.bumpActiveTransfers(pos, -1)

	files, options, err := d.resolve(entry)
	if err != nil {
		return d.recordFailure(pos, entry, err)
	}

	drv, burst := d.acquireDriver(entry.JobID, proto)

	slotIdx, slotOK, err := d.claimJobSlot(pos, entry, proto, files, burst)
	if err != nil {
		d.log.Warn("claim job slot failed", mapFields(entry))
	}
	if slotOK {
		defer d.fsa.ReleaseJobSlot(pos, slotIdx)
	}

	recipient := host.RealHostname[host.TogglePosition]
	result, err := drv.Transfer(ctx, driver.Request{
		HostAlias: entry.HostAlias,
		Recipient: recipient,
		Files:     files,
		Options:   options,
		Burst:     burst,
	})
	if err != nil {
		d.releaseDriver(entry.JobID, drv, true)
		return d.recordFailure(pos, entry, err)
	}

	// Bursting: keep the connection open if the queue still holds an
	// eligible entry for the same job_id, per spec section 4.4.
	more := false
	for _, other := range d.queue.PeekOrdered() {
		if other.MsgName != entry.MsgName && other.JobID == entry.JobID {
			more = true
			break
		}
	}
	d.releaseDriver(entry.JobID, drv, !more)

	return d.recordSuccess(pos, entry, result)
}

// acquireDriver returns an in-flight driver bursting the same job_id,
// or constructs a fresh one.
func (d *Dispatcher) acquireDriver(jobID, proto string) (drv driver.Driver, burst bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.inFlight[jobID]; ok {
		delete(d.inFlight, jobID)
		return existing, true
	}
	return d.registry.New(proto), false
}

// releaseDriver either parks drv for the next burst against jobID, or
// closes it when close is true (no more eligible queued work, or the
// previous transfer failed).
func (d *Dispatcher) releaseDriver(jobID string, drv driver.Driver, close bool) {
	if !close {
		d.mu.Lock()
		d.inFlight[jobID] = drv
		d.mu.Unlock()
		return
	}
	_ = drv.Close()
}

// connectStatusFor maps a protocol name to the active (or, when
// bursting, burst-active) ConnectStatus spec section 4.4's JobSlot
// state machine assigns it while a transfer is in flight.
func connectStatusFor(proto string, burst bool) shm.ConnectStatus {
	switch proto {
	case "ftp":
		if burst {
			return shm.FTPBurstTransferActive
		}
		return shm.FTPActive
	case "loc":
		if burst {
			return shm.LOCBurstTransferActive
		}
		return shm.LOCActive
	case "smtp":
		if burst {
			return shm.EmailBurstTransferActive
		}
		return shm.EmailActive
	case "wmo":
		if burst {
			return shm.WMOBurstTransferActive
		}
		return shm.WMOActive
	case "scp1":
		if burst {
			return shm.SCP1BurstTransferActive
		}
		return shm.SCP1Active
	case "map":
		if burst {
			return shm.MAPBurstTransferActive
		}
		return shm.MAPActive
	default:
		return shm.NotWorking
	}
}

// claimJobSlot records this dispatch in the host's JobSlots array so
// fsa-view and jid-view can see which connection is doing what,
// per spec section 3's per-slot bookkeeping. unique_name is a fresh
// UUID: it only needs to disambiguate concurrent bursts against the
// same job_id within this process's lifetime, not survive a restart.
func (d *Dispatcher) claimJobSlot(pos int, entry *Entry, proto string, files []string, burst bool) (int, bool, error) {
	fileName := ""
	if len(files) > 0 {
		fileName = files[0]
	}
	return d.fsa.ClaimJobSlot(pos, shm.JobSlot{
		ConnectStatus: connectStatusFor(proto, burst),
		NoOfFiles:     int32(len(files)),
		FileNameInUse: fileName,
		UniqueName:    uuid.NewString(),
		JobID:         entry.JobID,
	})
}

func protocolName(host shm.HostEntry) (string, error) {
	switch {
	case host.ProtocolFlags.Has(shm.ProtoSCP1):
		return "scp1", nil
	case host.ProtocolFlags.Has(shm.ProtoLOC):
		return "loc", nil
	case host.ProtocolFlags.Has(shm.ProtoFTP):
		return "ftp", nil
	case host.ProtocolFlags.Has(shm.ProtoSMTP):
		return "smtp", nil
	case host.ProtocolFlags.Has(shm.ProtoWMO):
		return "wmo", nil
	case host.ProtocolFlags.Has(shm.ProtoMAP):
		return "map", nil
	default:
		return "", fmt.Errorf("fd: host %s has no protocol flag set", host.Alias)
	}
}

func (d *Dispatcher) bumpActiveTransfers(pos int, delta int32) error {
	lock := d.fsa.Field(pos, shm.FieldActiveTransfers)
	return lock.WithLock(func() error {
		e := d.fsa.Read(pos)
		e.ActiveTransfers += delta
		if e.ActiveTransfers < 0 {
			e.ActiveTransfers = 0
		}
		d.fsa.Write(pos, e)
		return nil
	})
}

// recordSuccess applies a completed transfer's counters and removes
// the entry from the queue, satisfying scenario S1.
func (d *Dispatcher) recordSuccess(pos int, entry *Entry, result driver.Result) error {
	if err := d.fsa.Field(pos, shm.FieldFileCounterDone).WithLock(func() error {
		e := d.fsa.Read(pos)
		e.FileCounterDone += result.FilesDone
		d.fsa.Write(pos, e)
		return nil
	}); err != nil {
		return err
	}
	if err := d.fsa.Field(pos, shm.FieldConnections).WithLock(func() error {
		e := d.fsa.Read(pos)
		e.Connections++
		d.fsa.Write(pos, e)
		return nil
	}); err != nil {
		return err
	}
	if err := d.fsa.Field(pos, shm.FieldErrorCounter).WithLock(func() error {
		e := d.fsa.Read(pos)
		e.ErrorCounter = 0
		d.fsa.Write(pos, e)
		return nil
	}); err != nil {
		return err
	}
	d.queue.Remove(entry.MsgName)
	return nil
}

// recordFailure increments error_counter, sets last_retry_time,
// classifies cause per spec section 7's error taxonomy, and applies
// the secondary-host toggle of spec section 4.4: a structural failure
// (message names a file that was never staged, or a job the catalog no
// longer knows) drops the entry rather than retrying something that
// can never succeed; everything else is left queued for a later retry
// pass.
func (d *Dispatcher) recordFailure(pos int, entry *Entry, cause error) error {
	kind, known := afderr.KindOf(cause)
	fields := mapFields(entry)
	if known {
		fields["kind"] = kind.String()
	}
	d.log.Error(fmt.Sprintf("transfer failed: %v", cause), fields)

	if err := d.fsa.Field(pos, shm.FieldErrorCounter).WithLock(func() error {
		e := d.fsa.Read(pos)
		e.ErrorCounter++
		d.fsa.Write(pos, e)
		return nil
	}); err != nil {
		return err
	}
	if err := d.fsa.Field(pos, shm.FieldLastRetryTime).WithLock(func() error {
		e := d.fsa.Read(pos)
		e.LastRetryTimeUnix = time.Now().Unix()
		d.fsa.Write(pos, e)
		return nil
	}); err != nil {
		return err
	}
	if err := d.maybeToggle(pos); err != nil {
		return err
	}

	if kind == afderr.KindStructural {
		d.queue.Remove(entry.MsgName)
	}
	return nil
}

// maybeToggle flips toggle_position to the other real_hostname when
// auto_toggle is on and error_counter has crossed max_errors, per spec
// section 4.4's secondary-host toggle. The driver picks up the new
// position on its next dispatch via dispatchOne's recipient lookup; on
// a later success the position is left alone, and a further run of
// failures may flip it back (R4: flipping twice returns to the
// original selection).
func (d *Dispatcher) maybeToggle(pos int) error {
	host := d.fsa.Read(pos)
	if !host.AutoToggle || host.ErrorCounter < host.MaxErrors {
		return nil
	}
	return d.fsa.Field(pos, shm.FieldTogglePosition).WithLock(func() error {
		e := d.fsa.Read(pos)
		if e.TogglePosition == shm.HostOne {
			e.TogglePosition = shm.HostTwo
		} else {
			e.TogglePosition = shm.HostOne
		}
		d.fsa.Write(pos, e)
		d.log.Info("toggle_position flipped", map[string]interface{}{
			"host": e.Alias, "toggle_position": e.TogglePosition,
		})
		return nil
	})
}
