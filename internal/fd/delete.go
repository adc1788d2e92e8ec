package fd

import (
	"fmt"

	"github.com/afdcore/afd/internal/shm"
)

// DeleteJob implements the DELETE_JOB contract of spec section 4.4
// for the FD-not-active path: remove the job's staged files, subtract
// the exact file count and size removed from the host's FSA counters
// under their own field locks, and compact the queue (scenario S6).
// removeFiles performs the actual filesystem removal and reports how
// many files and bytes it removed.
func (d *Dispatcher) DeleteJob(msgName string, removeFiles func() (files int64, bytes int64, err error)) error {
	entry, ok := d.queue.Get(msgName)
	if !ok {
		return fmt.Errorf("fd: delete_job: %s not queued", msgName)
	}
	pos, ok := d.hostPos[entry.HostAlias]
	if !ok {
		d.queue.Remove(msgName)
		return fmt.Errorf("fd: delete_job: %s references unknown host %s", msgName, entry.HostAlias)
	}

	files, bytes, err := removeFiles()
	if err != nil {
		return fmt.Errorf("fd: delete_job: removing files for %s: %w", msgName, err)
	}

	if _, err := d.fsa.AddFileCounter(pos, -files); err != nil {
		return fmt.Errorf("fd: delete_job: decrementing total_file_counter: %w", err)
	}
	if err := d.fsa.Field(pos, shm.FieldTotalFileSize).WithLock(func() error {
		e := d.fsa.Read(pos)
		e.TotalFileSize -= bytes
		if e.TotalFileSize < 0 {
			e.TotalFileSize = 0
		}
		d.fsa.Write(pos, e)
		return nil
	}); err != nil {
		return fmt.Errorf("fd: delete_job: decrementing total_file_size: %w", err)
	}

	d.queue.Remove(msgName)
	return nil
}
