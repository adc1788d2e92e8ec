package main

import (
	"bufio"
	"context"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/afdcore/afd/internal/afdlog"
	"github.com/afdcore/afd/internal/fd"
)

func deleteJobsFifoPath(workDir string) string {
	return filepath.Join(workDir, "fifodir", "delete_jobs.fifo")
}

// openDeleteFifo creates delete_jobs.fifo if needed and opens it
// blocking-read: rm-job's writes are small and infrequent, so a
// dedicated goroutine blocking on read is simpler than polling.
func openDeleteFifo(workDir string) (*os.File, error) {
	path := deleteJobsFifoPath(workDir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := unix.Mkfifo(path, 0o600); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_RDWR, 0o600)
}

// serviceDeleteFifo reads newline-delimited message names from the
// fifo and runs DELETE_JOB against each: removes the staged files
// directory, reporting the exact file count and byte total the
// dispatcher's DeleteJob subtracts from the host's FSA counters.
func serviceDeleteFifo(ctx context.Context, f *os.File, workDir string, dispatcher *fd.Dispatcher, log *afdlog.Logger) {
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		name := scanner.Text()
		if name == "" {
			continue
		}
		err := dispatcher.DeleteJob(name, func() (int64, int64, error) {
			return removeStagedFiles(workDir, name)
		})
		if err != nil {
			log.Warn("rm-job failed", map[string]interface{}{"name": name, "error": err.Error()})
		}
	}
}

func removeStagedFiles(workDir, msgName string) (files int64, bytes int64, err error) {
	dir := filepath.Join(workDir, "files", "outgoing", msgName)
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	for _, ent := range ents {
		if ent.IsDir() {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			return files, bytes, err
		}
		path := filepath.Join(dir, ent.Name())
		if err := os.Remove(path); err != nil {
			return files, bytes, err
		}
		files++
		bytes += info.Size()
	}
	_ = os.Remove(dir)
	return files, bytes, nil
}
