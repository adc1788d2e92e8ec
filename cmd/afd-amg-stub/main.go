// Command afd-amg-stub is a minimal stand-in for the message generator
// (spec section 4.3): it scans files/incoming/<host_alias>/ for
// arrived files, assigns each one a job (an existing job whose
// file_list matches it, else a newly interned single-file job), stages
// the file under
// files/outgoing/<msg_name>/, and writes the corresponding message
// file. It exists so the rest of the system (catalog, queue, FD) can
// be exercised end to end without the real AMG/scan-dir machinery of
// spec section 4.2.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/afdcore/afd/internal/afdlog"
	"github.com/afdcore/afd/internal/catalog"
	"github.com/afdcore/afd/internal/catalog/filter"
	"github.com/afdcore/afd/internal/msgfile"
)

const scanInterval = 2 * time.Second

// amgCmdStop and amgCmdStart mirror internal/supervisor's command
// bytes written to amg_cmd.fifo to apply spec section 4.6's global
// link-count back-pressure.
const (
	amgCmdStop  byte = 'S'
	amgCmdStart byte = 'G'
)

func main() {
	workDir := flag.String("work-dir", defaultWorkDir(), "AFD working directory")
	flag.Parse()

	log := afdlog.NewStderr(afdlog.ChannelReceive)

	if err := run(*workDir, log); err != nil {
		log.Fatal(err.Error(), nil)
		os.Exit(1)
	}
}

func defaultWorkDir() string {
	if d := os.Getenv("AFD_WORK_DIR"); d != "" {
		return d
	}
	return "/afd"
}

func run(workDir string, log *afdlog.Logger) error {
	cat, err := catalog.Open(filepath.Join(workDir, "files", "job.catalog"))
	if err != nil {
		return fmt.Errorf("afd-amg-stub: open catalog: %w", err)
	}
	defer cat.Close()

	counter, err := msgfile.OpenCounter(filepath.Join(workDir, "files", "afd_counter"))
	if err != nil {
		return fmt.Errorf("afd-amg-stub: open counter: %w", err)
	}
	defer counter.Close()

	cmdFifo, err := openAmgCmdFifo(workDir)
	if err != nil {
		return fmt.Errorf("afd-amg-stub: open amg_cmd fifo: %w", err)
	}
	defer cmdFifo.Close()

	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	stopped := false
	for range ticker.C {
		if b, ok := readAmgCmd(cmdFifo); ok {
			switch b {
			case amgCmdStop:
				stopped = true
				log.Info("message generation stopped", nil)
			case amgCmdStart:
				stopped = false
				log.Info("message generation started", nil)
			}
		}
		if stopped {
			continue
		}
		scanOnce(workDir, cat, counter, log)
	}
	return nil
}

// openAmgCmdFifo creates fifodir/amg_cmd.fifo if it does not already
// exist and opens it for non-blocking reads, mirroring the pattern
// internal/supervisor uses for its own control fifos.
func openAmgCmdFifo(workDir string) (*os.File, error) {
	path := filepath.Join(workDir, "fifodir", "amg_cmd.fifo")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := unix.Mkfifo(path, 0o600); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_RDWR|unix.O_NONBLOCK, 0o600)
}

// readAmgCmd performs one non-blocking read of a single command byte.
func readAmgCmd(f *os.File) (byte, bool) {
	var buf [1]byte
	n, _ := f.Read(buf[:])
	if n == 0 {
		return 0, false
	}
	return buf[0], true
}

func scanOnce(workDir string, cat *catalog.Catalog, counter *msgfile.Counter, log *afdlog.Logger) {
	incomingRoot := filepath.Join(workDir, "files", "incoming")
	hostDirs, err := os.ReadDir(incomingRoot)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("scan: reading incoming root", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	for _, hd := range hostDirs {
		if !hd.IsDir() {
			continue
		}
		hostAlias := hd.Name()
		hostDir := filepath.Join(incomingRoot, hostAlias)
		files, err := os.ReadDir(hostDir)
		if err != nil {
			log.Warn("scan: reading host directory", map[string]interface{}{"host": hostAlias, "error": err.Error()})
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			if err := internAndStage(workDir, cat, counter, hostDir, hostAlias, f.Name(), log); err != nil {
				log.Error(err.Error(), map[string]interface{}{"host": hostAlias, "file": f.Name()})
			}
		}
	}
}

func internAndStage(workDir string, cat *catalog.Catalog, counter *msgfile.Counter, hostDir, hostAlias, fileName string, log *afdlog.Logger) error {
	canonical := catalog.Canonicalize(hostDir)
	dirPos, err := cat.InternDir(canonical)
	if err != nil {
		return fmt.Errorf("afd-amg-stub: intern_dir: %w", err)
	}

	jobID, err := matchOrInternJob(cat, dirPos, hostAlias, fileName)
	if err != nil {
		return fmt.Errorf("afd-amg-stub: intern_job: %w", err)
	}

	unique, err := counter.Next()
	if err != nil {
		return fmt.Errorf("afd-amg-stub: counter: %w", err)
	}
	name := msgfile.Name{
		Priority:     '5',
		EpochSeconds: time.Now().Unix(),
		Unique:       unique,
		JobID:        jobID,
	}.String()

	outDir := filepath.Join(workDir, "files", "outgoing", name)
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return fmt.Errorf("afd-amg-stub: stage dir: %w", err)
	}
	src := filepath.Join(hostDir, fileName)
	dst := filepath.Join(outDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("afd-amg-stub: stage file: %w", err)
	}

	msgPath := filepath.Join(workDir, "messages", name)
	if err := msgfile.Write(msgPath, msgfile.Message{Destination: hostAlias}); err != nil {
		return fmt.Errorf("afd-amg-stub: write message: %w", err)
	}

	log.Info("job interned", map[string]interface{}{"job_id": jobID, "msg_name": name, "host": hostAlias})
	return nil
}

// matchOrInternJob matches fileName against the file_list of every job
// already interned under dirPos, in intern order, and reuses the first
// one that matches (spec section 4.2's filter contract). If none
// match, a new job is interned with a single-entry file_list naming
// fileName literally, so a directory with no configured job still gets
// one distributed instead of being dropped.
func matchOrInternJob(cat *catalog.Catalog, dirPos int, hostAlias, fileName string) (string, error) {
	jobs, err := cat.JobsForDir(dirPos)
	if err != nil {
		return "", fmt.Errorf("jobs_for_dir: %w", err)
	}
	for _, job := range jobs {
		if job.HostAlias == hostAlias && filter.Matches(job.FileList, fileName) {
			return job.JobID, nil
		}
	}
	return cat.InternJob(dirPos, []string{fileName}, nil, nil, hostAlias, hostAlias, '5')
}
