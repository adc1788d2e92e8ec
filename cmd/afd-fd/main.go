// Command afd-fd is the File Distributor worker of spec section 4.4:
// it owns the in-process Message Queue, scans the messages directory
// for work, and dispatches queued entries against FSA-eligible hosts
// through a protocol driver.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/afdcore/afd/internal/afdlog"
	"github.com/afdcore/afd/internal/catalog"
	"github.com/afdcore/afd/internal/fd"
	"github.com/afdcore/afd/internal/fd/driver"
	"github.com/afdcore/afd/internal/shm"
)

const dispatchInterval = 1 * time.Second

func main() {
	workDir := flag.String("work-dir", defaultWorkDir(), "AFD working directory")
	flag.Parse()

	log := afdlog.NewStderr(afdlog.ChannelTransfer)

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
	fsaArea, err := shm.OpenFSA(workDir)
	if err != nil {
		return fmt.Errorf("afd-fd: open fsa: %w", err)
	}
	defer fsaArea.Handle().Detach()

	cat, err := catalog.Open(filepath.Join(workDir, "files", "job.catalog"))
	if err != nil {
		return fmt.Errorf("afd-fd: open catalog: %w", err)
	}
	defer cat.Close()

	registry := driver.NewRegistry()
	registry.Register("loc", driver.NewLoc())
	registry.Register("scp1", driver.NewSCP1())

	queue := fd.NewQueue()

	resolve := func(e *fd.Entry) (files []string, options string, err error) {
		return resolveFiles(workDir, e)
	}
	dispatcher := fd.NewDispatcher(fsaArea, queue, cat, registry, resolve, log)

	loadQueue(workDir, cat, queue, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deleteFifo, err := openDeleteFifo(workDir)
	if err == nil {
		go serviceDeleteFifo(ctx, deleteFifo, workDir, dispatcher, log)
	} else {
		log.Warn("delete_jobs.fifo unavailable, rm-job will not be serviced", logFields(err))
	}

	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	rescan := time.NewTicker(5 * dispatchInterval)
	defer rescan.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-rescan.C:
			loadQueue(workDir, cat, queue, log)
			dispatcher.RefreshHosts()
		case <-ticker.C:
			if _, err := dispatcher.DispatchOnce(ctx); err != nil {
				log.Error(err.Error(), nil)
			}
		}
	}
}

func logFields(err error) map[string]interface{} {
	return map[string]interface{}{"error": err.Error()}
}
