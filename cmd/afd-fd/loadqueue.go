package main

import (
	"os"
	"path/filepath"

	"github.com/afdcore/afd/internal/afdlog"
	"github.com/afdcore/afd/internal/catalog"
	"github.com/afdcore/afd/internal/fd"
	"github.com/afdcore/afd/internal/msgfile"
)

// loadQueue scans the messages directory and enqueues every message
// file not already queued. The queue is in-process only (spec section
// 3's Message Queue has no shared-memory backing), so a restarted
// afd-fd rebuilds it from the directory's contents rather than from
// any persisted state.
func loadQueue(workDir string, cat *catalog.Catalog, queue *fd.Queue, log *afdlog.Logger) {
	dir := filepath.Join(workDir, "messages")
	ents, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("loadQueue: reading messages directory", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	for _, ent := range ents {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if _, ok := queue.Get(name); ok {
			continue
		}

		jobID, err := msgfile.ExtractJobID(name)
		if err != nil {
			log.Warn("loadQueue: malformed message name", map[string]interface{}{"name": name, "error": err.Error()})
			continue
		}
		job, found, err := cat.LookupJob(jobID)
		if err != nil {
			log.Error("loadQueue: catalog lookup failed", map[string]interface{}{"name": name, "error": err.Error()})
			continue
		}
		if !found {
			log.Warn("loadQueue: unknown job_id, skipping", map[string]interface{}{"name": name, "job_id": jobID})
			continue
		}

		if _, err := queue.Enqueue(name, job.HostAlias); err != nil {
			log.Warn("loadQueue: enqueue failed", map[string]interface{}{"name": name, "error": err.Error()})
		}
	}
}
