package main

import "path/filepath"

func fifoDir(workDir string) string { return filepath.Join(workDir, "fifodir") }

func amgCmdFifoPath(workDir string) string    { return filepath.Join(fifoDir(workDir), "amg_cmd.fifo") }
func dbUpdateFifoPath(workDir string) string  { return filepath.Join(fifoDir(workDir), "db_update.fifo") }
func deleteJobsFifoPath(workDir string) string {
	return filepath.Join(fifoDir(workDir), "delete_jobs.fifo")
}

func messagesDir(workDir string) string { return filepath.Join(workDir, "messages") }

func catalogPath(workDir string) string { return filepath.Join(workDir, "files", "job.catalog") }
