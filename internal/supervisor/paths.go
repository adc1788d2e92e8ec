package supervisor

import "path/filepath"

// requiredSubdirs is the fixed set of sub-directories spec section 4.6
// step 2 requires under the working directory.
var requiredSubdirs = []string{
	"fifodir", "messages", "files", "files/outgoing", "files/store",
	"files/crc", "files/pool", "files/time", "files/incoming",
	"files/file-mask", "ls-data", "log", "archive",
}

func fifoDir(workDir string) string { return filepath.Join(workDir, "fifodir") }

func afdCmdFifoPath(workDir string) string    { return filepath.Join(fifoDir(workDir), "afd_cmd.fifo") }
func afdRespFifoPath(workDir string) string   { return filepath.Join(fifoDir(workDir), "afd_resp.fifo") }
func probeOnlyFifoPath(workDir string) string { return filepath.Join(fifoDir(workDir), "probe_only.fifo") }
func systemLogFifoPath(workDir string) string { return filepath.Join(fifoDir(workDir), "system_log.fifo") }
func amgCmdFifoPath(workDir string) string    { return filepath.Join(fifoDir(workDir), "amg_cmd.fifo") }
