package supervisor

import (
	"os"

	"golang.org/x/sys/unix"
)

// Command is a single byte read from afd_cmd.fifo, spec section 4.6's
// tick-loop command channel.
type Command byte

const (
	CmdShutdown Command = iota + 1
	CmdStop
	CmdStart
	CmdIsAlive
	CmdAmgReady
	CmdFdReady
)

// ackn is written to probe_only.fifo in reply to IS_ALIVE.
const ackn = "ACKN"

// amgCmdStop and amgCmdStart are the single-byte commands the
// supervisor writes to amg_cmd.fifo to apply spec section 4.6's
// global link-count back-pressure against the message-generator.
const (
	amgCmdStop  byte = 'S'
	amgCmdStart byte = 'G'
)

// sendAmgCommand writes a single command byte to the
// message-generator's command fifo, creating it if necessary.
func sendAmgCommand(workDir string, cmd byte) error {
	f, err := openFifo(amgCmdFifoPath(workDir))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte{cmd})
	return err
}

// openFifo creates path as a named pipe if it does not already exist,
// then opens it for non-blocking reads so the tick loop's select-with-
// timeout can poll it without a dedicated OS thread per fifo.
func openFifo(path string) (*os.File, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := unix.Mkfifo(path, 0o600); err != nil {
			return nil, err
		}
	}
	// O_RDWR (not O_RDONLY) so the open itself never blocks waiting
	// for a writer, and reads return 0 instead of blocking forever
	// when no writer is currently connected.
	return os.OpenFile(path, os.O_RDWR|unix.O_NONBLOCK, 0o600)
}

// readCommand performs one non-blocking read of a command byte. ok is
// false if no byte was available this poll.
func readCommand(f *os.File) (cmd Command, ok bool, err error) {
	var buf [1]byte
	n, err := f.Read(buf[:])
	if n == 0 {
		if err != nil && !isWouldBlock(err) {
			return 0, false, err
		}
		return 0, false, nil
	}
	return Command(buf[0]), true, nil
}

func isWouldBlock(err error) bool {
	perr, ok := err.(*os.PathError)
	if !ok {
		return false
	}
	return perr.Err == unix.EAGAIN || perr.Err == unix.EWOULDBLOCK
}

func writeProbeAck(workDir string) error {
	path := probeOnlyFifoPath(workDir)
	f, err := openFifo(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(ackn)
	return err
}
