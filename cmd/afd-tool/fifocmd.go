package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// writeCommandByte writes a single command byte to a named pipe
// already created by the supervisor or one of its children. Every CLI
// tool in spec section 6 reduces to exactly this: one byte on a fifo.
// The open is non-blocking so a tool run against a dead daemon fails
// fast (ENXIO, no reader attached) instead of hanging forever.
func writeCommandByte(path string, b byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0o600)
	if err != nil {
		if perr, ok := err.(*os.PathError); ok && perr.Err == unix.ENXIO {
			return exitErr(ExitIncorrect, fmt.Errorf("%s: no reader attached, is afd running?", path))
		}
		return exitErr(ExitIncorrect, err)
	}
	defer f.Close()
	if _, err := f.Write([]byte{b}); err != nil {
		return exitErr(ExitIncorrect, err)
	}
	return nil
}

// writeCommandBytes writes a sequence of bytes to path in a single
// write call, used by rm-job to submit more than one message name in
// one invocation.
func writeCommandBytes(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0o600)
	if err != nil {
		if perr, ok := err.(*os.PathError); ok && perr.Err == unix.ENXIO {
			return exitErr(ExitIncorrect, fmt.Errorf("%s: no reader attached, is afd running?", path))
		}
		return exitErr(ExitIncorrect, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return exitErr(ExitIncorrect, err)
	}
	return nil
}
