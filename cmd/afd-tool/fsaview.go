package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/afdcore/afd/internal/shm"
)

func newFSAViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fsa-view [alias|pos]",
		Short: "Print one or every HostEntry in the Filetransfer Status Area",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsa, err := shm.OpenFSA(workDir)
			if err != nil {
				return exitErr(ExitIncorrect, err)
			}
			defer fsa.Handle().Detach()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for i := 0; i < fsa.NumHosts(); i++ {
					printHostEntry(out, i, fsa.Read(i))
				}
				return nil
			}

			pos, err := resolveHostArg(fsa, args[0])
			if err != nil {
				return exitErr(ExitIncorrect, err)
			}
			printHostEntry(out, pos, fsa.Read(pos))
			return nil
		},
	}
}

// resolveHostArg accepts either a numeric position or a host alias.
func resolveHostArg(fsa *shm.FSA, arg string) (int, error) {
	if pos, err := strconv.Atoi(arg); err == nil {
		if pos < 0 || pos >= fsa.NumHosts() {
			return 0, fmt.Errorf("position %d out of range [0,%d)", pos, fsa.NumHosts())
		}
		return pos, nil
	}
	for i := 0; i < fsa.NumHosts(); i++ {
		if fsa.Read(i).Alias == arg {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no host with alias %q", arg)
}

func printHostEntry(out io.Writer, pos int, e shm.HostEntry) {
	fmt.Fprintf(out, "[%d] %-8s errors=%d/%d active=%d/%d queued=%d jobs_queued=%d files_done=%d bytes_sent=%d status=0x%x\n",
		pos, e.Alias, e.ErrorCounter, e.MaxErrors, e.ActiveTransfers, e.AllowedTransfers,
		e.TotalFileCounter, e.JobsQueued, e.FileCounterDone, e.BytesSent, uint32(e.HostStatus))
}
