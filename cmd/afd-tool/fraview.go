package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/afdcore/afd/internal/shm"
)

var dirStatusNames = map[shm.DirStatus]string{
	shm.DirNormal:   "NORMAL",
	shm.DirDisabled: "DISABLED",
	shm.DirStopped:  "STOPPED",
}

func newFRAViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fra-view [alias|pos]",
		Short: "Print one or every DirEntry in the Fileretrieve Status Area",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fra, err := shm.OpenFRA(workDir)
			if err != nil {
				return exitErr(ExitIncorrect, err)
			}
			defer fra.Handle().Detach()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for i := 0; i < fra.NumDirs(); i++ {
					printDirEntry(out, i, fra.Read(i))
				}
				return nil
			}

			pos, err := resolveDirArg(fra, args[0])
			if err != nil {
				return exitErr(ExitIncorrect, err)
			}
			printDirEntry(out, pos, fra.Read(pos))
			return nil
		},
	}
}

func resolveDirArg(fra *shm.FRA, arg string) (int, error) {
	if pos, err := strconv.Atoi(arg); err == nil {
		if pos < 0 || pos >= fra.NumDirs() {
			return 0, fmt.Errorf("position %d out of range [0,%d)", pos, fra.NumDirs())
		}
		return pos, nil
	}
	for i := 0; i < fra.NumDirs(); i++ {
		if fra.Read(i).Alias == arg {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no directory with alias %q", arg)
}

func printDirEntry(out io.Writer, pos int, e shm.DirEntry) {
	fmt.Fprintf(out, "[%d] %-8s host=%-8s status=%-8s files_in_dir=%d bytes_in_dir=%d queued=%d/%d received=%d/%d errors=%d\n",
		pos, e.Alias, e.HostAlias, dirStatusNames[e.Status],
		e.FilesInDir, e.BytesInDir, e.FilesQueued, e.BytesInQueue,
		e.FilesReceived, e.BytesReceived, e.ErrorCounter)
}
