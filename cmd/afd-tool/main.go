// Command afd-tool bundles the CLI surface of spec section 6: uhc,
// udc, afd-status, fsa-view, fra-view, jid-view, queue-spy, and rm-job,
// each reducing to one shared-area read or one command byte on a fifo.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var workDir string

func main() {
	root := &cobra.Command{
		Use:           "afd-tool",
		Short:         "AFD operator CLI: uhc, udc, afd-status, fsa-view, fra-view, jid-view, queue-spy, rm-job",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&workDir, "work-dir", "w", defaultWorkDir(), "AFD working directory")

	root.AddCommand(
		newUHCCommand(),
		newUDCCommand(),
		newAfdStatusCommand(),
		newFSAViewCommand(),
		newFRAViewCommand(),
		newJIDViewCommand(),
		newQueueSpyCommand(),
		newRmJobCommand(),
	)

	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "afd-tool:", err)
	}
	os.Exit(exitCodeOf(err))
}

func defaultWorkDir() string {
	if d := os.Getenv("AFD_WORK_DIR"); d != "" {
		return d
	}
	return "/afd"
}
