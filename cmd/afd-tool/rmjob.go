package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newRmJobCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm-job <msg>...",
		Short: "Ask the file distributor to delete one or more queued message files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := strings.Join(args, "\n") + "\n"
			if err := writeCommandBytes(deleteJobsFifoPath(workDir), []byte(payload)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "delete requested for %d message(s)\n", len(args))
			return nil
		},
	}
}
