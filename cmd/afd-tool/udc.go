package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// cmdRereadDirConfig is the "reread DIR_CONFIG" byte written to
// db_update.fifo. No component in this tree reads db_update.fifo.
const cmdRereadDirConfig byte = 'D'

func newUDCCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "udc",
		Short: "Tell the message generator to reread DIR_CONFIG",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := writeCommandByte(dbUpdateFifoPath(workDir), cmdRereadDirConfig); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "DIR_CONFIG reread requested")
			return nil
		},
	}
}
