package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// cmdRereadHostConfig is the "reread HOST_CONFIG" byte written to
// amg_cmd.fifo. afd-amg-stub, the fifo's only reader in this tree,
// acts on its stop and start bytes only and ignores this one.
const cmdRereadHostConfig byte = 'H'

func newUHCCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "uhc",
		Short: "Tell the message generator to reread HOST_CONFIG",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := writeCommandByte(amgCmdFifoPath(workDir), cmdRereadHostConfig); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "HOST_CONFIG reread requested")
			return nil
		},
	}
}
