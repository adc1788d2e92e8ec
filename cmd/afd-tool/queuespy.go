package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/afdcore/afd/internal/msgfile"
)

func newQueueSpyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "queue-spy",
		Short: "List pending message files in queue order",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := os.ReadDir(messagesDir(workDir))
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return exitErr(ExitIncorrect, err)
			}

			var names []msgfile.Name
			for _, ent := range entries {
				if ent.IsDir() {
					continue
				}
				n, err := msgfile.ParseName(ent.Name())
				if err != nil {
					continue
				}
				names = append(names, n)
			}
			sort.Slice(names, func(i, j int) bool {
				if names[i].Priority != names[j].Priority {
					return names[i].Priority < names[j].Priority
				}
				return names[i].EpochSeconds < names[j].EpochSeconds
			})

			out := cmd.OutOrStdout()
			for _, n := range names {
				fmt.Fprintf(out, "%c %s %05d %s\n", n.Priority,
					time.Unix(n.EpochSeconds, 0).Format(time.RFC3339), n.Unique, n.JobID)
			}
			return nil
		},
	}
}
