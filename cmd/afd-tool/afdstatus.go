package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/afdcore/afd/internal/shm"
)

var componentNames = [shm.NumComponents]string{
	"amg", "fd", "archive_watch", "afdd", "statistics", "protocol_logger", "system_log", "reserved",
}

var componentStateNames = map[shm.ComponentState]string{
	shm.ComponentOff:      "OFF",
	shm.ComponentOn:       "ON",
	shm.ComponentShutdown: "SHUTDOWN",
	shm.ComponentStopped:  "STOPPED",
}

func newAfdStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "afd-status",
		Short: "Print AfdStatus: component states, fork/burst counters, queue depth, transfer and scan counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := shm.OpenStatus(workDir)
			if err != nil {
				return exitErr(ExitIncorrect, err)
			}
			defer st.Handle().Detach()

			v := st.Read()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "start_time         %s\n", time.Unix(v.StartTimeUnix, 0).Format(time.RFC3339))
			fmt.Fprintf(out, "fork_counter       %d\n", v.ForkCounter)
			fmt.Fprintf(out, "burst_counter      %d\n", v.BurstCounter)
			fmt.Fprintf(out, "jobs_in_queue      %d\n", v.JobsInQueue)
			fmt.Fprintf(out, "queue_high_water   %d\n", v.QueueLengthHighWater)
			fmt.Fprintf(out, "no_of_transfers    %d\n", v.NoOfTransfers)
			fmt.Fprintf(out, "directory_scans    %d\n", v.DirectoryScanCount)
			fmt.Fprintln(out, "components:")
			for i, name := range componentNames {
				fmt.Fprintf(out, "  %-16s %s\n", name, componentStateNames[v.ComponentState[i]])
			}
			return nil
		},
	}
}
