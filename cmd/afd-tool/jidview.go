package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/afdcore/afd/internal/catalog"
)

func newJIDViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "jid-view [<hex id>...]",
		Short: "Resolve one or more job IDs against the job catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Open(catalogPath(workDir))
			if err != nil {
				return exitErr(ExitNoDirConfig, err)
			}
			defer cat.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				return exitErr(ExitIncorrect, fmt.Errorf("jid-view: at least one job id is required"))
			}
			var missing []string
			for _, id := range args {
				job, found, err := cat.LookupJob(id)
				if err != nil {
					return exitErr(ExitIncorrect, err)
				}
				if !found {
					missing = append(missing, id)
					continue
				}
				fmt.Fprintf(out, "%s dir_pos=%d priority=%c host=%s recipient=%s files=%s\n",
					job.JobID, job.DirIDPos, job.Priority, job.HostAlias, job.Recipient,
					strings.Join(job.FileList, ","))
			}
			if len(missing) > 0 {
				return exitErr(ExitIncorrect, fmt.Errorf("jid-view: unknown job id(s): %s", strings.Join(missing, ",")))
			}
			return nil
		},
	}
}
