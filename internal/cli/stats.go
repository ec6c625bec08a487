package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ankittk/missioncontrol/internal/mission"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task and agent counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, closeFn, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			s, err := b.Stats(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, row := range []struct {
				status mission.TaskStatus
				n      int
			}{
				{mission.TaskPlanning, s.Planning},
				{mission.TaskInbox, s.Inbox},
				{mission.TaskAssigned, s.Assigned},
				{mission.TaskInProgress, s.InProgress},
				{mission.TaskTesting, s.Testing},
				{mission.TaskReview, s.Review},
				{mission.TaskDone, s.Done},
			} {
				_, _ = fmt.Fprintf(tw, "%s %s\t%d\n", row.status.Icon(), row.status.DisplayName(), row.n)
			}
			_, _ = fmt.Fprintf(tw, "Total tasks\t%d\n", s.Total)
			_, _ = fmt.Fprintf(tw, "Completion\t%.0f%%\n", s.CompletionRate*100)
			_, _ = fmt.Fprintf(tw, "Agents\t%d active / %d\n", s.ActiveAgents, s.TotalAgents)
			return tw.Flush()
		},
	}
}
