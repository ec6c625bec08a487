package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPromptCmd() *cobra.Command {
	var system bool
	cmd := &cobra.Command{
		Use:   "prompt <task-id>",
		Short: "Print the prompt an agent spawned for the task would receive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("task", args[0])
			if err != nil {
				return err
			}
			b, closeFn, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			p, err := b.TaskPrompt(cmd.Context(), id)
			if err != nil {
				return err
			}
			if system {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), p.SystemPrompt)
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), p.Prompt)
			return nil
		},
	}
	cmd.Flags().BoolVar(&system, "system", false, "Print the system prompt instead")
	return cmd
}
