package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/ankittk/missioncontrol/internal/store"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agents",
	}
	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentCreateCmd())
	cmd.AddCommand(newAgentSpawnCmd())
	cmd.AddCommand(newAgentStopCmd())
	cmd.AddCommand(newAgentDeleteCmd())
	cmd.AddCommand(newAgentMessagesCmd())
	return cmd
}

func parseID(kind, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q: %w", kind, s, err)
	}
	return id, nil
}

func printAgent(w io.Writer, a mission.Agent) {
	_, _ = fmt.Fprintf(w, "- %s %s %s [%s] %s (%s)\n", a.Status.Icon(), a.RoleIcon(), a.Name, a.Status, a.ActivityDescription(), a.ID)
}

func newAgentListCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, closeFn, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			agents, err := b.ListAgents(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(agents) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No agents.")
				return nil
			}
			for _, a := range agents {
				printAgent(cmd.OutOrStdout(), a)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "Only list available or working agents")
	return cmd
}

func newAgentCreateCmd() *cobra.Command {
	var (
		role         string
		model        string
		capabilities []string
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register an idle agent without a gateway session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, closeFn, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			a, err := b.CreateAgent(cmd.Context(), args[0], role, capabilities, model)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created agent %s (%s)\n", a.Name, a.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "Generalist", "Agent role")
	cmd.Flags().StringVar(&model, "model", "default", "Model the agent runs on")
	cmd.Flags().StringSliceVar(&capabilities, "capability", mission.DefaultCapabilities, "Agent capability (repeatable)")
	return cmd
}

func newAgentSpawnCmd() *cobra.Command {
	var (
		override mission.SpawnConfig
		wait     bool
	)
	cmd := &cobra.Command{
		Use:   "spawn <task-id>",
		Short: "Spawn an agent session on the gateway for a task",
		Long: "Spawn derives the agent's role and prompt from the task. Flags override the derived\n" +
			"name, role, model and capabilities. With --wait the command follows the session\n" +
			"until it completes or fails (local store only).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID("task", args[0])
			if err != nil {
				return err
			}
			b, closeFn, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			if wait {
				local, ok := b.(*localBackend)
				if !ok {
					return errors.New("--wait is not supported with --server; watch /events instead")
				}
				local.wait = true
			}
			a, err := b.SpawnAgent(cmd.Context(), taskID, override)
			if err != nil {
				return err
			}
			session := "-"
			if a.SessionKey != nil {
				session = *a.SessionKey
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Spawned %s (%s) session %s\n", a.Name, a.ID, session)
			if wait {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Agent %s is %s\n", a.Name, a.Status.DisplayName())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&override.Name, "name", "", "Agent name (default: <role>-<task id prefix>)")
	cmd.Flags().StringVar(&override.Role, "role", "", "Agent role (default: derived from the task description)")
	cmd.Flags().StringVar(&override.Model, "model", "", "Model (default: gateway default)")
	cmd.Flags().StringSliceVar(&override.Capabilities, "capability", nil, "Agent capability (repeatable)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the session to complete or fail")
	return cmd
}

func newAgentStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <agent-id>",
		Short: "Stop the agent's session and take it offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("agent", args[0])
			if err != nil {
				return err
			}
			b, closeFn, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			a, err := b.StopAgent(cmd.Context(), id)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stopped %s (%s)\n", a.Name, a.Status.DisplayName())
			return nil
		},
	}
}

func newAgentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <agent-id>",
		Short: "Delete an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("agent", args[0])
			if err != nil {
				return err
			}
			b, closeFn, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			if err := b.DeleteAgent(cmd.Context(), id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted agent %s\n", id)
			return nil
		},
	}
}

func newAgentMessagesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "messages <agent-id>",
		Short: "Show messages sent or received by an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("agent", args[0])
			if err != nil {
				return err
			}
			b, closeFn, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			msgs, err := b.AgentMessages(cmd.Context(), id, limit)
			if err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), msgs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", store.DefaultAgentMessages, "Maximum messages to show")
	return cmd
}
