package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ankittk/missioncontrol/internal/mission"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	cmd.AddCommand(newTaskCreateCmd())
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskShowCmd())
	cmd.AddCommand(newTaskMoveCmd())
	cmd.AddCommand(newTaskAssignCmd())
	cmd.AddCommand(newTaskPlanCmd())
	cmd.AddCommand(newTaskDeliverableCmd())
	cmd.AddCommand(newTaskDeleteCmd())
	return cmd
}

func printTask(w io.Writer, t mission.Task) {
	assignee := "unassigned"
	if t.AssignedAgent != nil {
		assignee = *t.AssignedAgent
	}
	_, _ = fmt.Fprintf(w, "- %s %s %s [%s] %s (%s)\n", t.Status.Icon(), t.PriorityIcon(), t.Title, t.Status, assignee, t.ID)
}

func newTaskCreateCmd() *cobra.Command {
	var (
		description string
		priority    string
		tags        []string
	)
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a task in PLANNING",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prio, err := mission.ParseTaskPriority(strings.ToUpper(priority))
			if err != nil {
				return err
			}
			b, closeFn, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			t, err := b.CreateTask(cmd.Context(), args[0], description, prio, tags)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created task %s (%s)\n", t.Title, t.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Task description")
	cmd.Flags().StringVarP(&priority, "priority", "p", string(mission.PriorityMedium), "LOW, MEDIUM, HIGH or URGENT")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag (repeatable)")
	return cmd
}

func newTaskListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var st mission.TaskStatus
			if status != "" {
				var err error
				if st, err = mission.ParseTaskStatus(strings.ToUpper(status)); err != nil {
					return err
				}
			}
			b, closeFn, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			tasks, err := b.ListTasks(cmd.Context(), st)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No tasks.")
				return nil
			}
			for _, t := range tasks {
				printTask(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only list tasks with this status")
	return cmd
}

func newTaskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task with its planning answers and deliverables",
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

			t, err := b.GetTask(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%s %s\n", t.Status.Icon(), t.Title)
			_, _ = fmt.Fprintf(out, "ID:       %s\n", t.ID)
			_, _ = fmt.Fprintf(out, "Status:   %s\n", t.Status.DisplayName())
			_, _ = fmt.Fprintf(out, "Priority: %s %s\n", t.PriorityIcon(), t.Priority.DisplayName())
			if t.AssignedAgent != nil {
				_, _ = fmt.Fprintf(out, "Agent:    %s\n", *t.AssignedAgent)
			}
			if len(t.Tags) > 0 {
				_, _ = fmt.Fprintf(out, "Tags:     %s\n", strings.Join(t.Tags, ", "))
			}
			if t.Description != "" {
				_, _ = fmt.Fprintf(out, "\n%s\n", t.Description)
			}
			if len(t.PlanningQA) > 0 {
				_, _ = fmt.Fprintln(out, "\nPlanning:")
				for _, qa := range t.PlanningQA {
					_, _ = fmt.Fprintf(out, "  Q: %s\n  A: %s\n", qa.Question, qa.Answer)
				}
			}
			if len(t.Deliverables) > 0 {
				_, _ = fmt.Fprintln(out, "\nDeliverables:")
				for _, d := range t.Deliverables {
					where := d.Content
					if d.FilePath != nil {
						where = *d.FilePath
					}
					_, _ = fmt.Fprintf(out, "  %s %s: %s\n", d.Type.Icon(), d.Name, where)
				}
			}
			return nil
		},
	}
}

func newTaskMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <task-id> <status>",
		Short: "Move a task to another column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("task", args[0])
			if err != nil {
				return err
			}
			st, err := mission.ParseTaskStatus(strings.ToUpper(args[1]))
			if err != nil {
				return err
			}
			b, closeFn, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			t, err := b.MoveTask(cmd.Context(), id, st)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to %s\n", t.Title, t.Status.DisplayName())
			return nil
		},
	}
}

func newTaskAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <task-id> <agent-id>",
		Short: "Assign a task to an agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID("task", args[0])
			if err != nil {
				return err
			}
			agentID, err := parseID("agent", args[1])
			if err != nil {
				return err
			}
			b, closeFn, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			t, err := b.AssignTask(cmd.Context(), taskID, agentID)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Assigned %s to %s\n", t.Title, *t.AssignedAgent)
			return nil
		},
	}
}

func newTaskPlanCmd() *cobra.Command {
	var answers []string
	cmd := &cobra.Command{
		Use:   "plan <task-id>",
		Short: "Answer the planning questions and move the task to INBOX",
		Long: "Without --answer flags, each planning question is printed and its answer read\n" +
			"from stdin, one line per answer. An empty line or EOF skips the remaining questions.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("task", args[0])
			if err != nil {
				return err
			}
			if len(answers) == 0 {
				if answers, err = askPlanningQuestions(cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			b, closeFn, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			t, err := b.PlanTask(cmd.Context(), id, answers)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Planned %s (%d answers), now %s\n", t.Title, len(answers), t.Status.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&answers, "answer", nil, "Answer to the next planning question (repeatable, in order)")
	return cmd
}

// askPlanningQuestions runs the planning dialogue on r and w.
func askPlanningQuestions(r io.Reader, w io.Writer) ([]string, error) {
	p := mission.NewPlanner(nil)
	sc := bufio.NewScanner(r)
	var answers []string
	for !p.Done() {
		_, _ = fmt.Fprintf(w, "%s\n> ", p.Current())
		if !sc.Scan() {
			break
		}
		answer := strings.TrimSpace(sc.Text())
		if answer == "" {
			break
		}
		answers = append(answers, answer)
		p.Answer(answer)
	}
	_, _ = fmt.Fprintln(w)
	return answers, sc.Err()
}

func newTaskDeliverableCmd() *cobra.Command {
	var (
		name     string
		typ      string
		content  string
		filePath string
	)
	cmd := &cobra.Command{
		Use:   "deliverable <task-id>",
		Short: "Attach a deliverable to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("task", args[0])
			if err != nil {
				return err
			}
			dt, err := mission.ParseDeliverableType(strings.ToUpper(typ))
			if err != nil {
				return err
			}
			var fp *string
			if filePath != "" {
				fp = &filePath
			}
			b, closeFn, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			t, err := b.AddDeliverable(cmd.Context(), id, mission.NewDeliverable(name, dt, content, fp))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added %s to %s (%d deliverables)\n", name, t.Title, len(t.Deliverables))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Deliverable name")
	cmd.Flags().StringVar(&typ, "type", string(mission.DeliverableDocument), "DOCUMENT, CODE, REPORT, DATA, IMAGE or OTHER")
	cmd.Flags().StringVar(&content, "content", "", "Inline content")
	cmd.Flags().StringVar(&filePath, "file", "", "Path to the produced file")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newTaskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
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

			if err := b.DeleteTask(cmd.Context(), id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", id)
			return nil
		},
	}
}
