package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/ankittk/missioncontrol/internal/store"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Send and read inter-agent messages",
	}
	cmd.AddCommand(newMessageSendCmd())
	cmd.AddCommand(newMessageListCmd())
	return cmd
}

func shortID(id uuid.UUID) string { return id.String()[:8] }

func printMessages(w io.Writer, msgs []mission.AgentMessage) {
	if len(msgs) == 0 {
		_, _ = fmt.Fprintln(w, "No messages.")
		return
	}
	for _, m := range msgs {
		to := "all"
		if m.ToAgent != nil {
			to = shortID(*m.ToAgent)
		}
		_, _ = fmt.Fprintf(w, "%s %s %s -> %s: %s\n", m.Timestamp.Local().Format(time.DateTime), m.Type.Icon(), shortID(m.FromAgent), to, m.Message)
	}
}

func newMessageSendCmd() *cobra.Command {
	var (
		from string
		to   string
		typ  string
	)
	cmd := &cobra.Command{
		Use:   "send <text>...",
		Short: "Send a message; without --to it is a broadcast",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromID, err := parseID("sender", from)
			if err != nil {
				return err
			}
			var toID *uuid.UUID
			if to != "" {
				id, err := parseID("recipient", to)
				if err != nil {
					return err
				}
				toID = &id
			}
			mt, err := mission.ParseMessageType(strings.ToUpper(typ))
			if err != nil {
				return err
			}
			b, closeFn, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			msg, err := b.SendMessage(cmd.Context(), fromID, toID, strings.Join(args, " "), mt)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Sent %s message %s\n", msg.Type, msg.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Sender agent id")
	cmd.Flags().StringVar(&to, "to", "", "Recipient agent id (default: broadcast)")
	cmd.Flags().StringVar(&typ, "type", string(mission.MessageCommunication), "Message type")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func newMessageListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the most recent messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, closeFn, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			msgs, err := b.ListMessages(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), msgs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", store.DefaultRecentMessages, "Maximum messages to show")
	return cmd
}
