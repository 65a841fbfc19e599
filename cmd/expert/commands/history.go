package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dominicdesy/intelia-expert-sub011/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse and manage the conversation history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations grouped by recency",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAppClient(cmd.Context())
		defer client.close()

		identity, err := client.identity()
		if err != nil {
			return err
		}
		if err := client.store.Load(cmd.Context(), identity); err != nil {
			return err
		}

		groups := client.store.Groups()
		total := 0
		for _, section := range []struct {
			label string
			items []types.ConversationSummary
		}{
			{"Today", groups.Today},
			{"Yesterday", groups.Yesterday},
			{"This week", groups.ThisWeek},
			{"This month", groups.ThisMonth},
			{"Older", groups.Older},
		} {
			if len(section.items) == 0 {
				continue
			}
			fmt.Printf("%s\n", section.label)
			for _, summary := range section.items {
				fmt.Printf("  %-28s %3d msg  %s\n", summary.ID, summary.MessageCount, summary.Title)
			}
			total += len(section.items)
		}
		if total == 0 {
			fmt.Println("No conversations yet")
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show the messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAppClient(cmd.Context())
		defer client.close()

		identity, err := client.identity()
		if err != nil {
			return err
		}

		detail := client.store.LoadConversation(cmd.Context(), identity, args[0])
		fmt.Printf("%s\n%s\n", detail.Title, strings.Repeat("-", len(detail.Title)))
		for _, msg := range detail.Messages {
			speaker := "assistant"
			if msg.IsUser {
				speaker = "you"
			}
			fmt.Printf("[%s] %s\n%s\n\n", msg.Timestamp.Local().Format("2006-01-02 15:04"), speaker, msg.Content)
		}
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAppClient(cmd.Context())
		defer client.close()

		identity, err := client.identity()
		if err != nil {
			return err
		}
		if err := client.store.DeleteConversation(cmd.Context(), identity, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAppClient(cmd.Context())
		defer client.close()

		identity, err := client.identity()
		if err != nil {
			return err
		}
		if err := client.store.ClearAll(cmd.Context(), identity); err != nil {
			return err
		}
		fmt.Println("History cleared")
		return nil
	},
}

var historyRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force a reload of the conversation list",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAppClient(cmd.Context())
		defer client.close()

		identity, err := client.identity()
		if err != nil {
			return err
		}
		if err := client.store.Refresh(cmd.Context(), identity); err != nil {
			return err
		}
		fmt.Printf("Loaded %d conversations\n", len(client.store.Summaries()))
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)
	historyCmd.AddCommand(historyRefreshCmd)
}
