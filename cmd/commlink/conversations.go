package main

import (
	"context"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(conversationsCmd)
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List conversations, most recently active first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Stop()

		ctx, cancel := interruptContext(context.Background())
		defer cancel()
		if err := client.Directory().Load(ctx); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, c := range client.Directory().Conversations() {
			printConversation(out, c)
		}
		return nil
	},
}
