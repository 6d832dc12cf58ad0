package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/opd-ai/commlink/chat"
)

var searchFlags struct {
	text           string
	conversations  []int64
	sender         int64
	since          time.Duration
	kinds          []string
	references     []string
	hasLinks       string
	hasAttachments string
	hasSuggestions string
	mentions       bool
	limit          int
}

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchFlags.text, "text", "", "free text")
	f.Int64SliceVar(&searchFlags.conversations, "conversation", nil, "restrict to conversation ids")
	f.Int64Var(&searchFlags.sender, "sender", 0, "restrict to a sender id")
	f.DurationVar(&searchFlags.since, "since", 0, "only messages newer than this")
	f.StringSliceVar(&searchFlags.kinds, "kind", nil, "attachment kinds (image, file, voice_note, video)")
	f.StringSliceVar(&searchFlags.references, "reference", nil, "reference types (task, note, ...)")
	f.StringVar(&searchFlags.hasLinks, "has-links", "", "yes, no or any")
	f.StringVar(&searchFlags.hasAttachments, "has-attachments", "", "yes, no or any")
	f.StringVar(&searchFlags.hasSuggestions, "has-suggestions", "", "yes, no or any")
	f.BoolVar(&searchFlags.mentions, "mentions", false, "only messages mentioning me")
	f.IntVar(&searchFlags.limit, "limit", 20, "maximum results")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search message history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := chat.SearchFilter{
			Text:            searchFlags.text,
			ConversationIDs: searchFlags.conversations,
			SenderID:        searchFlags.sender,
			ReferenceTypes:  searchFlags.references,
			HasLinks:        chat.TriState(searchFlags.hasLinks),
			HasAttachments:  chat.TriState(searchFlags.hasAttachments),
			HasSuggestions:  chat.TriState(searchFlags.hasSuggestions),
			MentionsOnly:    searchFlags.mentions,
			Limit:           searchFlags.limit,
		}
		for _, k := range searchFlags.kinds {
			filter.AttachmentKinds = append(filter.AttachmentKinds, chat.AttachmentKind(k))
		}
		if searchFlags.since > 0 {
			from := time.Now().Add(-searchFlags.since)
			filter.From = &from
		}

		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Stop()

		ctx, cancel := interruptContext(context.Background())
		defer cancel()
		results, err := client.Search(ctx, filter)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s results\n", humanize.Comma(int64(len(results))))
		for _, r := range results {
			name := r.ConversationName
			if name == "" {
				name = fmt.Sprintf("conversation %d", r.Message.ConversationID)
			}
			fmt.Fprintf(out, "[%s] ", name)
			printMessage(out, r.Message)
		}
		return nil
	},
}
