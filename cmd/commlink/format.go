package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/opd-ai/commlink/chat"
)

const bodyPreview = 120

func printMessage(w io.Writer, m chat.Message) {
	body := m.Body
	if m.IsSensitive {
		body = "[sensitive]"
	}
	if r := []rune(body); len(r) > bodyPreview {
		body = string(r[:bodyPreview]) + "…"
	}
	fmt.Fprintf(w, "#%d %s user %d: %s\n", m.ID, humanize.Time(m.CreatedAt), m.SenderID, body)
	for _, a := range m.Attachments {
		fmt.Fprintf(w, "    %s %s (%s)\n", a.Kind, a.Name, humanize.Bytes(uint64(a.Size)))
		if a.Transcript != "" {
			fmt.Fprintf(w, "      transcript: %s\n", a.Transcript)
		}
	}
	if len(m.Reactions) > 0 {
		counts := make(map[string]int)
		var order []string
		for _, r := range m.Reactions {
			if counts[r.Emoji] == 0 {
				order = append(order, r.Emoji)
			}
			counts[r.Emoji]++
		}
		parts := make([]string, 0, len(order))
		for _, e := range order {
			parts = append(parts, fmt.Sprintf("%s %d", e, counts[e]))
		}
		fmt.Fprintf(w, "    %s\n", strings.Join(parts, "  "))
	}
}

func printConversation(w io.Writer, c chat.Conversation) {
	last := "never"
	if c.LastMessageAt != nil {
		last = humanize.Time(*c.LastMessageAt)
	}
	name := c.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(w, "%6d  %-6s  %-30s  %s\n", c.ID, c.Type, name, last)
}
