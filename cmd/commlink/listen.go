package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/opd-ai/commlink"
	"github.com/opd-ai/commlink/call"
	"github.com/opd-ai/commlink/transport"
)

var listenFlags struct {
	conversation int64
}

func init() {
	listenCmd.Flags().Int64Var(&listenFlags.conversation, "conversation", 0, "conversation to follow")
	rootCmd.AddCommand(listenCmd)
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Follow a conversation in realtime until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Stop()

		ctx, cancel := interruptContext(cmd.Context())
		defer cancel()

		p := &printer{out: cmd.OutOrStdout(), client: client, seen: make(map[int64]bool)}
		p.wire()

		if err := client.Start(ctx); err != nil {
			p.line("realtime unavailable, polling: %v", err)
		}
		if listenFlags.conversation != 0 {
			if err := client.SwitchConversation(ctx, listenFlags.conversation); err != nil {
				return err
			}
		}

		<-ctx.Done()
		return nil
	},
}

// printer writes client activity as it happens. Callbacks arrive from
// several goroutines so writes are serialized.
type printer struct {
	out    io.Writer
	client *commlink.Client

	mu   sync.Mutex
	seen map[int64]bool
}

func (p *printer) line(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) wire() {
	c := p.client
	c.OnStatus(func(s transport.Status) {
		p.line("* realtime %s", s)
	})
	c.OnNotice(func(n commlink.Notice) {
		p.line("! %s: %v", n.Action, n.Err)
	})
	c.Store().OnChange(func(conversationID int64) {
		if conversationID != c.Active() {
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		for _, m := range c.Store().Messages() {
			if p.seen[m.ID] {
				continue
			}
			p.seen[m.ID] = true
			printMessage(p.out, m)
		}
	})
	c.Typing().OnChange(func(conversationID int64, users []int64) {
		if conversationID != c.Active() {
			return
		}
		if names := c.TypingNames(conversationID); len(names) > 0 {
			p.line("* %s typing…", strings.Join(names, ", "))
		}
	})
	c.Calls().OnState(func(s call.State, err error) {
		if err != nil {
			p.line("* call %s: %v", s, err)
			return
		}
		p.line("* call %s", s)
	})
}
