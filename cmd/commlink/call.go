package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opd-ai/commlink"
	"github.com/opd-ai/commlink/call"
)

var callFlags struct {
	conversation int64
	muted        bool
}

func init() {
	f := callCmd.Flags()
	f.Int64Var(&callFlags.conversation, "conversation", 0, "conversation to call")
	f.BoolVar(&callFlags.muted, "muted", false, "join with the microphone muted")
	_ = callCmd.MarkFlagRequired("conversation")
	rootCmd.AddCommand(callCmd)
}

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Call every other member of a conversation; Ctrl-C hangs up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Stop()

		ctx, cancel := interruptContext(context.Background())
		defer cancel()

		out := cmd.OutOrStdout()
		ended := make(chan struct{})
		var wasActive bool
		engine := client.Calls()
		engine.OnState(func(s call.State, err error) {
			switch {
			case err != nil:
				fmt.Fprintf(out, "call %s: %v\n", s, err)
			case s == call.StateInCall:
				snap := engine.Snapshot()
				fmt.Fprintf(out, "in call with %s\n", joinIDs(snap.Peers))
			default:
				fmt.Fprintf(out, "call %s\n", s)
			}
			if s.Active() {
				wasActive = true
			} else if s == call.StateIdle && wasActive {
				wasActive = false
				select {
				case <-ended:
				default:
					close(ended)
				}
			}
		})

		client.OnNotice(func(n commlink.Notice) {
			fmt.Fprintf(out, "! %s: %v\n", n.Action, n.Err)
		})

		if err := client.Start(ctx); err != nil {
			return err
		}
		if err := client.SwitchConversation(ctx, callFlags.conversation); err != nil {
			return err
		}
		if err := client.StartCall(ctx); err != nil {
			return err
		}
		if callFlags.muted {
			if err := engine.SetMuted(true); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "hanging up")
			if err := client.Hangup(); err != nil && !errors.Is(err, call.ErrNoActiveCall) {
				return err
			}
		case <-ended:
		}
		return nil
	},
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("user %d", id)
	}
	return strings.Join(parts, ", ")
}
