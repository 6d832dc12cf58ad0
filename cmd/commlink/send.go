package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/opd-ai/commlink/composer"
)

var sendFlags struct {
	conversation int64
	body         string
	attach       []string
	voiceNote    string
	duration     time.Duration
}

func init() {
	f := sendCmd.Flags()
	f.Int64Var(&sendFlags.conversation, "conversation", 0, "conversation id")
	f.StringVar(&sendFlags.body, "body", "", "message text")
	f.StringSliceVar(&sendFlags.attach, "attach", nil, "files to upload and attach")
	f.StringVar(&sendFlags.voiceNote, "voice-note", "", "recorded audio to attach as a voice note")
	f.DurationVar(&sendFlags.duration, "duration", 0, "length of the voice note")
	_ = sendCmd.MarkFlagRequired("conversation")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message, optionally with attachments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if sendFlags.body == "" && len(sendFlags.attach) == 0 && sendFlags.voiceNote == "" {
			return errors.New("nothing to send: set --body, --attach or --voice-note")
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Stop()

		ctx, cancel := interruptContext(context.Background())
		defer cancel()
		if err := client.SwitchConversation(ctx, sendFlags.conversation); err != nil {
			return err
		}

		draft := client.Composer()
		for _, path := range sendFlags.attach {
			if err := attachPath(ctx, cmd, draft, path); err != nil {
				return err
			}
		}
		if sendFlags.voiceNote != "" {
			audio, err := os.ReadFile(sendFlags.voiceNote)
			if err != nil {
				return err
			}
			contentType := mime.TypeByExtension(filepath.Ext(sendFlags.voiceNote))
			if contentType == "" {
				contentType = "audio/ogg"
			}
			att, err := draft.AttachVoiceNote(ctx, audio, contentType, sendFlags.duration)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "uploaded voice note (%s)\n", humanize.Bytes(uint64(att.Size)))
		}
		draft.Input(sendFlags.body, -1)

		msg, err := client.Send(ctx)
		if err != nil {
			return err
		}
		printMessage(cmd.OutOrStdout(), msg)
		return nil
	},
}

func attachPath(ctx context.Context, cmd *cobra.Command, draft *composer.Composer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	att, err := draft.AttachFile(ctx, filepath.Base(path), contentType, f)
	if err != nil {
		return fmt.Errorf("attach %s: %w", path, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "uploaded %s (%s)\n", att.Name, humanize.Bytes(uint64(att.Size)))
	return nil
}
