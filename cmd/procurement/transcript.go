package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type transcriptOptions struct {
	since          int64
	conversationID string
	asJSON         bool
	plain          bool
}

// newTranscriptCmd 打印持久化的会话记录（file、redis、sql 后端）
func newTranscriptCmd(root *rootOptions) *cobra.Command {
	opts := &transcriptOptions{}
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Print a persisted transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if opts.conversationID != "" {
				cfg.Transcript.ConversationID = opts.conversationID
			}
			logger := initLogger(cfg.Log)
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			snap, err := a.store.Snapshot(ctx)
			if err != nil {
				return fmt.Errorf("read transcript: %w", err)
			}
			msgs := snap.Since(opts.since).Messages()

			out := cmd.OutOrStdout()
			if opts.asJSON {
				enc := json.NewEncoder(out)
				for _, m := range msgs {
					if err := enc.Encode(m); err != nil {
						return err
					}
				}
				return nil
			}

			view := newRenderer(out, opts.plain, "")
			for _, m := range msgs {
				view.Message(m)
			}
			fmt.Fprintf(out, "%d message(s), last seq %d\n", len(msgs), snap.LastSeq())
			return nil
		},
	}
	cmd.Flags().Int64Var(&opts.since, "since", 0, "Only print messages with seq greater than this")
	cmd.Flags().StringVar(&opts.conversationID, "conversation", "", "Conversation id (default: transcript.conversation_id)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print one JSON message per line")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Disable colors and markdown rendering")
	return cmd
}
