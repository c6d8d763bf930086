package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/marionette/pkg/chunks"
	"github.com/go-go-golems/marionette/pkg/config"
	"github.com/go-go-golems/marionette/pkg/webhook"
)

func newAskCommand() *cobra.Command {
	var sessionID, user string
	var showStats bool
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message to the agent webhook and print the streamed answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			if err := settings.Validate(); err != nil {
				return err
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			client := webhook.NewClient(
				settings.WebhookURL,
				settings.WebhookUsername,
				settings.WebhookPassword,
				webhook.WithTimeout(settings.RequestTimeout),
			)
			parser := chunks.NewParser()
			payload := webhook.Payload{
				SessionID: sessionID,
				ChatInput: args[0],
				Message:   args[0],
				User:      user,
				Timestamp: time.Now().Format(time.RFC3339),
			}

			err = client.Stream(cmd.Context(), payload, func(line string) {
				c, perr := parser.ParseLine(line)
				if perr != nil {
					log.Warn().Err(perr).Msg("skipping malformed line")
					return
				}
				if c != nil && c.Type == chunks.TypeItem {
					fmt.Print(c.Content)
				}
			})
			if err != nil {
				return err
			}
			fmt.Println()

			if showStats {
				st := parser.Stats()
				fmt.Printf("chunks: %d (content %d), length %d, duration %s\n",
					st.TotalChunks, st.ContentChunks, st.TotalContentLength, st.Duration)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id (generated when empty)")
	cmd.Flags().StringVar(&user, "user", "cli", "user name sent to the agent")
	cmd.Flags().BoolVar(&showStats, "stats", false, "print stream statistics after the answer")
	return cmd
}
