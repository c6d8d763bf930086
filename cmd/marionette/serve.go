package main

import (
	"github.com/spf13/cobra"

	"github.com/go-go-golems/marionette/pkg/config"
	"github.com/go-go-golems/marionette/pkg/webchat"
)

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				settings.Addr = addr
			}
			srv, err := webchat.NewServer(cmd.Context(), settings)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	return cmd
}
