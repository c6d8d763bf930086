package webchat

import (
	"context"
	"embed"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/marionette/pkg/bridge"
	"github.com/go-go-golems/marionette/pkg/config"
	"github.com/go-go-golems/marionette/pkg/webhook"
)

//go:embed static/*
var staticFS embed.FS

// Server owns the HTTP surface, the session registry and the streaming
// pipeline between the agent webhook and connected clients.
type Server struct {
	baseCtx  context.Context
	settings *config.Settings

	source   bridge.Source
	pubsub   *gochannel.GoChannel
	registry *Registry
	chat     *ChatService

	upgrader websocket.Upgrader
	mux      *http.ServeMux
	server   *http.Server
}

type Option func(*Server)

// WithSource substitutes the agent stream source; used by tests.
func WithSource(src bridge.Source) Option {
	return func(s *Server) { s.source = src }
}

func NewServer(ctx context.Context, settings *config.Settings, opts ...Option) (*Server, error) {
	s := &Server{
		baseCtx:  ctx,
		settings: settings,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.source == nil {
		if err := settings.Validate(); err != nil {
			return nil, errors.Wrap(err, "invalid settings")
		}
		s.source = webhook.NewClient(
			settings.WebhookURL,
			settings.WebhookUsername,
			settings.WebhookPassword,
			webhook.WithTimeout(settings.RequestTimeout),
		)
	}

	s.pubsub = gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(settings.BridgeBuffer),
	}, newWatermillLogger())
	s.registry = NewRegistry(s.pubsub)
	s.chat = NewChatService(
		bridge.New(s.source,
			bridge.WithBuffer(settings.BridgeBuffer),
			bridge.WithDeadline(settings.StreamDeadline),
		),
		s.pubsub,
	)

	s.registerRoutes()
	s.server = &http.Server{
		Addr:              settings.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler exposes the route mux; used by tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	eg := errgroup.Group{}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		s.registry.Close()
		if err := s.pubsub.Close(); err != nil {
			log.Error().Err(err).Msg("pubsub close error")
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", s.settings.Addr).Msg("starting marionette server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		srvCancel()
		return nil
	})

	return eg.Wait()
}
