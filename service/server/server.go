// Package server exposes the native host's invoke surface to the webview
// bridge, plus target registration, pairing and health endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"beacon/service/config"
	"beacon/service/connectivity"
	"beacon/service/delivery"
	"beacon/service/keystore"
	"beacon/service/subscription"
	"beacon/service/telegram"
	"beacon/service/util"
	"beacon/service/webpush"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

type Server struct {
	cfg       *config.Config
	store     *subscription.Store
	keys      *keystore.Store
	publisher *delivery.Publisher
	checker   *connectivity.Checker
	logger    *slog.Logger
	router    *chi.Mux

	httpServer *http.Server
	startTime  time.Time
	version    string
}

func New(cfg *config.Config, version string) (*Server, error) {
	logger := util.NewLogger(cfg.VerboseLogging)

	store, err := subscription.NewStore(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create target store: %w", err)
	}

	keys, err := keystore.New(store.DB(), cfg.APIKey, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create keystore: %w", err)
	}

	publisher := delivery.NewPublisher(store, logger)
	publisher.RegisterSender(subscription.ChannelWebPush, webpush.NewSender(logger))

	if cfg.IsTelegramEnabled() {
		tgClient, err := telegram.NewClient(cfg.TelegramBotToken)
		if err != nil {
			return nil, fmt.Errorf("failed to create telegram client: %w", err)
		}
		if bot, err := tgClient.GetMe(); err != nil {
			logger.Warn("Telegram bot not reachable yet", "error", err)
		} else {
			logger.Info("Telegram channel enabled", "bot", bot.Username)
		}
		publisher.RegisterSender(subscription.ChannelTelegram, telegram.NewSender(tgClient, logger))

		if cfg.TelegramChatID != "" {
			if err := ensureTelegramTarget(store, cfg.TelegramChatID); err != nil {
				logger.Warn("Failed to register default telegram target", "error", err)
			}
		}
	}

	s := &Server{
		cfg:       cfg,
		store:     store,
		keys:      keys,
		publisher: publisher,
		checker:   connectivity.NewChecker(cfg.ConnectivityHost, cfg.ConnectivityPort, logger),
		logger:    logger,
		startTime: time.Now(),
		version:   version,
	}

	s.setupRoutes()
	return s, nil
}

// ensureTelegramTarget registers the configured default chat once; restarts
// must not multiply targets.
func ensureTelegramTarget(store *subscription.Store, chatID string) error {
	existing, err := store.FindTelegramTarget(chatID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = store.AddTarget(subscription.Target{
		Channel:  subscription.ChannelTelegram,
		Telegram: &subscription.TelegramTarget{ChatID: chatID},
	})
	return err
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(s.logger))
	r.Use(securityHeadersMiddleware())
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(middleware.StripSlashes)
	r.Use(httprate.LimitByIP(s.cfg.RateLimit, time.Minute))

	r.Get("/health", s.handleHealth)

	r.Route("/bridge", func(r chi.Router) {
		r.Use(authMiddleware(s.cfg.APIKey))
		r.Post("/invoke", s.handleInvoke)
	})

	r.Route("/targets", func(r chi.Router) {
		r.Use(authMiddleware(s.cfg.APIKey))
		r.Get("/", s.handleListTargets)
		r.Post("/webpush", s.handleRegisterWebPush)
		r.Delete("/{targetID}", s.handleDeleteTarget)
	})

	r.With(authMiddleware(s.cfg.APIKey)).Get("/pair", s.handlePair)

	s.router = r
}

func (s *Server) Start(ctx context.Context) error {
	go func() {
		probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if s.checker.Check(probeCtx) {
			s.logger.Info("Application server reachable", "host", s.cfg.ConnectivityHost, "port", s.cfg.ConnectivityPort)
		} else {
			s.logger.Warn("Application server unreachable", "host", s.cfg.ConnectivityHost, "port", s.cfg.ConnectivityPort)
		}
	}()

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	msg := fmt.Sprintf("Beacon running on:\n  Local: http://localhost:%d", s.cfg.Port)
	if lanIP := util.GetLANIP(); lanIP != "" {
		msg += fmt.Sprintf("\n  Network: http://%s:%d", lanIP, s.cfg.Port)
	}
	s.logger.Info(msg)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}

	if err := s.store.Close(); err != nil {
		return fmt.Errorf("failed to close target store: %w", err)
	}

	return nil
}
