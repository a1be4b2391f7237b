package telegram

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// WebhookServer receives updates pushed by Telegram instead of polling.
// Updates go through the same per-chat dispatcher as polling does.
type WebhookServer struct {
	bot    *Bot
	router *chi.Mux
	srv    *http.Server

	// base context for updates accepted after the request returns
	ctx context.Context
}

// NewWebhookServer builds the HTTP surface for webhook mode.
func NewWebhookServer(bot *Bot, addr string) *WebhookServer {
	s := &WebhookServer{
		bot:    bot,
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *WebhookServer) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Post("/telegram/webhook", s.handleWebhook)
}

// Router exposes the handler for tests.
func (s *WebhookServer) Router() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *WebhookServer) Run(ctx context.Context) error {
	s.ctx = ctx

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info().Str("addr", s.srv.Addr).Msg("Webhook server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.bot.Close()
	return ctx.Err()
}

func (s *WebhookServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *WebhookServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var u Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		log.Debug().Err(err).Msg("Rejecting malformed webhook payload")
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}

	// Telegram retries until it sees 200, so acknowledge before processing.
	w.WriteHeader(http.StatusOK)

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	s.bot.Dispatch(ctx, u)
}
