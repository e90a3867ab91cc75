package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fanclubhq/fanclub-backend/internal/config"
	"github.com/fanclubhq/fanclub-backend/internal/reconcile"
	"github.com/fanclubhq/fanclub-backend/internal/storage"
)

// Server exposes the membership and payment HTTP surface
type Server struct {
	cfg        *config.Config
	store      *storage.Storage
	reconciler *reconcile.Reconciler
	log        *slog.Logger

	router chi.Router
	server *http.Server
}

// New creates a new Server with its routes registered
func New(cfg *config.Config, store *storage.Storage, rec *reconcile.Reconciler, log *slog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		store:      store,
		reconciler: rec,
		log:        log,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/submit-form", s.handleSubmitForm)
	r.Post("/generate-payment-link", s.handleGeneratePaymentLink)
	r.Post("/verify-payment", s.handleVerifyPayment)
	r.Post("/webhook", s.handleWebhook)
	r.Get("/member", s.handleGetMember)
	r.Get("/health", s.handleHealth)

	s.router = r
	return s
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and shuts it down when ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info("starting http server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
