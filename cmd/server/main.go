package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/fanclubhq/fanclub-backend/internal/config"
	"github.com/fanclubhq/fanclub-backend/internal/notifier"
	"github.com/fanclubhq/fanclub-backend/internal/paystack"
	"github.com/fanclubhq/fanclub-backend/internal/reconcile"
	"github.com/fanclubhq/fanclub-backend/internal/server"
	"github.com/fanclubhq/fanclub-backend/internal/storage"
)

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	// Load config
	cfg := config.Load()

	if cfg.PaystackSecretKey == "" {
		log.Error("PAYSTACK_SECRET_KEY is required")
		os.Exit(1)
	}

	// Initialize storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	// Initialize Paystack client
	gateway := paystack.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey)
	log.Info("paystack client initialized", "base_url", cfg.PaystackBaseURL)

	// Initialize notifier
	notify, err := notifier.New(cfg.TelegramBotToken, cfg.TelegramAdminChatID, log)
	if err != nil {
		log.Error("init notifier", "error", err)
		os.Exit(1)
	}

	// Initialize reconciler
	rec := reconcile.New(store, gateway, cfg.PaystackSecretKey, cfg.CallbackBaseURL, notify.PaymentConfirmed, log)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start HTTP server
	srv := server.New(cfg, store, rec, log)
	if err := srv.Start(ctx, cfg.Port); err != nil && err != http.ErrServerClosed {
		log.Error("http server", "error", err)
		os.Exit(1)
	}
}
