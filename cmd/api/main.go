package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gathermap/backend/internal/config"
	"github.com/gathermap/backend/internal/handler"
	"github.com/gathermap/backend/internal/service/ai"
	roomservice "github.com/gathermap/backend/internal/service/room"
	"github.com/gathermap/backend/internal/service/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	st, err := store.Open(cfg.Storage.Driver, cfg.Storage.DataDir)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer st.Close()
	log.Printf("storage ready driver=%s dir=%s", cfg.Storage.Driver, cfg.Storage.DataDir)

	// The AI participant is optional: without credentials the room still
	// relays chat, it just never answers mentions.
	var responder roomservice.Responder
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality")
		} else {
			responder = aiService
			log.Printf("AI participant %q initialized", cfg.AI.UserID)
		}
	} else {
		log.Println("ark credentials not configured, skipping AI participant")
	}

	roomSvc := roomservice.NewService(cfg.Room, st, responder)

	router := handler.NewRouter(roomSvc)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("gathermap backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
