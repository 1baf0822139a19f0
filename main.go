package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xiaot623/warelay/internal/ack"
	"github.com/xiaot623/warelay/internal/config"
	internalhttp "github.com/xiaot623/warelay/internal/http"
	"github.com/xiaot623/warelay/internal/hub"
	"github.com/xiaot623/warelay/internal/metrics"
	"github.com/xiaot623/warelay/internal/service"
	"github.com/xiaot623/warelay/internal/session"
	"github.com/xiaot623/warelay/internal/whatsapp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Starting relay...")
	log.Printf("HTTP Port: %d", cfg.AppPort)
	log.Printf("Client ID: %s", cfg.ClientID)
	log.Printf("Datastore: %s %s:%d/%s", cfg.DB.Driver, cfg.DB.Host, cfg.DB.Port, cfg.DB.Database)

	m := metrics.New()

	// Initialize hub
	connectionHub := hub.NewHub()
	connectionHub.OnChange = func(n int) { m.Connections.Set(float64(n)) }
	go connectionHub.Run()

	// Initialize acknowledgement persister
	persister, err := ack.NewPersister(cfg.DB.Driver, cfg.DB.DSN())
	if err != nil {
		log.Fatalf("Failed to initialize ack persister: %v", err)
	}

	// Initialize WhatsApp client
	ctx := context.Background()
	waClient, err := whatsapp.NewClient(ctx, cfg.ClientID, cfg.StoreDSN, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize WhatsApp client: %v", err)
	}

	marker := session.NewMarker(cfg.SessionDir, cfg.ClientID)
	svc := service.New(waClient, marker, persister, connectionHub, m, cfg.AckTimeout)

	httpServer := internalhttp.NewServer(cfg, svc, connectionHub, m)

	// Start HTTP server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.AppPort)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()
	log.Printf("Server running on port %d", cfg.AppPort)

	if err := svc.Start(ctx); err != nil {
		log.Fatalf("Failed to start WhatsApp client: %v", err)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down relay...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown HTTP server gracefully: %v", err)
	}
	svc.Stop()
	connectionHub.Stop()

	log.Println("Relay stopped")
}
