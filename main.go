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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/marcinbunsch/overseer-sub001/agent"
	"github.com/marcinbunsch/overseer-sub001/api"
	"github.com/marcinbunsch/overseer-sub001/approval"
	"github.com/marcinbunsch/overseer-sub001/config"
	"github.com/marcinbunsch/overseer-sub001/conversation"
	"github.com/marcinbunsch/overseer-sub001/hub"
	"github.com/marcinbunsch/overseer-sub001/overseer"
	"github.com/marcinbunsch/overseer-sub001/store"
	"github.com/marcinbunsch/overseer-sub001/ws"
)

func main() {
	cfg := config.Load()

	log.Printf("Starting sync server...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("WS Port: %d", cfg.WSPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Agent URL: %s", cfg.AgentURL)

	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	source := agent.NewClient(cfg.AgentURL)

	ctx := context.Background()
	safetyPolicy := approval.DefaultSafetyPolicy
	if cfg.SafetyPolicyPath != "" {
		raw, err := os.ReadFile(cfg.SafetyPolicyPath)
		if err != nil {
			log.Fatalf("Failed to read safety policy: %v", err)
		}
		safetyPolicy = string(raw)
	}
	safety, err := approval.NewRegoClassifier(ctx, safetyPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize safety classifier: %v", err)
	}

	h := hub.NewHub()
	go h.Run()

	broadcaster := ws.NewBroadcaster(h)
	dispatcher := overseer.NewCommandDispatcher(db)

	registry := conversation.NewRegistry(conversation.RegistryParams{
		Source:      source,
		Store:       db,
		Safety:      safety,
		Dispatcher:  dispatcher,
		Broadcaster: broadcaster,
		FilesChanged: func(conversationID string) {
			broadcaster.Notify(conversationID, "Files changed")
		},
		SettleDelay:      cfg.SettleDelay,
		DebounceInterval: cfg.DebounceInterval,
	})

	reconciler := conversation.NewReconciler(registry, db, cfg.DebounceInterval)
	go reconciler.Run()

	wsServer := ws.NewServer(cfg, h, registry, reconciler, db)
	apiHandler := api.NewHandler(registry, reconciler, db, cfg)

	// HTTP API server
	httpServer := echo.New()
	httpServer.HideBanner = true
	httpServer.Use(middleware.Logger())
	httpServer.Use(middleware.Recover())
	httpServer.Use(middleware.CORS())
	apiHandler.RegisterRoutes(httpServer)

	// WebSocket server for observers
	obsServer := echo.New()
	obsServer.HideBanner = true
	obsServer.Use(middleware.Recover())
	obsServer.GET("/ws", wsServer.HandleWebSocket)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	go func() {
		addr := fmt.Sprintf(":%d", cfg.WSPort)
		if err := obsServer.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start WebSocket server: %v", err)
		}
	}()

	log.Printf("HTTP API started on port %d", cfg.HTTPPort)
	log.Printf("WebSocket server started on port %d", cfg.WSPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down sync server...")

	reconciler.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown HTTP server gracefully: %v", err)
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown WebSocket server gracefully: %v", err)
	}

	log.Println("Sync server stopped")
}
