package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"school-evoting-backend/cache"
	"school-evoting-backend/database"
	"school-evoting-backend/handlers"
	"school-evoting-backend/mq"
	"school-evoting-backend/routes"
	"school-evoting-backend/websocket"
)

func main() {
	if err := database.InitDB(); err != nil {
		log.Fatalf("initializing database failed: %v", err)
	}
	log.Println("database initialized")

	if err := cache.InitRedis(); err != nil {
		log.Printf("warning: redis unavailable, running degraded: %v", err)
	}
	cache.InitDistLock()
	cache.InitTokenBloomFilter()

	// live turnout fan-out
	hub := websocket.NewHub()
	go hub.Run()

	// audit event queue: RocketMQ, Redis lists, or in-process
	adapter := mq.NewAdapter()
	if err := adapter.Initialize(); err != nil {
		log.Printf("warning: audit queue unavailable: %v", err)
	}

	handlers.InitHandlers(adapter, hub)

	if err := adapter.RegisterHandler(handlers.HandleAuditEvent); err != nil {
		log.Printf("warning: registering audit consumer failed: %v", err)
	}

	router := routes.SetupRouter(websocket.NewHandler(hub))
	srv := routes.StartServer(router)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}

	adapter.Close()
	cache.CloseRedis()
	database.CloseDB()

	log.Println("server stopped")
}
