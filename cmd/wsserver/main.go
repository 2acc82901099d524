package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/duochat/chat-app/internal/ban"
	"github.com/duochat/chat-app/internal/messaging"
	"github.com/duochat/chat-app/internal/registry"
	"github.com/duochat/chat-app/internal/router"
	"github.com/duochat/chat-app/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	// --- NATS (moderation pipeline + lifecycle firehose) ---
	var natsClient *messaging.Client
	if os.Getenv("DISABLE_NATS") != "true" {
		natsConfig := messaging.DefaultConfig()
		if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
			natsConfig.URL = natsURL
		}
		var err error
		natsClient, err = messaging.NewClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
	}

	// --- Redis (ban store) ---
	var rdb *redis.Client
	if os.Getenv("DISABLE_REDIS") != "true" {
		redisAddr := "localhost:6379"
		if v := os.Getenv("REDIS_ADDR"); v != "" {
			redisAddr = v
		}
		rdb = redis.NewClient(&redis.Options{Addr: redisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			cancel()
			log.Fatalf("failed to connect to Redis at %s: %v", redisAddr, err)
		}
		cancel()
		log.Printf("  redis_addr:      %s", redisAddr)
	}

	log.Printf("duochat coordination server starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  read_timeout:    %s", config.ReadTimeout)
	log.Printf("  write_timeout:   %s", config.WriteTimeout)
	log.Printf("  nats:            %v", natsClient != nil)
	log.Printf("  ban_store:       %v", rdb != nil)

	reg := registry.New()
	server := ws.NewServer(config)

	rt := router.New(reg, server)
	if rdb != nil {
		rt.SetBanStore(ban.NewStore(rdb))
	}
	if natsClient != nil {
		rt.SetMessaging(natsClient)
	}

	server.SetOnMessage(func(conn *ws.Connection, data []byte) {
		rt.Dispatch(conn.ID, data)
	})
	server.SetOnDisconnect(rt.HandleDisconnect)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if natsClient != nil {
			natsClient.Close()
		}
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if rdb != nil {
			if err := rdb.Close(); err != nil {
				log.Printf("redis close error: %v", err)
			}
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
