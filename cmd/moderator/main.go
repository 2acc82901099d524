package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/duochat/chat-app/internal/ban"
	"github.com/duochat/chat-app/internal/messaging"
	"github.com/duochat/chat-app/internal/moderation"
)

func main() {
	log.Println("Starting duochat moderation service...")

	// Redis setup.
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	bans := ban.NewStore(rdb)

	// NATS setup.
	natsConfig := messaging.DefaultConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "duochat-moderator"

	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// Initialize content filter.
	filter := moderation.NewFilter()

	// Subscribe to moderation check requests published by the coordination
	// server for every relayed message.
	err = natsClient.SubscribeModerationCheck(func(data []byte) {
		var req moderation.CheckRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Printf("[moderator] failed to unmarshal request: %v", err)
			return
		}

		result := filter.Check(req.Text)
		if !result.Blocked {
			log.Printf("[moderator] CLEAN user=%s chat=%s", req.UserID, req.ChatID)
			return
		}

		log.Printf("[moderator] FLAGGED user=%s chat=%s reason=%s term=%q",
			req.UserID, req.ChatID, result.Reason, result.Term)
		for _, m := range req.Context {
			log.Printf("[moderator]   context ts=%d from=%s text=%q", m.Ts, m.From, m.Text)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		count, err := bans.RecordOffense(ctx, req.UserID)
		if err != nil {
			log.Printf("[moderator] failed to record offense for user=%s: %v", req.UserID, err)
			return
		}
		log.Printf("[moderator] user=%s offense_count=%d", req.UserID, count)

		if count >= ban.AutoBanThreshold {
			duration := ban.EscalationDuration(count - ban.AutoBanThreshold + 1)
			if err := bans.Ban(ctx, req.UserID, duration, result.Reason); err != nil {
				log.Printf("[moderator] failed to ban user=%s: %v", req.UserID, err)
				return
			}
			log.Printf("[moderator] BANNED user=%s duration=%s reason=%s",
				req.UserID, duration, result.Reason)
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to moderation checks: %v", err)
	}

	// Watch the lifecycle firehose for operational visibility.
	err = natsClient.SubscribeLifecycle(func(subject string, event messaging.ChatLifecycleEvent) {
		switch subject {
		case messaging.SubjectChatStarted:
			log.Printf("[lifecycle] chat started chat=%s users=%s,%s", event.ChatID, event.UserA, event.UserB)
		case messaging.SubjectChatEnded:
			log.Printf("[lifecycle] chat ended chat=%s by=%s reason=%s", event.ChatID, event.EndedBy, event.Reason)
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to lifecycle events: %v", err)
	}

	log.Printf("duochat moderation service running")
	log.Printf("  redis_addr: %s", redisAddr)
	log.Printf("  nats_url:   %s", natsConfig.URL)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	natsClient.Close()
	rdb.Close()
}
