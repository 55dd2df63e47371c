// Command presencewatch connects to the realtime listener as one user and
// logs presence and availability changes as the server reports them.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/meinhoongagan/availability-engine/presence"
	"github.com/meinhoongagan/availability-engine/realtime"
)

func main() {
	_ = godotenv.Load()

	url := flag.String("url", envOr("PRESENCE_URL", "ws://localhost:8001/ws"), "realtime websocket endpoint")
	token := flag.String("token", os.Getenv("PRESENCE_TOKEN"), "bearer token of the watching user")
	backoff := flag.Duration("backoff", 2*time.Second, "delay between reconnect attempts")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if *token == "" {
		logger.Error("a token is required (-token or PRESENCE_TOKEN)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := presence.NewRegistry()
	sub := registry.Subscribe(func(userID string) {
		if userID == "" {
			online := registry.OnlineUsers()
			sort.Strings(online)
			logger.Info("presence snapshot", "online", online)
			return
		}
		status, _ := registry.Status(userID)
		logger.Info("presence changed", "user_id", userID, "online", registry.IsOnline(userID), "status", status)
	})
	defer sub.Unsubscribe()

	sync := presence.NewSync(registry,
		presence.WithSyncLogger(logger),
		presence.WithForward(func(env realtime.Envelope) {
			logger.Info("event", "name", env.Event, "data", string(env.Data))
		}),
	)
	client := presence.NewClient(*url, *token, sync,
		presence.WithBackoff(*backoff),
		presence.WithClientLogger(logger),
	)

	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("presence client stopped", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
