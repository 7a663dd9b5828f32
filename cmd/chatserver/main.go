package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deskline/support-chat/internal/availability"
	"github.com/deskline/support-chat/internal/chat"
	"github.com/deskline/support-chat/internal/httpapi"
	"github.com/deskline/support-chat/internal/matching"
	"github.com/deskline/support-chat/internal/metrics"
	"github.com/deskline/support-chat/internal/notify"
	"github.com/deskline/support-chat/internal/policy"
	"github.com/deskline/support-chat/internal/ratelimit"
	"github.com/deskline/support-chat/internal/relay"
	"github.com/deskline/support-chat/internal/store"
)

const gaugeSampleInterval = 10 * time.Second

func main() {
	listenAddr := ":8080"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		listenAddr = v
	}

	deniedTiers := policy.DefaultDeniedTiers
	if v := os.Getenv("CHAT_DENIED_TIERS"); v != "" {
		deniedTiers = strings.Split(v, ",")
	}

	// --- Redis (availability registry + rate limits) ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect to Redis at %s: %v", redisAddr, err)
		}
		cancel()
	}
	registry := availability.NewRegistry(redisClient)
	limiter := ratelimit.NewLimiter(redisClient)

	// --- Session store: Postgres when a DSN is set, in-memory otherwise ---
	var (
		sessions store.Store
		health   = []httpapi.Pinger{registry}
	)
	pgDSN := os.Getenv("POSTGRES_DSN")
	if pgDSN != "" {
		pg, err := store.NewPostgresStore(pgDSN)
		if err != nil {
			log.Fatalf("failed to connect to Postgres: %v", err)
		}
		if err := pg.Migrate(); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		defer pg.Close()
		sessions = pg
		health = append(health, pg)
	} else {
		log.Printf("[chatserver] POSTGRES_DSN not set, using in-memory session store")
		sessions = store.NewMemoryStore()
	}

	// --- NATS (optional push channel; polling works without it) ---
	var broker *notify.NATSBroker
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig := notify.DefaultNATSConfig()
		natsConfig.URL = natsURL
		b, err := notify.NewNATSBroker(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		broker = b
	} else {
		log.Printf("[chatserver] NATS_URL not set, push events disabled")
	}

	probe := availability.NewProbe(registry, sessions)
	engine := matching.NewEngine(sessions, probe)

	var publisher notify.Publisher
	if broker != nil {
		publisher = broker
	}
	svc := relay.NewService(sessions, policy.New(deniedTiers), publisher)

	server := httpapi.NewServer(httpapi.Config{
		Relay:    svc,
		Engine:   engine,
		Registry: registry,
		Probe:    probe,
		Limiter:  limiter,
		Broker:   broker,
		Health:   health,
	})

	log.Printf("Support chat server starting")
	log.Printf("  listen_addr:   %s", listenAddr)
	log.Printf("  redis_addr:    %s", redisAddr)
	log.Printf("  postgres:      %v", pgDSN != "")
	log.Printf("  nats:          %v", broker != nil)
	log.Printf("  denied_tiers:  %s", strings.Join(deniedTiers, ","))

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Sample the backlog gauges on a fixed tick so /metrics reflects the
	// store without putting a counter on every hot path.
	samplerCtx, stopSampler := context.WithCancel(context.Background())
	go sampleBacklog(samplerCtx, sessions)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		stopSampler()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if broker != nil {
			broker.Close()
		}
		if err := redisClient.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("server stopped")
}

func sampleBacklog(ctx context.Context, sessions store.Store) {
	ticker := time.NewTicker(gaugeSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sampleCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if waiting, err := sessions.CountWaiting(sampleCtx); err == nil {
			metrics.WaitingSessions.Set(float64(waiting))
		}
		if active, err := sessions.ListSessions(sampleCtx, chat.StatusActive); err == nil {
			metrics.ActiveSessions.Set(float64(len(active)))
		}
		cancel()
	}
}
