// Package main provides the main entry point for the QuGate forwarding node.
// Combines the contract executor, the JetStream call feed, the receipt
// archive, the WebSocket event hub and the operator API.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/qugate/gate-node/api/handlers"
	"github.com/qugate/gate-node/api/middleware"
	"github.com/qugate/gate-node/auth"
	"github.com/qugate/gate-node/contract"
	"github.com/qugate/gate-node/executor"
	"github.com/qugate/gate-node/messaging/consumers"
	natsClient "github.com/qugate/gate-node/messaging/nats"
	"github.com/qugate/gate-node/snapshot"
	"github.com/qugate/gate-node/storage/archive"
	"github.com/qugate/gate-node/storage/operators"
	"github.com/qugate/gate-node/storage/postgres"
	"github.com/qugate/gate-node/storage/redis"
	"github.com/qugate/gate-node/websocket"
	"github.com/qugate/gate-node/workers/epoch"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("📋 Loaded configuration from .env")
	}

	log.Println("🚀 Starting QuGate Forwarding Node...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Contract executor: the single writer for all gate state
	exec := buildExecutor()
	pipeline := executor.NewPipeline(envInt("PIPELINE_WORKERS", 8))

	// Snapshot restore before anything commits, if a state file is provided
	if path := os.Getenv("SNAPSHOT_PATH"); path != "" {
		restoreSnapshot(exec, path)
	}

	// WebSocket hub for live gate events
	wsServer := websocket.NewServer(envStr("WS_ADDR", ":8081"))
	wsHub := wsServer.Hub()
	go func() {
		if err := wsServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ WebSocket server error: %v", err)
		}
	}()

	// Every committed receipt fans out to the hub
	pipeline.AddSink(func(r executor.Receipt) {
		wsHub.BroadcastGateEvent(consumers.EventFromReceipt(r))
	})

	// Redis: submission limiting and the archive circuit breaker
	var redisClient *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg := redis.DefaultConfig()
		cfg.Addr = addr
		cfg.Password = os.Getenv("REDIS_PASSWORD")

		var err error
		redisClient, err = redis.NewClient(ctx, cfg)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, running without rate limiting: %v", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			log.Println("✅ Redis connected")
		}
	}

	// Postgres: the hash-chained receipt archive
	var pgClient *postgres.Client
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		cfg := postgres.DefaultConfig()
		cfg.Host = host
		cfg.Port = envInt("POSTGRES_PORT", cfg.Port)
		cfg.User = envStr("POSTGRES_USER", cfg.User)
		cfg.Password = envStr("POSTGRES_PASSWORD", cfg.Password)
		cfg.Database = envStr("POSTGRES_DB", cfg.Database)

		var err error
		pgClient, err = postgres.NewClient(ctx, cfg)
		if err != nil {
			log.Printf("⚠️  Postgres unavailable, receipts will not be archived: %v", err)
			pgClient = nil
		} else {
			defer pgClient.Close()
			if err := pgClient.EnsureSchema(ctx); err != nil {
				log.Fatalf("❌ Failed to ensure archive schema: %v", err)
			}
			log.Println("✅ Receipt archive connected")

			var breaker *redis.CircuitBreaker
			if redisClient != nil {
				breaker = redisClient.CircuitBreaker()
			}
			pipeline.AddSink(archive.New(pgClient, breaker).Sink())
		}
	}

	// NATS JetStream: the ordered call ingress
	var nats *natsClient.Client
	var callFeed *consumers.CallFeed
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg := natsClient.DefaultConfig()
		cfg.URLs = url
		cfg.Token = os.Getenv("NATS_TOKEN")

		var err error
		nats, err = natsClient.NewClient(ctx, cfg)
		if err != nil {
			log.Fatalf("❌ Failed to connect to NATS: %v", err)
		}
		defer nats.Close()

		if err := nats.SetupStreams(ctx); err != nil {
			log.Fatalf("❌ Failed to set up streams: %v", err)
		}

		pipeline.AddSink(consumers.NewEventPublisher(nats).Sink())

		callFeed, err = consumers.NewCallFeed(ctx, nats, exec, pipeline, nil)
		if err != nil {
			log.Fatalf("❌ Failed to create call feed: %v", err)
		}
		callFeed.Start()
		log.Println("✅ Call feed consuming (queued submission mode)")
	} else {
		log.Println("📎 NATS_URL not set, calls execute in-process")
	}

	// Operator auth
	tokenCfg := auth.DefaultTokenConfig()
	if key := os.Getenv("PASETO_KEY"); key != "" {
		tokenCfg.SymmetricKey = key
	}
	tokenManager, err := auth.NewTokenManager(tokenCfg)
	if err != nil {
		log.Fatalf("❌ Failed to create token manager: %v", err)
	}
	operatorStore := operators.NewStore()
	authMW := middleware.NewAuthMiddleware(tokenManager)

	// Handlers
	gateHandler := handlers.NewGateHandler(exec, pipeline)
	if nats != nil {
		gateHandler.SetNATS(nats)
	}
	if redisClient != nil {
		gateHandler.SetRateLimiter(
			redisClient.RateLimiter(),
			int64(envInt("SUBMIT_LIMIT", 60)),
			envDuration("SUBMIT_WINDOW", time.Minute),
		)
	}

	authHandler := handlers.NewAuthHandler(tokenManager, operatorStore)

	adminHandler := handlers.NewAdminHandler(exec, pipeline)
	if pgClient != nil {
		adminHandler.SetArchive(pgClient)
	}
	if redisClient != nil {
		adminHandler.SetCircuitBreaker(redisClient.CircuitBreaker())
	}

	// Epoch worker
	epochCfg := epoch.DefaultConfig()
	epochCfg.EpochInterval = envDuration("EPOCH_INTERVAL", epochCfg.EpochInterval)
	epochCfg.AutoAdvance = envStr("AUTO_EPOCH", "true") != "false"
	go epoch.NewWorker(exec, pipeline, wsHub, epochCfg).Start(ctx)

	// Routes
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/gates/count", gateHandler.HandleGetCount)
	mux.HandleFunc("/api/v1/gates/fees", gateHandler.HandleGetFees)
	mux.HandleFunc("/api/v1/gates/", gateHandler.HandleGetGate)
	mux.HandleFunc("/api/v1/calls", gateHandler.HandleSubmitCall)

	mux.HandleFunc("/api/v1/auth/login", authHandler.HandleLogin)
	mux.Handle("/api/v1/auth/refresh", authMW.Authenticate(http.HandlerFunc(authHandler.HandleRefresh)))

	protected := func(h http.HandlerFunc) http.Handler {
		return authMW.Authenticate(h)
	}
	mux.Handle("/api/v1/admin/epoch/end", protected(adminHandler.HandleEndEpoch))
	mux.Handle("/api/v1/admin/snapshot", protected(adminHandler.HandleSnapshot))
	mux.Handle("/api/v1/admin/integrity", protected(adminHandler.HandleIntegrity))
	mux.Handle("/api/v1/admin/circuits", protected(adminHandler.HandleCircuits))
	mux.Handle("/api/v1/admin/receipts", protected(adminHandler.HandleLatestReceipts))
	mux.Handle("/api/v1/admin/operators", protected(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			authHandler.HandleCreateOperator(w, r)
			return
		}
		authHandler.HandleListOperators(w, r)
	}))
	mux.Handle("/api/v1/statements/", protected(adminHandler.HandleGateStatement))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	chain := middleware.Chain(
		middleware.SecurityHeaders,
		middleware.CSRFMiddleware,
		middleware.InputValidation,
	)

	server := &http.Server{
		Addr:    envStr("API_ADDR", ":8080"),
		Handler: chain(mux),
	}

	go func() {
		log.Printf("📡 API server listening on %s", server.Addr)
		log.Printf("   - Submit call:  POST /api/v1/calls")
		log.Printf("   - Gate query:   GET  /api/v1/gates/{id}")
		log.Printf("   - Events:       ws://localhost%s/ws", envStr("WS_ADDR", ":8081"))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down node...")

	if callFeed != nil {
		callFeed.Stop()
	}
	pipeline.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	wsServer.Stop(shutdownCtx)

	log.Println("Node stopped")
}

// buildExecutor creates the executor with env-tunable contract parameters.
// These are consensus parameters: every replica of the same deployment must
// run identical values.
func buildExecutor() *executor.Executor {
	cfg := contract.DefaultConfig()
	cfg.MaxGates = uint64(envInt("GATE_CAPACITY", int(cfg.MaxGates)))
	cfg.BaseFee = uint64(envInt("BASE_FEE", int(cfg.BaseFee)))
	cfg.MinSend = uint64(envInt("MIN_SEND", int(cfg.MinSend)))
	cfg.ExpiryEpochs = uint64(envInt("EXPIRY_EPOCHS", int(cfg.ExpiryEpochs)))

	log.Printf("⚙️  Contract: capacity=%d base_fee=%d min_send=%d expiry=%d epochs",
		cfg.MaxGates, cfg.BaseFee, cfg.MinSend, cfg.ExpiryEpochs)

	return executor.New(cfg)
}

// restoreSnapshot loads replicated state from a snapshot file. The node
// must still be at its initial state; a snapshot cannot land on top of
// already-committed calls.
func restoreSnapshot(exec *executor.Executor, path string) {
	f, err := os.Open(path)
	if err != nil {
		log.Printf("⚠️  Snapshot %s not readable, starting fresh: %v", path, err)
		return
	}
	defer f.Close()

	snap, err := snapshot.ReadFrom(f)
	if err != nil {
		log.Fatalf("❌ Snapshot %s is corrupt: %v", path, err)
	}

	if err := exec.Load(snap); err != nil {
		log.Fatalf("❌ Snapshot restore failed: %v", err)
	}

	log.Printf("📦 Restored snapshot: epoch %d, %d gates, digest %016x",
		snap.Epoch, len(snap.Gates), snap.Digest())
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
