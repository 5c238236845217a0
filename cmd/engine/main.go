package main

import (
	"context"
	"log"

	"github.com/rawblock/fraudguard-engine/internal/api"
	"github.com/rawblock/fraudguard-engine/internal/broker"
	"github.com/rawblock/fraudguard-engine/internal/caseops"
	"github.com/rawblock/fraudguard-engine/internal/config"
	"github.com/rawblock/fraudguard-engine/internal/realtime"
	"github.com/rawblock/fraudguard-engine/internal/rules"
	"github.com/rawblock/fraudguard-engine/internal/store"
	"github.com/rawblock/fraudguard-engine/internal/worker"
)

func main() {
	log.Println("Starting FraudGuard Risk Evaluation Engine...")

	cfg := config.Load()

	// ─── Persistence (C1) ────────────────────────────────────────────────
	// Falls back to an in-memory store if DATABASE_URL is unset or
	// unreachable, so the engine can still boot for local development.
	var txStore store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Printf("Warning: failed to connect to PostgreSQL, falling back to in-memory store. Error: %v", err)
			txStore = store.NewMemoryStore()
		} else {
			defer pg.Close()
			if err := pg.InitSchema(); err != nil {
				log.Printf("Warning: schema init failed: %v", err)
			}
			txStore = pg
		}
	} else {
		log.Println("DATABASE_URL not set, running with in-memory store")
		txStore = store.NewMemoryStore()
	}

	// ─── Job broker (C2) ─────────────────────────────────────────────────
	// Falls back to an in-memory broker (useful for tests and single-process
	// demos) if RabbitMQ is unreachable.
	var txBroker broker.Broker
	amqpBroker, err := broker.Connect(broker.AMQPConfig{
		Host:      cfg.RabbitMQHost,
		Port:      cfg.RabbitMQPort,
		User:      cfg.RabbitMQUser,
		Pass:      cfg.RabbitMQPass,
		VHost:     cfg.RabbitMQVHost,
		QueueName: cfg.TransactionQueue,
	})
	if err != nil {
		log.Printf("Warning: failed to connect to RabbitMQ, falling back to in-memory broker. Error: %v", err)
		txBroker = broker.NewMemoryBroker(1024)
	} else {
		defer amqpBroker.Close()
		txBroker = amqpBroker
	}

	// ─── Realtime feed (C11) ─────────────────────────────────────────────
	hub := realtime.NewHub()
	go hub.Run()

	// ─── Rule updater (C8) ───────────────────────────────────────────────
	updater := rules.NewUpdater(txStore, cfg.ThresholdSnapshotPath, cfg.RuleUpdateInterval)
	rulesCtx, cancelRules := context.WithCancel(context.Background())
	defer cancelRules()
	go updater.Run(rulesCtx)

	// ─── Case manager (C10) ──────────────────────────────────────────────
	cases := caseops.NewManager()

	// ─── Worker pool (C7) ────────────────────────────────────────────────
	pool := worker.NewPool(txBroker, txStore, updater, cfg.WorkerPoolSize, cfg.JobTimeout, hub.PublishDecision)
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	go func() {
		if err := pool.Run(workerCtx); err != nil {
			log.Printf("Worker pool exited: %v", err)
		}
	}()

	// ─── HTTP surface ────────────────────────────────────────────────────
	r := api.SetupRouter(txStore, txBroker, pool, updater, cases, hub)

	log.Printf("Engine running on :%s\n", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
