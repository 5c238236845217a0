package worker

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/fraudguard-engine/internal/broker"
	"github.com/rawblock/fraudguard-engine/internal/store"
	"github.com/rawblock/fraudguard-engine/pkg/models"
)

type stubThresholds struct{ cfg *models.ThresholdConfig }

func (s stubThresholds) Current() *models.ThresholdConfig { return s.cfg }

func TestPool_ProcessFinalizesAndNotifies(t *testing.T) {
	s := store.NewMemoryStore()
	b := broker.NewMemoryBroker(4)
	ctx := context.Background()

	tx := &models.Transaction{
		ID: "tx-1", SenderID: "alice", ReceiverID: "bob",
		Amount: 25.0, Timestamp: time.Now(), Status: models.StatusPendingVerification,
	}
	if err := s.Insert(ctx, tx); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	var finalized *models.Transaction
	pool := NewPool(b, s, stubThresholds{models.DefaultThresholdConfig()}, 1, time.Second, func(tx *models.Transaction) {
		finalized = tx
	})

	if err := pool.process(ctx, "tx-1"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	got, err := s.Get(ctx, "tx-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.Processed {
		t.Fatal("expected transaction to be marked processed")
	}
	if got.RiskScore == nil {
		t.Fatal("expected risk score to be set")
	}
	if finalized == nil || finalized.ID != "tx-1" {
		t.Fatal("expected onFinalized callback to fire with the finalized transaction")
	}

	processed, failed := pool.Stats()
	if processed != 0 || failed != 0 {
		t.Fatalf("process() alone should not touch pool counters, got processed=%d failed=%d", processed, failed)
	}
}

func TestPool_ProcessAlreadyProcessedIsNonFatal(t *testing.T) {
	s := store.NewMemoryStore()
	b := broker.NewMemoryBroker(4)
	ctx := context.Background()

	tx := &models.Transaction{ID: "tx-1", Timestamp: time.Now(), Processed: true}
	if err := s.Insert(ctx, tx); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	pool := NewPool(b, s, stubThresholds{models.DefaultThresholdConfig()}, 1, time.Second, nil)
	if err := pool.process(ctx, "tx-1"); err != store.ErrAlreadyProcessed {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestPool_ProcessDoesNotCountTransactionAgainstItsOwnVelocity(t *testing.T) {
	s := store.NewMemoryStore()
	b := broker.NewMemoryBroker(4)
	ctx := context.Background()
	now := time.Now()

	tx := &models.Transaction{
		ID: "tx-1", SenderID: "alice", ReceiverID: "bob",
		Amount: 25.0, Timestamp: now, Status: models.StatusPendingVerification,
	}
	if err := s.Insert(ctx, tx); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	cfg := models.DefaultThresholdConfig()
	cfg.VelocityHourlyP95 = 0.5 // any hourCount >= 1 would trip the velocity adjustment
	pool := NewPool(b, s, stubThresholds{cfg}, 1, time.Second, nil)

	if err := pool.process(ctx, "tx-1"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	got, err := s.Get(ctx, "tx-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.RiskDetails == nil {
		t.Fatal("expected risk details to be set")
	}
	if _, tripped := got.RiskDetails.DynamicAdjustments["velocity_factor"]; tripped {
		t.Fatal("a transaction with no prior history should not count itself in its own hourly velocity")
	}
}

func TestPool_HandleUnknownTransactionAcksWithoutRequeue(t *testing.T) {
	s := store.NewMemoryStore()
	b := broker.NewMemoryBroker(4)
	ctx := context.Background()

	pool := NewPool(b, s, stubThresholds{models.DefaultThresholdConfig()}, 1, time.Second, nil)

	if err := b.Publish(ctx, "missing-elsewhere"); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	deliveries, err := b.Consume(ctx)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}

	d := <-deliveries
	pool.handle(ctx, 0, d)

	select {
	case redelivered := <-deliveries:
		t.Fatalf("expected a broker/db race to ack without requeue, got redelivery of %s", redelivered.TransactionID())
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPool_HandleAlreadyProcessedAcksWithoutRequeue(t *testing.T) {
	s := store.NewMemoryStore()
	b := broker.NewMemoryBroker(4)
	ctx := context.Background()

	tx := &models.Transaction{ID: "tx-done", Timestamp: time.Now(), Processed: true}
	if err := s.Insert(ctx, tx); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	pool := NewPool(b, s, stubThresholds{models.DefaultThresholdConfig()}, 1, time.Second, nil)

	if err := b.Publish(ctx, "tx-done"); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	deliveries, err := b.Consume(ctx)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}

	d := <-deliveries
	pool.handle(ctx, 0, d)

	select {
	case redelivered := <-deliveries:
		t.Fatalf("expected an already-processed job to ack without requeue, got redelivery of %s", redelivered.TransactionID())
	case <-time.After(100 * time.Millisecond):
	}
}
