package algorithm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rawblock/fraudguard-engine/internal/store"
	"github.com/rawblock/fraudguard-engine/pkg/models"
)

func TestAnalyzeGraphTemporal_NoHistoryReturnsMidScore(t *testing.T) {
	s := store.NewMemoryStore()
	result, err := AnalyzeGraphTemporal(context.Background(), s, "alice", "bob", 50, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score <= 0 || result.Score > 1 {
		t.Fatalf("expected score in (0,1], got %v", result.Score)
	}
}

func TestAnalyzeGraphTemporal_RepeatCounterpartyLowersGraphRisk(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		tx := &models.Transaction{
			ID: idForGraph(i), SenderID: "alice", ReceiverID: "bob",
			Amount: 50, Timestamp: now.Add(-time.Duration(i+1) * time.Hour),
		}
		if err := s.Insert(ctx, tx); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	repeat, err := AnalyzeGraphTemporal(ctx, s, "alice", "bob", 50, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	firstTime, err := AnalyzeGraphTemporal(ctx, store.NewMemoryStore(), "alice", "bob", 50, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repeat.Score >= firstTime.Score {
		t.Fatalf("expected an established counterparty to score lower than a first-time pairing: repeat=%v first=%v", repeat.Score, firstTime.Score)
	}
}

func TestAnalyzeGraphTemporal_LargeAmountDeviationRaisesScore(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 10; i++ {
		tx := &models.Transaction{
			ID: idForGraph(i), SenderID: "alice", ReceiverID: "carol",
			Amount: 20, Timestamp: now.Add(-time.Duration(i+1) * time.Hour),
		}
		if err := s.Insert(ctx, tx); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	normal, err := AnalyzeGraphTemporal(ctx, s, "alice", "bob", 20, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	spike, err := AnalyzeGraphTemporal(ctx, s, "alice", "bob", 5000, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if spike.Score <= normal.Score {
		t.Fatalf("expected a large amount deviation to raise the temporal score: normal=%v spike=%v", normal.Score, spike.Score)
	}
}

func TestBuildTransactionGraph_DirectTransactionCountsOnce(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		tx := &models.Transaction{
			ID: idForGraph(i), SenderID: "alice", ReceiverID: "bob",
			Amount: 50, Timestamp: now.Add(-time.Duration(i+1) * time.Hour),
		}
		if err := s.Insert(ctx, tx); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	g, err := buildTransactionGraph(ctx, s, "alice", "bob", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := g.hasEdge("alice", "bob"); got != 3 {
		t.Fatalf("expected each of the 3 transactions to contribute exactly one edge, got %d edges", got)
	}
}

func idForGraph(i int) string {
	return fmt.Sprintf("tx-graph-%d", i)
}
