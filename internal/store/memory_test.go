package store

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/fraudguard-engine/pkg/models"
)

func TestMemoryStore_InsertAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	tx := &models.Transaction{ID: "tx-1", SenderID: "alice", ReceiverID: "bob", Amount: 10, Timestamp: time.Now()}

	if err := s.Insert(ctx, tx); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	got, err := s.Get(ctx, "tx-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.SenderID != "alice" {
		t.Fatalf("expected sender alice, got %s", got.SenderID)
	}
}

func TestMemoryStore_InsertDuplicateFails(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	tx := &models.Transaction{ID: "tx-1", Timestamp: time.Now()}

	if err := s.Insert(ctx, tx); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := s.Insert(ctx, tx); err != ErrDuplicateID {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestMemoryStore_GetUnknownReturnsErrNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_FinalizeIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	tx := &models.Transaction{ID: "tx-1", Timestamp: time.Now()}
	if err := s.Insert(ctx, tx); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := s.Finalize(ctx, "tx-1", 0.5, 0.2, 0.1, models.StatusApproved, &models.RiskDetails{}); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if err := s.Finalize(ctx, "tx-1", 0.9, 0.9, 0.9, models.StatusBlocked, &models.RiskDetails{}); err != ErrAlreadyProcessed {
		t.Fatalf("expected ErrAlreadyProcessed on second finalize, got %v", err)
	}

	got, err := s.Get(ctx, "tx-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != models.StatusApproved {
		t.Fatalf("expected first finalize to win, got status %v", got.Status)
	}
}

func TestMemoryStore_FinalizeUnknownReturnsErrNotFound(t *testing.T) {
	s := NewMemoryStore()
	err := s.Finalize(context.Background(), "missing", 0, 0, 0, models.StatusApproved, &models.RiskDetails{})
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_QuerySenderHistoryFiltersBySenderAndWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	recent := &models.Transaction{ID: "tx-recent", SenderID: "alice", Timestamp: now}
	stale := &models.Transaction{ID: "tx-stale", SenderID: "alice", Timestamp: now.Add(-48 * time.Hour)}
	other := &models.Transaction{ID: "tx-other", SenderID: "bob", Timestamp: now}
	for _, tx := range []*models.Transaction{recent, stale, other} {
		if err := s.Insert(ctx, tx); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	got, err := s.QuerySenderHistory(ctx, "alice", now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "tx-recent" {
		t.Fatalf("expected only tx-recent, got %+v", got)
	}
}

func TestMemoryStore_QueryHourlyBucketsGroupsByHour(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for i, amt := range []float64{10, 20, 30} {
		tx := &models.Transaction{ID: idFor(i), SenderID: "alice", Amount: amt, Timestamp: now}
		if err := s.Insert(ctx, tx); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	buckets, err := s.QueryHourlyBuckets(ctx, "alice", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(buckets) != 1 || buckets[0].Count != 3 {
		t.Fatalf("expected a single bucket with count 3, got %+v", buckets)
	}
}

func idFor(i int) string {
	return []string{"tx-a", "tx-b", "tx-c"}[i]
}
