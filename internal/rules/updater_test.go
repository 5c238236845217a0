package rules

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rawblock/fraudguard-engine/internal/store"
	"github.com/rawblock/fraudguard-engine/pkg/models"
)

func TestNewUpdater_SeedsDefaultsWithoutSnapshot(t *testing.T) {
	u := NewUpdater(store.NewMemoryStore(), "", time.Hour)
	cfg := u.Current()
	if cfg.AmountP95 != models.DefaultThresholdConfig().AmountP95 {
		t.Fatalf("expected default snapshot, got %+v", cfg)
	}
}

func TestRecompute_BelowMinSampleUsesDefaults(t *testing.T) {
	s := store.NewMemoryStore()
	u := NewUpdater(s, "", time.Hour)

	cfg, err := u.recompute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AmountP95 != models.DefaultThresholdConfig().AmountP95 {
		t.Fatalf("expected default amount p95 below sample threshold, got %v", cfg.AmountP95)
	}
}

func TestRecompute_ComputesPercentilesOnceEnoughSamples(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < minSampleSize+10; i++ {
		tx := &models.Transaction{
			ID:         idFor(i),
			SenderID:   "alice",
			ReceiverID: "bob",
			Amount:     float64(i + 1),
			Timestamp:  now.Add(-time.Duration(i) * time.Minute),
			Status:     models.StatusApproved,
			Processed:  true,
		}
		if err := s.Insert(ctx, tx); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	u := NewUpdater(s, "", time.Hour)
	cfg, err := u.recompute(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AmountP95 == models.DefaultThresholdConfig().AmountP95 {
		t.Fatalf("expected computed percentile to diverge from the default fallback")
	}
}

func TestPercentileOrDefault_FallsBackBelowMinSamples(t *testing.T) {
	values := []float64{1, 2, 3}
	if got := percentileOrDefault(values, 95, 20, 3); got != 3 {
		t.Fatalf("expected fallback constant 3, got %v", got)
	}
}

func idFor(i int) string {
	return fmt.Sprintf("tx-%d", i)
}
