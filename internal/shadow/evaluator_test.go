package shadow

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/fraudguard-engine/internal/store"
	"github.com/rawblock/fraudguard-engine/pkg/models"
)

func TestRun_EmptyWindowReportsFullAgreement(t *testing.T) {
	s := store.NewMemoryStore()
	report, err := Run(context.Background(), s, models.DefaultThresholdConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.SampleSize != 0 {
		t.Fatalf("expected empty sample, got %d", report.SampleSize)
	}
	if report.DecisionAgreementRate != 1.0 {
		t.Fatalf("expected trivial full agreement on empty window, got %v", report.DecisionAgreementRate)
	}
}

func TestRun_AgreesWithIdenticalConfig(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	tx := &models.Transaction{
		ID: "tx1", SenderID: "alice", ReceiverID: "bob", Amount: 50,
		Timestamp: now, Status: models.StatusPending,
	}
	if err := s.Insert(ctx, tx); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	cfg := models.DefaultThresholdConfig()
	details := &models.RiskDetails{OverallRiskScore: 0.05, Decision: models.StatusApproved}
	if err := s.Finalize(ctx, "tx1", 0.05, 0.05, 0.0, models.StatusApproved, details); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	report, err := Run(ctx, s, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.SampleSize != 1 {
		t.Fatalf("expected sample size 1, got %d", report.SampleSize)
	}
	if report.DecisionAgreementRate != 1.0 {
		t.Fatalf("expected full agreement replaying same config, got %v", report.DecisionAgreementRate)
	}
}
