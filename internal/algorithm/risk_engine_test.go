package algorithm

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/fraudguard-engine/internal/store"
	"github.com/rawblock/fraudguard-engine/pkg/models"
)

func TestCalculateRisk_CleanLowRiskApproves(t *testing.T) {
	s := store.NewMemoryStore()
	cfg := models.DefaultThresholdConfig()
	tx := models.Transaction{
		ID: "tx1", SenderID: "alice", ReceiverID: "bob", Amount: 50,
		Timestamp: time.Now(), Status: models.StatusPending,
	}
	evalCtx := &models.EvaluationContext{Transaction: tx, SenderIsNew: false}
	gt := &GraphTemporalResult{Score: 0.05, Details: map[string]any{}}
	content := &ContentResult{Score: 0.0, Details: map[string]any{}}

	result, err := CalculateRisk(context.Background(), s, cfg, evalCtx, gt, content, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != models.StatusApproved {
		t.Fatalf("expected approved, got %s (score=%v)", result.Status, result.Score)
	}
}

func TestCalculateRisk_HighContentScoreForcesBlocked(t *testing.T) {
	s := store.NewMemoryStore()
	cfg := models.DefaultThresholdConfig()
	tx := models.Transaction{
		ID: "tx2", SenderID: "alice", ReceiverID: "bob", Amount: 50,
		Timestamp: time.Now(), Status: models.StatusPending,
	}
	evalCtx := &models.EvaluationContext{Transaction: tx, SenderIsNew: false}
	gt := &GraphTemporalResult{Score: 0.1, Details: map[string]any{}}
	content := &ContentResult{Score: 0.95, Details: map[string]any{}}

	result, err := CalculateRisk(context.Background(), s, cfg, evalCtx, gt, content, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != models.StatusBlocked {
		t.Fatalf("expected blocked, got %s", result.Status)
	}
	if result.Details.OverrideReason == "" {
		t.Fatalf("expected an override reason to be recorded")
	}
}

func TestCalculateRisk_SimulatedHighValuePendsVerification(t *testing.T) {
	s := store.NewMemoryStore()
	cfg := models.DefaultThresholdConfig()
	tx := models.Transaction{
		ID: "tx3", SenderID: "alice", ReceiverID: "bob", Amount: 500000,
		Timestamp: time.Now(), Status: models.StatusPending,
		IsSimulated: true, SimulationType: "high_value",
	}
	evalCtx := &models.EvaluationContext{Transaction: tx, SenderIsNew: false}
	gt := &GraphTemporalResult{Score: 0.1, Details: map[string]any{}}
	content := &ContentResult{Score: 0.1, Details: map[string]any{}}

	result, err := CalculateRisk(context.Background(), s, cfg, evalCtx, gt, content, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != models.StatusPendingVerification {
		t.Fatalf("expected pending_verification, got %s", result.Status)
	}
}

func TestCalculateRisk_AmountEscalationAboveTenThousand(t *testing.T) {
	s := store.NewMemoryStore()
	cfg := models.DefaultThresholdConfig()
	tx := models.Transaction{
		ID: "tx4", SenderID: "alice", ReceiverID: "bob", Amount: 20000,
		Timestamp: time.Now(), Status: models.StatusPending,
	}
	evalCtx := &models.EvaluationContext{Transaction: tx, SenderIsNew: false}
	gt := &GraphTemporalResult{Score: 0.0, Details: map[string]any{}}
	content := &ContentResult{Score: 0.0, Details: map[string]any{}}

	result, err := CalculateRisk(context.Background(), s, cfg, evalCtx, gt, content, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Details.AmountFactor <= 0 {
		t.Fatalf("expected a positive amount factor for a 20000 transaction")
	}
}
