package realtime

import (
	"encoding/json"
	"testing"

	"github.com/rawblock/fraudguard-engine/pkg/models"
)

func TestPublishDecision_EncodesExpectedFields(t *testing.T) {
	h := NewHub()

	score := 0.72
	tx := &models.Transaction{ID: "tx1", Status: models.StatusBlocked, RiskScore: &score}
	h.PublishDecision(tx)

	raw := <-h.broadcast
	var event DecisionEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	if event.Type != "decision" || event.TransactionID != "tx1" || event.Status != "blocked" || event.RiskScore != 0.72 {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestPublishDecision_NilRiskScoreDefaultsToZero(t *testing.T) {
	h := NewHub()

	tx := &models.Transaction{ID: "tx2", Status: models.StatusPending}
	h.PublishDecision(tx)

	raw := <-h.broadcast
	var event DecisionEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	if event.RiskScore != 0 {
		t.Fatalf("expected zero risk score, got %v", event.RiskScore)
	}
}
