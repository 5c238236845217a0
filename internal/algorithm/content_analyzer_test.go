package algorithm

import (
	"testing"

	"github.com/rawblock/fraudguard-engine/pkg/models"
)

func TestAnalyzeContent_HTTPUrlIsRiskier(t *testing.T) {
	tx := models.Transaction{
		TxnMetadata: map[string]any{"payment_url": "http://pay.google.com/checkout"},
	}
	result := AnalyzeContent(tx)
	if result.Score <= 0 {
		t.Fatalf("expected non-zero score for non-https url, got %v", result.Score)
	}
}

func TestAnalyzeContent_SuspiciousTLD(t *testing.T) {
	tx := models.Transaction{
		TxnMetadata: map[string]any{"payment_url": "https://secure-pay.xyz/checkout"},
	}
	result := AnalyzeContent(tx)
	if result.Score < 0.3 {
		t.Fatalf("expected elevated score for suspicious tld, got %v", result.Score)
	}
}

func TestAnalyzeContent_QRReceiverMismatch(t *testing.T) {
	tx := models.Transaction{
		TxnMetadata: map[string]any{
			"qr_code_payload": map[string]any{
				"payload":      map[string]any{"receiver_id": "attacker"},
				"txn_metadata": map[string]any{"receiver_id": "bob"},
			},
		},
	}
	result := AnalyzeContent(tx)
	if result.Score != 0.9 {
		t.Fatalf("expected 0.9 for receiver mismatch, got %v", result.Score)
	}
}

func TestAnalyzeContent_SimulatedPhishingOverride(t *testing.T) {
	tx := models.Transaction{
		IsSimulated:    true,
		SimulationType: "phishing_url",
		TxnMetadata:    map[string]any{"payment_url": "https://evil.xyz"},
	}
	result := AnalyzeContent(tx)
	if result.Score != 0.85 {
		t.Fatalf("expected simulated phishing override score 0.85, got %v", result.Score)
	}
}

func TestDomainSimilarity_IdenticalIsOne(t *testing.T) {
	if got := domainSimilarity("paypal.com", "paypal.com"); got != 1.0 {
		t.Fatalf("expected identical domains to score 1.0, got %v", got)
	}
}
