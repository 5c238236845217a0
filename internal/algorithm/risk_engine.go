package algorithm

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rawblock/fraudguard-engine/internal/store"
	"github.com/rawblock/fraudguard-engine/pkg/models"
)

const highValueAmount = 10_000
const trendingFraudCap = 0.5

// RiskResult is the output of CalculateRisk.
type RiskResult struct {
	Score   float64
	Status  models.Status
	Details *models.RiskDetails
}

// CalculateRisk combines C4/C5's sub-scores with dynamic adjustments,
// amount escalation, and override logic to reach a final decision (C6).
func CalculateRisk(
	ctx context.Context,
	s store.Store,
	cfg *models.ThresholdConfig,
	evalCtx *models.EvaluationContext,
	graphTemporal *GraphTemporalResult,
	content *ContentResult,
	hourCount int,
) (*RiskResult, error) {
	tx := evalCtx.Transaction

	graphTemporalWeight := cfg.GraphTemporalWeight
	contentWeight := cfg.ContentAnalysisWeight
	if evalCtx.SenderIsNew {
		graphTemporalWeight = 0.4
		contentWeight = 0.6
	}

	riskScore := graphTemporalWeight*graphTemporal.Score + contentWeight*content.Score

	dynamicAdjustments := map[string]any{}

	if cfg.AmountP95 > 0 && tx.Amount > cfg.AmountP95 {
		adj := math.Min((tx.Amount-cfg.AmountP95)/cfg.AmountP95, 1.0) * 0.3
		riskScore += adj
		dynamicAdjustments["amount_beyond_p95"] = adj
	}

	if cfg.VelocityHourlyP95 > 0 && float64(hourCount) > cfg.VelocityHourlyP95 {
		adj := math.Min((float64(hourCount)-cfg.VelocityHourlyP95)/5, 1.0) * 0.2
		riskScore += adj
		dynamicAdjustments["velocity_factor"] = adj
	}

	trendingAdj, err := trendingFraudAdjustment(ctx, s, tx)
	if err != nil {
		return nil, err
	}
	if trendingAdj > 0 {
		riskScore += trendingAdj
		dynamicAdjustments["trending_fraud"] = trendingAdj
	}

	riskScore = math.Min(riskScore, 1.0)

	amountFactor := 0.0
	if tx.Amount > highValueAmount {
		amountFactor = math.Min(0.2, (tx.Amount-highValueAmount)/50000)
		riskScore = math.Min(1.0, riskScore+amountFactor)
	}

	var decision models.Status
	switch {
	case riskScore < cfg.LowRiskThreshold:
		decision = models.StatusApproved
	case riskScore < cfg.HighRiskThreshold:
		decision = models.StatusPendingVerification
	default:
		decision = models.StatusBlocked
	}

	overrideReason := ""
	if content.Score > 0.8 {
		decision = models.StatusBlocked
		overrideReason = "High-confidence phishing or QR tampering detected"
	}

	if tx.IsSimulated {
		switch tx.SimulationType {
		case "phishing_url", "qr_code_tampering", "network_fraud":
			decision = models.StatusBlocked
			overrideReason = "Simulated " + tx.SimulationType + " detected"
		case "high_value":
			decision = models.StatusPendingVerification
			overrideReason = "Simulated high-value transaction requires verification"
		}
	}

	details := &models.RiskDetails{
		OverallRiskScore: riskScore,
		Decision:         decision,
		GraphTemporal: models.SubScore{
			Score:   graphTemporal.Score,
			Weight:  graphTemporalWeight,
			Details: graphTemporal.Details,
		},
		ContentAnalysis: models.SubScore{
			Score:   content.Score,
			Weight:  contentWeight,
			Details: content.Details,
		},
		AmountFactor:       amountFactor,
		DynamicAdjustments: dynamicAdjustments,
		OverrideReason:     overrideReason,
	}

	return &RiskResult{Score: riskScore, Status: decision, Details: details}, nil
}

// trendingFraudAdjustment scans the last 7 days of blocked transactions
// (capped at 200) for the current receiver or a similar payment URL,
// capping the combined contribution at trendingFraudCap.
func trendingFraudAdjustment(ctx context.Context, s store.Store, tx models.Transaction) (float64, error) {
	since := tx.Timestamp.Add(-7 * 24 * time.Hour)
	blocked, err := s.QueryRecentBlocked(ctx, since, 200)
	if err != nil {
		return 0, err
	}

	adj := 0.0
	currentURL, _ := tx.TxnMetadata["payment_url"].(string)

	receiverSeen := false
	urlMatched := false
	for _, b := range blocked {
		if b.ReceiverID == tx.ReceiverID {
			receiverSeen = true
		}
		if !urlMatched && currentURL != "" {
			if blockedURL, ok := b.TxnMetadata["payment_url"].(string); ok && blockedURL != "" {
				if domainSimilarity(strings.ToLower(currentURL), strings.ToLower(blockedURL)) > 0.7 {
					urlMatched = true
				}
			}
		}
	}
	if receiverSeen {
		adj += 0.4
	}
	if urlMatched {
		adj += 0.3
	}
	return math.Min(adj, trendingFraudCap), nil
}
