package algorithm

import (
	"fmt"

	"github.com/rawblock/fraudguard-engine/pkg/models"
)

// GenerateExplanation synthesizes a human-readable gloss over a finalized
// transaction's risk details, surfaced at GET /api/risk-details/{id}.
func GenerateExplanation(status models.Status, details *models.RiskDetails) models.Explanation {
	var summary string
	switch status {
	case models.StatusApproved:
		summary = "This transaction was approved as it showed low risk characteristics."
	case models.StatusPendingVerification:
		summary = "This transaction requires additional verification due to moderate risk factors."
	case models.StatusBlocked:
		summary = "This transaction was blocked due to high risk of fraud."
	}

	var factors []string
	if details != nil {
		if details.ContentAnalysis.Score > 0.5 {
			if urlAnalysis, ok := details.ContentAnalysis.Details["url_analysis"].(map[string]any); ok {
				if suspicious, _ := urlAnalysis["suspicious_domain"].(bool); suspicious {
					factors = append(factors, "Suspicious URL detected")
				}
			}
			if qrAnalysis, ok := details.ContentAnalysis.Details["qr_analysis"].(map[string]any); ok {
				if tampered, _ := qrAnalysis["tampering_detected"].(bool); tampered {
					factors = append(factors, "QR code tampering detected")
				}
			}
		}

		if temporal, ok := details.GraphTemporal.Details["temporal_analysis"].(map[string]any); ok {
			if anomaly, _ := temporal["amount_anomaly"].(float64); anomaly > 0.7 {
				factors = append(factors, "Unusually high transaction amount")
			}
			if anomaly, _ := temporal["frequency_anomaly"].(float64); anomaly > 0.7 {
				factors = append(factors, "Unusual transaction frequency")
			}
			if anomaly, _ := temporal["time_window_anomaly"].(float64); anomaly > 0.5 {
				factors = append(factors, fmt.Sprintf("Unusual transaction time (Hour: %v)", temporal["hour_of_day"]))
			}
		}

		if graph, ok := details.GraphTemporal.Details["graph_analysis"].(map[string]any); ok {
			isFirst, _ := graph["is_first_transaction"].(bool)
			distance, _ := graph["network_distance"].(int)
			if isFirst && distance == -1 {
				factors = append(factors, "First-time transaction to an unconnected recipient")
			}
			if fraudConns, _ := graph["fraud_connections"].(int); fraudConns > 0 {
				factors = append(factors, "Sender's contacts or the recipient linked to previously flagged transactions")
			}
		}

		if details.DynamicAdjustments != nil {
			if v, ok := details.DynamicAdjustments["amount_beyond_p95"]; ok && v != nil {
				factors = append(factors, "Amount significantly higher than user's typical transactions")
			}
			if v, ok := details.DynamicAdjustments["velocity_factor"]; ok && v != nil {
				factors = append(factors, "Unusually high transaction frequency for this user")
			}
			if v, ok := details.DynamicAdjustments["trending_fraud"]; ok && v != nil {
				factors = append(factors, "Pattern matches recent fraud trends")
			}
		}
	}

	var recommendations []string
	switch status {
	case models.StatusPendingVerification:
		recommendations = []string{
			"Verify transaction through secondary authentication",
			"Contact the user through registered phone number",
			"Consider stepping up authentication for future transactions",
		}
	case models.StatusBlocked:
		recommendations = []string{
			"Alert the user about the blocked transaction",
			"Suggest alternative payment methods",
			"Review account for other suspicious activities",
		}
	}

	return models.Explanation{
		Summary:         summary,
		KeyFactors:      factors,
		Recommendations: recommendations,
	}
}
