package algorithm

import (
	"math"
	"net/url"
	"regexp"
	"strings"

	"github.com/rawblock/fraudguard-engine/pkg/models"
)

var suspiciousKeywords = []string{
	"secure", "verify", "account", "login", "confirm", "update", "bank",
	"payment", "wallet", "authenticate", "validate",
}

var suspiciousTLDs = []string{".xyz", ".tk", ".ml", ".ga", ".cf", ".gq"}

var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`-?secure-?`),
	regexp.MustCompile(`-?verify-?`),
	regexp.MustCompile(`-?authenticate-?`),
	regexp.MustCompile(`[0-9]{5,}`),
	regexp.MustCompile(`[a-zA-Z0-9]{25,}`),
}

var legitimateDomains = []string{
	"pay.google.com",
	"paypal.com",
	"secure.paypal.com",
	"upi.npci.org.in",
	"payments.amazon.com",
	"banking.icicibank.com",
	"onlinebanking.hdfcbank.com",
	"netbanking.sbi.co.in",
	"phonepe.com",
	"paytm.com",
	"bhimupi.npci.org.in",
}

// ContentResult is the output of AnalyzeContent.
type ContentResult struct {
	Score   float64
	Details map[string]any
}

// AnalyzeContent computes C5's max(url_score, qr_score), honoring
// simulation overrides.
func AnalyzeContent(tx models.Transaction) *ContentResult {
	meta := tx.TxnMetadata

	urlScore := 0.0
	qrScore := 0.0
	urlDetails := map[string]any{}
	qrDetails := map[string]any{}

	if paymentURL, ok := meta["payment_url"].(string); ok && paymentURL != "" {
		urlScore, urlDetails = analyzeURL(paymentURL)
	}
	if qrData, ok := meta["qr_code_payload"].(map[string]any); ok {
		qrScore, qrDetails = analyzeQRCode(qrData, meta)
	}

	combined := math.Max(urlScore, qrScore)

	if tx.IsSimulated {
		switch tx.SimulationType {
		case "phishing_url":
			combined = 0.85
			paymentURL, _ := meta["payment_url"].(string)
			urlDetails = map[string]any{
				"url":                  paymentURL,
				"is_https":            false,
				"suspicious_domain":    true,
				"similar_to_legitimate": true,
				"simulation":           "Simulated phishing URL detected",
			}
		case "qr_code_tampering":
			combined = 0.92
			var orig, tampered string
			if qrData, ok := meta["qr_code_payload"].(map[string]any); ok {
				orig, _ = qrData["original_receiver"].(string)
				tampered, _ = qrData["tampered_receiver"].(string)
			}
			qrDetails = map[string]any{
				"tampering_detected":    true,
				"original_receiver":    orig,
				"actual_receiver":      tampered,
				"tampering_confidence": 0.92,
				"simulation":           "Simulated QR code tampering detected",
			}
		}
	}

	return &ContentResult{
		Score: combined,
		Details: map[string]any{
			"url_analysis":        urlDetails,
			"qr_analysis":         qrDetails,
			"content_risk_score":  combined,
		},
	}
}

func analyzeURL(rawURL string) (float64, map[string]any) {
	details := map[string]any{
		"url":                          rawURL,
		"is_https":                     false,
		"domain":                       "",
		"suspicious_domain":            false,
		"domain_age_factor":            0.0,
		"contains_suspicious_keywords": false,
		"similar_to_legitimate":        false,
		"suspicious_tld":               false,
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		details["error"] = err.Error()
		return 0.5, details
	}

	score := 0.0
	isHTTPS := parsed.Scheme == "https"
	details["is_https"] = isHTTPS
	if !isHTTPS {
		score += 0.3
	}

	domain := parsed.Host
	details["domain"] = domain
	lowerDomain := strings.ToLower(domain)

	for _, tld := range suspiciousTLDs {
		if strings.HasSuffix(domain, tld) {
			score += 0.3
			details["suspicious_tld"] = true
			break
		}
	}

	for _, pattern := range suspiciousPatterns {
		if pattern.MatchString(domain) {
			score += 0.2
			details["suspicious_domain"] = true
			break
		}
	}

	for _, kw := range suspiciousKeywords {
		if strings.Contains(lowerDomain, kw) {
			score += 0.1
			details["contains_suspicious_keywords"] = true
			break
		}
	}

	for _, legit := range legitimateDomains {
		legitLower := strings.ToLower(legit)
		if domainSimilarity(lowerDomain, legitLower) > 0.7 && lowerDomain != legitLower {
			score += 0.4
			details["similar_to_legitimate"] = true
			details["similar_to"] = legit
			break
		}
	}

	subdomainCount := strings.Count(domain, ".")
	if subdomainCount > 2 {
		score += 0.1 * float64(subdomainCount-2)
	}

	return clamp(score, 0, 1), details
}

func domainSimilarity(domain1, domain2 string) float64 {
	domain1 = strings.TrimPrefix(domain1, "www.")
	domain2 = strings.TrimPrefix(domain2, "www.")

	len1, len2 := len(domain1), len(domain2)
	if len1 == 0 || len2 == 0 {
		return 0
	}

	matches := 0
	minLen := len1
	if len2 < minLen {
		minLen = len2
	}
	for i := 0; i < minLen; i++ {
		if domain1[i] == domain2[i] {
			matches++
		}
	}

	maxLen := len1
	if len2 > maxLen {
		maxLen = len2
	}
	return float64(matches) / float64(maxLen)
}

func analyzeQRCode(qrData map[string]any, txnMetadata map[string]any) (float64, map[string]any) {
	details := map[string]any{
		"tampering_detected":   false,
		"original_receiver":    "",
		"actual_receiver":      "",
		"tampering_confidence": 0.0,
	}

	score := 0.0

	if tc, ok := qrData["tampering_confidence"]; ok {
		confidence := toFloat(tc)
		details["tampering_confidence"] = confidence
		score = confidence

		orig, hasOrig := qrData["original_receiver"].(string)
		tampered, hasTampered := qrData["tampered_receiver"].(string)
		if hasOrig && hasTampered {
			details["tampering_detected"] = true
			details["original_receiver"] = orig
			details["actual_receiver"] = tampered
		}
		return score, details
	}

	payload, hasPayload := qrData["payload"].(map[string]any)
	embeddedMeta, hasMeta := qrData["txn_metadata"].(map[string]any)
	if hasPayload && hasMeta {
		payloadReceiver, pOK := payload["receiver_id"].(string)
		metaReceiver, mOK := embeddedMeta["receiver_id"].(string)
		if pOK && mOK && payloadReceiver != metaReceiver {
			score = 0.9
			details["tampering_detected"] = true
			details["original_receiver"] = metaReceiver
			details["actual_receiver"] = payloadReceiver
			details["tampering_confidence"] = 0.9
		}

		checksum, cOK := embeddedMeta["checksum"]
		calculated, calcOK := qrData["calculated_checksum"]
		if cOK && calcOK && checksum != calculated {
			score = math.Max(score, 0.8)
			details["tampering_detected"] = true
			details["checksum_mismatch"] = true
			details["tampering_confidence"] = math.Max(toFloat(details["tampering_confidence"]), 0.8)
		}
	}

	return score, details
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}
