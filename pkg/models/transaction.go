package models

import "time"

// Status is the terminal (or pending) disposition of a Transaction.
type Status string

const (
	StatusPending             Status = "pending"
	StatusApproved            Status = "approved"
	StatusPendingVerification Status = "pending_verification"
	StatusBlocked             Status = "blocked"
)

// Transaction is a single payment intent submitted for fraud-risk evaluation.
type Transaction struct {
	ID             string         `json:"id"`
	SenderID       string         `json:"senderId"`
	ReceiverID     string         `json:"receiverId"`
	Amount         float64        `json:"amount"`
	Timestamp      time.Time      `json:"timestamp"`
	TxnMetadata    map[string]any `json:"txnMetadata,omitempty"`
	Status         Status         `json:"status"`
	Processed      bool           `json:"processed"`
	RiskScore      *float64       `json:"riskScore,omitempty"`
	GraphTemporal  *float64       `json:"graphTemporalScore,omitempty"`
	ContentScore   *float64       `json:"contentAnalysisScore,omitempty"`
	RiskDetails    *RiskDetails   `json:"riskDetails,omitempty"`
	IsSimulated    bool           `json:"isSimulated,omitempty"`
	SimulationType string         `json:"simulationType,omitempty"`
}

// SubScore is one weighted component of the overall risk score plus the
// detail breakdown that produced it.
type SubScore struct {
	Score   float64        `json:"score"`
	Weight  float64        `json:"weight"`
	Details map[string]any `json:"details,omitempty"`
}

// RiskDetails is the full breakdown persisted alongside a finalized transaction.
type RiskDetails struct {
	OverallRiskScore   float64        `json:"overallRiskScore"`
	Decision           Status         `json:"decision"`
	GraphTemporal      SubScore       `json:"graphTemporal"`
	ContentAnalysis    SubScore       `json:"contentAnalysis"`
	AmountFactor       float64        `json:"amountFactor"`
	DynamicAdjustments map[string]any `json:"dynamicAdjustments,omitempty"`
	OverrideReason     string         `json:"overrideReason,omitempty"`
}

// Explanation is a human-readable gloss over RiskDetails, synthesized for
// analysts polling GET /api/risk-details/{id}.
type Explanation struct {
	Summary         string   `json:"summary"`
	KeyFactors      []string `json:"keyFactors"`
	Recommendations []string `json:"recommendations"`
}

// EvaluationContext is the input bundle C3 hands to C4/C5/C6: the
// transaction plus derived sender/receiver history facts.
type EvaluationContext struct {
	Transaction     Transaction
	SenderHistory   []Transaction
	ReceiverHistory []Transaction
	SenderIsNew     bool
	ReceiverIsNew   bool
	SenderAvgAmount float64
	SenderMaxAmount float64
	RecentReceivers []string
}

// HourlyBucket is one sender's transaction count for one clock hour of one
// day (BucketKey "YYYY-MM-DD HH"), as returned by Store.QueryHourlyBuckets.
// The rule updater does its own per-sender hour bucketing and does not use it.
type HourlyBucket struct {
	BucketKey string
	Count     int
}

// Stats aggregates 24h system-wide counters for /api/system-stats.
type Stats struct {
	Total                int     `json:"total"`
	Blocked              int     `json:"blocked"`
	PendingVerification  int     `json:"pendingVerification"`
	FraudRatePercentage  float64 `json:"fraudRatePercentage"`
	TransactionVolume24h float64 `json:"transactionVolume24h"`
}

// ThresholdConfig is the immutable snapshot of all operator- and
// rule-updater-derived thresholds consumed by C4/C5/C6. A new snapshot
// replaces the old one wholesale; fields are never mutated in place.
type ThresholdConfig struct {
	GraphTemporalWeight   float64 `json:"graphTemporalWeight"`
	ContentAnalysisWeight float64 `json:"contentAnalysisWeight"`
	LowRiskThreshold      float64 `json:"lowRiskThreshold"`
	MediumRiskThreshold   float64 `json:"mediumRiskThreshold"`
	HighRiskThreshold     float64 `json:"highRiskThreshold"`
	NewAccountHistoryMin  int     `json:"newAccountHistoryMin"`

	AmountMean   float64 `json:"amountMean"`
	AmountMedian float64 `json:"amountMedian"`
	AmountP95    float64 `json:"amountP95"`
	AmountP99    float64 `json:"amountP99"`

	VelocityHourlyMean float64 `json:"velocityHourlyMean"`
	VelocityHourlyP95  float64 `json:"velocityHourlyP95"`
	VelocityHourlyP99  float64 `json:"velocityHourlyP99"`
	VelocityDailyMean  float64 `json:"velocityDailyMean"`
	VelocityDailyP95   float64 `json:"velocityDailyP95"`
	VelocityDailyP99   float64 `json:"velocityDailyP99"`

	NetworkConnectionsMean float64 `json:"networkConnectionsMean"`
	NetworkConnectionsP95  float64 `json:"networkConnectionsP95"`

	TopFraudDomains   []string `json:"topFraudDomains"`
	TopFraudReceivers []string `json:"topFraudReceivers"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// DefaultThresholdConfig mirrors the fallback constants used when fewer
// than 100 transactions exist to derive real percentiles from.
func DefaultThresholdConfig() *ThresholdConfig {
	return &ThresholdConfig{
		GraphTemporalWeight:   0.6,
		ContentAnalysisWeight: 0.4,
		LowRiskThreshold:      0.3,
		MediumRiskThreshold:   0.7,
		HighRiskThreshold:     0.9,
		NewAccountHistoryMin:  5,

		AmountMean:   1000,
		AmountMedian: 500,
		AmountP95:    5000,
		AmountP99:    10000,

		VelocityHourlyMean: 1,
		VelocityHourlyP95:  3,
		VelocityHourlyP99:  5,
		VelocityDailyMean:  3,
		VelocityDailyP95:   10,
		VelocityDailyP99:   20,

		NetworkConnectionsMean: 3,
		NetworkConnectionsP95:  10,

		TopFraudDomains:   []string{},
		TopFraudReceivers: []string{},
	}
}

// ShadowReport compares the decisions a candidate ThresholdConfig would have
// produced against the decisions actually recorded for the same window.
type ShadowReport struct {
	SampleSize            int       `json:"sampleSize"`
	DecisionAgreementRate float64   `json:"decisionAgreementRate"`
	WouldFlipToBlocked    int       `json:"wouldFlipToBlocked"`
	WouldFlipToApproved   int       `json:"wouldFlipToApproved"`
	GeneratedAt           time.Time `json:"generatedAt"`
}

// Case is an analyst-opened review over one or more flagged transactions.
type Case struct {
	ID             string          `json:"id"`
	TransactionIDs []string        `json:"transactionIds"`
	Status         string          `json:"status"` // open | closed
	TaggedAccounts []TaggedAccount `json:"taggedAccounts"`
	Notes          []CaseNote      `json:"notes"`
	OpenedAt       time.Time       `json:"openedAt"`
	ClosedAt       *time.Time      `json:"closedAt,omitempty"`
}

// TaggedAccount records an analyst's label for an account involved in a case.
type TaggedAccount struct {
	AccountID string `json:"accountId"`
	Role      string `json:"role"` // e.g. suspect, victim, mule
	Label     string `json:"label"`
}

// CaseNote is a single analyst annotation on a case's timeline.
type CaseNote struct {
	Author string    `json:"author"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}
