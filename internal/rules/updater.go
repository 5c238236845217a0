// Package rules implements the periodic threshold recalibration loop (C8):
// it recomputes percentile/velocity/network thresholds and fraud patterns
// from the last 30 days of outcomes and atomically swaps the shared
// ThresholdConfig snapshot every worker and API handler reads from.
package rules

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rawblock/fraudguard-engine/internal/store"
	"github.com/rawblock/fraudguard-engine/pkg/models"
)

const (
	minSampleSize  = 100
	lookbackWindow = 30 * 24 * time.Hour
	retryOnError   = time.Hour
)

// Updater owns the live ThresholdConfig snapshot and the background loop
// that refreshes it. Readers call Current(); only Run mutates the
// snapshot, via an atomic pointer swap, never a partial in-place edit.
type Updater struct {
	store        store.Store
	snapshotPath string
	interval     time.Duration
	current      atomic.Pointer[models.ThresholdConfig]

	runCount atomic.Int64
	lastErr  atomic.Pointer[string]
}

// NewUpdater constructs an Updater, seeding the live snapshot from the
// on-disk file if present, falling back to defaults otherwise.
func NewUpdater(s store.Store, snapshotPath string, interval time.Duration) *Updater {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	u := &Updater{store: s, snapshotPath: snapshotPath, interval: interval}
	u.current.Store(loadSnapshot(snapshotPath))
	return u
}

// Current returns the live ThresholdConfig snapshot. Safe for concurrent
// use; the returned pointer is never mutated in place.
func (u *Updater) Current() *models.ThresholdConfig {
	return u.current.Load()
}

// Run recomputes thresholds every interval until ctx is cancelled. On
// error it retries after retryOnError instead of waiting a full interval.
func (u *Updater) Run(ctx context.Context) {
	for {
		cfg, err := u.recompute(ctx)
		wait := u.interval
		if err != nil {
			errStr := err.Error()
			u.lastErr.Store(&errStr)
			log.Printf("[RuleUpdater] recompute failed: %v, retrying in %s", err, retryOnError)
			wait = retryOnError
		} else {
			u.current.Store(cfg)
			u.runCount.Add(1)
			u.persist(cfg)
			log.Printf("[RuleUpdater] thresholds refreshed (run #%d)", u.runCount.Load())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// RunCount reports how many successful refreshes have completed.
func (u *Updater) RunCount() int64 {
	return u.runCount.Load()
}

func (u *Updater) recompute(ctx context.Context) (*models.ThresholdConfig, error) {
	since := time.Now().Add(-lookbackWindow)
	rows, err := u.store.QuerySince(ctx, since, 0)
	if err != nil {
		return nil, err
	}
	var recent []models.Transaction
	for _, tx := range rows {
		if tx.Processed {
			recent = append(recent, tx)
		}
	}
	if len(recent) < minSampleSize {
		log.Printf("[RuleUpdater] only %d transactions in window, using defaults", len(recent))
		return defaultsPreservingWeights(u.Current()), nil
	}

	amounts := make([]float64, 0, len(recent))
	var blocked []models.Transaction
	for _, tx := range recent {
		amounts = append(amounts, tx.Amount)
		if tx.Status == models.StatusBlocked {
			blocked = append(blocked, tx)
		}
	}

	hourly, daily := velocityDistributions(recent)
	connections := connectionDistribution(recent)
	domains, receivers := fraudPatterns(blocked)

	prev := u.Current()
	cfg := &models.ThresholdConfig{
		GraphTemporalWeight:   prev.GraphTemporalWeight,
		ContentAnalysisWeight: prev.ContentAnalysisWeight,
		LowRiskThreshold:      prev.LowRiskThreshold,
		MediumRiskThreshold:   prev.MediumRiskThreshold,
		HighRiskThreshold:     prev.HighRiskThreshold,
		NewAccountHistoryMin:  prev.NewAccountHistoryMin,

		AmountMean:   mean(amounts),
		AmountMedian: percentile(amounts, 50),
		AmountP95:    percentile(amounts, 95),
		AmountP99:    percentile(amounts, 99),

		VelocityHourlyMean: meanOrDefault(hourly, 1),
		VelocityHourlyP95:  percentileOrDefault(hourly, 95, 20, 3),
		VelocityHourlyP99:  percentileOrDefault(hourly, 99, 100, 5),
		VelocityDailyMean:  meanOrDefault(daily, 3),
		VelocityDailyP95:   percentileOrDefault(daily, 95, 20, 10),
		VelocityDailyP99:   percentileOrDefault(daily, 99, 100, 20),

		NetworkConnectionsMean: meanOrDefault(connections, 3),
		NetworkConnectionsP95:  percentileOrDefault(connections, 95, 20, 5),

		TopFraudDomains:   domains,
		TopFraudReceivers: receivers,
		GeneratedAt:       time.Now(),
	}
	return cfg, nil
}

func defaultsPreservingWeights(prev *models.ThresholdConfig) *models.ThresholdConfig {
	d := models.DefaultThresholdConfig()
	if prev != nil {
		d.GraphTemporalWeight = prev.GraphTemporalWeight
		d.ContentAnalysisWeight = prev.ContentAnalysisWeight
		d.LowRiskThreshold = prev.LowRiskThreshold
		d.MediumRiskThreshold = prev.MediumRiskThreshold
		d.HighRiskThreshold = prev.HighRiskThreshold
		d.NewAccountHistoryMin = prev.NewAccountHistoryMin
	}
	d.GeneratedAt = time.Now()
	return d
}

func velocityDistributions(txns []models.Transaction) (hourly, daily []float64) {
	hourlyCounts := make(map[string]int)
	dailyCounts := make(map[string]int)
	for _, tx := range txns {
		hourKey := tx.SenderID + "_" + tx.Timestamp.Format("2006-01-02 15")
		dayKey := tx.SenderID + "_" + tx.Timestamp.Format("2006-01-02")
		hourlyCounts[hourKey]++
		dailyCounts[dayKey]++
	}
	for _, c := range hourlyCounts {
		hourly = append(hourly, float64(c))
	}
	for _, c := range dailyCounts {
		daily = append(daily, float64(c))
	}
	return hourly, daily
}

func connectionDistribution(txns []models.Transaction) []float64 {
	connections := make(map[string]map[string]bool)
	for _, tx := range txns {
		if connections[tx.SenderID] == nil {
			connections[tx.SenderID] = make(map[string]bool)
		}
		connections[tx.SenderID][tx.ReceiverID] = true
	}
	out := make([]float64, 0, len(connections))
	for _, peers := range connections {
		out = append(out, float64(len(peers)))
	}
	return out
}

func fraudPatterns(blocked []models.Transaction) (domains, receivers []string) {
	domainCounts := make(map[string]int)
	receiverCounts := make(map[string]int)
	for _, tx := range blocked {
		if tx.ReceiverID != "" {
			receiverCounts[tx.ReceiverID]++
		}
		if raw, ok := tx.TxnMetadata["payment_url"].(string); ok && raw != "" {
			if parsed, err := url.Parse(raw); err == nil && parsed.Host != "" {
				domainCounts[parsed.Host]++
			}
		}
	}
	return topN(domainCounts, 10), topN(receiverCounts, 10)
}

func topN(counts map[string]int, n int) []string {
	type kv struct {
		key   string
		count int
	}
	kvs := make([]kv, 0, len(counts))
	for k, c := range counts {
		kvs = append(kvs, kv{k, c})
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].count > kvs[j].count })
	out := make([]string, 0, n)
	for i := 0; i < len(kvs) && i < n; i++ {
		out = append(out, kvs[i].key)
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func meanOrDefault(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	return mean(values)
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// percentileOrDefault mirrors the original's fallback behavior: below
// minSamples observations, trust a fixed constant rather than a noisy
// percentile estimate.
func percentileOrDefault(values []float64, p float64, minSamples int, fallback float64) float64 {
	if len(values) < minSamples {
		return fallback
	}
	return percentile(values, p)
}

func loadSnapshot(path string) *models.ThresholdConfig {
	if path == "" {
		return models.DefaultThresholdConfig()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return models.DefaultThresholdConfig()
	}
	var cfg models.ThresholdConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Printf("[RuleUpdater] failed to parse snapshot %s: %v, using defaults", path, err)
		return models.DefaultThresholdConfig()
	}
	return &cfg
}

func (u *Updater) persist(cfg *models.ThresholdConfig) {
	if u.snapshotPath == "" {
		return
	}
	if dir := filepath.Dir(u.snapshotPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("[RuleUpdater] failed to create snapshot dir: %v", err)
			return
		}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		log.Printf("[RuleUpdater] failed to marshal snapshot: %v", err)
		return
	}
	if err := os.WriteFile(u.snapshotPath, data, 0o644); err != nil {
		log.Printf("[RuleUpdater] failed to write snapshot: %v", err)
	}
}
