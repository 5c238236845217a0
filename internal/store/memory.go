package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rawblock/fraudguard-engine/pkg/models"
)

// MemoryStore is an in-memory Store used by tests, and by cmd/engine as a
// fallback when DATABASE_URL is unset or PostgreSQL is unreachable. Nothing
// it holds survives a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*models.Transaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*models.Transaction)}
}

func (s *MemoryStore) Insert(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[tx.ID]; exists {
		return ErrDuplicateID
	}
	cp := *tx
	s.rows[tx.ID] = &cp
	return nil
}

func (s *MemoryStore) Finalize(ctx context.Context, id string, riskScore, graphTemporal, contentScore float64, status models.Status, details *models.RiskDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if row.Processed {
		return ErrAlreadyProcessed
	}
	row.RiskScore = &riskScore
	row.GraphTemporal = &graphTemporal
	row.ContentScore = &contentScore
	row.Status = status
	row.RiskDetails = details
	row.Processed = true
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *MemoryStore) all() []models.Transaction {
	out := make([]models.Transaction, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func (s *MemoryStore) QuerySenderHistory(ctx context.Context, senderID string, since time.Time, limit int) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Transaction
	for _, row := range s.all() {
		if row.SenderID == senderID && row.Timestamp.After(since) {
			out = append(out, row)
		}
		if len(out) >= limit && limit > 0 {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) QueryReceiverHistory(ctx context.Context, receiverID string, since time.Time, limit int) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Transaction
	for _, row := range s.all() {
		if row.ReceiverID == receiverID && row.Timestamp.After(since) {
			out = append(out, row)
		}
		if len(out) >= limit && limit > 0 {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) QueryRecentBlocked(ctx context.Context, since time.Time, limit int) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Transaction
	for _, row := range s.all() {
		if row.Status == models.StatusBlocked && row.Timestamp.After(since) {
			out = append(out, row)
		}
		if len(out) >= limit && limit > 0 {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) QueryHourlyBuckets(ctx context.Context, userID string, since time.Time) ([]models.HourlyBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, row := range s.rows {
		if row.SenderID == userID && row.Timestamp.After(since) {
			key := row.Timestamp.Format("2006-01-02 15")
			counts[key]++
		}
	}
	out := make([]models.HourlyBucket, 0, len(counts))
	for k, c := range counts {
		out = append(out, models.HourlyBucket{BucketKey: k, Count: c})
	}
	return out, nil
}

func (s *MemoryStore) QueryRecent(ctx context.Context, limit int) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.all()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) QueryStatsSince(ctx context.Context, since time.Time) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats models.Stats
	for _, row := range s.rows {
		if row.Timestamp.Before(since) {
			continue
		}
		stats.Total++
		stats.TransactionVolume24h += row.Amount
		switch row.Status {
		case models.StatusBlocked:
			stats.Blocked++
		case models.StatusPendingVerification:
			stats.PendingVerification++
		}
	}
	if stats.Total > 0 {
		stats.FraudRatePercentage = float64(stats.Blocked) / float64(stats.Total) * 100
	}
	return stats, nil
}

func (s *MemoryStore) QuerySince(ctx context.Context, since time.Time, limit int) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Transaction
	for _, row := range s.all() {
		if row.Timestamp.After(since) {
			out = append(out, row)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// SaveShadowReport is a no-op for the in-memory store: shadow reports are
// audit records and the memory adapter carries no durability guarantee for
// anything else either.
func (s *MemoryStore) SaveShadowReport(ctx context.Context, report *models.ShadowReport) error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
