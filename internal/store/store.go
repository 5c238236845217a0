// Package store provides durable persistence for transactions and their
// evaluation outcomes (C1). Production code depends only on the Store
// interface; postgres.go and memory.go are the two concrete adapters.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rawblock/fraudguard-engine/pkg/models"
)

var (
	ErrNotFound         = errors.New("store: transaction not found")
	ErrDuplicateID      = errors.New("store: duplicate transaction id")
	ErrAlreadyProcessed = errors.New("store: transaction already processed")
)

// Store is the persistence contract every adapter (Postgres, in-memory)
// must satisfy. All methods are safe for concurrent use.
type Store interface {
	Insert(ctx context.Context, tx *models.Transaction) error
	Finalize(ctx context.Context, id string, riskScore, graphTemporal, contentScore float64, status models.Status, details *models.RiskDetails) error
	Get(ctx context.Context, id string) (*models.Transaction, error)

	QuerySenderHistory(ctx context.Context, senderID string, since time.Time, limit int) ([]models.Transaction, error)
	QueryReceiverHistory(ctx context.Context, receiverID string, since time.Time, limit int) ([]models.Transaction, error)
	QueryRecentBlocked(ctx context.Context, since time.Time, limit int) ([]models.Transaction, error)
	QueryHourlyBuckets(ctx context.Context, userID string, since time.Time) ([]models.HourlyBucket, error)
	QueryRecent(ctx context.Context, limit int) ([]models.Transaction, error)
	QueryStatsSince(ctx context.Context, since time.Time) (models.Stats, error)
	QuerySince(ctx context.Context, since time.Time, limit int) ([]models.Transaction, error)

	SaveShadowReport(ctx context.Context, report *models.ShadowReport) error
}
