package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/fraudguard-engine/pkg/models"
)

// PostgresStore is the production Store adapter.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}
	log.Println("Successfully connected to PostgreSQL for fraud risk engine")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes the schema.sql file.
func (s *PostgresStore) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/store/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %v", err)
	}
	_, err = s.pool.Exec(context.Background(), string(schemaBytes))
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}
	log.Println("Transaction store schema initialized")
	return nil
}

// GetPool exposes the underlying connection pool. The shadow evaluator and
// rule updater do not use it; they go through the Store interface.
func (s *PostgresStore) GetPool() *pgxpool.Pool {
	return s.pool
}

func (s *PostgresStore) Insert(ctx context.Context, tx *models.Transaction) error {
	metaJSON, err := json.Marshal(tx.TxnMetadata)
	if err != nil {
		return fmt.Errorf("marshal txn_metadata: %v", err)
	}
	sql := `
		INSERT INTO transactions
			(id, sender_id, receiver_id, amount, timestamp, txn_metadata, status, processed, is_simulated, simulation_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = s.pool.Exec(ctx, sql,
		tx.ID, tx.SenderID, tx.ReceiverID, tx.Amount, tx.Timestamp, metaJSON,
		tx.Status, tx.Processed, tx.IsSimulated, tx.SimulationType)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert transaction: %v", err)
	}
	return nil
}

func (s *PostgresStore) Finalize(ctx context.Context, id string, riskScore, graphTemporal, contentScore float64, status models.Status, details *models.RiskDetails) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal risk_details: %v", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sql := `
		UPDATE transactions
		SET risk_score = $1, graph_temporal_score = $2, content_analysis_score = $3,
		    status = $4, risk_details = $5, processed = true
		WHERE id = $6 AND processed = false`
	tag, err := tx.Exec(ctx, sql, riskScore, graphTemporal, contentScore, status, detailsJSON, id)
	if err != nil {
		return fmt.Errorf("finalize transaction: %v", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if scanErr := tx.QueryRow(ctx, `SELECT true FROM transactions WHERE id = $1`, id).Scan(&exists); scanErr != nil {
			if scanErr == pgx.ErrNoRows {
				return ErrNotFound
			}
			return scanErr
		}
		return ErrAlreadyProcessed
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Transaction, error) {
	sql := `
		SELECT id, sender_id, receiver_id, amount, timestamp, txn_metadata, status, processed,
		       risk_score, graph_temporal_score, content_analysis_score, risk_details,
		       is_simulated, simulation_type
		FROM transactions WHERE id = $1`
	row := s.pool.QueryRow(ctx, sql, id)
	tx, err := scanTransaction(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return tx, nil
}

func (s *PostgresStore) QuerySenderHistory(ctx context.Context, senderID string, since time.Time, limit int) ([]models.Transaction, error) {
	sql := `
		SELECT id, sender_id, receiver_id, amount, timestamp, txn_metadata, status, processed,
		       risk_score, graph_temporal_score, content_analysis_score, risk_details,
		       is_simulated, simulation_type
		FROM transactions
		WHERE sender_id = $1 AND timestamp >= $2
		ORDER BY timestamp DESC LIMIT $3`
	return s.queryTransactions(ctx, sql, senderID, since, limit)
}

func (s *PostgresStore) QueryReceiverHistory(ctx context.Context, receiverID string, since time.Time, limit int) ([]models.Transaction, error) {
	sql := `
		SELECT id, sender_id, receiver_id, amount, timestamp, txn_metadata, status, processed,
		       risk_score, graph_temporal_score, content_analysis_score, risk_details,
		       is_simulated, simulation_type
		FROM transactions
		WHERE receiver_id = $1 AND timestamp >= $2
		ORDER BY timestamp DESC LIMIT $3`
	return s.queryTransactions(ctx, sql, receiverID, since, limit)
}

func (s *PostgresStore) QueryRecentBlocked(ctx context.Context, since time.Time, limit int) ([]models.Transaction, error) {
	sql := `
		SELECT id, sender_id, receiver_id, amount, timestamp, txn_metadata, status, processed,
		       risk_score, graph_temporal_score, content_analysis_score, risk_details,
		       is_simulated, simulation_type
		FROM transactions
		WHERE status = 'blocked' AND timestamp >= $1
		ORDER BY timestamp DESC LIMIT $2`
	return s.queryTransactions(ctx, sql, since, limit)
}

func (s *PostgresStore) QueryRecent(ctx context.Context, limit int) ([]models.Transaction, error) {
	sql := `
		SELECT id, sender_id, receiver_id, amount, timestamp, txn_metadata, status, processed,
		       risk_score, graph_temporal_score, content_analysis_score, risk_details,
		       is_simulated, simulation_type
		FROM transactions
		ORDER BY timestamp DESC LIMIT $1`
	return s.queryTransactions(ctx, sql, limit)
}

func (s *PostgresStore) QuerySince(ctx context.Context, since time.Time, limit int) ([]models.Transaction, error) {
	sql := `
		SELECT id, sender_id, receiver_id, amount, timestamp, txn_metadata, status, processed,
		       risk_score, graph_temporal_score, content_analysis_score, risk_details,
		       is_simulated, simulation_type
		FROM transactions
		WHERE timestamp >= $1
		ORDER BY timestamp DESC LIMIT $2`
	return s.queryTransactions(ctx, sql, since, limit)
}

func (s *PostgresStore) QueryHourlyBuckets(ctx context.Context, userID string, since time.Time) ([]models.HourlyBucket, error) {
	sql := `
		SELECT to_char(timestamp, 'YYYY-MM-DD HH24') AS bucket, COUNT(*)
		FROM transactions
		WHERE sender_id = $1 AND timestamp >= $2
		GROUP BY bucket`
	rows, err := s.pool.Query(ctx, sql, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.HourlyBucket
	for rows.Next() {
		var b models.HourlyBucket
		if err := rows.Scan(&b.BucketKey, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) QueryStatsSince(ctx context.Context, since time.Time) (models.Stats, error) {
	var stats models.Stats
	sql := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'blocked'),
			COUNT(*) FILTER (WHERE status = 'pending_verification'),
			COALESCE(SUM(amount), 0)
		FROM transactions WHERE timestamp >= $1`
	err := s.pool.QueryRow(ctx, sql, since).Scan(&stats.Total, &stats.Blocked, &stats.PendingVerification, &stats.TransactionVolume24h)
	if err != nil {
		return stats, err
	}
	if stats.Total > 0 {
		stats.FraudRatePercentage = float64(stats.Blocked) / float64(stats.Total) * 100
	}
	return stats, nil
}

// queryTransactions runs one of the history queries above, each of which
// takes its row limit as the last argument. A limit of 0 or less means no
// limit, as in MemoryStore, and is sent as NULL (LIMIT NULL is unbounded).
func (s *PostgresStore) queryTransactions(ctx context.Context, sql string, args ...any) ([]models.Transaction, error) {
	if n := len(args); n > 0 {
		if limit, ok := args[n-1].(int); ok && limit <= 0 {
			args[n-1] = nil
		}
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

// rowScanner abstracts over pgx.Row and pgx.Rows, both of which expose Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	var metaJSON, detailsJSON []byte
	var riskScore, graphTemporal, contentScore *float64
	var simType *string

	err := row.Scan(
		&tx.ID, &tx.SenderID, &tx.ReceiverID, &tx.Amount, &tx.Timestamp, &metaJSON,
		&tx.Status, &tx.Processed, &riskScore, &graphTemporal, &contentScore,
		&detailsJSON, &tx.IsSimulated, &simType,
	)
	if err != nil {
		return nil, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &tx.TxnMetadata); err != nil {
			return nil, fmt.Errorf("unmarshal txn_metadata: %v", err)
		}
	}
	if len(detailsJSON) > 0 {
		var d models.RiskDetails
		if err := json.Unmarshal(detailsJSON, &d); err != nil {
			return nil, fmt.Errorf("unmarshal risk_details: %v", err)
		}
		tx.RiskDetails = &d
	}
	tx.RiskScore = riskScore
	tx.GraphTemporal = graphTemporal
	tx.ContentScore = contentScore
	if simType != nil {
		tx.SimulationType = *simType
	}
	return &tx, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), e.g. a duplicate transaction id.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// SaveShadowReport persists a C9 shadow run for audit.
func (s *PostgresStore) SaveShadowReport(ctx context.Context, report *models.ShadowReport) error {
	sql := `
		INSERT INTO shadow_reports
			(sample_size, decision_agreement_rate, would_flip_to_blocked, would_flip_to_approved, generated_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.pool.Exec(ctx, sql,
		report.SampleSize, report.DecisionAgreementRate, report.WouldFlipToBlocked, report.WouldFlipToApproved, report.GeneratedAt)
	return err
}

var _ Store = (*PostgresStore)(nil)
