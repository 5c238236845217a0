// Package worker runs the fraud-risk evaluation pipeline against jobs
// pulled from the broker (C7).
package worker

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/rawblock/fraudguard-engine/internal/algorithm"
	"github.com/rawblock/fraudguard-engine/internal/broker"
	"github.com/rawblock/fraudguard-engine/internal/store"
	"github.com/rawblock/fraudguard-engine/pkg/models"
)

// Pool runs a fixed number of independent worker loops, each with its own
// broker consumer handle at prefetch 1.
type Pool struct {
	broker      broker.Broker
	store       store.Store
	thresholds  ThresholdSource
	size        int
	jobTimeout  time.Duration
	onFinalized func(tx *models.Transaction)

	processed atomic.Int64
	failed    atomic.Int64
}

// ThresholdSource is the minimal read-only view the worker needs onto the
// process-wide threshold snapshot; satisfied by rules.Updater.
type ThresholdSource interface {
	Current() *models.ThresholdConfig
}

// NewPool constructs a worker pool. onFinalized, if non-nil, is invoked
// (best-effort, never blocking) after a transaction is successfully
// finalized — used to drive the realtime broadcast feed.
func NewPool(b broker.Broker, s store.Store, thresholds ThresholdSource, size int, jobTimeout time.Duration, onFinalized func(tx *models.Transaction)) *Pool {
	if size <= 0 {
		size = 4
	}
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Second
	}
	return &Pool{broker: b, store: s, thresholds: thresholds, size: size, jobTimeout: jobTimeout, onFinalized: onFinalized}
}

// Run starts size independent consumer loops and blocks until ctx is
// cancelled.
func (p *Pool) Run(ctx context.Context) error {
	consumers := make([]<-chan broker.Delivery, p.size)
	for i := range consumers {
		deliveries, err := p.broker.Consume(ctx)
		if err != nil {
			return err
		}
		consumers[i] = deliveries
	}

	done := make(chan struct{})
	for i := 0; i < p.size; i++ {
		go func(workerID int) {
			p.loop(ctx, workerID, consumers[workerID])
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < p.size; i++ {
		<-done
	}
	return nil
}

func (p *Pool) loop(ctx context.Context, workerID int, deliveries <-chan broker.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			p.handle(ctx, workerID, d)
		}
	}
}

func (p *Pool) handle(ctx context.Context, workerID int, d broker.Delivery) {
	txID := d.TransactionID()
	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	if err := p.process(jobCtx, txID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("[Worker %d] transaction %s not found, acking (broker/db race)", workerID, txID)
			_ = d.Ack()
			return
		}
		if errors.Is(err, store.ErrAlreadyProcessed) {
			_ = d.Ack()
			return
		}
		p.failed.Add(1)
		log.Printf("[Worker %d] transaction %s failed: %v, requeuing", workerID, txID, err)
		_ = d.Nack(true)
		return
	}

	p.processed.Add(1)
	_ = d.Ack()
}

func (p *Pool) process(ctx context.Context, txID string) error {
	tx, err := p.store.Get(ctx, txID)
	if err != nil {
		return err
	}
	if tx.Processed {
		return store.ErrAlreadyProcessed
	}

	evalCtx, err := algorithm.ProcessInput(ctx, p.store, *tx)
	if err != nil {
		return err
	}

	gt, err := algorithm.AnalyzeGraphTemporal(ctx, p.store, tx.SenderID, tx.ReceiverID, tx.Amount, tx.Timestamp)
	if err != nil {
		return err
	}

	content := algorithm.AnalyzeContent(*tx)

	cfg := p.thresholds.Current()
	risk, err := algorithm.CalculateRisk(ctx, p.store, cfg, evalCtx, gt, content, gt.LastHourCount)
	if err != nil {
		return err
	}

	if err := p.store.Finalize(ctx, txID, risk.Score, gt.Score, content.Score, risk.Status, risk.Details); err != nil {
		return err
	}

	if p.onFinalized != nil {
		finalized := *tx
		finalized.RiskScore = &risk.Score
		finalized.GraphTemporal = &gt.Score
		finalized.ContentScore = &content.Score
		finalized.Status = risk.Status
		finalized.RiskDetails = risk.Details
		finalized.Processed = true
		p.onFinalized(&finalized)
	}

	return nil
}

// Stats reports cumulative processing counters for /api/system-stats.
func (p *Pool) Stats() (processed, failed int64) {
	return p.processed.Load(), p.failed.Load()
}
