// Package shadow lets an operator sanity-check a freshly computed
// ThresholdConfig before promoting it, by replaying recent decisions
// against the candidate without touching any transaction row or the live
// snapshot (C9).
package shadow

import (
	"context"
	"log"
	"time"

	"github.com/rawblock/fraudguard-engine/internal/algorithm"
	"github.com/rawblock/fraudguard-engine/internal/store"
	"github.com/rawblock/fraudguard-engine/pkg/models"
)

const lookbackWindow = 30 * 24 * time.Hour

// Run replays the last 30 days of finalized transactions through the
// scoring pipeline using candidate in place of the live ThresholdConfig,
// and reports how often the resulting decision would differ from what
// was actually recorded. No Transaction row and no live snapshot is
// mutated by this process.
func Run(ctx context.Context, s store.Store, candidate *models.ThresholdConfig) (*models.ShadowReport, error) {
	since := time.Now().Add(-lookbackWindow)
	recent, err := s.QuerySince(ctx, since, 0)
	if err != nil {
		return nil, err
	}

	var sampleSize, agreements, flipToBlocked, flipToApproved int
	for _, tx := range recent {
		if !tx.Processed {
			continue
		}
		candidateStatus, err := evaluate(ctx, s, candidate, tx)
		if err != nil {
			return nil, err
		}
		sampleSize++

		if candidateStatus == tx.Status {
			agreements++
			continue
		}
		if candidateStatus == models.StatusBlocked {
			flipToBlocked++
		} else if tx.Status == models.StatusBlocked && candidateStatus == models.StatusApproved {
			flipToApproved++
		}
	}

	agreementRate := 1.0
	if sampleSize > 0 {
		agreementRate = float64(agreements) / float64(sampleSize)
	}

	report := &models.ShadowReport{
		SampleSize:            sampleSize,
		DecisionAgreementRate: agreementRate,
		WouldFlipToBlocked:    flipToBlocked,
		WouldFlipToApproved:   flipToApproved,
		GeneratedAt:           time.Now(),
	}
	if err := s.SaveShadowReport(ctx, report); err != nil {
		log.Printf("[Shadow] failed to persist report: %v", err)
	}
	return report, nil
}

// evaluate recomputes the decision a transaction would receive under cfg,
// rerunning C3–C6 exactly as the live worker does but discarding the
// result instead of persisting it.
func evaluate(ctx context.Context, s store.Store, cfg *models.ThresholdConfig, tx models.Transaction) (models.Status, error) {
	evalCtx, err := algorithm.ProcessInput(ctx, s, tx)
	if err != nil {
		return "", err
	}

	gt, err := algorithm.AnalyzeGraphTemporal(ctx, s, tx.SenderID, tx.ReceiverID, tx.Amount, tx.Timestamp)
	if err != nil {
		return "", err
	}

	content := algorithm.AnalyzeContent(tx)

	risk, err := algorithm.CalculateRisk(ctx, s, cfg, evalCtx, gt, content, gt.LastHourCount)
	if err != nil {
		return "", err
	}
	return risk.Status, nil
}
