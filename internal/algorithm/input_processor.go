// Package algorithm implements the transaction evaluation pipeline: input
// loading, graph-temporal analysis, content analysis, and risk combination
// (C3-C6).
package algorithm

import (
	"context"
	"time"

	"github.com/rawblock/fraudguard-engine/internal/store"
	"github.com/rawblock/fraudguard-engine/pkg/models"
)

const historyLimit = 20
const newAccountHistoryThreshold = 5

// ProcessInput loads the sender and receiver history for a transaction and
// derives the facts the rest of the pipeline needs (C3).
func ProcessInput(ctx context.Context, s store.Store, tx models.Transaction) (*models.EvaluationContext, error) {
	senderHistory, err := s.QuerySenderHistory(ctx, tx.SenderID, time.Time{}, historyLimit)
	if err != nil {
		return nil, err
	}
	receiverHistory, err := s.QueryReceiverHistory(ctx, tx.ReceiverID, time.Time{}, historyLimit)
	if err != nil {
		return nil, err
	}

	var sum, max float64
	receivers := make([]string, 0, len(senderHistory))
	for _, h := range senderHistory {
		sum += h.Amount
		if h.Amount > max {
			max = h.Amount
		}
		receivers = append(receivers, h.ReceiverID)
	}
	avg := 0.0
	if len(senderHistory) > 0 {
		avg = sum / float64(len(senderHistory))
	}

	return &models.EvaluationContext{
		Transaction:     tx,
		SenderHistory:   senderHistory,
		ReceiverHistory: receiverHistory,
		SenderIsNew:     len(senderHistory) < newAccountHistoryThreshold,
		ReceiverIsNew:   len(receiverHistory) < newAccountHistoryThreshold,
		SenderAvgAmount: avg,
		SenderMaxAmount: max,
		RecentReceivers: receivers,
	}, nil
}
