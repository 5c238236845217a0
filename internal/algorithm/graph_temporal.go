package algorithm

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rawblock/fraudguard-engine/internal/store"
	"github.com/rawblock/fraudguard-engine/pkg/models"
)

const thirtyDays = 30 * 24 * time.Hour

// txGraph is a transient per-job directed multigraph of accounts and past
// transactions. Nodes are interned to small integer ids; edges live in
// parallel slices indexed by an adjacency map, never pointer-chased node
// objects, and the whole thing is discarded at the end of one evaluation —
// it is never memoized across jobs.
type txGraph struct {
	nodeID  map[string]int
	nodes   []string
	edgeSrc []int
	edgeDst []int
	adj     map[int][]int // node id -> indices into edgeSrc/edgeDst where node is src or dst
}

func newTxGraph() *txGraph {
	return &txGraph{nodeID: make(map[string]int), adj: make(map[int][]int)}
}

func (g *txGraph) intern(account string) int {
	if id, ok := g.nodeID[account]; ok {
		return id
	}
	id := len(g.nodes)
	g.nodeID[account] = id
	g.nodes = append(g.nodes, account)
	return id
}

func (g *txGraph) addEdge(src, dst string) {
	s, d := g.intern(src), g.intern(dst)
	idx := len(g.edgeSrc)
	g.edgeSrc = append(g.edgeSrc, s)
	g.edgeDst = append(g.edgeDst, d)
	g.adj[s] = append(g.adj[s], idx)
	g.adj[d] = append(g.adj[d], idx)
}

func (g *txGraph) hasNode(account string) bool {
	_, ok := g.nodeID[account]
	return ok
}

func (g *txGraph) neighbors(account string) map[string]bool {
	id, ok := g.nodeID[account]
	if !ok {
		return nil
	}
	out := make(map[string]bool)
	for _, idx := range g.adj[id] {
		if g.edgeSrc[idx] == id {
			out[g.nodes[g.edgeDst[idx]]] = true
		} else {
			out[g.nodes[g.edgeSrc[idx]]] = true
		}
	}
	return out
}

func (g *txGraph) hasEdge(src, dst string) (count int) {
	sID, ok := g.nodeID[src]
	if !ok {
		return 0
	}
	dID, ok := g.nodeID[dst]
	if !ok {
		return 0
	}
	for _, idx := range g.adj[sID] {
		if g.edgeSrc[idx] == sID && g.edgeDst[idx] == dID {
			count++
		}
	}
	return count
}

// shortestPath does a breadth-first search over the undirected adjacency,
// returning -1 when no path exists.
func (g *txGraph) shortestPath(src, dst string) int {
	sID, ok := g.nodeID[src]
	if !ok {
		return -1
	}
	dID, ok := g.nodeID[dst]
	if !ok {
		return -1
	}
	if sID == dID {
		return 0
	}
	visited := map[int]bool{sID: true}
	queue := []int{sID}
	dist := map[int]int{sID: 0}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, idx := range g.adj[cur] {
			var next int
			if g.edgeSrc[idx] == cur {
				next = g.edgeDst[idx]
			} else {
				next = g.edgeSrc[idx]
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			dist[next] = dist[cur] + 1
			if next == dID {
				return dist[next]
			}
			queue = append(queue, next)
		}
	}
	return -1
}

// GraphTemporalResult is the output of AnalyzeGraphTemporal.
type GraphTemporalResult struct {
	Score   float64
	Details map[string]any

	// LastHourCount is the sender's transaction count in the hour preceding
	// timestamp, as computed by this same analysis. The risk engine's
	// velocity factor reuses this value instead of issuing its own query,
	// so the two stay consistent.
	LastHourCount int
}

// AnalyzeGraphTemporal computes C4's combined temporal + graph sub-score.
func AnalyzeGraphTemporal(ctx context.Context, s store.Store, senderID, receiverID string, amount float64, timestamp time.Time) (*GraphTemporalResult, error) {
	temporalScore, temporalDetails, historyLen, lastHourCount, err := analyzeTemporal(ctx, s, senderID, receiverID, amount, timestamp)
	if err != nil {
		return nil, err
	}

	graph, err := buildTransactionGraph(ctx, s, senderID, receiverID, timestamp)
	if err != nil {
		return nil, err
	}
	graphScore, graphDetails, err := analyzeGraphPatterns(ctx, s, graph, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	var combined float64
	if historyLen < newAccountHistoryThreshold {
		combined = 0.7*temporalScore + 0.3*graphScore
	} else {
		combined = 0.5*temporalScore + 0.5*graphScore
	}

	return &GraphTemporalResult{
		Score: combined,
		Details: map[string]any{
			"graph_analysis":             graphDetails,
			"temporal_analysis":          temporalDetails,
			"final_graph_temporal_score": combined,
		},
		LastHourCount: lastHourCount,
	}, nil
}

// buildTransactionGraph gathers every transaction touching senderID or
// receiverID (as either side) and adds exactly one edge per transaction,
// deduping by transaction id since sender's and receiver's queries can
// both return the same row (e.g. a prior tx directly between the two).
func buildTransactionGraph(ctx context.Context, s store.Store, senderID, receiverID string, timestamp time.Time) (*txGraph, error) {
	since := timestamp.Add(-thirtyDays)
	seen := make(map[string]bool)
	g := newTxGraph()
	for _, account := range []string{senderID, receiverID} {
		sent, err := s.QuerySenderHistory(ctx, account, since, 0)
		if err != nil {
			return nil, err
		}
		received, err := s.QueryReceiverHistory(ctx, account, since, 0)
		if err != nil {
			return nil, err
		}
		for _, tx := range append(sent, received...) {
			if seen[tx.ID] {
				continue
			}
			seen[tx.ID] = true
			g.addEdge(tx.SenderID, tx.ReceiverID)
		}
	}
	return g, nil
}

func analyzeTemporal(ctx context.Context, s store.Store, senderID, receiverID string, amount float64, timestamp time.Time) (float64, map[string]any, int, int, error) {
	since := timestamp.Add(-thirtyDays)
	history, err := s.QuerySenderHistory(ctx, senderID, since, 0)
	if err != nil {
		return 0, nil, 0, 0, err
	}
	// QuerySenderHistory also returns the transaction being evaluated (it is
	// stored before a worker picks it up), so keep only rows strictly before
	// timestamp.
	past := make([]models.Transaction, 0, len(history))
	for _, h := range history {
		if h.Timestamp.Before(timestamp) {
			past = append(past, h)
		}
	}

	details := map[string]any{
		"amount_anomaly":      0.0,
		"frequency_anomaly":   0.0,
		"time_window_anomaly": 0.0,
		"history_length":      len(past),
	}

	if len(past) == 0 {
		details["reason"] = "No transaction history"
		return 0.5, details, 0, 0, nil
	}

	var hourCount, dayCount int
	var hourVolume, dayVolume float64
	lastHour := timestamp.Add(-time.Hour)
	lastDay := timestamp.Add(-24 * time.Hour)
	for _, h := range past {
		if !h.Timestamp.Before(lastHour) {
			hourCount++
			hourVolume += h.Amount
		}
		if !h.Timestamp.Before(lastDay) {
			dayCount++
			dayVolume += h.Amount
		}
	}
	details["last_hour_count"] = hourCount
	details["last_day_count"] = dayCount
	details["last_hour_volume"] = hourVolume
	details["last_day_volume"] = dayVolume

	var score float64
	if hourCount > 5 {
		score += math.Min(0.1*float64(hourCount-5), 0.5)
		details["high_frequency_hour"] = true
	}
	if dayCount > 20 {
		score += math.Min(0.05*float64(dayCount-20), 0.4)
		details["high_frequency_day"] = true
	}

	seenReceiver := false
	for _, h := range past {
		if h.ReceiverID == receiverID {
			seenReceiver = true
			break
		}
	}
	if !seenReceiver {
		details["new_recipient"] = true
		capped := len(past)
		if capped > 20 {
			capped = 20
		}
		score += math.Max(0, 0.3-float64(capped)*0.01)
	}

	amounts := make([]float64, len(past))
	for i, h := range past {
		amounts[i] = h.Amount
	}
	mean := meanOf(amounts)
	std := stdDevOf(amounts, mean)
	std = math.Max(std, 0.01)
	zScore := (amount - mean) / std
	amountAnomaly := clamp(math.Abs(zScore)/3, 0, 1)
	details["amount_anomaly"] = amountAnomaly
	details["avg_transaction_amount"] = mean
	details["transaction_amount_std"] = std

	frequencyAnomaly := 0.0
	timestamps := make([]time.Time, len(past))
	for i, h := range past {
		timestamps[i] = h.Timestamp
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })
	if len(timestamps) > 1 {
		diffs := make([]float64, 0, len(timestamps)-1)
		for i := 0; i < len(timestamps)-1; i++ {
			diffs = append(diffs, timestamps[i+1].Sub(timestamps[i]).Hours())
		}
		meanDiff := meanOf(diffs)
		if meanDiff == 0 {
			meanDiff = 24
		}
		stdDiff := stdDevOf(diffs, meanDiff)
		if len(diffs) <= 1 {
			stdDiff = meanDiff * 0.5
		}
		timeSinceLast := timestamp.Sub(timestamps[len(timestamps)-1]).Hours()
		if meanDiff > 0 {
			if stdDiff > 0 {
				zTime := math.Abs(timeSinceLast-meanDiff) / stdDiff
				frequencyAnomaly = clamp(zTime/3, 0, 1)
			}
		}
		details["frequency_anomaly"] = frequencyAnomaly
		details["avg_hours_between_tx"] = meanDiff
		details["hours_since_last_tx"] = timeSinceLast
	}

	hourOfDay := timestamp.UTC().Hour()
	timeWindowAnomaly := 0.0
	if hourOfDay < 6 || hourOfDay > 22 {
		timeWindowAnomaly = 0.7
	}
	details["hour_of_day"] = hourOfDay
	details["time_window_anomaly"] = timeWindowAnomaly

	combined := clamp(score+0.6*amountAnomaly+0.3*frequencyAnomaly+0.1*timeWindowAnomaly, 0, 1)
	return combined, details, len(past), hourCount, nil
}

func analyzeGraphPatterns(ctx context.Context, s store.Store, g *txGraph, senderID, receiverID string) (float64, map[string]any, error) {
	details := map[string]any{
		"previous_transactions": 0,
		"network_distance":      -1,
		"common_neighbors":      0,
		"is_first_transaction":  true,
	}

	fraudConnections, err := countFraudConnections(ctx, s, g, senderID, receiverID)
	if err != nil {
		return 0, nil, err
	}
	details["fraud_connections"] = fraudConnections

	score := 0.0
	if fraudConnections > 0 {
		factor := math.Min(0.1*float64(fraudConnections), 0.5)
		score += factor
		details["fraud_connections_factor"] = factor
	}

	if prev := g.hasEdge(senderID, receiverID); prev > 0 {
		details["is_first_transaction"] = false
		details["previous_transactions"] = prev
		score -= math.Min(0.3, 0.05*float64(prev))
	}

	if distance := g.shortestPath(senderID, receiverID); distance >= 0 {
		details["network_distance"] = distance
		switch distance {
		case 1:
			score -= 0.2
		case 2:
			score -= 0.1
		}
	}

	var commonCount int
	if g.hasNode(senderID) && g.hasNode(receiverID) {
		senderNeighbors := g.neighbors(senderID)
		receiverNeighbors := g.neighbors(receiverID)
		for n := range senderNeighbors {
			if receiverNeighbors[n] {
				commonCount++
			}
		}
		details["common_neighbors"] = commonCount
		score -= math.Min(0.3, 0.05*float64(commonCount))
	}

	if details["is_first_transaction"] == true && commonCount == 0 {
		score += 0.3
	}

	score = clamp(0.5+score, 0, 1)
	return score, details, nil
}

// countFraudConnections mirrors _get_fraud_connections: counts sender's
// 1-hop neighbors with a high-confidence blocked transaction history, plus
// a heavier weight (+2) if the receiver itself has such history.
func countFraudConnections(ctx context.Context, s store.Store, g *txGraph, senderID, receiverID string) (int, error) {
	count := 0
	if g.hasNode(senderID) {
		for neighbor := range g.neighbors(senderID) {
			hasFraud, err := hasBlockedHighRisk(ctx, s, neighbor)
			if err != nil {
				return 0, err
			}
			if hasFraud {
				count++
			}
		}
	}
	receiverFraud, err := hasBlockedHighRisk(ctx, s, receiverID)
	if err != nil {
		return 0, err
	}
	if receiverFraud {
		count += 2
	}
	return count, nil
}

func hasBlockedHighRisk(ctx context.Context, s store.Store, account string) (bool, error) {
	sent, err := s.QuerySenderHistory(ctx, account, time.Time{}, 0)
	if err != nil {
		return false, err
	}
	if anyBlockedHighRisk(sent) {
		return true, nil
	}
	received, err := s.QueryReceiverHistory(ctx, account, time.Time{}, 0)
	if err != nil {
		return false, err
	}
	return anyBlockedHighRisk(received), nil
}

func anyBlockedHighRisk(txs []models.Transaction) bool {
	for _, tx := range txs {
		if tx.Status == models.StatusBlocked && tx.RiskScore != nil && *tx.RiskScore > 0.8 {
			return true
		}
	}
	return false
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDevOf(values []float64, mean float64) float64 {
	if len(values) <= 1 {
		return mean * 0.5
	}
	var sumSq float64
	for _, v := range values {
		sumSq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
