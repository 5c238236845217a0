package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rawblock/fraudguard-engine/internal/algorithm"
	"github.com/rawblock/fraudguard-engine/internal/broker"
	"github.com/rawblock/fraudguard-engine/internal/caseops"
	"github.com/rawblock/fraudguard-engine/internal/realtime"
	"github.com/rawblock/fraudguard-engine/internal/rules"
	"github.com/rawblock/fraudguard-engine/internal/shadow"
	"github.com/rawblock/fraudguard-engine/internal/store"
	"github.com/rawblock/fraudguard-engine/internal/worker"
	"github.com/rawblock/fraudguard-engine/pkg/models"
)

// APIHandler bundles every subsystem the HTTP surface reads from or
// writes to.
type APIHandler struct {
	store   store.Store
	broker  broker.Broker
	pool    *worker.Pool
	updater *rules.Updater
	cases   *caseops.Manager
	hub     *realtime.Hub
}

// SetupRouter wires the full HTTP surface described for the engine: public
// stream and read-only endpoints, and bearer-token-guarded, rate-limited
// transaction/case endpoints.
func SetupRouter(s store.Store, b broker.Broker, pool *worker.Pool, updater *rules.Updater, cases *caseops.Manager, hub *realtime.Hub) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{store: s, broker: b, pool: pool, updater: updater, cases: cases, hub: hub}

	pub := r.Group("/api")
	{
		pub.GET("/stream", hub.Subscribe)
		pub.GET("/transaction/:id", handler.handleGetTransaction)
		pub.GET("/risk-details/:id", handler.handleGetRiskDetails)
		pub.GET("/recent-transactions", handler.handleRecentTransactions)
		pub.GET("/system-stats", handler.handleSystemStats)
		pub.GET("/cases/:id", handler.handleGetCase)
	}

	// Mutating endpoints require a bearer token when API_AUTH_TOKEN is set,
	// and are rate-limited per IP (60 req/min, burst 10).
	mut := r.Group("/api")
	mut.Use(AuthMiddleware())
	mut.Use(NewRateLimiter(60, 10).Middleware())
	{
		mut.POST("/transaction", handler.handleSubmitTransaction)
		mut.POST("/simulate-fraud", handler.handleSimulateFraud)
		mut.POST("/cases", handler.handleOpenCase)
		mut.POST("/cases/:id/tag", handler.handleTagAccount)
		mut.POST("/cases/:id/notes", handler.handleAddNote)
		mut.POST("/cases/:id/close", handler.handleCloseCase)
		mut.POST("/rules/shadow-run", handler.handleShadowRun)
	}

	return r
}

func (h *APIHandler) enqueue(c *gin.Context, tx *models.Transaction) bool {
	if err := h.store.Insert(c.Request.Context(), tx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return false
	}
	if err := h.broker.Publish(c.Request.Context(), tx.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue transaction for processing"})
		return false
	}
	return true
}

type submitTransactionRequest struct {
	SenderID    string         `json:"sender_id" binding:"required"`
	ReceiverID  string         `json:"receiver_id" binding:"required"`
	Amount      float64        `json:"amount" binding:"required"`
	Timestamp   string         `json:"timestamp"`
	TxnMetadata map[string]any `json:"txn_metadata"`
}

// handleSubmitTransaction is POST /api/transaction.
func (h *APIHandler) handleSubmitTransaction(c *gin.Context) {
	var req submitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required field"})
		return
	}

	ts := time.Now()
	if req.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			ts = parsed
		}
	}

	tx := &models.Transaction{
		ID:          uuid.NewString(),
		SenderID:    req.SenderID,
		ReceiverID:  req.ReceiverID,
		Amount:      req.Amount,
		Timestamp:   ts,
		TxnMetadata: req.TxnMetadata,
		Status:      models.StatusPending,
	}

	if !h.enqueue(c, tx) {
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"transaction_id": tx.ID,
		"status":         string(models.StatusPending),
		"message":        "Transaction received and queued for processing",
	})
}

type simulateFraudRequest struct {
	FraudType  string  `json:"fraud_type" binding:"required"`
	SenderID   string  `json:"sender_id" binding:"required"`
	ReceiverID string  `json:"receiver_id" binding:"required"`
	Amount     float64 `json:"amount" binding:"required"`
}

// handleSimulateFraud is POST /api/simulate-fraud, used to drive the
// dashboard's demo scenarios deterministically.
func (h *APIHandler) handleSimulateFraud(c *gin.Context) {
	var req simulateFraudRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required field"})
		return
	}

	switch req.FraudType {
	case "high_value", "phishing_url", "qr_code_tampering", "network_fraud":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown fraud_type"})
		return
	}

	amount := req.Amount
	metadata := map[string]any{}

	switch req.FraudType {
	case "high_value":
		amount = req.Amount * 100
	case "phishing_url":
		metadata = map[string]any{
			"payment_url": "http://legitbank-secure.fishy-domain.com/payment",
			"user_agent":  "Mozilla/5.0",
			"ip_address":  "192.168.1.100",
		}
	case "qr_code_tampering":
		metadata = map[string]any{
			"qr_code_payload": map[string]any{
				"original_receiver":    req.ReceiverID,
				"tampered_receiver":    "hacker_account_123",
				"tampering_confidence": 0.92,
			},
			"device_info": "Android 12",
		}
	case "network_fraud":
		metadata = map[string]any{
			"recent_receivers": []string{"acc_9472", "acc_3782", "acc_5432", "suspicious_acc_8843"},
			"network_anomaly":  "unusual_connection_chain",
		}
	}

	tx := &models.Transaction{
		ID:             uuid.NewString(),
		SenderID:       req.SenderID,
		ReceiverID:     req.ReceiverID,
		Amount:         amount,
		Timestamp:      time.Now(),
		TxnMetadata:    metadata,
		Status:         models.StatusPending,
		IsSimulated:    true,
		SimulationType: req.FraudType,
	}

	if !h.enqueue(c, tx) {
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"transaction_id": tx.ID,
		"status":         string(models.StatusPending),
		"message":        "Simulated " + req.FraudType + " scenario queued for processing",
		"fraud_type":     req.FraudType,
	})
}

// handleGetTransaction is GET /api/transaction/{id}.
func (h *APIHandler) handleGetTransaction(c *gin.Context) {
	tx, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !tx.Processed {
		c.JSON(http.StatusAccepted, gin.H{
			"transaction_id": tx.ID,
			"status":         string(models.StatusPending),
			"message":        "Transaction is still being processed",
		})
		return
	}
	c.JSON(http.StatusOK, tx)
}

// handleGetRiskDetails is GET /api/risk-details/{id}.
func (h *APIHandler) handleGetRiskDetails(c *gin.Context) {
	tx, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !tx.Processed {
		c.JSON(http.StatusAccepted, gin.H{
			"transaction_id": tx.ID,
			"status":         string(models.StatusPending),
			"message":        "Transaction is still being processed",
		})
		return
	}

	explanation := algorithm.GenerateExplanation(tx.Status, tx.RiskDetails)

	c.JSON(http.StatusOK, gin.H{
		"transaction_id":         tx.ID,
		"risk_score":             tx.RiskScore,
		"status":                 tx.Status,
		"risk_details":           tx.RiskDetails,
		"graph_temporal_score":   tx.GraphTemporal,
		"content_analysis_score": tx.ContentScore,
		"explanation":            explanation,
	})
}

// handleRecentTransactions is GET /api/recent-transactions?limit=N.
func (h *APIHandler) handleRecentTransactions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	txns, err := h.store.QueryRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

// handleSystemStats is GET /api/system-stats.
func (h *APIHandler) handleSystemStats(c *gin.Context) {
	since := time.Now().Add(-24 * time.Hour)
	stats, err := h.store.QueryStatsSince(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var processed, failed int64
	if h.pool != nil {
		processed, failed = h.pool.Stats()
	}

	c.JSON(http.StatusOK, gin.H{
		"system_stats": stats,
		"thresholds":   h.updater.Current(),
		"worker_stats": gin.H{"processed": processed, "failed": failed},
	})
}

// handleShadowRun is a supplemental operator endpoint that sanity-checks the
// live threshold snapshot against the same window C8 used to build it.
func (h *APIHandler) handleShadowRun(c *gin.Context) {
	report, err := shadow.Run(c.Request.Context(), h.store, h.updater.Current())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

type openCaseRequest struct {
	TransactionIDs []string `json:"transaction_ids" binding:"required"`
}

// handleOpenCase is POST /api/cases.
func (h *APIHandler) handleOpenCase(c *gin.Context) {
	var req openCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required field: transaction_ids"})
		return
	}
	caseRecord := h.cases.Open(req.TransactionIDs)
	c.JSON(http.StatusCreated, caseRecord)
}

// handleGetCase is GET /api/cases/{id}.
func (h *APIHandler) handleGetCase(c *gin.Context) {
	caseRecord, ok := h.cases.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
		return
	}
	c.JSON(http.StatusOK, caseRecord)
}

type tagAccountRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	Role      string `json:"role" binding:"required"`
	Label     string `json:"label"`
}

// handleTagAccount is POST /api/cases/{id}/tag.
func (h *APIHandler) handleTagAccount(c *gin.Context) {
	var req tagAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required field"})
		return
	}
	if err := h.cases.TagAccount(c.Param("id"), req.AccountID, req.Role, req.Label); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

type addNoteRequest struct {
	Author string `json:"author" binding:"required"`
	Text   string `json:"text" binding:"required"`
}

// handleAddNote is POST /api/cases/{id}/notes.
func (h *APIHandler) handleAddNote(c *gin.Context) {
	var req addNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required field"})
		return
	}
	if err := h.cases.AddNote(c.Param("id"), req.Author, req.Text); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleCloseCase is POST /api/cases/{id}/close.
func (h *APIHandler) handleCloseCase(c *gin.Context) {
	if err := h.cases.Close(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
