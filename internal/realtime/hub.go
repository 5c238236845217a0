// Package realtime broadcasts finalized fraud decisions to any connected
// dashboard over a websocket (C11). Purely observational: no client can
// influence scoring through this channel.
package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rawblock/fraudguard-engine/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard origin is enforced by the CORS middleware, not here
	},
}

// DecisionEvent is the payload broadcast the moment a worker finalizes a
// transaction.
type DecisionEvent struct {
	Type          string  `json:"type"`
	TransactionID string  `json:"transactionId"`
	Status        string  `json:"status"`
	RiskScore     float64 `json:"riskScore"`
}

// Hub maintains the set of active websocket clients and broadcasts decision
// events to all of them.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
}

// NewHub constructs an empty hub. Call Run in its own goroutine to start
// draining the broadcast channel.
func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
	}
}

// Run drains the broadcast channel, fanning each message out to every
// connected client, until the channel is closed.
func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[Realtime] write error: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe upgrades the request to a websocket and registers the
// connection as a broadcast recipient until it disconnects.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Realtime] failed to upgrade websocket: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mutex.Unlock()
	log.Printf("[Realtime] client connected, total=%d", total)

	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			total := len(h.clients)
			h.mutex.Unlock()
			conn.Close()
			log.Printf("[Realtime] client disconnected, total=%d", total)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[Realtime] read error: %v", err)
				}
				break
			}
		}
	}()
}

// Broadcast sends a raw JSON payload to every connected client. Best-effort:
// if the channel is full (a slow Run loop, stalled on a slow client's write
// deadline) the message is dropped rather than blocking the caller, which is
// typically a worker goroutine finalizing a transaction.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		log.Printf("[Realtime] broadcast channel full, dropping decision event")
	}
}

// PublishDecision broadcasts a finalized transaction as a DecisionEvent.
// Marshal errors are logged and dropped rather than propagated — a
// malformed broadcast must never take down the worker that finalized it.
func (h *Hub) PublishDecision(tx *models.Transaction) {
	score := 0.0
	if tx.RiskScore != nil {
		score = *tx.RiskScore
	}
	event := DecisionEvent{
		Type:          "decision",
		TransactionID: tx.ID,
		Status:        string(tx.Status),
		RiskScore:     score,
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Realtime] failed to marshal decision event: %v", err)
		return
	}
	h.Broadcast(data)
}
