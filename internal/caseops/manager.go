// Package caseops provides the analyst case-review workflow (C10): an
// in-memory, mutex-guarded registry of cases opened over flagged
// transactions. Restart loses open cases, which is acceptable at this
// scope — no durability requirement was placed on review state.
package caseops

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/fraudguard-engine/pkg/models"
)

// ErrNotFound is returned when an operation references an unknown case id.
var ErrNotFound = errors.New("caseops: case not found")

const (
	statusOpen   = "open"
	statusClosed = "closed"
)

// Manager owns the set of open and closed analyst cases.
type Manager struct {
	mu    sync.RWMutex
	cases map[string]*models.Case
}

// NewManager constructs an empty case registry.
func NewManager() *Manager {
	return &Manager{cases: make(map[string]*models.Case)}
}

// Open starts a new case over one or more transaction ids.
func (m *Manager) Open(transactionIDs []string) *models.Case {
	c := &models.Case{
		ID:             uuid.NewString(),
		TransactionIDs: transactionIDs,
		Status:         statusOpen,
		OpenedAt:       time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases[c.ID] = c
	return cloneCase(c)
}

// Get returns a copy of the case with the given id.
func (m *Manager) Get(id string) (*models.Case, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, false
	}
	return cloneCase(c), true
}

// List returns a snapshot of all cases, most recently opened first.
func (m *Manager) List() []*models.Case {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Case, 0, len(m.cases))
	for _, c := range m.cases {
		out = append(out, cloneCase(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.After(out[j].OpenedAt) })
	return out
}

// TagAccount records an analyst's label for an account involved in the case.
func (m *Manager) TagAccount(caseID, accountID, role, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return ErrNotFound
	}
	c.TaggedAccounts = append(c.TaggedAccounts, models.TaggedAccount{
		AccountID: accountID,
		Role:      role,
		Label:     label,
	})
	return nil
}

// AddNote appends an analyst annotation to the case's timeline.
func (m *Manager) AddNote(caseID, author, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return ErrNotFound
	}
	c.Notes = append(c.Notes, models.CaseNote{
		Author: author,
		Text:   text,
		At:     time.Now(),
	})
	return nil
}

// Close marks a case resolved.
func (m *Manager) Close(caseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return ErrNotFound
	}
	if c.Status == statusClosed {
		return nil
	}
	now := time.Now()
	c.Status = statusClosed
	c.ClosedAt = &now
	return nil
}

func cloneCase(c *models.Case) *models.Case {
	cp := *c
	cp.TransactionIDs = append([]string(nil), c.TransactionIDs...)
	cp.TaggedAccounts = append([]models.TaggedAccount(nil), c.TaggedAccounts...)
	cp.Notes = append([]models.CaseNote(nil), c.Notes...)
	return &cp
}
