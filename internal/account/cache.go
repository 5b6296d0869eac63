// Package account keeps the in-memory projection of the account state the
// gateway streams: account values, cash balances and open positions.
package account

import (
	"sync"

	"ib_api/internal/models"
)

// Cache is written by a single goroutine (the gateway pump) and read by any
// number of request handlers. Every read and write goes through mu, so a
// reader always sees the state between two applied updates, never in the
// middle of one.
type Cache struct {
	mu         sync.RWMutex
	values     models.AccountValues
	positions  []models.Position
	accountID  string
	lastUpdate string
	ready      bool
	connected  bool
}

func NewCache() *Cache {
	return &Cache{values: make(models.AccountValues)}
}

// ApplyValueUpdate upserts the (metric, currency) entry and records accountID
// as the active account. The value is stored as delivered.
func (c *Cache) ApplyValueUpdate(metric, currency, value, accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accountID = accountID
	c.values.Set(metric, currency, value)
}

// ApplyPositionUpdate folds one portfolio line. A zero quantity deletes the
// position; otherwise an existing (symbol, secType) entry is replaced at its
// index and a new one is appended.
func (c *Cache) ApplyPositionUpdate(p models.Position) {
	key := p.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if p.Closed() {
		for i := range c.positions {
			if c.positions[i].Key() == key {
				c.positions = append(c.positions[:i], c.positions[i+1:]...)
				return
			}
		}
		return
	}

	for i := range c.positions {
		if c.positions[i].Key() == key {
			c.positions[i] = p
			return
		}
	}
	c.positions = append(c.positions, p)
}

// ApplyTimestampUpdate stores the gateway's account time verbatim.
func (c *Cache) ApplyTimestampUpdate(ts string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUpdate = ts
}

// MarkAccountReady flags the initial account download as complete.
func (c *Cache) MarkAccountReady(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = true
	if c.accountID == "" {
		c.accountID = accountID
	}
}

func (c *Cache) MarkNotReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = false
}

func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

func (c *Cache) SetConnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = v
	if !v {
		c.ready = false
	}
}

func (c *Cache) AccountID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accountID
}

// Reset drops all cached state.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(models.AccountValues)
	c.positions = nil
	c.accountID = ""
	c.lastUpdate = ""
	c.ready = false
	c.connected = false
}

// Snapshot returns a deep copy of the cached state.
func (c *Cache) Snapshot() models.AccountSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	positions := make([]models.Position, len(c.positions))
	copy(positions, c.positions)

	return models.AccountSnapshot{
		AccountID:    c.accountID,
		LastUpdate:   c.lastUpdate,
		Values:       c.values.Clone(),
		CashBalances: CashBalances(c.values),
		Positions:    positions,
		Connected:    c.connected,
		Ready:        c.ready,
	}
}

// Summary returns the headline metrics of the cached state.
func (c *Cache) Summary() models.Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return models.Summary{
		AccountID:     c.accountID,
		LastUpdate:    c.lastUpdate,
		Metrics:       Headline(c.values),
		CashBalances:  CashBalances(c.values),
		PositionCount: len(c.positions),
	}
}
