// Package pricer converts native balances to approximate fiat values
// using a reference price table fed by configuration or exchange tickers.
package pricer

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

type livePrice struct {
	value decimal.Decimal
	at    time.Time
}

// Table holds one USD reference price per chain.
// Live prices expire after maxAge; static prices never expire and back live ones.
type Table struct {
	mu     sync.RWMutex
	live   map[domain.Chain]livePrice
	static map[domain.Chain]decimal.Decimal
	maxAge time.Duration
	now    func() time.Time
}

// NewTable creates an empty table. maxAge <= 0 disables expiry of live prices.
func NewTable(maxAge time.Duration) *Table {
	return &Table{
		live:   make(map[domain.Chain]livePrice),
		static: make(map[domain.Chain]decimal.Decimal),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// SetStatic sets a configured price for the chain.
func (t *Table) SetStatic(chain domain.Chain, price decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.static[chain] = price
}

// Set records a live price observed at the given time.
func (t *Table) Set(chain domain.Chain, price decimal.Decimal, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live[chain] = livePrice{value: price, at: at}
}

// Get returns a usable price: a fresh live price, else the static one.
// Non-positive prices are never returned.
func (t *Table) Get(chain domain.Chain) (decimal.Decimal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if lp, ok := t.live[chain]; ok && lp.value.IsPositive() {
		if t.maxAge <= 0 || t.now().Sub(lp.at) <= t.maxAge {
			return lp.value, true
		}
	}
	if sp, ok := t.static[chain]; ok && sp.IsPositive() {
		return sp, true
	}

	return decimal.Zero, false
}

// Converter maps native amounts to USD. It performs no I/O.
type Converter struct {
	table *Table
}

// NewConverter creates a converter over the table.
func NewConverter(table *Table) *Converter {
	return &Converter{table: table}
}

// ToFiat returns nil when no reference price is known; it never fabricates one.
func (c *Converter) ToFiat(chain domain.Chain, amount float64) *float64 {
	if c == nil || c.table == nil || amount < 0 {
		return nil
	}
	price, ok := c.table.Get(chain)
	if !ok {
		return nil
	}

	usd := decimal.NewFromFloat(amount).Mul(price).Round(2).InexactFloat64()
	return &usd
}
