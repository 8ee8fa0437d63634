package pricer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/pkg/retrier"
)

// PriceObserver is notified about every feed fetch.
type PriceObserver interface {
	ObservePrice(chain domain.Chain, feed string, err error)
}

// Updater periodically pulls prices from a feed into the table.
type Updater struct {
	feed     Feed
	table    *Table
	chains   []domain.Chain
	interval time.Duration
	retrier  *retrier.Retrier
	observer PriceObserver
	l        *zap.Logger
}

// NewUpdater creates an updater. A nil retrier means a single attempt per refresh.
func NewUpdater(feed Feed, table *Table, chains []domain.Chain, interval time.Duration, r *retrier.Retrier, l *zap.Logger) *Updater {
	if r == nil {
		r = retrier.New(retrier.WithMaxRetries(0))
	}
	return &Updater{
		feed:     feed,
		table:    table,
		chains:   chains,
		interval: interval,
		retrier:  r,
		l:        l,
	}
}

// SetObserver attaches an observer for fetch results.
func (u *Updater) SetObserver(o PriceObserver) {
	u.observer = o
}

// Run refreshes immediately and then on every tick until ctx is done.
func (u *Updater) Run(ctx context.Context) error {
	u.l.Info("Starting price updater",
		zap.String("feed", u.feed.Name()),
		zap.Duration("interval", u.interval))

	u.Refresh(ctx)

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			u.l.Info("Price updater stopped", zap.String("feed", u.feed.Name()))
			return nil
		case <-ticker.C:
			u.Refresh(ctx)
		}
	}
}

// Refresh fetches every chain once. Failures keep the previous price in the table.
func (u *Updater) Refresh(ctx context.Context) {
	for _, chain := range u.chains {
		price, err := retrier.DoWithData(u.retrier, ctx, func(ctx context.Context) (decimal.Decimal, error) {
			return u.feed.GetPrice(ctx, chain)
		})
		if u.observer != nil {
			u.observer.ObservePrice(chain, u.feed.Name(), err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			u.l.Warn("failed to fetch price",
				zap.String("feed", u.feed.Name()),
				zap.String("chain", chain.String()),
				zap.Error(err))
			continue
		}
		if !price.IsPositive() {
			u.l.Warn("feed returned non-positive price",
				zap.String("feed", u.feed.Name()),
				zap.String("chain", chain.String()),
				zap.String("price", price.String()))
			continue
		}

		u.table.Set(chain, price, time.Now())
		u.l.Debug("price updated",
			zap.String("feed", u.feed.Name()),
			zap.String("chain", chain.String()),
			zap.String("price", price.String()))
	}
}
