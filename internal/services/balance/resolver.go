// Package balance resolves native wallet balances from an indexer with an RPC fallback.
package balance

import (
	"context"
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

// Source returns an address balance in the chain's smallest unit (lamports, wei).
type Source interface {
	Balance(ctx context.Context, address string) (*big.Int, error)
}

// Observer is notified about every source query.
type Observer interface {
	ObserveSource(chain domain.Chain, source domain.BalanceSource, err error)
}

type chainSources struct {
	indexer Source
	rpc     Source
}

// Resolver queries the indexer first and falls back to RPC on any indexer failure.
type Resolver struct {
	sources  map[domain.Chain]chainSources
	observer Observer
	l        *zap.Logger
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithObserver sets the source query observer.
func WithObserver(o Observer) Option {
	return func(r *Resolver) {
		r.observer = o
	}
}

// NewResolver creates a resolver without any chain registered.
func NewResolver(l *zap.Logger, opts ...Option) *Resolver {
	if l == nil {
		l = zap.NewNop()
	}
	r := &Resolver{
		sources: make(map[domain.Chain]chainSources),
		l:       l,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register sets the sources for a chain. indexer may be nil, rpc is required.
func (r *Resolver) Register(chain domain.Chain, indexer, rpc Source) error {
	if !chain.IsValid() {
		return errors.Wrapf(domain.ErrUnknownChain, "register %q", chain)
	}
	if rpc == nil {
		return errors.Errorf("rpc source is required for %s", chain)
	}
	r.sources[chain] = chainSources{indexer: indexer, rpc: rpc}
	return nil
}

// Resolve returns the balance in the chain's display unit and the source that produced it.
// When both sources fail the error wraps domain.ErrBalanceUnavailable; no value is substituted.
func (r *Resolver) Resolve(ctx context.Context, chain domain.Chain, address string) (float64, domain.BalanceSource, error) {
	src, ok := r.sources[chain]
	if !ok {
		return 0, domain.BalanceSourceNone, errors.Wrapf(domain.ErrUnknownChain, "resolve %q", chain)
	}

	if src.indexer != nil {
		value, err := r.query(ctx, chain, src.indexer, address)
		r.observe(chain, domain.BalanceSourceIndexer, err)
		if err == nil {
			return value, domain.BalanceSourceIndexer, nil
		}
		if ctx.Err() != nil {
			return 0, domain.BalanceSourceNone, errors.Wrap(ctx.Err(), "resolve canceled")
		}

		r.l.Debug("Indexer balance failed, falling back to RPC",
			zap.String("chain", chain.String()),
			zap.Error(err))
	}

	value, err := r.query(ctx, chain, src.rpc, address)
	r.observe(chain, domain.BalanceSourceRpc, err)
	if err != nil {
		return 0, domain.BalanceSourceNone, errors.Wrapf(domain.ErrBalanceUnavailable, "%s balance: %v", chain, err)
	}

	return value, domain.BalanceSourceRpc, nil
}

func (r *Resolver) query(ctx context.Context, chain domain.Chain, src Source, address string) (float64, error) {
	raw, err := src.Balance(ctx, address)
	if err != nil {
		return 0, err
	}
	return ToNative(chain, raw)
}

func (r *Resolver) observe(chain domain.Chain, source domain.BalanceSource, err error) {
	if r.observer != nil {
		r.observer.ObserveSource(chain, source, err)
	}
}

// ToNative scales a smallest-unit amount by the chain's fixed decimals.
func ToNative(chain domain.Chain, raw *big.Int) (float64, error) {
	if raw == nil {
		return 0, errors.New("nil balance")
	}
	if raw.Sign() < 0 {
		return 0, errors.Errorf("negative balance %s", raw.String())
	}
	if !chain.IsValid() {
		return 0, errors.Wrapf(domain.ErrUnknownChain, "scale %q", chain)
	}

	return decimal.NewFromBigInt(raw, -chain.Decimals()).InexactFloat64(), nil
}
