// Package wallet exposes the wallet engine to UI consumers.
package wallet

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/events"
	"github.com/vadiminshakov/walletsync/internal/reconcile"
)

// Service owns one reconciliation loop per chain and the snapshot publisher.
type Service struct {
	publisher *events.Publisher
	loops     map[domain.Chain]*reconcile.Loop
	chains    []domain.Chain
	l         *zap.Logger
}

// New creates a service over the given loops. Every loop must publish into publisher.
func New(publisher *events.Publisher, loops []*reconcile.Loop, l *zap.Logger) (*Service, error) {
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if l == nil {
		l = zap.NewNop()
	}

	s := &Service{
		publisher: publisher,
		loops:     make(map[domain.Chain]*reconcile.Loop, len(loops)),
		l:         l,
	}
	for _, loop := range loops {
		if _, dup := s.loops[loop.Chain()]; dup {
			return nil, errors.Errorf("duplicate loop for %s", loop.Chain())
		}
		s.loops[loop.Chain()] = loop
	}
	// keep a stable display order
	for _, chain := range domain.AllChains() {
		if _, ok := s.loops[chain]; ok {
			s.chains = append(s.chains, chain)
		}
	}

	return s, nil
}

// Chains returns the enabled chains in display order.
func (s *Service) Chains() []domain.Chain {
	return append([]domain.Chain(nil), s.chains...)
}

// Start launches every chain's loop. Loops run independently.
func (s *Service) Start(ctx context.Context) {
	for _, chain := range s.chains {
		s.loops[chain].Start(ctx)
	}
	s.l.Info("Wallet service started", zap.Int("chains", len(s.chains)))
}

// Close stops all loops. No snapshot is published after Close returns.
func (s *Service) Close() {
	for _, chain := range s.chains {
		s.loops[chain].Stop()
	}
	s.l.Info("Wallet service stopped")
}

// Subscribe registers fn for the chain's snapshots. The returned func unsubscribes.
func (s *Service) Subscribe(chain domain.Chain, fn events.SnapshotFunc) func() {
	return s.publisher.Subscribe(chain, fn)
}

// Stream delivers snapshots of every chain on a buffered channel. Slow readers
// miss intermediate values. The returned func closes the channel.
func (s *Service) Stream(buffer int) (<-chan domain.WalletSnapshot, func()) {
	return s.publisher.Stream(buffer)
}

// Synced reports whether the chain has published at least one snapshot.
func (s *Service) Synced(chain domain.Chain) bool {
	return s.publisher.Has(chain)
}

// Connect runs an interactive connect for the chain.
func (s *Service) Connect(ctx context.Context, chain domain.Chain) (domain.ConnectionAttempt, error) {
	loop, err := s.loop(chain)
	if err != nil {
		return domain.ConnectionAttempt{}, err
	}
	return loop.Connect(ctx)
}

// Disconnect clears the chain's wallet. The chain ends up disconnected even
// when the provider fails to drop the session.
func (s *Service) Disconnect(ctx context.Context, chain domain.Chain) (domain.ConnectionAttempt, error) {
	loop, err := s.loop(chain)
	if err != nil {
		return domain.ConnectionAttempt{}, err
	}
	return loop.Disconnect(ctx)
}

// Refresh re-reads the chain's balance without prompting.
func (s *Service) Refresh(ctx context.Context, chain domain.Chain) (domain.ConnectionAttempt, error) {
	loop, err := s.loop(chain)
	if err != nil {
		return domain.ConnectionAttempt{}, err
	}
	return loop.Refresh(ctx)
}

// Current returns the latest snapshot of the chain.
func (s *Service) Current(chain domain.Chain) domain.WalletSnapshot {
	return s.publisher.Current(chain)
}

// Portfolio returns the latest snapshot of every enabled chain with the fiat total.
func (s *Service) Portfolio() domain.Portfolio {
	snapshots := make([]domain.WalletSnapshot, 0, len(s.chains))
	for _, chain := range s.chains {
		snapshots = append(snapshots, s.publisher.Current(chain))
	}
	return domain.NewPortfolio(snapshots)
}

func (s *Service) loop(chain domain.Chain) (*reconcile.Loop, error) {
	loop, ok := s.loops[chain]
	if !ok {
		return nil, errors.Wrapf(domain.ErrUnknownChain, "%q is not enabled", chain)
	}
	return loop, nil
}
