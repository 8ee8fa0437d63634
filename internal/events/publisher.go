// Package events holds the latest wallet snapshot per chain and notifies subscribers.
package events

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

// SnapshotFunc receives a published snapshot.
type SnapshotFunc func(domain.WalletSnapshot)

// Recorder appends published snapshots to a history journal.
type Recorder interface {
	Save(snapshot domain.WalletSnapshot) error
}

type subscriber struct {
	id uint64
	fn SnapshotFunc
}

// Publisher exclusively owns the last-known snapshot of every chain.
// Snapshots are replaced as whole values, so readers never see a torn write.
type Publisher struct {
	mu        sync.RWMutex
	snapshots map[domain.Chain]domain.WalletSnapshot
	subs      map[domain.Chain][]subscriber
	all       []subscriber
	nextID    uint64

	recorder Recorder
	l        *zap.Logger
}

const defaultStreamBuffer = 64

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithRecorder journals published snapshots that differ from the previous one
// of the chain. Recorder errors are only logged.
func WithRecorder(r Recorder) PublisherOption {
	return func(p *Publisher) {
		p.recorder = r
	}
}

// NewPublisher creates an empty publisher.
func NewPublisher(l *zap.Logger, opts ...PublisherOption) *Publisher {
	if l == nil {
		l = zap.NewNop()
	}
	p := &Publisher{
		snapshots: make(map[domain.Chain]domain.WalletSnapshot),
		subs:      make(map[domain.Chain][]subscriber),
		l:         l,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Current returns the latest snapshot, or a disconnected one before the first publish.
func (p *Publisher) Current(chain domain.Chain) domain.WalletSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if s, ok := p.snapshots[chain]; ok {
		return s
	}
	return domain.WalletSnapshot{Chain: chain, NetworkLabel: chain.DefaultNetworkLabel()}
}

// Has reports whether a snapshot was ever published for the chain.
func (p *Publisher) Has(chain domain.Chain) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.snapshots[chain]
	return ok
}

// Subscribe registers fn for the chain's snapshots. The returned func unsubscribes.
func (p *Publisher) Subscribe(chain domain.Chain, fn SnapshotFunc) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.subs[chain] = append(p.subs[chain], subscriber{id: id, fn: fn})

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.subs[chain] = removeSubscriber(p.subs[chain], id)
	}
}

// SubscribeAll registers fn for snapshots of every chain.
func (p *Publisher) SubscribeAll(fn SnapshotFunc) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.all = append(p.all, subscriber{id: id, fn: fn})

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.all = removeSubscriber(p.all, id)
	}
}

// Stream adapts SubscribeAll to a channel holding up to buffer snapshots.
// Values published while the buffer is full are dropped for that reader.
// The returned func unsubscribes and closes the channel.
func (p *Publisher) Stream(buffer int) (<-chan domain.WalletSnapshot, func()) {
	if buffer < 1 {
		buffer = defaultStreamBuffer
	}
	ch := make(chan domain.WalletSnapshot, buffer)

	var (
		mu     sync.Mutex
		closed bool
		once   sync.Once
	)
	unsubscribe := p.SubscribeAll(func(s domain.WalletSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- s:
		default:
			// slow reader, the next publish supersedes it
		}
	})

	return ch, func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
}

// Publish replaces the chain's snapshot and synchronously notifies its
// subscribers in registration order, then the all-chain subscribers.
// Callbacks must not call Publish for the same chain.
func (p *Publisher) Publish(chain domain.Chain, snapshot domain.WalletSnapshot) error {
	if snapshot.Chain != chain {
		return errors.Errorf("snapshot for %s published as %s", snapshot.Chain, chain)
	}
	if err := snapshot.Validate(); err != nil {
		return errors.Wrap(err, "reject snapshot")
	}

	p.mu.Lock()
	prev, had := p.snapshots[chain]
	changed := !had || !prev.Equal(snapshot)
	p.snapshots[chain] = snapshot
	subs := append([]subscriber(nil), p.subs[chain]...)
	all := append([]subscriber(nil), p.all...)
	p.mu.Unlock()

	for _, s := range subs {
		s.fn(snapshot)
	}
	for _, s := range all {
		s.fn(snapshot)
	}

	if p.recorder != nil && changed {
		if err := p.recorder.Save(snapshot); err != nil {
			p.l.Warn("failed to journal snapshot",
				zap.String("chain", chain.String()),
				zap.Error(err))
		}
	}

	return nil
}

func removeSubscriber(subs []subscriber, id uint64) []subscriber {
	out := subs[:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
