// Package reconcile keeps each chain's published wallet snapshot in sync with
// its provider and balance sources.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

// ErrStopped is returned by manual actions on a stopped loop.
var ErrStopped = errors.New("reconciliation loop is stopped")

// Connector performs the provider handshake.
type Connector interface {
	IsAvailable(chain domain.Chain) bool
	Connect(ctx context.Context, chain domain.Chain) (string, error)
	Silent(ctx context.Context, chain domain.Chain) (string, error)
	Disconnect(ctx context.Context, chain domain.Chain) error
}

// Resolver resolves native balances.
type Resolver interface {
	Resolve(ctx context.Context, chain domain.Chain, address string) (float64, domain.BalanceSource, error)
}

// Converter approximates fiat values.
type Converter interface {
	ToFiat(chain domain.Chain, amount float64) *float64
}

// Publisher stores and fans out snapshots.
type Publisher interface {
	Publish(chain domain.Chain, snapshot domain.WalletSnapshot) error
}

// AttemptObserver receives connection attempts, e.g. to drive UI toasts.
type AttemptObserver interface {
	ObserveAttempt(a domain.ConnectionAttempt)
}

// Metrics counts cycles and skipped ticks.
type Metrics interface {
	ObserveCycle(chain domain.Chain, initiator domain.Initiator, outcome domain.Outcome, took time.Duration)
	ObserveSkippedTick(chain domain.Chain)
}

// Config describes a single chain loop.
type Config struct {
	Chain        domain.Chain
	NetworkLabel string
	Interval     time.Duration
}

type mode int

const (
	modeSilent mode = iota
	modeInteractive
	modeDisconnect
)

type cycleResult struct {
	outcome  domain.Outcome
	snapshot *domain.WalletSnapshot
	err      error
	// publish is false when the prior snapshot must be retained.
	publish bool
}

// Loop runs the Idle → Probing → Connected | Disconnected cycle for one chain.
//
// Manual actions are serialized per loop and take precedence over the timer:
// a tick that fires while a manual action runs is skipped, and a scheduled
// cycle that was already in flight has its result discarded.
//
// Snapshots are published in the order their cycles completed, with no loop
// lock held, so subscribers may call Connect, Refresh, Disconnect or Tick.
// A call made from a subscriber callback returns before its own snapshot is
// delivered; the drain already running delivers it next.
type Loop struct {
	chain    domain.Chain
	network  string
	interval time.Duration

	connector Connector
	resolver  Resolver
	converter Converter
	publisher Publisher
	observer  AttemptObserver
	metrics   Metrics
	l         *zap.Logger
	now       func() time.Time

	// manualMu serializes manual actions.
	manualMu sync.Mutex

	// mu guards the fields below.
	mu           sync.Mutex
	idle         *sync.Cond
	generation   uint64
	manualActive int
	closed       bool
	started      bool
	cancel       context.CancelFunc
	done         chan struct{}

	// queue holds claimed snapshots until drain publishes them.
	queue    []domain.WalletSnapshot
	draining bool

	// lastScheduled is touched only by scheduled cycles, which never overlap.
	lastScheduled domain.Outcome
}

// Option configures a Loop.
type Option func(*Loop)

// WithAttemptObserver sets the observer notified about connection attempts.
func WithAttemptObserver(o AttemptObserver) Option {
	return func(l *Loop) {
		l.observer = o
	}
}

// WithMetrics sets the cycle metrics sink.
func WithMetrics(m Metrics) Option {
	return func(l *Loop) {
		l.metrics = m
	}
}

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		l.now = now
	}
}

// NewLoop creates a loop for one chain. It does not start the timer.
func NewLoop(
	cfg Config,
	connector Connector,
	resolver Resolver,
	converter Converter,
	publisher Publisher,
	l *zap.Logger,
	opts ...Option,
) (*Loop, error) {
	if !cfg.Chain.IsValid() {
		return nil, errors.Wrapf(domain.ErrUnknownChain, "loop for %q", cfg.Chain)
	}
	if cfg.Interval <= 0 {
		return nil, errors.Errorf("invalid poll interval %s for %s", cfg.Interval, cfg.Chain)
	}
	if connector == nil || resolver == nil || publisher == nil {
		return nil, errors.Errorf("connector, resolver and publisher are required for %s", cfg.Chain)
	}
	if cfg.NetworkLabel == "" {
		cfg.NetworkLabel = cfg.Chain.DefaultNetworkLabel()
	}
	if l == nil {
		l = zap.NewNop()
	}

	loop := &Loop{
		chain:     cfg.Chain,
		network:   cfg.NetworkLabel,
		interval:  cfg.Interval,
		connector: connector,
		resolver:  resolver,
		converter: converter,
		publisher: publisher,
		l:         l.With(zap.String("chain", cfg.Chain.String())),
		now:       time.Now,
	}
	loop.idle = sync.NewCond(&loop.mu)
	for _, opt := range opts {
		opt(loop)
	}

	return loop, nil
}

// Chain returns the loop's chain.
func (l *Loop) Chain() domain.Chain {
	return l.chain
}

// Start runs a cycle immediately and then on every interval, until Stop or ctx is done.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started || l.closed {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	l.started = true
	l.cancel = cancel
	l.done = make(chan struct{})
	l.mu.Unlock()

	go l.run(ctx)
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	l.l.Info("Starting reconciliation loop", zap.Duration("poll_interval", l.interval))

	l.Tick(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.l.Info("Context done, stopping reconciliation loop")
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Stop cancels the timer and any in-flight scheduled cycle. After Stop returns
// the loop never publishes again. Stop must not be called from a subscriber.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.closed = true
	for l.draining {
		l.idle.Wait()
	}
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Tick runs one scheduled cycle. It returns false when the cycle was skipped
// because a manual action is in progress or the loop is stopped.
// A scheduled cycle never shows a permission prompt.
func (l *Loop) Tick(ctx context.Context) (domain.ConnectionAttempt, bool) {
	l.mu.Lock()
	if l.closed || l.manualActive > 0 {
		closed := l.closed
		l.mu.Unlock()
		if !closed {
			l.l.Debug("Manual action in progress, skipping scheduled tick")
			if l.metrics != nil {
				l.metrics.ObserveSkippedTick(l.chain)
			}
		}
		return domain.ConnectionAttempt{}, false
	}
	gen := l.generation
	l.mu.Unlock()

	started := time.Now()
	res := l.evaluate(ctx, modeSilent)

	published, ok := l.claim(res, func() bool {
		return l.generation == gen && l.manualActive == 0
	})
	l.drain()
	if !ok {
		l.l.Debug("Discarding superseded scheduled cycle", zap.String("outcome", string(res.outcome)))
		return domain.ConnectionAttempt{}, false
	}

	attempt := l.attempt(domain.InitiatorScheduled, res, published)
	l.observe(attempt, time.Since(started))

	switch res.outcome {
	case domain.OutcomeSuccess, domain.OutcomeDisconnected:
		l.l.Debug("Scheduled cycle done", zap.String("outcome", string(res.outcome)))
	default:
		l.l.Warn("Scheduled cycle failed",
			zap.String("outcome", string(res.outcome)),
			zap.Error(res.err))
	}

	// repeated identical outcomes are not reported to the UI
	if l.observer != nil && res.outcome != l.lastScheduled {
		l.observer.ObserveAttempt(attempt)
	}
	l.lastScheduled = res.outcome

	return attempt, true
}

// Connect runs an interactive connect and publishes the resolved snapshot.
func (l *Loop) Connect(ctx context.Context) (domain.ConnectionAttempt, error) {
	return l.manual(ctx, modeInteractive)
}

// Refresh re-reads the authorized account and balance without prompting.
func (l *Loop) Refresh(ctx context.Context) (domain.ConnectionAttempt, error) {
	return l.manual(ctx, modeSilent)
}

// Disconnect asks the provider to disconnect and always publishes a cleared
// snapshot, even when the provider call fails.
func (l *Loop) Disconnect(ctx context.Context) (domain.ConnectionAttempt, error) {
	return l.manual(ctx, modeDisconnect)
}

func (l *Loop) manual(ctx context.Context, m mode) (domain.ConnectionAttempt, error) {
	started := time.Now()
	res, published, ok := l.runManual(ctx, m)
	// the manual lock is released here, subscribers may start another action
	l.drain()
	if !ok {
		return domain.ConnectionAttempt{}, ErrStopped
	}

	attempt := l.attempt(domain.InitiatorManual, res, published)
	l.observe(attempt, time.Since(started))
	if l.observer != nil {
		l.observer.ObserveAttempt(attempt)
	}

	if res.err != nil {
		l.l.Info("Manual action failed",
			zap.String("outcome", string(res.outcome)),
			zap.Error(res.err))
	}

	if m == modeDisconnect {
		// provider errors on disconnect are informational only
		return attempt, nil
	}
	return attempt, res.err
}

func (l *Loop) runManual(ctx context.Context, m mode) (cycleResult, bool, bool) {
	l.manualMu.Lock()
	defer l.manualMu.Unlock()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return cycleResult{}, false, false
	}
	l.manualActive++
	l.generation++
	gen := l.generation
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.manualActive--
		l.mu.Unlock()
	}()

	res := l.evaluate(ctx, m)
	published, ok := l.claim(res, func() bool { return l.generation == gen })

	return res, published, ok
}

// claim queues the result's snapshot when the loop is open and current() still
// holds. ok is false when the result was discarded; published reports whether
// a snapshot was queued.
func (l *Loop) claim(res cycleResult, current func() bool) (published, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || !current() {
		return false, false
	}
	if !res.publish || res.snapshot == nil {
		return false, true
	}
	if err := res.snapshot.Validate(); err != nil {
		l.l.Error("Refusing to publish invalid snapshot", zap.Error(err))
		return false, true
	}
	l.queue = append(l.queue, *res.snapshot)

	return true, true
}

// drain publishes queued snapshots in claim order with no lock held. When a
// drain is already running it returns at once and that drain delivers the rest.
func (l *Loop) drain() {
	l.mu.Lock()
	if l.draining {
		l.mu.Unlock()
		return
	}
	l.draining = true
	defer func() {
		l.mu.Lock()
		l.draining = false
		l.idle.Broadcast()
		l.mu.Unlock()
	}()

	for len(l.queue) > 0 && !l.closed {
		snapshot := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		if err := l.publisher.Publish(l.chain, snapshot); err != nil {
			l.l.Error("Failed to publish snapshot", zap.Error(err))
		}

		l.mu.Lock()
	}
	if l.closed {
		l.queue = nil
	}
	l.mu.Unlock()
}

func (l *Loop) evaluate(ctx context.Context, m mode) cycleResult {
	switch m {
	case modeDisconnect:
		err := l.connector.Disconnect(ctx, l.chain)
		return l.cleared(domain.OutcomeDisconnected, err)
	case modeInteractive:
		address, err := l.connector.Connect(ctx, l.chain)
		if err != nil {
			if errors.Is(err, domain.ErrProviderAbsent) {
				return l.cleared(domain.OutcomeProviderAbsent, err)
			}
			return cycleResult{outcome: domain.OutcomeFromError(err), err: err}
		}
		return l.resolve(ctx, address)
	default:
		if !l.connector.IsAvailable(l.chain) {
			return l.cleared(domain.OutcomeProviderAbsent,
				errors.Wrapf(domain.ErrProviderAbsent, "%s wallet", l.chain.WalletName()))
		}
		address, err := l.connector.Silent(ctx, l.chain)
		if err != nil {
			if ctx.Err() != nil {
				return cycleResult{outcome: domain.OutcomeNetworkError, err: err}
			}
			return l.cleared(domain.OutcomeFromError(err), err)
		}
		if address == "" {
			return l.cleared(domain.OutcomeDisconnected, nil)
		}
		return l.resolve(ctx, address)
	}
}

func (l *Loop) resolve(ctx context.Context, address string) cycleResult {
	native, source, err := l.resolver.Resolve(ctx, l.chain, address)
	if err != nil {
		if ctx.Err() != nil {
			return cycleResult{outcome: domain.OutcomeNetworkError, err: err}
		}
		// keep the last good snapshot on a transient failure
		return cycleResult{outcome: domain.OutcomeBalanceUnavailable, err: err}
	}

	var usd *float64
	if l.converter != nil {
		usd = l.converter.ToFiat(l.chain, native)
	}

	snapshot, err := domain.NewConnectedSnapshot(l.chain, address, native, usd, l.network, source, l.now())
	if err != nil {
		return cycleResult{outcome: domain.OutcomeNetworkError, err: errors.Wrap(err, "build snapshot")}
	}

	return cycleResult{outcome: domain.OutcomeSuccess, snapshot: &snapshot, publish: true}
}

func (l *Loop) cleared(outcome domain.Outcome, err error) cycleResult {
	snapshot := domain.NewDisconnectedSnapshot(l.chain, l.network, l.now())
	return cycleResult{outcome: outcome, snapshot: &snapshot, err: err, publish: true}
}

func (l *Loop) attempt(initiator domain.Initiator, res cycleResult, published bool) domain.ConnectionAttempt {
	a := domain.NewConnectionAttempt(l.chain, initiator, res.outcome, l.now())
	if published && res.snapshot != nil {
		s := *res.snapshot
		a.Snapshot = &s
	}
	if res.outcome == domain.OutcomeProviderAbsent {
		a.InstallURL = l.chain.InstallURL()
	}
	if res.err != nil {
		a.Error = res.err.Error()
	}
	return a
}

func (l *Loop) observe(a domain.ConnectionAttempt, took time.Duration) {
	if l.metrics != nil {
		l.metrics.ObserveCycle(l.chain, a.Initiator, a.Outcome, took)
	}
}
