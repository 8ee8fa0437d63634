package reconcile

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/connector"
	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/events"
	"github.com/vadiminshakov/walletsync/internal/provider"
	"github.com/vadiminshakov/walletsync/internal/services/balance"
	"github.com/vadiminshakov/walletsync/internal/services/pricer"
	balanceMock "github.com/vadiminshakov/walletsync/mocks/balance"
	providerMock "github.com/vadiminshakov/walletsync/mocks/provider"
)

const (
	solAddress = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	ethAddress = "0x742d35cc6634c0532925a3b844bc454e4438f44e"
)

type recordingInstalls struct {
	urls []string
}

func (r *recordingInstalls) PromptInstall(_ domain.Chain, url string) {
	r.urls = append(r.urls, url)
}

type recordingAttempts struct {
	mu       sync.Mutex
	attempts []domain.ConnectionAttempt
}

func (r *recordingAttempts) ObserveAttempt(a domain.ConnectionAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
}

func (r *recordingAttempts) outcomes() []domain.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Outcome, 0, len(r.attempts))
	for _, a := range r.attempts {
		out = append(out, a.Outcome)
	}
	return out
}

type harness struct {
	loop      *Loop
	publisher *events.Publisher
	provider  *providerMock.ChainProvider
	indexer   *balanceMock.Source
	rpc       *balanceMock.Source
	installs  *recordingInstalls
	attempts  *recordingAttempts
}

func newHarness(t *testing.T, chain domain.Chain) *harness {
	t.Helper()

	h := &harness{
		publisher: events.NewPublisher(zap.NewNop()),
		provider:  providerMock.NewChainProvider(t),
		indexer:   balanceMock.NewSource(t),
		rpc:       balanceMock.NewSource(t),
		installs:  &recordingInstalls{},
		attempts:  &recordingAttempts{},
	}
	h.provider.On("Chain").Return(chain)

	resolver := balance.NewResolver(zap.NewNop())
	require.NoError(t, resolver.Register(chain, h.indexer, h.rpc))

	prices := pricer.NewTable(time.Minute)
	prices.SetStatic(domain.ChainSolana, decimal.NewFromInt(150))

	conn := connector.New(provider.NewProbe(h.provider), h.installs, zap.NewNop())
	loop, err := NewLoop(Config{Chain: chain, Interval: time.Hour}, conn, resolver,
		pricer.NewConverter(prices), h.publisher, zap.NewNop(), WithAttemptObserver(h.attempts))
	require.NoError(t, err)
	h.loop = loop

	return h
}

func lamports(n int64) *big.Int { return big.NewInt(n) }

func TestLoop_TickPublishesConnectedSnapshot(t *testing.T) {
	h := newHarness(t, domain.ChainSolana)
	h.provider.On("IsPresent").Return(true)
	h.provider.On("Accounts", mock.Anything).Return([]string{solAddress}, nil)
	h.indexer.On("Balance", mock.Anything, solAddress).Return(lamports(2_000_000_000), nil)

	attempt, ran := h.loop.Tick(context.Background())
	require.True(t, ran)
	assert.Equal(t, domain.OutcomeSuccess, attempt.Outcome)
	assert.Equal(t, domain.InitiatorScheduled, attempt.Initiator)

	cur := h.publisher.Current(domain.ChainSolana)
	assert.True(t, cur.Connected)
	assert.Equal(t, solAddress, cur.Address)
	assert.Equal(t, 2.0, cur.BalanceNative)
	assert.Equal(t, domain.BalanceSourceIndexer, cur.Source)
	require.NotNil(t, cur.BalanceUSD)
	assert.Equal(t, 300.0, *cur.BalanceUSD)
	assert.Equal(t, "solana-mainnet", cur.NetworkLabel)
}

func TestLoop_TickNeverPrompts(t *testing.T) {
	h := newHarness(t, domain.ChainSolana)
	h.provider.On("IsPresent").Return(true)
	h.provider.On("Accounts", mock.Anything).Return(nil, nil)

	attempt, ran := h.loop.Tick(context.Background())
	require.True(t, ran)
	assert.Equal(t, domain.OutcomeDisconnected, attempt.Outcome)
	assert.False(t, h.publisher.Current(domain.ChainSolana).Connected)
	assert.True(t, h.publisher.Has(domain.ChainSolana))

	h.provider.AssertNotCalled(t, "RequestAccounts", mock.Anything)
}

func TestLoop_TickSilentFailureDisconnects(t *testing.T) {
	h := newHarness(t, domain.ChainSolana)
	h.provider.On("IsPresent").Return(true)
	h.provider.On("Accounts", mock.Anything).Return(nil, errors.New("bridge gone"))

	attempt, ran := h.loop.Tick(context.Background())
	require.True(t, ran)
	assert.Equal(t, domain.OutcomeNetworkError, attempt.Outcome)
	assert.False(t, h.publisher.Current(domain.ChainSolana).Connected)
	h.provider.AssertNotCalled(t, "RequestAccounts", mock.Anything)
}

func TestLoop_TickProviderAbsent(t *testing.T) {
	h := newHarness(t, domain.ChainEthereum)
	h.provider.On("IsPresent").Return(false)

	attempt, ran := h.loop.Tick(context.Background())
	require.True(t, ran)
	assert.Equal(t, domain.OutcomeProviderAbsent, attempt.Outcome)
	assert.Equal(t, "https://metamask.io/download/", attempt.InstallURL)
	assert.False(t, h.publisher.Current(domain.ChainEthereum).Connected)
	// scheduled cycles do not pop the install link
	assert.Empty(t, h.installs.urls)
}

func TestLoop_ConnectWithoutProviderMakesNoNetworkCalls(t *testing.T) {
	h := newHarness(t, domain.ChainEthereum)
	h.provider.On("IsPresent").Return(false)

	attempt, err := h.loop.Connect(context.Background())
	require.ErrorIs(t, err, domain.ErrProviderAbsent)
	assert.Equal(t, domain.OutcomeProviderAbsent, attempt.Outcome)
	assert.Equal(t, []string{"https://metamask.io/download/"}, h.installs.urls)
	assert.False(t, h.loop.connector.IsAvailable(domain.ChainEthereum))

	h.indexer.AssertNotCalled(t, "Balance", mock.Anything, mock.Anything)
	h.rpc.AssertNotCalled(t, "Balance", mock.Anything, mock.Anything)
}

func TestLoop_ConnectRejected(t *testing.T) {
	h := newHarness(t, domain.ChainEthereum)
	h.provider.On("IsPresent").Return(true)
	h.provider.On("Accounts", mock.Anything).Return(nil, nil)
	h.provider.On("RequestAccounts", mock.Anything).
		Return(nil, errors.Wrap(domain.ErrProviderRejected, "user rejected the request"))

	attempt, err := h.loop.Connect(context.Background())
	require.ErrorIs(t, err, domain.ErrProviderRejected)
	assert.Equal(t, domain.OutcomeProviderRejected, attempt.Outcome)
	assert.Nil(t, attempt.Snapshot)
	assert.False(t, h.publisher.Has(domain.ChainEthereum))
	assert.Equal(t, []domain.Outcome{domain.OutcomeProviderRejected}, h.attempts.outcomes())
}

func TestLoop_ConnectFallsBackToRPC(t *testing.T) {
	h := newHarness(t, domain.ChainEthereum)
	h.provider.On("IsPresent").Return(true)
	h.provider.On("Accounts", mock.Anything).Return(nil, nil)
	h.provider.On("RequestAccounts", mock.Anything).Return([]string{ethAddress}, nil)

	normalized, err := domain.NormalizeAddress(domain.ChainEthereum, ethAddress)
	require.NoError(t, err)

	wei, ok := new(big.Int).SetString("1500000000000000000", 10)
	require.True(t, ok)
	h.indexer.On("Balance", mock.Anything, normalized).Return(nil, domain.ErrIndexerUnavailable)
	h.rpc.On("Balance", mock.Anything, normalized).Return(wei, nil)

	attempt, err := h.loop.Connect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, attempt.Snapshot)
	assert.Equal(t, 1.5, attempt.Snapshot.BalanceNative)
	assert.Equal(t, domain.BalanceSourceRpc, attempt.Snapshot.Source)
	// no ETH price configured
	assert.Nil(t, attempt.Snapshot.BalanceUSD)

	cur := h.publisher.Current(domain.ChainEthereum)
	assert.True(t, cur.Connected)
	assert.Equal(t, normalized, cur.Address)
}

func TestLoop_ConnectBalanceUnavailableRetainsPrior(t *testing.T) {
	h := newHarness(t, domain.ChainSolana)
	h.provider.On("IsPresent").Return(true)
	h.provider.On("Accounts", mock.Anything).Return([]string{solAddress}, nil)
	h.indexer.On("Balance", mock.Anything, solAddress).Return(lamports(1_000_000_000), nil).Once()
	h.indexer.On("Balance", mock.Anything, solAddress).Return(nil, errors.New("timeout"))
	h.rpc.On("Balance", mock.Anything, solAddress).Return(nil, domain.ErrRpcUnavailable)

	_, ran := h.loop.Tick(context.Background())
	require.True(t, ran)

	attempt, err := h.loop.Connect(context.Background())
	require.ErrorIs(t, err, domain.ErrBalanceUnavailable)
	assert.Equal(t, domain.OutcomeBalanceUnavailable, attempt.Outcome)

	cur := h.publisher.Current(domain.ChainSolana)
	assert.True(t, cur.Connected)
	assert.Equal(t, 1.0, cur.BalanceNative)
	// the tick already holds permission, so connect does not prompt again
	h.provider.AssertNotCalled(t, "RequestAccounts", mock.Anything)
}

func TestLoop_DisconnectAlwaysClears(t *testing.T) {
	h := newHarness(t, domain.ChainSolana)
	h.provider.On("IsPresent").Return(true)
	h.provider.On("Accounts", mock.Anything).Return(nil, nil)
	h.provider.On("RequestAccounts", mock.Anything).Return([]string{solAddress}, nil)
	h.provider.On("Disconnect", mock.Anything).Return(errors.New("provider threw"))
	h.indexer.On("Balance", mock.Anything, solAddress).Return(lamports(5), nil)

	_, err := h.loop.Connect(context.Background())
	require.NoError(t, err)
	require.True(t, h.publisher.Current(domain.ChainSolana).Connected)

	attempt, err := h.loop.Disconnect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDisconnected, attempt.Outcome)
	assert.Contains(t, attempt.Error, "provider threw")

	cur := h.publisher.Current(domain.ChainSolana)
	assert.False(t, cur.Connected)
	assert.Empty(t, cur.Address)
	assert.Zero(t, cur.BalanceNative)
}

func TestLoop_TwoFailedCyclesThenRecover(t *testing.T) {
	h := newHarness(t, domain.ChainSolana)
	h.provider.On("IsPresent").Return(true)
	h.provider.On("Accounts", mock.Anything).Return([]string{solAddress}, nil)

	h.indexer.On("Balance", mock.Anything, solAddress).Return(lamports(3_000_000_000), nil).Once()
	h.indexer.On("Balance", mock.Anything, solAddress).Return(nil, domain.ErrIndexerUnavailable).Times(3)
	h.rpc.On("Balance", mock.Anything, solAddress).Return(nil, domain.ErrRpcUnavailable).Twice()
	h.rpc.On("Balance", mock.Anything, solAddress).Return(lamports(4_000_000_000), nil).Once()

	_, ran := h.loop.Tick(context.Background())
	require.True(t, ran)
	initial := h.publisher.Current(domain.ChainSolana)
	require.True(t, initial.Connected)

	for i := 0; i < 2; i++ {
		attempt, ran := h.loop.Tick(context.Background())
		require.True(t, ran)
		assert.Equal(t, domain.OutcomeBalanceUnavailable, attempt.Outcome)

		cur := h.publisher.Current(domain.ChainSolana)
		assert.True(t, cur.Connected, "cycle %d", i)
		assert.Equal(t, 3.0, cur.BalanceNative, "cycle %d", i)
		assert.Equal(t, initial.UpdatedAt, cur.UpdatedAt, "prior snapshot retained")
	}

	attempt, ran := h.loop.Tick(context.Background())
	require.True(t, ran)
	assert.Equal(t, domain.OutcomeSuccess, attempt.Outcome)

	cur := h.publisher.Current(domain.ChainSolana)
	assert.Equal(t, 4.0, cur.BalanceNative)
	assert.Equal(t, domain.BalanceSourceRpc, cur.Source)

	// success, unavailable, success: the repeated failure is reported once
	assert.Equal(t, []domain.Outcome{
		domain.OutcomeSuccess,
		domain.OutcomeBalanceUnavailable,
		domain.OutcomeSuccess,
	}, h.attempts.outcomes())
}

// blockingProvider holds RequestAccounts or Accounts until released.
// Accounts is empty until a prompt grants access, unless blockAll is set.
type blockingProvider struct {
	chain   domain.Chain
	entered chan struct{}
	release chan struct{}

	mu       sync.Mutex
	prompts  int
	silent   int
	granted  bool
	blockAll bool
}

func newBlockingProvider(chain domain.Chain) *blockingProvider {
	return &blockingProvider{
		chain:   chain,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (p *blockingProvider) Chain() domain.Chain { return p.chain }
func (p *blockingProvider) IsPresent() bool     { return true }

func (p *blockingProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	p.prompts++
	p.mu.Unlock()

	p.entered <- struct{}{}
	<-p.release

	p.mu.Lock()
	p.granted = true
	p.mu.Unlock()
	return []string{solAddress}, nil
}

func (p *blockingProvider) Accounts(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	p.silent++
	block, granted := p.blockAll, p.granted
	p.mu.Unlock()

	if block {
		p.entered <- struct{}{}
		<-p.release
		return []string{solAddress}, nil
	}
	if !granted {
		return nil, nil
	}
	return []string{solAddress}, nil
}

func (p *blockingProvider) Disconnect(ctx context.Context) error { return nil }

func (p *blockingProvider) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts, p.silent
}

type fixedResolver struct {
	value float64
}

func (r fixedResolver) Resolve(context.Context, domain.Chain, string) (float64, domain.BalanceSource, error) {
	return r.value, domain.BalanceSourceIndexer, nil
}

type skipCounter struct {
	mu      sync.Mutex
	skipped int
}

func (s *skipCounter) ObserveCycle(domain.Chain, domain.Initiator, domain.Outcome, time.Duration) {}
func (s *skipCounter) ObserveSkippedTick(domain.Chain) {
	s.mu.Lock()
	s.skipped++
	s.mu.Unlock()
}

func TestLoop_ManualConnectSkipsConcurrentTick(t *testing.T) {
	bp := newBlockingProvider(domain.ChainSolana)
	pub := events.NewPublisher(zap.NewNop())
	skips := &skipCounter{}
	conn := connector.New(provider.NewProbe(bp), nil, zap.NewNop())

	loop, err := NewLoop(Config{Chain: domain.ChainSolana, Interval: time.Hour}, conn, fixedResolver{value: 1},
		nil, pub, zap.NewNop(), WithMetrics(skips))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := loop.Connect(context.Background())
		done <- err
	}()

	<-bp.entered // the prompt is on screen

	_, ran := loop.Tick(context.Background())
	assert.False(t, ran, "tick must yield to the manual action")

	close(bp.release)
	require.NoError(t, <-done)

	prompts, silent := bp.counts()
	assert.Equal(t, 1, prompts, "exactly one interactive prompt")
	assert.Equal(t, 1, silent, "only the permission check before the prompt")
	assert.Equal(t, 1, skips.skipped)
	assert.True(t, pub.Current(domain.ChainSolana).Connected)

	// after the manual action finishes, ticks run again
	_, ran = loop.Tick(context.Background())
	assert.True(t, ran)

	// a second connect reuses the granted permission
	_, err = loop.Connect(context.Background())
	require.NoError(t, err)
	prompts, _ = bp.counts()
	assert.Equal(t, 1, prompts)
}

func TestLoop_InFlightTickDiscardedByManualAction(t *testing.T) {
	bp := newBlockingProvider(domain.ChainSolana)
	bp.blockAll = true
	pub := events.NewPublisher(zap.NewNop())
	conn := connector.New(provider.NewProbe(bp), nil, zap.NewNop())

	loop, err := NewLoop(Config{Chain: domain.ChainSolana, Interval: time.Hour}, conn, fixedResolver{value: 7},
		nil, pub, zap.NewNop())
	require.NoError(t, err)

	ticked := make(chan bool, 1)
	go func() {
		_, ran := loop.Tick(context.Background())
		ticked <- ran
	}()
	<-bp.entered

	_, err = loop.Disconnect(context.Background())
	require.NoError(t, err)
	require.False(t, pub.Current(domain.ChainSolana).Connected)

	close(bp.release)
	assert.False(t, <-ticked, "superseded scheduled result is discarded")
	assert.False(t, pub.Current(domain.ChainSolana).Connected)
}

func TestLoop_StopDiscardsLateResult(t *testing.T) {
	bp := newBlockingProvider(domain.ChainSolana)
	bp.blockAll = true
	pub := events.NewPublisher(zap.NewNop())
	conn := connector.New(provider.NewProbe(bp), nil, zap.NewNop())

	loop, err := NewLoop(Config{Chain: domain.ChainSolana, Interval: time.Hour}, conn, fixedResolver{value: 7},
		nil, pub, zap.NewNop())
	require.NoError(t, err)

	loop.Start(context.Background())
	<-bp.entered // first cycle is in flight

	stopped := make(chan struct{})
	go func() {
		loop.Stop()
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		loop.mu.Lock()
		defer loop.mu.Unlock()
		return loop.closed
	}, time.Second, time.Millisecond)

	// provider answers after the view was torn down
	close(bp.release)
	<-stopped

	assert.False(t, pub.Has(domain.ChainSolana), "no publish after Stop")

	_, err = loop.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestLoop_StartRunsImmediateCycle(t *testing.T) {
	h := newHarness(t, domain.ChainSolana)
	h.provider.On("IsPresent").Return(true)
	h.provider.On("Accounts", mock.Anything).Return([]string{solAddress}, nil)
	h.indexer.On("Balance", mock.Anything, solAddress).Return(lamports(1), nil)

	h.loop.Start(context.Background())
	defer h.loop.Stop()

	require.Eventually(t, func() bool {
		return h.publisher.Current(domain.ChainSolana).Connected
	}, time.Second, 5*time.Millisecond)
}

func TestLoop_RefreshNeverPrompts(t *testing.T) {
	h := newHarness(t, domain.ChainSolana)
	h.provider.On("IsPresent").Return(true)
	h.provider.On("Accounts", mock.Anything).Return([]string{solAddress}, nil)
	h.indexer.On("Balance", mock.Anything, solAddress).Return(lamports(2_500_000_000), nil)

	attempt, err := h.loop.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.InitiatorManual, attempt.Initiator)
	assert.Equal(t, 2.5, h.publisher.Current(domain.ChainSolana).BalanceNative)
	h.provider.AssertNotCalled(t, "RequestAccounts", mock.Anything)
}

func TestLoop_SubscriberMayRefreshFromCallback(t *testing.T) {
	h := newHarness(t, domain.ChainSolana)
	h.provider.On("IsPresent").Return(true)
	h.provider.On("Accounts", mock.Anything).Return([]string{solAddress}, nil)
	h.indexer.On("Balance", mock.Anything, solAddress).Return(lamports(1_000_000_000), nil).Once()
	h.indexer.On("Balance", mock.Anything, solAddress).Return(lamports(2_000_000_000), nil)

	var (
		mu       sync.Mutex
		seen     []float64
		innerErr error
	)
	h.publisher.Subscribe(domain.ChainSolana, func(s domain.WalletSnapshot) {
		mu.Lock()
		seen = append(seen, s.BalanceNative)
		first := len(seen) == 1
		mu.Unlock()
		if first {
			_, err := h.loop.Refresh(context.Background())
			mu.Lock()
			innerErr = err
			mu.Unlock()
		}
	})

	done := make(chan struct{})
	go func() {
		h.loop.Tick(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick did not return while a subscriber refreshed")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NoError(t, innerErr)
	assert.Equal(t, []float64{1, 2}, seen, "snapshots delivered in completion order")
	assert.Equal(t, 2.0, h.publisher.Current(domain.ChainSolana).BalanceNative)
}

func TestLoop_SubscriberMayDisconnectDuringConnect(t *testing.T) {
	h := newHarness(t, domain.ChainSolana)
	h.provider.On("IsPresent").Return(true)
	h.provider.On("Accounts", mock.Anything).Return([]string{solAddress}, nil)
	h.provider.On("Disconnect", mock.Anything).Return(nil)
	h.indexer.On("Balance", mock.Anything, solAddress).Return(lamports(5), nil)

	var once sync.Once
	h.publisher.Subscribe(domain.ChainSolana, func(s domain.WalletSnapshot) {
		if s.Connected {
			once.Do(func() {
				_, _ = h.loop.Disconnect(context.Background())
			})
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := h.loop.Connect(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("connect did not return while a subscriber disconnected")
	}

	assert.False(t, h.publisher.Current(domain.ChainSolana).Connected)
	h.loop.Stop()
}

func TestLoop_TimestampsComeFromClock(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	prov := providerMock.NewChainProvider(t)
	prov.On("Chain").Return(domain.ChainSolana)
	prov.On("IsPresent").Return(true)
	prov.On("Accounts", mock.Anything).Return([]string{solAddress}, nil)

	pub := events.NewPublisher(zap.NewNop())
	conn := connector.New(provider.NewProbe(prov), nil, zap.NewNop())
	loop, err := NewLoop(Config{Chain: domain.ChainSolana, Interval: time.Hour}, conn, fixedResolver{value: 1},
		nil, pub, zap.NewNop(), WithClock(func() time.Time { return at }))
	require.NoError(t, err)

	attempt, ran := loop.Tick(context.Background())
	require.True(t, ran)
	assert.Equal(t, at, attempt.At)
	require.NotNil(t, attempt.Snapshot)
	assert.Equal(t, at, attempt.Snapshot.UpdatedAt)
	assert.Equal(t, at, pub.Current(domain.ChainSolana).UpdatedAt)
}

func TestNewLoop_Validation(t *testing.T) {
	pub := events.NewPublisher(zap.NewNop())
	conn := connector.New(provider.NewProbe(), nil, zap.NewNop())

	_, err := NewLoop(Config{Chain: "bitcoin", Interval: time.Second}, conn, fixedResolver{}, nil, pub, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownChain)

	_, err = NewLoop(Config{Chain: domain.ChainSolana}, conn, fixedResolver{}, nil, pub, nil)
	assert.Error(t, err)

	_, err = NewLoop(Config{Chain: domain.ChainSolana, Interval: time.Second}, nil, fixedResolver{}, nil, pub, nil)
	assert.Error(t, err)
}
