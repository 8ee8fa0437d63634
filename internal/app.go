package internal

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/walletsync/config"
	"github.com/vadiminshakov/walletsync/internal/connector"
	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/events"
	"github.com/vadiminshakov/walletsync/internal/metrics"
	"github.com/vadiminshakov/walletsync/internal/provider"
	"github.com/vadiminshakov/walletsync/internal/provider/bridge"
	"github.com/vadiminshakov/walletsync/internal/reconcile"
	"github.com/vadiminshakov/walletsync/internal/services/balance"
	"github.com/vadiminshakov/walletsync/internal/services/pricer"
	"github.com/vadiminshakov/walletsync/internal/storage/snapshots"
	"github.com/vadiminshakov/walletsync/internal/wallet"
	"github.com/vadiminshakov/walletsync/internal/web"
	"github.com/vadiminshakov/walletsync/pkg/retrier"
)

const attemptBuffer = 64

// App is a fully wired walletsync instance.
type App struct {
	conf     config.Config
	wallets  *wallet.Service
	updater  *pricer.Updater
	server   *web.Server
	hub      *bridge.Hub
	history  *snapshots.WALStore
	attempts *events.AttemptFeed
	metrics  *metrics.Collector
	closers  []func()
	l        *zap.Logger
}

// NewApp builds every component from the configuration. Nothing runs until Run.
func NewApp(ctx context.Context, conf config.Config, l *zap.Logger) (*App, error) {
	if l == nil {
		l = zap.NewNop()
	}
	a := &App{
		conf:     conf,
		attempts: events.NewAttemptFeed(attemptBuffer),
		metrics:  metrics.NewCollector(),
		l:        l,
	}

	var publisherOpts []events.PublisherOption
	if conf.HistoryDir != "" {
		store, err := snapshots.NewWALStore(conf.HistoryDir)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open snapshot history")
		}
		a.history = store
		a.closers = append(a.closers, func() { _ = store.Close() })
		publisherOpts = append(publisherOpts, events.WithRecorder(store))
	}
	publisher := events.NewPublisher(l.Named("publisher"), publisherOpts...)

	table := pricer.NewTable(conf.Price.MaxAge)
	chains := make([]domain.Chain, 0, len(conf.Chains))
	for _, cc := range conf.Chains {
		chains = append(chains, cc.Chain)
		if cc.PriceUSD.IsPositive() {
			table.SetStatic(cc.Chain, cc.PriceUSD)
		}
	}
	if err := a.initPriceUpdater(table, chains); err != nil {
		a.Close()
		return nil, err
	}

	a.hub = bridge.NewHub(conf.Bridge.RequestTimeout, nil, l.Named("bridge"))
	resolver := balance.NewResolver(l.Named("resolver"), balance.WithObserver(a.metrics))
	converter := pricer.NewConverter(table)

	providers := make([]provider.ChainProvider, 0, len(conf.Chains))
	for _, cc := range conf.Chains {
		svc, err := newChainServices(ctx, cc, a.hub)
		if err != nil {
			a.Close()
			return nil, errors.Wrapf(err, "failed to create %s services", cc.Chain)
		}
		a.closers = append(a.closers, svc.close)
		providers = append(providers, svc.provider)
		if err := resolver.Register(cc.Chain, svc.indexer, svc.rpc); err != nil {
			a.Close()
			return nil, err
		}
	}
	conn := connector.New(provider.NewProbe(providers...), a.metrics, l.Named("connector"))

	loops := make([]*reconcile.Loop, 0, len(conf.Chains))
	for _, cc := range conf.Chains {
		loop, err := reconcile.NewLoop(
			reconcile.Config{Chain: cc.Chain, NetworkLabel: cc.Network, Interval: conf.PollInterval},
			conn,
			resolver,
			converter,
			publisher,
			l.Named("reconcile"),
			reconcile.WithAttemptObserver(a.attempts),
			reconcile.WithMetrics(a.metrics),
		)
		if err != nil {
			a.Close()
			return nil, err
		}
		loops = append(loops, loop)
	}

	wallets, err := wallet.New(publisher, loops, l.Named("wallet"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.wallets = wallets

	serverOpts := []web.Option{
		web.WithAttempts(a.attempts),
		web.WithBridge(a.hub),
		web.WithMetrics(a.metrics.Handler()),
	}
	if a.history != nil {
		serverOpts = append(serverOpts, web.WithHistory(a.history))
	}
	a.server = web.NewServer(web.Config{
		Addr:           conf.Listen,
		AllowedOrigins: conf.AllowedOrigins,
		RatePerMinute:  conf.RatePerMinute,
		TLSDomain:      conf.TLSDomain,
	}, wallets, l.Named("web"), serverOpts...)

	return a, nil
}

func (a *App) initPriceUpdater(table *pricer.Table, chains []domain.Chain) error {
	client, err := newPriceClient(a.conf.Price)
	if err != nil {
		return errors.Wrap(err, "failed to create price client")
	}
	if client == nil {
		return nil
	}

	feed, err := NewPriceFeed(client)
	if err != nil {
		return err
	}

	r := retrier.New(
		retrier.WithMaxRetries(2),
		retrier.WithOnRetry(func(attempt int, err error) {
			a.l.Debug("Retrying price fetch", zap.String("feed", feed.Name()), zap.Int("attempt", attempt), zap.Error(err))
		}),
	)
	a.updater = pricer.NewUpdater(feed, table, chains, a.conf.Price.RefreshInterval, r, a.l.Named("pricer"))
	a.updater.SetObserver(a.metrics)

	return nil
}

// Wallets returns the wallet service.
func (a *App) Wallets() *wallet.Service {
	return a.wallets
}

// Handler returns the HTTP handler of the web server.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Run starts the loops, the price updater and the web server and blocks until
// ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.updater != nil {
		g.Go(func() error {
			return a.updater.Run(ctx)
		})
	}

	g.Go(func() error {
		return a.server.Start(ctx)
	})

	a.wallets.Start(ctx)
	a.l.Info("walletsync started",
		zap.String("listen", a.conf.Listen),
		zap.Duration("poll_interval", a.conf.PollInterval),
		zap.String("price_feed", a.conf.Price.Feed))

	g.Go(func() error {
		<-ctx.Done()
		a.wallets.Close()
		a.hub.Close()
		return nil
	})

	return g.Wait()
}

// Close releases the history journal and RPC clients.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
