package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

func TestCollector(t *testing.T) {
	c := NewCollector()

	c.ObserveCycle(domain.ChainSolana, domain.InitiatorScheduled, domain.OutcomeSuccess, 20*time.Millisecond)
	c.ObserveCycle(domain.ChainSolana, domain.InitiatorScheduled, domain.OutcomeSuccess, 30*time.Millisecond)
	c.ObserveSkippedTick(domain.ChainEthereum)
	c.ObserveSource(domain.ChainEthereum, domain.BalanceSourceIndexer, errors.New("503"))
	c.ObserveSource(domain.ChainEthereum, domain.BalanceSourceRpc, nil)
	c.ObservePrice(domain.ChainSolana, "binance", nil)
	c.PromptInstall(domain.ChainEthereum, domain.ChainEthereum.InstallURL())

	assert.Equal(t, 2.0, testutil.ToFloat64(c.cycles.WithLabelValues("solana", "scheduled", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.skippedTicks.WithLabelValues("ethereum")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sources.WithLabelValues("ethereum", "indexer", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sources.WithLabelValues("ethereum", "rpc", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.prices.WithLabelValues("solana", "binance", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.installs.WithLabelValues("ethereum")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "walletsync_cycles_total")
	assert.Contains(t, string(body), "walletsync_skipped_ticks_total")
}
