package pricer

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2"
	"github.com/hirokisan/bybit/v2"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

// Feed fetches the current USD price of a chain's native coin.
type Feed interface {
	Name() string
	GetPrice(ctx context.Context, chain domain.Chain) (decimal.Decimal, error)
}

const quoteAsset = "USDT"

func symbol(chain domain.Chain) string {
	return chain.Symbol() + quoteAsset
}

// BinanceFeed reads the last trade price from Binance public ticker API.
type BinanceFeed struct {
	client *binance.Client
}

func NewBinanceFeed(client *binance.Client) *BinanceFeed {
	return &BinanceFeed{client: client}
}

func (f *BinanceFeed) Name() string { return "binance" }

func (f *BinanceFeed) GetPrice(ctx context.Context, chain domain.Chain) (decimal.Decimal, error) {
	prices, err := f.client.NewListPricesService().Symbol(symbol(chain)).Do(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(prices) == 0 {
		return decimal.Decimal{}, fmt.Errorf("binance API returned empty prices for %s", symbol(chain))
	}

	return decimal.NewFromString(prices[0].Price)
}

// BybitFeed reads spot tickers from Bybit V5 market API.
type BybitFeed struct {
	client *bybit.Client
}

func NewBybitFeed(client *bybit.Client) *BybitFeed {
	return &BybitFeed{client: client}
}

func (f *BybitFeed) Name() string { return "bybit" }

// GetPrice the SDK call takes no context, so cancellation applies between calls only.
func (f *BybitFeed) GetPrice(ctx context.Context, chain domain.Chain) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Decimal{}, err
	}
	sym := bybit.SymbolV5(symbol(chain))

	result, err := f.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: "spot",
		Symbol:   &sym,
	})
	if err != nil {
		return decimal.Decimal{}, err
	}

	if len(result.Result.Spot.List) == 0 {
		return decimal.Decimal{}, fmt.Errorf("bybit API returned empty prices for %s", symbol(chain))
	}

	return decimal.NewFromString(result.Result.Spot.List[0].LastPrice)
}

type midsFetcher interface {
	AllMids(ctx context.Context) (map[string]string, error)
}

// HyperliquidFeed reads mid prices from Hyperliquid public Info API.
type HyperliquidFeed struct {
	info midsFetcher
}

func NewHyperliquidFeed(info midsFetcher) *HyperliquidFeed {
	return &HyperliquidFeed{info: info}
}

func (f *HyperliquidFeed) Name() string { return "hyperliquid" }

func (f *HyperliquidFeed) GetPrice(ctx context.Context, chain domain.Chain) (decimal.Decimal, error) {
	if f.info == nil {
		return decimal.Zero, fmt.Errorf("hyperliquid info client is nil")
	}

	mids, err := f.info.AllMids(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	// mids are keyed by base coin (e.g., "SOL").
	mid, ok := mids[chain.Symbol()]
	if !ok || mid == "" {
		return decimal.Zero, fmt.Errorf("hyperliquid API returned empty mid price for %s", chain.Symbol())
	}
	return decimal.NewFromString(mid)
}
