package internal

import (
	"fmt"

	binance "github.com/adshao/go-binance/v2"
	bybit "github.com/hirokisan/bybit/v2"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/vadiminshakov/walletsync/config"
	"github.com/vadiminshakov/walletsync/internal/clients"
	"github.com/vadiminshakov/walletsync/internal/services/pricer"
)

// NewPriceFeed creates the price feed matching the client type.
// This is the single point of truth for dispatching to exchange-specific feeds.
func NewPriceFeed(client any) (pricer.Feed, error) {
	switch c := client.(type) {
	case *binance.Client:
		return pricer.NewBinanceFeed(c), nil
	case *bybit.Client:
		return pricer.NewBybitFeed(c), nil
	case *hyperliquid.Info:
		return pricer.NewHyperliquidFeed(c), nil
	default:
		return nil, fmt.Errorf("unsupported client type: %T", client)
	}
}

// newPriceClient creates the exchange client for the configured feed.
// The static feed has no client and returns nil.
func newPriceClient(conf config.PriceConfig) (any, error) {
	switch conf.Feed {
	case config.FeedStatic:
		return nil, nil
	case config.FeedBinance:
		return clients.NewBinanceClient(), nil
	case config.FeedBybit:
		return clients.NewBybitClient(), nil
	case config.FeedHyperliquid:
		return clients.NewHyperliquidInfo(conf.HyperliquidURL)
	default:
		return nil, fmt.Errorf("unsupported price feed: %s", conf.Feed)
	}
}
