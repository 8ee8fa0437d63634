package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient returns an unauthenticated client; public market endpoints need no key.
func NewBinanceClient() *binance.Client {
	return binance.NewClient("", "")
}
