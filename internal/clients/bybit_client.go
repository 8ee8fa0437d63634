package clients

import (
	"github.com/hirokisan/bybit/v2"
)

// NewBybitClient returns a client for public V5 market endpoints.
func NewBybitClient() *bybit.Client {
	return bybit.NewClient()
}
