// Package provider abstracts the browser-injected wallet providers.
package provider

import (
	"context"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

// ChainProvider is one chain's wallet capability as exposed by the host.
// Rejections by the user must wrap domain.ErrProviderRejected.
type ChainProvider interface {
	// Chain returns the chain served by the provider.
	Chain() domain.Chain
	// IsPresent reports whether the host currently exposes the provider.
	IsPresent() bool
	// RequestAccounts asks for permission and may show a prompt.
	RequestAccounts(ctx context.Context) ([]string, error)
	// Accounts returns already-authorized accounts without prompting.
	Accounts(ctx context.Context) ([]string, error)
	// Disconnect revokes the session on the provider side.
	Disconnect(ctx context.Context) error
}

// Probe answers whether a chain's provider is available right now.
type Probe struct {
	providers map[domain.Chain]ChainProvider
}

// NewProbe creates a probe over the given providers, keyed by their chain.
func NewProbe(providers ...ChainProvider) *Probe {
	p := &Probe{providers: make(map[domain.Chain]ChainProvider, len(providers))}
	for _, cp := range providers {
		if cp == nil {
			continue
		}
		p.providers[cp.Chain()] = cp
	}
	return p
}

// IsAvailable is re-evaluated on every call; absence is false, never an error.
func (p *Probe) IsAvailable(chain domain.Chain) bool {
	cp, ok := p.Provider(chain)
	if !ok {
		return false
	}
	return cp.IsPresent()
}

// Provider returns the provider registered for the chain.
func (p *Probe) Provider(chain domain.Chain) (ChainProvider, bool) {
	if p == nil {
		return nil, false
	}
	cp, ok := p.providers[chain]
	if !ok || cp == nil {
		return nil, false
	}
	return cp, true
}
