// Package watchonly provides a ChainProvider for a preconfigured address,
// for hosts without a browser wallet.
package watchonly

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

// Provider exposes a fixed address once it is granted.
type Provider struct {
	chain   domain.Chain
	address string

	mu      sync.Mutex
	granted bool
}

// New creates a watch-only provider. An empty address makes the provider absent.
// preauthorized mirrors a wallet that already holds permission from a previous session.
func New(chain domain.Chain, address string, preauthorized bool) (*Provider, error) {
	p := &Provider{chain: chain}
	if address == "" {
		return p, nil
	}

	normalized, err := domain.NormalizeAddress(chain, address)
	if err != nil {
		return nil, errors.Wrap(err, "watch-only address")
	}
	p.address = normalized
	p.granted = preauthorized

	return p, nil
}

func (p *Provider) Chain() domain.Chain { return p.chain }

func (p *Provider) IsPresent() bool { return p.address != "" }

// RequestAccounts grants access to the configured address.
func (p *Provider) RequestAccounts(_ context.Context) ([]string, error) {
	if !p.IsPresent() {
		return nil, domain.ErrProviderAbsent
	}

	p.mu.Lock()
	p.granted = true
	p.mu.Unlock()

	return []string{p.address}, nil
}

// Accounts returns the address only after it was granted.
func (p *Provider) Accounts(_ context.Context) ([]string, error) {
	if !p.IsPresent() {
		return nil, domain.ErrProviderAbsent
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.granted {
		return nil, nil
	}

	return []string{p.address}, nil
}

// Disconnect revokes the grant.
func (p *Provider) Disconnect(_ context.Context) error {
	p.mu.Lock()
	p.granted = false
	p.mu.Unlock()

	return nil
}
