// Package connector drives the connect/disconnect handshake against chain providers.
package connector

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/provider"
)

// InstallNotifier surfaces the wallet installation link to the user.
type InstallNotifier interface {
	PromptInstall(chain domain.Chain, installURL string)
}

// Connector resolves chain addresses through the registered providers.
type Connector struct {
	probe    *provider.Probe
	installs InstallNotifier
	l        *zap.Logger
}

// New creates a connector. installs may be nil.
func New(probe *provider.Probe, installs InstallNotifier, l *zap.Logger) *Connector {
	if l == nil {
		l = zap.NewNop()
	}
	return &Connector{probe: probe, installs: installs, l: l}
}

// IsAvailable reports whether the chain's provider is present.
func (c *Connector) IsAvailable(chain domain.Chain) bool {
	return c.probe.IsAvailable(chain)
}

// Connect returns the first authorized account, asking the provider for
// permission only when none was granted yet. An absent provider surfaces the
// install link and returns domain.ErrProviderAbsent.
func (c *Connector) Connect(ctx context.Context, chain domain.Chain) (string, error) {
	cp, ok := c.probe.Provider(chain)
	if !ok || !cp.IsPresent() {
		c.l.Info("Wallet provider not installed",
			zap.String("chain", chain.String()),
			zap.String("install_url", chain.InstallURL()))
		if c.installs != nil {
			c.installs.PromptInstall(chain, chain.InstallURL())
		}

		return "", errors.Wrapf(domain.ErrProviderAbsent, "%s wallet", chain.WalletName())
	}

	granted, err := cp.Accounts(ctx)
	switch {
	case err == nil && len(granted) > 0:
		return c.firstAccount(chain, granted)
	case err != nil && ctx.Err() != nil:
		return "", errors.Wrapf(err, "read %s accounts", chain)
	case err != nil:
		c.l.Debug("Silent account read failed, prompting",
			zap.String("chain", chain.String()),
			zap.Error(err))
	}

	accounts, err := cp.RequestAccounts(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrProviderRejected) || errors.Is(err, domain.ErrProviderAbsent) {
			return "", err
		}

		return "", errors.Wrapf(err, "request %s accounts", chain)
	}
	if len(accounts) == 0 {
		return "", errors.Wrapf(domain.ErrProviderRejected, "no accounts available in %s", chain.WalletName())
	}

	return c.firstAccount(chain, accounts)
}

// Silent reads the authorized account without prompting.
// It returns an empty address when the provider holds no permission.
func (c *Connector) Silent(ctx context.Context, chain domain.Chain) (string, error) {
	cp, ok := c.probe.Provider(chain)
	if !ok || !cp.IsPresent() {
		return "", errors.Wrapf(domain.ErrProviderAbsent, "%s wallet", chain.WalletName())
	}

	accounts, err := cp.Accounts(ctx)
	if err != nil {
		return "", errors.Wrapf(err, "read %s accounts", chain)
	}
	if len(accounts) == 0 {
		return "", nil
	}

	return c.firstAccount(chain, accounts)
}

// Disconnect asks the provider to drop the session. The returned error is
// informational: callers clear local state regardless.
func (c *Connector) Disconnect(ctx context.Context, chain domain.Chain) error {
	cp, ok := c.probe.Provider(chain)
	if !ok || !cp.IsPresent() {
		return nil
	}

	if err := cp.Disconnect(ctx); err != nil {
		c.l.Warn("Provider disconnect failed",
			zap.String("chain", chain.String()),
			zap.Error(err))

		return errors.Wrapf(err, "disconnect %s", chain)
	}

	return nil
}

func (c *Connector) firstAccount(chain domain.Chain, accounts []string) (string, error) {
	address, err := domain.NormalizeAddress(chain, accounts[0])
	if err != nil {
		return "", errors.Wrap(err, "provider returned malformed account")
	}
	return address, nil
}
