package connector

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/provider"
	providerMock "github.com/vadiminshakov/walletsync/mocks/provider"
)

const solAddress = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

type installs struct {
	chains []domain.Chain
	urls   []string
}

func (i *installs) PromptInstall(chain domain.Chain, url string) {
	i.chains = append(i.chains, chain)
	i.urls = append(i.urls, url)
}

func newSolanaProvider(t *testing.T) *providerMock.ChainProvider {
	p := providerMock.NewChainProvider(t)
	p.On("Chain").Return(domain.ChainSolana)
	return p
}

func TestConnector_ConnectAbsent(t *testing.T) {
	notifier := &installs{}
	c := New(provider.NewProbe(), notifier, zap.NewNop())

	_, err := c.Connect(context.Background(), domain.ChainSolana)
	require.ErrorIs(t, err, domain.ErrProviderAbsent)
	assert.Equal(t, []domain.Chain{domain.ChainSolana}, notifier.chains)
	assert.Equal(t, []string{"https://phantom.app/"}, notifier.urls)
	assert.False(t, c.IsAvailable(domain.ChainSolana))
}

func TestConnector_ConnectInstalledButNotPresent(t *testing.T) {
	p := newSolanaProvider(t)
	p.On("IsPresent").Return(false)

	c := New(provider.NewProbe(p), nil, zap.NewNop())
	_, err := c.Connect(context.Background(), domain.ChainSolana)
	assert.ErrorIs(t, err, domain.ErrProviderAbsent)
	p.AssertNotCalled(t, "RequestAccounts", mock.Anything)
}

func TestConnector_ConnectReturnsFirstAccount(t *testing.T) {
	p := newSolanaProvider(t)
	p.On("IsPresent").Return(true)
	p.On("Accounts", mock.Anything).Return(nil, nil).Once()
	p.On("RequestAccounts", mock.Anything).Return([]string{" " + solAddress + " ", "second"}, nil).Once()
	p.On("Accounts", mock.Anything).Return([]string{solAddress}, nil)

	c := New(provider.NewProbe(p), nil, zap.NewNop())
	for i := 0; i < 2; i++ {
		addr, err := c.Connect(context.Background(), domain.ChainSolana)
		require.NoError(t, err)
		assert.Equal(t, solAddress, addr)
	}

	// the second connect reuses the granted permission
	p.AssertNumberOfCalls(t, "RequestAccounts", 1)
}

func TestConnector_ConnectAlreadyAuthorizedNeverPrompts(t *testing.T) {
	p := newSolanaProvider(t)
	p.On("IsPresent").Return(true)
	p.On("Accounts", mock.Anything).Return([]string{solAddress}, nil)

	c := New(provider.NewProbe(p), nil, zap.NewNop())
	for i := 0; i < 2; i++ {
		addr, err := c.Connect(context.Background(), domain.ChainSolana)
		require.NoError(t, err)
		assert.Equal(t, solAddress, addr)
	}

	p.AssertNotCalled(t, "RequestAccounts", mock.Anything)
}

func TestConnector_ConnectPromptsWhenSilentReadFails(t *testing.T) {
	p := newSolanaProvider(t)
	p.On("IsPresent").Return(true)
	p.On("Accounts", mock.Anything).Return(nil, errors.New("wallet locked"))
	p.On("RequestAccounts", mock.Anything).Return([]string{solAddress}, nil)

	c := New(provider.NewProbe(p), nil, zap.NewNop())
	addr, err := c.Connect(context.Background(), domain.ChainSolana)
	require.NoError(t, err)
	assert.Equal(t, solAddress, addr)
}

func TestConnector_ConnectErrors(t *testing.T) {
	tests := []struct {
		name     string
		accounts []string
		err      error
		want     error
	}{
		{name: "rejected", err: errors.Wrap(domain.ErrProviderRejected, "code 4001"), want: domain.ErrProviderRejected},
		{name: "no accounts", accounts: []string{}, want: domain.ErrProviderRejected},
		{name: "malformed account", accounts: []string{"0xnothex"}, want: domain.ErrInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newSolanaProvider(t)
			p.On("IsPresent").Return(true)
			p.On("Accounts", mock.Anything).Return(nil, nil)
			p.On("RequestAccounts", mock.Anything).Return(tt.accounts, tt.err)

			c := New(provider.NewProbe(p), nil, zap.NewNop())
			_, err := c.Connect(context.Background(), domain.ChainSolana)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("transport error is wrapped", func(t *testing.T) {
		p := newSolanaProvider(t)
		p.On("IsPresent").Return(true)
		p.On("Accounts", mock.Anything).Return(nil, nil)
		p.On("RequestAccounts", mock.Anything).Return(nil, errors.New("socket closed"))

		c := New(provider.NewProbe(p), nil, zap.NewNop())
		_, err := c.Connect(context.Background(), domain.ChainSolana)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "socket closed")
		assert.Equal(t, domain.OutcomeNetworkError, domain.OutcomeFromError(err))
	})
}

func TestConnector_Silent(t *testing.T) {
	t.Run("no permission", func(t *testing.T) {
		p := newSolanaProvider(t)
		p.On("IsPresent").Return(true)
		p.On("Accounts", mock.Anything).Return(nil, nil)

		c := New(provider.NewProbe(p), nil, zap.NewNop())
		addr, err := c.Silent(context.Background(), domain.ChainSolana)
		require.NoError(t, err)
		assert.Empty(t, addr)
		p.AssertNotCalled(t, "RequestAccounts", mock.Anything)
	})

	t.Run("authorized", func(t *testing.T) {
		p := newSolanaProvider(t)
		p.On("IsPresent").Return(true)
		p.On("Accounts", mock.Anything).Return([]string{solAddress}, nil)

		c := New(provider.NewProbe(p), nil, zap.NewNop())
		addr, err := c.Silent(context.Background(), domain.ChainSolana)
		require.NoError(t, err)
		assert.Equal(t, solAddress, addr)
	})

	t.Run("absent does not prompt install", func(t *testing.T) {
		notifier := &installs{}
		c := New(provider.NewProbe(), notifier, zap.NewNop())
		_, err := c.Silent(context.Background(), domain.ChainEthereum)
		assert.ErrorIs(t, err, domain.ErrProviderAbsent)
		assert.Empty(t, notifier.urls)
	})
}

func TestConnector_Disconnect(t *testing.T) {
	p := newSolanaProvider(t)
	p.On("IsPresent").Return(true)
	p.On("Disconnect", mock.Anything).Return(errors.New("wallet locked"))

	c := New(provider.NewProbe(p), nil, zap.NewNop())
	err := c.Disconnect(context.Background(), domain.ChainSolana)
	assert.ErrorContains(t, err, "wallet locked")

	// absent provider has nothing to disconnect
	assert.NoError(t, c.Disconnect(context.Background(), domain.ChainEthereum))
}
