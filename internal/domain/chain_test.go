package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChain(t *testing.T) {
	tests := []struct {
		in      string
		want    Chain
		wantErr bool
	}{
		{in: "solana", want: ChainSolana},
		{in: "SOL", want: ChainSolana},
		{in: " phantom ", want: ChainSolana},
		{in: "ethereum", want: ChainEthereum},
		{in: "eth", want: ChainEthereum},
		{in: "MetaMask", want: ChainEthereum},
		{in: "bitcoin", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChain(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownChain)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChainMetadata(t *testing.T) {
	assert.Equal(t, []Chain{ChainSolana, ChainEthereum}, AllChains())

	assert.Equal(t, "SOL", ChainSolana.Symbol())
	assert.Equal(t, int32(9), ChainSolana.Decimals())
	assert.Equal(t, "Phantom", ChainSolana.WalletName())
	assert.Equal(t, "https://phantom.app/", ChainSolana.InstallURL())
	assert.Equal(t, "solana-mainnet", ChainSolana.DefaultNetworkLabel())

	assert.Equal(t, "ETH", ChainEthereum.Symbol())
	assert.Equal(t, int32(18), ChainEthereum.Decimals())
	assert.Equal(t, "MetaMask", ChainEthereum.WalletName())
	assert.Equal(t, "https://metamask.io/download/", ChainEthereum.InstallURL())
	assert.Equal(t, "https://etherscan.io/address/0xabc", ChainEthereum.ExplorerURL("0xabc"))

	assert.False(t, Chain("bitcoin").IsValid())
}
