package internal

import (
	"context"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/walletsync/config"
	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/provider"
	"github.com/vadiminshakov/walletsync/internal/provider/bridge"
	"github.com/vadiminshakov/walletsync/internal/provider/watchonly"
	"github.com/vadiminshakov/walletsync/internal/services/balance"
	"github.com/vadiminshakov/walletsync/internal/services/balance/chainrpc"
	"github.com/vadiminshakov/walletsync/internal/services/balance/indexer"
)

// chainServices bundles the per-chain collaborators built from config.
type chainServices struct {
	provider provider.ChainProvider
	indexer  balance.Source
	rpc      balance.Source
	close    func()
}

// newChainServices creates the provider and balance sources of one chain.
func newChainServices(ctx context.Context, conf config.ChainConfig, hub *bridge.Hub) (chainServices, error) {
	var svc chainServices

	switch conf.Provider {
	case config.ProviderWatch:
		// a configured address counts as already connected
		p, err := watchonly.New(conf.Chain, conf.WatchAddress, true)
		if err != nil {
			return chainServices{}, err
		}
		svc.provider = p
	case config.ProviderBridge:
		if hub == nil {
			return chainServices{}, errors.Errorf("bridge provider for %s needs a bridge hub", conf.Chain)
		}
		svc.provider = hub.Provider(conf.Chain)
	default:
		return chainServices{}, errors.Errorf("unsupported provider %q for %s", conf.Provider, conf.Chain)
	}

	switch conf.Chain {
	case domain.ChainSolana:
		svc.indexer = indexer.NewSolscanClient(conf.IndexerURL, nil)
		svc.rpc = chainrpc.NewSolanaClient(conf.RPCURL)
		svc.close = func() {}
	case domain.ChainEthereum:
		svc.indexer = indexer.NewEtherscanClient(conf.IndexerURL, conf.IndexerAPIKey, nil)
		rpc, err := chainrpc.NewEthereumClient(ctx, conf.RPCURL)
		if err != nil {
			return chainServices{}, err
		}
		svc.rpc = rpc
		svc.close = rpc.Close
	default:
		return chainServices{}, errors.Wrapf(domain.ErrUnknownChain, "%q", conf.Chain)
	}

	return svc, nil
}
