package uniswap

import (
	"github.com/pkg/errors"

	"github.com/you/swap-engine/internal/asset"
	"github.com/you/swap-engine/internal/swap"
	"github.com/you/swap-engine/internal/swap/core"
)

// Supported pairings: Uniswap quotes on Ethereum, Pancake (same router
// surface) on BSC. Anything else fails construction immediately.
func init() {
	core.Register(asset.ChainEthereum, core.ProviderUniswap, construct)
	core.Register(asset.ChainBinanceSmartChain, core.ProviderPancake, construct)
}

func construct(deps core.AdapterDeps) (core.Adapter, error) {
	if deps.Client == nil {
		return nil, errors.New("uniswap adapter: nil eth client")
	}
	if deps.Heads == nil {
		return nil, errors.New("uniswap adapter: nil head notifier")
	}
	provider, err := NewProvider(deps.Client, deps.Router, deps.Factory, deps.Wrapped, deps.Owner)
	if err != nil {
		return nil, errors.Wrap(err, "uniswap provider")
	}
	return swap.NewTradeAdapter(provider, deps.Heads, deps.Policy, deps.Options, nil, deps.Log), nil
}
