package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/swap-engine/internal/asset"
	"github.com/you/swap-engine/internal/settings"
)

// AdapterDeps carries everything a provider constructor needs. Provider
// packages register themselves in init, keyed by (blockchain, provider);
// unsupported pairings fail at construction time, not at first use.
type AdapterDeps struct {
	Client  *ethclient.Client
	Heads   HeadNotifier
	Router  common.Address
	Factory common.Address
	Wrapped common.Address // wrapped-native token standing in for the native asset
	Owner   common.Address
	Policy  ImpactPolicy
	Options settings.TradeOptions
	Log     *zap.Logger
}

type Constructor func(AdapterDeps) (Adapter, error)

type registryKey struct {
	chain    asset.Chain
	provider Provider
}

var registry = map[registryKey]Constructor{}

func Register(chain asset.Chain, p Provider, c Constructor) {
	registry[registryKey{chain, p}] = c
}

// NewAdapter builds the trade adapter for the requested pairing.
func NewAdapter(chain asset.Chain, p Provider, deps AdapterDeps) (Adapter, error) {
	ctor, ok := registry[registryKey{chain, p}]
	if !ok {
		return nil, errors.Errorf("no swap adapter for blockchain %q, provider %q", chain, p)
	}
	return ctor(deps)
}
