// Package core defines the contracts between the swap engine's components:
// the quote provider, the trade adapter surface observed by the
// orchestration service, and the chain-side collaborators.
package core

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/you/swap-engine/internal/asset"
	"github.com/you/swap-engine/internal/obs"
	"github.com/you/swap-engine/internal/settings"
)

type Provider string

const (
	ProviderUniswap Provider = "uniswap"
	ProviderPancake Provider = "pancake"
)

// AmountDirection selects which side of the trade the user is typing; the
// other side is always derived.
type AmountDirection int

const (
	ExactIn AmountDirection = iota
	ExactOut
)

func (d AmountDirection) String() string {
	if d == ExactOut {
		return "exact_out"
	}
	return "exact_in"
}

type ImpactLevel int

const (
	ImpactNormal ImpactLevel = iota
	ImpactWarning
	ImpactForbidden
)

// ImpactPolicy is the price-impact risk gate. Impact below Warning is
// normal, [Warning, Forbidden) warns, >= Forbidden blocks proceeding.
type ImpactPolicy struct {
	WarningPct   float64
	ForbiddenPct float64
}

func DefaultImpactPolicy() ImpactPolicy {
	return ImpactPolicy{WarningPct: 1, ForbiddenPct: 5}
}

func (p ImpactPolicy) Classify(impactPct float64) ImpactLevel {
	switch {
	case impactPct < p.WarningPct:
		return ImpactNormal
	case impactPct < p.ForbiddenPct:
		return ImpactWarning
	default:
		return ImpactForbidden
	}
}

// QuoteSource is an opaque, head-scoped liquidity snapshot for one pair,
// owned by the adapter that fetched it. It must be discarded when the pair
// changes or the chain head advances.
type QuoteSource interface {
	Pair() (from, to asset.Asset)
	BlockNumber() uint64
}

// TradeQuote is the derived outcome of applying an amount and direction to a
// quote source. Quotes are recomputed, never mutated.
type TradeQuote struct {
	FromAsset  asset.Asset
	ToAsset    asset.Asset
	FromAmount *big.Int
	ToAmount   *big.Int
	Direction  AmountDirection

	// ExecutionPrice is to-units per from-unit at the quoted size.
	ExecutionPrice float64
	// PriceImpactPct is the deviation from the pre-trade mid price, percent.
	PriceImpactPct float64
	ImpactLevel    ImpactLevel

	// Bound is the minimum received (exact-in) or maximum paid (exact-out)
	// after slippage.
	Bound *big.Int
}

// TxPayload is the raw swap transaction derived from a quote.
type TxPayload struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// TradeProvider wraps one DEX quoting implementation. FetchQuoteSource hits
// the chain; ComputeTrade and TransactionPayload are synchronous and local.
type TradeProvider interface {
	RouterAddress() common.Address
	FetchQuoteSource(ctx context.Context, from, to asset.Asset) (QuoteSource, error)
	ComputeTrade(src QuoteSource, amount *big.Int, dir AmountDirection, opts settings.TradeOptions) (*TradeQuote, error)
	TransactionPayload(q *TradeQuote, opts settings.TradeOptions) (*TxPayload, error)
}

type Status int

const (
	StatusNotReady Status = iota
	StatusLoading
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	default:
		return "not_ready"
	}
}

// AdapterState is the trade adapter's externally observed status. Quote and
// Payload are set only when Status is StatusReady.
type AdapterState struct {
	Status  Status
	Quote   *TradeQuote
	Payload *TxPayload
}

func Loading() AdapterState  { return AdapterState{Status: StatusLoading} }
func NotReady() AdapterState { return AdapterState{Status: StatusNotReady} }
func Ready(q *TradeQuote, p *TxPayload) AdapterState {
	return AdapterState{Status: StatusReady, Quote: q, Payload: p}
}

// Adapter is the trade adapter surface: current from/to assets, amounts,
// direction and state, each readable and observable.
type Adapter interface {
	RouterAddress() common.Address

	State() *obs.Value[AdapterState]
	Errors() *obs.Value[[]error]
	FromAsset() *obs.Value[obs.Opt[asset.Asset]]
	FromAmount() *obs.Value[obs.Opt[*big.Int]]
	ToAsset() *obs.Value[obs.Opt[asset.Asset]]
	ToAmount() *obs.Value[obs.Opt[*big.Int]]
	Direction() *obs.Value[AmountDirection]

	SelectFromAsset(a *asset.Asset)
	SelectToAsset(a *asset.Asset)
	EnterFromAmount(amount *big.Int)
	EnterToAmount(amount *big.Int)
	SwitchAssets()

	Dispose()
}

// HeadNotifier emits chain head heights; every distinct emission invalidates
// cached quote sources.
type HeadNotifier interface {
	SubscribeHeads(buf int) (<-chan uint64, func())
}

// AllowanceQuerier reads the on-chain allowance owner granted to spender.
type AllowanceQuerier interface {
	Allowance(ctx context.Context, owner, spender common.Address, a asset.Asset) (*big.Int, error)
}

// BalanceLookup reads a point-in-time wallet balance; it is queried once per
// asset-selection event, never polled.
type BalanceLookup interface {
	Balance(ctx context.Context, owner common.Address, a asset.Asset) (*big.Int, error)
}
