// Package swap contains the trade adapter state machine and the
// orchestration service reconciling it with allowance, pending-approval and
// balance state into a single trade-readiness verdict.
package swap

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/you/swap-engine/internal/asset"
	imetrics "github.com/you/swap-engine/internal/metrics"
	"github.com/you/swap-engine/internal/obs"
	"github.com/you/swap-engine/internal/settings"
	"github.com/you/swap-engine/internal/swap/core"
)

// TradeAdapter owns the from/to assets, the typed amount and its direction,
// and re-quotes through its provider whenever inputs or the chain head
// change. All state mutation happens under mu; observers only ever see fully
// applied transitions.
type TradeAdapter struct {
	provider core.TradeProvider
	policy   core.ImpactPolicy
	log      *zap.Logger

	mu          sync.Mutex
	opts        settings.TradeOptions
	source      core.QuoteSource
	fetchGen    int
	fetchCancel context.CancelFunc
	disposed    bool

	state      *obs.Value[core.AdapterState]
	errs       *obs.Value[[]error]
	fromAsset  *obs.Value[obs.Opt[asset.Asset]]
	fromAmount *obs.Value[obs.Opt[*big.Int]]
	toAsset    *obs.Value[obs.Opt[asset.Asset]]
	toAmount   *obs.Value[obs.Opt[*big.Int]]
	direction  *obs.Value[core.AmountDirection]

	headStop  chan struct{}
	headUnsub func()
}

// NewTradeAdapter wires a provider-backed adapter and begins listening for
// chain-head ticks. initialFrom may be nil.
func NewTradeAdapter(provider core.TradeProvider, heads core.HeadNotifier, policy core.ImpactPolicy, opts settings.TradeOptions, initialFrom *asset.Asset, log *zap.Logger) *TradeAdapter {
	a := &TradeAdapter{
		provider:   provider,
		policy:     policy,
		opts:       opts,
		log:        log,
		state:      obs.NewValue(core.NotReady()),
		errs:       obs.NewValue([]error{}),
		fromAsset:  obs.NewValue(obs.Ptr(initialFrom)),
		fromAmount: obs.NewValue(obs.None[*big.Int]()),
		toAsset:    obs.NewValue(obs.None[asset.Asset]()),
		toAmount:   obs.NewValue(obs.None[*big.Int]()),
		direction:  obs.NewValue(core.ExactIn),
		headStop:   make(chan struct{}),
	}

	headCh, unsub := heads.SubscribeHeads(64)
	a.headUnsub = unsub
	go func() {
		for {
			select {
			case <-a.headStop:
				return
			case h := <-headCh:
				a.onHead(h)
			}
		}
	}()

	return a
}

func (a *TradeAdapter) RouterAddress() common.Address { return a.provider.RouterAddress() }

func (a *TradeAdapter) State() *obs.Value[core.AdapterState]          { return a.state }
func (a *TradeAdapter) Errors() *obs.Value[[]error]                   { return a.errs }
func (a *TradeAdapter) FromAsset() *obs.Value[obs.Opt[asset.Asset]]   { return a.fromAsset }
func (a *TradeAdapter) FromAmount() *obs.Value[obs.Opt[*big.Int]]     { return a.fromAmount }
func (a *TradeAdapter) ToAsset() *obs.Value[obs.Opt[asset.Asset]]     { return a.toAsset }
func (a *TradeAdapter) ToAmount() *obs.Value[obs.Opt[*big.Int]]       { return a.toAmount }
func (a *TradeAdapter) Direction() *obs.Value[core.AmountDirection]   { return a.direction }

func (a *TradeAdapter) SelectFromAsset(sel *asset.Asset) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return
	}
	a.selectFromAssetLocked(sel)
}

func (a *TradeAdapter) selectFromAssetLocked(sel *asset.Asset) {
	if optAssetEqual(a.fromAsset.Get(), sel) {
		return
	}
	a.fromAsset.Set(obs.Ptr(sel))

	// the estimated side is stale once its counterpart asset changes
	if a.direction.Get() == core.ExactOut {
		a.fromAmount.Set(obs.None[*big.Int]())
	}

	if to := a.toAsset.Get(); sel != nil && to.OK && asset.Equal(to.Val, *sel) {
		a.toAsset.Set(obs.None[asset.Asset]())
		a.toAmount.Set(obs.None[*big.Int]())
	}

	a.source = nil
	a.syncQuoteSourceLocked()
}

func (a *TradeAdapter) SelectToAsset(sel *asset.Asset) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return
	}
	a.selectToAssetLocked(sel)
}

func (a *TradeAdapter) selectToAssetLocked(sel *asset.Asset) {
	if optAssetEqual(a.toAsset.Get(), sel) {
		return
	}
	a.toAsset.Set(obs.Ptr(sel))

	if a.direction.Get() == core.ExactIn {
		a.toAmount.Set(obs.None[*big.Int]())
	}

	if from := a.fromAsset.Get(); sel != nil && from.OK && asset.Equal(from.Val, *sel) {
		a.fromAsset.Set(obs.None[asset.Asset]())
		a.fromAmount.Set(obs.None[*big.Int]())
	}

	a.source = nil
	a.syncQuoteSourceLocked()
}

func (a *TradeAdapter) EnterFromAmount(amount *big.Int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return
	}
	a.direction.Set(core.ExactIn)

	if amountsOptEqual(a.fromAmount.Get(), amount) {
		return
	}
	a.fromAmount.Set(optAmount(amount))
	a.toAmount.Set(obs.None[*big.Int]())
	a.syncTradeLocked()
}

func (a *TradeAdapter) EnterToAmount(amount *big.Int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return
	}
	a.direction.Set(core.ExactOut)

	if amountsOptEqual(a.toAmount.Get(), amount) {
		return
	}
	a.toAmount.Set(optAmount(amount))
	a.fromAmount.Set(obs.None[*big.Int]())
	a.syncTradeLocked()
}

// SwitchAssets moves the to-asset to the from side. Amounts follow the
// normal selection clearing rules, they are not swapped.
func (a *TradeAdapter) SwitchAssets() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return
	}
	oldTo := a.toAsset.Get()
	a.toAsset.Set(a.fromAsset.Get())

	var sel *asset.Asset
	if oldTo.OK {
		v := oldTo.Val
		sel = &v
	}
	a.selectFromAssetLocked(sel)
}

// SetTradeOptions replaces the slippage/deadline/recipient inputs and
// recomputes the trade over the cached snapshot.
func (a *TradeAdapter) SetTradeOptions(opts settings.TradeOptions) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return
	}
	a.opts = opts
	a.syncTradeLocked()
}

// Dispose cancels the in-flight fetch and the head subscription. No state
// mutation or emission happens after it returns.
func (a *TradeAdapter) Dispose() {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	a.disposed = true
	if a.fetchCancel != nil {
		a.fetchCancel()
		a.fetchCancel = nil
	}
	a.mu.Unlock()

	close(a.headStop)
	a.headUnsub()

	a.state.Close()
	a.errs.Close()
	a.fromAsset.Close()
	a.fromAmount.Close()
	a.toAsset.Close()
	a.toAmount.Close()
	a.direction.Close()
}

func (a *TradeAdapter) onHead(height uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return
	}
	imetrics.HeadTicks.Inc()
	if !a.fromAsset.Get().OK || !a.toAsset.Get().OK {
		return
	}
	// liquidity may have shifted under the cached snapshot
	a.source = nil
	a.syncQuoteSourceLocked()
}

// syncQuoteSourceLocked drives the Loading->fetch path. A newer fetch for
// the pair supersedes any older in-flight one via the generation counter.
func (a *TradeAdapter) syncQuoteSourceLocked() {
	from := a.fromAsset.Get()
	to := a.toAsset.Get()
	if !from.OK || !to.OK {
		a.state.Set(core.NotReady())
		return
	}

	if a.source == nil {
		a.state.Set(core.Loading())
	}

	if a.fetchCancel != nil {
		a.fetchCancel()
	}
	a.fetchGen++
	gen := a.fetchGen
	ctx, cancel := context.WithCancel(context.Background())
	a.fetchCancel = cancel

	go func(from, to asset.Asset) {
		start := time.Now()
		src, err := a.provider.FetchQuoteSource(ctx, from, to)
		imetrics.QuoteSourceLatency.Observe(time.Since(start).Seconds())

		a.mu.Lock()
		defer a.mu.Unlock()
		if a.disposed || gen != a.fetchGen {
			return
		}
		if err != nil {
			imetrics.QuoteSourceErrors.Inc()
			a.log.Warn("quote source fetch failed",
				zap.String("from", from.Symbol),
				zap.String("to", to.Symbol),
				zap.Error(err),
			)
			a.errs.Set([]error{err})
			a.state.Set(core.NotReady())
			return
		}
		a.source = src
		a.syncTradeLocked()
	}(from.Val, to.Val)
}

// syncTradeLocked recomputes the trade quote over the cached snapshot. It is
// synchronous and local; failures are recorded, never thrown.
func (a *TradeAdapter) syncTradeLocked() {
	if a.source == nil {
		return
	}

	a.errs.Set([]error{})

	var amount obs.Opt[*big.Int]
	dir := a.direction.Get()
	if dir == core.ExactIn {
		amount = a.fromAmount.Get()
	} else {
		amount = a.toAmount.Get()
	}
	if !amount.OK || amount.Val.Sign() == 0 {
		a.state.Set(core.NotReady())
		return
	}

	quote, err := a.provider.ComputeTrade(a.source, amount.Val, dir, a.opts)
	if err != nil {
		a.errs.Set([]error{err})
		a.state.Set(core.NotReady())
		return
	}

	if dir == core.ExactIn {
		a.toAmount.Set(obs.Some(quote.ToAmount))
	} else {
		a.fromAmount.Set(obs.Some(quote.FromAmount))
	}

	quote.ImpactLevel = a.policy.Classify(quote.PriceImpactPct)
	if quote.ImpactLevel == core.ImpactForbidden {
		a.errs.Set([]error{core.ErrForbiddenPriceImpact})
	}

	payload, err := a.provider.TransactionPayload(quote, a.opts)
	if err != nil {
		a.errs.Set([]error{err})
		a.state.Set(core.NotReady())
		return
	}

	// Ready even under forbidden impact: the quote stays visible, the
	// blocking error prevents proceed-readiness downstream.
	a.state.Set(core.Ready(quote, payload))
}

func optAssetEqual(cur obs.Opt[asset.Asset], sel *asset.Asset) bool {
	if !cur.OK || sel == nil {
		return !cur.OK && sel == nil
	}
	return asset.Equal(cur.Val, *sel)
}

func amountsOptEqual(cur obs.Opt[*big.Int], amount *big.Int) bool {
	if !cur.OK || amount == nil {
		return !cur.OK && amount == nil
	}
	return asset.AmountsEqual(cur.Val, amount)
}

func optAmount(amount *big.Int) obs.Opt[*big.Int] {
	if amount == nil {
		return obs.None[*big.Int]()
	}
	return obs.Some(amount)
}
