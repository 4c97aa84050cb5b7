// Package allowance tracks the spending allowance a wallet has granted to a
// router contract, and the in-flight window between submitting an approval
// and the allowance becoming visible on-chain.
package allowance

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/swap-engine/internal/asset"
	imetrics "github.com/you/swap-engine/internal/metrics"
	"github.com/you/swap-engine/internal/obs"
	"github.com/you/swap-engine/internal/swap/core"
)

// unlimited stands in for "no approval required" on native assets.
var unlimited = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// State is the tracker's readiness. Err is set only for StatusNotReady, and
// may be nil there when no asset is tracked at all.
type State struct {
	Status    core.Status
	Allowance *big.Int
	Err       error
}

// ApproveData describes the approval transaction a wallet must submit
// before the router may spend Amount of Asset.
type ApproveData struct {
	Asset   asset.Asset
	Spender common.Address
	Amount  *big.Int
}

// Tracker queries the on-chain allowance granted by owner to spender for
// the currently tracked asset, re-querying on every asset change.
type Tracker struct {
	querier core.AllowanceQuerier
	owner   common.Address
	spender common.Address
	log     *zap.Logger

	mu       sync.Mutex
	cur      obs.Opt[asset.Asset]
	gen      int
	cancel   context.CancelFunc
	disposed bool

	state *obs.Value[State]
}

func NewTracker(querier core.AllowanceQuerier, owner, spender common.Address, log *zap.Logger) *Tracker {
	return &Tracker{
		querier: querier,
		owner:   owner,
		spender: spender,
		log:     log,
		state:   obs.NewValue(State{Status: core.StatusNotReady}),
	}
}

func (t *Tracker) State() *obs.Value[State] { return t.state }

// Set switches the tracked asset. Unchanged assets are a no-op, including
// the none-to-none case.
func (t *Tracker) Set(a *asset.Asset) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return
	}
	if optEqual(t.cur, a) {
		return
	}
	t.cur = obs.Ptr(a)
	t.queryLocked()
}

// Resync re-queries the allowance for the current asset. Called after an
// approval confirmation, when the on-chain value may have moved.
func (t *Tracker) Resync() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return
	}
	t.queryLocked()
}

func (t *Tracker) queryLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}

	if !t.cur.OK {
		t.state.Set(State{Status: core.StatusNotReady})
		return
	}
	tracked := t.cur.Val
	if tracked.IsNative() {
		// native coins are spent directly, no approval involved
		t.state.Set(State{Status: core.StatusReady, Allowance: unlimited})
		return
	}

	t.state.Set(State{Status: core.StatusLoading})
	t.gen++
	gen := t.gen
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	go func() {
		amount, err := t.querier.Allowance(ctx, t.owner, t.spender, tracked)
		imetrics.AllowanceQueries.Inc()

		t.mu.Lock()
		defer t.mu.Unlock()
		if t.disposed || gen != t.gen {
			return
		}
		if err != nil {
			t.log.Warn("allowance query failed", zap.String("asset", tracked.Symbol), zap.Error(err))
			t.state.Set(State{Status: core.StatusNotReady, Err: errors.Wrap(err, "allowance query")})
			return
		}
		t.state.Set(State{Status: core.StatusReady, Allowance: amount})
	}()
}

// ApproveData builds the approval descriptor for amount, or nil when no
// asset is tracked, the asset is native, or the allowance already covers
// the amount.
func (t *Tracker) ApproveData(amount *big.Int) *ApproveData {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.cur.OK || t.cur.Val.IsNative() || amount == nil {
		return nil
	}
	st := t.state.Get()
	if st.Status != core.StatusReady || st.Allowance == nil {
		return nil
	}
	if st.Allowance.Cmp(amount) >= 0 {
		return nil
	}
	return &ApproveData{Asset: t.cur.Val, Spender: t.spender, Amount: amount}
}

func (t *Tracker) Dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.mu.Unlock()
	t.state.Close()
}

func optEqual(cur obs.Opt[asset.Asset], a *asset.Asset) bool {
	if !cur.OK || a == nil {
		return !cur.OK && a == nil
	}
	return asset.Equal(cur.Val, *a)
}
