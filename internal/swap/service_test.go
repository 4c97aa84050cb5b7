package swap

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/you/swap-engine/internal/allowance"
	"github.com/you/swap-engine/internal/asset"
	"github.com/you/swap-engine/internal/obs"
	"github.com/you/swap-engine/internal/swap/core"
)

var svcOwner = common.HexToAddress("0x1111111111111111111111111111111111111111")

// stubAdapter is a hand-driven core.Adapter: tests set its observables
// directly instead of going through a provider.
type stubAdapter struct {
	state      *obs.Value[core.AdapterState]
	errs       *obs.Value[[]error]
	fromAsset  *obs.Value[obs.Opt[asset.Asset]]
	fromAmount *obs.Value[obs.Opt[*big.Int]]
	toAsset    *obs.Value[obs.Opt[asset.Asset]]
	toAmount   *obs.Value[obs.Opt[*big.Int]]
	direction  *obs.Value[core.AmountDirection]
}

func newStubAdapter() *stubAdapter {
	return &stubAdapter{
		state:      obs.NewValue(core.NotReady()),
		errs:       obs.NewValue([]error{}),
		fromAsset:  obs.NewValue(obs.None[asset.Asset]()),
		fromAmount: obs.NewValue(obs.None[*big.Int]()),
		toAsset:    obs.NewValue(obs.None[asset.Asset]()),
		toAmount:   obs.NewValue(obs.None[*big.Int]()),
		direction:  obs.NewValue(core.ExactIn),
	}
}

func (a *stubAdapter) RouterAddress() common.Address                 { return testRouter }
func (a *stubAdapter) State() *obs.Value[core.AdapterState]          { return a.state }
func (a *stubAdapter) Errors() *obs.Value[[]error]                   { return a.errs }
func (a *stubAdapter) FromAsset() *obs.Value[obs.Opt[asset.Asset]]   { return a.fromAsset }
func (a *stubAdapter) FromAmount() *obs.Value[obs.Opt[*big.Int]]     { return a.fromAmount }
func (a *stubAdapter) ToAsset() *obs.Value[obs.Opt[asset.Asset]]     { return a.toAsset }
func (a *stubAdapter) ToAmount() *obs.Value[obs.Opt[*big.Int]]       { return a.toAmount }
func (a *stubAdapter) Direction() *obs.Value[core.AmountDirection]   { return a.direction }
func (a *stubAdapter) SelectFromAsset(*asset.Asset)                  {}
func (a *stubAdapter) SelectToAsset(*asset.Asset)                    {}
func (a *stubAdapter) EnterFromAmount(*big.Int)                      {}
func (a *stubAdapter) EnterToAmount(*big.Int)                        {}
func (a *stubAdapter) SwitchAssets()                                 {}
func (a *stubAdapter) Dispose()                                      {}

type svcChain struct {
	mu        sync.Mutex
	allowance *big.Int
	balances  map[string]*big.Int
	balErr    error
}

func (c *svcChain) Allowance(context.Context, common.Address, common.Address, asset.Asset) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allowance, nil
}

func (c *svcChain) Balance(_ context.Context, _ common.Address, a asset.Asset) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balErr != nil {
		return nil, c.balErr
	}
	return c.balances[a.Symbol], nil
}

func (c *svcChain) setAllowance(v *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowance = v
}

type svcFixture struct {
	adapter *stubAdapter
	chain   *svcChain
	pending *allowance.PendingTracker
	svc     *Service
}

// newSvcFixture builds a service over a USDC->WETH session with the typed
// amount already entered and the adapter Ready.
func newSvcFixture(t *testing.T, allowanceAmt, balanceAmt, fromAmt *big.Int) *svcFixture {
	t.Helper()

	a := newStubAdapter()
	a.fromAsset.Set(obs.Some(usdcAsset))
	a.toAsset.Set(obs.Some(wethAsset))
	a.fromAmount.Set(obs.Some(fromAmt))
	a.state.Set(core.Ready(
		&core.TradeQuote{FromAsset: usdcAsset, ToAsset: wethAsset, FromAmount: fromAmt, Direction: core.ExactIn},
		&core.TxPayload{To: testRouter, Value: big.NewInt(0), Data: []byte{0xde, 0xad}},
	))

	chain := &svcChain{
		allowance: allowanceAmt,
		balances:  map[string]*big.Int{"USDC": balanceAmt},
	}

	tracker := allowance.NewTracker(chain, svcOwner, testRouter, zap.NewNop())
	pending := allowance.NewPendingTracker(tracker)
	svc := NewService(a, tracker, pending, chain, svcOwner, zap.NewNop())
	t.Cleanup(svc.Dispose)

	return &svcFixture{adapter: a, chain: chain, pending: pending, svc: svc}
}

func waitSvcStatus(t *testing.T, svc *Service, want core.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return svc.State().Get().Status == want
	}, 2*time.Second, 5*time.Millisecond, "service never reached %v", want)
}

func waitSvcError(t *testing.T, svc *Service, target error) {
	t.Helper()
	require.Eventually(t, func() bool {
		return core.HasError(svc.Errors().Get(), target)
	}, 2*time.Second, 5*time.Millisecond, "service never surfaced %v", target)
}

func TestServiceReady(t *testing.T) {
	f := newSvcFixture(t, big.NewInt(1000), big.NewInt(200), big.NewInt(100))

	waitSvcStatus(t, f.svc, core.StatusReady)

	st := f.svc.State().Get()
	require.NotNil(t, st.Payload)
	assert.Empty(t, f.svc.Errors().Get())
	assert.NoError(t, f.svc.DisplayError())

	assert.Equal(t, ActionState{Kind: ActionEnabled, Label: "Proceed"}, f.svc.ProceedAction().Get())
	assert.Equal(t, ActionState{Kind: ActionHidden}, f.svc.ApproveAction().Get())

	bal := f.svc.BalanceFrom().Get()
	require.True(t, bal.OK)
	assert.Equal(t, int64(200), bal.Val.Int64())
}

func TestServiceInsufficientAllowance(t *testing.T) {
	f := newSvcFixture(t, big.NewInt(50), big.NewInt(200), big.NewInt(100))

	waitSvcError(t, f.svc, core.ErrInsufficientAllowance)
	waitSvcStatus(t, f.svc, core.StatusNotReady)

	// blocking errors drive buttons, not display text
	assert.NoError(t, f.svc.DisplayError())
	assert.Equal(t, ActionState{Kind: ActionDisabled, Label: "Proceed"}, f.svc.ProceedAction().Get())
	assert.Equal(t, ActionState{Kind: ActionEnabled, Label: "Approve"}, f.svc.ApproveAction().Get())
}

func TestServiceErrorOrderingAllowanceBeforeBalance(t *testing.T) {
	f := newSvcFixture(t, big.NewInt(50), big.NewInt(10), big.NewInt(100))

	waitSvcError(t, f.svc, core.ErrInsufficientBalance)
	waitSvcError(t, f.svc, core.ErrInsufficientAllowance)

	errs := f.svc.Errors().Get()
	require.Len(t, errs, 2)
	assert.Equal(t, core.ErrInsufficientAllowance, errs[0])
	assert.Equal(t, core.ErrInsufficientBalance, errs[1])

	// balance shortfall outranks approval on the proceed button
	assert.Equal(t, ActionState{Kind: ActionDisabled, Label: "Insufficient balance"}, f.svc.ProceedAction().Get())
	assert.Equal(t, ActionState{Kind: ActionHidden}, f.svc.ApproveAction().Get())
}

func TestServiceApprovalLifecycle(t *testing.T) {
	f := newSvcFixture(t, big.NewInt(50), big.NewInt(200), big.NewInt(100))

	waitSvcError(t, f.svc, core.ErrInsufficientAllowance)
	require.Equal(t, ActionState{Kind: ActionEnabled, Label: "Approve"}, f.svc.ApproveAction().Get())

	// the approval descriptor needs the balance snapshot to have landed
	require.Eventually(t, func() bool {
		return f.svc.ApproveData() != nil
	}, 2*time.Second, 5*time.Millisecond)
	ad := f.svc.ApproveData()
	assert.True(t, asset.Equal(usdcAsset, ad.Asset))
	assert.Equal(t, testRouter, ad.Spender)
	assert.Equal(t, int64(200), ad.Amount.Int64(), "approval covers the full balance")

	// approval submitted: the window between send and confirmation is loading
	f.pending.MarkPending()
	waitSvcStatus(t, f.svc, core.StatusLoading)
	require.Eventually(t, func() bool {
		return f.svc.ApproveAction().Get() == ActionState{Kind: ActionDisabled, Label: "Approving"}
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, ActionState{Kind: ActionHidden}, f.svc.ProceedAction().Get())

	// confirmation lands, allowance re-queries to the approved value
	f.chain.setAllowance(big.NewInt(1000))
	f.pending.SyncAllowance()

	waitSvcStatus(t, f.svc, core.StatusReady)
	assert.Equal(t, ActionState{Kind: ActionEnabled, Label: "Proceed"}, f.svc.ProceedAction().Get())
	assert.Equal(t, ActionState{Kind: ActionHidden}, f.svc.ApproveAction().Get())
}

func TestServiceForbiddenImpact(t *testing.T) {
	f := newSvcFixture(t, big.NewInt(1000), big.NewInt(200), big.NewInt(100))
	waitSvcStatus(t, f.svc, core.StatusReady)

	f.adapter.errs.Set([]error{core.ErrForbiddenPriceImpact})

	waitSvcStatus(t, f.svc, core.StatusNotReady)
	waitSvcError(t, f.svc, core.ErrForbiddenPriceImpact)
	assert.Equal(t, ActionState{Kind: ActionDisabled, Label: "High price impact"}, f.svc.ProceedAction().Get())
	assert.Equal(t, ActionState{Kind: ActionHidden}, f.svc.ApproveAction().Get())
}

func TestServiceAdapterLoadingPropagates(t *testing.T) {
	f := newSvcFixture(t, big.NewInt(1000), big.NewInt(200), big.NewInt(100))
	waitSvcStatus(t, f.svc, core.StatusReady)

	f.adapter.state.Set(core.Loading())
	waitSvcStatus(t, f.svc, core.StatusLoading)

	assert.Equal(t, ActionState{Kind: ActionHidden}, f.svc.ProceedAction().Get())
}

func TestServiceUnknownBalanceBlocks(t *testing.T) {
	a := newStubAdapter()
	a.fromAsset.Set(obs.Some(usdcAsset))
	a.toAsset.Set(obs.Some(wethAsset))
	a.fromAmount.Set(obs.Some(big.NewInt(100)))
	a.state.Set(core.Ready(&core.TradeQuote{}, &core.TxPayload{}))

	chain := &svcChain{allowance: big.NewInt(1000), balErr: errors.New("rpc down")}
	tracker := allowance.NewTracker(chain, svcOwner, testRouter, zap.NewNop())
	pending := allowance.NewPendingTracker(tracker)
	svc := NewService(a, tracker, pending, chain, svcOwner, zap.NewNop())
	t.Cleanup(svc.Dispose)

	// with the balance unknown the typed amount cannot be proven affordable
	waitSvcError(t, svc, core.ErrInsufficientBalance)
	waitSvcStatus(t, svc, core.StatusNotReady)
	assert.False(t, svc.BalanceFrom().Get().OK)
}

func TestServiceDisplayErrorPassesThroughNonBlocking(t *testing.T) {
	f := newSvcFixture(t, big.NewInt(1000), big.NewInt(200), big.NewInt(100))
	waitSvcStatus(t, f.svc, core.StatusReady)

	f.adapter.errs.Set([]error{core.ErrNoLiquidity})
	f.adapter.state.Set(core.NotReady())

	waitSvcError(t, f.svc, core.ErrNoLiquidity)
	assert.Equal(t, core.ErrNoLiquidity, f.svc.DisplayError())
}

func TestServiceNoAmountNoErrors(t *testing.T) {
	a := newStubAdapter()
	a.fromAsset.Set(obs.Some(usdcAsset))
	a.toAsset.Set(obs.Some(wethAsset))

	chain := &svcChain{allowance: big.NewInt(1000), balances: map[string]*big.Int{"USDC": big.NewInt(200)}}
	tracker := allowance.NewTracker(chain, svcOwner, testRouter, zap.NewNop())
	pending := allowance.NewPendingTracker(tracker)
	svc := NewService(a, tracker, pending, chain, svcOwner, zap.NewNop())
	t.Cleanup(svc.Dispose)

	// nothing typed yet: not ready, but clean
	require.Eventually(t, func() bool {
		bal := svc.BalanceFrom().Get()
		return bal.OK && bal.Val.Int64() == 200
	}, 2*time.Second, 5*time.Millisecond)

	waitSvcStatus(t, svc, core.StatusNotReady)
	assert.Empty(t, svc.Errors().Get())
	assert.Equal(t, ActionState{Kind: ActionHidden}, svc.ProceedAction().Get())
}
