package swap

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/you/swap-engine/internal/allowance"
	"github.com/you/swap-engine/internal/asset"
	imetrics "github.com/you/swap-engine/internal/metrics"
	"github.com/you/swap-engine/internal/obs"
	"github.com/you/swap-engine/internal/swap/core"
)

// State is the unified readiness verdict. Payload is set only for
// StatusReady.
type State struct {
	Status  core.Status
	Payload *core.TxPayload
}

// Service reconciles trade adapter state, allowance state, the
// pending-approval flag and wallet balances into one readiness verdict and
// one ordered error list. It holds no source-of-truth state of its own;
// every output is recomputed from the latest input snapshots.
type Service struct {
	adapter   core.Adapter
	allowance *allowance.Tracker
	pending   *allowance.PendingTracker
	balances  core.BalanceLookup
	owner     common.Address
	log       *zap.Logger

	mu       sync.Mutex
	disposed bool
	balGen   [2]int // per-side balance fetch generation

	state       *obs.Value[State]
	errs        *obs.Value[[]error]
	balanceFrom *obs.Value[obs.Opt[*big.Int]]
	balanceTo   *obs.Value[obs.Opt[*big.Int]]
	proceed     *obs.Value[ActionState]
	approve     *obs.Value[ActionState]

	balCh  chan balanceResult
	stop   chan struct{}
	unsubs []func()
}

const (
	sideFrom = 0
	sideTo   = 1
)

type balanceResult struct {
	side    int
	gen     int
	balance obs.Opt[*big.Int]
}

// NewService starts the reconciliation loop. Dispose releases it together
// with the adapter and trackers it composes.
func NewService(adapter core.Adapter, allowanceTracker *allowance.Tracker, pendingTracker *allowance.PendingTracker, balances core.BalanceLookup, owner common.Address, log *zap.Logger) *Service {
	s := &Service{
		adapter:     adapter,
		allowance:   allowanceTracker,
		pending:     pendingTracker,
		balances:    balances,
		owner:       owner,
		log:         log,
		state:       obs.NewValue(State{Status: core.StatusNotReady}),
		errs:        obs.NewValue([]error{}),
		balanceFrom: obs.NewValue(obs.None[*big.Int]()),
		balanceTo:   obs.NewValue(obs.None[*big.Int]()),
		proceed:     obs.NewValue(hidden()),
		approve:     obs.NewValue(hidden()),
		balCh:       make(chan balanceResult, 8),
		stop:        make(chan struct{}),
	}

	adapterState, u1 := adapter.State().Subscribe(64)
	fromAssetCh, u2 := adapter.FromAsset().Subscribe(64)
	toAssetCh, u3 := adapter.ToAsset().Subscribe(64)
	fromAmountCh, u4 := adapter.FromAmount().Subscribe(64)
	allowanceCh, u5 := allowanceTracker.State().Subscribe(64)
	pendingCh, u6 := pendingTracker.IsPending().Subscribe(64)
	s.unsubs = []func(){u1, u2, u3, u4, u5, u6}

	go func() {
		for {
			select {
			case <-s.stop:
				return
			case <-adapterState:
				s.recompute()
			case a := <-fromAssetCh:
				s.onFromAsset(a)
			case a := <-toAssetCh:
				s.onToAsset(a)
			case <-fromAmountCh:
				s.recompute()
			case <-allowanceCh:
				s.recompute()
			case <-pendingCh:
				s.recompute()
			case r := <-s.balCh:
				s.onBalance(r)
			}
		}
	}()

	// seed from the adapter's current snapshot
	s.onFromAsset(adapter.FromAsset().Get())
	s.onToAsset(adapter.ToAsset().Get())

	return s
}

//region outputs

func (s *Service) State() *obs.Value[State]                   { return s.state }
func (s *Service) Errors() *obs.Value[[]error]                { return s.errs }
func (s *Service) BalanceFrom() *obs.Value[obs.Opt[*big.Int]] { return s.balanceFrom }
func (s *Service) BalanceTo() *obs.Value[obs.Opt[*big.Int]]   { return s.balanceTo }
func (s *Service) ProceedAction() *obs.Value[ActionState]     { return s.proceed }
func (s *Service) ApproveAction() *obs.Value[ActionState]     { return s.approve }

// DisplayError is the single user-facing message: head of the error list
// after dropping errors with dedicated action-state treatment.
func (s *Service) DisplayError() error {
	filtered := core.DisplayErrors(s.errs.Get())
	if len(filtered) == 0 {
		return nil
	}
	return filtered[0]
}

// ApproveData derives the approval descriptor for the full from-side
// balance, or nil when approving is not applicable right now.
func (s *Service) ApproveData() *allowance.ApproveData {
	bal := s.balanceFrom.Get()
	if !bal.OK {
		return nil
	}
	return s.allowance.ApproveData(bal.Val)
}

//endregion

func (s *Service) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.mu.Unlock()

	close(s.stop)
	for _, u := range s.unsubs {
		u()
	}
	s.adapter.Dispose()
	s.allowance.Dispose()
	s.pending.Dispose()

	s.state.Close()
	s.errs.Close()
	s.balanceFrom.Close()
	s.balanceTo.Close()
	s.proceed.Close()
	s.approve.Close()
}

func (s *Service) onFromAsset(a obs.Opt[asset.Asset]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.fetchBalanceLocked(sideFrom, a)
	var sel *asset.Asset
	if a.OK {
		v := a.Val
		sel = &v
	}
	s.allowance.Set(sel)
	s.pending.Set(sel)
	s.syncStateLocked()
}

func (s *Service) onToAsset(a obs.Opt[asset.Asset]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.fetchBalanceLocked(sideTo, a)
	s.syncStateLocked()
}

// fetchBalanceLocked takes a one-shot balance snapshot for the side's new
// asset. The balance is unknown until the lookup lands.
func (s *Service) fetchBalanceLocked(side int, a obs.Opt[asset.Asset]) {
	s.balGen[side]++
	gen := s.balGen[side]

	target := s.balanceFrom
	if side == sideTo {
		target = s.balanceTo
	}
	target.Set(obs.None[*big.Int]())

	if !a.OK {
		return
	}
	go func(a asset.Asset) {
		bal, err := s.balances.Balance(context.Background(), s.owner, a)
		res := balanceResult{side: side, gen: gen}
		if err != nil {
			s.log.Warn("balance lookup failed", zap.String("asset", a.Symbol), zap.Error(err))
		} else {
			res.balance = obs.Some(bal)
		}
		select {
		case s.balCh <- res:
		case <-s.stop:
		}
	}(a.Val)
}

func (s *Service) onBalance(r balanceResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || r.gen != s.balGen[r.side] {
		return
	}
	if r.side == sideFrom {
		s.balanceFrom.Set(r.balance)
	} else {
		s.balanceTo.Set(r.balance)
	}
	s.syncStateLocked()
}

func (s *Service) recompute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.syncStateLocked()
}

// syncStateLocked is the reconciliation algorithm. The error list is rebuilt
// from scratch every pass in a fixed append order: trade-adapter errors,
// then allowance, then balance. That order decides which message a UI that
// only shows the head of the list surfaces first.
func (s *Service) syncStateLocked() {
	imetrics.Recomputes.Inc()

	allErrors := make([]error, 0, 4)
	loading := false
	var payload *core.TxPayload

	adapterState := s.adapter.State().Get()
	switch adapterState.Status {
	case core.StatusLoading:
		loading = true
	case core.StatusReady:
		payload = adapterState.Payload
	}
	allErrors = append(allErrors, s.adapter.Errors().Get()...)

	allowanceState := s.allowance.State().Get()
	switch allowanceState.Status {
	case core.StatusLoading:
		loading = true
	case core.StatusReady:
		if fromAmount := s.adapter.FromAmount().Get(); fromAmount.OK &&
			allowanceState.Allowance != nil &&
			fromAmount.Val.Cmp(allowanceState.Allowance) > 0 {
			allErrors = append(allErrors, core.ErrInsufficientAllowance)
		}
	case core.StatusNotReady:
		if allowanceState.Err != nil {
			allErrors = append(allErrors, allowanceState.Err)
		}
	}

	if fromAmount := s.adapter.FromAmount().Get(); fromAmount.OK {
		if bal := s.balanceFrom.Get(); !bal.OK || bal.Val.Cmp(fromAmount.Val) < 0 {
			allErrors = append(allErrors, core.ErrInsufficientBalance)
		}
	}

	if s.pending.IsPending().Get() {
		loading = true
	}

	s.errs.Set(allErrors)

	var next State
	switch {
	case loading:
		next = State{Status: core.StatusLoading}
	case len(allErrors) == 0 && payload != nil:
		next = State{Status: core.StatusReady, Payload: payload}
	default:
		next = State{Status: core.StatusNotReady}
	}
	s.state.Set(next)

	if next.Status == core.StatusReady {
		imetrics.TradeReady.Set(1)
	} else {
		imetrics.TradeReady.Set(0)
	}

	s.syncActionsLocked()
}
