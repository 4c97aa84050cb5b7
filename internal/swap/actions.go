package swap

import "github.com/you/swap-engine/internal/swap/core"

type ActionKind int

const (
	ActionHidden ActionKind = iota
	ActionEnabled
	ActionDisabled
)

// ActionState describes one UI action: hidden, tappable, or visible but
// inactive with an explanatory label.
type ActionState struct {
	Kind  ActionKind
	Label string
}

const (
	labelProceed             = "Proceed"
	labelApprove             = "Approve"
	labelApproving           = "Approving"
	labelInsufficientBalance = "Insufficient balance"
	labelHighPriceImpact     = "High price impact"
)

func hidden() ActionState               { return ActionState{Kind: ActionHidden} }
func enabled(label string) ActionState  { return ActionState{Kind: ActionEnabled, Label: label} }
func disabled(label string) ActionState { return ActionState{Kind: ActionDisabled, Label: label} }

// syncActionsLocked derives the proceed/approve buttons from the current
// verdict. Pure function of state, recomputed on every pass.
func (s *Service) syncActionsLocked() {
	serviceState := s.state.Get()
	adapterState := s.adapter.State().Get()
	errs := s.errs.Get()
	isPending := s.pending.IsPending().Get()

	var proceed ActionState
	switch {
	case serviceState.Status == core.StatusReady:
		proceed = enabled(labelProceed)
	case adapterState.Status == core.StatusReady:
		switch {
		case core.HasError(errs, core.ErrInsufficientBalance):
			proceed = disabled(labelInsufficientBalance)
		case core.HasError(errs, core.ErrForbiddenPriceImpact):
			proceed = disabled(labelHighPriceImpact)
		case isPending:
			proceed = hidden()
		default:
			proceed = disabled(labelProceed)
		}
	default:
		proceed = hidden()
	}
	s.proceed.Set(proceed)

	var approve ActionState
	switch {
	case adapterState.Status != core.StatusReady,
		core.HasError(errs, core.ErrInsufficientBalance),
		core.HasError(errs, core.ErrForbiddenPriceImpact):
		approve = hidden()
	case isPending:
		approve = disabled(labelApproving)
	case core.HasError(errs, core.ErrInsufficientAllowance):
		approve = enabled(labelApprove)
	default:
		approve = hidden()
	}
	s.approve.Set(approve)
}
