package allowance

import (
	"sync"

	"github.com/you/swap-engine/internal/asset"
	"github.com/you/swap-engine/internal/obs"
)

// PendingTracker tracks whether an approval transaction is in flight,
// independent of the allowance value itself. Allowance reads lag behind
// submitted approvals; without this window the readiness verdict would
// flicker back to "needs approval" right after approving.
type PendingTracker struct {
	allowance *Tracker

	mu       sync.Mutex
	cur      obs.Opt[asset.Asset]
	disposed bool

	pending *obs.Value[bool]
}

func NewPendingTracker(allowance *Tracker) *PendingTracker {
	return &PendingTracker{
		allowance: allowance,
		pending:   obs.NewValue(false),
	}
}

func (p *PendingTracker) IsPending() *obs.Value[bool] { return p.pending }

// Set switches the tracked asset; a pending approval for a previous asset
// is irrelevant to the new one.
func (p *PendingTracker) Set(a *asset.Asset) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed || optEqual(p.cur, a) {
		return
	}
	p.cur = obs.Ptr(a)
	if p.pending.Get() {
		p.pending.Set(false)
	}
}

// MarkPending records that an approval transaction was submitted.
func (p *PendingTracker) MarkPending() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	if !p.pending.Get() {
		p.pending.Set(true)
	}
}

// SyncAllowance is the confirmation feedback hook: it clears the pending
// window and forces the allowance tracker to re-query.
func (p *PendingTracker) SyncAllowance() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	if p.pending.Get() {
		p.pending.Set(false)
	}
	p.mu.Unlock()

	p.allowance.Resync()
}

func (p *PendingTracker) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	p.mu.Unlock()
	p.pending.Close()
}
