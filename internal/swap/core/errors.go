package core

import "github.com/pkg/errors"

// Business-rule errors. These drive action-button state downstream instead
// of free-text display, so they carry distinct identities.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrForbiddenPriceImpact  = errors.New("forbidden price impact")
)

// Validation/computation errors raised by trade providers.
var (
	ErrNoLiquidity  = errors.New("no liquidity for pair")
	ErrInvalidAsset = errors.New("asset not tradable on this provider")
)

// IsBlocking reports whether err is a business-rule error with dedicated
// action treatment rather than a displayable message.
func IsBlocking(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInsufficientAllowance) ||
		errors.Is(err, ErrForbiddenPriceImpact)
}

// DisplayErrors filters errs down to those surfaced as text: everything
// except blocking errors, which drive button state instead.
func DisplayErrors(errs []error) []error {
	out := make([]error, 0, len(errs))
	for _, e := range errs {
		if !IsBlocking(e) {
			out = append(out, e)
		}
	}
	return out
}

func containsErr(errs []error, target error) bool {
	for _, e := range errs {
		if errors.Is(e, target) {
			return true
		}
	}
	return false
}

// HasError reports whether errs contains target (by errors.Is).
func HasError(errs []error, target error) bool { return containsErr(errs, target) }
