// Package settings holds the user-tunable trade options fed into trade
// computation: allowed slippage, transaction deadline and an optional
// alternate recipient.
package settings

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

const (
	DefaultSlippagePct = 0.5
	DefaultTTL         = 20 * time.Minute
)

type TradeOptions struct {
	// SlippagePct widens the counter-amount bound: minimum received for
	// exact-in trades, maximum paid for exact-out.
	SlippagePct float64
	// TTL is added to the current time to form the on-chain deadline.
	TTL time.Duration
	// Recipient overrides the owner address as the swap output target.
	// Nil means "send to owner".
	Recipient *common.Address
}

func Default() TradeOptions {
	return TradeOptions{SlippagePct: DefaultSlippagePct, TTL: DefaultTTL}
}

// ErrInvalidRecipient marks a recipient string that failed address
// validation. It surfaces as a validation error on the trade adapter, never
// as a panic.
var ErrInvalidRecipient = errors.New("invalid recipient address")

// ParseRecipient validates s as an EVM address. Mixed-case input must carry a
// correct EIP-55 checksum; all-lower or all-upper input is accepted as is.
func ParseRecipient(s string) (common.Address, error) {
	trimmed := strings.TrimSpace(s)
	checksummed, err := ChecksumAddress(trimmed)
	if err != nil {
		return common.Address{}, errors.Wrap(ErrInvalidRecipient, err.Error())
	}
	bare := strings.TrimPrefix(trimmed, "0x")
	bare = strings.TrimPrefix(bare, "0X")
	if bare != strings.ToLower(bare) && bare != strings.ToUpper(bare) {
		if "0x"+bare != checksummed {
			return common.Address{}, errors.Wrap(ErrInvalidRecipient, "checksum mismatch")
		}
	}
	return common.HexToAddress(checksummed), nil
}

// WithRecipient returns a copy of o with the recipient parsed from s, or the
// validation error.
func (o TradeOptions) WithRecipient(s string) (TradeOptions, error) {
	if strings.TrimSpace(s) == "" {
		o.Recipient = nil
		return o, nil
	}
	addr, err := ParseRecipient(s)
	if err != nil {
		return o, err
	}
	o.Recipient = &addr
	return o, nil
}
