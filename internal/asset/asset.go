package asset

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type Chain string

const (
	ChainEthereum          Chain = "ethereum"
	ChainBinanceSmartChain Chain = "binanceSmartChain"
)

// Asset identifies a tradable token on a chain. Contract is nil for the
// native coin. Values are immutable after construction.
type Asset struct {
	Symbol   string
	Chain    Chain
	Contract *common.Address
	Decimals int
}

func Native(symbol string, chain Chain, decimals int) Asset {
	return Asset{Symbol: symbol, Chain: chain, Decimals: decimals}
}

func Token(symbol string, chain Chain, contract common.Address, decimals int) Asset {
	return Asset{Symbol: symbol, Chain: chain, Contract: &contract, Decimals: decimals}
}

func (a Asset) IsNative() bool { return a.Contract == nil }

func (a Asset) String() string {
	if a.IsNative() {
		return fmt.Sprintf("%s(%s)", a.Symbol, a.Chain)
	}
	return fmt.Sprintf("%s(%s %s)", a.Symbol, a.Chain, a.Contract.Hex())
}

// Equal compares by chain and contract identity, not by symbol.
func Equal(a, b Asset) bool {
	if a.Chain != b.Chain {
		return false
	}
	if (a.Contract == nil) != (b.Contract == nil) {
		return false
	}
	if a.Contract == nil {
		return true
	}
	return *a.Contract == *b.Contract
}

// AmountsEqual reports numeric equality, treating two nils as equal.
func AmountsEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}

// ParseUnits scales a decimal quantity into base units.
func ParseUnits(qty float64, decimals int) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(qty), big.NewFloat(math.Pow10(decimals)))
	out := new(big.Int)
	scaled.Int(out)
	return out
}

// FormatUnits converts base units back to a decimal quantity.
func FormatUnits(x *big.Int, decimals int) float64 {
	if x == nil {
		return 0
	}
	f := new(big.Float).SetInt(x)
	f.Quo(f, big.NewFloat(math.Pow10(decimals)))
	val, _ := f.Float64()
	return val
}
