package asset

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

var usdcAddr = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

func TestEqualByChainAndContract(t *testing.T) {
	usdc := Token("USDC", ChainEthereum, usdcAddr, 6)
	renamed := Token("USD-Coin", ChainEthereum, usdcAddr, 6)
	eth := Native("ETH", ChainEthereum, 18)
	bnb := Native("BNB", ChainBinanceSmartChain, 18)

	assert.True(t, Equal(usdc, renamed), "symbol must not matter")
	assert.True(t, Equal(eth, eth))
	assert.False(t, Equal(usdc, eth))
	assert.False(t, Equal(eth, bnb), "different chain natives are distinct")

	bscUSDC := Token("USDC", ChainBinanceSmartChain, usdcAddr, 18)
	assert.False(t, Equal(usdc, bscUSDC), "same contract on another chain is distinct")
}

func TestAmountsEqual(t *testing.T) {
	assert.True(t, AmountsEqual(nil, nil))
	assert.False(t, AmountsEqual(big.NewInt(1), nil))
	assert.False(t, AmountsEqual(nil, big.NewInt(1)))
	assert.True(t, AmountsEqual(big.NewInt(100), big.NewInt(100)))
	assert.False(t, AmountsEqual(big.NewInt(100), big.NewInt(101)))
}

func TestParseFormatUnits(t *testing.T) {
	assert.Equal(t, big.NewInt(1_500_000), ParseUnits(1.5, 6))
	assert.InDelta(t, 1.5, FormatUnits(big.NewInt(1_500_000), 6), 1e-12)
	assert.Equal(t, 0.0, FormatUnits(nil, 18))
}

func TestIsNative(t *testing.T) {
	assert.True(t, Native("ETH", ChainEthereum, 18).IsNative())
	assert.False(t, Token("USDC", ChainEthereum, usdcAddr, 6).IsNative())
}
