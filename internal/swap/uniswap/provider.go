// Package uniswap implements the quote provider for Uniswap-style
// constant-product routers and registers the trade adapter for the
// (blockchain, provider) pairings it serves.
package uniswap

import (
	"context"
	"math"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"github.com/you/swap-engine/internal/asset"
	"github.com/you/swap-engine/internal/settings"
	"github.com/you/swap-engine/internal/swap/core"
)

const factoryABI = `[
 {"inputs":[{"internalType":"address","name":"","type":"address"},{"internalType":"address","name":"","type":"address"}],"name":"getPair","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const pairABI = `[
 {"inputs":[],"name":"getReserves","outputs":[{"internalType":"uint112","name":"reserve0","type":"uint112"},{"internalType":"uint112","name":"reserve1","type":"uint112"},{"internalType":"uint32","name":"blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"},
 {"inputs":[],"name":"token0","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const routerABI = `[
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"},{"internalType":"uint256","name":"amountInMax","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapTokensForExactTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactETHForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"payable","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapETHForExactTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"payable","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForETH","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"},{"internalType":"uint256","name":"amountInMax","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapTokensForExactETH","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

// Source is the reserve snapshot for one pair, aligned to the from->to
// direction. It is owned by the adapter that fetched it and discarded on
// every pair change or head tick.
type Source struct {
	from, to   asset.Asset
	pair       common.Address
	reserveIn  *big.Int
	reserveOut *big.Int
	block      uint64
}

func (s *Source) Pair() (asset.Asset, asset.Asset) { return s.from, s.to }
func (s *Source) BlockNumber() uint64              { return s.block }

// Provider quotes trades against a v2-style router. Fetching hits the chain;
// trade derivation is pure local math over the fetched reserves.
type Provider struct {
	ec      *ethclient.Client
	router  common.Address
	factory common.Address
	wrapped common.Address
	owner   common.Address

	factoryABI abi.ABI
	pairABI    abi.ABI
	routerABI  abi.ABI
}

func NewProvider(ec *ethclient.Client, router, factory, wrapped, owner common.Address) (*Provider, error) {
	fABI, err := abi.JSON(strings.NewReader(factoryABI))
	if err != nil {
		return nil, errors.Wrap(err, "factory abi")
	}
	pABI, err := abi.JSON(strings.NewReader(pairABI))
	if err != nil {
		return nil, errors.Wrap(err, "pair abi")
	}
	rABI, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, errors.Wrap(err, "router abi")
	}
	return &Provider{
		ec:         ec,
		router:     router,
		factory:    factory,
		wrapped:    wrapped,
		owner:      owner,
		factoryABI: fABI,
		pairABI:    pABI,
		routerABI:  rABI,
	}, nil
}

func (p *Provider) RouterAddress() common.Address { return p.router }

// tokenAddress maps an asset onto its ERC-20 address, substituting the
// wrapped token for the native asset.
func (p *Provider) tokenAddress(a asset.Asset) common.Address {
	if a.IsNative() {
		return p.wrapped
	}
	return *a.Contract
}

func (p *Provider) FetchQuoteSource(ctx context.Context, from, to asset.Asset) (core.QuoteSource, error) {
	tokenIn := p.tokenAddress(from)
	tokenOut := p.tokenAddress(to)
	if tokenIn == tokenOut {
		return nil, core.ErrInvalidAsset
	}

	data, err := p.factoryABI.Pack("getPair", tokenIn, tokenOut)
	if err != nil {
		return nil, errors.Wrap(err, "pack getPair")
	}
	raw, err := p.ec.CallContract(ctx, ethereum.CallMsg{To: &p.factory, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "call getPair")
	}
	outs, err := p.factoryABI.Methods["getPair"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return nil, errors.New("decode getPair")
	}
	pairAddr := outs[0].(common.Address)
	if pairAddr == (common.Address{}) {
		return nil, core.ErrNoLiquidity
	}

	token0, err := p.fetchToken0(ctx, pairAddr)
	if err != nil {
		return nil, err
	}
	r0, r1, err := p.fetchReserves(ctx, pairAddr)
	if err != nil {
		return nil, err
	}
	if r0.Sign() == 0 || r1.Sign() == 0 {
		return nil, core.ErrNoLiquidity
	}

	reserveIn, reserveOut := r0, r1
	if token0 != tokenIn {
		reserveIn, reserveOut = r1, r0
	}

	block, err := p.ec.BlockNumber(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "block number")
	}

	return &Source{
		from:       from,
		to:         to,
		pair:       pairAddr,
		reserveIn:  reserveIn,
		reserveOut: reserveOut,
		block:      block,
	}, nil
}

func (p *Provider) fetchToken0(ctx context.Context, pair common.Address) (common.Address, error) {
	data, _ := p.pairABI.Pack("token0")
	raw, err := p.ec.CallContract(ctx, ethereum.CallMsg{To: &pair, Data: data}, nil)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "call token0")
	}
	outs, err := p.pairABI.Methods["token0"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return common.Address{}, errors.New("decode token0")
	}
	return outs[0].(common.Address), nil
}

func (p *Provider) fetchReserves(ctx context.Context, pair common.Address) (*big.Int, *big.Int, error) {
	data, _ := p.pairABI.Pack("getReserves")
	raw, err := p.ec.CallContract(ctx, ethereum.CallMsg{To: &pair, Data: data}, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "call getReserves")
	}
	outs, err := p.pairABI.Methods["getReserves"].Outputs.Unpack(raw)
	if err != nil || len(outs) < 2 {
		return nil, nil, errors.New("decode getReserves")
	}
	return outs[0].(*big.Int), outs[1].(*big.Int), nil
}

// ComputeTrade derives the counter amount, execution price, price impact and
// slippage bound from the snapshot. No network calls.
func (p *Provider) ComputeTrade(src core.QuoteSource, amount *big.Int, dir core.AmountDirection, opts settings.TradeOptions) (*core.TradeQuote, error) {
	s, ok := src.(*Source)
	if !ok {
		return nil, errors.New("quote source from a different provider")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.New("amount must be positive")
	}

	var amountIn, amountOut *big.Int
	switch dir {
	case core.ExactIn:
		amountIn = amount
		amountOut = amountOutForIn(amountIn, s.reserveIn, s.reserveOut)
		if amountOut.Sign() == 0 {
			return nil, core.ErrNoLiquidity
		}
	case core.ExactOut:
		amountOut = amount
		if amountOut.Cmp(s.reserveOut) >= 0 {
			return nil, core.ErrNoLiquidity
		}
		amountIn = amountInForOut(amountOut, s.reserveIn, s.reserveOut)
	default:
		return nil, errors.Errorf("unknown amount direction %d", dir)
	}

	inF := asset.FormatUnits(amountIn, s.from.Decimals)
	outF := asset.FormatUnits(amountOut, s.to.Decimals)
	if inF == 0 {
		return nil, core.ErrNoLiquidity
	}
	execPrice := outF / inF

	midPrice := asset.FormatUnits(s.reserveOut, s.to.Decimals) / asset.FormatUnits(s.reserveIn, s.from.Decimals)
	impactPct := 0.0
	if midPrice > 0 {
		impactPct = (midPrice - execPrice) / midPrice * 100
	}
	if impactPct < 0 {
		impactPct = 0
	}

	// ppm scale keeps fractional slippage like 0.125% exact
	slippagePpm := int64(math.Round(opts.SlippagePct * 10_000))
	var bound *big.Int
	if dir == core.ExactIn {
		bound = applyPpm(amountOut, 1_000_000-slippagePpm)
	} else {
		bound = applyPpm(amountIn, 1_000_000+slippagePpm)
	}

	return &core.TradeQuote{
		FromAsset:      s.from,
		ToAsset:        s.to,
		FromAmount:     amountIn,
		ToAmount:       amountOut,
		Direction:      dir,
		ExecutionPrice: execPrice,
		PriceImpactPct: impactPct,
		Bound:          bound,
	}, nil
}

// TransactionPayload packs the router calldata for q. The recipient falls
// back to the owner wallet when options carry none.
func (p *Provider) TransactionPayload(q *core.TradeQuote, opts settings.TradeOptions) (*core.TxPayload, error) {
	recipient := p.owner
	if opts.Recipient != nil {
		recipient = *opts.Recipient
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = settings.DefaultTTL
	}
	deadline := big.NewInt(time.Now().Add(ttl).Unix())
	path := []common.Address{p.tokenAddress(q.FromAsset), p.tokenAddress(q.ToAsset)}

	var (
		data  []byte
		value = big.NewInt(0)
		err   error
	)
	switch {
	case q.FromAsset.IsNative() && q.Direction == core.ExactIn:
		data, err = p.routerABI.Pack("swapExactETHForTokens", q.Bound, path, recipient, deadline)
		value = q.FromAmount
	case q.FromAsset.IsNative() && q.Direction == core.ExactOut:
		data, err = p.routerABI.Pack("swapETHForExactTokens", q.ToAmount, path, recipient, deadline)
		value = q.Bound
	case q.ToAsset.IsNative() && q.Direction == core.ExactIn:
		data, err = p.routerABI.Pack("swapExactTokensForETH", q.FromAmount, q.Bound, path, recipient, deadline)
	case q.ToAsset.IsNative() && q.Direction == core.ExactOut:
		data, err = p.routerABI.Pack("swapTokensForExactETH", q.ToAmount, q.Bound, path, recipient, deadline)
	case q.Direction == core.ExactIn:
		data, err = p.routerABI.Pack("swapExactTokensForTokens", q.FromAmount, q.Bound, path, recipient, deadline)
	default:
		data, err = p.routerABI.Pack("swapTokensForExactTokens", q.ToAmount, q.Bound, path, recipient, deadline)
	}
	if err != nil {
		return nil, errors.Wrap(err, "pack swap")
	}
	return &core.TxPayload{To: p.router, Value: value, Data: data}, nil
}

// amountOutForIn is the v2 curve with the 0.3% fee on input.
func amountOutForIn(in, reserveIn, reserveOut *big.Int) *big.Int {
	inWithFee := new(big.Int).Mul(in, big.NewInt(997))
	num := new(big.Int).Mul(inWithFee, reserveOut)
	den := new(big.Int).Add(new(big.Int).Mul(reserveIn, big.NewInt(1000)), inWithFee)
	return new(big.Int).Div(num, den)
}

func amountInForOut(out, reserveIn, reserveOut *big.Int) *big.Int {
	num := new(big.Int).Mul(new(big.Int).Mul(reserveIn, out), big.NewInt(1000))
	den := new(big.Int).Mul(new(big.Int).Sub(reserveOut, out), big.NewInt(997))
	return new(big.Int).Add(new(big.Int).Div(num, den), big.NewInt(1))
}

func applyPpm(x *big.Int, ppm int64) *big.Int {
	out := new(big.Int).Mul(x, big.NewInt(ppm))
	return out.Div(out, big.NewInt(1_000_000))
}
