// Package chain implements the on-chain collaborators: allowance and balance
// reads over eth_call (batched through multicall when available) and the
// websocket chain-head feed.
package chain

import (
	"context"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"github.com/you/swap-engine/internal/asset"
)

const erc20ABI = `[
 {"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},
 {"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"}
]`

// Reader serves point-in-time allowance and balance snapshots.
type Reader struct {
	ec    *ethclient.Client
	erc20 abi.ABI
	mc    *Multicall
}

// NewReader builds a Reader. multicallAddr may be nil; reads then fall back
// to individual eth_calls.
func NewReader(ec *ethclient.Client, multicallAddr *common.Address) (*Reader, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, errors.Wrap(err, "erc20 abi")
	}
	r := &Reader{ec: ec, erc20: parsed}
	if multicallAddr != nil {
		mc, err := NewMulticall(ec, *multicallAddr)
		if err != nil {
			return nil, err
		}
		r.mc = mc
	}
	return r, nil
}

func (r *Reader) Allowance(ctx context.Context, owner, spender common.Address, a asset.Asset) (*big.Int, error) {
	if a.IsNative() {
		return nil, errors.New("native asset has no allowance")
	}
	data, err := r.erc20.Pack("allowance", owner, spender)
	if err != nil {
		return nil, errors.Wrap(err, "pack allowance")
	}
	raw, err := r.ec.CallContract(ctx, ethereum.CallMsg{To: a.Contract, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "call allowance")
	}
	return r.unpackUint(raw, "allowance")
}

func (r *Reader) Balance(ctx context.Context, owner common.Address, a asset.Asset) (*big.Int, error) {
	if a.IsNative() {
		bal, err := r.ec.BalanceAt(ctx, owner, nil)
		return bal, errors.Wrap(err, "native balance")
	}
	data, err := r.erc20.Pack("balanceOf", owner)
	if err != nil {
		return nil, errors.Wrap(err, "pack balanceOf")
	}
	raw, err := r.ec.CallContract(ctx, ethereum.CallMsg{To: a.Contract, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "call balanceOf")
	}
	return r.unpackUint(raw, "balanceOf")
}

// AllowanceAndBalance reads both values for an ERC-20 asset in a single
// round trip when a multicall contract is configured.
func (r *Reader) AllowanceAndBalance(ctx context.Context, owner, spender common.Address, a asset.Asset) (*big.Int, *big.Int, error) {
	if a.IsNative() || r.mc == nil {
		bal, err := r.Balance(ctx, owner, a)
		if err != nil {
			return nil, nil, err
		}
		if a.IsNative() {
			return nil, bal, nil
		}
		allw, err := r.Allowance(ctx, owner, spender, a)
		return allw, bal, err
	}

	allowData, _ := r.erc20.Pack("allowance", owner, spender)
	balData, _ := r.erc20.Pack("balanceOf", owner)
	results, err := r.mc.Aggregate(ctx, []Call{
		{Target: *a.Contract, CallData: allowData},
		{Target: *a.Contract, CallData: balData},
	})
	if err != nil {
		return nil, nil, err
	}
	if len(results) != 2 || !results[0].Success || !results[1].Success {
		return nil, nil, errors.New("multicall returned no data")
	}
	allw, err := r.unpackUint(results[0].Data, "allowance")
	if err != nil {
		return nil, nil, err
	}
	bal, err := r.unpackUint(results[1].Data, "balanceOf")
	return allw, bal, err
}

func (r *Reader) unpackUint(raw []byte, method string) (*big.Int, error) {
	outs, err := r.erc20.Methods[method].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return nil, errors.Errorf("decode %s", method)
	}
	v, ok := outs[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("unexpected %s type", method)
	}
	return v, nil
}
