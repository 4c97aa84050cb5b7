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
)

const multicallABI = `[
{
    "constant": false,
    "inputs": [
        {
            "components": [
                {
                    "name": "target",
                    "type": "address"
                },
                {
                    "name": "callData",
                    "type": "bytes"
                }
            ],
            "name": "calls",
            "type": "tuple[]"
        }
    ],
    "name": "aggregate",
    "outputs": [
        {
            "name": "blockNumber",
            "type": "uint256"
        },
        {
            "name": "returnData",
            "type": "bytes[]"
        }
    ],
    "payable": false,
    "stateMutability": "nonpayable",
    "type": "function"
}
]`

type Call struct {
	Target   common.Address
	CallData []byte
}

type Result struct {
	Success bool
	Data    []byte
}

// Multicall batches read calls through the Multicall aggregate contract.
type Multicall struct {
	c    *ethclient.Client
	addr common.Address
	abi  abi.ABI
}

func NewMulticall(c *ethclient.Client, addr common.Address) (*Multicall, error) {
	parsed, err := abi.JSON(strings.NewReader(multicallABI))
	if err != nil {
		return nil, errors.Wrap(err, "multicall abi")
	}
	return &Multicall{c: c, addr: addr, abi: parsed}, nil
}

func (m *Multicall) Aggregate(ctx context.Context, calls []Call) ([]Result, error) {
	payload, err := m.abi.Pack("aggregate", calls)
	if err != nil {
		return nil, errors.Wrap(err, "pack aggregate")
	}

	res, err := m.c.CallContract(ctx, ethereum.CallMsg{To: &m.addr, Data: payload}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "call aggregate")
	}

	type aggregateResult struct {
		BlockNumber *big.Int
		ReturnData  [][]byte
	}
	var agg aggregateResult
	if err := m.abi.UnpackIntoInterface(&agg, "aggregate", res); err != nil {
		return nil, errors.Wrap(err, "unpack aggregate")
	}

	out := make([]Result, len(calls))
	for i, r := range agg.ReturnData {
		out[i] = Result{Success: len(r) > 0, Data: r}
	}
	return out, nil
}
