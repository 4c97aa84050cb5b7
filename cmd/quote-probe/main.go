package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/you/swap-engine/internal/asset"
	"github.com/you/swap-engine/internal/chain"
	"github.com/you/swap-engine/internal/config"
	"github.com/you/swap-engine/internal/settings"
	"github.com/you/swap-engine/internal/swap/core"
	"github.com/you/swap-engine/internal/swap/uniswap"
)

// quote-probe fetches one quote for a configured pair and prints the trade
// breakdown. Useful for sanity-checking router/factory addresses before
// running the engine.
func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config")
	fromSym := flag.String("from", "", "from token symbol (defaults to session.from)")
	toSym := flag.String("to", "", "to token symbol (defaults to session.to)")
	amountStr := flag.String("amount", "", "decimal amount (defaults to session.amount)")
	exactOut := flag.Bool("exact-out", false, "treat amount as the desired output")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic(err)
	}
	if *fromSym == "" {
		*fromSym = cfg.Session.From
	}
	if *toSym == "" {
		*toSym = cfg.Session.To
	}
	if *amountStr == "" {
		*amountStr = cfg.Session.Amount
	}
	if *fromSym == "" || *toSym == "" || *amountStr == "" {
		fmt.Fprintln(os.Stderr, "need -from, -to and -amount (or session block in config)")
		os.Exit(2)
	}

	from, err := cfg.LookupToken(*fromSym)
	if err != nil {
		panic(err)
	}
	to, err := cfg.LookupToken(*toSym)
	if err != nil {
		panic(err)
	}

	qty, ok := new(big.Float).SetString(*amountStr)
	if !ok {
		panic("bad -amount: " + *amountStr)
	}

	ec, err := ethclient.Dial(cfg.Chain.RPCHTTP)
	if err != nil {
		panic(err)
	}

	provider, err := uniswap.NewProvider(ec,
		common.HexToAddress(cfg.DEX.Router),
		common.HexToAddress(cfg.DEX.Factory),
		common.HexToAddress(cfg.DEX.WrappedNative),
		common.HexToAddress(cfg.Chain.Owner),
	)
	if err != nil {
		panic(err)
	}

	opts := settings.Default()
	opts.SlippagePct = cfg.Options.SlippagePct
	opts.TTL = cfg.Deadline()

	dir := core.ExactIn
	decimals := from.Decimals
	if *exactOut {
		dir = core.ExactOut
		decimals = to.Decimals
	}
	f, _ := qty.Float64()
	amount := asset.ParseUnits(f, decimals)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	src, err := provider.FetchQuoteSource(ctx, from, to)
	if err != nil {
		panic(err)
	}
	quote, err := provider.ComputeTrade(src, amount, dir, opts)
	if err != nil {
		panic(err)
	}
	payload, err := provider.TransactionPayload(quote, opts)
	if err != nil {
		panic(err)
	}

	policy := core.ImpactPolicy{
		WarningPct:   cfg.Policy.WarningImpactPct,
		ForbiddenPct: cfg.Policy.ForbiddenImpactPct,
	}

	fmt.Printf("RPC:     %s\n", cfg.Chain.RPCHTTP)
	fmt.Printf("Pair:    %s -> %s (block %d)\n", from.Symbol, to.Symbol, src.BlockNumber())
	fmt.Printf("Mode:    %s\n", dir)
	fmt.Printf("In:      %s %s\n", quote.FromAmount.String(), from.Symbol)
	fmt.Printf("Out:     %s %s\n", quote.ToAmount.String(), to.Symbol)
	fmt.Printf("Price:   %.8f %s per %s\n", quote.ExecutionPrice, to.Symbol, from.Symbol)
	fmt.Printf("Impact:  %.4f%% (%s)\n", quote.PriceImpactPct, impactLabel(policy.Classify(quote.PriceImpactPct)))
	if dir == core.ExactIn {
		fmt.Printf("Min out: %s %s\n", quote.Bound.String(), to.Symbol)
	} else {
		fmt.Printf("Max in:  %s %s\n", quote.Bound.String(), from.Symbol)
	}
	fmt.Printf("Router:  %s\n", payload.To.Hex())
	fmt.Printf("Value:   %s wei, calldata %d bytes\n", payload.Value.String(), len(payload.Data))

	printOwnerState(ctx, cfg, ec, from, payload.To)
}

// printOwnerState reports whether the configured owner could actually fund
// and approve the quoted trade.
func printOwnerState(ctx context.Context, cfg *config.Config, ec *ethclient.Client, from asset.Asset, router common.Address) {
	if cfg.Chain.Owner == "" {
		return
	}
	var multicallAddr *common.Address
	if cfg.Chain.Multicall != "" {
		a := common.HexToAddress(cfg.Chain.Multicall)
		multicallAddr = &a
	}
	reader, err := chain.NewReader(ec, multicallAddr)
	if err != nil {
		fmt.Printf("owner check skipped: %v\n", err)
		return
	}

	owner := common.HexToAddress(cfg.Chain.Owner)
	allw, bal, err := reader.AllowanceAndBalance(ctx, owner, router, from)
	if err != nil {
		fmt.Printf("owner check failed: %v\n", err)
		return
	}
	fmt.Printf("Owner:   %s\n", owner.Hex())
	fmt.Printf("Balance: %s %s\n", bal.String(), from.Symbol)
	if allw != nil {
		fmt.Printf("Allowed: %s %s for router\n", allw.String(), from.Symbol)
	}
}

func impactLabel(l core.ImpactLevel) string {
	switch l {
	case core.ImpactForbidden:
		return "forbidden"
	case core.ImpactWarning:
		return "warning"
	default:
		return "normal"
	}
}
