package main

import (
	"context"
	"flag"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/you/swap-engine/internal/allowance"
	"github.com/you/swap-engine/internal/asset"
	"github.com/you/swap-engine/internal/chain"
	"github.com/you/swap-engine/internal/config"
	"github.com/you/swap-engine/internal/feed"
	"github.com/you/swap-engine/internal/metrics"
	"github.com/you/swap-engine/internal/settings"
	"github.com/you/swap-engine/internal/swap"
	"github.com/you/swap-engine/internal/swap/core"
	_ "github.com/you/swap-engine/internal/swap/uniswap"
)

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return cfg.Build()
}

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config")
	flag.Parse()

	logger, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Warn("received signal, shutting down...")
		cancel()
	}()

	metrics.Serve(ctx, cfg.Metrics.ListenAddr, nil, logger)

	ec, err := ethclient.Dial(cfg.Chain.RPCHTTP)
	if err != nil {
		logger.Fatal("eth client dial failed", zap.Error(err))
	}

	heads := chain.NewHeadFeed(cfg.Chain.RPCWS, logger)
	go heads.Run(ctx)

	var multicallAddr *common.Address
	if cfg.Chain.Multicall != "" {
		a := common.HexToAddress(cfg.Chain.Multicall)
		multicallAddr = &a
	}
	reader, err := chain.NewReader(ec, multicallAddr)
	if err != nil {
		logger.Fatal("chain reader init failed", zap.Error(err))
	}

	opts := settings.Default()
	opts.SlippagePct = cfg.Options.SlippagePct
	opts.TTL = cfg.Deadline()
	opts, err = opts.WithRecipient(cfg.Options.Recipient)
	if err != nil {
		logger.Fatal("bad recipient in config", zap.Error(err))
	}

	owner := common.HexToAddress(cfg.Chain.Owner)
	deps := core.AdapterDeps{
		Client:  ec,
		Heads:   heads,
		Router:  common.HexToAddress(cfg.DEX.Router),
		Factory: common.HexToAddress(cfg.DEX.Factory),
		Wrapped: common.HexToAddress(cfg.DEX.WrappedNative),
		Owner:   owner,
		Policy: core.ImpactPolicy{
			WarningPct:   cfg.Policy.WarningImpactPct,
			ForbiddenPct: cfg.Policy.ForbiddenImpactPct,
		},
		Options: opts,
		Log:     logger,
	}

	// unsupported (blockchain, provider) pairings must fail here, not later
	adapter, err := core.NewAdapter(asset.Chain(cfg.Chain.Blockchain), core.Provider(cfg.DEX.Provider), deps)
	if err != nil {
		logger.Fatal("swap adapter init failed", zap.Error(err))
	}

	tracker := allowance.NewTracker(reader, owner, adapter.RouterAddress(), logger)
	pending := allowance.NewPendingTracker(tracker)
	service := swap.NewService(adapter, tracker, pending, reader, owner, logger)
	defer service.Dispose()

	publisher := feed.NewPublisher(feed.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		Channel:  cfg.Redis.Channel,
		StateNS:  cfg.Redis.StateNS,
	})
	defer publisher.Close()
	go publishLoop(ctx, cfg.SessionID, adapter, service, publisher, logger)

	if err := bootstrapSession(cfg, adapter, logger); err != nil {
		logger.Fatal("session bootstrap failed", zap.Error(err))
	}

	logger.Info("swap engine started",
		zap.String("blockchain", cfg.Chain.Blockchain),
		zap.String("provider", cfg.DEX.Provider),
		zap.String("session", cfg.SessionID),
	)

	<-ctx.Done()
	logger.Info("swap engine finished")
}

// bootstrapSession feeds the configured pair and amount into the adapter,
// the same entry points interactive input would use.
func bootstrapSession(cfg *config.Config, adapter core.Adapter, logger *zap.Logger) error {
	if cfg.Session.From == "" || cfg.Session.To == "" {
		logger.Warn("no session pair configured; engine idle until driven externally")
		return nil
	}
	from, err := cfg.LookupToken(cfg.Session.From)
	if err != nil {
		return err
	}
	to, err := cfg.LookupToken(cfg.Session.To)
	if err != nil {
		return err
	}
	adapter.SelectFromAsset(&from)
	adapter.SelectToAsset(&to)

	if cfg.Session.Amount != "" {
		qty, ok := new(big.Float).SetString(cfg.Session.Amount)
		if !ok {
			logger.Warn("bad session amount, ignoring", zap.String("amount", cfg.Session.Amount))
			return nil
		}
		f, _ := qty.Float64()
		adapter.EnterFromAmount(asset.ParseUnits(f, from.Decimals))
	}
	return nil
}

// publishLoop mirrors every verdict or action change onto the redis feed.
func publishLoop(ctx context.Context, sessionID string, adapter core.Adapter, service *swap.Service, publisher *feed.Publisher, logger *zap.Logger) {
	stateCh, u1 := service.State().Subscribe(64)
	errsCh, u2 := service.Errors().Subscribe(64)
	proceedCh, u3 := service.ProceedAction().Subscribe(64)
	approveCh, u4 := service.ApproveAction().Subscribe(64)
	defer u1()
	defer u2()
	defer u3()
	defer u4()

	publish := func() {
		u := feed.Update{
			SessionID: sessionID,
			Status:    service.State().Get().Status.String(),
			Proceed:   actionString(service.ProceedAction().Get()),
			Approve:   actionString(service.ApproveAction().Get()),
			TsMs:      time.Now().UnixMilli(),
		}
		if err := service.DisplayError(); err != nil {
			u.ErrorText = err.Error()
		}
		if from := adapter.FromAsset().Get(); from.OK {
			u.FromSymbol = from.Val.Symbol
		}
		if to := adapter.ToAsset().Get(); to.OK {
			u.ToSymbol = to.Val.Symbol
		}
		if amt := adapter.FromAmount().Get(); amt.OK {
			u.FromAmount = amt.Val.String()
		}
		if amt := adapter.ToAmount().Get(); amt.OK {
			u.ToAmount = amt.Val.String()
		}
		if err := publisher.Publish(ctx, u); err != nil {
			logger.Warn("feed publish failed", zap.Error(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case st := <-stateCh:
			logger.Info("readiness changed", zap.String("status", st.Status.String()))
			publish()
		case errs := <-errsCh:
			logger.Debug("errors changed", zap.Int("count", len(errs)))
			publish()
		case <-proceedCh:
			publish()
		case <-approveCh:
			publish()
		}
	}
}

func actionString(a swap.ActionState) string {
	switch a.Kind {
	case swap.ActionEnabled:
		return "enabled:" + a.Label
	case swap.ActionDisabled:
		return "disabled:" + a.Label
	default:
		return "hidden"
	}
}
