package config

import (
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/you/swap-engine/internal/asset"
)

type TokenCfg struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"` // empty means the native coin
	Decimals int    `yaml:"decimals"`
}

type Config struct {
	SessionID string `yaml:"session_id"`

	Chain struct {
		Blockchain string `yaml:"blockchain"`
		RPCHTTP    string `yaml:"rpc_http"`
		RPCWS      string `yaml:"rpc_ws"`
		Owner      string `yaml:"owner"`
		Multicall  string `yaml:"multicall"`
	} `yaml:"chain"`

	DEX struct {
		Provider      string `yaml:"provider"`
		Router        string `yaml:"router"`
		Factory       string `yaml:"factory"`
		WrappedNative string `yaml:"wrapped_native"`
	} `yaml:"dex"`

	Policy struct {
		WarningImpactPct   float64 `yaml:"warning_impact_pct"`
		ForbiddenImpactPct float64 `yaml:"forbidden_impact_pct"`
	} `yaml:"policy"`

	Options struct {
		SlippagePct float64 `yaml:"slippage_pct"`
		DeadlineMin int     `yaml:"deadline_min"`
		Recipient   string  `yaml:"recipient"`
	} `yaml:"options"`

	Redis struct {
		Addr     string `yaml:"addr"`
		DB       int    `yaml:"db"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Channel  string `yaml:"channel"`
		StateNS  string `yaml:"state_ns"`
	} `yaml:"redis"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`

	Tokens []TokenCfg `yaml:"tokens"`

	Session struct {
		From   string `yaml:"from"`
		To     string `yaml:"to"`
		Amount string `yaml:"amount"` // decimal, exact-in
	} `yaml:"session"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.SessionID == "" {
		c.SessionID = "default"
	}
	if c.Chain.Blockchain == "" {
		c.Chain.Blockchain = string(asset.ChainEthereum)
	}
	if c.DEX.Provider == "" {
		c.DEX.Provider = "uniswap"
	}
	if c.Policy.WarningImpactPct == 0 {
		c.Policy.WarningImpactPct = 1
	}
	if c.Policy.ForbiddenImpactPct == 0 {
		c.Policy.ForbiddenImpactPct = 5
	}
	if c.Options.SlippagePct == 0 {
		c.Options.SlippagePct = 0.5
	}
	if c.Options.DeadlineMin == 0 {
		c.Options.DeadlineMin = 20
	}
	return &c, nil
}

func (c *Config) Deadline() time.Duration {
	return time.Duration(c.Options.DeadlineMin) * time.Minute
}

// LookupToken resolves a configured token by symbol into an Asset on the
// configured blockchain.
func (c *Config) LookupToken(symbol string) (asset.Asset, error) {
	chain := asset.Chain(c.Chain.Blockchain)
	for _, t := range c.Tokens {
		if t.Symbol != symbol {
			continue
		}
		if t.Address == "" {
			return asset.Native(t.Symbol, chain, t.Decimals), nil
		}
		return asset.Token(t.Symbol, chain, common.HexToAddress(t.Address), t.Decimals), nil
	}
	return asset.Asset{}, errors.Errorf("token %q not in config", symbol)
}
