package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

const (
	defaultPollInterval    = 10 * time.Second
	minPollInterval        = time.Second
	maxPollInterval        = time.Hour
	defaultListen          = ":8080"
	defaultRatePerMinute   = 120
	defaultRequestTimeout  = 60 * time.Second
	defaultRefreshInterval = time.Minute
	defaultMaxAge          = 5 * time.Minute
	defaultHyperliquidURL  = "https://api.hyperliquid.xyz"

	envEtherscanKey = "ETHERSCAN_API_KEY"
	envSolanaRPC    = "SOLANA_RPC_URL"
	envEthereumRPC  = "ETHEREUM_RPC_URL"
)

// Price feed names.
const (
	FeedStatic      = "static"
	FeedBinance     = "binance"
	FeedBybit       = "bybit"
	FeedHyperliquid = "hyperliquid"
)

// Wallet provider kinds.
const (
	ProviderBridge = "bridge"
	ProviderWatch  = "watch"
)

type Config struct {
	PollInterval   time.Duration
	Listen         string
	TLSDomain      string
	AllowedOrigins []string
	RatePerMinute  int
	// HistoryDir empty disables the snapshot journal.
	HistoryDir string
	Bridge     BridgeConfig
	Price      PriceConfig
	Chains     []ChainConfig
}

type BridgeConfig struct {
	RequestTimeout time.Duration
}

type PriceConfig struct {
	Feed            string
	RefreshInterval time.Duration
	// MaxAge zero disables expiry of live prices.
	MaxAge         time.Duration
	HyperliquidURL string
}

type ChainConfig struct {
	Chain         domain.Chain
	Network       string
	Provider      string
	WatchAddress  string
	IndexerURL    string
	IndexerAPIKey string
	RPCURL        string
	// PriceUSD zero means no configured price.
	PriceUSD decimal.Decimal
}

type ConfigTmp struct {
	PollInterval   string              `yaml:"poll_interval,omitempty"`
	Listen         string              `yaml:"listen,omitempty"`
	TLSDomain      string              `yaml:"tls_domain,omitempty"`
	AllowedOrigins []string            `yaml:"allowed_origins,omitempty"`
	RatePerMinute  int                 `yaml:"rate_per_minute,omitempty"`
	HistoryDir     string              `yaml:"history_dir,omitempty"`
	Bridge         BridgeTmp           `yaml:"bridge,omitempty"`
	Price          PriceTmp            `yaml:"price,omitempty"`
	Chains         map[string]ChainTmp `yaml:"chains"`
}

type BridgeTmp struct {
	RequestTimeout string `yaml:"request_timeout,omitempty"`
}

type PriceTmp struct {
	Feed            string `yaml:"feed,omitempty"`
	RefreshInterval string `yaml:"refresh_interval,omitempty"`
	MaxAge          string `yaml:"max_age,omitempty"`
	HyperliquidURL  string `yaml:"hyperliquid_url,omitempty"`
}

type ChainTmp struct {
	Enabled       *bool  `yaml:"enabled,omitempty"`
	Network       string `yaml:"network,omitempty"`
	Provider      string `yaml:"provider,omitempty"`
	WatchAddress  string `yaml:"watch_address,omitempty"`
	IndexerURL    string `yaml:"indexer_url,omitempty"`
	IndexerAPIKey string `yaml:"indexer_api_key,omitempty"`
	RPCURL        string `yaml:"rpc_url,omitempty"`
	PriceUSD      string `yaml:"price_usd,omitempty"`
}

// Load reads the yaml config at path. Variables from a .env file in the
// working directory are loaded first and override the matching yaml fields.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	return Parse(f)
}

// Parse parses a yaml document and applies defaults and environment overrides.
func Parse(data []byte) (Config, error) {
	var c ConfigTmp
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, err
	}

	conf := Config{
		Listen:         c.Listen,
		TLSDomain:      strings.TrimSpace(c.TLSDomain),
		AllowedOrigins: c.AllowedOrigins,
		RatePerMinute:  c.RatePerMinute,
		HistoryDir:     c.HistoryDir,
	}
	if conf.Listen == "" {
		conf.Listen = defaultListen
	}
	if conf.RatePerMinute == 0 {
		conf.RatePerMinute = defaultRatePerMinute
	}
	if conf.RatePerMinute < 0 {
		return Config{}, fmt.Errorf("incorrect 'rate_per_minute' param in yaml config (must be positive): %d", c.RatePerMinute)
	}

	var err error
	conf.PollInterval, err = parseDuration(c.PollInterval, defaultPollInterval)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'poll_interval' param in yaml config (correct format is 10s), error: %w", err)
	}
	if conf.PollInterval < minPollInterval || conf.PollInterval > maxPollInterval {
		return Config{}, fmt.Errorf("incorrect 'poll_interval' param in yaml config: %s (must be between %s and %s)",
			conf.PollInterval, minPollInterval, maxPollInterval)
	}

	conf.Bridge.RequestTimeout, err = parseDuration(c.Bridge.RequestTimeout, defaultRequestTimeout)
	if err != nil || conf.Bridge.RequestTimeout <= 0 {
		return Config{}, fmt.Errorf("incorrect 'bridge.request_timeout' param in yaml config: %q", c.Bridge.RequestTimeout)
	}

	conf.Price, err = parsePrice(c.Price)
	if err != nil {
		return Config{}, err
	}

	conf.Chains, err = parseChains(c.Chains)
	if err != nil {
		return Config{}, err
	}

	applyEnv(&conf)

	return conf, nil
}

func parsePrice(p PriceTmp) (PriceConfig, error) {
	out := PriceConfig{
		Feed:           strings.ToLower(strings.TrimSpace(p.Feed)),
		HyperliquidURL: p.HyperliquidURL,
	}
	if out.Feed == "" {
		out.Feed = FeedStatic
	}
	if out.HyperliquidURL == "" {
		out.HyperliquidURL = defaultHyperliquidURL
	}
	switch out.Feed {
	case FeedStatic, FeedBinance, FeedBybit, FeedHyperliquid:
	default:
		return PriceConfig{}, fmt.Errorf("incorrect 'price.feed' param in yaml config: %s (one of static, binance, bybit, hyperliquid)", p.Feed)
	}

	var err error
	out.RefreshInterval, err = parseDuration(p.RefreshInterval, defaultRefreshInterval)
	if err != nil || out.RefreshInterval <= 0 {
		return PriceConfig{}, fmt.Errorf("incorrect 'price.refresh_interval' param in yaml config: %q", p.RefreshInterval)
	}
	out.MaxAge, err = parseDuration(p.MaxAge, defaultMaxAge)
	if err != nil || out.MaxAge < 0 {
		return PriceConfig{}, fmt.Errorf("incorrect 'price.max_age' param in yaml config: %q", p.MaxAge)
	}

	return out, nil
}

func parseChains(raw map[string]ChainTmp) ([]ChainConfig, error) {
	byChain := make(map[domain.Chain]ChainTmp, len(raw))
	for name, c := range raw {
		chain, err := domain.ParseChain(name)
		if err != nil {
			return nil, fmt.Errorf("incorrect chain %q in yaml config, error: %w", name, err)
		}
		if _, dup := byChain[chain]; dup {
			return nil, fmt.Errorf("chain %s is configured twice in yaml config", chain)
		}
		byChain[chain] = c
	}

	var chains []ChainConfig
	for _, chain := range domain.AllChains() {
		c, ok := byChain[chain]
		if !ok || (c.Enabled != nil && !*c.Enabled) {
			continue
		}

		cc := ChainConfig{
			Chain:         chain,
			Network:       c.Network,
			Provider:      strings.ToLower(strings.TrimSpace(c.Provider)),
			WatchAddress:  strings.TrimSpace(c.WatchAddress),
			IndexerURL:    c.IndexerURL,
			IndexerAPIKey: c.IndexerAPIKey,
			RPCURL:        c.RPCURL,
		}
		if cc.Network == "" {
			cc.Network = chain.DefaultNetworkLabel()
		}
		if cc.Provider == "" {
			cc.Provider = ProviderBridge
		}
		switch cc.Provider {
		case ProviderBridge:
		case ProviderWatch:
			if _, err := domain.NormalizeAddress(chain, cc.WatchAddress); err != nil {
				return nil, fmt.Errorf("incorrect 'watch_address' param in yaml config for %s, error: %w", chain, err)
			}
		default:
			return nil, fmt.Errorf("incorrect 'provider' param in yaml config for %s: %s (bridge or watch)", chain, c.Provider)
		}

		if c.PriceUSD != "" {
			price, err := decimal.NewFromString(c.PriceUSD)
			if err != nil {
				return nil, fmt.Errorf("incorrect 'price_usd' param in yaml config for %s (correct format is 150.5), error: %w", chain, err)
			}
			if price.IsNegative() {
				return nil, fmt.Errorf("incorrect 'price_usd' param in yaml config for %s: must not be negative", chain)
			}
			cc.PriceUSD = price
		}

		chains = append(chains, cc)
	}

	if len(chains) == 0 {
		return nil, fmt.Errorf("no enabled chains in yaml config")
	}

	return chains, nil
}

func applyEnv(conf *Config) {
	for i := range conf.Chains {
		c := &conf.Chains[i]
		switch c.Chain {
		case domain.ChainSolana:
			if v := os.Getenv(envSolanaRPC); v != "" {
				c.RPCURL = v
			}
		case domain.ChainEthereum:
			if v := os.Getenv(envEthereumRPC); v != "" {
				c.RPCURL = v
			}
			if v := os.Getenv(envEtherscanKey); v != "" {
				c.IndexerAPIKey = v
			}
		}
	}
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}
