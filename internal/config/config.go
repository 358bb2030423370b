// Package config defines the sniper configuration: a TOML file merged over
// Defaults, followed by SNIPER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/position"
	"solana-sniper/internal/solana"
)

// Config is the root configuration.
type Config struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // json | console

	Stream   StreamConfig   `toml:"stream"`
	Detector DetectorConfig `toml:"detector"`
	Intent   IntentConfig   `toml:"intent"`
	Position PositionConfig `toml:"position"`
	Executor ExecutorConfig `toml:"executor"`
	Storage  StorageConfig  `toml:"storage"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// StreamConfig holds the Solana endpoints and stream reconnect behavior.
type StreamConfig struct {
	WSEndpoint        string   `toml:"ws_endpoint"`
	RPCEndpoint       string   `toml:"rpc_endpoint"`
	APIKeyHeader      string   `toml:"api_key_header"` // optional provider header name
	APIKey            string   `toml:"api_key"`
	Commitment        string   `toml:"commitment"`
	ReconnectDelay    duration `toml:"reconnect_delay"`
	MaxReconnectDelay duration `toml:"max_reconnect_delay"`
	PingInterval      duration `toml:"ping_interval"`
	ReadTimeout       duration `toml:"read_timeout"`
	RPCTimeout        duration `toml:"rpc_timeout"`
}

// DetectorConfig controls signal classification and dedup.
type DetectorConfig struct {
	ProgramID   string `toml:"program_id"`
	Marker      string `toml:"marker"`
	DedupWindow int    `toml:"dedup_window"` // 0 = remember every mint for the process lifetime
	ResolveMint bool   `toml:"resolve_mint"` // getTransaction fallback when logs carry no mint

	Redis RedisConfig `toml:"redis"`
}

// RedisConfig enables the shared dedup set when Addr is set.
type RedisConfig struct {
	Addr      string   `toml:"addr"`
	Password  string   `toml:"password"`
	DB        int      `toml:"db"`
	KeyPrefix string   `toml:"key_prefix"`
	TTL       duration `toml:"ttl"`
}

// IntentConfig sizes the hand-off queue.
type IntentConfig struct {
	Capacity int `toml:"capacity"`
}

// PositionConfig mirrors position.Config in file form.
type PositionConfig struct {
	BuyAmountSOL     float64  `toml:"buy_amount_sol"`
	TakeProfitPct    float64  `toml:"take_profit_pct"`
	StopLossPct      float64  `toml:"stop_loss_pct"`
	MaxHold          duration `toml:"max_hold"`
	TickInterval     duration `toml:"tick_interval"`
	PriceTimeout     duration `toml:"price_timeout"`
	PriceConcurrency int      `toml:"price_concurrency"`
	BuyTimeout       duration `toml:"buy_timeout"`
	MaxBuyAttempts   int      `toml:"max_buy_attempts"`
	BuyRetryDelay    duration `toml:"buy_retry_delay"`
	SellTimeout      duration `toml:"sell_timeout"`
	MaxSellRetries   int      `toml:"max_sell_retries"`
	MaxOpenPositions int      `toml:"max_open_positions"`
	DrainTimeout     duration `toml:"drain_timeout"`
}

// ExecutorConfig selects and configures the trade executor.
type ExecutorConfig struct {
	Mode             string  `toml:"mode"` // paper | pumpportal
	PaperBalanceSOL  float64 `toml:"paper_balance_sol"`
	PaperSlippageBps int64   `toml:"paper_slippage_bps"`

	PumpPortal PumpPortalConfig `toml:"pumpportal"`
}

// PumpPortalConfig configures the hosted trade API.
type PumpPortalConfig struct {
	APIURL          string   `toml:"api_url"`
	APIKey          string   `toml:"api_key"`
	SlippagePct     float64  `toml:"slippage_pct"`
	PriorityFee     float64  `toml:"priority_fee"`
	Pool            string   `toml:"pool"`
	Wallet          string   `toml:"wallet"`
	ConfirmInterval duration `toml:"confirm_interval"`
}

// StorageConfig selects the journal backend.
type StorageConfig struct {
	Backend       string `toml:"backend"` // memory | sqlite | postgres
	SQLitePath    string `toml:"sqlite_path"`
	PostgresDSN   string `toml:"postgres_dsn"`
	ClickhouseDSN string `toml:"clickhouse_dsn"` // optional price sample sink
}

// MetricsConfig enables the HTTP surface when Addr is set.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// duration is a time.Duration that decodes from strings like "5s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a configuration that runs a paper sniper against mainnet with
// an in-memory journal.
func Defaults() Config {
	pos := position.DefaultConfig()
	stream := solana.DefaultStreamConfig()
	return Config{
		LogLevel:  "info",
		LogFormat: "json",
		Stream: StreamConfig{
			WSEndpoint:        "wss://api.mainnet-beta.solana.com",
			RPCEndpoint:       "https://api.mainnet-beta.solana.com",
			Commitment:        "confirmed",
			ReconnectDelay:    duration{stream.ReconnectDelay},
			MaxReconnectDelay: duration{stream.MaxReconnectDelay},
			PingInterval:      duration{stream.PingInterval},
			ReadTimeout:       duration{stream.ReadTimeout},
			RPCTimeout:        duration{10 * time.Second},
		},
		Detector: DetectorConfig{
			ProgramID:   solana.PumpFunProgram,
			ResolveMint: true,
		},
		Intent: IntentConfig{Capacity: 100},
		Position: PositionConfig{
			BuyAmountSOL:     pos.BuyAmountSOL,
			TakeProfitPct:    pos.Exit.TakeProfitPct,
			StopLossPct:      pos.Exit.StopLossPct,
			MaxHold:          duration{pos.Exit.MaxHold},
			TickInterval:     duration{pos.TickInterval},
			PriceTimeout:     duration{pos.PriceTimeout},
			PriceConcurrency: pos.PriceConcurrency,
			BuyTimeout:       duration{pos.BuyTimeout},
			MaxBuyAttempts:   pos.MaxBuyAttempts,
			BuyRetryDelay:    duration{pos.BuyRetryDelay},
			SellTimeout:      duration{pos.SellTimeout},
			MaxSellRetries:   pos.MaxSellRetries,
			MaxOpenPositions: pos.MaxOpenPositions,
			DrainTimeout:     duration{pos.DrainTimeout},
		},
		Executor: ExecutorConfig{
			Mode:             "paper",
			PaperBalanceSOL:  10,
			PaperSlippageBps: 100,
			PumpPortal: PumpPortalConfig{
				SlippagePct:     10,
				PriorityFee:     0.00005,
				Pool:            "pump",
				ConfirmInterval: duration{500 * time.Millisecond},
			},
		},
		Storage: StorageConfig{
			Backend:    "memory",
			SQLitePath: "sniper.db",
		},
	}
}

// shutdownMargin is the time after the drain deadline allowed for persisting
// open positions and closing stores before the process is forced down.
const shutdownMargin = 30 * time.Second

// ShutdownGrace is how long a graceful shutdown may take before it is forced.
func (c *Config) ShutdownGrace() time.Duration {
	return c.Position.DrainTimeout.Duration + shutdownMargin
}

// PositionManager converts the position section into a position.Config.
func (c *Config) PositionManager() position.Config {
	p := c.Position
	return position.Config{
		BuyAmountSOL: p.BuyAmountSOL,
		Exit: position.ExitPolicy{
			TakeProfitPct: p.TakeProfitPct,
			StopLossPct:   p.StopLossPct,
			MaxHold:       p.MaxHold.Duration,
		},
		TickInterval:     p.TickInterval.Duration,
		PriceTimeout:     p.PriceTimeout.Duration,
		PriceConcurrency: p.PriceConcurrency,
		BuyTimeout:       p.BuyTimeout.Duration,
		MaxBuyAttempts:   p.MaxBuyAttempts,
		BuyRetryDelay:    p.BuyRetryDelay.Duration,
		SellTimeout:      p.SellTimeout.Duration,
		MaxSellRetries:   p.MaxSellRetries,
		MaxOpenPositions: p.MaxOpenPositions,
		DrainTimeout:     p.DrainTimeout.Duration,
	}
}

// StreamClient converts the stream section into a solana.StreamConfig.
func (c *Config) StreamClient() solana.StreamConfig {
	sc := solana.DefaultStreamConfig()
	sc.ReconnectDelay = c.Stream.ReconnectDelay.Duration
	sc.MaxReconnectDelay = c.Stream.MaxReconnectDelay.Duration
	sc.PingInterval = c.Stream.PingInterval.Duration
	sc.ReadTimeout = c.Stream.ReadTimeout.Duration
	if c.Stream.APIKeyHeader != "" && c.Stream.APIKey != "" {
		sc.Header = http.Header{}
		sc.Header.Set(c.Stream.APIKeyHeader, c.Stream.APIKey)
	}
	return sc
}

var (
	validLogLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	validFormats   = map[string]bool{"json": true, "console": true}
	validExecutors = map[string]bool{"paper": true, "pumpportal": true}
	validBackends  = map[string]bool{"memory": true, "sqlite": true, "postgres": true}
)

// Validate checks the configuration. All problems are reported together,
// wrapped in domain.ErrConfiguration.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: trace, debug, info, warn, error)", c.LogLevel))
	}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		errs = append(errs, fmt.Sprintf("unknown log_format %q (valid: json, console)", c.LogFormat))
	}

	if !hasScheme(c.Stream.WSEndpoint, "ws", "wss") {
		errs = append(errs, fmt.Sprintf("stream.ws_endpoint must be a ws(s) URL, got %q", c.Stream.WSEndpoint))
	}
	if !hasScheme(c.Stream.RPCEndpoint, "http", "https") {
		errs = append(errs, fmt.Sprintf("stream.rpc_endpoint must be an http(s) URL, got %q", c.Stream.RPCEndpoint))
	}
	if c.Stream.ReconnectDelay.Duration <= 0 || c.Stream.MaxReconnectDelay.Duration < c.Stream.ReconnectDelay.Duration {
		errs = append(errs, "stream: reconnect_delay must be positive and not above max_reconnect_delay")
	}

	if c.Detector.ProgramID == "" {
		errs = append(errs, "detector.program_id is required")
	}
	if c.Detector.DedupWindow < 0 {
		errs = append(errs, "detector.dedup_window must not be negative")
	}
	if c.Intent.Capacity <= 0 {
		errs = append(errs, "intent.capacity must be positive")
	}

	if err := c.PositionManager().Validate(); err != nil {
		for _, e := range strings.Split(err.Error(), "\n") {
			errs = append(errs, "position: "+e)
		}
	}

	switch mode := strings.ToLower(c.Executor.Mode); {
	case !validExecutors[mode]:
		errs = append(errs, fmt.Sprintf("unknown executor.mode %q (valid: paper, pumpportal)", c.Executor.Mode))
	case mode == "pumpportal" && c.Executor.PumpPortal.APIKey == "":
		errs = append(errs, "executor.pumpportal.api_key is required for mode pumpportal")
	}
	if w := c.Executor.PumpPortal.Wallet; w != "" {
		if _, err := solana.DecodePublicKey(w); err != nil {
			errs = append(errs, fmt.Sprintf("executor.pumpportal.wallet: %v", err))
		}
	}
	if c.Executor.PaperSlippageBps < 0 {
		errs = append(errs, "executor.paper_slippage_bps must not be negative")
	}

	switch backend := strings.ToLower(c.Storage.Backend); {
	case !validBackends[backend]:
		errs = append(errs, fmt.Sprintf("unknown storage.backend %q (valid: memory, sqlite, postgres)", c.Storage.Backend))
	case backend == "sqlite" && c.Storage.SQLitePath == "":
		errs = append(errs, "storage.sqlite_path is required for backend sqlite")
	case backend == "postgres" && c.Storage.PostgresDSN == "":
		errs = append(errs, "storage.postgres_dsn is required for backend postgres")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrConfiguration, errors.New(strings.Join(errs, "; ")))
	}
	return nil
}

func hasScheme(raw string, schemes ...string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return true
		}
	}
	return false
}
