package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"solana-sniper/internal/domain"
)

// Load merges the TOML file at path over Defaults, loads .env if present and
// applies SNIPER_* overrides. An empty path skips the file. The result is not
// validated; call Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: config file %s not found", domain.ErrConfiguration, path)
			}
			return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrConfiguration, path, err)
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose SNIPER_* variable is set. Secrets are
// expected to arrive this way.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.LogLevel, "SNIPER_LOG_LEVEL")
	setStr(&cfg.LogFormat, "SNIPER_LOG_FORMAT")

	// stream
	setStr(&cfg.Stream.WSEndpoint, "SNIPER_WS_ENDPOINT")
	setStr(&cfg.Stream.RPCEndpoint, "SNIPER_RPC_ENDPOINT")
	setStr(&cfg.Stream.APIKeyHeader, "SNIPER_STREAM_API_KEY_HEADER")
	setStr(&cfg.Stream.APIKey, "SNIPER_STREAM_API_KEY")
	setStr(&cfg.Stream.Commitment, "SNIPER_COMMITMENT")
	setDuration(&cfg.Stream.ReconnectDelay, "SNIPER_RECONNECT_DELAY")
	setDuration(&cfg.Stream.MaxReconnectDelay, "SNIPER_MAX_RECONNECT_DELAY")

	// detector
	setStr(&cfg.Detector.ProgramID, "SNIPER_PROGRAM_ID")
	setStr(&cfg.Detector.Marker, "SNIPER_MARKER")
	setInt(&cfg.Detector.DedupWindow, "SNIPER_DEDUP_WINDOW")
	setBool(&cfg.Detector.ResolveMint, "SNIPER_RESOLVE_MINT")
	setStr(&cfg.Detector.Redis.Addr, "SNIPER_REDIS_ADDR")
	setStr(&cfg.Detector.Redis.Password, "SNIPER_REDIS_PASSWORD")
	setInt(&cfg.Detector.Redis.DB, "SNIPER_REDIS_DB")

	setInt(&cfg.Intent.Capacity, "SNIPER_INTENT_CAPACITY")

	// position
	setFloat64(&cfg.Position.BuyAmountSOL, "SNIPER_BUY_AMOUNT_SOL")
	setFloat64(&cfg.Position.TakeProfitPct, "SNIPER_TAKE_PROFIT_PCT")
	setFloat64(&cfg.Position.StopLossPct, "SNIPER_STOP_LOSS_PCT")
	setDuration(&cfg.Position.MaxHold, "SNIPER_MAX_HOLD")
	setDuration(&cfg.Position.TickInterval, "SNIPER_TICK_INTERVAL")
	setInt(&cfg.Position.MaxSellRetries, "SNIPER_MAX_SELL_RETRIES")
	setInt(&cfg.Position.MaxOpenPositions, "SNIPER_MAX_OPEN_POSITIONS")

	// executor
	setStr(&cfg.Executor.Mode, "SNIPER_EXECUTOR")
	setFloat64(&cfg.Executor.PaperBalanceSOL, "SNIPER_PAPER_BALANCE_SOL")
	setStr(&cfg.Executor.PumpPortal.APIURL, "SNIPER_PUMPPORTAL_API_URL")
	setStr(&cfg.Executor.PumpPortal.APIKey, "SNIPER_PUMPPORTAL_API_KEY")
	setStr(&cfg.Executor.PumpPortal.Wallet, "SNIPER_PUMPPORTAL_WALLET")

	// storage
	setStr(&cfg.Storage.Backend, "SNIPER_STORAGE_BACKEND")
	setStr(&cfg.Storage.SQLitePath, "SNIPER_SQLITE_PATH")
	setStr(&cfg.Storage.PostgresDSN, "SNIPER_POSTGRES_DSN")
	setStr(&cfg.Storage.ClickhouseDSN, "SNIPER_CLICKHOUSE_DSN")

	setStr(&cfg.Metrics.Addr, "SNIPER_METRICS_ADDR")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
