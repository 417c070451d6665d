// Package config loads and validates the engine's configuration, replacing
// the reference bot's grid-strategy pkg/config with the option surface
// spec §6 defines. It keeps the reference bot's layering (YAML file, then
// environment overrides, then CLI flags) and its "collect every validation
// failure before returning" fail-fast style.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/betbot/aquoter/internal/secretstore"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the fully resolved set of options spec §6 recognizes.
type Config struct {
	Assets []string `yaml:"assets"`

	OrderSizeUSDC          float64 `yaml:"order_size_usdc"`
	MaxPositionPerMarket   float64 `yaml:"max_position_per_market"`
	MaxLiabilityPerMarket  float64 `yaml:"max_liability_per_market"`
	MaxTotalLiability      float64 `yaml:"max_total_liability"`

	ImproveWhenSpreadTicks int `yaml:"improve_when_spread_ticks"`
	RefreshThresholdTicks  int `yaml:"refresh_threshold_ticks"`
	MinRefreshIntervalMs   int `yaml:"min_refresh_interval_ms"`
	GlobalRefreshCapPerSec int `yaml:"global_refresh_cap_per_sec"`
	InventorySkewCoefficient float64 `yaml:"inventory_skew_coefficient"`

	MomentumThresholdTicks int     `yaml:"momentum_threshold_ticks"`
	MomentumWindowMs       int     `yaml:"momentum_window_ms"`
	SweepDepthThreshold    float64 `yaml:"sweep_depth_threshold"`
	CooldownSeconds        int     `yaml:"cooldown_seconds"`

	MaxDrawdownPerMarket float64 `yaml:"max_drawdown_per_market"`
	MaxDrawdownGlobal    float64 `yaml:"max_drawdown_global"`
	MaxLossPerTrade      float64 `yaml:"max_loss_per_trade"`

	MaxConsecutiveErrors int `yaml:"max_consecutive_errors"`
	MaxErrorsPerHour     int `yaml:"max_errors_per_hour"`

	CircuitBreakerCooldownS  int  `yaml:"circuit_breaker_cooldown_s"`
	CircuitBreakerRecoveryS  int  `yaml:"circuit_breaker_recovery_s"`
	AutoRecover              bool `yaml:"auto_recover"`
	RequireManualReset       bool `yaml:"require_manual_reset"`

	StaleFeedThresholdS    int  `yaml:"stale_feed_threshold_s"`
	HaltOnWsGaps           bool `yaml:"halt_on_ws_gaps"`
	WsGapReconcileAttempts int  `yaml:"ws_gap_reconcile_attempts"`
	WsGapRecoveryIntervalS int  `yaml:"ws_gap_recovery_interval_s"`

	PendingFillTTLS int `yaml:"pending_fill_ttl_s"`
	FeeCacheTTLS    int `yaml:"fee_cache_ttl_s"`

	DryRun bool `yaml:"dry_run"`

	ExchangeHost   string `yaml:"exchange_host"`
	MarketStreamURL string `yaml:"market_stream_url"`
	UserStreamURL  string `yaml:"user_stream_url"`
	RPCURL         string `yaml:"rpc_url"`
	ChainID        int64  `yaml:"chain_id"`

	ReconcileOrdersIntervalS  int `yaml:"reconcile_orders_interval_s"` // T1
	ReconcilePositionsIntervalS int `yaml:"reconcile_positions_interval_s"` // T2

	StorePath       string `yaml:"store_path"`
	SecretStorePath string `yaml:"secretstore_path"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	AdminListenAddr string `yaml:"admin_listen_addr"`

	// API key/secret/passphrase and wallet key are never read from YAML;
	// they come from .env or secretstore, layered on afterward. json:"-"
	// keeps them out of the session config_snapshot persisted to the store.
	APIKey        string `yaml:"-" json:"-"`
	APISecret     string `yaml:"-" json:"-"`
	APIPassphrase string `yaml:"-" json:"-"`
	WalletKeyHex  string `yaml:"-" json:"-"`
}

// Default returns the documented defaults for every optional field.
func Default() Config {
	return Config{
		OrderSizeUSDC:            100,
		MaxPositionPerMarket:     100,
		MaxLiabilityPerMarket:    1000,
		MaxTotalLiability:        10000,
		ImproveWhenSpreadTicks:   4,
		RefreshThresholdTicks:    1,
		MinRefreshIntervalMs:     500,
		GlobalRefreshCapPerSec:   10,
		InventorySkewCoefficient: 0.1,
		MomentumThresholdTicks:   3,
		MomentumWindowMs:         500,
		SweepDepthThreshold:      0.5,
		CooldownSeconds:          2,
		MaxDrawdownPerMarket:     500,
		MaxDrawdownGlobal:        2000,
		MaxLossPerTrade:          200,
		MaxConsecutiveErrors:     10,
		MaxErrorsPerHour:         50,
		CircuitBreakerCooldownS:  300,
		CircuitBreakerRecoveryS:  120,
		AutoRecover:              true,
		StaleFeedThresholdS:      10,
		HaltOnWsGaps:             true,
		WsGapReconcileAttempts:   3,
		WsGapRecoveryIntervalS:   60,
		PendingFillTTLS:          30,
		FeeCacheTTLS:             300,
		ChainID:                  137,
		ReconcileOrdersIntervalS: 30,
		ReconcilePositionsIntervalS: 60,
		StorePath:                "./data/aquoter.db",
		SecretStorePath:          "./data/secrets",
		LogLevel:                 "info",
		AdminListenAddr:          "127.0.0.1:8090",
	}
}

// ValidationError is one named-field failure; Load collects all of them
// before returning, per SPEC_FULL.md's "fail-fast on required missing
// fields" ambient-stack contract.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return strings.Join(msgs, "; ")
}

// Load reads configPath as YAML over Default(), overlays .env (if present)
// and process environment variables for secrets, then validates.
func Load(configPath, envPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", configPath, err)
		}
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: load %s: %w", envPath, err)
		}
	}

	overlayEnv(&cfg)
	overlaySecretStore(&cfg)

	if errs := validate(cfg); len(errs) > 0 {
		return Config{}, errs
	}
	return cfg, nil
}

func overlayEnv(cfg *Config) {
	if v := os.Getenv("AQUOTER_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("AQUOTER_API_SECRET"); v != "" {
		cfg.APISecret = v
	}
	if v := os.Getenv("AQUOTER_API_PASSPHRASE"); v != "" {
		cfg.APIPassphrase = v
	}
	if v := os.Getenv("AQUOTER_WALLET_KEY"); v != "" {
		cfg.WalletKeyHex = v
	}
	if v := os.Getenv("AQUOTER_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DryRun = b
		}
	}
	if v := os.Getenv("AQUOTER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// overlaySecretStore fills in any of the four secret fields still empty
// after file+env, from an encrypted-at-rest secretstore.Store. It is a
// no-op when secretstore_path doesn't point at an already-provisioned
// store, so environments that inject secrets purely via env vars or
// .env never pay for opening Badger.
func overlaySecretStore(cfg *Config) {
	if cfg.SecretStorePath == "" {
		return
	}
	if _, err := os.Stat(cfg.SecretStorePath); err != nil {
		return
	}
	ss, err := secretstore.Open(secretstore.OpenOptions{Path: cfg.SecretStorePath, ReadOnly: true})
	if err != nil {
		return
	}
	defer ss.Close()

	fill := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v, ok, err := ss.GetString(key); err == nil && ok {
			*dst = v
		}
	}
	fill(&cfg.APIKey, "api_key")
	fill(&cfg.APISecret, "api_secret")
	fill(&cfg.APIPassphrase, "api_passphrase")
	fill(&cfg.WalletKeyHex, "wallet_key")
}

// ApplyFlags overlays CLI-flag values on top of file+env config, per the
// spec §6 layering order (file, then env, then flags).
func (c Config) ApplyFlags(dryRun *bool, detectOnly *bool, assets *string, logLevel *string) Config {
	out := c
	if dryRun != nil && *dryRun {
		out.DryRun = true
	}
	if assets != nil && *assets != "" {
		out.Assets = strings.Split(*assets, ",")
	}
	if logLevel != nil && *logLevel != "" {
		out.LogLevel = *logLevel
	}
	_ = detectOnly // consumed by cmd/quoter directly; not part of Config
	return out
}

func validate(c Config) ValidationErrors {
	var errs ValidationErrors
	req := func(cond bool, field, reason string) {
		if !cond {
			errs = append(errs, ValidationError{Field: field, Reason: reason})
		}
	}

	req(len(c.Assets) > 0, "assets", "at least one asset must be configured")
	req(c.OrderSizeUSDC > 0, "order_size_usdc", "must be positive")
	req(c.MaxPositionPerMarket > 0, "max_position_per_market", "must be positive")
	req(c.MaxLiabilityPerMarket > 0, "max_liability_per_market", "must be positive")
	req(c.MaxTotalLiability >= c.MaxLiabilityPerMarket, "max_total_liability", "must be >= max_liability_per_market")
	req(c.ImproveWhenSpreadTicks >= 0, "improve_when_spread_ticks", "must be >= 0")
	req(c.MinRefreshIntervalMs >= 0, "min_refresh_interval_ms", "must be >= 0")
	req(c.GlobalRefreshCapPerSec > 0, "global_refresh_cap_per_sec", "must be positive")
	req(c.MomentumWindowMs > 0, "momentum_window_ms", "must be positive")
	req(c.SweepDepthThreshold > 0 && c.SweepDepthThreshold <= 1, "sweep_depth_threshold", "must be in (0,1]")
	req(c.WsGapReconcileAttempts > 0, "ws_gap_reconcile_attempts", "must be positive")
	req(c.ExchangeHost != "", "exchange_host", "required")
	req(c.MarketStreamURL != "", "market_stream_url", "required")
	req(c.UserStreamURL != "", "user_stream_url", "required")
	req(c.StorePath != "", "store_path", "required")
	if !c.DryRun {
		req(c.APIKey != "", "api_key", "required unless dry_run")
		req(c.APISecret != "", "api_secret", "required unless dry_run")
		req(c.APIPassphrase != "", "api_passphrase", "required unless dry_run")
		req(c.WalletKeyHex != "", "wallet_key", "required unless dry_run")
	}
	return errs
}

func (c Config) MinRefreshInterval() time.Duration {
	return time.Duration(c.MinRefreshIntervalMs) * time.Millisecond
}
func (c Config) MomentumWindow() time.Duration {
	return time.Duration(c.MomentumWindowMs) * time.Millisecond
}
func (c Config) CooldownDuration() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}
func (c Config) StaleFeedThreshold() time.Duration {
	return time.Duration(c.StaleFeedThresholdS) * time.Second
}
func (c Config) PendingFillTTL() time.Duration {
	return time.Duration(c.PendingFillTTLS) * time.Second
}
func (c Config) FeeCacheTTL() time.Duration {
	return time.Duration(c.FeeCacheTTLS) * time.Second
}
func (c Config) HaltCooldown() time.Duration {
	return time.Duration(c.CircuitBreakerCooldownS) * time.Second
}
func (c Config) RecoveryInterval() time.Duration {
	return time.Duration(c.CircuitBreakerRecoveryS) * time.Second
}
func (c Config) ReconcileOrdersInterval() time.Duration {
	return time.Duration(c.ReconcileOrdersIntervalS) * time.Second
}
func (c Config) ReconcilePositionsInterval() time.Duration {
	return time.Duration(c.ReconcilePositionsIntervalS) * time.Second
}
