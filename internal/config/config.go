package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Binance   BinanceConfig   `yaml:"binance"`
	HL        HLConfig        `yaml:"hyperliquid"`
	WS        WSConfig        `yaml:"ws"`
	Exec      ExecConfig      `yaml:"exec"`
	State     StateConfig     `yaml:"state"`
	Algo      AlgoConfig      `yaml:"algo"`
	Control   ControlConfig   `yaml:"control"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Timescale TimescaleConfig `yaml:"timescale"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type BinanceConfig struct {
	BaseURL           string        `yaml:"base_url"`
	StreamURL         string        `yaml:"stream_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RecvWindow        time.Duration `yaml:"recv_window"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	DepthLimit        int           `yaml:"depth_limit"`
	KeepAlive         time.Duration `yaml:"keep_alive"`
	APIKey            string        `yaml:"-"`
	APISecret         string        `yaml:"-"`
}

type HLConfig struct {
	BaseURL        string        `yaml:"base_url"`
	WSURL          string        `yaml:"ws_url"`
	Timeout        time.Duration `yaml:"timeout"`
	PrivateKey     string        `yaml:"-"`
	WalletAddress  string        `yaml:"-"`
	AccountAddress string        `yaml:"-"`
	VaultAddress   string        `yaml:"-"`
}

type WSConfig struct {
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type ExecConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
}

type StateConfig struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
	BadgerPath string `yaml:"badger_path"`
}

// AlgoConfig holds the inputs of the probe algorithm.
type AlgoConfig struct {
	Exchange         string          `yaml:"exchange"`
	Pair             string          `yaml:"pair"`
	OrderAmount      decimal.Decimal `yaml:"order_amount"`
	OrderPrice       decimal.Decimal `yaml:"order_price"`
	StartingCapital  decimal.Decimal `yaml:"starting_capital"`
	ScheduleInterval time.Duration   `yaml:"schedule_interval"`
	LogBestBidAsk    bool            `yaml:"log_best_bid_ask"`
	EventBuffer      int             `yaml:"event_buffer"`
}

type ControlConfig struct {
	Enabled     *bool  `yaml:"enabled"`
	Address     string `yaml:"address"`
	MetricsPath string `yaml:"metrics_path"`
}

func (c ControlConfig) EnabledValue() bool {
	return c.Enabled != nil && *c.Enabled
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	BookInterval    time.Duration `yaml:"book_interval"`
}

const (
	ExchangeBinance     = "binance"
	ExchangeHyperliquid = "hyperliquid"

	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 14
	}
	if cfg.Binance.BaseURL == "" {
		cfg.Binance.BaseURL = "https://api.binance.com"
	}
	if cfg.Binance.StreamURL == "" {
		cfg.Binance.StreamURL = "wss://stream.binance.com:9443"
	}
	if cfg.Binance.Timeout == 0 {
		cfg.Binance.Timeout = 10 * time.Second
	}
	if cfg.Binance.RecvWindow == 0 {
		cfg.Binance.RecvWindow = 5 * time.Second
	}
	if cfg.Binance.RequestsPerSecond == 0 {
		cfg.Binance.RequestsPerSecond = 10
	}
	if cfg.Binance.DepthLimit == 0 {
		cfg.Binance.DepthLimit = 1000
	}
	if cfg.Binance.KeepAlive == 0 {
		cfg.Binance.KeepAlive = 30 * time.Minute
	}
	if cfg.HL.BaseURL == "" {
		cfg.HL.BaseURL = "https://api.hyperliquid.xyz"
	}
	if cfg.HL.WSURL == "" {
		cfg.HL.WSURL = deriveWSURL(cfg.HL.BaseURL)
	}
	if cfg.HL.Timeout == 0 {
		cfg.HL.Timeout = 10 * time.Second
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 3 * time.Second
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 30 * time.Second
	}
	if cfg.Exec.MaxAttempts == 0 {
		cfg.Exec.MaxAttempts = 3
	}
	if cfg.Exec.InitialBackoff == 0 {
		cfg.Exec.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.State.Backend == "" {
		cfg.State.Backend = BackendSQLite
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/order-probe.db"
	}
	if cfg.State.BadgerPath == "" {
		cfg.State.BadgerPath = "data/order-probe.badger"
	}
	if cfg.Algo.Exchange == "" {
		cfg.Algo.Exchange = ExchangeBinance
	}
	if cfg.Algo.Pair == "" {
		cfg.Algo.Pair = "btc_usdt"
	}
	if cfg.Algo.OrderAmount.IsZero() {
		cfg.Algo.OrderAmount = decimal.RequireFromString("0.01")
	}
	if cfg.Algo.OrderPrice.IsZero() {
		cfg.Algo.OrderPrice = decimal.NewFromInt(1000)
	}
	if cfg.Algo.StartingCapital.IsZero() {
		cfg.Algo.StartingCapital = cfg.Algo.OrderAmount.Mul(cfg.Algo.OrderPrice)
	}
	if cfg.Algo.EventBuffer == 0 {
		cfg.Algo.EventBuffer = 1024
	}
	if cfg.Control.Enabled == nil {
		enabled := true
		cfg.Control.Enabled = &enabled
	}
	if cfg.Control.Address == "" {
		cfg.Control.Address = "127.0.0.1:9002"
	}
	if cfg.Control.MetricsPath == "" {
		cfg.Control.MetricsPath = "/metrics"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
	if cfg.Timescale.BookInterval == 0 {
		cfg.Timescale.BookInterval = time.Second
	}
}

func applyEnvOverrides(cfg *Config) {
	setFromEnv(&cfg.Binance.APIKey, "BINANCE_API_KEY")
	setFromEnv(&cfg.Binance.APISecret, "BINANCE_API_SECRET")
	setFromEnv(&cfg.HL.PrivateKey, "HL_PRIVATE_KEY")
	setFromEnv(&cfg.HL.WalletAddress, "HL_WALLET_ADDRESS")
	setFromEnv(&cfg.HL.AccountAddress, "HL_ACCOUNT_ADDRESS")
	setFromEnv(&cfg.HL.VaultAddress, "HL_VAULT_ADDRESS")
	if cfg.HL.AccountAddress == "" {
		cfg.HL.AccountAddress = cfg.HL.WalletAddress
	}
	setFromEnv(&cfg.Telegram.Token, "PROBE_TELEGRAM_TOKEN")
	setFromEnv(&cfg.Telegram.ChatID, "PROBE_TELEGRAM_CHAT_ID")
	setFromEnv(&cfg.Timescale.DSN, "PROBE_TIMESCALE_DSN")
}

func setFromEnv(dst *string, key string) {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		*dst = val
	}
}

func validate(cfg *Config) error {
	switch cfg.Algo.Exchange {
	case ExchangeBinance, ExchangeHyperliquid:
	default:
		if strings.ToLower(cfg.Algo.Exchange) != cfg.Algo.Exchange {
			return fmt.Errorf("algo.exchange %q must be lowercase", cfg.Algo.Exchange)
		}
		return fmt.Errorf("algo.exchange %q is not supported", cfg.Algo.Exchange)
	}
	if err := validatePair(cfg.Algo.Pair); err != nil {
		return err
	}
	if !cfg.Algo.OrderAmount.IsPositive() {
		return errors.New("algo.order_amount must be > 0")
	}
	if !cfg.Algo.OrderPrice.IsPositive() {
		return errors.New("algo.order_price must be > 0")
	}
	if cfg.Algo.StartingCapital.IsNegative() {
		return errors.New("algo.starting_capital must be >= 0")
	}
	if cfg.Algo.ScheduleInterval < 0 {
		return errors.New("algo.schedule_interval must be >= 0")
	}
	if cfg.Algo.EventBuffer < 0 {
		return errors.New("algo.event_buffer must be >= 0")
	}
	if cfg.Exec.MaxAttempts < 1 {
		return errors.New("exec.max_attempts must be >= 1")
	}
	if cfg.Exec.InitialBackoff < 0 {
		return errors.New("exec.initial_backoff must be >= 0")
	}
	if cfg.Binance.RequestsPerSecond < 0 {
		return errors.New("binance.requests_per_second must be >= 0")
	}
	switch cfg.State.Backend {
	case BackendSQLite, BackendBadger:
	default:
		return fmt.Errorf("state.backend %q is not supported", cfg.State.Backend)
	}
	if cfg.Control.EnabledValue() && !strings.HasPrefix(cfg.Control.MetricsPath, "/") {
		return errors.New("control.metrics_path must start with /")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}

// validatePair mirrors market.ParsePair without importing it, so config stays a leaf package.
func validatePair(pair string) error {
	if pair == "" {
		return errors.New("algo.pair is required")
	}
	if strings.ToLower(pair) != pair {
		return fmt.Errorf("algo.pair %q must be lowercase", pair)
	}
	base, quote, ok := strings.Cut(pair, "_")
	if !ok || base == "" || quote == "" || strings.Contains(quote, "_") {
		return fmt.Errorf("algo.pair %q must be snake case like btc_usdt", pair)
	}
	return nil
}

func deriveWSURL(baseURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	switch {
	case strings.HasPrefix(trimmed, "https://"):
		return "wss://" + strings.TrimPrefix(trimmed, "https://") + "/ws"
	case strings.HasPrefix(trimmed, "http://"):
		return "ws://" + strings.TrimPrefix(trimmed, "http://") + "/ws"
	}
	return trimmed + "/ws"
}
