package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBackendURL  = "https://api-trustbridge.izcy.tech"
	DefaultChainID     = 84532
	DefaultRPCURL      = "https://sepolia.base.org"
	DefaultExplorerURL = "https://sepolia.basescan.org"
)

// Notify configures outcome notifications
type Notify struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
}

// Config holds the application configuration
type Config struct {
	BackendURL         string            `yaml:"backend_url"`
	ChainID            int64             `yaml:"chain_id"`
	RPCURL             string            `yaml:"rpc_url"`
	ExplorerURL        string            `yaml:"explorer_url"`
	SwapContract       string            `yaml:"swap_contract"`
	PrivateKey         string            `yaml:"private_key"`
	GasLimit           uint64            `yaml:"gas_limit"`
	Slippage           decimal.Decimal   `yaml:"slippage"`
	QuoteDebounce      time.Duration     `yaml:"quote_debounce"`
	QuoteValidity      time.Duration     `yaml:"quote_validity"`
	MaxQuoteDivergence decimal.Decimal   `yaml:"max_quote_divergence"`
	PollInterval       time.Duration     `yaml:"poll_interval"`
	PollMaxAttempts    int               `yaml:"poll_max_attempts"`
	RequestTimeout     time.Duration     `yaml:"request_timeout"`
	SessionPath        string            `yaml:"session_path"`
	JournalDir         string            `yaml:"journal_dir"`
	TokenAliases       map[string]string `yaml:"token_aliases"`
	LogLevel           string            `yaml:"log_level"`
	Notify             Notify            `yaml:"notify"`
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	return load(viper.New(), true)
}

func load(v *viper.Viper, readFile bool) (*Config, error) {
	v.SetConfigName(".trustbridge")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("TRUSTBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if readFile {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	slippage, err := decimal.NewFromString(v.GetString("slippage"))
	if err != nil {
		return nil, fmt.Errorf("invalid slippage %q: %w", v.GetString("slippage"), err)
	}
	divergence, err := decimal.NewFromString(v.GetString("max_quote_divergence"))
	if err != nil {
		return nil, fmt.Errorf("invalid max_quote_divergence %q: %w", v.GetString("max_quote_divergence"), err)
	}

	aliases := make(map[string]string)
	for currency, symbol := range v.GetStringMapString("token_aliases") {
		aliases[strings.ToUpper(currency)] = strings.ToUpper(symbol)
	}

	cfg := &Config{
		BackendURL:         strings.TrimRight(v.GetString("backend_url"), "/"),
		ChainID:            v.GetInt64("chain_id"),
		RPCURL:             v.GetString("rpc_url"),
		ExplorerURL:        strings.TrimRight(v.GetString("explorer_url"), "/"),
		SwapContract:       v.GetString("swap_contract"),
		PrivateKey:         v.GetString("private_key"),
		GasLimit:           v.GetUint64("gas_limit"),
		Slippage:           slippage,
		QuoteDebounce:      v.GetDuration("quote_debounce"),
		QuoteValidity:      v.GetDuration("quote_validity"),
		MaxQuoteDivergence: divergence,
		PollInterval:       v.GetDuration("poll_interval"),
		PollMaxAttempts:    v.GetInt("poll_max_attempts"),
		RequestTimeout:     v.GetDuration("request_timeout"),
		SessionPath:        expandHome(v.GetString("session_path")),
		JournalDir:         expandHome(v.GetString("journal_dir")),
		TokenAliases:       aliases,
		LogLevel:           v.GetString("log_level"),
		Notify: Notify{
			TelegramToken:  v.GetString("notify.telegram_token"),
			TelegramChatID: v.GetInt64("notify.telegram_chat_id"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend_url", DefaultBackendURL)
	v.SetDefault("chain_id", DefaultChainID)
	v.SetDefault("rpc_url", DefaultRPCURL)
	v.SetDefault("explorer_url", DefaultExplorerURL)
	v.SetDefault("swap_contract", "")
	v.SetDefault("private_key", "")
	v.SetDefault("gas_limit", 0)
	v.SetDefault("slippage", "0.02")
	v.SetDefault("quote_debounce", 500*time.Millisecond)
	v.SetDefault("quote_validity", time.Minute)
	v.SetDefault("max_quote_divergence", "0.05")
	v.SetDefault("poll_interval", 5*time.Second)
	v.SetDefault("poll_max_attempts", 60)
	v.SetDefault("request_timeout", 15*time.Second)
	v.SetDefault("session_path", filepath.Join("~", ".trustbridge-session.json"))
	v.SetDefault("journal_dir", filepath.Join("~", ".trustbridge", "journal"))
	v.SetDefault("token_aliases", map[string]string{"IDR": "IDRX", "USD": "USDC"})
	v.SetDefault("log_level", "warn")
	v.SetDefault("notify.telegram_token", "")
	v.SetDefault("notify.telegram_chat_id", 0)
}

// Validate checks values that would otherwise fail deep inside a command
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url must not be empty")
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("chain_id must be positive, got %d", c.ChainID)
	}
	if c.Slippage.IsNegative() || c.Slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("slippage must be in [0, 1), got %s", c.Slippage)
	}
	if c.MaxQuoteDivergence.IsNegative() {
		return fmt.Errorf("max_quote_divergence must not be negative")
	}
	if c.SwapContract != "" && !common.IsHexAddress(c.SwapContract) {
		return fmt.Errorf("swap_contract %q is not an address", c.SwapContract)
	}
	if c.PollInterval <= 0 || c.PollMaxAttempts <= 0 {
		return fmt.Errorf("poll_interval and poll_max_attempts must be positive")
	}
	return nil
}

// WalletEnabled reports whether the wallet rail can sign and swap
func (c *Config) WalletEnabled() bool {
	return c.PrivateKey != "" && c.SwapContract != ""
}

// TxURL links a transaction on the block explorer
func (c *Config) TxURL(hash string) string {
	if hash == "" || c.ExplorerURL == "" {
		return ""
	}
	return c.ExplorerURL + "/tx/" + hash
}

// AddressURL links an address on the block explorer
func (c *Config) AddressURL(addr string) string {
	if c.ExplorerURL == "" {
		return ""
	}
	return c.ExplorerURL + "/address/" + addr
}

// Masked returns the config as YAML with secrets hidden
func (c *Config) Masked() ([]byte, error) {
	out := *c
	out.PrivateKey = mask(c.PrivateKey)
	out.Notify.TelegramToken = mask(c.Notify.TelegramToken)
	return yaml.Marshal(maskedView(out))
}

// maskedView swaps decimals for strings so the YAML stays readable
func maskedView(c Config) map[string]any {
	return map[string]any{
		"backend_url":          c.BackendURL,
		"chain_id":             c.ChainID,
		"rpc_url":              c.RPCURL,
		"explorer_url":         c.ExplorerURL,
		"swap_contract":        c.SwapContract,
		"private_key":          c.PrivateKey,
		"gas_limit":            c.GasLimit,
		"slippage":             c.Slippage.String(),
		"quote_debounce":       c.QuoteDebounce.String(),
		"quote_validity":       c.QuoteValidity.String(),
		"max_quote_divergence": c.MaxQuoteDivergence.String(),
		"poll_interval":        c.PollInterval.String(),
		"poll_max_attempts":    c.PollMaxAttempts,
		"request_timeout":      c.RequestTimeout.String(),
		"session_path":         c.SessionPath,
		"journal_dir":          c.JournalDir,
		"token_aliases":        c.TokenAliases,
		"log_level":            c.LogLevel,
		"notify": map[string]any{
			"telegram_token":   c.Notify.TelegramToken,
			"telegram_chat_id": c.Notify.TelegramChatID,
		},
	}
}

func mask(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "****"
	default:
		return secret[:4] + "****" + secret[len(secret)-4:]
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// NewLogger builds a console logger on stderr. Unknown levels fall back to warn.
func NewLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.WarnLevel
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		zap.NewAtomicLevelAt(lvl),
	)
	return zap.New(core)
}
