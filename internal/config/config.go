package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Venue    Venue    `mapstructure:"venue"`
	Trading  Trading  `mapstructure:"trading"`
	Notify   Notify   `mapstructure:"notify"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Tracing  Tracing  `mapstructure:"tracing"`
}

// Venue holds the configuration for the trading venue bridge.
type Venue struct {
	BaseURL        string        `mapstructure:"base_url"`
	Login          string        `mapstructure:"login"`
	Password       string        `mapstructure:"password"`
	Server         string        `mapstructure:"server"`
	Symbol         string        `mapstructure:"symbol"`
	Timeframe      string        `mapstructure:"timeframe"`
	BarCount       int           `mapstructure:"bar_count"`
	Deviation      int           `mapstructure:"deviation"`
	Magic          int64         `mapstructure:"magic"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	DryRun         bool          `mapstructure:"dry_run"`

	// Paper account used when DryRun is set.
	PaperBalance float64 `mapstructure:"paper_balance"`
	ContractSize float64 `mapstructure:"contract_size"`
}

// Trading holds the configuration for the phase strategy.
type Trading struct {
	BaseLot             float64       `mapstructure:"base_lot"`
	StrongLot           float64       `mapstructure:"strong_lot"`
	StrongMoveThreshold float64       `mapstructure:"strong_move_threshold"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	PhaseCooldown       time.Duration `mapstructure:"phase_cooldown"`

	// Used only when AutoStart is set; otherwise the phase targets come
	// from the configure command.
	AutoStart    bool    `mapstructure:"auto_start"`
	MaxTrades    int     `mapstructure:"max_trades"`
	ProfitTarget float64 `mapstructure:"profit_target"`
	MaxPhases    int     `mapstructure:"max_phases"`
}

// Notify holds the notification channel settings. Empty values disable a channel.
type Notify struct {
	DiscordWebhook string `mapstructure:"discord_webhook"`
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID string `mapstructure:"telegram_chat_id"`
	WebSocket      bool   `mapstructure:"websocket"`
}

// Server holds the configuration for the HTTP command/status server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the session journal.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Tracing toggles the OpenTelemetry stdout exporter.
type Tracing struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	err = v.ReadInConfig()
	if err != nil {
		return
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("venue.base_url", "http://127.0.0.1:8228")
	v.SetDefault("venue.symbol", "XAUUSD")
	v.SetDefault("venue.timeframe", "M5")
	v.SetDefault("venue.bar_count", 100)
	v.SetDefault("venue.deviation", 20)
	v.SetDefault("venue.magic", 234000)
	v.SetDefault("venue.retry_attempts", 3)
	v.SetDefault("venue.retry_delay", 5*time.Second)
	v.SetDefault("venue.rate_limit", 10)      // requests per second
	v.SetDefault("venue.rate_limit_burst", 5) // burst size
	v.SetDefault("venue.paper_balance", 10000.0)
	v.SetDefault("venue.contract_size", 100.0)

	v.SetDefault("trading.base_lot", 0.01)
	v.SetDefault("trading.strong_lot", 0.02)
	v.SetDefault("trading.strong_move_threshold", 1.8)
	v.SetDefault("trading.poll_interval", 60*time.Second)
	v.SetDefault("trading.phase_cooldown", 10*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("server.port", 8080)
	// Session-only journal; tables are dropped on every start anyway.
	v.SetDefault("database.dsn", "file::memory:?cache=shared")
}
