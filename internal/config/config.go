package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Auth    AuthConfig    `mapstructure:"auth"`
	SMTP    SMTPConfig    `mapstructure:"smtp"`
	Cron    CronConfig    `mapstructure:"cron"`
	Runs    RunsConfig    `mapstructure:"runs"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
	// ConfigDir holds the per-policy run config documents and the token file.
	ConfigDir string `mapstructure:"config_dir"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type GatewayConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// FetchRetries bounds extra attempts for idempotent reads. Writes are
	// never auto-retried.
	FetchRetries int `mapstructure:"fetch_retries"`
}

type AuthConfig struct {
	TokenFile string `mapstructure:"token_file"`
	// RefreshWindow triggers a token refresh when expiry is this close.
	RefreshWindow time.Duration `mapstructure:"refresh_window"`

	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	AuthURL      string `mapstructure:"auth_url"`
	TokenURL     string `mapstructure:"token_url"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

type SMTPConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	From          string `mapstructure:"from"`
	To            string `mapstructure:"to"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type CronConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	InvestPrimary   string `mapstructure:"invest_primary"`
	InvestSecondary string `mapstructure:"invest_secondary"`
	Sell            string `mapstructure:"sell"`
	SellStale       string `mapstructure:"sell_stale"`
}

type RunsConfig struct {
	// Timeout aborts a run, including any reconciler batches still waiting
	// on the inter-batch delay. Already submitted batches stay committed.
	Timeout time.Duration `mapstructure:"timeout"`
	// BatchDelay is the politeness wait between reconciler batches.
	BatchDelay time.Duration `mapstructure:"batch_delay"`
	BatchSize  int           `mapstructure:"batch_size"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INVESTHOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.config_dir", "config")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("gateway.base_url", "https://api.bondora.com")
	v.SetDefault("gateway.timeout", "15s")
	v.SetDefault("gateway.fetch_retries", 2)
	v.SetDefault("auth.token_file", "oauth2.json")
	v.SetDefault("auth.refresh_window", "48h")
	v.SetDefault("auth.auth_url", "https://www.bondora.com/oauth/authorize")
	v.SetDefault("auth.token_url", "https://api.bondora.com/oauth/access_token")
	v.SetDefault("smtp.port", 465)
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.invest_primary", "@every 1h")
	v.SetDefault("cron.invest_secondary", "@every 1h")
	v.SetDefault("cron.sell", "@every 6h")
	v.SetDefault("cron.sell_stale", "@every 24h")
	v.SetDefault("runs.timeout", "10m")
	v.SetDefault("runs.batch_delay", "3s")
	v.SetDefault("runs.batch_size", 100)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
