package config

import (
	"errors"
	"io/fs"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/krx-sync/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
	KRX      KRXConfig      `yaml:"krx" mapstructure:"krx"`
	Ledger   LedgerConfig   `yaml:"ledger" mapstructure:"ledger"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`             // postgres | sqlite
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"` // overrides the postgres.* fields
	SQLitePath  string           `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PostgresConfig holds the connection fields the DSN is built from.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     string `yaml:"port" mapstructure:"port"`
	Name     string `yaml:"name" mapstructure:"name"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
}

// KRXConfig configures the KRX data source.
type KRXConfig struct {
	OTPURL      string  `yaml:"otp_url" mapstructure:"otp_url"`
	DownloadURL string  `yaml:"download_url" mapstructure:"download_url"`
	Referer     string  `yaml:"referer" mapstructure:"referer"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	StartDate   string  `yaml:"start_date" mapstructure:"start_date"` // YYYYMMDD, first day of price history
}

// Timeout returns the per-request timeout.
func (k KRXConfig) Timeout() time.Duration {
	return time.Duration(k.TimeoutSecs) * time.Second
}

// LedgerConfig configures the failed-entity ledger.
type LedgerConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// envBindings maps config keys to the plain environment names they are also
// read from, in addition to KRXSYNC_<KEY>.
var envBindings = map[string]string{
	"postgres.host":     "POSTGRESQL_HOST",
	"postgres.port":     "POSTGRESQL_PORT",
	"postgres.name":     "STOCK_DB_NAME",
	"postgres.user":     "POSTGRESQL_USER",
	"postgres.password": "POSTGRESQL_PASSWORD",
	"krx.otp_url":       "KRX_GEN_OTP_URL",
	"krx.download_url":  "KRX_DOWN_URL",
	"krx.referer":       "KRX_REFERER",
	"krx.user_agent":    "USER_AGENT",
}

// prefixedKeys have no default and no plain environment name. AutomaticEnv
// only resolves keys viper already knows, so they are bound explicitly.
var prefixedKeys = []string{
	"store.database_url",
	"store.pool.max_conns",
	"store.pool.min_conns",
}

// envName returns the KRXSYNC_ variable a config key is read from.
func envName(key string) string {
	return "KRXSYNC_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// .env is optional; values already in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("KRXSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, envName(key), env); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}
	for _, key := range prefixedKeys {
		if err := v.BindEnv(key, envName(key)); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "krx.db")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("krx.timeout_secs", 30)
	v.SetDefault("krx.rate_per_sec", 2)
	v.SetDefault("krx.concurrency", 1)
	v.SetDefault("krx.start_date", "19000101")
	v.SetDefault("ledger.dir", "logs/errors")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ValidateStore checks the settings needed to open the store.
func (c *Config) ValidateStore() error {
	return missingError(c.storeMissing())
}

// Validate checks every setting a sync run needs and names each missing one.
func (c *Config) Validate() error {
	missing := c.storeMissing()

	for _, kv := range []struct{ name, val string }{
		{"KRX_GEN_OTP_URL", c.KRX.OTPURL},
		{"KRX_DOWN_URL", c.KRX.DownloadURL},
		{"KRX_REFERER", c.KRX.Referer},
		{"USER_AGENT", c.KRX.UserAgent},
	} {
		if kv.val == "" {
			missing = append(missing, kv.name)
		}
	}
	if err := missingError(missing); err != nil {
		return err
	}

	if c.KRX.TimeoutSecs <= 0 {
		return eris.Errorf("config: krx.timeout_secs must be positive, got %d", c.KRX.TimeoutSecs)
	}
	if c.KRX.RatePerSec <= 0 {
		return eris.Errorf("config: krx.rate_per_sec must be positive, got %g", c.KRX.RatePerSec)
	}
	if c.KRX.Concurrency < 1 {
		return eris.Errorf("config: krx.concurrency must be at least 1, got %d", c.KRX.Concurrency)
	}
	if _, err := time.Parse("20060102", c.KRX.StartDate); err != nil {
		return eris.Errorf("config: krx.start_date %q is not YYYYMMDD", c.KRX.StartDate)
	}
	return nil
}

func (c *Config) storeMissing() []string {
	var missing []string
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			missing = append(missing, "store.sqlite_path")
		}
	case "postgres":
		if c.Store.DatabaseURL != "" {
			return nil
		}
		for _, kv := range []struct{ name, val string }{
			{"POSTGRESQL_HOST", c.Postgres.Host},
			{"POSTGRESQL_PORT", c.Postgres.Port},
			{"STOCK_DB_NAME", c.Postgres.Name},
			{"POSTGRESQL_USER", c.Postgres.User},
			{"POSTGRESQL_PASSWORD", c.Postgres.Password},
		} {
			if kv.val == "" {
				missing = append(missing, kv.name)
			}
		}
	default:
		missing = append(missing, "store.driver (postgres|sqlite)")
	}
	return missing
}

func missingError(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return eris.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
}

// DSN returns the Postgres connection string: store.database_url when set,
// otherwise one built from the postgres.* fields.
func (c *Config) DSN() string {
	if c.Store.DatabaseURL != "" {
		return c.Store.DatabaseURL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Postgres.User, c.Postgres.Password),
		Host:   net.JoinHostPort(c.Postgres.Host, c.Postgres.Port),
		Path:   "/" + c.Postgres.Name,
	}
	return u.String()
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
