package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"digit_bot/internal/models"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	envPrefix         = "DIGITBOT"
	configDir         = "configs"
	defaultConfigFile = "values_local.yaml"
)

// Config ...
type Config struct {
	Service struct {
		Name string `mapstructure:"name"`
	} `mapstructure:"service"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`

	Exchange ExchangeConfig `mapstructure:"exchange"`
	Session  SessionConfig  `mapstructure:"session"`
	Ticks    TicksConfig    `mapstructure:"ticks"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Relay    RelayConfig    `mapstructure:"relay"`

	Telegram struct {
		Token  string `mapstructure:"token"`
		ChatID int64  `mapstructure:"chat_id"`
	} `mapstructure:"telegram"`

	Tracing struct {
		Enabled bool   `mapstructure:"enabled"`
		Host    string `mapstructure:"host"`
		Port    int    `mapstructure:"port"`
	} `mapstructure:"tracing"`

	Health struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"health"`
}

// ExchangeConfig адрес WebSocket API биржи. app_id добавляется к URL.
type ExchangeConfig struct {
	URL   string `mapstructure:"url"`
	AppID string `mapstructure:"app_id"`
}

// Endpoint url с app_id.
func (e ExchangeConfig) Endpoint() string {
	if e.AppID == "" {
		return e.URL
	}
	sep := "?"
	if strings.Contains(e.URL, "?") {
		sep = "&"
	}
	return e.URL + sep + "app_id=" + e.AppID
}

type SessionConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	BackoffMin     time.Duration `mapstructure:"backoff_min"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	BackoffFactor  float64       `mapstructure:"backoff_factor"`
	RateLimit      float64       `mapstructure:"rate_limit"` // запросов в секунду
	RateBurst      int           `mapstructure:"rate_burst"`
}

type TicksConfig struct {
	HistorySize     int            `mapstructure:"history_size"`
	DefaultPipScale int            `mapstructure:"default_pip_scale"`
	PipScales       map[string]int `mapstructure:"pip_scales"`
	WarmupCount     int            `mapstructure:"warmup_count"`
}

type EngineConfig struct {
	AutoStart bool                    `mapstructure:"auto_start"`
	Settings  models.StrategySettings `mapstructure:"settings"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // file | postgres
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type RelayConfig struct {
	Addr     string `mapstructure:"addr"`
	Upstream string `mapstructure:"upstream"`
	AppID    string `mapstructure:"app_id"`
}

// NewConfig читает configs/$CONFIG_FILE (по умолчанию values_local.yaml).
func NewConfig() (*Config, error) {
	name := os.Getenv(configFilePathENV)
	if name == "" {
		name = defaultConfigFile
	}
	return Load(filepath.Join(configDir, name))
}

// Load дефолты -> файл (если есть) -> DIGITBOT_* из окружения.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// файла может не быть: тогда живём на дефолтах и env
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, errors.Wrapf(err, "read config %s", path)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if token := os.Getenv(tokenTelegramENV); token != "" {
		cfg.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		cfg.Storage.DSN = dsn
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Exchange.URL == "" {
		return errors.New("exchange.url is required")
	}
	if c.Ticks.HistorySize <= 0 {
		return errors.New("ticks.history_size must be > 0")
	}
	switch c.Storage.Driver {
	case "file", "postgres":
	default:
		return errors.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return errors.New("storage.dsn is required for postgres")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "digit_bot")
	v.SetDefault("logging.level", "info")

	v.SetDefault("exchange.url", "wss://ws.derivws.com/websockets/v3")
	v.SetDefault("exchange.app_id", "")

	v.SetDefault("session.request_timeout", 15*time.Second)
	v.SetDefault("session.ping_interval", 30*time.Second)
	v.SetDefault("session.backoff_min", time.Second)
	v.SetDefault("session.backoff_max", 30*time.Second)
	v.SetDefault("session.backoff_factor", 2.0)
	v.SetDefault("session.rate_limit", 20.0)
	v.SetDefault("session.rate_burst", 5)

	v.SetDefault("ticks.history_size", 30)
	v.SetDefault("ticks.default_pip_scale", 2)
	v.SetDefault("ticks.pip_scales", map[string]int{})
	v.SetDefault("ticks.warmup_count", 30)

	d := models.DefaultStrategySettings()
	v.SetDefault("engine.auto_start", false)
	v.SetDefault("engine.settings.symbol", d.Symbol)
	v.SetDefault("engine.settings.entry_value", d.EntryValue)
	v.SetDefault("engine.settings.profit_target", d.ProfitTarget)
	v.SetDefault("engine.settings.loss_limit", d.LossLimit)
	v.SetDefault("engine.settings.martingale_factor", d.MartingaleFactor)
	v.SetDefault("engine.settings.max_stake", d.MaxStake)
	v.SetDefault("engine.settings.contract_type", string(d.ContractType))
	v.SetDefault("engine.settings.prediction", d.Prediction)
	v.SetDefault("engine.settings.duration", d.Duration)
	v.SetDefault("engine.settings.duration_unit", d.DurationUnit)
	v.SetDefault("engine.settings.currency", d.Currency)
	v.SetDefault("engine.settings.trigger_mode", string(d.TriggerMode))

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.path", "data/state.yaml")
	v.SetDefault("storage.dsn", "")

	v.SetDefault("relay.addr", ":8090")
	v.SetDefault("relay.upstream", "wss://ws.derivws.com/websockets/v3")
	v.SetDefault("relay.app_id", "")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)

	v.SetDefault("health.addr", ":8080")
}
