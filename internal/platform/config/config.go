// Package config はアプリケーション設定をviperで読み込みます。
// 優先順位は 環境変数 > 設定ファイル(CONFIG_PATH) > デフォルト値 です。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config はプロセス全体の設定です。
type Config struct {
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Provider   string           `mapstructure:"provider"` // finazon | twelvedata
	Finazon    FinazonConfig    `mapstructure:"finazon"`
	TwelveData TwelveDataConfig `mapstructure:"twelvedata"`
	Governor   GovernorConfig   `mapstructure:"governor"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Log        LogConfig        `mapstructure:"log"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Calendar   string           `mapstructure:"calendar"`    // nyse | business
	StateStore string           `mapstructure:"state_store"` // gorm | redis
	Watchlist  []string         `mapstructure:"watchlist"`
}

type DBConfig struct {
	Driver        string `mapstructure:"driver"` // sqlite | postgres
	Path          string `mapstructure:"path"`   // sqlite file
	DSN           string `mapstructure:"dsn"`    // postgres DSN, overrides the fields below
	Host          string `mapstructure:"host"`
	Port          string `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Name          string `mapstructure:"name"`
	SSLMode       string `mapstructure:"sslmode"`
	RunMigrations bool   `mapstructure:"run_migrations"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	StateKey string `mapstructure:"state_key"`
}

// Addr はgo-redis用の host:port を返します。
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type FinazonConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TwelveDataConfig は代替プロバイダーの設定です。
type TwelveDataConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type GovernorConfig struct {
	DailyLimit         int     `mapstructure:"daily_limit"`
	PerKeyLimit        int     `mapstructure:"per_key_limit"`
	Burst              int     `mapstructure:"burst"`
	RatePerMinute      float64 `mapstructure:"rate_per_minute"`
	PowerSaveThreshold int     `mapstructure:"power_save_threshold"`
}

type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	TTL       time.Duration `mapstructure:"ttl"`
	Namespace string        `mapstructure:"namespace"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text | json
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.path", "stock_history.db")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "stock_history")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.run_migrations", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.state_key", "governor:state")

	v.SetDefault("provider", "finazon")
	v.SetDefault("finazon.api_key", "")
	v.SetDefault("finazon.base_url", "https://api.finazon.io/latest/finazon/us_stocks_essential")
	v.SetDefault("finazon.timeout", 10*time.Second)
	v.SetDefault("twelvedata.api_key", "")
	v.SetDefault("twelvedata.base_url", "https://api.twelvedata.com")
	v.SetDefault("twelvedata.timeout", 10*time.Second)

	v.SetDefault("governor.daily_limit", 850)
	v.SetDefault("governor.per_key_limit", 30)
	v.SetDefault("governor.burst", 6)
	v.SetDefault("governor.rate_per_minute", 18.0)
	v.SetDefault("governor.power_save_threshold", 150)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.namespace", "bars")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("calendar", "nyse")
	v.SetDefault("state_store", "gorm")
	v.SetDefault("watchlist", []string{})
}

// Load は設定を読み込みます。pathが空ならCONFIG_PATH環境変数を参照し、それも空なら設定ファイルなしで動作します。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	for i, s := range cfg.Watchlist {
		cfg.Watchlist[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return &cfg, nil
}
