package config

import (
	"fmt"
	"os"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig
	Store       StoreConfig
	RedisClient Redis
	RedisKeys   RedisKeys
	Postgres    Postgres
	Cache       CacheConfig
	Edamam      Edamam
	Log         LogConfig
}

// defaultConfig デフォルト設定
func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port: 8082,
			Mode: ProductionMode,
		},
		Store: StoreConfig{
			Driver: DriverMemory,
		},
		RedisClient: Redis{
			Host: "localhost",
			Port: 6379,
			DB:   0,
		},
		RedisKeys: RedisKeys{
			EntryPrefix:  "nutricache:fact:",
			MarkerPrefix: "nutricache:marker:",
			// ScanCount は省略可能（デフォルト値100が使用される）
		},
		Postgres: Postgres{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "nutricache",
			SSLMode: "disable",
		},
		Cache: CacheConfig{
			TTL:             time.Hour,
			RetryAttempts:   3,
			RetryBaseDelay:  100 * time.Millisecond,
			SweepSchedule:   "@every 15m",
			ApproxEntrySize: 256,
		},
		Edamam: Edamam{
			BaseURL: "https://api.edamam.com",
			Timeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig 設定を読み込む
// .envを読み込んだ後、デフォルト値にYAMLファイルの設定をマージする
// pathが空の場合は環境変数 CONFIG_PATH か config.yaml を使う
func LoadConfig(path string) Config {
	// .envがなくてもエラーにはしない
	_ = godotenv.Load()

	conf := defaultConfig()

	// YAMLファイルから設定を読み込む（存在する場合）
	configPath := path
	if configPath == "" {
		configPath = getConfigPath()
	}
	if data, err := os.ReadFile(configPath); err == nil {
		var yc yamlConfig
		if err := yaml.Unmarshal(data, &yc); err == nil {
			conf = mergeConfig(conf, yc.toConfig())
		} else {
			// YAMLのパースエラーは無視してデフォルト値を使用
			fmt.Printf("Warning: Failed to parse config file %s: %v, using defaults\n", configPath, err)
		}
	}

	// パスワードは環境変数を優先する
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		conf.RedisClient.Password = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		conf.Postgres.Password = v
	}
	if v := os.Getenv("EDAMAM_APP_ID"); v != "" {
		conf.Edamam.AppID = v
	}
	if v := os.Getenv("EDAMAM_APP_KEY"); v != "" {
		conf.Edamam.AppKey = v
	}
	return conf
}

// Validate 設定値を検証する
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverRedis, DriverPostgres:
	default:
		return platformerrors.Newf(platformerrors.CodeInvalidConfig,
			"unknown store driver %q (use 'memory', 'redis' or 'postgres')", c.Store.Driver)
	}
	if c.Cache.TTL <= 0 {
		return platformerrors.New(platformerrors.CodeInvalidConfig, "cache.ttl must be positive")
	}
	if c.Cache.RetryAttempts < 1 {
		return platformerrors.New(platformerrors.CodeInvalidConfig, "cache.retry_attempts must be at least 1")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return platformerrors.Newf(platformerrors.CodeInvalidConfig, "server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// getConfigPath 設定ファイルのパスを取得
// 環境変数 CONFIG_PATH が設定されている場合はそれを使用
// それ以外は config.yaml を探す
func getConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "config.yaml"
}

// yamlConfig YAMLファイル用の一時的な構造体（time.Durationを文字列として読み込む）
type yamlConfig struct {
	Server struct {
		Port int    `yaml:"port"`
		Mode string `yaml:"mode"`
	} `yaml:"server"`
	Store struct {
		Driver string `yaml:"driver"`
	} `yaml:"store"`
	RedisClient struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis_client"`
	RedisKeys struct {
		EntryPrefix  string `yaml:"entry_prefix"`
		MarkerPrefix string `yaml:"marker_prefix"`
		ScanCount    int64  `yaml:"scan_count"`
	} `yaml:"redis_keys"`
	Postgres struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"dbname"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"postgres"`
	Cache struct {
		TTL             string `yaml:"ttl"`
		RetryAttempts   int    `yaml:"retry_attempts"`
		RetryBaseDelay  string `yaml:"retry_base_delay"`
		SweepSchedule   string `yaml:"sweep_schedule"`
		ApproxEntrySize int    `yaml:"approx_entry_size"`
	} `yaml:"cache"`
	Edamam struct {
		BaseURL string `yaml:"base_url"`
		AppID   string `yaml:"app_id"`
		AppKey  string `yaml:"app_key"`
		Timeout string `yaml:"timeout"`
	} `yaml:"edamam"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// toConfig yamlConfigをConfigに変換（time.Durationの文字列をパース）
func (yc yamlConfig) toConfig() Config {
	parseDuration := func(s string) time.Duration {
		if s == "" {
			return 0
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0
		}
		return d
	}

	var mode Mode
	switch yc.Server.Mode {
	case "":
	case string(DebugMode):
		mode = DebugMode
	default:
		mode = ProductionMode
	}

	return Config{
		Server: ServerConfig{
			Port: yc.Server.Port,
			Mode: mode,
		},
		Store: StoreConfig{
			Driver: Driver(yc.Store.Driver),
		},
		RedisClient: Redis{
			Host:     yc.RedisClient.Host,
			Port:     yc.RedisClient.Port,
			Password: yc.RedisClient.Password,
			DB:       yc.RedisClient.DB,
		},
		RedisKeys: RedisKeys{
			EntryPrefix:  yc.RedisKeys.EntryPrefix,
			MarkerPrefix: yc.RedisKeys.MarkerPrefix,
			ScanCount:    yc.RedisKeys.ScanCount,
		},
		Postgres: Postgres{
			Host:     yc.Postgres.Host,
			Port:     yc.Postgres.Port,
			User:     yc.Postgres.User,
			Password: yc.Postgres.Password,
			DBName:   yc.Postgres.DBName,
			SSLMode:  yc.Postgres.SSLMode,
		},
		Cache: CacheConfig{
			TTL:             parseDuration(yc.Cache.TTL),
			RetryAttempts:   yc.Cache.RetryAttempts,
			RetryBaseDelay:  parseDuration(yc.Cache.RetryBaseDelay),
			SweepSchedule:   yc.Cache.SweepSchedule,
			ApproxEntrySize: yc.Cache.ApproxEntrySize,
		},
		Edamam: Edamam{
			BaseURL: yc.Edamam.BaseURL,
			AppID:   yc.Edamam.AppID,
			AppKey:  yc.Edamam.AppKey,
			Timeout: parseDuration(yc.Edamam.Timeout),
		},
		Log: LogConfig{
			Level: yc.Log.Level,
		},
	}
}

// mergeConfig YAMLから読み込んだ設定でデフォルト設定をマージ
// YAMLで設定されていない項目はデフォルト値を使用
func mergeConfig(defaultConfig, yamlConfig Config) Config {
	merged := defaultConfig

	// Server
	if yamlConfig.Server.Port != 0 {
		merged.Server.Port = yamlConfig.Server.Port
	}
	if yamlConfig.Server.Mode != "" {
		merged.Server.Mode = yamlConfig.Server.Mode
	}

	// Store
	if yamlConfig.Store.Driver != "" {
		merged.Store.Driver = yamlConfig.Store.Driver
	}

	// RedisClient
	if yamlConfig.RedisClient.Host != "" {
		merged.RedisClient.Host = yamlConfig.RedisClient.Host
	}
	if yamlConfig.RedisClient.Port != 0 {
		merged.RedisClient.Port = yamlConfig.RedisClient.Port
	}
	if yamlConfig.RedisClient.Password != "" {
		merged.RedisClient.Password = yamlConfig.RedisClient.Password
	}
	if yamlConfig.RedisClient.DB != 0 || yamlConfig.RedisClient.Host != "" {
		merged.RedisClient.DB = yamlConfig.RedisClient.DB
	}

	// RedisKeys
	if yamlConfig.RedisKeys.EntryPrefix != "" {
		merged.RedisKeys.EntryPrefix = yamlConfig.RedisKeys.EntryPrefix
	}
	if yamlConfig.RedisKeys.MarkerPrefix != "" {
		merged.RedisKeys.MarkerPrefix = yamlConfig.RedisKeys.MarkerPrefix
	}
	if yamlConfig.RedisKeys.ScanCount != 0 {
		merged.RedisKeys.ScanCount = yamlConfig.RedisKeys.ScanCount
	}

	// Postgres
	if yamlConfig.Postgres.Host != "" {
		merged.Postgres.Host = yamlConfig.Postgres.Host
	}
	if yamlConfig.Postgres.Port != 0 {
		merged.Postgres.Port = yamlConfig.Postgres.Port
	}
	if yamlConfig.Postgres.User != "" {
		merged.Postgres.User = yamlConfig.Postgres.User
	}
	if yamlConfig.Postgres.Password != "" {
		merged.Postgres.Password = yamlConfig.Postgres.Password
	}
	if yamlConfig.Postgres.DBName != "" {
		merged.Postgres.DBName = yamlConfig.Postgres.DBName
	}
	if yamlConfig.Postgres.SSLMode != "" {
		merged.Postgres.SSLMode = yamlConfig.Postgres.SSLMode
	}

	// Cache
	if yamlConfig.Cache.TTL != 0 {
		merged.Cache.TTL = yamlConfig.Cache.TTL
	}
	if yamlConfig.Cache.RetryAttempts != 0 {
		merged.Cache.RetryAttempts = yamlConfig.Cache.RetryAttempts
	}
	if yamlConfig.Cache.RetryBaseDelay != 0 {
		merged.Cache.RetryBaseDelay = yamlConfig.Cache.RetryBaseDelay
	}
	if yamlConfig.Cache.SweepSchedule != "" {
		merged.Cache.SweepSchedule = yamlConfig.Cache.SweepSchedule
	}
	if yamlConfig.Cache.ApproxEntrySize != 0 {
		merged.Cache.ApproxEntrySize = yamlConfig.Cache.ApproxEntrySize
	}

	// Edamam
	if yamlConfig.Edamam.BaseURL != "" {
		merged.Edamam.BaseURL = yamlConfig.Edamam.BaseURL
	}
	if yamlConfig.Edamam.AppID != "" {
		merged.Edamam.AppID = yamlConfig.Edamam.AppID
	}
	if yamlConfig.Edamam.AppKey != "" {
		merged.Edamam.AppKey = yamlConfig.Edamam.AppKey
	}
	if yamlConfig.Edamam.Timeout != 0 {
		merged.Edamam.Timeout = yamlConfig.Edamam.Timeout
	}

	// Log
	if yamlConfig.Log.Level != "" {
		merged.Log.Level = yamlConfig.Log.Level
	}

	return merged
}
