package config

import "time"

// Mode サーバーの動作モード
type Mode string

const (
	DebugMode      Mode = "debug"
	ProductionMode Mode = "release"
)

// Driver 永続化ストアの種類
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverRedis    Driver = "redis"
	DriverPostgres Driver = "postgres"
)

type ServerConfig struct {
	Port int
	Mode Mode
}

type StoreConfig struct {
	Driver Driver
}

type Redis struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type RedisKeys struct {
	EntryPrefix  string
	MarkerPrefix string
	ScanCount    int64
}

type Postgres struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type CacheConfig struct {
	TTL             time.Duration
	RetryAttempts   int
	RetryBaseDelay  time.Duration
	SweepSchedule   string
	ApproxEntrySize int
}

type LogConfig struct {
	Level string
}

// Edamam AppIDが空の場合は外部ソースからの取得を無効にする
type Edamam struct {
	BaseURL string
	AppID   string
	AppKey  string
	Timeout time.Duration
}
