package config

import (
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig   `mapstructure:"server"`
	Database   DatabaseConfig `mapstructure:"database"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Log        LogConfig      `mapstructure:"log"`
	Security   SecurityConfig `mapstructure:"security"`
	GoogleAPI  OAuthConfig    `mapstructure:"google"`
	OutlookAPI OutlookConfig  `mapstructure:"outlook"`
	Sync       SyncConfig     `mapstructure:"sync"`
	Worker     WorkerConfig   `mapstructure:"worker"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // in minutes
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type SecurityConfig struct {
	JWTSecret          string `mapstructure:"jwt_secret"`
	TokenEncryptionKey string `mapstructure:"token_encryption_key"` // base64, 32 bytes
}

type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

type OutlookConfig struct {
	OAuthConfig `mapstructure:",squash"`
	TenantID    string `mapstructure:"tenant_id"`
}

type SyncConfig struct {
	LookbackDays        int           `mapstructure:"lookback_days"`
	LookaheadDays       int           `mapstructure:"lookahead_days"`
	PageSize            int           `mapstructure:"page_size"`
	MaxPages            int           `mapstructure:"max_pages"`
	TokenRefreshSkew    time.Duration `mapstructure:"token_refresh_skew"`
	ConflictConcurrency int           `mapstructure:"conflict_concurrency"`
	LockTTL             time.Duration `mapstructure:"lock_ttl"`
	StaleLogTimeout     time.Duration `mapstructure:"stale_log_timeout"`
	Schedule            string        `mapstructure:"schedule"`
	ReaperSchedule      string        `mapstructure:"reaper_schedule"`
	UseConflictFunction bool          `mapstructure:"use_conflict_function"`
}

type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

var (
	mu       sync.RWMutex
	instance *Config
)

// Load reads an optional .env file and the environment. Keys map to
// upper-case env names, e.g. sync.lookback_days -> SYNC_LOOKBACK_DAYS.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	// Missing .env files are fine; the environment still applies.
	_ = godotenv.Load(envFiles...)

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	mu.Lock()
	instance = &cfg
	mu.Unlock()
	return &cfg, nil
}

// GetSafe returns the loaded config and whether Load has been called.
func GetSafe() (*Config, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return instance, instance != nil
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"server.host":          "0.0.0.0",
		"server.port":          7070,
		"server.read_timeout":  "30s",
		"server.write_timeout": "30s",

		"database.host":              "localhost",
		"database.port":              5432,
		"database.user":              "postgres",
		"database.password":          "",
		"database.name":              "homeschool",
		"database.sslmode":           "disable",
		"database.max_open_conns":    25,
		"database.max_idle_conns":    5,
		"database.conn_max_lifetime": 30,

		"redis.addr":     "",
		"redis.password": "",
		"redis.db":       0,

		"log.level":        "info",
		"log.format":       "json",
		"log.file":         "",
		"log.max_size_mb":  100,
		"log.max_backups":  5,
		"log.max_age_days": 28,

		"security.jwt_secret":           "",
		"security.token_encryption_key": "",

		"google.client_id":     "",
		"google.client_secret": "",
		"google.redirect_uri":  "",

		"outlook.client_id":     "",
		"outlook.client_secret": "",
		"outlook.redirect_uri":  "",
		"outlook.tenant_id":     "common",

		"sync.lookback_days":         7,
		"sync.lookahead_days":        90,
		"sync.page_size":             250,
		"sync.max_pages":             100,
		"sync.token_refresh_skew":    "5m",
		"sync.conflict_concurrency":  10,
		"sync.lock_ttl":              "10m",
		"sync.stale_log_timeout":     "30m",
		"sync.schedule":              "*/15 * * * *",
		"sync.reaper_schedule":       "*/5 * * * *",
		"sync.use_conflict_function": false,

		"worker.concurrency": 10,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
