package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	CacheRedis  = "redis"
	CacheMemory = "memory"
)

type Database struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type Redis struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

type Cache struct {
	Backend      string
	Capacity     int
	SearchTTL    time.Duration
	TrackListTTL time.Duration
}

type MusicBrainz struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

type Breaker struct {
	Threshold   uint32
	OpenTimeout time.Duration
	MaxHalfOpen uint32
}

type Config struct {
	HTTPAddr string
	GRPCAddr string
	LogLevel string

	Database    Database
	Redis       Redis
	Cache       Cache
	MusicBrainz MusicBrainz
	Breaker     Breaker
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var bad []string
	cfg := Config{
		HTTPAddr: envDefault("HTTP_ADDR", ":8080"),
		GRPCAddr: envDefault("GRPC_ADDR", ":50051"),
		LogLevel: envDefault("LOG_LEVEL", "info"),

		Database: Database{
			Driver:          strings.ToLower(envDefault("DB_DRIVER", DriverMySQL)),
			DSN:             strings.TrimSpace(os.Getenv("DB_DSN")),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 50, &bad),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 25, &bad),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute, &bad),
			AutoMigrate:     envBool("DB_AUTO_MIGRATE", false, &bad),
		},

		Redis: Redis{
			Addr:      envDefault("REDIS_ADDR", "localhost:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        envInt("REDIS_DB", 0, &bad),
			PoolSize:  envInt("REDIS_POOL_SIZE", 100, &bad),
			KeyPrefix: strings.TrimSpace(os.Getenv("REDIS_KEY_PREFIX")),
		},

		Cache: Cache{
			Backend:      strings.ToLower(envDefault("CACHE_BACKEND", CacheRedis)),
			Capacity:     envInt("CACHE_CAPACITY", 10000, &bad),
			SearchTTL:    envDuration("SEARCH_CACHE_TTL", 300*time.Second, &bad),
			TrackListTTL: envDuration("TRACKLIST_CACHE_TTL", 24*time.Hour, &bad),
		},

		MusicBrainz: MusicBrainz{
			BaseURL:   strings.TrimRight(envDefault("MUSICBRAINZ_BASE_URL", "https://musicbrainz.org/ws/2"), "/"),
			UserAgent: envDefault("MUSICBRAINZ_USER_AGENT", "record-store/1.0 ( ops@record-store.local )"),
			Timeout:   envDuration("MUSICBRAINZ_TIMEOUT", 5*time.Second, &bad),
		},

		Breaker: Breaker{
			Threshold:   uint32(envInt("BREAKER_THRESHOLD", 5, &bad)),
			OpenTimeout: envDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second, &bad),
			MaxHalfOpen: uint32(envInt("BREAKER_MAX_HALF_OPEN", 1, &bad)),
		},
	}
	if len(bad) > 0 {
		return Config{}, &invalidEnvError{Keys: bad}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string

	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres:
		if c.Database.DSN == "" {
			missing = append(missing, "DB_DSN")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("DB_DRIVER must be one of %s, %s, %s: got %q",
			DriverMySQL, DriverPostgres, DriverMemory, c.Database.Driver)
	}

	switch c.Cache.Backend {
	case CacheRedis:
		if c.Redis.Addr == "" {
			missing = append(missing, "REDIS_ADDR")
		}
	case CacheMemory:
		if c.Cache.Capacity <= 0 {
			return fmt.Errorf("CACHE_CAPACITY must be positive: got %d", c.Cache.Capacity)
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of %s, %s: got %q", CacheRedis, CacheMemory, c.Cache.Backend)
	}

	if len(missing) > 0 {
		return &missingEnvError{Keys: missing}
	}

	if c.Cache.SearchTTL <= 0 || c.Cache.TrackListTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.MusicBrainz.Timeout <= 0 {
		return fmt.Errorf("MUSICBRAINZ_TIMEOUT must be positive")
	}
	if c.Breaker.Threshold == 0 {
		return fmt.Errorf("BREAKER_THRESHOLD must be positive")
	}
	return nil
}

type missingEnvError struct{ Keys []string }

func (e *missingEnvError) Error() string {
	return "missing required envs: " + strings.Join(e.Keys, ", ")
}

type invalidEnvError struct{ Keys []string }

func (e *invalidEnvError) Error() string {
	return "invalid envs: " + strings.Join(e.Keys, ", ")
}

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int, bad *[]string) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*bad = append(*bad, k)
		return def
	}
	return n
}

func envBool(k string, def bool, bad *[]string) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*bad = append(*bad, k)
		return def
	}
	return b
}

// envDuration accepts Go duration strings ("1.5s", "250ms") or a plain
// integer number of seconds ("300").
func envDuration(k string, def time.Duration, bad *[]string) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*bad = append(*bad, k)
		return def
	}
	return d
}
