package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Env      string `env:"APP_ENV" env-default:"local"`
	HTTP     HTTPConfig
	Storage  StorageConfig
	Mongo    MongoConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Auth     AuthConfig
	CORS     CORSConfig
}

type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR" env-default:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
	// Empty means X-Forwarded-For is never honored.
	TrustedProxies []string `env:"TRUSTED_PROXIES" env-separator:","`
}

type StorageConfig struct {
	Driver string `env:"STORAGE_DRIVER" env-default:"mongo"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	Database string `env:"MONGO_DATABASE" env-default:"jobboard"`
}

type PostgresConfig struct {
	DatabaseURL string `env:"DATABASE_URL"`
	Host        string `env:"PGHOST" env-default:"localhost"`
	Port        string `env:"PGPORT" env-default:"5432"`
	User        string `env:"PGUSER"`
	Password    string `env:"PGPASSWORD"`
	Database    string `env:"PGDATABASE"`
	SSLMode     string `env:"PGSSLMODE" env-default:"disable"`
}

type RedisConfig struct {
	Addr      string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB" env-default:"0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" env-default:"jobboard:"`
}

type AuthConfig struct {
	AccessSecret   string        `env:"JWT_SECRET"`
	RefreshSecret  string        `env:"REFRESH_TOKEN_SECRET"`
	AccessTTL      time.Duration `env:"JWT_ACCESS_TTL" env-default:"15m"`
	RefreshTTL     time.Duration `env:"JWT_REFRESH_TTL" env-default:"168h"`
	BcryptCost     int           `env:"AUTH_BCRYPT_COST" env-default:"10"`
	CallTimeout    time.Duration `env:"AUTH_CALL_TIMEOUT" env-default:"3s"`
	RefreshLock    bool          `env:"AUTH_REFRESH_LOCK" env-default:"true"`
	RefreshLockTTL time.Duration `env:"AUTH_REFRESH_LOCK_TTL" env-default:"5s"`
	RevokeOnLogin  bool          `env:"AUTH_REVOKE_ON_LOGIN" env-default:"false"`
	CookieName     string        `env:"AUTH_COOKIE_NAME" env-default:"refreshToken"`
	CookiePath     string        `env:"AUTH_COOKIE_PATH" env-default:"/auth"`
	CookieDomain   string        `env:"AUTH_COOKIE_DOMAIN"`
	CookieSecure   bool          `env:"AUTH_COOKIE_SECURE" env-default:"true"`
	CookieSameSite string        `env:"AUTH_COOKIE_SAMESITE" env-default:"strict"`
}

type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" env-separator:","`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" env-default:"true"`
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}

	switch cfg.Storage.Driver {
	case DriverMongo, DriverPostgres, DriverMemory:
	default:
		return Config{}, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.Storage.Driver)
	}

	return cfg, nil
}
