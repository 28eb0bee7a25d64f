package app

import (
	"fmt"
	"time"

	"livecheck/cmd/internal/storage"
	"livecheck/cmd/internal/verify"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // "json" (default) or "text"

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	MaxUploadBytes int64

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	InferenceURL     string
	InferenceTimeout time.Duration
	MaxFramePixels   int

	// If true, /readyz also pings the inference sidecar.
	ReadinessRequireInference bool

	Storage storage.Config
	Verify  verify.Config
}

// LoadConfig loads Config from environment variables with defaults.
// Lifecycle settings are validated; everything else falls back to its default.
func LoadConfig() (Config, error) {
	vcfg, err := verify.LoadConfigFromEnv()
	if err != nil {
		return Config{}, fmt.Errorf("verify config: %w", err)
	}

	return Config{
		HTTPAddr:  EnvString("LIVECHECK_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("LIVECHECK_LOG_LEVEL", "info"),
		LogFormat: EnvString("LIVECHECK_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("LIVECHECK_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("LIVECHECK_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("LIVECHECK_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("LIVECHECK_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("LIVECHECK_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),

		MaxHeaderBytes: EnvInt("LIVECHECK_HTTP_MAX_HEADER_BYTES", 1<<20),
		MaxUploadBytes: int64(EnvInt("LIVECHECK_MAX_UPLOAD_BYTES", 10<<20)),

		CORSAllowedOrigins:   EnvCSV("LIVECHECK_CORS_ALLOWED_ORIGINS", ""),
		CORSAllowCredentials: EnvBool("LIVECHECK_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("LIVECHECK_CORS_MAX_AGE_SECONDS", 600),

		DatabaseURL: EnvString("LIVECHECK_DATABASE_URL", ""),
		DBSchema:    EnvString("LIVECHECK_DB_SCHEMA", "livecheck"),
		DBMaxConns:  EnvInt32("LIVECHECK_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("LIVECHECK_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("LIVECHECK_READINESS_REQUIRE_DB", false),

		InferenceURL:              EnvString("LIVECHECK_INFERENCE_URL", "http://127.0.0.1:8500"),
		InferenceTimeout:          EnvDuration("LIVECHECK_INFERENCE_TIMEOUT", 5*time.Second),
		MaxFramePixels:            EnvInt("LIVECHECK_MAX_FRAME_PIXELS", 4096*4096),
		ReadinessRequireInference: EnvBool("LIVECHECK_READINESS_REQUIRE_INFERENCE", true),

		Storage: storage.Config{
			Backend: EnvString("LIVECHECK_STORAGE_BACKEND", storage.BackendFile),
			Dir:     EnvString("LIVECHECK_STORAGE_DIR", "uploads"),
			Redis: storage.RedisConfig{
				Addr:     EnvString("LIVECHECK_REDIS_ADDR", "127.0.0.1:6379"),
				Username: EnvString("LIVECHECK_REDIS_USERNAME", ""),
				Password: EnvString("LIVECHECK_REDIS_PASSWORD", ""),
				DB:       EnvInt("LIVECHECK_REDIS_DB", 0),
				Prefix:   EnvString("LIVECHECK_REDIS_PREFIX", "livecheck:artifact:"),
				// Safety net only; the sweeper reclaims at ArtifactTTL.
				KeyTTL: 2 * vcfg.ArtifactTTL,
			},
		},
		Verify: vcfg,
	}, nil
}

// Redacted returns a copy safe to print: secrets are masked.
func (c Config) Redacted() Config {
	out := c
	out.DatabaseURL = redactURL(c.DatabaseURL)
	if out.Storage.Redis.Password != "" {
		out.Storage.Redis.Password = "****"
	}
	out.CORSAllowedOrigins = append([]string(nil), c.CORSAllowedOrigins...)
	return out
}
