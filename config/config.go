// Package config loads letterpdf settings from a YAML file, an optional .env
// file and LETTERPDF_* environment variables, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the export service and its binaries.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Export   ExportConfig   `yaml:"export"`
	Fonts    FontConfig     `yaml:"fonts"`
	QR       QRConfig       `yaml:"qr"`
	Chrome   ChromeConfig   `yaml:"chrome"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Minio    MinioConfig    `yaml:"minio"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Addr           string `yaml:"addr"`
	RateLimit      int    `yaml:"rate_limit"` // requests per minute per IP
	MaxRequestSize int64  `yaml:"max_request_size"`
}

// ExportConfig holds the pipeline defaults. Per-request options override
// scale and quality.
type ExportConfig struct {
	// Origin is the public base URL of the application. Verification links
	// and the connectivity probe are built from it.
	Origin      string        `yaml:"origin"`
	Scale       float64       `yaml:"scale"`
	Quality     float64       `yaml:"quality"`
	Timeout     time.Duration `yaml:"timeout"`
	SettleDelay time.Duration `yaml:"settle_delay"`
	ScratchDir  string        `yaml:"scratch_dir"`
	// Renderer selects the rasterizer: "chrome" or "draw".
	Renderer     string `yaml:"renderer"`
	SystemAuthor string `yaml:"system_author"`
	// SkipProbe disables the connectivity check, for offline CLI use.
	SkipProbe bool `yaml:"skip_probe"`
}

// FontConfig names the Arabic font family and the files that provide it.
type FontConfig struct {
	Family string   `yaml:"family"`
	Files  []string `yaml:"files"`
}

// QRConfig selects the QR image source. An empty endpoint renders codes
// in-process.
type QRConfig struct {
	Endpoint     string `yaml:"endpoint"`
	HighRecovery bool   `yaml:"high_recovery"`
}

type ChromeConfig struct {
	ExecPath  string `yaml:"exec_path"`
	NoSandbox bool   `yaml:"no_sandbox"`
}

type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig configures the PDF cache. An empty address disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// MinioConfig configures blob storage. An empty endpoint disables s3://
// sources and archiving.
type MinioConfig struct {
	Endpoint      string `yaml:"endpoint"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Bucket        string `yaml:"bucket"`
	ArchivePrefix string `yaml:"archive_prefix"`
	UseSSL        bool   `yaml:"use_ssl"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			RateLimit:      60,
			MaxRequestSize: 10 << 20,
		},
		Export: ExportConfig{
			Origin:       "http://localhost:8080",
			Scale:        3.0,
			Quality:      0.95,
			Timeout:      30 * time.Second,
			SettleDelay:  300 * time.Millisecond,
			Renderer:     "chrome",
			SystemAuthor: "نظام الخطابات",
		},
		Fonts: FontConfig{Family: "Cairo"},
		Redis: RedisConfig{TTL: 24 * time.Hour},
		Minio: MinioConfig{ArchivePrefix: "letters/"},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path (optional), then .env, then the environment, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup("LETTERPDF_" + key); ok {
			*dst = v
		}
	}
	float := func(key string, dst *float64) error {
		v, ok := lookup("LETTERPDF_" + key)
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("config: invalid LETTERPDF_%s: %w", key, err)
		}
		*dst = f
		return nil
	}
	duration := func(key string, dst *time.Duration) error {
		v, ok := lookup("LETTERPDF_" + key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: invalid LETTERPDF_%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("ADDR", &c.Server.Addr)
	str("ORIGIN", &c.Export.Origin)
	str("RENDERER", &c.Export.Renderer)
	str("SCRATCH_DIR", &c.Export.ScratchDir)
	str("FONT_FAMILY", &c.Fonts.Family)
	str("QR_ENDPOINT", &c.QR.Endpoint)
	str("CHROME_PATH", &c.Chrome.ExecPath)
	str("DATABASE_DSN", &c.Database.DSN)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("MINIO_ENDPOINT", &c.Minio.Endpoint)
	str("MINIO_ACCESS_KEY", &c.Minio.AccessKey)
	str("MINIO_SECRET_KEY", &c.Minio.SecretKey)
	str("MINIO_BUCKET", &c.Minio.Bucket)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("LOG_LEVEL", &c.Logging.Level)

	if v, ok := lookup("LETTERPDF_FONT_FILES"); ok {
		c.Fonts.Files = splitList(v)
	}

	if v, ok := lookup("LETTERPDF_SKIP_PROBE"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: invalid LETTERPDF_SKIP_PROBE: %w", err)
		}
		c.Export.SkipProbe = b
	}

	for _, err := range []error{
		float("SCALE", &c.Export.Scale),
		float("QUALITY", &c.Export.Quality),
		duration("TIMEOUT", &c.Export.Timeout),
		duration("SETTLE_DELAY", &c.Export.SettleDelay),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate checks ranges and required combinations.
func (c *Config) Validate() error {
	var errs []error
	if c.Export.Scale <= 0 || c.Export.Scale > 8 {
		errs = append(errs, fmt.Errorf("export.scale must be in (0, 8], got %v", c.Export.Scale))
	}
	if c.Export.Quality <= 0 || c.Export.Quality > 1 {
		errs = append(errs, fmt.Errorf("export.quality must be in (0, 1], got %v", c.Export.Quality))
	}
	if c.Export.Timeout <= 0 {
		errs = append(errs, errors.New("export.timeout must be positive"))
	}
	switch c.Export.Renderer {
	case "chrome", "draw":
	default:
		errs = append(errs, fmt.Errorf("export.renderer must be chrome or draw, got %q", c.Export.Renderer))
	}
	if u, err := url.Parse(c.Export.Origin); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("export.origin must be an absolute URL, got %q", c.Export.Origin))
	}
	if c.Minio.Endpoint != "" && c.Minio.Bucket == "" {
		errs = append(errs, errors.New("minio.bucket is required when minio.endpoint is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
