package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            string   `yaml:"port"`
		PublicURL       string   `yaml:"public_url"`
		ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Storage struct {
		// Type is "memory" or "postgres".
		Type string `yaml:"type"`
	} `yaml:"storage"`
	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`
	Blob struct {
		// Backend is "pebble" or "s3".
		Backend    string `yaml:"backend"`
		Prefix     string `yaml:"prefix"`
		PebblePath string `yaml:"pebble_path"`
		S3         struct {
			Bucket          string   `yaml:"bucket"`
			Region          string   `yaml:"region"`
			Endpoint        string   `yaml:"endpoint"`
			UsePathStyle    bool     `yaml:"use_path_style"`
			PublicBaseURL   string   `yaml:"public_base_url"`
			PresignTTL      Duration `yaml:"presign_ttl"`
			AccessKeyID     string   `yaml:"-"`
			SecretAccessKey string   `yaml:"-"`
		} `yaml:"s3"`
	} `yaml:"blob"`
	Auth struct {
		JWTSecret     string `yaml:"jwt_secret"`
		AllowedDomain string `yaml:"allowed_domain"`
	} `yaml:"auth"`
	Admin struct {
		CacheTTL  Duration `yaml:"cache_ttl"`
		CacheSize int      `yaml:"cache_size"`
	} `yaml:"admin"`
	Posts struct {
		MaxImageSize SizeBytes `yaml:"max_image_size"`
		FeedLimit    int       `yaml:"feed_limit"`
	} `yaml:"posts"`
	Images struct {
		MaxDimension   int       `yaml:"max_dimension"`
		Quality        int       `yaml:"quality"`
		GIFPassThrough SizeBytes `yaml:"gif_pass_through"`
		// MaxPixels bounds width*height of uploads the server will decode.
		MaxPixels int64 `yaml:"max_pixels"`
	} `yaml:"images"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Server.PublicURL = "http://localhost:8080"
	cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	cfg.Storage.Type = "memory"
	cfg.Blob.Backend = "pebble"
	cfg.Blob.Prefix = "found-posts"
	cfg.Blob.S3.PresignTTL = Duration(15 * time.Minute)
	cfg.Auth.AllowedDomain = "@student.fatima.edu.ph"
	cfg.Admin.CacheTTL = Duration(5 * time.Minute)
	cfg.Admin.CacheSize = 4096
	cfg.Posts.MaxImageSize = 10 << 20
	cfg.Posts.FeedLimit = 50
	cfg.Images.MaxDimension = 1920
	cfg.Images.Quality = 85
	cfg.Images.GIFPassThrough = 5 << 20
	cfg.Images.MaxPixels = 40_000_000
	cfg.RateLimit.RPS = 1
	cfg.RateLimit.Burst = 5
	cfg.Log.Level = "info"
	return cfg
}

// Load reads path over the defaults, then applies .env and environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// .env не обязателен
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString(&c.Auth.JWTSecret, "LOSTFOUND_JWT_SECRET")
	setString(&c.Postgres.DSN, "LOSTFOUND_POSTGRES_DSN")
	setString(&c.Blob.S3.Bucket, "LOSTFOUND_S3_BUCKET")
	setString(&c.Blob.S3.Region, "AWS_REGION")
	setString(&c.Blob.S3.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&c.Blob.S3.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setString(&c.Log.Level, "LOSTFOUND_LOG_LEVEL")
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.type %q", c.Storage.Type))
	}
	switch c.Blob.Backend {
	case "pebble":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket is required for s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob.backend %q", c.Blob.Backend))
	}
	if strings.Trim(c.Blob.Prefix, "/") == "" {
		errs = append(errs, errors.New("blob.prefix is required"))
	}
	if c.Posts.MaxImageSize <= 0 {
		errs = append(errs, errors.New("posts.max_image_size must be positive"))
	}
	if c.Images.Quality < 1 || c.Images.Quality > 100 {
		errs = append(errs, fmt.Errorf("images.quality %d out of range 1..100", c.Images.Quality))
	}
	if c.Images.MaxDimension <= 0 {
		errs = append(errs, errors.New("images.max_dimension must be positive"))
	}
	if c.Images.MaxPixels <= 0 {
		errs = append(errs, errors.New("images.max_pixels must be positive"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required (set LOSTFOUND_JWT_SECRET)"))
	}
	if c.Admin.CacheTTL <= 0 {
		errs = append(errs, errors.New("admin.cache_ttl must be positive"))
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate_limit.rps and rate_limit.burst must be positive"))
	}
	return errors.Join(errs...)
}

// SizeBytes accepts "10MiB", "5 MB" or a plain integer.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) String() string { return humanize.IBytes(uint64(s)) }

// Duration accepts Go duration strings or numeric seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
