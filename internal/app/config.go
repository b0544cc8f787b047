package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raysh454/sitedrop/internal/pages"
	"github.com/raysh454/sitedrop/internal/provisioner"
	"github.com/raysh454/sitedrop/internal/remote"
	"github.com/raysh454/sitedrop/internal/webclient"
)

// GitHubConfig holds the credentials and account the service deploys under.
type GitHubConfig struct {
	Token string `yaml:"token"`
	// Owner is the account new repositories are created under.
	Owner string `yaml:"owner"`
	// APIURL points the provider at a different REST root, e.g. the local
	// demo server. Empty means api.github.com.
	APIURL string `yaml:"api_url"`
}

// RateLimitConfig bounds requests per client IP. With RedisAddr set the
// counters are shared through Redis, otherwise they live in process.
type RateLimitConfig struct {
	Requests      int           `yaml:"requests"`
	Window        time.Duration `yaml:"window"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

// HTTPConfig configures the inbound API.
type HTTPConfig struct {
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
	// MaxUploadBytes caps a whole multipart upload.
	MaxUploadBytes int64           `yaml:"max_upload_bytes"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	// Swagger serves the API document under /swagger.
	Swagger bool `yaml:"swagger"`
}

// Config is the full runtime configuration.
type Config struct {
	GitHub GitHubConfig `yaml:"github"`
	HTTP   HTTPConfig   `yaml:"http"`

	// UploadDir is where upload sessions are staged before publishing.
	UploadDir string `yaml:"upload_dir"`
	LogLevel  string `yaml:"log_level"`

	WebClient   webclient.Config   `yaml:"web_client"`
	Remote      remote.Policy      `yaml:"remote"`
	Provisioner provisioner.Config `yaml:"provisioner"`
	Pages       pages.Config       `yaml:"pages"`

	// JobRetentionTime is how long finished jobs stay queryable.
	JobRetentionTime time.Duration `yaml:"job_retention_time"`
}

// DefaultConfig returns a Config populated with the service defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:           3000,
			CORSOrigin:     "http://localhost:3000",
			MaxUploadBytes: 32 << 20,
			RateLimit: RateLimitConfig{
				Requests: 100,
				Window:   15 * time.Minute,
			},
			Swagger: true,
		},
		UploadDir:        "uploads",
		LogLevel:         "info",
		WebClient:        webclient.DefaultConfig(),
		Remote:           remote.DefaultPolicy(),
		Provisioner:      provisioner.DefaultConfig(),
		Pages:            pages.DefaultConfig(),
		JobRetentionTime: time.Hour,
	}
}

// LoadConfig builds a Config from the defaults, the YAML file at path (if
// path is non-empty) and finally the environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.GitHub.Token = GetString("GITHUB_TOKEN", c.GitHub.Token)
	c.GitHub.Owner = GetString("GITHUB_USERNAME", c.GitHub.Owner)
	c.GitHub.APIURL = GetString("GITHUB_API_URL", c.GitHub.APIURL)

	c.HTTP.Port = GetInt("PORT", c.HTTP.Port)
	c.HTTP.CORSOrigin = GetString("CORS_ORIGIN", c.HTTP.CORSOrigin)
	c.HTTP.RateLimit.Requests = GetInt("RATE_LIMIT_REQUESTS", c.HTTP.RateLimit.Requests)
	c.HTTP.RateLimit.Window = GetDuration("RATE_LIMIT_WINDOW", c.HTTP.RateLimit.Window)
	c.HTTP.RateLimit.RedisAddr = GetString("RATE_LIMIT_REDIS_ADDR", c.HTTP.RateLimit.RedisAddr)
	c.HTTP.RateLimit.RedisPassword = GetString("RATE_LIMIT_REDIS_PASSWORD", c.HTTP.RateLimit.RedisPassword)
	c.HTTP.RateLimit.RedisDB = GetInt("RATE_LIMIT_REDIS_DB", c.HTTP.RateLimit.RedisDB)
	c.HTTP.Swagger = GetBool("SWAGGER_ENABLED", c.HTTP.Swagger)

	c.UploadDir = GetString("UPLOAD_DIR", c.UploadDir)
	c.LogLevel = GetString("LOG_LEVEL", c.LogLevel)
	c.Pages.ReadinessTimeout = GetDuration("PAGES_READINESS_TIMEOUT", c.Pages.ReadinessTimeout)
}

// Validate checks that the settings needed to reach the provider are
// present. It does not contact the provider.
func (c *Config) Validate() error {
	var errs []error
	if c.GitHub.Token == "" {
		errs = append(errs, errors.New("github token is required (GITHUB_TOKEN)"))
	}
	if c.GitHub.Owner == "" {
		errs = append(errs, errors.New("github owner is required (GITHUB_USERNAME)"))
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.HTTP.Port))
	}
	return errors.Join(errs...)
}

// ListenAddr is the address the API server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}
