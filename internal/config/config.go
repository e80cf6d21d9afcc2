package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the keydesk CLI. Values are layered:
// built-in defaults, then the YAML config file, then environment overrides.
type Config struct {
	APIBaseURL        string        `yaml:"api_base_url" env:"KEYDESK_API"`
	StateDir          string        `yaml:"state_dir" env:"KEYDESK_STATE_DIR"`
	RedisURL          string        `yaml:"redis_url" env:"KEYDESK_REDIS_URL"`
	NATSURL           string        `yaml:"nats_url" env:"KEYDESK_NATS_URL"`
	MetricsAddr       string        `yaml:"metrics_addr" env:"KEYDESK_METRICS_ADDR"`
	RequestTimeout    time.Duration `yaml:"request_timeout" env:"KEYDESK_TIMEOUT"`
	AllowInsecureHTTP bool          `yaml:"allow_insecure_http" env:"KEYDESK_ALLOW_INSECURE_HTTP"`
	OTLPEndpoint      string        `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load builds the layered Config. path selects an explicit YAML file; when
// empty the default file under the state dir is used if it exists. Defaults
// are applied in code rather than env tags so the file layer is not clobbered
// by unset environment variables.
func Load(ctx context.Context, path string) (Config, error) {
	cfg := Config{
		StateDir:       DefaultStateDir(),
		MetricsAddr:    ":9464",
		RequestTimeout: 15 * time.Second,
	}

	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.StateDir, "config.yaml")
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// No config file is fine, env and flags can carry everything.
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}

	if cfg.RequestTimeout <= 0 {
		return Config{}, fmt.Errorf("request_timeout must be positive, got %s", cfg.RequestTimeout)
	}
	return cfg, nil
}

// DefaultStateDir returns the directory for the session vault and config
// file, ~/.keydesk unless the home directory cannot be resolved.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".keydesk"
	}
	return filepath.Join(home, ".keydesk")
}

// VaultDir returns the on-disk vault location under the state dir.
func (c Config) VaultDir() string {
	return filepath.Join(c.StateDir, "vault")
}
