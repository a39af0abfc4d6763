package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/spf13/viper"

	"github.com/leaf-ai/leaf-common/internal/lint"
	"github.com/leaf-ai/leaf-common/internal/persistence"
	"github.com/leaf-ai/leaf-common/internal/session"
)

// DefaultFile is read when no config file is named.
const DefaultFile = "leaf.yaml"

// Config is the leafctl configuration.
type Config struct {
	Lint        LintConfig        `mapstructure:"lint" yaml:"lint"`
	Session     SessionConfig     `mapstructure:"session" yaml:"session"`
	Persistence PersistenceConfig `mapstructure:"persistence" yaml:"persistence"`
}

// LintConfig configures the lint runner.
type LintConfig struct {
	Root        string   `mapstructure:"root" yaml:"root"`
	Ignore      []string `mapstructure:"ignore" yaml:"ignore"`
	Pattern     string   `mapstructure:"pattern" yaml:"pattern"`
	Command     []string `mapstructure:"command" yaml:"command"`
	DockerImage string   `mapstructure:"docker_image" yaml:"docker_image"` // Runs the linter in this image when set
}

// SessionConfig configures gRPC clients.
type SessionConfig struct {
	SecurityConfigFile   string        `mapstructure:"security_config_file" yaml:"security_config_file"`
	PollInterval         time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	CallTimeout          time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	Timeout              time.Duration `mapstructure:"timeout" yaml:"timeout"` // Umbrella timeout; zero retries forever
	LimitedRetryAttempts int           `mapstructure:"limited_retry_attempts" yaml:"limited_retry_attempts"`
}

// PersistenceConfig configures where models are stored.
type PersistenceConfig struct {
	Mechanism string `mapstructure:"mechanism" yaml:"mechanism"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
}

var (
	// envBindings maps config keys to the environment variables that can
	// set them, in order of preference.
	envBindings = map[string][]string{
		"lint.root":                      {"LEAF_LINT_ROOT"},
		"lint.ignore":                    {"LEAF_LINT_IGNORE"},
		"lint.pattern":                   {"LEAF_LINT_PATTERN"},
		"lint.command":                   {"LEAF_LINT_COMMAND"},
		"lint.docker_image":              {"LEAF_LINT_DOCKER_IMAGE"},
		"session.security_config_file":   {"LEAF_SECURITY_CONFIG"},
		"session.poll_interval":          {"LEAF_POLL_INTERVAL"},
		"session.call_timeout":           {"LEAF_CALL_TIMEOUT"},
		"session.timeout":                {"LEAF_SESSION_TIMEOUT"},
		"session.limited_retry_attempts": {"LEAF_LIMITED_RETRY_ATTEMPTS"},
		"persistence.mechanism":          {"LEAF_PERSISTENCE_MECHANISM"},
		"persistence.bucket":             {"LEAF_S3_BUCKET"},
		"persistence.region":             {"LEAF_AWS_REGION", "AWS_REGION"},
	}

	securityEnvBindings = map[string][]string{
		"auth_domain":        {"LEAF_AUTH_DOMAIN"},
		"auth_client_id":     {"LEAF_AUTH_CLIENT_ID"},
		"auth_secret":        {"LEAF_AUTH_SECRET"},
		"auth_audience":      {"LEAF_AUTH_AUDIENCE"},
		"username":           {"LEAF_USERNAME"},
		"password":           {"LEAF_PASSWORD"},
		"scope":              {"LEAF_AUTH_SCOPE"},
		"auth_host_override": {"LEAF_AUTH_HOST_OVERRIDE"},
	}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("lint.root", ".")
	v.SetDefault("lint.ignore", lint.DefaultIgnore)
	v.SetDefault("lint.pattern", lint.DefaultPattern)
	v.SetDefault("lint.command", lint.DefaultCommand)
	v.SetDefault("session.poll_interval", session.DefaultPollInterval)
	v.SetDefault("session.call_timeout", session.DefaultCallTimeout)
	v.SetDefault("session.timeout", time.Duration(0))
	v.SetDefault("session.limited_retry_attempts", session.DefaultLimitedRetryAttempts)
	v.SetDefault("persistence.mechanism", persistence.MechanismLocal)
}

// Load reads the config file at filePath when it exists, otherwise falls
// back to defaults and environment variables.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := bindEnvs(v, envBindings); err != nil {
		return nil, err
	}

	if filePath != "" {
		if _, err := os.Stat(filePath); !errors.Is(err, fs.ErrNotExist) {
			v.SetConfigFile(filePath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", filePath, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// LoadSecurityConfig reads the security settings for gRPC channels from
// filePath, with LEAF_* environment overrides. An empty filePath reads the
// environment only.
func LoadSecurityConfig(filePath string) (*session.SecurityConfig, error) {
	v := viper.New()

	if err := bindEnvs(v, securityEnvBindings); err != nil {
		return nil, err
	}

	if filePath != "" {
		v.SetConfigFile(filePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read security config %s: %w", filePath, err)
		}
	}

	cfg := &session.SecurityConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode security config: %w", err)
	}

	cfg.SourceFileReference = filePath
	if filePath == "" {
		cfg.SourceFileReference = "the LEAF_* environment"
	}
	return cfg, nil
}

// bindEnvs binds the environment variables to the viper instance.
func bindEnvs(v *viper.Viper, bindings map[string][]string) error {
	for key, envs := range bindings {
		inputs := slices.Insert(slices.Clone(envs), 0, key)

		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}
	return nil
}
