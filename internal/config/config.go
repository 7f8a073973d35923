package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort             = "5002"
	defaultAMPEndpoint      = "http://amp-prod.mia.ucloud.int:5001"
	defaultKnifeConfig      = "knife.rb"
	defaultKnifeBinary      = "knife"
	defaultRateLimitRPS     = 25.0
	defaultRateLimitBurst   = 50
	defaultSolveConcurrency = 4

	// EnvPrefix prefixes every environment variable read by Load.
	EnvPrefix = "INVENTORY"
)

var defaultOwnedPrefixes = []string{"uc", "ult", "ultimate", "spade", "hardening", "logging", "monitoring"}

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > Environment variables > YAML config > Defaults
type Config struct {
	Port                 string        `yaml:"port"`
	AMPEndpoint          string        `yaml:"amp_endpoint"`
	AMPTimeout           time.Duration `yaml:"amp_timeout"`
	AMPRateLimitRPS      float64       `yaml:"amp_rate_limit_rps"`
	KnifeConfig          string        `yaml:"knife_config"`
	KnifeBinary          string        `yaml:"knife_binary"`
	ChefDirectory        string        `yaml:"chef_directory"`
	KnifeTimeout         time.Duration `yaml:"knife_timeout"`
	OwnedPrefixes        []string      `yaml:"owned_prefixes"`
	Appliances           []string      `yaml:"appliances"`
	SolveConcurrency     int           `yaml:"solve_concurrency"`
	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    time.Duration `yaml:"read_header_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	IdleTimeout          time.Duration `yaml:"idle_timeout"`
	EnableRequestLogging bool          `yaml:"enable_request_logging"`
	RateLimitRPS         float64       `yaml:"-"`
	RateLimitBurst       int           `yaml:"-"`
	LogLevel             string        `yaml:"log_level"`
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Port                 string        `yaml:"port"`
	LogLevel             string        `yaml:"log_level"`
	AMP                  yamlAMP       `yaml:"amp"`
	Knife                yamlKnife     `yaml:"knife"`
	OwnedPrefixes        []string      `yaml:"owned_prefixes"`
	Appliances           []string      `yaml:"appliances"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
}

// yamlAMP represents the appliance catalogue section in YAML.
type yamlAMP struct {
	Endpoint     string   `yaml:"endpoint"`
	Timeout      string   `yaml:"timeout"`
	RateLimitRPS *float64 `yaml:"rate_limit_rps"`
}

// yamlKnife represents the knife section in YAML.
type yamlKnife struct {
	Config      string `yaml:"config"`
	Binary      string `yaml:"binary"`
	ChefDir     string `yaml:"chef_directory"`
	Timeout     string `yaml:"timeout"`
	Concurrency *int   `yaml:"concurrency"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// envConfig lists the INVENTORY_* variables. Pointers stay nil when unset.
type envConfig struct {
	Port                 *string        `envconfig:"PORT"`
	LogLevel             *string        `envconfig:"LOG_LEVEL"`
	AMPEndpoint          *string        `envconfig:"AMP_ENDPOINT"`
	AMPTimeout           *time.Duration `envconfig:"AMP_TIMEOUT"`
	KnifeConfig          *string        `envconfig:"KNIFE_CONFIG"`
	KnifeBinary          *string        `envconfig:"KNIFE_BINARY"`
	ChefDirectory        *string        `envconfig:"CHEF_DIRECTORY"`
	KnifeTimeout         *time.Duration `envconfig:"KNIFE_TIMEOUT"`
	OwnedPrefixes        []string       `envconfig:"OWNED_PREFIXES"`
	Appliances           []string       `envconfig:"APPLIANCES"`
	SolveConcurrency     *int           `envconfig:"SOLVE_CONCURRENCY"`
	EnableRequestLogging *bool          `envconfig:"REQUEST_LOGGING"`
	RateLimitRPS         *float64       `envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst       *int           `envconfig:"RATE_LIMIT_BURST"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile       string
	Port             *string
	LogLevel         *string
	AMPEndpoint      *string
	KnifeConfig      *string
	ChefDirectory    *string
	OwnedPrefixesStr *string
	Appliances       []string
	RateLimitRPS     *float64
	RateLimitBurst   *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > Environment variables > YAML config > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	// Load from YAML file if specified
	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	// Apply environment variables (override YAML)
	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		if err := applyCLIOverrides(&cfg, overrides); err != nil {
			return Config{}, err
		}
	}

	// Validate final configuration
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// KnifeConfigPath resolves only the knife.rb location, using the same
// precedence as Load. Other settings are neither read nor validated.
func KnifeConfigPath(overrides *CLIOverrides) (string, error) {
	path := defaultKnifeConfig

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return "", fmt.Errorf("load YAML config: %w", err)
		}
		setString(&path, yamlCfg.Knife.Config)
	}

	var env struct {
		KnifeConfig *string `envconfig:"KNIFE_CONFIG"`
	}
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return "", fmt.Errorf("load environment: %w", err)
	}
	setStringPtr(&path, env.KnifeConfig)

	if overrides != nil {
		setStringPtr(&path, overrides.KnifeConfig)
	}

	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("knife config path cannot be empty")
	}
	return path, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		AMPEndpoint:          defaultAMPEndpoint,
		AMPTimeout:           10 * time.Second,
		AMPRateLimitRPS:      10,
		KnifeConfig:          defaultKnifeConfig,
		KnifeBinary:          defaultKnifeBinary,
		KnifeTimeout:         90 * time.Second,
		OwnedPrefixes:        DefaultOwnedPrefixes(),
		SolveConcurrency:     defaultSolveConcurrency,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         2 * time.Minute,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		LogLevel:             "info",
	}
}

// DefaultOwnedPrefixes returns a copy of the cookbook name prefixes treated as
// owned when no configuration overrides them.
func DefaultOwnedPrefixes() []string {
	out := make([]string, len(defaultOwnedPrefixes))
	copy(out, defaultOwnedPrefixes)
	return out
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	setString(&cfg.Port, yamlCfg.Port)
	setString(&cfg.LogLevel, yamlCfg.LogLevel)
	setString(&cfg.AMPEndpoint, yamlCfg.AMP.Endpoint)
	setString(&cfg.KnifeConfig, yamlCfg.Knife.Config)
	setString(&cfg.KnifeBinary, yamlCfg.Knife.Binary)
	setString(&cfg.ChefDirectory, yamlCfg.Knife.ChefDir)

	if yamlCfg.OwnedPrefixes != nil {
		cfg.OwnedPrefixes = normalizeList(yamlCfg.OwnedPrefixes)
	}
	if len(yamlCfg.Appliances) > 0 {
		cfg.Appliances = normalizeList(yamlCfg.Appliances)
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"amp.timeout", yamlCfg.AMP.Timeout, &cfg.AMPTimeout},
		{"knife.timeout", yamlCfg.Knife.Timeout, &cfg.KnifeTimeout},
		{"shutdown_grace_period", yamlCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{"read_header_timeout", yamlCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{"write_timeout", yamlCfg.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", yamlCfg.IdleTimeout, &cfg.IdleTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		value, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = value
	}

	if yamlCfg.AMP.RateLimitRPS != nil {
		cfg.AMPRateLimitRPS = *yamlCfg.AMP.RateLimitRPS
	}

	if yamlCfg.Knife.Concurrency != nil {
		cfg.SolveConcurrency = *yamlCfg.Knife.Concurrency
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}

	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}

	if yamlCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	return nil
}

// applyEnvConfig applies INVENTORY_* environment variables.
func applyEnvConfig(cfg *Config) error {
	var env envConfig
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return err
	}

	setStringPtr(&cfg.Port, env.Port)
	setStringPtr(&cfg.LogLevel, env.LogLevel)
	setStringPtr(&cfg.AMPEndpoint, env.AMPEndpoint)
	setStringPtr(&cfg.KnifeConfig, env.KnifeConfig)
	setStringPtr(&cfg.KnifeBinary, env.KnifeBinary)
	setStringPtr(&cfg.ChefDirectory, env.ChefDirectory)

	if env.AMPTimeout != nil {
		cfg.AMPTimeout = *env.AMPTimeout
	}
	if env.KnifeTimeout != nil {
		cfg.KnifeTimeout = *env.KnifeTimeout
	}
	if env.OwnedPrefixes != nil {
		cfg.OwnedPrefixes = normalizeList(env.OwnedPrefixes)
	}
	if len(env.Appliances) > 0 {
		cfg.Appliances = normalizeList(env.Appliances)
	}
	if env.SolveConcurrency != nil {
		cfg.SolveConcurrency = *env.SolveConcurrency
	}
	if env.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *env.EnableRequestLogging
	}
	if env.RateLimitRPS != nil {
		cfg.RateLimitRPS = *env.RateLimitRPS
	}
	if env.RateLimitBurst != nil {
		cfg.RateLimitBurst = *env.RateLimitBurst
	}

	return nil
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) error {
	setStringPtr(&cfg.Port, overrides.Port)
	setStringPtr(&cfg.LogLevel, overrides.LogLevel)
	setStringPtr(&cfg.AMPEndpoint, overrides.AMPEndpoint)
	setStringPtr(&cfg.KnifeConfig, overrides.KnifeConfig)
	setStringPtr(&cfg.ChefDirectory, overrides.ChefDirectory)

	if overrides.OwnedPrefixesStr != nil && *overrides.OwnedPrefixesStr != "" {
		prefixes, err := parseList(*overrides.OwnedPrefixesStr)
		if err != nil {
			return fmt.Errorf("parse owned prefixes: %w", err)
		}
		cfg.OwnedPrefixes = prefixes
	}

	if len(overrides.Appliances) > 0 {
		cfg.Appliances = normalizeList(overrides.Appliances)
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	return nil
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.AMPRateLimitRPS < 0 {
		return fmt.Errorf("AMP rate limit must be >= 0")
	}
	if cfg.SolveConcurrency < 1 {
		return fmt.Errorf("solve concurrency must be >= 1, got %d", cfg.SolveConcurrency)
	}
	if cfg.KnifeConfig == "" {
		return fmt.Errorf("knife config path cannot be empty")
	}
	if cfg.KnifeBinary == "" {
		return fmt.Errorf("knife binary cannot be empty")
	}
	if cfg.AMPTimeout <= 0 || cfg.KnifeTimeout <= 0 {
		return fmt.Errorf("AMP and knife timeouts must be positive")
	}
	u, err := url.Parse(cfg.AMPEndpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("AMP endpoint %q must be an absolute http(s) URL", cfg.AMPEndpoint)
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// parseList parses a comma-separated string into trimmed, de-duplicated values.
func parseList(raw string) ([]string, error) {
	values := normalizeList(strings.Split(raw, ","))
	if len(values) == 0 {
		return nil, fmt.Errorf("no values provided")
	}
	return values, nil
}

func normalizeList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func setString(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func setStringPtr(dst *string, value *string) {
	if value != nil {
		setString(dst, *value)
	}
}
