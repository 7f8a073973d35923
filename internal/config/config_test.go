package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INVENTORY_PORT", "")
	t.Setenv("INVENTORY_AMP_ENDPOINT", "")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != defaultPort {
		t.Fatalf("expected default port %s, got %s", defaultPort, cfg.Port)
	}
	if cfg.AMPEndpoint != defaultAMPEndpoint {
		t.Fatalf("expected default AMP endpoint, got %s", cfg.AMPEndpoint)
	}
	if len(cfg.OwnedPrefixes) != len(defaultOwnedPrefixes) {
		t.Fatalf("expected default owned prefixes, got %v", cfg.OwnedPrefixes)
	}
	if cfg.ShutdownGracePeriod != 10*time.Second {
		t.Fatalf("unexpected shutdown grace period: %s", cfg.ShutdownGracePeriod)
	}
	if !cfg.EnableRequestLogging {
		t.Fatalf("expected request logging to be enabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("INVENTORY_PORT", "9000")
	t.Setenv("INVENTORY_OWNED_PREFIXES", "acme, corp , acme")
	t.Setenv("INVENTORY_KNIFE_TIMEOUT", "30s")
	t.Setenv("INVENTORY_RATE_LIMIT_BURST", "5")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "9000" {
		t.Fatalf("expected overridden port, got %s", cfg.Port)
	}
	if want := []string{"acme", "corp"}; len(cfg.OwnedPrefixes) != len(want) || cfg.OwnedPrefixes[0] != "acme" || cfg.OwnedPrefixes[1] != "corp" {
		t.Fatalf("unexpected owned prefixes: %v", cfg.OwnedPrefixes)
	}
	if cfg.KnifeTimeout != 30*time.Second {
		t.Fatalf("unexpected knife timeout: %s", cfg.KnifeTimeout)
	}
	if cfg.RateLimitBurst != 5 {
		t.Fatalf("unexpected burst: %d", cfg.RateLimitBurst)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	t.Setenv("INVENTORY_SOLVE_CONCURRENCY", "many")

	if _, err := Load(nil); err == nil {
		t.Fatalf("expected error for malformed integer")
	}
}

func TestLoadYAMLAndPrecedence(t *testing.T) {
	path := writeYAML(t, `
port: "7000"
log_level: debug
amp:
  endpoint: http://amp.internal:5001
  timeout: 3s
knife:
  config: /srv/chef/knife.rb
  chef_directory: /srv/chef
  concurrency: 2
owned_prefixes: [acme]
appliances: [web, db]
enable_request_logging: false
rate_limit:
  rps: 0
  burst: 0
`)
	t.Setenv("INVENTORY_PORT", "7100")

	port := "7200"
	cfg, err := Load(&CLIOverrides{ConfigFile: path, Port: &port, Appliances: []string{"cache"}})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "7200" {
		t.Fatalf("expected CLI port to win, got %s", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("unexpected log level %s", cfg.LogLevel)
	}
	if cfg.AMPEndpoint != "http://amp.internal:5001" || cfg.AMPTimeout != 3*time.Second {
		t.Fatalf("unexpected AMP settings: %s %s", cfg.AMPEndpoint, cfg.AMPTimeout)
	}
	if cfg.KnifeConfig != "/srv/chef/knife.rb" || cfg.ChefDirectory != "/srv/chef" || cfg.SolveConcurrency != 2 {
		t.Fatalf("unexpected knife settings: %+v", cfg)
	}
	if len(cfg.Appliances) != 1 || cfg.Appliances[0] != "cache" {
		t.Fatalf("expected CLI appliances, got %v", cfg.Appliances)
	}
	if cfg.EnableRequestLogging {
		t.Fatalf("expected request logging disabled by YAML")
	}
	if cfg.RateLimitRPS != 0 || cfg.RateLimitBurst != 0 {
		t.Fatalf("expected rate limit disabled, got %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
}

func TestLoadEnvBeatsYAML(t *testing.T) {
	path := writeYAML(t, "port: \"7000\"\n")
	t.Setenv("INVENTORY_PORT", "7100")

	cfg, err := Load(&CLIOverrides{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != "7100" {
		t.Fatalf("expected env port, got %s", cfg.Port)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"bad duration":    "write_timeout: soon\n",
		"bad endpoint":    "amp:\n  endpoint: amp.internal\n",
		"bad log level":   "log_level: loud\n",
		"zero workers":    "knife:\n  concurrency: 0\n",
		"negative rps":    "rate_limit:\n  rps: -1\n",
		"malformed yaml":  "port: [\n",
		"negative amp ps": "amp:\n  rate_limit_rps: -2\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(&CLIOverrides{ConfigFile: writeYAML(t, content)}); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(&CLIOverrides{ConfigFile: filepath.Join(t.TempDir(), "absent.yaml")}); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestKnifeConfigPathIgnoresUnrelatedSettings(t *testing.T) {
	t.Setenv("INVENTORY_SOLVE_CONCURRENCY", "many")
	t.Setenv("INVENTORY_AMP_ENDPOINT", "not a url")
	t.Setenv("INVENTORY_LOG_LEVEL", "loud")
	t.Setenv("INVENTORY_KNIFE_CONFIG", "")

	if _, err := Load(nil); err == nil {
		t.Fatalf("expected Load to reject the environment")
	}

	path, err := KnifeConfigPath(nil)
	if err != nil {
		t.Fatalf("KnifeConfigPath returned error: %v", err)
	}
	if path != defaultKnifeConfig {
		t.Fatalf("expected default %s, got %s", defaultKnifeConfig, path)
	}
}

func TestKnifeConfigPathPrecedence(t *testing.T) {
	yamlPath := writeYAML(t, `
knife:
  config: /etc/chef/from-yaml.rb
  timeout: forever
`)
	t.Setenv("INVENTORY_KNIFE_CONFIG", "")

	path, err := KnifeConfigPath(&CLIOverrides{ConfigFile: yamlPath})
	if err != nil {
		t.Fatalf("KnifeConfigPath returned error: %v", err)
	}
	if path != "/etc/chef/from-yaml.rb" {
		t.Fatalf("expected YAML path, got %s", path)
	}

	t.Setenv("INVENTORY_KNIFE_CONFIG", "/etc/chef/from-env.rb")
	path, _ = KnifeConfigPath(&CLIOverrides{ConfigFile: yamlPath})
	if path != "/etc/chef/from-env.rb" {
		t.Fatalf("expected env path, got %s", path)
	}

	flag := "/etc/chef/from-flag.rb"
	path, _ = KnifeConfigPath(&CLIOverrides{ConfigFile: yamlPath, KnifeConfig: &flag})
	if path != flag {
		t.Fatalf("expected flag path, got %s", path)
	}

	if _, err := KnifeConfigPath(&CLIOverrides{ConfigFile: filepath.Join(t.TempDir(), "absent.yaml")}); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestParseList(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		got, err := parseList("uc, spade,,uc")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := []string{"uc", "spade"}; len(got) != len(want) {
			t.Fatalf("unexpected values: %v", got)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		if _, err := parseList(" , "); err == nil {
			t.Fatalf("expected error for empty string")
		}
	})
}

func TestDefaultOwnedPrefixesReturnsCopy(t *testing.T) {
	got := DefaultOwnedPrefixes()
	got[0] = "changed"
	if DefaultOwnedPrefixes()[0] == "changed" {
		t.Fatalf("expected defensive copy")
	}
}
