package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/knife-inventory/internal/application"
	"github.com/eugenenazirov/knife-inventory/internal/config"
	"github.com/eugenenazirov/knife-inventory/internal/knife"
	"github.com/eugenenazirov/knife-inventory/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	kingpinApp := kingpin.New("knife-inventory", "Knife Inventory - resolves AMP appliances into the Chef cookbooks they deploy")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	knifeConfig := kingpinApp.Flag("knife-config", "Path to the knife.rb client settings file").String()
	logLevel := kingpinApp.Flag("log-level", "Log level (debug, info, warn, error)").String()

	serveCmd := kingpinApp.Command("serve", "Run the inventory HTTP service").Default()
	port := serveCmd.Flag("port", "HTTP port exposed by the service").String()
	ampEndpoint := serveCmd.Flag("amp-endpoint", "Base URL of the AMP API").String()
	chefDir := serveCmd.Flag("chef-dir", "Working directory for knife solve").String()
	appliances := serveCmd.Flag("appliance", "Appliance to resolve at startup (repeatable)").Strings()
	ownedPrefixes := serveCmd.Flag("owned-prefixes", "Comma-separated cookbook name prefixes counted as owned").String()
	rateLimitRPSFlag := serveCmd.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := serveCmd.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	settingsCmd := kingpinApp.Command("settings", "Load knife.rb and print the client settings")
	format := settingsCmd.Flag("format", "Output format").Default("knife").Enum("knife", "yaml", "json")

	resolveCmd := kingpinApp.Command("resolve", "Resolve one appliance and print its cookbook inventory")
	resolveName := resolveCmd.Arg("appliance", "Appliance name").Required().String()

	command := kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
		Appliances: *appliances,
	}
	setIfNotEmpty(&overrides.KnifeConfig, *knifeConfig)
	setIfNotEmpty(&overrides.LogLevel, *logLevel)
	setIfNotEmpty(&overrides.Port, *port)
	setIfNotEmpty(&overrides.AMPEndpoint, *ampEndpoint)
	setIfNotEmpty(&overrides.ChefDirectory, *chefDir)
	setIfNotEmpty(&overrides.OwnedPrefixesStr, *ownedPrefixes)

	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}

	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	if command == settingsCmd.FullCommand() {
		os.Exit(runSettings(os.Stdout, os.Stderr, overrides, *format))
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	switch command {
	case resolveCmd.FullCommand():
		if err := resolve(os.Stdout, cfg, logger, *resolveName); err != nil {
			logger.Error("resolution failed", zap.String("appliance", *resolveName), zap.Error(err))
			_ = logger.Sync()
			os.Exit(1)
		}
	default:
		serve(cfg, logger)
	}
}

func serve(cfg config.Config, logger *zap.Logger) {
	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

func resolve(w io.Writer, cfg config.Config, logger *zap.Logger, name string, opts ...application.Option) error {
	inv, err := application.NewInventory(cfg, logger, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolved, err := inv.Service.Resolve(ctx, name)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resolved)
}

// runSettings prints the knife settings and returns the process exit code.
// Only the knife.rb location is resolved from the service configuration.
func runSettings(stdout, stderr io.Writer, overrides *config.CLIOverrides, format string) int {
	path, err := config.KnifeConfigPath(overrides)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	if err := printSettings(stdout, path, format); err != nil {
		fmt.Fprintln(stderr, describeSettingsError(err))
		return 1
	}
	return 0
}

func printSettings(w io.Writer, path, format string) error {
	settings, err := knife.Load(path)
	if err != nil {
		return err
	}

	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(settings); err != nil {
			return fmt.Errorf("encode settings: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(settings)
	default:
		return knife.Encode(w, settings)
	}
}

func describeSettingsError(err error) string {
	if key := knife.ErrorKey(err); key != "" {
		return fmt.Sprintf("invalid knife settings (key %s): %v", key, err)
	}
	return fmt.Sprintf("failed to load knife settings: %v", err)
}

func setIfNotEmpty(dst **string, value string) {
	if value != "" {
		*dst = &value
	}
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
