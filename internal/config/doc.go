// Package config loads runtime configuration of the inventory service from
// multiple sources (YAML files, environment variables, CLI flags) with
// precedence: CLI flags > Environment variables > YAML config > Defaults. It
// exposes strongly typed settings to the rest of the application.
package config
