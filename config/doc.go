// Package config supplies cache settings from defaults, YAML files,
// environment variables, and programmatic overrides, merged in that order.
package config
