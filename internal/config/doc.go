// Package config loads and validates the pipeline configuration.
//
// Configuration is a single TOML file (config.toml by default). A missing
// file yields the built-in defaults; unrecognized keys are ignored.
package config
