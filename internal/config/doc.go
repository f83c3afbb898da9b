// Package config loads and validates service settings from defaults, an
// optional config.yaml, and DISPATCH_* environment variables.
package config
