// Package config handles configuration loading and management for hitfetch.
//
// It provides functionality for:
//   - Loading configuration from .hitfetch.json or hitfetch.config.json files
//   - Default configuration values
//   - Struct-tag validation of the loaded values
package config
