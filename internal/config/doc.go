// Package config provides configuration loading and validation for the live
// subtitle service. It handles YAML-based configuration with struct
// validation and environment overrides for credentials and endpoints.
package config
