// Package config loads vdec settings from a TOML file and the environment.
//
// Loading follows a fixed order: repository defaults, then the file (when it
// exists), then normalization of blank or out-of-range values, then
// environment overrides, then validation.
package config
