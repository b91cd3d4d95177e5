// Package config loads, normalizes, and validates backer configuration.
//
// Configuration lives in a TOML file, by default ~/.config/backer/config.toml
// with a repository-local backer.toml fallback. Load applies defaults for
// unset values, expands ~ in path fields, pulls S3 credentials from the
// standard AWS environment variables when unset, and rejects configurations
// that select a backend without its required settings.
package config
