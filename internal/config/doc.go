// Package config loads and validates murmur's TOML configuration.
//
// Configuration resolves from an explicit path, then ~/.config/murmur/config.toml,
// then ./murmur.toml, falling back to built-in defaults when no file exists.
// All path fields are tilde-expanded and absolutized during load, so the rest
// of the codebase never needs to re-normalize them.
package config
