// Package config loads, normalizes, and validates setgen configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SETGEN_SOURCE and SETGEN_WEBHOOK_URL. The Config type centralizes every knob
// the pipeline and CLI need: where card data comes from, which sets and
// languages are generated, which output kinds each language receives, how
// tasks are retried, and where notices are delivered.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical language names, and clear validation errors.
package config
