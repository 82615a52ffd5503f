// Package config loads, normalizes, and validates vodingest configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional .env file, and honours
// environment fallbacks such as INGEST_DATABASE_DSN and INGEST_SIGNING_SECRET.
// The Config type centralizes every knob the daemon and CLI need: database
// connection, object storage, per-file-type size ceilings, retry policy and
// phase timeouts.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
