// Package ctxkey defines shared context key types used across multiple packages.
// This package should have no dependencies on other internal packages to avoid import cycles.
package ctxkey

// LoggerKey is the context key type for a per-call logger.
// The dispatcher stores a logger enriched with call_id/service fields here
// and the chain prefers it over its own.
type LoggerKey struct{}

// BoundKey is the context key type for the owner a hook chain runs for.
type BoundKey struct{}
