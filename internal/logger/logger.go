// Package logger builds the process-wide structured logger. It follows
// the teacher's convention of a package-level *zap.Logger built once at
// startup and threaded through request-scoped children via With(...).
package logger

import (
	"github.com/Laisky/zap"
)

// New builds a production or development zap logger depending on env.
// env is expected to be one of "development", "production", "test".
func New(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	if env == "test" {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

// Redact replaces all but the first 4 / last 4 characters of a secret
// with a literal "[REDACTED]" marker, per spec §4.2.
func Redact(secret string) string {
	const keep = 4
	if len(secret) <= keep*2 {
		return "[REDACTED]"
	}
	return secret[:keep] + "…[REDACTED]…" + secret[len(secret)-keep:]
}
