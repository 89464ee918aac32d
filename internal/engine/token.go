package engine

import "github.com/google/uuid"

// RunTokenGenerator generates unique run tokens for report correlation.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type RunTokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-ordered UUIDv7 run tokens.
// Uses github.com/google/uuid for RFC 4122 compliant UUIDs.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator always returns the same token. Used in tests so report
// output is byte-stable for golden comparison.
type FixedGenerator struct {
	Token string
}

// Generate returns the fixed token.
func (g FixedGenerator) Generate() string {
	if g.Token == "" {
		return "run-fixed-default"
	}
	return g.Token
}
