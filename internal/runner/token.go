package runner

import "github.com/google/uuid"

// TokenGenerator produces run tokens for correlating a scenario run across
// logs, reports, and the run store.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator is the production token generator. UUIDv7 tokens sort by
// creation time, which keeps run-store listings in chronological order.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the random source does; fall back to v4.
		return uuid.NewString()
	}
	return id.String()
}

// FixedGenerator always returns the same token. Used by tests and golden
// comparisons that need byte-identical reports across runs.
type FixedGenerator string

func (g FixedGenerator) Generate() string { return string(g) }
