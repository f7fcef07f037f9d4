// Package resolver maps symbolic account references to concrete addresses.
//
// Two kinds of references exist: externally supplied accounts, whose
// resolution is identity, and program-derived addresses, computed
// deterministically from a seed list and the owning program id. Derivation
// is a pure function: no network access, no side effects, and identical
// inputs always produce the identical address and bump.
package resolver

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/text/unicode/norm"
)

// ErrorCodeDerivationExhausted identifies a failed bump search: no bump in
// the 256-value range produced an address off the ed25519 curve.
const ErrorCodeDerivationExhausted = "ADDRESS_DERIVATION_EXHAUSTED"

// DerivationError is returned when no valid bump exists for a seed list.
type DerivationError struct {
	ProgramID solana.PublicKey
	Seeds     [][]byte
	Cause     error
}

func (e *DerivationError) Error() string {
	return fmt.Sprintf("%s: no valid bump for %d seed(s) under program %s: %v",
		ErrorCodeDerivationExhausted, len(e.Seeds), e.ProgramID, e.Cause)
}

func (e *DerivationError) Unwrap() error { return e.Cause }

func (e *DerivationError) ErrorCode() string { return ErrorCodeDerivationExhausted }

// Derive computes the program-derived address for the given seeds and owning
// program. The bump search starts at 255 and walks downward until the
// candidate address is off the signing curve, matching the network's
// canonical derivation.
func Derive(programID solana.PublicKey, seeds [][]byte) (solana.PublicKey, uint8, error) {
	if len(seeds) == 0 {
		return solana.PublicKey{}, 0, fmt.Errorf("derive: at least one seed is required")
	}
	addr, bump, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, 0, &DerivationError{
			ProgramID: programID,
			Seeds:     seeds,
			Cause:     err,
		}
	}
	return addr, bump, nil
}

// Table maps symbolic account names to resolved addresses for one scenario.
//
// Names are NFC-normalized on both insert and lookup so that visually
// identical references authored with different Unicode byte sequences hit
// the same entry instead of failing as typos.
//
// A Table is built once at scenario load time and read-only afterwards, so
// unknown references surface before any network interaction.
type Table struct {
	entries map[string]solana.PublicKey
}

// NewTable creates an empty resolution table.
func NewTable() *Table {
	return &Table{entries: make(map[string]solana.PublicKey)}
}

// Add registers a resolved address under a symbolic name. Re-registering an
// existing name is an authoring error.
func (t *Table) Add(name string, addr solana.PublicKey) error {
	key := norm.NFC.String(name)
	if _, exists := t.entries[key]; exists {
		return fmt.Errorf("duplicate account reference %q", name)
	}
	t.entries[key] = addr
	return nil
}

// Resolve returns the address registered under name.
func (t *Table) Resolve(name string) (solana.PublicKey, error) {
	addr, ok := t.entries[norm.NFC.String(name)]
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("unknown account reference %q", name)
	}
	return addr, nil
}

// Has reports whether name is registered.
func (t *Table) Has(name string) bool {
	_, ok := t.entries[norm.NFC.String(name)]
	return ok
}

// Names returns all registered names, for diagnostics.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	return names
}
