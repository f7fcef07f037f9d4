// Package schema defines on-chain account layouts and compiles them from CUE
// definition files.
//
// A schema names each account type the harness can verify, the Anchor
// discriminator seed that prefixes its data, and the ordered field list with
// exact integer widths. The verifier decodes account data strictly by this
// layout, so numeric assertions compare at the declared width with no
// implicit floating-point conversion.
package schema

import (
	"crypto/sha256"
	"fmt"
)

// FieldType enumerates the supported field encodings.
type FieldType string

const (
	TypeU8     FieldType = "u8"
	TypeU16    FieldType = "u16"
	TypeU32    FieldType = "u32"
	TypeU64    FieldType = "u64"
	TypeI64    FieldType = "i64"
	TypeBool   FieldType = "bool"
	TypePubkey FieldType = "pubkey"
	TypeString FieldType = "string"
)

// validFieldTypes is the closed set accepted by the compiler.
var validFieldTypes = map[FieldType]bool{
	TypeU8:     true,
	TypeU16:    true,
	TypeU32:    true,
	TypeU64:    true,
	TypeI64:    true,
	TypeBool:   true,
	TypePubkey: true,
	TypeString: true,
}

// Field is one named, typed slot in an account layout.
type Field struct {
	Name string
	Type FieldType
}

// Account describes the decoded layout of one account type.
type Account struct {
	// Name is the account type name (e.g. "Counter").
	Name string

	// DiscriminatorSeed is the Anchor preimage, e.g. "account:Counter".
	// The on-chain data begins with the first 8 bytes of its SHA-256.
	DiscriminatorSeed string

	// Fields follow the discriminator in declaration order.
	Fields []Field
}

// Discriminator returns the 8-byte prefix expected at the start of the
// account data.
func (a Account) Discriminator() [8]byte {
	sum := sha256.Sum256([]byte(a.DiscriminatorSeed))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// Field looks up a field by name.
func (a Account) Field(name string) (Field, bool) {
	for _, f := range a.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Set is a compiled collection of account layouts keyed by name.
type Set map[string]Account

// Lookup returns the layout for an account type name.
func (s Set) Lookup(name string) (Account, error) {
	acct, ok := s[name]
	if !ok {
		return Account{}, fmt.Errorf("no schema for account type %q", name)
	}
	return acct, nil
}
