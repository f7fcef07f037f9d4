// Package verify fetches decoded on-chain account state and asserts it
// against expected partial records.
//
// Only the fields a step names are compared, at the exact integer width the
// account schema declares. Expected values never pass through a float, so
// large counters compare without precision loss.
package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/chainproof/chainproof/internal/chain"
	"github.com/chainproof/chainproof/internal/resolver"
	"github.com/chainproof/chainproof/internal/scenario"
	"github.com/chainproof/chainproof/internal/schema"
)

const (
	ErrorCodeNotFound = "ACCOUNT_NOT_FOUND"
	ErrorCodeMismatch = "ASSERTION_MISMATCH"
)

// NotFoundError reports that the asserted account does not exist at query
// time.
type NotFoundError struct {
	Ref     string
	Address solana.PublicKey
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: account %q (%s) does not exist", ErrorCodeNotFound, e.Ref, e.Address)
}

func (e *NotFoundError) ErrorCode() string { return ErrorCodeNotFound }

// MismatchError reports the first expected field whose decoded value
// differs.
type MismatchError struct {
	Ref      string
	Field    string
	Expected interface{}
	Actual   interface{}
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: account %q field %q: expected %v, got %v",
		ErrorCodeMismatch, e.Ref, e.Field, e.Expected, e.Actual)
}

func (e *MismatchError) ErrorCode() string { return ErrorCodeMismatch }

// Verifier checks post-step account state through the chain accessor.
type Verifier struct {
	chain   chain.Client
	schemas schema.Set
}

// New creates a Verifier using the given schemas for decoding.
func New(c chain.Client, schemas schema.Set) *Verifier {
	return &Verifier{chain: c, schemas: schemas}
}

// Verify fetches the account named by the expectation, decodes it per its
// schema, and compares the expected fields in schema declaration order.
//
// An expectation with no fields passes as long as the account exists.
func (v *Verifier) Verify(ctx context.Context, exp scenario.StateExpectation, table *resolver.Table) error {
	addr, err := table.Resolve(exp.Ref)
	if err != nil {
		return err
	}

	acct, err := v.schemas.Lookup(exp.Type)
	if err != nil {
		return err
	}

	data, err := v.chain.AccountData(ctx, addr)
	if err != nil {
		if errors.Is(err, chain.ErrAccountNotExist) {
			return &NotFoundError{Ref: exp.Ref, Address: addr}
		}
		return fmt.Errorf("fetch account %q: %w", exp.Ref, err)
	}

	decoded, err := acct.Decode(data)
	if err != nil {
		return fmt.Errorf("account %q: %w", exp.Ref, err)
	}

	// Expected field names must exist in the schema; a typo in an
	// assertion is an error, not a silent pass.
	for name := range exp.Fields {
		if _, ok := acct.Field(name); !ok {
			return fmt.Errorf("account %q: schema %s has no field %q", exp.Ref, exp.Type, name)
		}
	}

	// Compare in schema declaration order so the reported first mismatch
	// is deterministic.
	for _, field := range acct.Fields {
		expected, asserted := exp.Fields[field.Name]
		if !asserted {
			continue
		}
		actual := decoded[field.Name]
		ok, err := compare(field.Type, expected, actual)
		if err != nil {
			return fmt.Errorf("account %q field %q: %w", exp.Ref, field.Name, err)
		}
		if !ok {
			return &MismatchError{
				Ref:      exp.Ref,
				Field:    field.Name,
				Expected: expected,
				Actual:   actual,
			}
		}
	}
	return nil
}

// compare checks an expected literal against a decoded value at the field's
// declared width. Floating-point expected values are rejected outright.
func compare(ft schema.FieldType, expected, actual interface{}) (bool, error) {
	switch ft {
	case schema.TypeU8, schema.TypeU16, schema.TypeU32, schema.TypeU64:
		want, err := toUint64(expected)
		if err != nil {
			return false, err
		}
		got, ok := actual.(uint64)
		if !ok {
			return false, fmt.Errorf("decoded value has unexpected type %T", actual)
		}
		return want == got, nil
	case schema.TypeI64:
		want, err := toInt64(expected)
		if err != nil {
			return false, err
		}
		got, ok := actual.(int64)
		if !ok {
			return false, fmt.Errorf("decoded value has unexpected type %T", actual)
		}
		return want == got, nil
	case schema.TypeBool:
		want, ok := expected.(bool)
		if !ok {
			return false, fmt.Errorf("expected value %v is not a bool", expected)
		}
		got, ok := actual.(bool)
		if !ok {
			return false, fmt.Errorf("decoded value has unexpected type %T", actual)
		}
		return want == got, nil
	case schema.TypeString:
		want, ok := expected.(string)
		if !ok {
			return false, fmt.Errorf("expected value %v is not a string", expected)
		}
		got, ok := actual.(string)
		if !ok {
			return false, fmt.Errorf("decoded value has unexpected type %T", actual)
		}
		return want == got, nil
	case schema.TypePubkey:
		s, ok := expected.(string)
		if !ok {
			return false, fmt.Errorf("expected value %v is not a base58 address", expected)
		}
		want, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			return false, fmt.Errorf("expected value is not a valid address: %w", err)
		}
		got, ok := actual.(solana.PublicKey)
		if !ok {
			return false, fmt.Errorf("decoded value has unexpected type %T", actual)
		}
		return want.Equals(got), nil
	default:
		return false, fmt.Errorf("unsupported field type %q", ft)
	}
}

func toUint64(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case int:
		if n < 0 {
			return 0, fmt.Errorf("expected value %d is negative for an unsigned field", n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("expected value %d is negative for an unsigned field", n)
		}
		return uint64(n), nil
	case uint64:
		return n, nil
	case uint:
		return uint64(n), nil
	case float32, float64:
		return 0, fmt.Errorf("floating-point expected values are not allowed for integer fields")
	default:
		return 0, fmt.Errorf("expected value %v (%T) is not an integer", v, v)
	}
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		if n > 1<<63-1 {
			return 0, fmt.Errorf("expected value %d overflows i64", n)
		}
		return int64(n), nil
	case float32, float64:
		return 0, fmt.Errorf("floating-point expected values are not allowed for integer fields")
	default:
		return 0, fmt.Errorf("expected value %v (%T) is not an integer", v, v)
	}
}
