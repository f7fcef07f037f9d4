// Package scenario defines the in-memory scenario model the runner consumes,
// and a YAML front-end for authoring scenario files.
//
// The runner only ever sees fully resolved steps: every symbolic account
// reference has been checked against the resolution table and every argument
// payload is already serialized. Authoring-time concerns (file format,
// reference syntax, keypair generation) stay in this package.
package scenario

import (
	"github.com/gagliardetto/solana-go"

	"github.com/chainproof/chainproof/internal/resolver"
	"github.com/chainproof/chainproof/internal/schema"
)

// Policy controls how the runner reacts when a step fails.
type Policy string

const (
	// PolicyAbort stops the scenario at the first failed step. This is the
	// default: later steps depend on the cumulative state left by earlier
	// ones.
	PolicyAbort Policy = "abort"

	// PolicyContinue records the failure and proceeds to the next step.
	PolicyContinue Policy = "continue"

	// PolicyRetry re-runs the failed step up to a bounded attempt count,
	// then applies abort semantics.
	PolicyRetry Policy = "retry"
)

// AccountUse names an account an instruction touches, with its mutability
// and signing flags.
type AccountUse struct {
	// Ref is the symbolic account reference.
	Ref string

	IsWritable bool
	IsSigner   bool
}

// Call is one instruction invocation: the target program, the ordered
// account list, and the serialized argument payload. The payload is opaque
// to the harness and never mutated after signing.
type Call struct {
	ProgramID solana.PublicKey
	Accounts  []AccountUse
	Data      []byte
}

// StateExpectation asserts a subset of decoded fields on one account after
// the step's transaction confirms.
type StateExpectation struct {
	// Ref is the symbolic reference of the account to fetch.
	Ref string

	// Type names the schema account layout used to decode the data.
	Type string

	// Fields maps field names to expected values. Only listed fields are
	// compared; an empty map passes vacuously when the account exists.
	Fields map[string]interface{}
}

// Step is one ordered scenario step: the instruction calls to run in a
// single transaction, the post-state assertions, and the failure policy.
type Step struct {
	Name    string
	Calls   []Call
	Expect  []StateExpectation
	Policy  Policy
	Retries int // attempts beyond the first, only meaningful for PolicyRetry
}

// Scenario is a fully resolved, ready-to-run scenario.
type Scenario struct {
	Name        string
	Description string

	// Accounts maps symbolic references to concrete addresses. Built once
	// at load time; unknown references fail before any network call.
	Accounts *resolver.Table

	// Signers are the private keys available for transaction signing.
	Signers []solana.PrivateKey

	// Payer is the symbolic reference of the fee-paying signer.
	Payer string

	// Schemas holds the compiled account layouts referenced by
	// state expectations.
	Schemas schema.Set

	Steps []Step
}
