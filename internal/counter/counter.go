// Package counter carries the bindings for the example counter program: the
// program id, instruction encoders, the account layout, and an in-memory
// handler mirroring the on-chain semantics for harness tests.
//
// The program keeps one Counter account per user at a derived address with
// seeds ("counter", user). Initialize creates it at zero; increment and
// decrement adjust it, rejecting a zero amount, an increment smaller than
// the current count, and a decrement larger than it.
package counter

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/chainproof/chainproof/internal/resolver"
	"github.com/chainproof/chainproof/internal/schema"
)

// ProgramID is the deployed counter program address.
var ProgramID = solana.MustPublicKeyFromBase58("8sHV6MjJSkemTc34PXrymjmungpjgf7b1np52eSnoLBx")

// CounterSeed is the static prefix of the counter account derivation.
const CounterSeed = "counter"

// SchemaCUE is the account layout definition, in the same form schema files
// use on disk.
const SchemaCUE = `
accounts: {
	Counter: {
		discriminator: "account:Counter"
		fields: [
			{name: "count", type: "u64"},
			{name: "bump", type: "u8"},
		]
	}
}
`

// Schema compiles the Counter account layout.
func Schema() (schema.Set, error) {
	return schema.Compile([]byte(SchemaCUE), "counter.cue")
}

// DeriveCounter computes the counter account address for a user.
func DeriveCounter(user solana.PublicKey) (solana.PublicKey, uint8, error) {
	return resolver.Derive(ProgramID, [][]byte{[]byte(CounterSeed), user.Bytes()})
}

// instructionTag returns the 8-byte Anchor discriminator for a global
// instruction name.
func instructionTag(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

// InitializeData serializes the initialize instruction payload.
func InitializeData() []byte {
	return instructionTag("initialize")
}

// IncrementData serializes the increment instruction payload.
func IncrementData(amount uint64) []byte {
	return amountPayload("increment", amount)
}

// DecrementData serializes the decrement instruction payload.
func DecrementData(amount uint64) []byte {
	return amountPayload("decrement", amount)
}

func amountPayload(name string, amount uint64) []byte {
	data := instructionTag(name)
	var arg [8]byte
	binary.LittleEndian.PutUint64(arg[:], amount)
	return append(data, arg[:]...)
}

// state is the decoded Counter account.
type state struct {
	Count uint64
	Bump  uint8
}

func encodeState(s state) []byte {
	acct, _ := Schema()
	disc := acct["Counter"].Discriminator()

	var buf bytes.Buffer
	buf.Write(disc[:])
	enc := bin.NewBorshEncoder(&buf)
	_ = enc.WriteUint64(s.Count, bin.LE)
	_ = enc.WriteByte(s.Bump)
	return buf.Bytes()
}

func decodeState(data []byte) (state, error) {
	dec := bin.NewBorshDecoder(data[8:])
	var s state
	var err error
	if s.Count, err = dec.ReadUint64(bin.LE); err != nil {
		return state{}, err
	}
	if s.Bump, err = dec.ReadUint8(); err != nil {
		return state{}, err
	}
	return s, nil
}
