// Package txbuild composes instruction calls into signed, ready-to-submit
// transactions.
//
// Validation runs before any network interaction: a transaction missing a
// required signer never reaches the submitter, and an oversized transaction
// is rejected locally against the network packet limit.
package txbuild

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/chainproof/chainproof/internal/chain"
	"github.com/chainproof/chainproof/internal/resolver"
	"github.com/chainproof/chainproof/internal/scenario"
)

// MaxTransactionSize is the network's serialized transaction size limit in
// bytes (the UDP packet payload budget).
const MaxTransactionSize = 1232

const (
	ErrorCodeMissingSigner = "MISSING_SIGNER"
	ErrorCodeTooLarge      = "TRANSACTION_TOO_LARGE"
)

// MissingSignerError reports a signer-flagged account with no matching
// private key in the available signer set.
type MissingSignerError struct {
	Ref     string
	Address solana.PublicKey
}

func (e *MissingSignerError) Error() string {
	return fmt.Sprintf("%s: account %q (%s) requires a signature but no matching signer is available",
		ErrorCodeMissingSigner, e.Ref, e.Address)
}

func (e *MissingSignerError) ErrorCode() string { return ErrorCodeMissingSigner }

// TooLargeError reports a serialized transaction exceeding the packet limit.
type TooLargeError struct {
	Size  int
	Limit int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("%s: serialized transaction is %d bytes, limit is %d",
		ErrorCodeTooLarge, e.Size, e.Limit)
}

func (e *TooLargeError) ErrorCode() string { return ErrorCodeTooLarge }

// Built is a signed transaction together with the freshness reference it was
// built on. The tracker uses the pinned reference to decide expiry, never a
// re-fetched one.
type Built struct {
	Tx        *solana.Transaction
	Blockhash chain.Blockhash
}

// Builder turns resolved instruction calls into signed transactions. It
// holds no state between calls; the only side effect is reading the
// freshness reference from the chain accessor.
type Builder struct {
	chain chain.Client
}

// New creates a Builder over the given chain accessor.
func New(c chain.Client) *Builder {
	return &Builder{chain: c}
}

// Build validates signers and size, attaches a fresh blockhash, and signs.
//
// Signer validation happens first, before the blockhash fetch, so a missing
// signer is reported without any network call. The payer is always a
// required signer.
func (b *Builder) Build(
	ctx context.Context,
	calls []scenario.Call,
	table *resolver.Table,
	signers []solana.PrivateKey,
	payer solana.PublicKey,
) (*Built, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("build: at least one instruction call is required")
	}

	available := make(map[solana.PublicKey]solana.PrivateKey, len(signers))
	for _, key := range signers {
		available[key.PublicKey()] = key
	}

	if _, ok := available[payer]; !ok {
		return nil, &MissingSignerError{Ref: "payer", Address: payer}
	}

	instructions := make([]solana.Instruction, 0, len(calls))
	for i, call := range calls {
		metas := make(solana.AccountMetaSlice, 0, len(call.Accounts))
		for _, use := range call.Accounts {
			addr, err := table.Resolve(use.Ref)
			if err != nil {
				return nil, fmt.Errorf("instruction %d: %w", i, err)
			}
			if use.IsSigner {
				if _, ok := available[addr]; !ok {
					return nil, &MissingSignerError{Ref: use.Ref, Address: addr}
				}
			}
			metas = append(metas, &solana.AccountMeta{
				PublicKey:  addr,
				IsWritable: use.IsWritable,
				IsSigner:   use.IsSigner,
			})
		}
		instructions = append(instructions, solana.NewInstruction(call.ProgramID, metas, call.Data))
	}

	blockhash, err := b.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch freshness reference: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, blockhash.Hash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("assemble transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if k, ok := available[key]; ok {
			return &k
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}
	if len(raw) > MaxTransactionSize {
		return nil, &TooLargeError{Size: len(raw), Limit: MaxTransactionSize}
	}

	return &Built{Tx: tx, Blockhash: blockhash}, nil
}
