// Package chain defines the narrow chain-state accessor the harness depends
// on, plus its production implementation backed by a Solana JSON-RPC endpoint.
//
// Every component that talks to the network does so through the Client
// interface, never through a package-level singleton. This keeps concurrent
// scenario runs isolated and lets tests substitute a scripted in-memory
// ledger (see internal/chaintest).
package chain

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

// ErrAccountNotExist is returned by AccountData when the queried address has
// no account on chain at the requested commitment level.
var ErrAccountNotExist = errors.New("account does not exist")

// Commitment is the confirmation depth requested from the network.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// AtLeast reports whether c is at or beyond the threshold level.
// Ordering: processed < confirmed < finalized.
func (c Commitment) AtLeast(threshold Commitment) bool {
	return rank(c) >= rank(threshold)
}

func rank(c Commitment) int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}

// Blockhash is the freshness reference attached to a transaction: the recent
// blockhash itself and the last block height at which the network will still
// accept a transaction built on it.
type Blockhash struct {
	Hash                 solana.Hash
	LastValidBlockHeight uint64
}

// TxStatus is the network's view of a submitted transaction.
type TxStatus struct {
	// Known is false when the network has no record of the signature yet.
	Known bool

	// Commitment is the deepest commitment level the transaction has
	// reached. Meaningless when Known is false.
	Commitment Commitment

	// Err is the terminal on-chain execution error, nil if the transaction
	// executed successfully (or has not executed yet).
	Err error

	// Logs holds program-emitted log lines, verbatim, when available.
	Logs []string
}

// Client is the chain-state accessor. Implementations must be safe for use
// by multiple concurrent scenario runs: every call is an independent
// request/response with no cross-call mutable state.
type Client interface {
	// LatestBlockhash fetches a fresh blockhash and its validity horizon.
	LatestBlockhash(ctx context.Context) (Blockhash, error)

	// BlockHeight returns the current block height at the client's
	// configured commitment level.
	BlockHeight(ctx context.Context) (uint64, error)

	// AccountData returns the raw data of the account at addr, or
	// ErrAccountNotExist if no account exists there.
	AccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error)

	// SendTransaction submits a signed transaction and returns its
	// signature as soon as the entry point accepts it. It does not wait
	// for any commitment level.
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)

	// SignatureStatus reports the current status of a submitted
	// transaction.
	SignatureStatus(ctx context.Context, sig solana.Signature) (TxStatus, error)
}
