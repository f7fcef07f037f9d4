// Package chaintest provides a deterministic in-memory ledger implementing
// chain.Client.
//
// The ledger executes registered program handlers against an account map,
// then reveals transaction status gradually over successive polls, so the
// confirmation state machine can be exercised without a network. Failure,
// expiry, and duplicate-submission behavior are scriptable per test.
package chaintest

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/chainproof/chainproof/internal/chain"
)

// Accounts is the ledger's mutable account state, raw data keyed by address.
type Accounts map[solana.PublicKey][]byte

// Instruction is one decoded instruction as a handler sees it.
type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []solana.PublicKey
	Signers   map[solana.PublicKey]bool
	Data      []byte
}

// Handler executes one instruction against the account state. Returned log
// lines are attached to the transaction verbatim; a returned error fails the
// whole transaction and rolls its writes back.
type Handler func(accts Accounts, ins Instruction) ([]string, error)

// txRecord tracks one submitted transaction's lifecycle.
type txRecord struct {
	err   error
	logs  []string
	polls int
}

// Ledger is a scripted chain.Client. Safe for concurrent use; all state is
// guarded by one mutex.
type Ledger struct {
	mu sync.Mutex

	accounts Accounts
	handlers map[solana.PublicKey]Handler
	txs      map[solana.Signature]*txRecord

	blockHeight uint64
	validity    uint64 // blockhash validity window in blocks

	// polls before a signature becomes known / reaches confirmed /
	// reaches finalized.
	knownAfter    int
	confirmAfter  int
	finalizeAfter int

	// sendFailures injects this many transient send errors before
	// accepting a transaction.
	sendFailures int

	// dropTransactions makes SendTransaction accept without recording,
	// so the signature stays unknown forever (expiry scripting).
	dropTransactions bool

	autoAdvance bool
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithConfirmationSchedule sets how many polls a signature needs to become
// known, confirmed, and finalized.
func WithConfirmationSchedule(known, confirmed, finalized int) Option {
	return func(l *Ledger) {
		l.knownAfter = known
		l.confirmAfter = confirmed
		l.finalizeAfter = finalized
	}
}

// WithBlockhashValidity sets the validity window attached to issued
// blockhashes.
func WithBlockhashValidity(blocks uint64) Option {
	return func(l *Ledger) { l.validity = blocks }
}

// WithTransientSendFailures injects n transport failures before a send
// succeeds.
func WithTransientSendFailures(n int) Option {
	return func(l *Ledger) { l.sendFailures = n }
}

// WithDroppedTransactions makes every sent transaction vanish: accepted at
// the entry point but never visible to status queries.
func WithDroppedTransactions() Option {
	return func(l *Ledger) { l.dropTransactions = true }
}

// WithAutoAdvance advances the block height by one on every height query,
// guaranteeing that dropped transactions eventually expire.
func WithAutoAdvance() Option {
	return func(l *Ledger) { l.autoAdvance = true }
}

// NewLedger creates an empty ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		accounts:      make(Accounts),
		handlers:      make(map[solana.PublicKey]Handler),
		txs:           make(map[solana.Signature]*txRecord),
		blockHeight:   100,
		validity:      150,
		knownAfter:    1,
		confirmAfter:  2,
		finalizeAfter: 3,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RegisterProgram installs a handler for a program id.
func (l *Ledger) RegisterProgram(programID solana.PublicKey, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[programID] = h
}

// SetAccount seeds raw account data directly.
func (l *Ledger) SetAccount(addr solana.PublicKey, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[addr] = append([]byte(nil), data...)
}

// AdvanceBlock moves the block height forward by n.
func (l *Ledger) AdvanceBlock(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blockHeight += n
}

func (l *Ledger) LatestBlockhash(ctx context.Context) (chain.Blockhash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Synthesize a hash from the height so repeated fetches at the same
	// height are identical and fetches at different heights are not.
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], l.blockHeight)
	sum := sha256.Sum256(seed[:])
	var hash solana.Hash
	copy(hash[:], sum[:])

	return chain.Blockhash{
		Hash:                 hash,
		LastValidBlockHeight: l.blockHeight + l.validity,
	}, nil
}

func (l *Ledger) BlockHeight(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.autoAdvance {
		l.blockHeight++
	}
	return l.blockHeight, nil
}

func (l *Ledger) AccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, ok := l.accounts[addr]
	if !ok {
		return nil, chain.ErrAccountNotExist
	}
	return append([]byte(nil), data...), nil
}

func (l *Ledger) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sendFailures > 0 {
		l.sendFailures--
		return solana.Signature{}, &chain.SendError{
			Cause:     fmt.Errorf("connection reset"),
			Transient: true,
		}
	}

	if len(tx.Signatures) == 0 {
		return solana.Signature{}, &chain.SendError{
			Cause: fmt.Errorf("transaction has no signatures"),
		}
	}
	sig := tx.Signatures[0]

	// The network deduplicates by signature within the blockhash validity
	// window: a replayed transaction is rejected, never applied twice.
	if _, seen := l.txs[sig]; seen {
		return solana.Signature{}, &chain.SendError{
			Cause: fmt.Errorf("transaction already processed"),
		}
	}

	if l.dropTransactions {
		return sig, nil
	}

	rec := &txRecord{}
	rec.logs, rec.err = l.execute(tx)
	l.txs[sig] = rec
	return sig, nil
}

// execute runs every instruction through its registered handler. Writes are
// staged on a copy and applied only if all instructions succeed.
func (l *Ledger) execute(tx *solana.Transaction) ([]string, error) {
	staged := make(Accounts, len(l.accounts))
	for addr, data := range l.accounts {
		staged[addr] = append([]byte(nil), data...)
	}

	msg := &tx.Message
	var logs []string
	for _, compiled := range msg.Instructions {
		programID, err := msg.Program(compiled.ProgramIDIndex)
		if err != nil {
			return nil, fmt.Errorf("bad program index: %w", err)
		}
		handler, ok := l.handlers[programID]
		if !ok {
			return nil, fmt.Errorf("no program registered at %s", programID)
		}

		ins := Instruction{
			ProgramID: programID,
			Data:      []byte(compiled.Data),
			Signers:   make(map[solana.PublicKey]bool),
		}
		for _, idx := range compiled.Accounts {
			key := msg.AccountKeys[idx]
			ins.Accounts = append(ins.Accounts, key)
			if int(idx) < int(msg.Header.NumRequiredSignatures) {
				ins.Signers[key] = true
			}
		}

		insLogs, err := handler(staged, ins)
		logs = append(logs, insLogs...)
		if err != nil {
			return logs, err
		}
	}

	l.accounts = staged
	return logs, nil
}

func (l *Ledger) SignatureStatus(ctx context.Context, sig solana.Signature) (chain.TxStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.txs[sig]
	if !ok {
		return chain.TxStatus{Known: false}, nil
	}

	rec.polls++
	if rec.polls < l.knownAfter {
		return chain.TxStatus{Known: false}, nil
	}

	status := chain.TxStatus{
		Known:      true,
		Commitment: chain.CommitmentProcessed,
		Logs:       rec.logs,
	}
	if rec.polls >= l.finalizeAfter {
		status.Commitment = chain.CommitmentFinalized
	} else if rec.polls >= l.confirmAfter {
		status.Commitment = chain.CommitmentConfirmed
	}
	if rec.err != nil {
		status.Err = rec.err
	}
	return status, nil
}
