// Package confirm tracks submitted transactions until they reach a terminal
// state.
//
// Per signature, the tracker walks a small state machine:
//
//	Submitted -> Processing -> Confirmed | Failed | Expired
//
// Expiry is judged against the freshness reference pinned at build time: the
// transaction is expired once the chain's block height passes the
// reference's last valid height while the signature is still unknown.
// Re-fetching a fresh blockhash for this check would compare the transaction
// against an unrelated validity window, so the tracker never does that.
package confirm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/chainproof/chainproof/internal/chain"
)

const ErrorCodeTimeout = "CONFIRMATION_TIMEOUT"

// State is a tracker state for one transaction signature.
type State string

const (
	StateSubmitted  State = "submitted"
	StateProcessing State = "processing"
	StateConfirmed  State = "confirmed"
	StateFailed     State = "failed"
	StateExpired    State = "expired"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateExpired
}

// Outcome is the terminal result of tracking one signature.
type Outcome struct {
	State State

	// Err is the on-chain execution error for StateFailed.
	Err error

	// Logs holds program-emitted log lines, verbatim, when available.
	Logs []string
}

// TimeoutError reports that no terminal state was observed before the
// caller's deadline. This is a local decision, not a network fact: the
// transaction may still confirm later. Callers must treat the outcome as
// unknown, not as failed.
type TimeoutError struct {
	Signature solana.Signature
	LastState State
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no terminal state for %s before deadline (last observed: %s); the transaction may still confirm",
		ErrorCodeTimeout, e.Signature, e.LastState)
}

func (e *TimeoutError) ErrorCode() string { return ErrorCodeTimeout }

const (
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaxBackoff     = 4 * time.Second
)

// Tracker polls transaction status with bounded exponential backoff.
type Tracker struct {
	chain          chain.Client
	threshold      chain.Commitment
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithBackoff sets the initial and maximum delay between polls.
func WithBackoff(initial, max time.Duration) Option {
	return func(t *Tracker) {
		t.initialBackoff = initial
		t.maxBackoff = max
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// New creates a Tracker that considers a transaction confirmed once it
// reaches the given commitment threshold.
func New(c chain.Client, threshold chain.Commitment, opts ...Option) *Tracker {
	t := &Tracker{
		chain:          c,
		threshold:      threshold,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track polls until the signature reaches a terminal state or the caller's
// context expires. ref must be the freshness reference the transaction was
// built on.
//
// Poll errors are logged and retried within the deadline; they never
// masquerade as a transaction outcome.
func (t *Tracker) Track(ctx context.Context, sig solana.Signature, ref chain.Blockhash) (Outcome, error) {
	state := StateSubmitted
	backoff := t.initialBackoff

	for {
		status, err := t.chain.SignatureStatus(ctx, sig)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, &TimeoutError{Signature: sig, LastState: state}
			}
			t.logger.Debug("status poll failed, retrying", "signature", sig, "error", err)
		} else {
			next, outcome, done := t.advance(ctx, state, status, sig, ref)
			if done {
				return outcome, nil
			}
			if next != state {
				t.logger.Debug("confirmation state changed",
					"signature", sig, "from", state, "to", next)
				state = next
			}
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return Outcome{}, &TimeoutError{Signature: sig, LastState: state}
		}
		backoff *= 2
		if backoff > t.maxBackoff {
			backoff = t.maxBackoff
		}
	}
}

// advance applies one observed status to the state machine. Terminal states
// are mutually exclusive: a failed transaction can never report Confirmed,
// because the execution error is checked before the commitment level.
func (t *Tracker) advance(
	ctx context.Context,
	state State,
	status chain.TxStatus,
	sig solana.Signature,
	ref chain.Blockhash,
) (State, Outcome, bool) {
	if !status.Known {
		// Unknown signature: either still in flight or expired. The
		// pinned reference decides which.
		height, err := t.chain.BlockHeight(ctx)
		if err != nil {
			t.logger.Debug("block height poll failed", "error", err)
			return state, Outcome{}, false
		}
		if height > ref.LastValidBlockHeight {
			return StateExpired, Outcome{State: StateExpired}, true
		}
		return state, Outcome{}, false
	}

	if status.Err != nil {
		return StateFailed, Outcome{
			State: StateFailed,
			Err:   status.Err,
			Logs:  status.Logs,
		}, true
	}

	if status.Commitment.AtLeast(t.threshold) {
		return StateConfirmed, Outcome{State: StateConfirmed, Logs: status.Logs}, true
	}

	return StateProcessing, Outcome{}, false
}
