// Package submit sends signed transactions to the network entry point.
//
// Submission returns the transaction signature as soon as the network
// accepts the transaction; it never waits for confirmation. Only
// transport-transient failures are retried, up to a small fixed bound with
// backoff; anything the node actively rejected surfaces immediately with the
// program's simulation logs attached verbatim.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/chainproof/chainproof/internal/chain"
)

const ErrorCodeRejected = "SUBMISSION_REJECTED"

// DefaultMaxAttempts bounds transient-failure retries.
const DefaultMaxAttempts = 3

// DefaultRetryBackoff is the base delay between transient retries.
const DefaultRetryBackoff = 200 * time.Millisecond

// RejectedError is the terminal submission failure. Logs holds any
// program-reported simulation detail, never summarized.
type RejectedError struct {
	Cause error
	Logs  []string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %v", ErrorCodeRejected, e.Cause)
}

func (e *RejectedError) Unwrap() error { return e.Cause }

func (e *RejectedError) ErrorCode() string { return ErrorCodeRejected }

// Submitter sends one signed transaction per call. It does not deduplicate
// resubmissions; tracking a signature across duplicates is the confirmation
// tracker's concern.
type Submitter struct {
	chain       chain.Client
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithMaxAttempts sets the total attempt bound for transient failures.
func WithMaxAttempts(n int) Option {
	return func(s *Submitter) { s.maxAttempts = n }
}

// WithRetryBackoff sets the base delay between transient retries.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Submitter) { s.backoff = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Submitter) { s.logger = l }
}

// New creates a Submitter over the given chain accessor.
func New(c chain.Client, opts ...Option) *Submitter {
	s := &Submitter{
		chain:       c,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultRetryBackoff,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit sends the transaction and returns its signature on acceptance.
// The caller's context bounds the whole attempt sequence; cancellation
// aborts the wait rather than hanging.
func (s *Submitter) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		sig, err := s.chain.SendTransaction(ctx, tx)
		if err == nil {
			s.logger.Debug("transaction accepted", "signature", sig, "attempt", attempt)
			return sig, nil
		}

		var sendErr *chain.SendError
		if errors.As(err, &sendErr) && !sendErr.Transient {
			return solana.Signature{}, &RejectedError{Cause: sendErr.Cause, Logs: sendErr.Logs}
		}
		if ctx.Err() != nil {
			return solana.Signature{}, fmt.Errorf("submission aborted: %w", ctx.Err())
		}

		lastErr = err
		s.logger.Debug("transient submission failure, retrying",
			"attempt", attempt, "max_attempts", s.maxAttempts, "error", err)

		if attempt < s.maxAttempts {
			select {
			case <-time.After(s.backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return solana.Signature{}, fmt.Errorf("submission aborted: %w", ctx.Err())
			}
		}
	}
	return solana.Signature{}, &RejectedError{
		Cause: fmt.Errorf("no acceptance after %d attempt(s): %w", s.maxAttempts, lastErr),
		Logs:  sendLogs(lastErr),
	}
}

func sendLogs(err error) []string {
	var sendErr *chain.SendError
	if errors.As(err, &sendErr) {
		return sendErr.Logs
	}
	return nil
}
