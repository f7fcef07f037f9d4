// Package runner orchestrates scenario execution: resolve accounts, build
// the transaction, submit it, track it to a terminal state, then verify
// post-state assertions.
//
// Steps within one scenario run strictly sequentially; each step's
// assertions may depend on state the previous step mutated. Independent
// scenarios may run concurrently: a Runner holds no shared mutable state
// beyond the chain accessor, which is safe for concurrent callers.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/chainproof/chainproof/internal/chain"
	"github.com/chainproof/chainproof/internal/confirm"
	"github.com/chainproof/chainproof/internal/scenario"
	"github.com/chainproof/chainproof/internal/submit"
	"github.com/chainproof/chainproof/internal/txbuild"
	"github.com/chainproof/chainproof/internal/verify"
)

// Error codes for failures that originate on chain rather than in the
// harness itself.
const (
	ErrorCodeExecutionFailed = "EXECUTION_FAILED"
	ErrorCodeExpired         = "TRANSACTION_EXPIRED"
)

// DefaultStepTimeout bounds one step's submit-and-confirm wait.
const DefaultStepTimeout = 90 * time.Second

// coder is implemented by every taxonomy error in the harness.
type coder interface {
	ErrorCode() string
}

// Runner executes scenarios. Construct one per configuration; a single
// Runner may execute multiple scenarios, including concurrently.
type Runner struct {
	chain       chain.Client
	commitment  chain.Commitment
	stepTimeout time.Duration
	tokens      TokenGenerator
	logger      *slog.Logger
	now         func() time.Time

	submitOpts  []submit.Option
	trackerOpts []confirm.Option
}

// Option configures a Runner.
type Option func(*Runner)

// WithCommitment sets the confirmation threshold (default: confirmed).
func WithCommitment(c chain.Commitment) Option {
	return func(r *Runner) { r.commitment = c }
}

// WithStepTimeout bounds each step's submission and confirmation wait.
func WithStepTimeout(d time.Duration) Option {
	return func(r *Runner) { r.stepTimeout = d }
}

// WithTokenGenerator overrides the run token source.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(r *Runner) { r.tokens = g }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithSubmitOptions forwards options to the submitter.
func WithSubmitOptions(opts ...submit.Option) Option {
	return func(r *Runner) { r.submitOpts = append(r.submitOpts, opts...) }
}

// WithTrackerOptions forwards options to the confirmation tracker.
func WithTrackerOptions(opts ...confirm.Option) Option {
	return func(r *Runner) { r.trackerOpts = append(r.trackerOpts, opts...) }
}

// New creates a Runner over the given chain accessor.
func New(c chain.Client, opts ...Option) *Runner {
	r := &Runner{
		chain:       c,
		commitment:  chain.CommitmentConfirmed,
		stepTimeout: DefaultStepTimeout,
		tokens:      UUIDv7Generator{},
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the scenario's steps in declared order and returns the
// ordered report. Under the default abort policy the first failed step ends
// the run; results up to and including that step are always present.
func (r *Runner) Run(ctx context.Context, scen *scenario.Scenario) (*RunResult, error) {
	payer, err := scen.Accounts.Resolve(scen.Payer)
	if err != nil {
		return nil, fmt.Errorf("resolve payer: %w", err)
	}

	result := &RunResult{
		RunToken:  r.tokens.Generate(),
		Scenario:  scen.Name,
		Pass:      true,
		StartedAt: r.now(),
	}
	logger := r.logger.With("run", result.RunToken, "scenario", scen.Name)

	builder := txbuild.New(r.chain)
	submitter := submit.New(r.chain, append([]submit.Option{submit.WithLogger(logger)}, r.submitOpts...)...)
	tracker := confirm.New(r.chain, r.commitment, append([]confirm.Option{confirm.WithLogger(logger)}, r.trackerOpts...)...)
	verifier := verify.New(r.chain, scen.Schemas)

	for i, step := range scen.Steps {
		stepResult := r.runStep(ctx, logger, step, scen, payer, builder, submitter, tracker, verifier)
		result.record(stepResult)

		if stepResult.Status == StepFailed {
			logger.Info("step failed",
				"step", step.Name,
				"code", stepResult.Code,
				"policy", step.Policy,
			)
			if step.Policy != scenario.PolicyContinue {
				logger.Info("aborting remaining steps",
					"failed_step", step.Name,
					"remaining", len(scen.Steps)-i-1,
				)
				break
			}
			continue
		}
		logger.Debug("step passed", "step", step.Name, "signature", stepResult.Signature)
	}

	result.Duration = r.now().Sub(result.StartedAt)
	return result, nil
}

// runStep executes one step, honoring its retry budget.
func (r *Runner) runStep(
	ctx context.Context,
	logger *slog.Logger,
	step scenario.Step,
	scen *scenario.Scenario,
	payer solana.PublicKey,
	builder *txbuild.Builder,
	submitter *submit.Submitter,
	tracker *confirm.Tracker,
	verifier *verify.Verifier,
) StepResult {
	attempts := 1
	if step.Policy == scenario.PolicyRetry {
		attempts += step.Retries
	}

	start := r.now()
	var last stepFailure
	for attempt := 1; attempt <= attempts; attempt++ {
		signature, failure := r.executeOnce(ctx, step, scen, payer, builder, submitter, tracker, verifier)
		if failure == nil {
			return StepResult{
				Name:      step.Name,
				Status:    StepPassed,
				Signature: signature,
				Attempts:  attempt,
				Duration:  r.now().Sub(start),
			}
		}
		last = *failure
		if attempt < attempts {
			logger.Debug("retrying step", "step", step.Name, "attempt", attempt, "code", last.code)
		}
	}

	return StepResult{
		Name:      step.Name,
		Status:    StepFailed,
		Code:      last.code,
		Detail:    last.detail,
		Logs:      last.logs,
		Signature: last.signature,
		Attempts:  attempts,
		Duration:  r.now().Sub(start),
	}
}

// stepFailure captures everything a failure report needs.
type stepFailure struct {
	code      string
	detail    string
	logs      []string
	signature string
}

// executeOnce runs the full pipeline for a step a single time. A nil failure
// means the transaction confirmed and every assertion held.
func (r *Runner) executeOnce(
	ctx context.Context,
	step scenario.Step,
	scen *scenario.Scenario,
	payer solana.PublicKey,
	builder *txbuild.Builder,
	submitter *submit.Submitter,
	tracker *confirm.Tracker,
	verifier *verify.Verifier,
) (string, *stepFailure) {
	stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout)
	defer cancel()

	built, err := builder.Build(stepCtx, step.Calls, scen.Accounts, scen.Signers, payer)
	if err != nil {
		return "", failureFromError(err, "")
	}

	sig, err := submitter.Submit(stepCtx, built.Tx)
	if err != nil {
		return "", failureFromError(err, "")
	}

	outcome, err := tracker.Track(stepCtx, sig, built.Blockhash)
	if err != nil {
		return sig.String(), failureFromError(err, sig.String())
	}

	switch outcome.State {
	case confirm.StateConfirmed:
		// fall through to assertions
	case confirm.StateFailed:
		detail := "transaction failed on chain"
		if outcome.Err != nil {
			detail = outcome.Err.Error()
		}
		return sig.String(), &stepFailure{
			code:      ErrorCodeExecutionFailed,
			detail:    detail,
			logs:      outcome.Logs,
			signature: sig.String(),
		}
	case confirm.StateExpired:
		return sig.String(), &stepFailure{
			code:      ErrorCodeExpired,
			detail:    "freshness reference expired before confirmation",
			signature: sig.String(),
		}
	default:
		return sig.String(), &stepFailure{
			code:      ErrorCodeExecutionFailed,
			detail:    fmt.Sprintf("unexpected terminal state %q", outcome.State),
			signature: sig.String(),
		}
	}

	for _, exp := range step.Expect {
		if err := verifier.Verify(stepCtx, exp, scen.Accounts); err != nil {
			return sig.String(), failureFromError(err, sig.String())
		}
	}
	return sig.String(), nil
}

// failureFromError converts a pipeline error into a step failure, extracting
// the taxonomy code and any attached program logs.
func failureFromError(err error, signature string) *stepFailure {
	f := &stepFailure{detail: err.Error(), signature: signature}

	var c coder
	if errors.As(err, &c) {
		f.code = c.ErrorCode()
	}

	var rejected *submit.RejectedError
	if errors.As(err, &rejected) {
		f.logs = rejected.Logs
	}
	return f
}

// Summary renders a short human-readable digest of a run.
func Summary(result *RunResult) string {
	var b strings.Builder
	passed := 0
	for _, step := range result.Steps {
		if step.Status == StepPassed {
			passed++
		}
	}
	fmt.Fprintf(&b, "%s: %d/%d steps passed", result.Scenario, passed, len(result.Steps))
	if !result.Pass {
		for _, step := range result.Steps {
			if step.Status == StepFailed {
				fmt.Fprintf(&b, " (first failure: %s", step.Name)
				if step.Code != "" {
					fmt.Fprintf(&b, " [%s]", step.Code)
				}
				b.WriteString(")")
				break
			}
		}
	}
	return b.String()
}
