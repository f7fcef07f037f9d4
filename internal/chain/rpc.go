package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// RPCClient implements Client against a Solana JSON-RPC endpoint.
//
// The underlying rpc.Client performs stateless request/response calls, so a
// single RPCClient may be shared by concurrently running scenarios.
type RPCClient struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
}

// NewRPC creates an RPC-backed accessor. The commitment level is used for
// all read queries; status queries report whatever level the transaction has
// actually reached.
func NewRPC(endpoint string, commitment Commitment) *RPCClient {
	return &RPCClient{
		rpc:        rpc.New(endpoint),
		commitment: rpc.CommitmentType(commitment),
	}
}

func (c *RPCClient) LatestBlockhash(ctx context.Context) (Blockhash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return Blockhash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	return Blockhash{
		Hash:                 out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

func (c *RPCClient) BlockHeight(ctx context.Context) (uint64, error) {
	height, err := c.rpc.GetBlockHeight(ctx, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("get block height: %w", err)
	}
	return height, nil
}

func (c *RPCClient) AccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrAccountNotExist
		}
		return nil, fmt.Errorf("get account info for %s: %w", addr, err)
	}
	if out.Value == nil {
		return nil, ErrAccountNotExist
	}
	return out.Value.Data.GetBinary(), nil
}

func (c *RPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		var rpcErr *jsonrpc.RPCError
		return solana.Signature{}, &SendError{
			Cause: err,
			Logs:  extractRPCLogs(err),
			// A structured RPC error means the node looked at the
			// transaction and said no; anything else is transport.
			Transient: !errors.As(err, &rpcErr),
		}
	}
	return sig, nil
}

func (c *RPCClient) SignatureStatus(ctx context.Context, sig solana.Signature) (TxStatus, error) {
	out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return TxStatus{}, fmt.Errorf("get signature status for %s: %w", sig, err)
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return TxStatus{Known: false}, nil
	}

	st := out.Value[0]
	status := TxStatus{
		Known:      true,
		Commitment: Commitment(st.ConfirmationStatus),
	}
	if st.Err != nil {
		status.Err = fmt.Errorf("transaction error: %v", st.Err)
		status.Logs = c.fetchLogs(ctx, sig)
	}
	return status, nil
}

// fetchLogs pulls program log lines for a transaction that has already
// reached a queryable commitment level. Best effort: a failed transaction
// without retrievable logs still reports its status error.
func (c *RPCClient) fetchLogs(ctx context.Context, sig solana.Signature) []string {
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil || out == nil || out.Meta == nil {
		return nil
	}
	return out.Meta.LogMessages
}

// SendError wraps a send-time failure and carries any simulation log lines
// the node attached to the RPC error. Transient marks transport-level
// failures that a submitter may retry; a node-level rejection is final.
type SendError struct {
	Cause     error
	Logs      []string
	Transient bool
}

func (e *SendError) Error() string { return e.Cause.Error() }

func (e *SendError) Unwrap() error { return e.Cause }

// extractRPCLogs digs preflight simulation logs out of a JSON-RPC error's
// data payload. The node reports them under the "logs" key.
func extractRPCLogs(err error) []string {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return nil
	}
	data, ok := rpcErr.Data.(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := data["logs"].([]interface{})
	if !ok {
		return nil
	}
	logs := make([]string, 0, len(raw))
	for _, line := range raw {
		if s, ok := line.(string); ok {
			logs = append(logs, s)
		}
	}
	return logs
}
