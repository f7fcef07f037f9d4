package txbuild

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainproof/chainproof/internal/chain"
	"github.com/chainproof/chainproof/internal/chaintest"
	"github.com/chainproof/chainproof/internal/resolver"
	"github.com/chainproof/chainproof/internal/scenario"
)

// countingClient records how often the freshness reference is fetched, to
// prove that validation failures never touch the network.
type countingClient struct {
	*chaintest.Ledger
	blockhashCalls atomic.Int64
}

func (c *countingClient) LatestBlockhash(ctx context.Context) (chain.Blockhash, error) {
	c.blockhashCalls.Add(1)
	return c.Ledger.LatestBlockhash(ctx)
}

type fixture struct {
	client  *countingClient
	table   *resolver.Table
	user    *solana.Wallet
	program solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		client:  &countingClient{Ledger: chaintest.NewLedger()},
		table:   resolver.NewTable(),
		user:    solana.NewWallet(),
		program: solana.NewWallet().PublicKey(),
	}
	require.NoError(t, f.table.Add("user", f.user.PublicKey()))
	require.NoError(t, f.table.Add("target", solana.NewWallet().PublicKey()))
	return f
}

func (f *fixture) call(data []byte) scenario.Call {
	return scenario.Call{
		ProgramID: f.program,
		Accounts: []scenario.AccountUse{
			{Ref: "target", IsWritable: true},
			{Ref: "user", IsWritable: true, IsSigner: true},
		},
		Data: data,
	}
}

func TestBuild_SignsAndPinsBlockhash(t *testing.T) {
	f := newFixture(t)
	builder := New(f.client)

	built, err := builder.Build(context.Background(),
		[]scenario.Call{f.call([]byte{1, 2, 3})},
		f.table, []solana.PrivateKey{f.user.PrivateKey}, f.user.PublicKey())
	require.NoError(t, err)

	require.NotNil(t, built.Tx)
	assert.NotEmpty(t, built.Tx.Signatures)
	assert.Equal(t, built.Blockhash.Hash, built.Tx.Message.RecentBlockhash)
	assert.NotZero(t, built.Blockhash.LastValidBlockHeight)
	require.NoError(t, built.Tx.VerifySignatures())
}

func TestBuild_MissingSignerBeforeAnyNetworkCall(t *testing.T) {
	f := newFixture(t)
	builder := New(f.client)

	// No signer keys supplied at all.
	_, err := builder.Build(context.Background(),
		[]scenario.Call{f.call(nil)},
		f.table, nil, f.user.PublicKey())
	require.Error(t, err)

	var missing *MissingSignerError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, ErrorCodeMissingSigner, missing.ErrorCode())
	assert.Equal(t, int64(0), f.client.blockhashCalls.Load(), "validation must precede network access")
}

func TestBuild_MissingInstructionSigner(t *testing.T) {
	f := newFixture(t)
	builder := New(f.client)

	payer := solana.NewWallet()
	require.NoError(t, f.table.Add("payer", payer.PublicKey()))

	// Payer key present, but the instruction's signer-flagged "user" has
	// no key.
	_, err := builder.Build(context.Background(),
		[]scenario.Call{f.call(nil)},
		f.table, []solana.PrivateKey{payer.PrivateKey}, payer.PublicKey())

	var missing *MissingSignerError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "user", missing.Ref)
	assert.Equal(t, int64(0), f.client.blockhashCalls.Load())
}

func TestBuild_TransactionTooLarge(t *testing.T) {
	f := newFixture(t)
	builder := New(f.client)

	// A payload bigger than the packet budget guarantees the size check
	// trips regardless of envelope overhead.
	_, err := builder.Build(context.Background(),
		[]scenario.Call{f.call(make([]byte, MaxTransactionSize+1))},
		f.table, []solana.PrivateKey{f.user.PrivateKey}, f.user.PublicKey())
	require.Error(t, err)

	var tooLarge *TooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, ErrorCodeTooLarge, tooLarge.ErrorCode())
	assert.Greater(t, tooLarge.Size, tooLarge.Limit)
}

func TestBuild_UnknownReference(t *testing.T) {
	f := newFixture(t)
	builder := New(f.client)

	call := scenario.Call{
		ProgramID: f.program,
		Accounts:  []scenario.AccountUse{{Ref: "ghost"}},
	}
	_, err := builder.Build(context.Background(),
		[]scenario.Call{call},
		f.table, []solana.PrivateKey{f.user.PrivateKey}, f.user.PublicKey())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown account reference "ghost"`)
}

func TestBuild_NoCalls(t *testing.T) {
	f := newFixture(t)
	builder := New(f.client)

	_, err := builder.Build(context.Background(), nil,
		f.table, []solana.PrivateKey{f.user.PrivateKey}, f.user.PublicKey())
	require.Error(t, err)
	assert.False(t, errors.As(err, new(*MissingSignerError)))
}
