package resolver

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive_Deterministic(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	user := solana.NewWallet().PublicKey()
	seeds := [][]byte{[]byte("counter"), user.Bytes()}

	addr1, bump1, err := Derive(program, seeds)
	require.NoError(t, err)

	// Same seeds and program must always yield the same address and bump.
	for i := 0; i < 10; i++ {
		addr2, bump2, err := Derive(program, seeds)
		require.NoError(t, err)
		assert.Equal(t, addr1, addr2)
		assert.Equal(t, bump1, bump2)
	}
}

func TestDerive_DifferentSeedsDifferentAddress(t *testing.T) {
	program := solana.NewWallet().PublicKey()

	addr1, _, err := Derive(program, [][]byte{[]byte("alpha")})
	require.NoError(t, err)
	addr2, _, err := Derive(program, [][]byte{[]byte("beta")})
	require.NoError(t, err)

	assert.NotEqual(t, addr1, addr2)
}

func TestDerive_RequiresSeeds(t *testing.T) {
	_, _, err := Derive(solana.NewWallet().PublicKey(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one seed")
}

func TestTable_AddResolve(t *testing.T) {
	table := NewTable()
	addr := solana.NewWallet().PublicKey()
	require.NoError(t, table.Add("user", addr))

	got, err := table.Resolve("user")
	require.NoError(t, err)
	assert.Equal(t, addr, got)
	assert.True(t, table.Has("user"))
}

func TestTable_UnknownReference(t *testing.T) {
	table := NewTable()
	_, err := table.Resolve("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown account reference "nope"`)
	assert.False(t, table.Has("nope"))
}

func TestTable_DuplicateReference(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Add("user", solana.NewWallet().PublicKey()))
	err := table.Add("user", solana.NewWallet().PublicKey())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate account reference")
}

func TestTable_NormalizesUnicodeNames(t *testing.T) {
	table := NewTable()
	addr := solana.NewWallet().PublicKey()

	// "é" as a precomposed code point vs combining sequence.
	require.NoError(t, table.Add("café", addr))

	got, err := table.Resolve("café")
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	// The combining-sequence spelling is the same entry, not a new name.
	err = table.Add("café", solana.NewWallet().PublicKey())
	require.Error(t, err)
}
