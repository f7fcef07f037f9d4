package schema

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterAccount(t *testing.T) Account {
	t.Helper()
	set, err := Compile([]byte(validSchema), "counter.cue")
	require.NoError(t, err)
	acct, err := set.Lookup("Counter")
	require.NoError(t, err)
	return acct
}

// counterData builds raw account bytes: discriminator, count u64 LE, bump.
func counterData(acct Account, count uint64, bump uint8) []byte {
	disc := acct.Discriminator()
	data := append([]byte(nil), disc[:]...)
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], count)
	data = append(data, n[:]...)
	return append(data, bump)
}

func TestDecode(t *testing.T) {
	acct := counterAccount(t)

	decoded, err := acct.Decode(counterData(acct, 100, 254))
	require.NoError(t, err)

	assert.Equal(t, uint64(100), decoded["count"])
	assert.Equal(t, uint64(254), decoded["bump"])
}

func TestDecode_LargeCountExact(t *testing.T) {
	acct := counterAccount(t)

	// A value that would lose precision through a float64 round trip.
	const big = uint64(1<<53 + 1)
	decoded, err := acct.Decode(counterData(acct, big, 0))
	require.NoError(t, err)
	assert.Equal(t, big, decoded["count"])
}

func TestDecode_WrongDiscriminator(t *testing.T) {
	acct := counterAccount(t)
	data := counterData(acct, 0, 0)
	data[0] ^= 0xff

	_, err := acct.Decode(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discriminator mismatch")
}

func TestDecode_TooShort(t *testing.T) {
	acct := counterAccount(t)
	_, err := acct.Decode([]byte{1, 2, 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too short")
}

func TestDecode_TruncatedField(t *testing.T) {
	acct := counterAccount(t)
	data := counterData(acct, 7, 1)

	_, err := acct.Decode(data[:12]) // cuts into the u64
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode Counter.count")
}

func TestDiscriminator_Stable(t *testing.T) {
	acct := counterAccount(t)
	assert.Equal(t, acct.Discriminator(), acct.Discriminator())
}
