package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSchema = `
accounts: {
	Counter: {
		discriminator: "account:Counter"
		fields: [
			{name: "count", type: "u64"},
			{name: "bump", type: "u8"},
		]
	}
}
`

func TestCompile_Valid(t *testing.T) {
	set, err := Compile([]byte(validSchema), "counter.cue")
	require.NoError(t, err)
	require.Len(t, set, 1)

	acct, err := set.Lookup("Counter")
	require.NoError(t, err)
	assert.Equal(t, "Counter", acct.Name)
	assert.Equal(t, "account:Counter", acct.DiscriminatorSeed)
	require.Len(t, acct.Fields, 2)
	assert.Equal(t, Field{Name: "count", Type: TypeU64}, acct.Fields[0])
	assert.Equal(t, Field{Name: "bump", Type: TypeU8}, acct.Fields[1])
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr string
	}{
		{
			name:    "missing accounts block",
			source:  `foo: 1`,
			wantErr: "accounts block is required",
		},
		{
			name: "missing discriminator",
			source: `accounts: Counter: {
				fields: [{name: "count", type: "u64"}]
			}`,
			wantErr: "discriminator is required",
		},
		{
			name: "empty fields",
			source: `accounts: Counter: {
				discriminator: "account:Counter"
				fields: []
			}`,
			wantErr: "at least one field is required",
		},
		{
			name: "unknown field type",
			source: `accounts: Counter: {
				discriminator: "account:Counter"
				fields: [{name: "count", type: "u128"}]
			}`,
			wantErr: `unknown field type "u128"`,
		},
		{
			name: "duplicate field name",
			source: `accounts: Counter: {
				discriminator: "account:Counter"
				fields: [
					{name: "count", type: "u64"},
					{name: "count", type: "u8"},
				]
			}`,
			wantErr: "duplicate field name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]byte(tt.source), "test.cue")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCompileFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counter.cue")
	require.NoError(t, os.WriteFile(path, []byte(validSchema), 0644))

	set, err := CompileFile(path)
	require.NoError(t, err)
	assert.Contains(t, set, "Counter")
}

func TestCompileFile_Missing(t *testing.T) {
	_, err := CompileFile("/nonexistent/schema.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read schema file")
}

func TestSet_LookupUnknown(t *testing.T) {
	set := make(Set)
	_, err := set.Lookup("Ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no schema for account type "Ghost"`)
}
