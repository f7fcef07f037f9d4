package scenario

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProgram = "8sHV6MjJSkemTc34PXrymjmungpjgf7b1np52eSnoLBx"

const testSchemaCUE = `
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

func writeScenario(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "counter.cue"), []byte(testSchemaCUE), 0o644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

const validScenario = `
name: counter-lifecycle
description: Exercise the counter program end to end.
program: ` + testProgram + `
schemas: [counter.cue]
accounts:
  user:
    signer: true
  counter:
    seeds: ["counter", "@user"]
steps:
  - name: initialize
    instructions:
      - data: r0BHNYHEWdI=
        accounts:
          - ref: user
            writable: true
            signer: true
          - ref: counter
            writable: true
    expect:
      - account: counter
        type: Counter
        fields:
          count: 0
  - name: increment
    on_failure: continue
    instructions:
      - data: C0sr0W6VBVpkAAAAAAAAAA==
        accounts:
          - ref: user
            signer: true
          - ref: counter
            writable: true
`

func TestLoad_ValidScenario(t *testing.T) {
	scen, err := Load(writeScenario(t, validScenario))
	require.NoError(t, err)

	assert.Equal(t, "counter-lifecycle", scen.Name)
	require.Len(t, scen.Steps, 2)
	require.Len(t, scen.Signers, 1)

	// The single signer becomes the fee payer.
	assert.Equal(t, "user", scen.Payer)

	// The derived address is resolvable and referenced in the steps.
	counterAddr, err := scen.Accounts.Resolve("counter")
	require.NoError(t, err)
	userAddr, err := scen.Accounts.Resolve("user")
	require.NoError(t, err)
	assert.NotEqual(t, counterAddr, userAddr)
	assert.Equal(t, scen.Signers[0].PublicKey(), userAddr)

	init := scen.Steps[0]
	assert.Equal(t, PolicyAbort, init.Policy)
	require.Len(t, init.Calls, 1)
	wantData, _ := base64.StdEncoding.DecodeString("r0BHNYHEWdI=")
	assert.Equal(t, wantData, init.Calls[0].Data)
	require.Len(t, init.Calls[0].Accounts, 2)
	assert.True(t, init.Calls[0].Accounts[0].IsSigner)
	assert.True(t, init.Calls[0].Accounts[1].IsWritable)

	require.Len(t, init.Expect, 1)
	assert.Equal(t, "counter", init.Expect[0].Ref)
	assert.Equal(t, "Counter", init.Expect[0].Type)

	assert.Equal(t, PolicyContinue, scen.Steps[1].Policy)

	_, err = scen.Schemas.Lookup("Counter")
	require.NoError(t, err)
}

func TestLoad_ChainedSeedReferences(t *testing.T) {
	scen, err := Load(writeScenario(t, `
name: chained
description: Derived address referencing another derived address.
program: `+testProgram+`
schemas: [counter.cue]
accounts:
  user:
    signer: true
  counter:
    seeds: ["counter", "@user"]
  meta:
    seeds: ["meta", "@counter"]
steps:
  - name: touch
    instructions:
      - data: r0BHNYHEWdI=
        accounts:
          - ref: meta
`))
	require.NoError(t, err)
	assert.True(t, scen.Accounts.Has("meta"))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "unknown top-level field",
			yaml: `
name: bad
description: d
program: ` + testProgram + `
timeout: 5
accounts:
  user: {signer: true}
steps:
  - name: s
    instructions:
      - data: ""
        accounts: [{ref: user}]
`,
			wantErr: "failed to parse YAML",
		},
		{
			name: "missing name",
			yaml: `
description: d
program: ` + testProgram + `
accounts:
  user: {signer: true}
steps:
  - name: s
    instructions:
      - data: ""
        accounts: [{ref: user}]
`,
			wantErr: "name is required",
		},
		{
			name: "account without a source",
			yaml: `
name: bad
description: d
program: ` + testProgram + `
accounts:
  user: {}
steps:
  - name: s
    instructions:
      - data: ""
        accounts: [{ref: user}]
`,
			wantErr: "one of address, signer, keypair, or seeds is required",
		},
		{
			name: "unknown instruction account reference",
			yaml: `
name: bad
description: d
program: ` + testProgram + `
accounts:
  user: {signer: true}
steps:
  - name: s
    instructions:
      - data: ""
        accounts: [{ref: ghost}]
`,
			wantErr: `unknown account reference "ghost"`,
		},
		{
			name: "unknown failure policy",
			yaml: `
name: bad
description: d
program: ` + testProgram + `
accounts:
  user: {signer: true}
steps:
  - name: s
    on_failure: shrug
    instructions:
      - data: ""
        accounts: [{ref: user}]
`,
			wantErr: `unknown on_failure policy "shrug"`,
		},
		{
			name: "invalid base64 data",
			yaml: `
name: bad
description: d
program: ` + testProgram + `
accounts:
  user: {signer: true}
steps:
  - name: s
    instructions:
      - data: "%%%"
        accounts: [{ref: user}]
`,
			wantErr: "invalid base64 data",
		},
		{
			name: "unresolvable seed reference",
			yaml: `
name: bad
description: d
program: ` + testProgram + `
accounts:
  user: {signer: true}
  counter:
    seeds: ["counter", "@ghost"]
steps:
  - name: s
    instructions:
      - data: ""
        accounts: [{ref: user}]
`,
			wantErr: "unresolvable seed references",
		},
		{
			name: "no signer for fee payment",
			yaml: `
name: bad
description: d
program: ` + testProgram + `
accounts:
  user:
    address: ` + testProgram + `
steps:
  - name: s
    instructions:
      - data: ""
        accounts: [{ref: user}]
`,
			wantErr: "at least one is required to pay fees",
		},
		{
			name: "ambiguous payer",
			yaml: `
name: bad
description: d
program: ` + testProgram + `
accounts:
  alice: {signer: true}
  bob: {signer: true}
steps:
  - name: s
    instructions:
      - data: ""
        accounts: [{ref: alice}]
`,
			wantErr: "payer is required when more than one signer is declared",
		},
		{
			name: "payer not declared",
			yaml: `
name: bad
description: d
program: ` + testProgram + `
payer: treasury
accounts:
  user: {signer: true}
steps:
  - name: s
    instructions:
      - data: ""
        accounts: [{ref: user}]
`,
			wantErr: `payer "treasury" is not a declared account`,
		},
		{
			name: "expectation with unknown schema type",
			yaml: `
name: bad
description: d
program: ` + testProgram + `
schemas: [counter.cue]
accounts:
  user: {signer: true}
steps:
  - name: s
    instructions:
      - data: ""
        accounts: [{ref: user}]
    expect:
      - account: user
        type: Ledger
`,
			wantErr: "Ledger",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeScenario(t, tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_ExplicitPayerWithTwoSigners(t *testing.T) {
	scen, err := Load(writeScenario(t, `
name: two-signers
description: d
program: `+testProgram+`
payer: alice
accounts:
  alice: {signer: true}
  bob: {signer: true}
steps:
  - name: s
    instructions:
      - data: ""
        accounts: [{ref: alice}]
`))
	require.NoError(t, err)
	assert.Equal(t, "alice", scen.Payer)
	assert.Len(t, scen.Signers, 2)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
