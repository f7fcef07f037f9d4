package scenario

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"

	"github.com/chainproof/chainproof/internal/resolver"
	"github.com/chainproof/chainproof/internal/schema"
)

// fileScenario is the on-disk YAML shape. Decoded strictly: unknown fields
// are rejected so typos fail at load time instead of silently.
type fileScenario struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Program     string                 `yaml:"program"`
	Schemas     []string               `yaml:"schemas"`
	Payer       string                 `yaml:"payer,omitempty"`
	Accounts    map[string]fileAccount `yaml:"accounts"`
	Steps       []fileStep             `yaml:"steps"`
}

// fileAccount declares one account reference. Exactly one of Address,
// Signer, Keypair, or Seeds must be set.
type fileAccount struct {
	// Address supplies an externally owned account directly.
	Address string `yaml:"address,omitempty"`

	// Signer generates a fresh keypair for this reference.
	Signer bool `yaml:"signer,omitempty"`

	// Keypair loads a private key from a solana-keygen JSON file.
	Keypair string `yaml:"keypair,omitempty"`

	// Seeds derives a program address. Entries starting with "@" resolve
	// to another reference's public key bytes; anything else is a literal.
	Seeds []string `yaml:"seeds,omitempty"`

	// Program overrides the owning program for seed derivation.
	Program string `yaml:"program,omitempty"`
}

type fileStep struct {
	Name         string            `yaml:"name"`
	Instructions []fileInstruction `yaml:"instructions"`
	Expect       []fileExpectation `yaml:"expect,omitempty"`
	OnFailure    string            `yaml:"on_failure,omitempty"`
	Retries      int               `yaml:"retries,omitempty"`
}

type fileInstruction struct {
	// Program overrides the scenario-level program id.
	Program string `yaml:"program,omitempty"`

	// Data is the base64-encoded serialized argument payload.
	Data string `yaml:"data"`

	Accounts []fileAccountUse `yaml:"accounts"`
}

type fileAccountUse struct {
	Ref      string `yaml:"ref"`
	Writable bool   `yaml:"writable,omitempty"`
	Signer   bool   `yaml:"signer,omitempty"`
}

type fileExpectation struct {
	Account string                 `yaml:"account"`
	Type    string                 `yaml:"type"`
	Fields  map[string]interface{} `yaml:"fields,omitempty"`
}

// Load reads, parses, resolves, and validates a scenario file. Schema paths
// are resolved relative to the scenario file's directory.
//
// All account references are resolved here, before any network interaction:
// signer keypairs are generated or loaded, program addresses are derived,
// and every step's references are checked against the resulting table.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var fs fileScenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fs); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateFile(&fs); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	programID, err := solana.PublicKeyFromBase58(fs.Program)
	if err != nil {
		return nil, fmt.Errorf("invalid program id %q: %w", fs.Program, err)
	}

	schemas := make(schema.Set)
	base := filepath.Dir(path)
	for _, schemaPath := range fs.Schemas {
		if !filepath.IsAbs(schemaPath) {
			schemaPath = filepath.Join(base, schemaPath)
		}
		set, err := schema.CompileFile(schemaPath)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", schemaPath, err)
		}
		for name, acct := range set {
			if _, dup := schemas[name]; dup {
				return nil, fmt.Errorf("schema %s: duplicate account type %q", schemaPath, name)
			}
			schemas[name] = acct
		}
	}

	table, signers, err := resolveAccounts(fs.Accounts, programID)
	if err != nil {
		return nil, err
	}

	scen := &Scenario{
		Name:        fs.Name,
		Description: fs.Description,
		Accounts:    table,
		Signers:     signers,
		Payer:       fs.Payer,
		Schemas:     schemas,
	}

	for i, step := range fs.Steps {
		built, err := buildStep(step, programID, table, schemas)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Name, err)
		}
		scen.Steps = append(scen.Steps, built)
	}

	if scen.Payer == "" {
		// Defaulting is only unambiguous with a single signer.
		switch len(signers) {
		case 0:
			return nil, fmt.Errorf("no signer accounts declared; at least one is required to pay fees")
		case 1:
			scen.Payer = signerRef(table, fs.Accounts, signers[0])
		default:
			return nil, fmt.Errorf("payer is required when more than one signer is declared")
		}
	}
	if !table.Has(scen.Payer) {
		return nil, fmt.Errorf("payer %q is not a declared account", scen.Payer)
	}

	return scen, nil
}

// resolveAccounts builds the resolution table. Direct addresses and signer
// keypairs resolve first; derived addresses may reference them through seed
// entries, so derivation repeats in passes until the table stops growing.
func resolveAccounts(accounts map[string]fileAccount, defaultProgram solana.PublicKey) (*resolver.Table, []solana.PrivateKey, error) {
	table := resolver.NewTable()
	var signers []solana.PrivateKey

	pending := make(map[string]fileAccount)
	for name, decl := range accounts {
		switch {
		case decl.Address != "":
			addr, err := solana.PublicKeyFromBase58(decl.Address)
			if err != nil {
				return nil, nil, fmt.Errorf("account %q: invalid address: %w", name, err)
			}
			if err := table.Add(name, addr); err != nil {
				return nil, nil, err
			}
		case decl.Keypair != "":
			key, err := solana.PrivateKeyFromSolanaKeygenFile(decl.Keypair)
			if err != nil {
				return nil, nil, fmt.Errorf("account %q: failed to load keypair: %w", name, err)
			}
			signers = append(signers, key)
			if err := table.Add(name, key.PublicKey()); err != nil {
				return nil, nil, err
			}
		case decl.Signer:
			wallet := solana.NewWallet()
			signers = append(signers, wallet.PrivateKey)
			if err := table.Add(name, wallet.PublicKey()); err != nil {
				return nil, nil, err
			}
		case len(decl.Seeds) > 0:
			pending[name] = decl
		default:
			return nil, nil, fmt.Errorf("account %q: one of address, signer, keypair, or seeds is required", name)
		}
	}

	// Derived addresses may reference other derived addresses; iterate
	// until no progress remains.
	for len(pending) > 0 {
		progress := false
		for name, decl := range pending {
			seeds, ok, err := buildSeeds(decl.Seeds, table)
			if err != nil {
				return nil, nil, fmt.Errorf("account %q: %w", name, err)
			}
			if !ok {
				continue
			}
			owner := defaultProgram
			if decl.Program != "" {
				owner, err = solana.PublicKeyFromBase58(decl.Program)
				if err != nil {
					return nil, nil, fmt.Errorf("account %q: invalid program: %w", name, err)
				}
			}
			addr, _, err := resolver.Derive(owner, seeds)
			if err != nil {
				return nil, nil, fmt.Errorf("account %q: %w", name, err)
			}
			if err := table.Add(name, addr); err != nil {
				return nil, nil, err
			}
			delete(pending, name)
			progress = true
		}
		if !progress {
			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			return nil, nil, fmt.Errorf("unresolvable seed references in accounts: %s", strings.Join(names, ", "))
		}
	}

	return table, signers, nil
}

// buildSeeds converts seed entries to byte slices. Returns ok=false when a
// "@ref" entry points at a reference not yet in the table.
func buildSeeds(entries []string, table *resolver.Table) ([][]byte, bool, error) {
	seeds := make([][]byte, 0, len(entries))
	for _, entry := range entries {
		if ref, isRef := strings.CutPrefix(entry, "@"); isRef {
			if !table.Has(ref) {
				return nil, false, nil
			}
			addr, err := table.Resolve(ref)
			if err != nil {
				return nil, false, err
			}
			seeds = append(seeds, addr.Bytes())
			continue
		}
		seeds = append(seeds, []byte(entry))
	}
	return seeds, true, nil
}

func buildStep(fs fileStep, defaultProgram solana.PublicKey, table *resolver.Table, schemas schema.Set) (Step, error) {
	step := Step{
		Name:    fs.Name,
		Policy:  PolicyAbort,
		Retries: fs.Retries,
	}

	switch fs.OnFailure {
	case "", string(PolicyAbort):
		step.Policy = PolicyAbort
	case string(PolicyContinue):
		step.Policy = PolicyContinue
	case string(PolicyRetry):
		step.Policy = PolicyRetry
	default:
		return Step{}, fmt.Errorf("unknown on_failure policy %q", fs.OnFailure)
	}

	for i, ins := range fs.Instructions {
		programID := defaultProgram
		if ins.Program != "" {
			var err error
			programID, err = solana.PublicKeyFromBase58(ins.Program)
			if err != nil {
				return Step{}, fmt.Errorf("instructions[%d]: invalid program: %w", i, err)
			}
		}
		data, err := base64.StdEncoding.DecodeString(ins.Data)
		if err != nil {
			return Step{}, fmt.Errorf("instructions[%d]: invalid base64 data: %w", i, err)
		}
		call := Call{ProgramID: programID, Data: data}
		for j, use := range ins.Accounts {
			if !table.Has(use.Ref) {
				return Step{}, fmt.Errorf("instructions[%d].accounts[%d]: unknown account reference %q", i, j, use.Ref)
			}
			call.Accounts = append(call.Accounts, AccountUse{
				Ref:        use.Ref,
				IsWritable: use.Writable,
				IsSigner:   use.Signer,
			})
		}
		step.Calls = append(step.Calls, call)
	}

	for i, exp := range fs.Expect {
		if !table.Has(exp.Account) {
			return Step{}, fmt.Errorf("expect[%d]: unknown account reference %q", i, exp.Account)
		}
		if _, err := schemas.Lookup(exp.Type); err != nil {
			return Step{}, fmt.Errorf("expect[%d]: %w", i, err)
		}
		fields := exp.Fields
		if fields == nil {
			fields = map[string]interface{}{}
		}
		step.Expect = append(step.Expect, StateExpectation{
			Ref:    exp.Account,
			Type:   exp.Type,
			Fields: fields,
		})
	}

	return step, nil
}

// validateFile checks required fields before any resolution work.
func validateFile(fs *fileScenario) error {
	if fs.Name == "" {
		return fmt.Errorf("name is required")
	}
	if fs.Description == "" {
		return fmt.Errorf("description is required")
	}
	if fs.Program == "" {
		return fmt.Errorf("program is required")
	}
	if len(fs.Accounts) == 0 {
		return fmt.Errorf("accounts map is required and must be non-empty")
	}
	if len(fs.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range fs.Steps {
		if step.Name == "" {
			return fmt.Errorf("steps[%d]: name is required", i)
		}
		if len(step.Instructions) == 0 {
			return fmt.Errorf("steps[%d]: instructions list is required and must be non-empty", i)
		}
		for j, ins := range step.Instructions {
			if len(ins.Accounts) == 0 {
				return fmt.Errorf("steps[%d].instructions[%d]: accounts list is required", i, j)
			}
			for k, use := range ins.Accounts {
				if use.Ref == "" {
					return fmt.Errorf("steps[%d].instructions[%d].accounts[%d]: ref is required", i, j, k)
				}
			}
		}
		if step.Retries < 0 {
			return fmt.Errorf("steps[%d]: retries must be non-negative", i)
		}
		for j, exp := range step.Expect {
			if exp.Account == "" {
				return fmt.Errorf("steps[%d].expect[%d]: account is required", i, j)
			}
			if exp.Type == "" {
				return fmt.Errorf("steps[%d].expect[%d]: type is required", i, j)
			}
		}
	}
	return nil
}

// signerRef finds the reference name whose address matches the given signer
// key, used to default the fee payer.
func signerRef(table *resolver.Table, accounts map[string]fileAccount, key solana.PrivateKey) string {
	want := key.PublicKey()
	for name := range accounts {
		if addr, err := table.Resolve(name); err == nil && addr.Equals(want) {
			return name
		}
	}
	return ""
}
