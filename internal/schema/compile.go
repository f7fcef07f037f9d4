package schema

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError reports a structural problem in a schema definition, with the
// CUE source position when one is available.
type CompileError struct {
	Account string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	loc := ""
	if e.Pos.IsValid() {
		loc = fmt.Sprintf(" (%s)", e.Pos)
	}
	switch {
	case e.Account != "" && e.Field != "":
		return fmt.Sprintf("schema %s.%s: %s%s", e.Account, e.Field, e.Message, loc)
	case e.Account != "":
		return fmt.Sprintf("schema %s: %s%s", e.Account, e.Message, loc)
	default:
		return fmt.Sprintf("schema: %s%s", e.Message, loc)
	}
}

// CompileFile loads and compiles a CUE schema file.
//
// Expected shape:
//
//	accounts: {
//		Counter: {
//			discriminator: "account:Counter"
//			fields: [
//				{name: "count", type: "u64"},
//				{name: "bump", type: "u8"},
//			]
//		}
//	}
func CompileFile(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return Compile(data, path)
}

// Compile parses CUE source into a Set. The filename is used only for
// error positions.
func Compile(source []byte, filename string) (Set, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(source, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	acctsVal := v.LookupPath(cue.ParsePath("accounts"))
	if !acctsVal.Exists() {
		return nil, &CompileError{Message: "accounts block is required", Pos: v.Pos()}
	}

	iter, err := acctsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	set := make(Set)
	for iter.Next() {
		name := iter.Selector().Unquoted()
		acct, err := compileAccount(name, iter.Value())
		if err != nil {
			return nil, err
		}
		set[name] = acct
	}
	if len(set) == 0 {
		return nil, &CompileError{Message: "at least one account is required", Pos: acctsVal.Pos()}
	}
	return set, nil
}

func compileAccount(name string, v cue.Value) (Account, error) {
	acct := Account{Name: name}

	discVal := v.LookupPath(cue.ParsePath("discriminator"))
	if !discVal.Exists() {
		return Account{}, &CompileError{Account: name, Message: "discriminator is required", Pos: v.Pos()}
	}
	disc, err := discVal.String()
	if err != nil {
		return Account{}, formatCUEError(err)
	}
	if disc == "" {
		return Account{}, &CompileError{Account: name, Message: "discriminator must be non-empty", Pos: discVal.Pos()}
	}
	acct.DiscriminatorSeed = disc

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return Account{}, &CompileError{Account: name, Message: "fields list is required", Pos: v.Pos()}
	}
	list, err := fieldsVal.List()
	if err != nil {
		return Account{}, formatCUEError(err)
	}

	seen := make(map[string]bool)
	for list.Next() {
		field, err := compileField(name, list.Value())
		if err != nil {
			return Account{}, err
		}
		if seen[field.Name] {
			return Account{}, &CompileError{
				Account: name,
				Field:   field.Name,
				Message: "duplicate field name",
				Pos:     list.Value().Pos(),
			}
		}
		seen[field.Name] = true
		acct.Fields = append(acct.Fields, field)
	}
	if len(acct.Fields) == 0 {
		return Account{}, &CompileError{Account: name, Message: "at least one field is required", Pos: fieldsVal.Pos()}
	}
	return acct, nil
}

func compileField(acct string, v cue.Value) (Field, error) {
	nameVal := v.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return Field{}, &CompileError{Account: acct, Message: "field name is required", Pos: v.Pos()}
	}
	name, err := nameVal.String()
	if err != nil {
		return Field{}, formatCUEError(err)
	}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return Field{}, &CompileError{Account: acct, Field: name, Message: "field type is required", Pos: v.Pos()}
	}
	typeStr, err := typeVal.String()
	if err != nil {
		return Field{}, formatCUEError(err)
	}

	ft := FieldType(typeStr)
	if !validFieldTypes[ft] {
		return Field{}, &CompileError{
			Account: acct,
			Field:   name,
			Message: fmt.Sprintf("unknown field type %q", typeStr),
			Pos:     typeVal.Pos(),
		}
	}
	return Field{Name: name, Type: ft}, nil
}

// formatCUEError converts a CUE error into a plain error with position info.
func formatCUEError(err error) error {
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		first := errs[0]
		return &CompileError{Message: first.Error(), Pos: first.Position()}
	}
	return err
}
