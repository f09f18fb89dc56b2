// Package schema compiles the document JSON Schema once and validates decoded
// documents against it.
package schema

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FileName is the schema file looked up next to the running binary.
const FileName = "schema.json"

// SourceBuiltin is reported by Source when the embedded schema is in use.
const SourceBuiltin = "builtin"

const resourceURL = "https://rawingest.local/schemas/document.schema.json"

//go:embed schema.json
var builtinSchema []byte

// Validator checks documents against a compiled schema. It is immutable and
// safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
	source string
}

// Compile compiles a schema document. source is only used for reporting.
func Compile(data []byte, source string) (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(resourceURL, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("schema load failed (%s): %w", source, err)
	}
	compiled, err := c.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("schema compile failed (%s): %w", source, err)
	}
	return &Validator{schema: compiled, source: source}, nil
}

// LoadFile reads and compiles the schema at path.
func LoadFile(path string) (*Validator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Compile(data, path)
}

// Builtin compiles the schema shipped inside the binary.
func Builtin() (*Validator, error) {
	return Compile(builtinSchema, SourceBuiltin)
}

// Load resolves the schema location: an explicit path must exist; otherwise
// schema.json next to the executable is used when present, and the builtin
// schema when not.
func Load(path string) (*Validator, error) {
	if path != "" {
		return LoadFile(path)
	}

	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), FileName)
		if _, err := os.Stat(candidate); err == nil {
			return LoadFile(candidate)
		}
	}

	return Builtin()
}

// Source returns where the schema was loaded from.
func (v *Validator) Source() string {
	return v.source
}

// Validate checks a decoded document (as produced by encoding/json, numbers
// as json.Number or float64). Schema violations are returned as *ViolationError.
func (v *Validator) Validate(doc any) error {
	err := v.schema.Validate(doc)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}

	leaf := firstLeaf(ve)
	return &ViolationError{
		Message:          leaf.Message,
		InstanceLocation: leaf.InstanceLocation,
		KeywordLocation:  leaf.KeywordLocation,
		cause:            ve,
	}
}

// ViolationError describes the rule a document broke.
type ViolationError struct {
	Message          string
	InstanceLocation string
	KeywordLocation  string
	cause            error
}

func (e *ViolationError) Error() string {
	if e.InstanceLocation == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.InstanceLocation, e.Message)
}

func (e *ViolationError) Unwrap() error {
	return e.cause
}

// firstLeaf walks to the most specific error, which names the broken rule.
func firstLeaf(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}
