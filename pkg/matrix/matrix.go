// Package matrix builds a consultant competency matrix from a tender summary
// and consultant profiles using a streamed structured completion.
package matrix

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	jsv "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tidwall/gjson"
)

type Category string

const (
	CategoryDeveloper   Category = "systemutvikler"
	CategoryTester      Category = "testutvikler"
	CategoryScrumMaster Category = "scrummaster"
	CategoryArchitect   Category = "arkitekt"
	CategoryOther       Category = "annet"
)

// Entry is one row of the matrix.
type Entry struct {
	Category    Category `json:"kategori" jsonschema:"enum=systemutvikler,enum=testutvikler,enum=scrummaster,enum=arkitekt,enum=annet,description=Rollen konsulenten passer best til"`
	Name        string   `json:"navn" jsonschema:"minLength=1,description=Navn på konsulent"`
	Description string   `json:"beskrivelse" jsonschema:"description=Kort beskrivelse av kompetanse og relevant erfaring"`
}

type Matrix struct {
	Entries []Entry `json:"kompetansematrise" jsonschema:"minItems=1"`
}

// ErrMalformedOutput is matched by every *MalformedOutputError.
var ErrMalformedOutput = errors.New("malformed structured output")

// MalformedOutputError carries model output that is not a valid matrix.
type MalformedOutputError struct {
	Raw string
	Err error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("competency matrix: %v", e.Err)
}

func (e *MalformedOutputError) Unwrap() []error { return []error{ErrMalformedOutput, e.Err} }

// Schema returns the JSON schema of Matrix.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	return json.Marshal(r.Reflect(&Matrix{}))
}

// Validator checks model output against the compiled matrix schema.
type Validator struct {
	schema *jsv.Schema
}

func NewValidator() (*Validator, error) {
	schemaBytes, err := Schema()
	if err != nil {
		return nil, fmt.Errorf("reflect schema: %w", err)
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsv.NewCompiler()
	if err := c.AddResource("matrix.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("matrix.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Parse validates raw and decodes it. Any failure is a *MalformedOutputError.
func (v *Validator) Parse(raw string) (Matrix, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Matrix{}, &MalformedOutputError{Raw: raw, Err: errors.New("empty output")}
	}
	if !gjson.Valid(raw) {
		return Matrix{}, &MalformedOutputError{Raw: raw, Err: errors.New("output is not valid JSON")}
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Matrix{}, &MalformedOutputError{Raw: raw, Err: err}
	}
	if err := v.schema.Validate(doc); err != nil {
		return Matrix{}, &MalformedOutputError{Raw: raw, Err: err}
	}

	var m Matrix
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Matrix{}, &MalformedOutputError{Raw: raw, Err: err}
	}
	return m, nil
}
