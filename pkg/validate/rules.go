package validate

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// RuleSpec is the serialized form of a single rule.
type RuleSpec struct {
	Field   string `yaml:"field"`
	Expr    string `yaml:"expr"`
	Message string `yaml:"message,omitempty"`
}

// File is the serialized form of a Ruleset:
//
//	required: [name]
//	rules:
//	  - field: age
//	    expr: age >= 0
//	    message: must not be negative
type File struct {
	Required []string   `yaml:"required"`
	Rules    []RuleSpec `yaml:"rules"`
}

// Parse reads a YAML rule file and compiles it.
func Parse(r io.Reader) (*Ruleset, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	return f.Compile()
}

// LoadFile parses the rule file at path.
func LoadFile(path string) (*Ruleset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rs, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// Compile turns f into a Ruleset.
func (f File) Compile() (*Ruleset, error) {
	rs := New().Require(f.Required...)
	for i, spec := range f.Rules {
		if err := rs.Rule(spec.Field, spec.Expr, spec.Message); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return rs, nil
}
