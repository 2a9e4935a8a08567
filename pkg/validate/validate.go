// Package validate provides declarative field rules for documents.
//
// A Ruleset combines required fields with boolean expressions evaluated by
// expr-lang against the encoded document. Failed rules become field
// messages in a core.Errors collection, ready to be returned from a
// document's Validate method.
package validate

import (
	"fmt"
	"reflect"
	"strings"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/andymorris/couch-potato/pkg/core"
)

// BlankMessage is reported for a required field without a value.
const BlankMessage = "can't be blank"

// InvalidMessage is used when a rule has no message of its own.
const InvalidMessage = "is invalid"

type rule struct {
	field      string
	expression string
	message    string
	program    *exprvm.Program
}

// Ruleset is an ordered list of field checks. Build it once and share it;
// Check does not mutate the set.
type Ruleset struct {
	required []string
	rules    []rule
}

// New returns an empty Ruleset.
func New() *Ruleset {
	return &Ruleset{}
}

// Require marks fields that must be present and non-blank.
func (r *Ruleset) Require(fields ...string) *Ruleset {
	r.required = append(r.required, fields...)
	return r
}

// Rule adds a boolean expression for field. The document fields are the
// expression environment, and the whole document is also bound as "doc".
// An empty message falls back to InvalidMessage.
func (r *Ruleset) Rule(field, expression, message string) error {
	if field == "" {
		return fmt.Errorf("rule requires a field: %w", core.ErrInvalidArgument)
	}
	if strings.TrimSpace(expression) == "" {
		return fmt.Errorf("rule for %s: expression must not be empty: %w", field, core.ErrInvalidArgument)
	}
	program, err := exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	)
	if err != nil {
		return fmt.Errorf("rule for %s: %w", field, err)
	}
	if message == "" {
		message = InvalidMessage
	}
	r.rules = append(r.rules, rule{field: field, expression: expression, message: message, program: program})
	return nil
}

// MustRule is Rule panicking on a compile error. Use it for rules known at
// build time.
func (r *Ruleset) MustRule(field, expression, message string) *Ruleset {
	if err := r.Rule(field, expression, message); err != nil {
		panic(err)
	}
	return r
}

// Len returns the number of checks in the set.
func (r *Ruleset) Len() int {
	if r == nil {
		return 0
	}
	return len(r.required) + len(r.rules)
}

// Check evaluates the set against raw. Required fields are checked first,
// then expression rules in the order they were added. A rule whose field is
// already blank is skipped.
func (r *Ruleset) Check(raw core.Raw) core.Errors {
	var errs core.Errors
	if r == nil {
		return errs
	}

	for _, field := range r.required {
		if Blank(raw[field]) {
			errs.Add(field, BlankMessage)
		}
	}

	env := make(map[string]any, len(raw)+1)
	for k, v := range raw {
		env[k] = v
	}
	env["doc"] = map[string]any(raw)

	for _, rl := range r.rules {
		if errs.Has(rl.field) {
			continue
		}
		out, err := exprlang.Run(rl.program, env)
		if err != nil {
			errs.Add(rl.field, fmt.Sprintf("%s (%v)", rl.message, err))
			continue
		}
		if ok, _ := out.(bool); !ok {
			errs.Add(rl.field, rl.message)
		}
	}
	return errs
}

// Document encodes doc and checks the result.
func (r *Ruleset) Document(doc core.Document) (core.Errors, error) {
	raw, err := doc.Encode()
	if err != nil {
		return core.Errors{}, fmt.Errorf("failed to encode document: %w", err)
	}
	return r.Check(raw), nil
}

// Blank reports whether v counts as missing: nil, a whitespace-only string,
// or an empty slice or map.
func Blank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
