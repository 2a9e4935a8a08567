package validate_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andymorris/couch-potato/pkg/core"
	"github.com/andymorris/couch-potato/pkg/validate"
)

func TestRuleset_Required(t *testing.T) {
	rs := validate.New().Require("name", "tags")

	errs := rs.Check(core.Raw{"name": "   ", "tags": []any{}})
	assert.Equal(t, []string{"name", "tags"}, errs.Fields())
	assert.Equal(t, []string{validate.BlankMessage}, errs.Get("name"))

	errs = rs.Check(core.Raw{"name": "Alice", "tags": []any{"a"}})
	assert.True(t, errs.Empty())
}

func TestRuleset_Expressions(t *testing.T) {
	rs := validate.New().
		Require("name").
		MustRule("age", "age >= 0", "must not be negative").
		MustRule("name", "len(name) <= 5", "is too long").
		MustRule("email", `email == nil || email contains "@"`, "")

	t.Run("Valid", func(t *testing.T) {
		errs := rs.Check(core.Raw{"name": "Ann", "age": 3})
		assert.True(t, errs.Empty(), errs.Map())
	})

	t.Run("Failures in order", func(t *testing.T) {
		errs := rs.Check(core.Raw{"name": "Annabelle", "age": -1, "email": "nope"})
		assert.Equal(t, []string{"age", "name", "email"}, errs.Fields())
		assert.Equal(t, []string{"must not be negative"}, errs.Get("age"))
		assert.Equal(t, []string{validate.InvalidMessage}, errs.Get("email"))
	})

	t.Run("Blank field skips its rules", func(t *testing.T) {
		errs := rs.Check(core.Raw{"age": 1})
		assert.Equal(t, []string{validate.BlankMessage}, errs.Get("name"))
	})

	t.Run("Whole document is bound", func(t *testing.T) {
		rs := validate.New().MustRule("end", "doc.end > doc.start", "must follow start")
		errs := rs.Check(core.Raw{"start": 5, "end": 2})
		assert.True(t, errs.Has("end"))
	})
}

func TestRuleset_CompileErrors(t *testing.T) {
	rs := validate.New()
	assert.True(t, errors.Is(rs.Rule("", "true", ""), core.ErrInvalidArgument))
	assert.True(t, errors.Is(rs.Rule("x", " ", ""), core.ErrInvalidArgument))
	assert.Error(t, rs.Rule("x", "x >", ""))
	assert.Panics(t, func() { rs.MustRule("x", "(", "") })
	assert.Equal(t, 0, rs.Len())
}

func TestRuleset_NilIsEmpty(t *testing.T) {
	var rs *validate.Ruleset
	errs := rs.Check(core.Raw{})
	assert.True(t, errs.Empty())
	assert.Equal(t, 0, rs.Len())
}

func TestParse(t *testing.T) {
	src := `
required: [name]
rules:
  - field: age
    expr: age >= 18
    message: must be an adult
`
	rs, err := validate.Parse(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Len())

	errs := rs.Check(core.Raw{"age": 10})
	assert.Equal(t, map[string][]string{
		"name": {validate.BlankMessage},
		"age":  {"must be an adult"},
	}, errs.Map())

	_, err = validate.Parse(strings.NewReader("rules:\n  - field: a\n    expr: 'a >'\n"))
	assert.Error(t, err)

	_, err = validate.Parse(strings.NewReader("unknown: 1\n"))
	assert.Error(t, err)
}

func TestBlank(t *testing.T) {
	var nilMap map[string]any
	assert.True(t, validate.Blank(nil))
	assert.True(t, validate.Blank(""))
	assert.True(t, validate.Blank(nilMap))
	assert.False(t, validate.Blank(0))
	assert.False(t, validate.Blank(false))
	assert.False(t, validate.Blank("x"))
}
