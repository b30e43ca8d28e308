package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	Name    string `validate:"required"`
	Comment string `validate:"max=10"`
	Code    string `validate:"min=3"`
	Free    string
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.Validate(&samplePayload{Name: "a", Code: "abc"}))

	err := v.Validate(&samplePayload{Code: "abc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Name")

	err = v.Validate(&samplePayload{Name: "a", Code: "abc", Comment: strings.Repeat("x", 11)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum length")

	err = v.Validate(&samplePayload{Name: "a", Code: "ab"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minimum length")

	// Untagged fields are ignored; non-structs are rejected
	assert.NoError(t, v.Validate(samplePayload{Name: "a", Code: "abc", Free: ""}))
	assert.Error(t, v.Validate("not a struct"))
}
