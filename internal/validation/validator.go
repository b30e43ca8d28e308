// Package validation rejects malformed payloads at the protocol
// boundary, before any action reaches the gateway components.
package validation

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Validator validates structs by their `validate` tags
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates a struct. Supported rules: required, min=N, max=N
// (string length).
func (v *Validator) Validate(s interface{}) error {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("validate expects a struct")
	}

	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		tag := fieldType.Tag.Get("validate")

		if tag == "" {
			continue
		}

		if err := v.validateField(field, tag); err != nil {
			return fmt.Errorf("%s: %w", fieldType.Name, err)
		}
	}

	return nil
}

// validateField validates a single field
func (v *Validator) validateField(field reflect.Value, tag string) error {
	for _, rule := range strings.Split(tag, ",") {
		parts := strings.SplitN(rule, "=", 2)
		ruleName := parts[0]

		var arg int
		if len(parts) == 2 {
			n, err := strconv.Atoi(parts[1])
			if err != nil {
				return fmt.Errorf("invalid rule argument %q", parts[1])
			}
			arg = n
		}

		switch ruleName {
		case "required":
			if field.IsZero() {
				return fmt.Errorf("field is required")
			}

		case "min":
			if field.Kind() == reflect.String && len(field.String()) < arg {
				return fmt.Errorf("minimum length is %d", arg)
			}

		case "max":
			if field.Kind() == reflect.String && len(field.String()) > arg {
				return fmt.Errorf("maximum length is %d", arg)
			}
		}
	}

	return nil
}
