// Package validator wraps go-playground/validator for request
// validation behind an injectable type.
package validator

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator validates request structs by their validation tags.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator. Custom rules are added with
// RegisterValidation.
func New() *Validator {
	return &Validator{v: validator.New()}
}

// Struct validates s against its field tags.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}

// Var validates a single value against tag.
func (val *Validator) Var(field interface{}, tag string) error {
	return val.v.Var(field, tag)
}

// RegisterValidation adds a custom rule under tag.
func (val *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return val.v.RegisterValidation(tag, fn)
}

// Messages flattens a validation error into per-field messages suitable
// for a client-facing response. Non-validation errors collapse to a
// single generic entry.
func Messages(err error) []string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{"invalid request"}
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return msgs
}
