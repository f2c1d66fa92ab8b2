// Package validator wraps go-playground/validator behind a small struct so
// services can take it as a dependency and tests can share one instance.
package validator

import "github.com/go-playground/validator/v10"

// Validator validates structs and single values via struct tags.
type Validator struct {
	v *validator.Validate
}

// New returns a ready Validator. Custom rules go through RegisterValidation.
func New() *Validator {
	return &Validator{v: validator.New()}
}

// Struct validates s against its validation tags.
func (val *Validator) Struct(s any) error {
	return val.v.Struct(s)
}

// Var validates a single value against a tag expression.
func (val *Validator) Var(field any, tag string) error {
	return val.v.Var(field, tag)
}

// RegisterValidation adds a custom validation function under tag.
func (val *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return val.v.RegisterValidation(tag, fn)
}
