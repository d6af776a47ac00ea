package store

import (
	"github.com/go-playground/validator/v10"

	"ciphervault/internal/verrors"
)

// updateInput mirrors Update's parameters purely so go-playground/validator
// can check them with struct tags, the same shape the rest of the pack
// uses for request validation.
type updateInput struct {
	Category string `validate:"required,max=1024"`
	Name     string `validate:"required,max=1024"`
	Value    []byte `validate:"max=1048576"`
}

var updateValidator = validator.New()

// validateUpdate rejects obviously-malformed input before any encryption
// or SQL runs, translating validator's field errors into a single
// verrors.Input.
func validateUpdate(category, name string, value []byte) error {
	in := updateInput{Category: category, Name: name, Value: value}
	if err := updateValidator.Struct(in); err != nil {
		return verrors.Wrap(verrors.Input, "invalid entry", err)
	}
	return nil
}
