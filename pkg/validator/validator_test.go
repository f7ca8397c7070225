package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=5"`
}

func TestValidate_ValidStructPasses(t *testing.T) {
	err := Validate(loginPayload{Email: "a@b.com", Password: "secret"})
	assert.NoError(t, err)
}

func TestValidate_MissingFieldsReported(t *testing.T) {
	err := Validate(loginPayload{})
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))

	fields := valErr.Fields()
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
	assert.Equal(t, "is required", fields["email"])
}

func TestValidate_FieldNamesComeFromJSONTags(t *testing.T) {
	type payload struct {
		DisplayName string `json:"nome,omitempty" validate:"required"`
		Untagged    string `validate:"required"`
	}

	err := Validate(payload{})
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))

	fields := valErr.Fields()
	assert.Contains(t, fields, "nome")
	assert.NotContains(t, fields, "DisplayName")
	assert.Contains(t, fields, "Untagged")
}

func TestValidate_BadEmailFormat(t *testing.T) {
	err := Validate(loginPayload{Email: "not-an-email", Password: "secret"})
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "must be a valid email address", valErr.Fields()["email"])
}

func TestValidate_MinLength(t *testing.T) {
	err := Validate(loginPayload{Email: "a@b.com", Password: "ab"})
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Contains(t, valErr.Fields()["password"], "at least 5")
}
