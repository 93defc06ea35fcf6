package validator

import (
	"testing"

	"github.com/ncobase/keyvault/ecode"
	"github.com/stretchr/testify/assert"
)

type createRequest struct {
	Name        string `json:"name" validate:"required,min=2"`
	AccessLevel string `json:"access_level" validate:"omitempty,oneof=GLOBAL INTERNAL PRIVATE"`
	Note        string
}

func TestValidateStruct(t *testing.T) {
	errs := ValidateStruct(&createRequest{Name: "x", AccessLevel: "OPEN"})
	assert.Equal(t, "The field 'name' must be at least 2 characters long.", errs["name"])
	assert.Equal(t, "The field 'access_level' must be one of [GLOBAL INTERNAL PRIVATE].", errs["access_level"])

	assert.Empty(t, ValidateStruct(createRequest{Name: "db"}))
}

func TestValidateStructLanguage(t *testing.T) {
	errs := ValidateStruct(&createRequest{}, "zh")
	assert.Equal(t, "字段 'name' 为必填项。", errs["name"])
}

func TestValidate(t *testing.T) {
	err := Validate(&createRequest{})
	assert.True(t, ecode.Is(err, ecode.ParamErr))
	assert.Contains(t, err.Error(), "'name' is required")

	assert.NoError(t, Validate(&createRequest{Name: "prod"}))
}
