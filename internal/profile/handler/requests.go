package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "referral/pkg/domain-errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// EnsureProfileRequest is the body of PUT /v1/profile. The tags only bound
// what we parse; trimming and the display name limit are domain rules.
type EnsureProfileRequest struct {
	DisplayName  string `json:"display_name" validate:"required,max=256"`
	ReferralCode string `json:"referral_code,omitempty" validate:"omitempty,max=32"`
}

func (r *EnsureProfileRequest) Validate() error {
	return validateRequest(r)
}

// RenameProfileRequest is the body of PATCH /v1/profile.
type RenameProfileRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=256"`
}

func (r *RenameProfileRequest) Validate() error {
	return validateRequest(r)
}

// RedeemRequest is the body of POST /v1/profile/redeem.
type RedeemRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

func (r *RedeemRequest) Validate() error {
	return validateRequest(r)
}

func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "required":
			return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%s is required", fe.Field()))
		case "max":
			return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request")
}
