package generic

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Documents are validated once, at the persistence boundary, against the
// struct tags of their fixed schema. Both stores and the HTTP layer share
// this validator so the same tag means the same rule everywhere.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON names when present so API clients see their own field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("area", func(fl validator.FieldLevel) bool {
		return Area(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		switch Role(fl.Field().String()) {
		case RoleAdmin, RoleManager, RoleStaff:
			return true
		}
		return false
	})
	return v
}

// Validate checks struct tags and returns a *ValidationError for the first
// violated rule. The error unwraps to ErrInvalidInput.
func Validate(doc any) error {
	err := validate.Struct(doc)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fe.Field(), Reason: reason(fe)}
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

// ValidationFields maps every violated field to a message, for API responses.
func ValidationFields(doc any) map[string]string {
	err := validate.Struct(doc)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = reason(fe)
	}
	return fields
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "area":
		return "must be Sala or Cucina"
	case "role":
		return "must be admin, manager or staff"
	default:
		return "failed " + fe.Tag()
	}
}
