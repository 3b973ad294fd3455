package utils

import (
	"strings"

	"github.com/badoux/checkmail"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func init() {
	// checkmail is stricter than the builtin email tag about local parts.
	_ = validate.RegisterValidation("mailbox", func(fl validator.FieldLevel) bool {
		return checkmail.ValidateFormat(fl.Field().String()) == nil
	})
}

// ValidateStruct runs the struct's validate tags and returns an
// InvalidArgument error listing every failing field.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return InvalidArgument(err.Error())
	}

	// Format validation errors
	var errs []string
	for _, err := range validationErrors {
		field := strings.ToLower(err.Field())
		tag := err.Tag()
		param := err.Param()

		switch tag {
		case "required":
			errs = append(errs, field+" is required")
		case "min":
			errs = append(errs, field+" must be at least "+param+" characters")
		case "max":
			errs = append(errs, field+" must be at most "+param+" characters")
		case "email", "mailbox":
			errs = append(errs, field+" must be a valid email")
		case "oneof":
			errs = append(errs, field+" must be one of: "+param)
		case "hexcolor":
			errs = append(errs, field+" must be a hex color")
		default:
			errs = append(errs, field+" is invalid")
		}
	}

	return InvalidArgument(strings.Join(errs, ", "))
}

// ValidateEmail checks the address format only; it does not resolve MX records.
func ValidateEmail(email string) error {
	if err := checkmail.ValidateFormat(email); err != nil {
		return InvalidArgument("email must be a valid email")
	}
	return nil
}
