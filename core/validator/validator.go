package validator

import (
	"fmt"
	"strings"

	"homeschool-api/core/controller"

	"github.com/go-playground/validator/v10"
)

// CustomValidator plugs go-playground/validator into echo.Context.Validate.
type CustomValidator struct {
	validator *validator.Validate
}

func New() *CustomValidator {
	return &CustomValidator{validator: validator.New(validator.WithRequiredStructEnabled())}
}

func (cv *CustomValidator) Validate(i any) error {
	return cv.validator.Struct(i)
}

// Details converts validation failures into field level messages.
func Details(err error) []controller.ValidationError {
	var details []controller.ValidationError
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return details
	}
	for _, fe := range validationErrs {
		details = append(details, controller.NewValidationError(
			strings.ToLower(fe.Field()),
			message(fe),
		))
	}
	return details
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gtfield":
		return fmt.Sprintf("must be after %s", strings.ToLower(fe.Param()))
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
