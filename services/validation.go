package services

import (
	"buddiepay/utils"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// newValidator возвращает валидатор, который называет поля по json-тегам
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest валидирует DTO и собирает ошибки в одно сообщение
func validateRequest(v *validator.Validate, dto interface{}) error {
	err := v.Struct(dto)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return utils.NewValidationError(err.Error())
	}

	var errorMessages []string
	for _, e := range validationErrors {
		switch e.Tag() {
		case "required":
			errorMessages = append(errorMessages, "field "+e.Field()+" is required")
		case "email":
			errorMessages = append(errorMessages, "field "+e.Field()+" must be a valid email")
		case "uuid":
			errorMessages = append(errorMessages, "field "+e.Field()+" must be a valid id")
		case "len":
			errorMessages = append(errorMessages, "field "+e.Field()+" must be exactly "+e.Param()+" characters")
		case "min", "max":
			errorMessages = append(errorMessages, "field "+e.Field()+" has invalid length")
		case "oneof":
			errorMessages = append(errorMessages, "field "+e.Field()+" must be one of: "+e.Param())
		default:
			errorMessages = append(errorMessages, "field "+e.Field()+" is invalid")
		}
	}
	return utils.NewValidationError(strings.Join(errorMessages, "; "))
}
