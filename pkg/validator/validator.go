package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type ErrorResponse struct {
	FailedField string
	Tag         string
	Value       string
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("field '%s' failed on tag '%s'", e.FailedField, e.Tag)
}

var validate = validator.New()

func init() {
	// uuid.UUID zero value passes "required", so give it a dedicated tag.
	validate.RegisterValidation("uuid_required", func(fl validator.FieldLevel) bool {
		if id, ok := fl.Field().Interface().(uuid.UUID); ok {
			return id != uuid.Nil
		}
		return false
	})
}

func ValidateStruct(data interface{}) []*ErrorResponse {
	var errs []*ErrorResponse
	err := validate.Struct(data)
	if err != nil {
		for _, fe := range err.(validator.ValidationErrors) {
			errs = append(errs, &ErrorResponse{
				FailedField: fe.StructNamespace(),
				Tag:         fe.Tag(),
				Value:       fe.Param(),
			})
		}
	}
	return errs
}

// First returns the first failure, or nil when the struct is valid.
func First(data interface{}) *ErrorResponse {
	if errs := ValidateStruct(data); len(errs) > 0 {
		return errs[0]
	}
	return nil
}
