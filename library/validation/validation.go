package validation

import (
	"reflect"

	"github.com/go-playground/validator/v10"
)

func New() *Validation {
	valid := validator.New(validator.WithRequiredStructEnabled())
	return &Validation{valid: valid}
}

// Validation 参数校验器，同时满足 ship.Validator 接口。
type Validation struct {
	valid *validator.Validate
}

func (v *Validation) Validate(val any) error {
	if val == nil {
		return nil
	}

	rv := reflect.ValueOf(val)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		return v.valid.Struct(val)
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := v.Validate(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
	}

	return nil
}
