package validation

import (
	"database/sql/driver"
	"reflect"

	"github.com/aarondl/null/v8"
	"github.com/go-playground/validator/v10"
)

// registerNullTypes учит валидатор "смотреть внутрь" null-типов.
// Невалидное значение превращается в nil, чтобы сработал `omitempty`.
func registerNullTypes(v *validator.Validate) {
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		valuer, ok := field.Interface().(driver.Valuer)
		if !ok {
			return nil
		}
		val, err := valuer.Value()
		if err != nil {
			return nil
		}
		return val
	}, null.String{}, null.Int{}, null.Time{}, null.Float64{}, null.Bool{})
}
