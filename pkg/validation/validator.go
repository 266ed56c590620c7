package validation

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CustomValidator подключает validator к Echo. Ошибки называют поля так,
// как их присылает клиент: по тегу json, query или param.
type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// New падает, если правило не зарегистрировалось: сервер без валидации не стартует.
func New() *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(wireName)

	registerNullTypes(v)
	if err := registerRules(v); err != nil {
		panic("ошибка регистрации валидаторов: " + err.Error())
	}

	return &CustomValidator{validator: v}
}

// wireName - имя поля в запросе; без тегов остается имя Go.
func wireName(field reflect.StructField) string {
	for _, tag := range []string{"json", "query", "param"} {
		name, _, _ := strings.Cut(field.Tag.Get(tag), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return field.Name
}
