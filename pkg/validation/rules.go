package validation

import (
	"regexp"

	"github.com/go-playground/validator/v10"

	"mes-system/pkg/constants"
)

var (
	idempotencyKeyRe = regexp.MustCompile(`^[\x21-\x7E]{1,128}$`)
	timeOfDayRe      = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d(:[0-5]\d)?$`)
)

// registerRules регистрирует теги, которые мы используем в struct tags
func registerRules(v *validator.Validate) error {
	rules := map[string]validator.Func{
		"idem_key":    isIdempotencyKey,
		"disposition": isDisposition,
		"order_type":  isOrderType,
		"time_of_day": isTimeOfDay,
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

// isIdempotencyKey - печатные ASCII без пробелов, до 128 символов
func isIdempotencyKey(fl validator.FieldLevel) bool {
	return idempotencyKeyRe.MatchString(fl.Field().String())
}

func isDisposition(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case constants.DispositionScrap, constants.DispositionReuse:
		return true
	}
	return false
}

func isOrderType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case constants.OrderTypeProduction, constants.OrderTypeReplenishment:
		return true
	}
	return false
}

// isTimeOfDay - "HH:MM" или "HH:MM:SS"
func isTimeOfDay(fl validator.FieldLevel) bool {
	return timeOfDayRe.MatchString(fl.Field().String())
}
