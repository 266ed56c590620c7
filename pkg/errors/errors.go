package errors

import (
	"errors"
	"fmt"
)

var (
	// Общие
	ErrNotFound     = fmt.Errorf("запись не найдена")
	ErrBadRequest   = fmt.Errorf("неверный запрос")
	ErrConflict     = fmt.Errorf("конфликт данных")
	ErrDuplicateKey = fmt.Errorf("ключ идемпотентности уже использован")
	ErrCacheMiss    = fmt.Errorf("значение в кеше отсутствует")

	// Предметная область
	ErrOrderNotFound      = fmt.Errorf("производственный заказ не найден")
	ErrStepNotFound       = fmt.Errorf("технологический шаг не найден")
	ErrWorkcenterNotFound = fmt.Errorf("рабочий центр не найден")
	ErrLotNotFound        = fmt.Errorf("партия не найдена")
	ErrExecutionNotFound  = fmt.Errorf("выполнение шага не найдено")
	ErrShiftNotFound      = fmt.Errorf("смена не найдена или неактивна")
)

// Коды таксономии ошибок, которые видит клиент.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeValidation          = "VALIDATION_ERROR"
	CodeConflictIdempotency = "CONFLICT_IDEMPOTENCY"
	CodeFatal               = "FATAL"
)

// DomainError - ошибка бизнес-логики с кодом таксономии.
type DomainError struct {
	Code    string
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is позволяет errors.Is(err, ErrNotFound) для ошибок NOT_FOUND.
func (e *DomainError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == CodeNotFound
	case ErrConflict:
		return e.Code == CodeConflictIdempotency
	case ErrBadRequest:
		return e.Code == CodeValidation
	}
	return false
}

// WithDetail добавляет поле в детали ошибки и возвращает её же.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func NewNotFoundError(err error, format string, args ...interface{}) *DomainError {
	return &DomainError{Code: CodeNotFound, Message: fmt.Sprintf(format, args...), Err: err}
}

func NewValidationError(format string, args ...interface{}) *DomainError {
	return &DomainError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NewConflictError(format string, args ...interface{}) *DomainError {
	return &DomainError{Code: CodeConflictIdempotency, Message: fmt.Sprintf(format, args...)}
}

func NewFatalError(err error, format string, args ...interface{}) *DomainError {
	return &DomainError{Code: CodeFatal, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf возвращает код таксономии или пустую строку.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// HttpError - ошибка транспортного уровня с HTTP-кодом.
type HttpError struct {
	Code    int
	Message string
	Err     error
	Context map[string]interface{}
	Details interface{}
}

func (e *HttpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

func (e *HttpError) Unwrap() error { return e.Err }

func NewHttpError(code int, message string, err error, context map[string]interface{}) *HttpError {
	return &HttpError{Code: code, Message: message, Err: err, Context: context}
}
