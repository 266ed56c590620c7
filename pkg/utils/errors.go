package utils

import (
	"net/http"

	apperrors "mes-system/pkg/errors"
)

// ErrorCodeStatus - соответствие кодов таксономии HTTP-статусам.
var ErrorCodeStatus = map[string]int{
	apperrors.CodeNotFound:            http.StatusNotFound,
	apperrors.CodeValidation:          http.StatusBadRequest,
	apperrors.CodeConflictIdempotency: http.StatusConflict,
	apperrors.CodeFatal:               http.StatusUnprocessableEntity,
}

// sentinelStatus - для ошибок без кода таксономии.
var sentinelStatus = map[error]int{
	apperrors.ErrNotFound:   http.StatusNotFound,
	apperrors.ErrBadRequest: http.StatusBadRequest,
	apperrors.ErrConflict:   http.StatusConflict,
}
