package utils

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	apperrors "mes-system/pkg/errors"
)

type HttpResponse struct {
	Status  bool        `json:"status"`
	Body    interface{} `json:"body,omitempty"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func SuccessResponse(ctx echo.Context, body interface{}, message string, code int) error {
	return ctx.JSON(code, &HttpResponse{
		Status:  true,
		Body:    body,
		Message: message,
	})
}

// ErrorResponse переводит ошибку в HTTP-ответ и логирует то, что клиенту не показываем.
func ErrorResponse(ctx echo.Context, err error, logger *zap.Logger) error {
	code := http.StatusInternalServerError
	response := &HttpResponse{Status: false, Message: "Внутренняя ошибка сервера"}

	var httpErr *apperrors.HttpError
	var domainErr *apperrors.DomainError
	var validationErrs validator.ValidationErrors

	switch {
	case errors.As(err, &httpErr):
		code = httpErr.Code
		response.Message = httpErr.Message
		response.Details = httpErr.Details
		if code >= http.StatusInternalServerError {
			logger.Error("Ошибка HTTP", zap.Error(httpErr.Err), zap.Any("context", httpErr.Context))
		} else {
			logger.Warn("Некорректный запрос", zap.String("message", httpErr.Message), zap.Error(httpErr.Err), zap.Any("context", httpErr.Context))
		}
	case errors.As(err, &domainErr):
		if status, ok := ErrorCodeStatus[domainErr.Code]; ok {
			code = status
		}
		response.Code = domainErr.Code
		response.Message = domainErr.Message
		if len(domainErr.Details) > 0 {
			response.Details = domainErr.Details
		}
		logger.Warn("Отклонено бизнес-правилом", zap.String("code", domainErr.Code), zap.String("message", domainErr.Message), zap.Error(domainErr.Err))
	case errors.As(err, &validationErrs):
		code = http.StatusBadRequest
		response.Code = apperrors.CodeValidation
		response.Message = "Ошибка валидации"
		fields := make(map[string]string, len(validationErrs))
		for _, fe := range validationErrs {
			fields[fe.Field()] = fe.Tag()
		}
		response.Details = fields
	default:
		for sentinel, status := range sentinelStatus {
			if errors.Is(err, sentinel) {
				code = status
				response.Message = sentinel.Error()
				break
			}
		}
		if code == http.StatusInternalServerError {
			logger.Error("Необработанная ошибка", zap.String("uri", ctx.Request().RequestURI), zap.Error(err))
		}
	}

	return ctx.JSON(code, response)
}
