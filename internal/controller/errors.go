package controller

import (
	"errors"
	"net/http"

	"github.com/Freeeeeet/concierge/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Message string               `json:"message"`
	Fields  []service.FieldError `json:"fields,omitempty"`
}

var errBadBody = &service.Error{Kind: service.KindValidation, Message: "invalid request body"}

// statusOf код ответа для ошибки сервиса
func statusOf(err error) int {
	switch service.KindOf(err) {
	case service.KindAuthorization:
		if errors.Is(err, service.ErrNotLoggedIn) {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindStateConflict:
		return http.StatusConflict
	case service.KindExpired:
		return http.StatusGone
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		body := ErrorResponse{Message: "internal error"}

		var httpErr *echo.HTTPError
		var svcErr *service.Error
		switch {
		case errors.As(err, &svcErr):
			status = statusOf(svcErr)
			body = ErrorResponse{Message: svcErr.Message, Fields: svcErr.Fields}
		case errors.As(err, &httpErr):
			status = httpErr.Code
			if msg, ok := httpErr.Message.(string); ok {
				body.Message = msg
			} else {
				body.Message = http.StatusText(status)
			}
		default:
			logger.Error("Unhandled error", zap.String("uri", c.Request().RequestURI), zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Warn("Failed to write error response", zap.Error(err))
		}
	}
}
