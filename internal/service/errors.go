package service

import (
	"errors"
	"strings"
)

// Kind класс ошибки, по нему транспорт выбирает код ответа
type Kind int

const (
	KindInternal Kind = iota
	KindAuthorization
	KindValidation
	KindStateConflict
	KindExpired
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	case KindExpired:
		return "expired"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// FieldError ошибка конкретного поля, путь в формате "stops.2.location.id"
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error ошибка операции, которую можно показать вызывающему
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError

	cause error // только для логов
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}

	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Path+": "+f.Message)
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Общие ошибки
var (
	ErrNotLoggedIn    = &Error{Kind: KindAuthorization, Message: "you must be logged in"}
	ErrNotAllowed     = &Error{Kind: KindAuthorization, Message: "you are not allowed to do this"}
	ErrNotFound       = &Error{Kind: KindNotFound, Message: "custom date not found"}
	ErrRequestExpired = &Error{Kind: KindExpired, Message: "request has expired"}
)

func conflict(message string) *Error {
	return &Error{Kind: KindStateConflict, Message: message}
}

func notFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func invalid(fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: "invalid input", Fields: fields}
}

func fieldError(path, message string) FieldError {
	return FieldError{Path: path, Message: message}
}

// KindOf класс ошибки; всё неизвестное считается внутренней ошибкой
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
