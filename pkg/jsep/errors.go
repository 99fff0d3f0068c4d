package jsep

import (
	"errors"
	"fmt"
)

// JsepErrorCode определяет коды ошибок движка согласования
type JsepErrorCode int

const (
	ErrorCodeInvalidConfig JsepErrorCode = iota + 3000
	ErrorCodeParse
	ErrorCodeInvalidState
	ErrorCodeNegotiation
	ErrorCodeInvalidArgument
)

func (c JsepErrorCode) String() string {
	switch c {
	case ErrorCodeInvalidConfig:
		return "invalid_config"
	case ErrorCodeParse:
		return "parse"
	case ErrorCodeInvalidState:
		return "invalid_state"
	case ErrorCodeNegotiation:
		return "negotiation"
	case ErrorCodeInvalidArgument:
		return "invalid_argument"
	default:
		return fmt.Sprintf("JsepErrorCode(%d)", int(c))
	}
}

// JsepError представляет ошибку операции сессии
type JsepError struct {
	Code    JsepErrorCode
	Message string
	Session string
	Wrapped error
}

// NewJsepError создает новую ошибку
func NewJsepError(code JsepErrorCode, format string, args ...interface{}) *JsepError {
	return &JsepError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapJsepError оборачивает существующую ошибку в JsepError
func WrapJsepError(code JsepErrorCode, err error, format string, args ...interface{}) *JsepError {
	return &JsepError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Wrapped: err,
	}
}

// Error реализует интерфейс error
func (e *JsepError) Error() string {
	msg := fmt.Sprintf("JSEP Error [%d %s]: %s", e.Code, e.Code, e.Message)
	if e.Session != "" {
		msg += fmt.Sprintf(" (Session: %s)", e.Session)
	}
	if e.Wrapped != nil {
		msg += fmt.Sprintf(" - Wrapped: %v", e.Wrapped)
	}
	return msg
}

// Unwrap возвращает обернутую ошибку для поддержки errors.Is/As
func (e *JsepError) Unwrap() error {
	return e.Wrapped
}

// IsJsepError проверяет, является ли ошибка JsepError с указанным кодом
func IsJsepError(err error, code JsepErrorCode) bool {
	var jsepErr *JsepError
	if !errors.As(err, &jsepErr) {
		return false
	}
	return jsepErr.Code == code
}
