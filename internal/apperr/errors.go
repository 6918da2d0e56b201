package apperr

import (
	"errors"
	"fmt"
)

// Kind классифицирует ошибку клиента
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation - некорректный локальный ввод, до сети не доходит
	KindValidation
	// KindAuthExpired - сервер отказал в авторизации, сессия сброшена
	KindAuthExpired
	// KindRouteUnavailable - исчерпаны все маршруты операции
	KindRouteUnavailable
	// KindTransferDenied - сервер отклонил initiate/confirm с бизнес-сообщением
	KindTransferDenied
	// KindNetwork - таймаут или ошибка транспорта
	KindNetwork
	// KindRejected - бизнес-отказ сервера вне переводов (например, неверный пароль при входе)
	KindRejected
)

// DefaultNetworkMessage используется, когда сервер не вернул {message}
const DefaultNetworkMessage = "network error"

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthExpired:
		return "auth_expired"
	case KindRouteUnavailable:
		return "route_unavailable"
	case KindTransferDenied:
		return "transfer_denied"
	case KindNetwork:
		return "network"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error единый тип ошибки клиента
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New создает ошибку заданного вида
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf создает ошибку с форматированным сообщением
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return New(kind, op, fmt.Sprintf(format, args...))
}

// Wrap оборачивает причину, сохраняя ее сообщение, если свое не задано
func Wrap(kind Kind, op string, err error) *Error {
	e := &Error{Kind: kind, Op: op, Err: err}
	var inner *Error
	if errors.As(err, &inner) {
		e.Message = inner.Message
		e.Status = inner.Status
	}
	return e
}

// Validation короткий конструктор для ошибок ввода
func Validation(op, message string) *Error {
	return New(KindValidation, op, message)
}

// KindOf возвращает вид самой внешней *Error в цепочке
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is проверяет, встречается ли вид kind где-либо в цепочке ошибок
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// Message возвращает текст для пользователя
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
