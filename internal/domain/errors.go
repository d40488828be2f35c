package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoConnectivity — сервер недоступен на уровне сети.
	ErrNoConnectivity = errors.New("no connectivity")
	// ErrTimeout — запрос не уложился в клиентский таймаут.
	ErrTimeout = errors.New("request timed out")
	// ErrMalformedResponse — тело ответа не удалось разобрать.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrNoRating — оценка не выбрана, отправка запрещена.
	ErrNoRating = errors.New("no rating selected")
	// ErrSubmissionInFlight — по этому талону уже идёт отправка.
	ErrSubmissionInFlight = errors.New("submission already in flight")
)

// httpStatusMessages — таблица человекочитаемых причин по коду ответа.
var httpStatusMessages = map[int]string{
	400: "Bad request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Department not found",
	500: "Internal server error",
	503: "Service unavailable",
}

// StatusMessage возвращает причину по HTTP-коду; для кодов вне таблицы
// подставляет код в сообщение по умолчанию.
func StatusMessage(code int) string {
	if msg, ok := httpStatusMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("Failed to load departments (Status code: %d)", code)
}

// HTTPStatusError — ответ сервера с неуспешным HTTP-кодом.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	return StatusMessage(e.Code)
}

// DefaultRejectionMessage используется, когда сервер отклонил отзыв без
// пояснения.
const DefaultRejectionMessage = "Feedback was not accepted by the server"

// ServerRejectionError — сервер ответил, но не принял отзыв.
type ServerRejectionError struct {
	Message string
}

func (e *ServerRejectionError) Error() string {
	if e.Message == "" {
		return DefaultRejectionMessage
	}
	return e.Message
}

// ErrorKind — классификация отказа для журнала, метрик и политики
// повторной попытки.
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindNoConnectivity  ErrorKind = "no_connectivity"
	KindTimeout         ErrorKind = "timeout"
	KindMalformed       ErrorKind = "malformed_response"
	KindHTTPStatus      ErrorKind = "http_status"
	KindServerRejection ErrorKind = "server_rejection"
	KindValidation      ErrorKind = "validation"
	KindUnknown         ErrorKind = "unknown"
)

// KindOf сводит произвольную ошибку к одному из известных видов.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	switch {
	case errors.Is(err, ErrNoConnectivity):
		return KindNoConnectivity
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformed
	case errors.Is(err, ErrNoRating), errors.Is(err, ErrSubmissionInFlight):
		return KindValidation
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return KindHTTPStatus
	}
	var rejection *ServerRejectionError
	if errors.As(err, &rejection) {
		return KindServerRejection
	}
	return KindUnknown
}

// Recoverable сообщает, имеет ли смысл повторить ту же отправку: форма
// остаётся открытой только при сбоях связи.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case KindNoConnectivity, KindTimeout:
		return true
	default:
		return false
	}
}
