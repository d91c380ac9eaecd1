package connectors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrorKind: класс отказа внешнего сервиса генерации.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindServer      ErrorKind = "server_error"
	KindNetwork     ErrorKind = "network_error"
	KindAuth        ErrorKind = "auth_error"
	KindBadRequest  ErrorKind = "bad_request"
	KindEmpty       ErrorKind = "empty_response"
	KindUnknown     ErrorKind = "unknown"
)

// APIError: ошибка провайдера. Transient-ошибки имеет смысл повторять,
// остальные пробрасываются вызывающему сразу.
type APIError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration // из заголовка Retry-After, если провайдер его прислал
	Message    string
	Cause      error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *APIError) Unwrap() error { return e.Cause }

// Transient: rate limit, 5xx или сетевой сбой.
func (e *APIError) Transient() bool {
	switch e.Kind {
	case KindRateLimited, KindServer, KindNetwork:
		return true
	}
	return false
}

// KindForStatus классифицирует HTTP-статус ответа.
func KindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code >= 500:
		return KindServer
	case code >= 400:
		return KindBadRequest
	}
	return KindUnknown
}

// IsTransient: true для APIError с повторяемым классом.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return false
}

// ParseRetryAfter понимает только секунды; HTTP-date провайдеры генерации не шлют.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
