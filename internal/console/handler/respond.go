package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ferrychris/policyweb-sub000/internal/connectors"
	"github.com/ferrychris/policyweb-sub000/internal/console/service"
	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/engine"
	"github.com/ferrychris/policyweb-sub000/internal/export"
	"github.com/ferrychris/policyweb-sub000/internal/wizard"
	"go.uber.org/zap"
)

// ErrorResponse: тело любого ответа с ошибкой.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Kind    string              `json:"kind,omitempty"`
	Fields  []domain.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: msg})
}

// decode читает JSON-тело. Неизвестные поля не допускаются.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		badRequest(w, "invalid request body")
		return false
	}
	return true
}

// statusFor сопоставляет доменную ошибку HTTP-статусу и коду для клиента.
func statusFor(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Message: err.Error()}

	if vErr, ok := domain.IsValidation(err); ok {
		resp.Error, resp.Fields = "validation_failed", vErr.Fields
		return http.StatusUnprocessableEntity, resp
	}
	var apiErr *connectors.APIError
	if errors.As(err, &apiErr) {
		resp.Error, resp.Kind = "generation_failed", string(apiErr.Kind)
		return http.StatusBadGateway, resp
	}

	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		resp.Error = "invalid_credentials"
		return http.StatusUnauthorized, resp
	case service.IsPaymentFailure(err):
		resp.Error = "payment_failed"
		return http.StatusPaymentRequired, resp
	case errors.Is(err, domain.ErrNoSubscription):
		resp.Error = "no_subscription"
		return http.StatusForbidden, resp
	case errors.Is(err, domain.ErrNotAllowed):
		resp.Error = "not_allowed"
		return http.StatusForbidden, resp
	case errors.Is(err, domain.ErrPolicyLimitReached):
		resp.Error = "policy_limit_reached"
		return http.StatusForbidden, resp
	case errors.Is(err, domain.ErrForbidden):
		resp.Error = "forbidden"
		return http.StatusForbidden, resp
	case errors.Is(err, domain.ErrNotFound):
		resp.Error = "not_found"
		return http.StatusNotFound, resp
	case errors.Is(err, wizard.ErrStaleGeneration):
		resp.Error = "stale_generation"
		return http.StatusConflict, resp
	case errors.Is(err, domain.ErrInvalidTransition):
		resp.Error = "invalid_transition"
		return http.StatusConflict, resp
	case errors.Is(err, domain.ErrUserExists):
		resp.Error = "user_exists"
		return http.StatusConflict, resp
	case errors.Is(err, domain.ErrUnknownPackage), errors.Is(err, export.ErrUnsupportedFormat):
		resp.Error = "bad_request"
		return http.StatusBadRequest, resp
	case errors.Is(err, engine.ErrGenerationSuspended):
		resp.Error = "generation_suspended"
		return http.StatusServiceUnavailable, resp
	case errors.Is(err, engine.ErrProviderUnavailable):
		resp.Error = "provider_unavailable"
		return http.StatusServiceUnavailable, resp
	}

	// Внутренние детали наружу не отдаем
	return http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: "internal server error"}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, resp := statusFor(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, resp)
}
