package handler

import (
	"net/http"
	"strconv"

	"github.com/ferrychris/policyweb-sub000/internal/console/service"
	"github.com/ferrychris/policyweb-sub000/internal/infra/auth"
	"go.uber.org/zap"
)

const defaultQuickActions = 4

// DashboardHandler: личный кабинет: пакет, доступные типы, сводка.
type DashboardHandler struct {
	service *service.DashboardService
	logger  *zap.Logger
}

func NewDashboardHandler(s *service.DashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{service: s, logger: logger}
}

// GET /v1/dashboard
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Get(r.Context(), auth.ClaimsFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GET /v1/entitlements
func (h *DashboardHandler) Entitlements(w http.ResponseWriter, r *http.Request) {
	ent, err := h.service.Entitlements(r.Context(), auth.ClaimsFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

// GET /v1/quick-actions?count=4
func (h *DashboardHandler) QuickActions(w http.ResponseWriter, r *http.Request) {
	count := defaultQuickActions
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(w, "count must be an integer")
			return
		}
		count = n
	}
	types, err := h.service.QuickActions(r.Context(), auth.ClaimsFrom(r.Context()), count)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}
