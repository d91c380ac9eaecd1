package handler

import (
	"context"
	"net/http"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// KillSwitch: стоп-кран генерации (engine.KillSwitchManager).
type KillSwitch interface {
	Suspend(ctx context.Context, typeID string) error
	Resume(ctx context.Context, typeID string) error
	List() []string
}

// AdminHandler: операторские ручки.
type AdminHandler struct {
	switches KillSwitch
	types    interface {
		GetPolicyType(id string) (*domain.PolicyType, bool)
	}
	logger *zap.Logger
}

func NewAdminHandler(ks KillSwitch, types interface {
	GetPolicyType(id string) (*domain.PolicyType, bool)
}, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{switches: ks, types: types, logger: logger}
}

type suspensionsResponse struct {
	Suspended []string `json:"suspended"`
}

// GET /v1/admin/suspensions
func (h *AdminHandler) Suspensions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, suspensionsResponse{Suspended: h.switches.List()})
}

// POST /v1/admin/suspensions/{type}
func (h *AdminHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	typeID := chi.URLParam(r, "type")
	if _, ok := h.types.GetPolicyType(typeID); !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "unknown policy type"})
		return
	}
	if err := h.switches.Suspend(r.Context(), typeID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, suspensionsResponse{Suspended: h.switches.List()})
}

// DELETE /v1/admin/suspensions/{type}
func (h *AdminHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.switches.Resume(r.Context(), chi.URLParam(r, "type")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, suspensionsResponse{Suspended: h.switches.List()})
}
