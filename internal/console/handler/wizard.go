package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/infra/auth"
	"github.com/ferrychris/policyweb-sub000/internal/wizard"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PackageSource: действующий пакет пользователя. "" без подписки.
type PackageSource interface {
	Package(ctx context.Context, claims *domain.CustomClaims) (domain.PackageKey, error)
}

// WizardHandler: HTTP-обертка над wizard.Manager.
// Пакет перечитывается на каждом запросе: апгрейд или истечение подписки
// сразу влияют на незавершенные сессии.
type WizardHandler struct {
	manager  *wizard.Manager
	packages PackageSource
	logger   *zap.Logger
}

func NewWizardHandler(m *wizard.Manager, packages PackageSource, logger *zap.Logger) *WizardHandler {
	return &WizardHandler{manager: m, packages: packages, logger: logger}
}

type selectRequest struct {
	PolicyType string `json:"policy_type"`
}

type contentRequest struct {
	Content string `json:"content"`
}

// PublishResponse: опубликованная политика и закрытая сессия.
type PublishResponse struct {
	Policy  *domain.GeneratedPolicy `json:"policy"`
	Session wizard.Session          `json:"session"`
}

func (h *WizardHandler) actor(w http.ResponseWriter, r *http.Request) (wizard.Actor, bool) {
	claims := auth.ClaimsFrom(r.Context())
	pkg, err := h.packages.Package(r.Context(), claims)
	if err != nil {
		writeError(w, h.logger, err)
		return wizard.Actor{}, false
	}
	return wizard.Actor{UserID: claims.UserID, Package: pkg}, true
}

func (h *WizardHandler) respond(w http.ResponseWriter, s wizard.Session, err error) {
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// POST /v1/wizard
func (h *WizardHandler) Start(w http.ResponseWriter, r *http.Request) {
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	s, err := h.manager.Start(r.Context(), a)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// GET /v1/wizard
func (h *WizardHandler) List(w http.ResponseWriter, r *http.Request) {
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.manager.List(r.Context(), a))
}

// GET /v1/wizard/{id}
func (h *WizardHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	s, err := h.manager.Get(r.Context(), a, chi.URLParam(r, "id"))
	h.respond(w, s, err)
}

// DELETE /v1/wizard/{id}
func (h *WizardHandler) Discard(w http.ResponseWriter, r *http.Request) {
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.manager.Discard(r.Context(), a, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /v1/wizard/{id}/select
func (h *WizardHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decode(w, r, &req) {
		return
	}
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	s, err := h.manager.SelectType(r.Context(), a, chi.URLParam(r, "id"), req.PolicyType)
	h.respond(w, s, err)
}

// POST /v1/wizard/{id}/cancel
func (h *WizardHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	s, err := h.manager.Cancel(r.Context(), a, chi.URLParam(r, "id"))
	h.respond(w, s, err)
}

// POST /v1/wizard/{id}/details
func (h *WizardHandler) SubmitDetails(w http.ResponseWriter, r *http.Request) {
	var d domain.OrganizationDetails
	if !decode(w, r, &d) {
		return
	}
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	s, err := h.manager.SubmitDetails(r.Context(), a, chi.URLParam(r, "id"), d)
	h.respond(w, s, err)
}

// POST /v1/wizard/{id}/customize
func (h *WizardHandler) Customize(w http.ResponseWriter, r *http.Request) {
	var d domain.OrganizationDetails
	if !decode(w, r, &d) {
		return
	}
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	s, err := h.manager.UpdateDetails(r.Context(), a, chi.URLParam(r, "id"), d)
	h.respond(w, s, err)
}

// POST /v1/wizard/{id}/confirm
func (h *WizardHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	s, err := h.manager.Confirm(r.Context(), a, chi.URLParam(r, "id"))
	h.respond(w, s, err)
}

// POST /v1/wizard/{id}/regenerate
func (h *WizardHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	s, err := h.manager.Regenerate(r.Context(), a, chi.URLParam(r, "id"))
	h.respond(w, s, err)
}

// POST /v1/wizard/{id}/retry
func (h *WizardHandler) Retry(w http.ResponseWriter, r *http.Request) {
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	s, err := h.manager.Retry(r.Context(), a, chi.URLParam(r, "id"))
	h.respond(w, s, err)
}

// POST /v1/wizard/{id}/edit
func (h *WizardHandler) ToggleEdit(w http.ResponseWriter, r *http.Request) {
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	s, err := h.manager.ToggleEdit(r.Context(), a, chi.URLParam(r, "id"))
	h.respond(w, s, err)
}

// PUT /v1/wizard/{id}/content
func (h *WizardHandler) SaveEdit(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !decode(w, r, &req) {
		return
	}
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	s, err := h.manager.SaveEdit(r.Context(), a, chi.URLParam(r, "id"), req.Content)
	h.respond(w, s, err)
}

// POST /v1/wizard/{id}/history/{index}/restore
func (h *WizardHandler) Restore(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		badRequest(w, "history index must be an integer")
		return
	}
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	s, err := h.manager.RestoreVersion(r.Context(), a, chi.URLParam(r, "id"), index)
	h.respond(w, s, err)
}

// POST /v1/wizard/{id}/back
func (h *WizardHandler) Back(w http.ResponseWriter, r *http.Request) {
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	s, err := h.manager.Back(r.Context(), a, chi.URLParam(r, "id"))
	h.respond(w, s, err)
}

// POST /v1/wizard/{id}/publish
func (h *WizardHandler) Publish(w http.ResponseWriter, r *http.Request) {
	a, ok := h.actor(w, r)
	if !ok {
		return
	}
	p, s, err := h.manager.Publish(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, PublishResponse{Policy: p, Session: s})
}
