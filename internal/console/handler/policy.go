package handler

import (
	"net/http"
	"strconv"

	"github.com/ferrychris/policyweb-sub000/internal/console/service"
	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/infra/auth"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ExportNoticeHeader сообщает клиенту, что вместо запрошенного формата отдан Markdown.
const ExportNoticeHeader = "X-Export-Notice"

type PolicyHandler struct {
	service *service.PolicyService
	logger  *zap.Logger
}

func NewPolicyHandler(s *service.PolicyService, logger *zap.Logger) *PolicyHandler {
	return &PolicyHandler{service: s, logger: logger}
}

// List: политики текущего пользователя, новые первыми.
// GET /v1/policies
func (h *PolicyHandler) List(w http.ResponseWriter, r *http.Request) {
	policies, err := h.service.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, policies)
}

// Get возвращает детали конкретной политики по её ID.
// GET /v1/policies/{id}
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	policy, err := h.service.Get(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

// Update правит заголовок и/или текст опубликованной политики.
// PUT /v1/policies/{id}
func (h *PolicyHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch domain.PolicyPatch
	if !decode(w, r, &patch) {
		return
	}
	policy, err := h.service.Update(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

// DELETE /v1/policies/{id}
func (h *PolicyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export отдает документ файлом.
// GET /v1/policies/{id}/export?format=md|html|docx|pdf
func (h *PolicyHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "md"
	}
	doc, err := h.service.Export(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), format)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Body)))
	if doc.Notice != "" {
		w.Header().Set(ExportNoticeHeader, doc.Notice)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}
