package handler

import (
	"net/http"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/go-chi/chi/v5"
)

// Catalog: справочники, открытые без авторизации.
type Catalog interface {
	ListPackages() []domain.Package
	GetPackage(key domain.PackageKey) (*domain.Package, bool)
	PolicyTypes() []domain.PolicyType
}

type CatalogHandler struct {
	catalog Catalog
}

func NewCatalogHandler(c Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: c}
}

// GET /v1/packages
func (h *CatalogHandler) Packages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.ListPackages())
}

// GET /v1/packages/{key}
func (h *CatalogHandler) Package(w http.ResponseWriter, r *http.Request) {
	// Ключ сравнивается строго, "Basic" не найдется
	pkg, ok := h.catalog.GetPackage(domain.PackageKey(chi.URLParam(r, "key")))
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "package not found"})
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

// GET /v1/policy-types
func (h *CatalogHandler) PolicyTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.PolicyTypes())
}
