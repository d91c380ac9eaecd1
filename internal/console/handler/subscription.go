package handler

import (
	"net/http"

	"github.com/ferrychris/policyweb-sub000/internal/console/service"
	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/infra/auth"
	"github.com/ferrychris/policyweb-sub000/internal/payment"
	"go.uber.org/zap"
)

type SubscriptionHandler struct {
	service *service.SubscriptionService
	logger  *zap.Logger
}

func NewSubscriptionHandler(s *service.SubscriptionService, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{service: s, logger: logger}
}

// PurchaseResponse: результат успешной покупки.
type PurchaseResponse struct {
	Subscription *domain.Subscription `json:"subscription"`
	Receipt      *payment.Receipt     `json:"receipt"`
}

// GET /v1/subscription
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.Get(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// Purchase покупает или меняет пакет.
// POST /v1/subscription
func (h *SubscriptionHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseRequest
	if !decode(w, r, &req) {
		return
	}
	sub, receipt, err := h.service.Purchase(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, PurchaseResponse{Subscription: sub, Receipt: receipt})
}
