package api

import (
	"net/http"

	"github.com/google/uuid"
)

type notifyRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
}

// handlePaymentNotify is the gateway webhook. The body only names the order;
// the outcome is always read back from the gateway.
func (a *API) handlePaymentNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := a.decode(r, &req); err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}
	id := uuid.MustParse(req.OrderID)

	status, final, err := a.gateway.Outcome(r.Context(), req.OrderID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "gateway_error", err.Error(), "the gateway will retry the notification")
		return
	}
	if !final {
		writeJSON(w, http.StatusOK, map[string]string{"status": "PENDING"})
		return
	}

	div, err := a.svc.Confirm(r.Context(), id, status, a.gateway.Name()+": notification")
	if err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(div.Status)})
}
