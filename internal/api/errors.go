package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/susu3304/tablesplit/internal/ledger"
	"github.com/susu3304/tablesplit/internal/payments"
	"github.com/susu3304/tablesplit/internal/split"
)

var (
	errBadBody = errors.New("invalid request body")
	errGateway = errors.New("payment gateway failed")
)

type errorResponse struct {
	Error  string         `json:"error"`
	Code   string         `json:"code"`
	Hint   string         `json:"hint,omitempty"`
	Status *ledger.Status `json:"status,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg, hint string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code, Hint: hint})
}

type errorMapping struct {
	err    error
	status int
	code   string
	hint   string
}

var errorMappings = []errorMapping{
	{ledger.ErrConcurrentAdmission, http.StatusConflict, "concurrent_admission", "the balance changed; fetch the payment status and try again"},
	{ledger.ErrUnavailable, http.StatusServiceUnavailable, "try_again", "temporary failure; retry in a moment"},
	{ledger.ErrExceedsRemaining, http.StatusConflict, "exceeds_remaining", "choose an amount up to the remaining balance"},
	{ledger.ErrAlreadyCovered, http.StatusConflict, "already_covered", "someone already paid for these items"},
	{ledger.ErrNothingDue, http.StatusConflict, "nothing_due", "the bill is already settled"},
	{ledger.ErrSessionNotOpen, http.StatusConflict, "session_not_open", "the table is closed"},
	{ledger.ErrInvalidTransition, http.StatusConflict, "invalid_transition", ""},
	{ledger.ErrInvalidStrategy, http.StatusUnprocessableEntity, "invalid_strategy", ""},
	{ledger.ErrInvalidLineItem, http.StatusUnprocessableEntity, "invalid_line_item", ""},
	{ledger.ErrUnknownLineItem, http.StatusUnprocessableEntity, "unknown_line_item", "pick items from this table's orders"},
	{ledger.ErrInvalidServiceFee, http.StatusUnprocessableEntity, "invalid_service_fee", ""},
	{ledger.ErrInvalidSession, http.StatusUnprocessableEntity, "invalid_session", ""},
	{payments.ErrFractionalAmount, http.StatusUnprocessableEntity, "fractional_amount", "this gateway only takes whole amounts; pay this share at the table"},
	{payments.ErrNotConfigured, http.StatusServiceUnavailable, "gateway_unavailable", ""},
	{errGateway, http.StatusBadGateway, "gateway_error", "try again or pay at the table"},
	{errBadBody, http.StatusBadRequest, "invalid_request", ""},
	{split.ErrNotStaff, http.StatusForbidden, "forbidden", ""},
	{split.ErrRoleNotAllowed, http.StatusForbidden, "role_not_allowed", "ask a manager"},
}

// writeServiceError maps a service error to a response. A concurrent
// admission carries the fresh status of sessionID so the client can retry
// without another round trip.
func (a *API) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, sessionID int64) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, "invalid_request", verrs.Error(), "")
		return
	}
	if ledger.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "not_found", err.Error(), "")
		return
	}
	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		resp := errorResponse{Error: err.Error(), Code: m.code, Hint: m.hint}
		if m.err == ledger.ErrConcurrentAdmission && sessionID > 0 {
			if st, serr := a.svc.Status(ctx, sessionID); serr == nil {
				resp.Status = &st
			}
		}
		if m.status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "1")
		}
		writeJSON(w, m.status, resp)
		return
	}
	log.Printf("api: unexpected error: %v", err)
	writeError(w, http.StatusInternalServerError, "internal", "internal error", "")
}
