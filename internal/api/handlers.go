package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"github.com/susu3304/tablesplit/internal/ledger"
	"github.com/susu3304/tablesplit/internal/payments"
	"github.com/susu3304/tablesplit/internal/split"
)

type openSessionRequest struct {
	RestaurantID int64  `json:"restaurant_id" validate:"required,gt=0"`
	TableRef     string `json:"table_ref" validate:"required,max=32"`
	Origin       string `json:"origin" validate:"omitempty,oneof=QRCODE WALK_IN MAP RESERVATION"`
}

type orderLineRequest struct {
	MenuItemID int64  `json:"menu_item_id" validate:"required,gt=0"`
	Quantity   int    `json:"quantity" validate:"required,min=1,max=99"`
	Notes      string `json:"notes" validate:"max=200"`
}

type placeOrderRequest struct {
	Items []orderLineRequest `json:"items" validate:"required,min=1,dive"`
}

type strategyRequest struct {
	Type        string           `json:"type" validate:"required,oneof=equal percentage custom items"`
	Shares      int              `json:"shares" validate:"required_if=Type equal,omitempty,min=1"`
	Percentage  *decimal.Decimal `json:"percentage" validate:"required_if=Type percentage"`
	Amount      *decimal.Decimal `json:"amount" validate:"required_if=Type custom"`
	LineItemIDs []int64          `json:"line_item_ids" validate:"required_if=Type items,omitempty,min=1,dive,gt=0"`
}

type proposeRequest struct {
	PayerName string          `json:"payer_name" validate:"required,max=80"`
	Strategy  strategyRequest `json:"strategy"`
}

type proposeResponse struct {
	Division    ledger.PaymentDivision `json:"division"`
	CheckoutURL string                 `json:"checkoutUrl,omitempty"`
	Token       string                 `json:"token,omitempty"`
}

// toStrategy builds the ledger strategy. whole rounds generic shares down to
// whole amounts for gateways that cannot charge cents.
func (req strategyRequest) toStrategy(whole bool) ledger.Strategy {
	switch req.Type {
	case "equal":
		return ledger.EqualShare{N: req.Shares, Whole: whole}
	case "percentage":
		return ledger.Percentage{Pct: *req.Percentage, Whole: whole}
	case "custom":
		return ledger.CustomAmount{Value: *req.Amount}
	default:
		return ledger.ItemSubset{LineItemIDs: req.LineItemIDs}
	}
}

// decode reads a JSON body and validates it.
func (a *API) decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return a.validate.Struct(v)
}

func (a *API) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := a.decode(r, &req); err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}

	sess, err := a.svc.OpenSession(r.Context(), req.RestaurantID, req.TableRef, ledger.Origin(req.Origin))
	if err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid session id", "")
		return
	}
	sess, err := a.svc.Session(r.Context(), id)
	if err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *API) handleResolveShare(w http.ResponseWriter, r *http.Request) {
	sess, err := a.svc.ResolveShareToken(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"session_id": sess.ID})
}

func (a *API) shareURL(sess ledger.Session) string {
	return strings.TrimRight(a.config.PublicBaseURL, "/") + "/split/" + sess.ShareToken
}

func (a *API) handleShareLink(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid session id", "")
		return
	}
	sess, err := a.svc.Session(r.Context(), id)
	if err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"shareUrl": a.shareURL(sess)})
}

func (a *API) handleShareQR(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid session id", "")
		return
	}
	sess, err := a.svc.Session(r.Context(), id)
	if err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}
	png, err := qrcode.Encode(a.shareURL(sess), qrcode.Medium, 256)
	if err != nil {
		log.Printf("api: qr for session %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to render QR code", "")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

func (a *API) handleMenu(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid restaurant id", "")
		return
	}
	menu, err := a.svc.Menu(r.Context(), id)
	if err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, menu)
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid session id", "")
		return
	}
	orders, err := a.svc.Orders(r.Context(), id)
	if err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (a *API) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid session id", "")
		return
	}
	var req placeOrderRequest
	if err := a.decode(r, &req); err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}

	lines := make([]split.OrderLine, len(req.Items))
	for i, it := range req.Items {
		lines[i] = split.OrderLine{MenuItemID: it.MenuItemID, Quantity: it.Quantity, Notes: it.Notes}
	}
	order, err := a.svc.PlaceOrder(r.Context(), id, lines)
	if err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (a *API) handleBill(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid session id", "")
		return
	}
	items, err := parseIDList(r.URL.Query().Get("items"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "items must be a comma separated list of ids", "")
		return
	}
	bill, err := a.svc.Bill(r.Context(), id, items)
	if err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (a *API) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid session id", "")
		return
	}
	st, err := a.svc.Status(r.Context(), id)
	if err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handleProposeDivision(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid session id", "")
		return
	}
	var req proposeRequest
	if err := a.decode(r, &req); err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}

	ctx := r.Context()
	div, err := a.svc.Propose(ctx, id, req.PayerName, req.Strategy.toStrategy(payments.NeedsWholeAmounts(a.gateway)))
	if err != nil {
		a.writeServiceError(ctx, w, err, id)
		return
	}

	sess, err := a.svc.Session(ctx, id)
	if err != nil {
		a.writeServiceError(ctx, w, err, 0)
		return
	}
	rest, err := a.svc.Restaurant(ctx, sess.RestaurantID)
	if err != nil {
		a.writeServiceError(ctx, w, err, 0)
		return
	}
	checkout, err := a.gateway.Checkout(ctx, payments.CheckoutRequest{
		DivisionID:  div.ID,
		SessionID:   id,
		PayerName:   div.PayerName,
		Amount:      div.Amount,
		Currency:    rest.Currency,
		Description: fmt.Sprintf("%s, mesa %s", rest.TradeName, sess.TableRef),
	})
	if err != nil {
		// Release the reservation; the guest can propose again.
		if _, cerr := a.svc.Confirm(ctx, div.ID, ledger.DivisionFailed, a.gateway.Name()+": checkout failed"); cerr != nil {
			log.Printf("api: release division %s: %v", div.ID, cerr)
		}
		if !errors.Is(err, payments.ErrFractionalAmount) {
			log.Printf("api: checkout for division %s: %v", div.ID, err)
			err = fmt.Errorf("%w: %v", errGateway, err)
		}
		a.writeServiceError(ctx, w, err, 0)
		return
	}

	writeJSON(w, http.StatusCreated, proposeResponse{
		Division:    div,
		CheckoutURL: checkout.RedirectURL,
		Token:       checkout.Token,
	})
}

func (a *API) handleCloseIfComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid session id", "")
		return
	}
	sess, closed, err := a.svc.CloseIfComplete(r.Context(), id)
	if err != nil {
		a.writeServiceError(r.Context(), w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": sess,
		"closed":  closed,
	})
}
