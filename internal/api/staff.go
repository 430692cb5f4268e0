package api

import (
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/susu3304/tablesplit/internal/ledger"
	"github.com/susu3304/tablesplit/internal/split"
	"github.com/xuri/excelize/v2"
)

type confirmRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=PAID FAILED"`
	Note    string `json:"note" validate:"max=200"`
}

type lineItemStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=CREATED SENT_TO_KITCHEN PREPARING READY DELIVERED CANCELLED"`
}

type endSessionRequest struct {
	Status string `json:"status" validate:"required,oneof=CLOSED CANCELLED"`
}

// Protected handlers
func (a *API) handleUserRestaurants(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	restaurants, err := a.dir.StaffRestaurants(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("api: staff restaurants for %s: %v", claims.UserID, err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to get restaurants", "")
		return
	}
	if restaurants == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, restaurants)
}

// staffSession loads a session, checks the caller works at its restaurant
// and returns the caller's role there.
func (a *API) staffSession(w http.ResponseWriter, r *http.Request, sessionID int64) (ledger.Session, string, bool) {
	sess, err := a.svc.Session(r.Context(), sessionID)
	if err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return ledger.Session{}, "", false
	}
	role, err := a.requireStaff(r, sess.RestaurantID)
	if err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return ledger.Session{}, "", false
	}
	return sess, role, true
}

func (a *API) handleConfirmDivision(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid division id", "")
		return
	}
	var req confirmRequest
	if err := a.decode(r, &req); err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}

	div, err := a.svc.Division(r.Context(), id)
	if err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}
	_, role, ok := a.staffSession(w, r, div.SessionID)
	if !ok {
		return
	}
	if !split.CanConfirm(role) {
		a.writeServiceError(r.Context(), w, fmt.Errorf("%w: %s cannot confirm payments", split.ErrRoleNotAllowed, role), 0)
		return
	}

	note := req.Note
	if note == "" {
		note = "confirmed by " + claimsFrom(r).Username
	}
	confirmed, err := a.svc.Confirm(r.Context(), id, ledger.DivisionStatus(req.Outcome), note)
	if err != nil {
		a.writeServiceError(r.Context(), w, err, div.SessionID)
		return
	}
	writeJSON(w, http.StatusOK, confirmed)
}

func (a *API) handleLineItemStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid line item id", "")
		return
	}
	var req lineItemStatusRequest
	if err := a.decode(r, &req); err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}

	li, err := a.svc.LineItem(r.Context(), id)
	if err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}
	if _, _, ok := a.staffSession(w, r, li.SessionID); !ok {
		return
	}

	li, err = a.svc.UpdateLineItemStatus(r.Context(), id, ledger.LineItemStatus(req.Status))
	if err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, li)
}

func (a *API) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid session id", "")
		return
	}
	var req endSessionRequest
	if err := a.decode(r, &req); err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}
	_, role, ok := a.staffSession(w, r, id)
	if !ok {
		return
	}
	if !split.CanEndSession(role) {
		a.writeServiceError(r.Context(), w, fmt.Errorf("%w: %s cannot end a table", split.ErrRoleNotAllowed, role), 0)
		return
	}

	sess, err := a.svc.EndSession(r.Context(), id, ledger.SessionStatus(req.Status))
	if err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

var exportHeaders = []string{"Division", "Payer", "Strategy", "Amount", "Status", "Created", "Resolved", "Note"}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid session id", "")
		return
	}
	sess, _, ok := a.staffSession(w, r, id)
	if !ok {
		return
	}
	st, err := a.svc.Status(r.Context(), id)
	if err != nil {
		a.writeServiceError(r.Context(), w, err, 0)
		return
	}

	f, err := paymentWorkbook(sess, st)
	if err != nil {
		log.Printf("api: export session %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to build workbook", "")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="session_%d_payments.xlsx"`, id))
	if err := f.Write(w); err != nil {
		log.Printf("api: write export for session %d: %v", id, err)
	}
}

// paymentWorkbook lays out one row per division followed by the totals.
func paymentWorkbook(sess ledger.Session, st ledger.Status) (*excelize.File, error) {
	f := excelize.NewFile()
	sheetName := "Payments"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		f.Close()
		return nil, err
	}

	for i, header := range exportHeaders {
		f.SetCellValue(sheetName, fmt.Sprintf("%c1", 'A'+i), header)
	}

	rowIndex := 2
	for _, d := range st.Divisions {
		resolved := ""
		if d.ResolvedAt != nil {
			resolved = d.ResolvedAt.Format("02/01/2006 15:04")
		}
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", rowIndex), d.ID.String())
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", rowIndex), d.PayerName)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", rowIndex), d.Strategy)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", rowIndex), d.Amount.InexactFloat64())
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", rowIndex), string(d.Status))
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", rowIndex), d.CreatedAt.Format("02/01/2006 15:04"))
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", rowIndex), resolved)
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", rowIndex), d.Note)
		rowIndex++
	}

	rowIndex++
	totals := []struct {
		label string
		value float64
	}{
		{"Total", st.TotalAmount.InexactFloat64()},
		{"Paid", st.PaidAmount.InexactFloat64()},
		{"Pending", st.PendingAmount.InexactFloat64()},
		{"Remaining", st.RemainingAmount.InexactFloat64()},
	}
	for _, t := range totals {
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", rowIndex), t.label)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", rowIndex), t.value)
		rowIndex++
	}
	f.SetCellValue(sheetName, fmt.Sprintf("C%d", rowIndex), "Table")
	f.SetCellValue(sheetName, fmt.Sprintf("D%d", rowIndex), sess.TableRef)
	return f, nil
}
