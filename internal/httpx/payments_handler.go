package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-round-orders/internal/apperr"
	"github.com/ariefcatur/go-round-orders/internal/audit"
	"github.com/ariefcatur/go-round-orders/internal/auth"
	"github.com/ariefcatur/go-round-orders/internal/orders"
	"github.com/ariefcatur/go-round-orders/internal/payments"
)

// HistoryReader serves an order's audit trail.
type HistoryReader interface {
	History(ctx context.Context, caller auth.Principal, orderID string) ([]audit.Entry, error)
}

type PaymentsHandler struct {
	Ledger  *payments.Ledger
	History HistoryReader // optional
	Events  Publisher     // optional
	Logger  *zap.Logger
}

type batchReq struct {
	Items []payments.BatchItem `json:"items"`
}

type batchResp struct {
	RoundID string                 `json:"round_id"`
	Results []payments.BatchResult `json:"results"`
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Get("/orders/{orderID}/payment", h.get)
	r.Put("/orders/{orderID}/payment", h.set)
	r.Get("/orders/{orderID}/history", h.history)
	r.Get("/rounds/{roundID}/payments", h.round)
	r.Post("/rounds/{roundID}/payments:batch", h.batch)
}

func (h *PaymentsHandler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *PaymentsHandler) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Ledger.Get(r.Context(), principal(r), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *PaymentsHandler) set(w http.ResponseWriter, r *http.Request) {
	var u payments.Update
	if err := decodeJSON(w, r, &u); err != nil {
		writeError(w, r, h.log(), err)
		return
	}
	caller := principal(r)
	rec, err := h.Ledger.SetPayment(r.Context(), caller, chi.URLParam(r, "orderID"), u)
	if err != nil {
		writeError(w, r, h.log(), err)
		return
	}
	h.emit(r.Context(), caller, rec)
	writeJSON(w, http.StatusOK, rec)
}

func (h *PaymentsHandler) round(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.Ledger.Round(r.Context(), principal(r), chi.URLParam(r, "roundID"))
	if err != nil {
		writeError(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}

func (h *PaymentsHandler) batch(w http.ResponseWriter, r *http.Request) {
	var req batchReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log(), err)
		return
	}
	caller := principal(r)
	roundID := chi.URLParam(r, "roundID")
	results, err := h.Ledger.Batch(r.Context(), caller, roundID, req.Items)
	if err != nil {
		writeError(w, r, h.log(), err)
		return
	}
	for _, res := range results {
		if res.Record != nil {
			h.emit(r.Context(), caller, *res.Record)
		}
	}
	writeJSON(w, http.StatusOK, batchResp{RoundID: roundID, Results: results})
}

func (h *PaymentsHandler) history(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		if !principal(r).IsOrganizer() {
			writeError(w, r, h.log(), apperr.New(apperr.CodeForbidden, "organizer role required"))
			return
		}
		writeJSON(w, http.StatusOK, []audit.Entry{})
		return
	}
	entries, err := h.History.History(r.Context(), principal(r), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *PaymentsHandler) emit(ctx context.Context, caller auth.Principal, rec payments.Record) {
	emitEvent(ctx, h.Events, h.log(), orders.TopicPaymentUpdated, orders.EventPaymentUpdated, rec.OrderID, orders.PaymentUpdatedPayload{
		OrderID:   rec.OrderID,
		Status:    string(rec.Status),
		Amount:    rec.Amount,
		Note:      rec.Note,
		PaidAt:    rec.PaidAt,
		UpdatedBy: caller.UserID,
	})
}
