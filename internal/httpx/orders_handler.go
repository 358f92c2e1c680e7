package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-round-orders/internal/apperr"
	"github.com/ariefcatur/go-round-orders/internal/orders"
)

// Publisher hands a domain event to the broker. Failures are logged and
// never change the response: the order is already committed.
type Publisher interface {
	Emit(ctx context.Context, topic, eventType, orderID string, payload any) error
}

// IdempotencyStore remembers which order a submit Idempotency-Key created.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, key string) (string, bool, error)
	Remember(ctx context.Context, userID, key, orderID string) error
}

type OrdersHandler struct {
	Service *orders.Service
	Events  Publisher        // optional
	Idem    IdempotencyStore // optional
	Logger  *zap.Logger
}

type itemsReq struct {
	Items []orders.ItemInput `json:"items"`
}

type submitResp struct {
	OrderID     string `json:"order_id"`
	TotalQty    int    `json:"total_qty"`
	TotalAmount int64  `json:"total_amount"`
	Idempotent  bool   `json:"idempotent"`
}

type resubmitResp struct {
	Success     bool  `json:"success"`
	TotalQty    int   `json:"total_qty"`
	TotalAmount int64 `json:"total_amount"`
	Changed     bool  `json:"changed"`
}

type orderResp struct {
	OrderID     string             `json:"order_id"`
	RoundID     string             `json:"round_id"`
	Status      orders.Status      `json:"status"`
	TotalQty    int                `json:"total_qty"`
	TotalAmount int64              `json:"total_amount"`
	Items       []orders.OrderItem `json:"items"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func toOrderResp(v orders.OrderView) orderResp {
	items := v.Items
	if items == nil {
		items = []orders.OrderItem{}
	}
	return orderResp{
		OrderID:     v.Order.ID,
		RoundID:     v.Order.RoundID,
		Status:      v.Order.Status,
		TotalQty:    v.Order.TotalQty,
		TotalAmount: v.Order.TotalAmount,
		Items:       items,
		CreatedAt:   v.Order.CreatedAt,
		UpdatedAt:   v.Order.UpdatedAt,
	}
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/rounds/{roundID}/availability", h.availability)
	r.Get("/rounds/{roundID}/orders/mine", h.myOrder)
	r.Post("/rounds/{roundID}/orders", h.submit)
	r.Get("/rounds/{roundID}/product-totals", h.productTotals)
	r.Get("/rounds/{roundID}/order-items", h.roundOrderItems)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Put("/orders/{orderID}/items", h.resubmit)
}

func (h *OrdersHandler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *OrdersHandler) availability(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.ListAvailability(r.Context(), chi.URLParam(r, "roundID"), principal(r).UserID)
	if err != nil {
		writeError(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *OrdersHandler) myOrder(w http.ResponseWriter, r *http.Request) {
	v, err := h.Service.MyOrder(r.Context(), chi.URLParam(r, "roundID"), principal(r).UserID)
	if err != nil {
		writeError(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(v))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	v, err := h.Service.GetOrder(r.Context(), principal(r).UserID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(v))
}

func (h *OrdersHandler) productTotals(w http.ResponseWriter, r *http.Request) {
	if !principal(r).IsOrganizer() {
		writeError(w, r, h.log(), apperr.New(apperr.CodeForbidden, "organizer role required"))
		return
	}
	totals, err := h.Service.ProductTotals(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		writeError(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (h *OrdersHandler) roundOrderItems(w http.ResponseWriter, r *http.Request) {
	if !principal(r).IsOrganizer() {
		writeError(w, r, h.log(), apperr.New(apperr.CodeForbidden, "organizer role required"))
		return
	}
	rows, err := h.Service.RoundOrderItems(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		writeError(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *OrdersHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req itemsReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log(), err)
		return
	}
	ctx := r.Context()
	userID := principal(r).UserID
	roundID := chi.URLParam(r, "roundID")

	// Fast path: a retried submit with the same key answers with the order
	// it created. The database remains the source of truth.
	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idemKey != "" && h.Idem != nil {
		if orderID, ok, err := h.Idem.Lookup(ctx, userID, idemKey); err != nil {
			h.log().Warn("idempotency lookup failed", zap.Error(err))
		} else if ok {
			if v, err := h.Service.GetOrder(ctx, userID, orderID); err == nil && v.Order.RoundID == roundID {
				writeJSON(w, http.StatusCreated, submitResp{
					OrderID:     v.Order.ID,
					TotalQty:    v.Order.TotalQty,
					TotalAmount: v.Order.TotalAmount,
					Idempotent:  true,
				})
				return
			}
		}
	}

	res, err := h.Service.Submit(ctx, roundID, userID, req.Items)
	if err != nil {
		writeError(w, r, h.log(), err)
		return
	}
	if idemKey != "" && h.Idem != nil {
		if err := h.Idem.Remember(ctx, userID, idemKey, res.OrderID); err != nil {
			h.log().Warn("idempotency remember failed", zap.String("order_id", res.OrderID), zap.Error(err))
		}
	}
	h.emit(ctx, orders.TopicOrderSubmitted, orders.EventOrderSubmitted, res.OrderID, orders.OrderSubmittedPayload{
		OrderID:     res.OrderID,
		RoundID:     res.RoundID,
		UserID:      userID,
		Items:       res.Items,
		TotalQty:    res.TotalQty,
		TotalAmount: res.TotalAmount,
	})
	writeJSON(w, http.StatusCreated, submitResp{OrderID: res.OrderID, TotalQty: res.TotalQty, TotalAmount: res.TotalAmount})
}

func (h *OrdersHandler) resubmit(w http.ResponseWriter, r *http.Request) {
	var req itemsReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log(), err)
		return
	}
	ctx := r.Context()
	userID := principal(r).UserID

	res, err := h.Service.Resubmit(ctx, userID, chi.URLParam(r, "orderID"), req.Items)
	if err != nil {
		writeError(w, r, h.log(), err)
		return
	}
	if res.Changed {
		h.emit(ctx, orders.TopicOrderRevised, orders.EventOrderRevised, res.OrderID, orders.OrderRevisedPayload{
			OrderID:       res.OrderID,
			RoundID:       res.RoundID,
			UserID:        userID,
			PreviousItems: res.PreviousItems,
			Items:         res.Items,
			TotalQty:      res.TotalQty,
			TotalAmount:   res.TotalAmount,
		})
	}
	writeJSON(w, http.StatusOK, resubmitResp{Success: true, TotalQty: res.TotalQty, TotalAmount: res.TotalAmount, Changed: res.Changed})
}

func (h *OrdersHandler) emit(ctx context.Context, topic, eventType, orderID string, payload any) {
	emitEvent(ctx, h.Events, h.log(), topic, eventType, orderID, payload)
}

func emitEvent(ctx context.Context, p Publisher, logger *zap.Logger, topic, eventType, orderID string, payload any) {
	if p == nil {
		return
	}
	if err := p.Emit(ctx, topic, eventType, orderID, payload); err != nil {
		logger.Warn("event not published",
			zap.String("topic", topic),
			zap.String("order_id", orderID),
			zap.Error(err))
	}
}
