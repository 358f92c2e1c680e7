package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderSubmitted = "OrderSubmitted"
	EventOrderRevised   = "OrderRevised"
	EventPaymentUpdated = "PaymentUpdated"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "round-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload tipe per event ----

type OrderSubmittedPayload struct {
	OrderID     string      `json:"order_id"`
	RoundID     string      `json:"round_id"`
	UserID      string      `json:"user_id"`
	Items       []OrderItem `json:"items"`
	TotalQty    int         `json:"total_qty"`
	TotalAmount int64       `json:"total_amount"`
}

type OrderRevisedPayload struct {
	OrderID       string      `json:"order_id"`
	RoundID       string      `json:"round_id"`
	UserID        string      `json:"user_id"`
	PreviousItems []OrderItem `json:"previous_items"`
	Items         []OrderItem `json:"items"`
	TotalQty      int         `json:"total_qty"`
	TotalAmount   int64       `json:"total_amount"`
}

type PaymentUpdatedPayload struct {
	OrderID   string     `json:"order_id"`
	Status    string     `json:"payment_status"`
	Amount    *int64     `json:"payment_amount,omitempty"`
	Note      *string    `json:"payment_note,omitempty"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	UpdatedBy string     `json:"updated_by"`
}
