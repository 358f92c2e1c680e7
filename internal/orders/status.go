package orders

// Status of an order row. Drafts may exist in storage but never count
// against stock.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
)

type RoundStatus string

const (
	RoundOpen   RoundStatus = "open"
	RoundClosed RoundStatus = "closed"
)

func (s RoundStatus) Valid() bool {
	return s == RoundOpen || s == RoundClosed
}
