package orders

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-round-orders/internal/apperr"
)

// MaxItems bounds the size of one submission.
const MaxItems = 200

func validateID(kind, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.WithMetadata(apperr.CodeValidation, fmt.Sprintf("malformed %s id", kind), map[string]string{kind + "_id": id})
	}
	return nil
}

func validateUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperr.New(apperr.CodeUnauthenticated, "missing caller identity")
	}
	return nil
}

// normalizeItems checks the requested lines and returns them with product
// ids in canonical form. Malformed ids fail INVALID_PRODUCT_ID, everything
// else VALIDATION.
func normalizeItems(items []ItemInput) ([]ItemInput, error) {
	if len(items) > MaxItems {
		return nil, apperr.New(apperr.CodeValidation, fmt.Sprintf("too many items (max %d)", MaxItems))
	}
	var malformed []apperr.Detail
	seen := make(map[string]bool, len(items))
	out := make([]ItemInput, 0, len(items))
	for _, it := range items {
		id, err := uuid.Parse(strings.TrimSpace(it.ProductID))
		if err != nil {
			malformed = append(malformed, apperr.Detail{ProductID: it.ProductID, Reason: "malformed"})
			continue
		}
		pid := id.String()
		if seen[pid] {
			return nil, apperr.WithMetadata(apperr.CodeValidation, "duplicate product in items", map[string]string{"product_id": pid})
		}
		seen[pid] = true
		if it.Qty < 0 {
			return nil, apperr.WithMetadata(apperr.CodeValidation, "qty must be non-negative", map[string]string{"product_id": pid})
		}
		if it.UnitPrice != nil && *it.UnitPrice < 0 {
			return nil, apperr.WithMetadata(apperr.CodeValidation, "unit_price must be non-negative", map[string]string{"product_id": pid})
		}
		out = append(out, ItemInput{ProductID: pid, Qty: it.Qty, UnitPrice: it.UnitPrice})
	}
	if len(malformed) > 0 {
		return nil, apperr.WithDetails(apperr.CodeInvalidProductID, "malformed product id", malformed)
	}
	return out, nil
}

func totalRequested(items []ItemInput) int {
	n := 0
	for _, it := range items {
		n += it.Qty
	}
	return n
}
