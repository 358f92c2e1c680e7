package orders

import (
	"errors"
	"strings"
	"testing"

	"github.com/ariefcatur/go-round-orders/internal/apperr"
)

const (
	pidA = "0b6f6c8e-3a52-4b7e-9d0f-1c2a3b4c5d6e"
	pidB = "1d2e3f40-5a6b-4c7d-8e9f-0a1b2c3d4e5f"
)

func TestNormalizeItems_CanonicalizesIDs(t *testing.T) {
	out, err := normalizeItems([]ItemInput{{ProductID: " " + strings.ToUpper(pidA) + " ", Qty: 2}})
	if err != nil {
		t.Fatalf("normalizeItems: %v", err)
	}
	if out[0].ProductID != pidA {
		t.Fatalf("id = %q", out[0].ProductID)
	}
}

func TestNormalizeItems_Rejects(t *testing.T) {
	neg := int64(-1)
	tests := []struct {
		name  string
		items []ItemInput
		code  apperr.Code
	}{
		{"malformed id", []ItemInput{{ProductID: "nope", Qty: 1}}, apperr.CodeInvalidProductID},
		{"duplicate", []ItemInput{{ProductID: pidA, Qty: 1}, {ProductID: pidA, Qty: 2}}, apperr.CodeValidation},
		{"negative qty", []ItemInput{{ProductID: pidA, Qty: -1}}, apperr.CodeValidation},
		{"negative price", []ItemInput{{ProductID: pidB, Qty: 1, UnitPrice: &neg}}, apperr.CodeValidation},
		{"too many", make([]ItemInput, MaxItems+1), apperr.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := normalizeItems(tt.items)
			if got := apperr.CodeOf(err); got != tt.code {
				t.Fatalf("code = %q, want %q (err=%v)", got, tt.code, err)
			}
		})
	}
}

func TestNormalizeItems_ReportsEveryMalformedID(t *testing.T) {
	_, err := normalizeItems([]ItemInput{{ProductID: "x", Qty: 1}, {ProductID: pidA, Qty: 1}, {ProductID: "y", Qty: 1}})
	ae, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected *apperr.Error, got %T", err)
	}
	if ids := ae.ProductIDs(); len(ids) != 2 || ids[0] != "x" || ids[1] != "y" {
		t.Fatalf("ids = %v", ids)
	}
}

func TestValidateUser(t *testing.T) {
	if err := validateUser("  "); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("err = %v", err)
	}
	if err := validateUser("u-1"); err != nil {
		t.Fatalf("err = %v", err)
	}
}
