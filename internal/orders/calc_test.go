package orders

import "testing"

func TestComputeTotals(t *testing.T) {
	prices := map[string]int64{"a": 15000, "b": 2500}

	qty, amount, err := ComputeTotals([]ItemQty{{"a", 2}, {"b", 0}, {"b", 3}}, prices)
	if err != nil {
		t.Fatalf("ComputeTotals: %v", err)
	}
	if qty != 5 || amount != 2*15000+3*2500 {
		t.Fatalf("got qty=%d amount=%d", qty, amount)
	}

	if _, _, err := ComputeTotals([]ItemQty{{"a", -1}}, prices); err == nil {
		t.Fatal("expected error for negative qty")
	}
	if _, _, err := ComputeTotals([]ItemQty{{"zzz", 1}}, prices); err == nil {
		t.Fatal("expected error for unpriced product")
	}
	// Zero lines never need a price.
	if _, _, err := ComputeTotals([]ItemQty{{"zzz", 0}}, prices); err != nil {
		t.Fatalf("zero line: %v", err)
	}
}

func TestMaxSelectable(t *testing.T) {
	tests := []struct {
		remaining, previous, want int
	}{
		{0, 6, 6},
		{4, 6, 10},
		{3, 0, 3},
		{-2, 1, 1},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := MaxSelectable(tt.remaining, tt.previous); got != tt.want {
			t.Errorf("MaxSelectable(%d,%d) = %d, want %d", tt.remaining, tt.previous, got, tt.want)
		}
	}
}

func TestRemaining(t *testing.T) {
	if got := Remaining(10, 6); got != 4 {
		t.Fatalf("got %d", got)
	}
	if got := Remaining(5, 7); got != 0 {
		t.Fatalf("over-committed should floor at 0, got %d", got)
	}
}
