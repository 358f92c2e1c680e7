package orders

import "fmt"

// ItemQty is a product/quantity pair.
type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// ComputeTotals sums quantities and amounts over items using priceMap.
// Every product with qty > 0 must be present in priceMap.
func ComputeTotals(items []ItemQty, priceMap map[string]int64) (totalQty int, totalAmount int64, err error) {
	for _, it := range items {
		if it.Qty < 0 {
			return 0, 0, fmt.Errorf("negative qty for product %s", it.ProductID)
		}
		if it.Qty == 0 {
			continue
		}
		price, ok := priceMap[it.ProductID]
		if !ok {
			return 0, 0, fmt.Errorf("no price for product %s", it.ProductID)
		}
		totalQty += it.Qty
		totalAmount += price * int64(it.Qty)
	}
	return totalQty, totalAmount, nil
}

// MaxSelectable is the most a participant may hold of one product: what is
// still free plus what they already hold themselves.
func MaxSelectable(remaining, previousQty int) int {
	if remaining < 0 {
		remaining = 0
	}
	if previousQty < 0 {
		previousQty = 0
	}
	return remaining + previousQty
}

// Remaining is stock_limit minus committed, floored at zero.
func Remaining(stockLimit, committed int) int {
	if r := stockLimit - committed; r > 0 {
		return r
	}
	return 0
}

// itemTotals is ComputeTotals over already-priced order items.
func itemTotals(items []OrderItem) (int, int64) {
	var qty int
	var amount int64
	for _, it := range items {
		qty += it.Qty
		amount += it.UnitPrice * int64(it.Qty)
	}
	return qty, amount
}
