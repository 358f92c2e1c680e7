package orders

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ariefcatur/go-round-orders/internal/apperr"
)

// ListAvailability returns the visible products of a round with the stock
// still free. When userID has a submitted order in the round, each row also
// carries that user's previous qty and the most they may select on revision.
func (s *Service) ListAvailability(ctx context.Context, roundID, userID string) ([]Availability, error) {
	ctx, span := s.tracer.Start(ctx, "orders.ListAvailability", trace.WithAttributes(attribute.String("round.id", roundID)))
	defer span.End()

	if err := s.requireRound(ctx, roundID); err != nil {
		return nil, err
	}
	rows, err := s.store.ListAvailability(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	if userID == "" {
		return rows, nil
	}

	own, err := s.store.FindSubmittedOrder(ctx, roundID, userID)
	if errors.Is(err, ErrNotFound) {
		return rows, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find own order: %w", err)
	}
	held := make(map[string]int, len(own.Items))
	for _, it := range own.Items {
		held[it.ProductID] = it.Qty
	}
	for i := range rows {
		prev := held[rows[i].ProductID]
		maxSel := MaxSelectable(rows[i].StockRemaining, prev)
		rows[i].PreviousQty = &prev
		rows[i].MaxSelectable = &maxSel
	}
	return rows, nil
}

// MyOrder returns the caller's submitted order in the round.
func (s *Service) MyOrder(ctx context.Context, roundID, userID string) (OrderView, error) {
	if err := validateUser(userID); err != nil {
		return OrderView{}, err
	}
	if err := validateID("round", roundID); err != nil {
		return OrderView{}, err
	}
	v, err := s.store.FindSubmittedOrder(ctx, roundID, userID)
	if err != nil {
		return OrderView{}, notFoundOr(err, "no submitted order in round", "find own order")
	}
	return v, nil
}

// GetOrder returns an order owned by userID. Foreign orders are NOT_FOUND.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (OrderView, error) {
	if err := validateID("order", orderID); err != nil {
		return OrderView{}, err
	}
	v, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return OrderView{}, notFoundOr(err, "order not found", "get order")
	}
	if v.Order.UserID != userID {
		return OrderView{}, apperr.New(apperr.CodeNotFound, "order not found")
	}
	return v, nil
}

// ProductTotals aggregates committed qty and amount per product of a round.
func (s *Service) ProductTotals(ctx context.Context, roundID string) ([]ProductTotal, error) {
	if err := s.requireRound(ctx, roundID); err != nil {
		return nil, err
	}
	totals, err := s.store.ProductTotals(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("product totals: %w", err)
	}
	return totals, nil
}

// RoundOrderItems lists the submitted order lines of a round, grouped by
// order.
func (s *Service) RoundOrderItems(ctx context.Context, roundID string) ([]OrderItemRow, error) {
	if err := s.requireRound(ctx, roundID); err != nil {
		return nil, err
	}
	rows, err := s.store.RoundOrderItems(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("round order items: %w", err)
	}
	return rows, nil
}

func (s *Service) requireRound(ctx context.Context, roundID string) error {
	if err := validateID("round", roundID); err != nil {
		return err
	}
	if _, err := s.store.GetRound(ctx, roundID); err != nil {
		return notFoundOr(err, "round not found", "get round")
	}
	return nil
}
