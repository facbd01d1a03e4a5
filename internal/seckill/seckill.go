// Package seckill implements admission control for flash-sale requests: the
// exhaustion fast path, the atomic stock decrement, and the hand-off into the
// order pipeline.
package seckill

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/flash-sale-order-simulator/internal/broker"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/ledger"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/model"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/notify"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/obs"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/order"
)

// Service decides, per request, whether a buyer may proceed to order
// creation. Safe for arbitrary concurrent callers: all shared mutation sits
// inside the ledger's atomic decrement.
type Service struct {
	ledger   ledger.Ledger
	broker   *broker.Broker
	notifier notify.Notifier
}

// New constructs the admission service.
func New(led ledger.Ledger, b *broker.Broker, n notify.Notifier) *Service {
	return &Service{ledger: led, broker: b, notifier: n}
}

// Admit runs the two-step admission check: the exhaustion fast path first,
// then the atomic decrement. The first caller to observe a failed decrement
// marks the product exhausted, so later callers never reach the ledger.
func (s *Service) Admit(ctx context.Context, buyerID, productID string) (model.Decision, error) {
	if s.ledger.IsLikelyExhausted(productID) {
		obs.Logger.Info("admission_fast_rejected", "buyer_id", buyerID, "product_id", productID)
		return model.FastRejected, nil
	}
	ok, err := s.ledger.TryDecrement(ctx, productID)
	if err != nil {
		// A ledger outage denies admission rather than granting stock; the
		// buyer can safely retry.
		return model.StockRejected, fmt.Errorf("try decrement %s: %w", productID, err)
	}
	if !ok {
		s.ledger.MarkExhausted(productID)
		obs.Logger.Info("admission_stock_rejected", "buyer_id", buyerID, "product_id", productID)
		return model.StockRejected, nil
	}
	obs.Logger.Info("admission_granted", "buyer_id", buyerID, "product_id", productID)
	return model.Admitted, nil
}

// PlaceOrder admits the buyer and, on success, hands the request to the
// order pipeline. If the publish fails, the unit reserved by Admit is
// returned to the ledger so no stock is stranded.
func (s *Service) PlaceOrder(ctx context.Context, buyerID, productID string) (model.Decision, error) {
	d, err := s.Admit(ctx, buyerID, productID)
	if err != nil {
		return d, err
	}
	if d != model.Admitted {
		s.notifier.Send(buyerID, fmt.Sprintf("Sorry, product %s is sold out.", productID))
		return d, nil
	}
	if perr := s.broker.Publish(order.QueueOrderCreate, model.EncodeCreate(buyerID, productID)); perr != nil {
		if rerr := s.ledger.Increment(ctx, productID); rerr != nil {
			obs.Logger.Error("compensation_failed",
				"buyer_id", buyerID, "product_id", productID, "error", rerr)
		} else {
			obs.Logger.Warn("admission_compensated",
				"buyer_id", buyerID, "product_id", productID, "error", perr)
		}
		return model.StockRejected, fmt.Errorf("publish order-create: %w", perr)
	}
	return model.Admitted, nil
}
