package order

import (
	"fmt"

	"github.com/fairyhunter13/flash-sale-order-simulator/internal/broker"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/obs"
)

// Service is the publish side of the pipeline: it submits payment and manual
// cancellation requests as messages, never touching order state directly.
type Service struct {
	broker *broker.Broker
}

// NewService constructs the publish-side service.
func NewService(b *broker.Broker) *Service {
	return &Service{broker: b}
}

// Pay submits a payment message for the order.
func (s *Service) Pay(orderID string) error {
	if err := s.broker.Publish(QueuePayment, orderID); err != nil {
		return fmt.Errorf("publish payment for %s: %w", orderID, err)
	}
	obs.Logger.Info("payment_submitted", "order_id", orderID)
	return nil
}

// Cancel submits a manual-cancellation message for the order.
func (s *Service) Cancel(orderID string) error {
	if err := s.broker.Publish(QueueManualCancel, orderID); err != nil {
		return fmt.Errorf("publish cancellation for %s: %w", orderID, err)
	}
	obs.Logger.Info("cancellation_submitted", "order_id", orderID)
	return nil
}
