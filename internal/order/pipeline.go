package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fairyhunter13/flash-sale-order-simulator/internal/broker"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/config"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/ledger"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/model"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/notify"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/obs"
)

// Queue names of the pipeline topology.
const (
	QueueOrderCreate       = "order-create"
	QueuePayment           = "payment"
	QueueManualCancel      = "manual-cancel"
	QueueTimeoutDelay      = "timeout-delay"
	QueueTimeoutDeadLetter = "timeout-dead-letter"
)

// DeclareTopology registers the pipeline queues on the broker. The delay
// queue dead-letters into the timeout queue, which is what turns a
// per-message TTL into a one-shot deadline.
func DeclareTopology(b *broker.Broker) {
	b.DeclareQueue(QueueOrderCreate)
	b.DeclareQueue(QueuePayment)
	b.DeclareQueue(QueueManualCancel)
	b.DeclareDelayQueue(QueueTimeoutDelay, QueueTimeoutDeadLetter)
	b.DeclareQueue(QueueTimeoutDeadLetter)
}

// Pipeline wires the four message-driven handlers to their queues. Handlers
// communicate only through the broker and the shared store/ledger; resolution
// races between them are settled by the store's guarded transitions.
type Pipeline struct {
	cfg      config.Config
	broker   *broker.Broker
	store    *Store
	ledger   ledger.Ledger
	notifier notify.Notifier
}

// NewPipeline constructs the pipeline over its collaborators.
func NewPipeline(cfg config.Config, b *broker.Broker, st *Store, led ledger.Ledger, n notify.Notifier) *Pipeline {
	return &Pipeline{cfg: cfg, broker: b, store: st, ledger: led, notifier: n}
}

// Start launches the consumers. Each handler type gets ConsumersPerQueue
// goroutines; messages within one consumer are processed one at a time.
func (p *Pipeline) Start(ctx context.Context) {
	n := p.cfg.ConsumersPerQueue
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		go p.consume(ctx, QueueOrderCreate, p.handleCreate)
		go p.consume(ctx, QueuePayment, p.handlePayment)
		go p.consume(ctx, QueueManualCancel, p.handleCancel)
		go p.consume(ctx, QueueTimeoutDeadLetter, p.handleTimeout)
	}
}

func (p *Pipeline) consume(ctx context.Context, queueName string, h broker.Handler) {
	obs.Logger.Info("consumer_started", "queue", queueName)
	err := p.broker.Consume(ctx, queueName, h)
	if err != nil && !errors.Is(err, context.Canceled) {
		obs.Logger.Error("consumer_stopped", "queue", queueName, "error", err)
		return
	}
	obs.Logger.Info("consumer_stopped", "queue", queueName)
}

// handleCreate turns an admitted request into an AwaitingPayment order and
// arms its payment deadline.
func (p *Pipeline) handleCreate(ctx context.Context, msg broker.Message) error {
	buyerID, productID, err := model.DecodeCreate(msg.Body)
	if err != nil {
		// Poison message; redelivery cannot fix it.
		obs.Logger.Error("order_create_malformed", "message_id", msg.ID, "error", err)
		return nil
	}
	orderID := uuid.NewString()[:8]
	obs.Logger.Info("order_create_received", "order_id", orderID, "buyer_id", buyerID, "product_id", productID)

	if err := p.store.Create(model.Order{OrderID: orderID, ProductID: productID, BuyerID: buyerID}); err != nil {
		// Admission already reserved a unit for this request; hand it back
		// before reporting failure so the unit is not stranded.
		if rerr := p.ledger.Increment(ctx, productID); rerr != nil {
			obs.Logger.Error("stock_restore_failed", "order_id", orderID, "product_id", productID, "error", rerr)
		}
		obs.Logger.Warn("order_create_failed", "order_id", orderID, "buyer_id", buyerID, "error", err)
		p.notifier.Send(buyerID, "Sorry, your order could not be created.")
		return nil
	}

	if err := p.broker.PublishWithTTL(QueueTimeoutDelay, orderID, p.cfg.PaymentWindow); err != nil {
		// The order exists but has no armed deadline; it can only be
		// resolved by payment or manual cancellation now.
		obs.Logger.Error("deadline_arm_failed", "order_id", orderID, "error", err)
	}

	obs.Logger.Info("order_created", "order_id", orderID, "buyer_id", buyerID,
		"product_id", productID, "payment_window", p.cfg.PaymentWindow.String())
	p.notifier.Send(buyerID, fmt.Sprintf("Order placed! Your order id is %s; please pay within %s.",
		orderID, p.cfg.PaymentWindow))
	return nil
}

// handlePayment resolves an order to Paid. The transition is guarded: a
// payment arriving after cancellation or timeout is a logged no-op, never an
// overwrite of a terminal state.
func (p *Pipeline) handlePayment(_ context.Context, msg broker.Message) error {
	orderID := msg.Body
	ok, err := p.store.Transition(orderID, model.StatusAwaitingPayment, model.StatusPaid)
	if err != nil {
		obs.Logger.Warn("payment_unknown_order", "order_id", orderID)
		return nil
	}
	if !ok {
		o, _ := p.store.Get(orderID)
		obs.Logger.Warn("payment_ignored", "order_id", orderID, "status", string(o.Status))
		return nil
	}
	o, _ := p.store.Get(orderID)
	obs.Logger.Info("order_paid", "order_id", orderID, "buyer_id", o.BuyerID)
	p.notifier.Send(o.BuyerID, fmt.Sprintf("Your order %s has been paid.", orderID))
	return nil
}

// handleCancel resolves an order to Cancelled and restores its stock unit.
func (p *Pipeline) handleCancel(ctx context.Context, msg broker.Message) error {
	return p.resolve(ctx, msg.Body, model.StatusCancelled,
		"order_cancelled", "Your order %s has been cancelled.")
}

// handleTimeout consumes fired deadlines. The deadline always fires; whether
// it matters is decided here, by re-checking the order's current status.
func (p *Pipeline) handleTimeout(ctx context.Context, msg broker.Message) error {
	return p.resolve(ctx, msg.Body, model.StatusTimeoutCancelled,
		"order_timeout_cancelled", "Your order %s was cancelled because it was not paid in time.")
}

// resolve applies a guarded AwaitingPayment -> terminal transition and, when
// it wins, restores one stock unit and notifies the buyer.
func (p *Pipeline) resolve(ctx context.Context, orderID string, to model.Status, event, textFormat string) error {
	ok, err := p.store.Transition(orderID, model.StatusAwaitingPayment, to)
	if err != nil {
		obs.Logger.Warn("resolution_unknown_order", "order_id", orderID, "target_status", string(to))
		return nil
	}
	if !ok {
		o, _ := p.store.Get(orderID)
		obs.Logger.Info("resolution_ignored", "order_id", orderID,
			"target_status", string(to), "status", string(o.Status))
		return nil
	}
	o, _ := p.store.Get(orderID)
	if rerr := p.ledger.Increment(ctx, o.ProductID); rerr != nil {
		// The transition already landed; losing the restore here means a
		// leaked unit, so log it loudly rather than retrying into a no-op.
		obs.Logger.Error("stock_restore_failed", "order_id", orderID, "product_id", o.ProductID, "error", rerr)
	}
	obs.Logger.Info(event, "order_id", orderID, "buyer_id", o.BuyerID, "product_id", o.ProductID)
	p.notifier.Send(o.BuyerID, fmt.Sprintf(textFormat, orderID))
	return nil
}
