// Package model defines domain types shared across the order pipeline.
package model

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusAwaitingPayment  Status = "AwaitingPayment"
	StatusPaid             Status = "Paid"
	StatusCancelled        Status = "Cancelled"
	StatusTimeoutCancelled Status = "TimeoutCancelled"
)

// Terminal reports whether no further transitions are defined from s.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled || s == StatusTimeoutCancelled
}

// Order is one buyer's claim on one unit of product stock.
type Order struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	BuyerID   string `json:"buyer_id"`
	Status    Status `json:"status"`
}

func (o Order) String() string {
	return fmt.Sprintf("Order{orderId=%s, productId=%s, buyerId=%s, status=%s}",
		o.OrderID, o.ProductID, o.BuyerID, o.Status)
}

// Decision is the outcome of admission control for a single request.
type Decision string

const (
	// Admitted means a stock unit was reserved and an order will be created.
	Admitted Decision = "Admitted"
	// FastRejected means the exhaustion filter rejected the request before
	// any ledger I/O happened.
	FastRejected Decision = "FastRejected"
	// StockRejected means the atomic decrement found no stock left.
	StockRejected Decision = "StockRejected"
)

// EncodeCreate builds the order-create queue payload.
func EncodeCreate(buyerID, productID string) string {
	return buyerID + "," + productID
}

// DecodeCreate splits an order-create payload back into its parts.
func DecodeCreate(payload string) (buyerID, productID string, err error) {
	parts := strings.SplitN(payload, ",", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed order-create payload %q", payload)
	}
	return parts[0], parts[1], nil
}
