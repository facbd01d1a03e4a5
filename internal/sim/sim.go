// Package sim drives the scripted flash-sale scenario against a running
// pipeline: concurrent buyers race for fixed stock, then one order is paid,
// one is manually cancelled, and the rest are left to time out.
package sim

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fairyhunter13/flash-sale-order-simulator/internal/broker"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/config"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/ledger"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/model"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/obs"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/order"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/seckill"
)

const drainTimeout = 5 * time.Second

// Simulator owns the scripted scenario.
type Simulator struct {
	cfg     config.Config
	seckill *seckill.Service
	orders  *order.Service
	store   *order.Store
	ledger  ledger.Ledger
	broker  *broker.Broker
}

// New constructs a Simulator over the running service's components.
func New(cfg config.Config, sk *seckill.Service, svc *order.Service,
	st *order.Store, led ledger.Ledger, b *broker.Broker) *Simulator {
	return &Simulator{cfg: cfg, seckill: sk, orders: svc, store: st, ledger: led, broker: b}
}

// Run executes the scenario and logs the final order and stock state.
func (s *Simulator) Run(ctx context.Context) error {
	productID := s.cfg.SimProductID
	if err := s.ledger.SetStock(ctx, productID, s.cfg.SimStock); err != nil {
		return fmt.Errorf("initialize stock: %w", err)
	}
	obs.Logger.Info("sim_start",
		"product_id", productID, "stock", s.cfg.SimStock, "buyers", s.cfg.SimBuyers)

	conns := s.connectBuyers(ctx)
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()

	// Phase 1: concurrent admission.
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.SimBuyers; i++ {
		buyerID := fmt.Sprintf("buyer-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := s.seckill.PlaceOrder(ctx, buyerID, productID)
			if err != nil {
				obs.Logger.Error("sim_place_order_failed", "buyer_id", buyerID, "error", err)
				return
			}
			obs.Logger.Info("sim_place_order_done", "buyer_id", buyerID, "decision", string(d))
		}()
	}
	wg.Wait()
	if !s.drain(ctx) {
		return fmt.Errorf("pipeline did not drain after admission")
	}
	s.printState(ctx, "after_admission")

	// Phase 2: pay the first pending order.
	if o, ok := s.store.FirstAwaitingPayment(); ok {
		obs.Logger.Info("sim_scenario_pay", "order_id", o.OrderID)
		if err := s.orders.Pay(o.OrderID); err != nil {
			return fmt.Errorf("submit payment: %w", err)
		}
		if !s.drain(ctx) {
			return fmt.Errorf("pipeline did not drain after payment")
		}
	}

	// Phase 3: manually cancel the next pending order.
	if o, ok := s.store.FirstAwaitingPayment(); ok {
		obs.Logger.Info("sim_scenario_cancel", "order_id", o.OrderID)
		if err := s.orders.Cancel(o.OrderID); err != nil {
			return fmt.Errorf("submit cancellation: %w", err)
		}
		if !s.drain(ctx) {
			return fmt.Errorf("pipeline did not drain after cancellation")
		}
	}

	// Phase 4: let the remaining deadlines fire.
	obs.Logger.Info("sim_waiting_for_timeouts", "payment_window", s.cfg.PaymentWindow.String())
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.PaymentWindow + time.Second):
	}
	if !s.drain(ctx) {
		return fmt.Errorf("pipeline did not drain after timeouts")
	}

	s.printState(ctx, "final")
	return nil
}

func (s *Simulator) drain(ctx context.Context) bool {
	dctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	return s.broker.DrainUntil(dctx)
}

// connectBuyers opens one websocket client per buyer against the local
// server so pushed notifications show up in the simulation log. Best-effort:
// a failed dial only means that buyer's notifications are dropped.
func (s *Simulator) connectBuyers(ctx context.Context) []*websocket.Conn {
	host := s.cfg.HTTPAddr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	} else if h, p, err := net.SplitHostPort(host); err == nil && h == "" {
		host = net.JoinHostPort("localhost", p)
	}
	url := "ws://" + host + "/ws"

	conns := make([]*websocket.Conn, 0, s.cfg.SimBuyers)
	for i := 0; i < s.cfg.SimBuyers; i++ {
		buyerID := fmt.Sprintf("buyer-%d", i)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			obs.Logger.Warn("sim_ws_dial_failed", "buyer_id", buyerID, "url", url, "error", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte("register:"+buyerID)); err != nil {
			obs.Logger.Warn("sim_ws_register_failed", "buyer_id", buyerID, "error", err)
			_ = conn.Close()
			continue
		}
		conns = append(conns, conn)
		go func() {
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					return
				}
				obs.Logger.Info("buyer_notification", "buyer_id", buyerID, "text", string(raw))
			}
		}()
	}
	return conns
}

// printState logs every order plus the product's remaining stock.
func (s *Simulator) printState(ctx context.Context, stage string) {
	for _, o := range s.store.Snapshot() {
		obs.Logger.Info("sim_order_state", "stage", stage, "order", o.String())
	}
	counts := s.store.CountByStatus()
	stock, err := s.ledger.Stock(ctx, s.cfg.SimProductID)
	if err != nil {
		obs.Logger.Error("sim_stock_read_failed", "error", err)
		return
	}
	obs.Logger.Info("sim_stock_state",
		"stage", stage,
		"product_id", s.cfg.SimProductID,
		"stock", stock,
		"awaiting_payment", counts[model.StatusAwaitingPayment],
		"paid", counts[model.StatusPaid],
		"cancelled", counts[model.StatusCancelled],
		"timeout_cancelled", counts[model.StatusTimeoutCancelled],
	)
}
