package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/flash-sale-order-simulator/internal/broker"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/config"
	httpopenapi "github.com/fairyhunter13/flash-sale-order-simulator/internal/http/openapi"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/ledger"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/model"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/notify"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/obs"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/order"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/seckill"
)

// App bundles the HTTP handlers with their collaborators.
type App struct {
	Cfg     config.Config
	Store   *order.Store
	Ledger  ledger.Ledger
	Broker  *broker.Broker
	Seckill *seckill.Service
	Orders  *order.Service
	Hub     *notify.Hub

	closing bool
	started time.Time
}

// NewApp constructs the application handler set.
func NewApp(cfg config.Config, st *order.Store, led ledger.Ledger, b *broker.Broker,
	sk *seckill.Service, svc *order.Service, hub *notify.Hub) *App {
	return &App{
		Cfg:     cfg,
		Store:   st,
		Ledger:  led,
		Broker:  b,
		Seckill: sk,
		Orders:  svc,
		Hub:     hub,
		started: time.Now(),
	}
}

// StartShutdown stops accepting new work.
func (a *App) StartShutdown() {
	a.closing = true
	a.Broker.CloseIntake()
}

type seckillRequest struct {
	BuyerID   string `json:"buyer_id"`
	ProductID string `json:"product_id"`
}

type seckillResponse struct {
	Decision  model.Decision `json:"decision"`
	BuyerID   string         `json:"buyer_id"`
	ProductID string         `json:"product_id"`
	RequestID string         `json:"request_id"`
}

func (a *App) postSeckillHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	if a.closing || a.Broker.IsShuttingDown() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return
	}
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected application/json")
		return
	}
	var req seckillRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.BuyerID == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "buyer_id is required")
		return
	}
	if req.ProductID == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "product_id is required")
		return
	}

	d, err := a.Seckill.PlaceOrder(r.Context(), req.BuyerID, req.ProductID)
	if err != nil {
		obs.Logger.Error("seckill_request_failed",
			"buyer_id", req.BuyerID, "product_id", req.ProductID, "error", err)
		WriteJSONError(w, http.StatusServiceUnavailable, "admission_unavailable", "")
		return
	}
	resp := seckillResponse{
		Decision:  d,
		BuyerID:   req.BuyerID,
		ProductID: req.ProductID,
		RequestID: RequestIDFromContext(r.Context()),
	}
	w.Header().Set("Content-Type", "application/json")
	if d == model.Admitted {
		w.WriteHeader(http.StatusAccepted)
	} else {
		w.WriteHeader(http.StatusConflict)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// ordersHandler serves GET /orders/{id}, POST /orders/{id}/pay, and
// POST /orders/{id}/cancel.
func (a *App) ordersHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/orders/")
	if rest == "" || rest == r.URL.Path {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	parts := strings.SplitN(rest, "/", 2)
	orderID := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		a.getOrder(w, orderID)
	case action == "pay" && r.Method == http.MethodPost:
		a.submitOrderAction(w, orderID, a.Orders.Pay)
	case action == "cancel" && r.Method == http.MethodPost:
		a.submitOrderAction(w, orderID, a.Orders.Cancel)
	case action == "":
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	default:
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
	}
}

func (a *App) getOrder(w http.ResponseWriter, orderID string) {
	o, ok := a.Store.Get(orderID)
	if !ok {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(o)
}

// submitOrderAction publishes a pay or cancel message. The outcome is decided
// asynchronously by the pipeline, so the response is only an acknowledgment
// of submission.
func (a *App) submitOrderAction(w http.ResponseWriter, orderID string, submit func(string) error) {
	if a.closing || a.Broker.IsShuttingDown() {
		WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
		return
	}
	if _, ok := a.Store.Get(orderID); !ok {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	if err := submit(orderID); err != nil {
		WriteJSONError(w, http.StatusServiceUnavailable, "submit_failed", "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted", "order_id": orderID})
}

type stockResponse struct {
	ProductID       string `json:"product_id"`
	Stock           int64  `json:"stock"`
	LikelyExhausted bool   `json:"likely_exhausted"`
}

func (a *App) getStockHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	productID := strings.TrimPrefix(r.URL.Path, "/stock/")
	if productID == "" || productID == r.URL.Path {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	n, err := a.Ledger.Stock(r.Context(), productID)
	if err != nil {
		WriteJSONError(w, http.StatusServiceUnavailable, "ledger_unavailable", "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stockResponse{
		ProductID:       productID,
		Stock:           n,
		LikelyExhausted: a.Ledger.IsLikelyExhausted(productID),
	})
}

func (a *App) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (a *App) metricsHandler(w http.ResponseWriter, _ *http.Request) {
	counts := a.Store.CountByStatus()
	statuses := make(map[string]int, len(counts))
	for s, n := range counts {
		statuses[string(s)] = n
	}
	m := map[string]any{
		"orders_by_status": statuses,
		"queue_depths":     a.Broker.Depths(),
		"uptime_sec":       time.Since(a.started).Seconds(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m)
}

func (a *App) openapiHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}
