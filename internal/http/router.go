package httpapi

import (
	"expvar"
	"net/http"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/seckill", app.postSeckillHandler)
	mux.HandleFunc("/orders/", app.ordersHandler)
	mux.HandleFunc("/stock/", app.getStockHandler)
	mux.HandleFunc("/healthz", app.healthHandler)
	mux.HandleFunc("/openapi.yaml", app.openapiHandler)
	mux.HandleFunc("/docs", app.docsHandler)
	mux.HandleFunc("/debug/metrics", app.metricsHandler)
	mux.Handle("/debug/vars", expvar.Handler())
	mux.Handle("/ws", app.Hub)
	return WithRequestID(WithLogging(mux))
}
