// Package main boots the flash-sale order pipeline simulator.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairyhunter13/flash-sale-order-simulator/internal/broker"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/config"
	httpapi "github.com/fairyhunter13/flash-sale-order-simulator/internal/http"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/ledger"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/notify"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/obs"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/order"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/seckill"
	"github.com/fairyhunter13/flash-sale-order-simulator/internal/sim"
)

func main() {
	cfg := config.Load()
	obs.InitLogger()
	obs.Logger.Info("service_starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var led ledger.Ledger
	if cfg.RedisAddr != "" {
		r, err := ledger.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StockKeyPrefix)
		if err != nil {
			obs.Logger.Error("redis_init_failed", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer func() { _ = r.Close() }()
		obs.Logger.Info("ledger_backend", "backend", "redis", "addr", cfg.RedisAddr)
		led = r
	} else {
		obs.Logger.Info("ledger_backend", "backend", "memory")
		led = ledger.NewMemory()
	}

	st := order.NewStore()
	b := broker.New()
	b.SetHighWatermark(cfg.QueueHighWatermark)
	order.DeclareTopology(b)
	b.Start(ctx)

	hub := notify.NewHub()
	order.NewPipeline(cfg, b, st, led, hub).Start(ctx)

	sk := seckill.New(led, b, hub)
	svc := order.NewService(b)

	app := httpapi.NewApp(cfg, st, led, b, sk, svc, hub)
	mux := httpapi.NewRouter(app)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obs.Logger.Error("http_server_error", "error", err)
			os.Exit(1)
		}
	}()

	if cfg.SimBuyers > 0 {
		runner := sim.New(cfg, sk, svc, st, led, b)
		if err := runner.Run(ctx); err != nil {
			obs.Logger.Error("simulation_failed", "error", err)
		}
		if !cfg.ServeAfterSim {
			shutdown(cfg, app, b, srv, hub)
			return
		}
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigc
	obs.Logger.Info("shutdown_signal", "signal", s.String())
	shutdown(cfg, app, b, srv, hub)
}

// shutdown closes intake, drains the pipeline, and releases all resources.
func shutdown(cfg config.Config, app *httpapi.App, b *broker.Broker, srv *http.Server, hub *notify.Hub) {
	app.StartShutdown()
	obs.Logger.Info("shutdown_drain_begin", "queue_depths", b.Depths())

	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if drained := b.DrainUntil(ctxDrain); !drained {
		obs.Logger.Warn("shutdown_drain_timeout")
	} else {
		obs.Logger.Info("shutdown_drain_complete")
	}

	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		obs.Logger.Error("http_shutdown_error", "error", err)
	}
	hub.Close()
	obs.Logger.Info("service_stopped")
}
