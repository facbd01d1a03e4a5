// Package config provides runtime configuration values for the simulator.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration knobs for the HTTP server, the stock ledger,
// the order pipeline, and the scripted simulation.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	// PaymentWindow is how long an order may stay unpaid before the armed
	// deadline fires and the timeout handler cancels it.
	PaymentWindow time.Duration
	// ConsumersPerQueue is how many concurrent consumers each pipeline
	// handler type runs.
	ConsumersPerQueue  int
	QueueHighWatermark int

	SimProductID  string
	SimStock      int64
	SimBuyers     int
	ServeAfterSim bool

	// RedisAddr selects the redis-backed stock ledger when non-empty; the
	// in-memory ledger is used otherwise.
	RedisAddr      string
	RedisDB        int
	RedisPassword  string
	StockKeyPrefix string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolenv(key string, def bool) bool {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return Config{
		HTTPAddr:           getenv("HTTP_ADDR", ":8080"),
		ShutdownTimeout:    durenvs("SHUTDOWN_TIMEOUT", 15),
		PaymentWindow:      durenvms("PAYMENT_WINDOW_MS", 15000),
		ConsumersPerQueue:  atoienv("CONSUMERS_PER_QUEUE", 1),
		QueueHighWatermark: atoienv("QUEUE_HIGH_WATERMARK", 5000),
		SimProductID:       getenv("SIM_PRODUCT_ID", "notebook"),
		SimStock:           int64(atoienv("SIM_STOCK", 3)),
		SimBuyers:          atoienv("SIM_BUYERS", 4),
		ServeAfterSim:      boolenv("SERVE_AFTER_SIM", false),
		RedisAddr:          getenv("REDIS_ADDR", ""),
		RedisDB:            atoienv("REDIS_DB", 11),
		RedisPassword:      getenv("REDIS_PASSWORD", ""),
		StockKeyPrefix:     getenv("STOCK_KEY_PREFIX", "seckill:stock:"),
	}
}
