package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("SHUTDOWN_TIMEOUT", "")
	t.Setenv("PAYMENT_WINDOW_MS", "")
	t.Setenv("CONSUMERS_PER_QUEUE", "")
	t.Setenv("QUEUE_HIGH_WATERMARK", "")
	t.Setenv("SIM_PRODUCT_ID", "")
	t.Setenv("SIM_STOCK", "")
	t.Setenv("SIM_BUYERS", "")
	t.Setenv("SERVE_AFTER_SIM", "")
	t.Setenv("REDIS_ADDR", "")
	c := Load()
	if c.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr default")
	}
	if c.ShutdownTimeout != 15*time.Second {
		t.Fatalf("ShutdownTimeout default")
	}
	if c.PaymentWindow != 15*time.Second {
		t.Fatalf("PaymentWindow default")
	}
	if c.ConsumersPerQueue != 1 {
		t.Fatalf("ConsumersPerQueue default")
	}
	if c.SimProductID != "notebook" || c.SimStock != 3 || c.SimBuyers != 4 {
		t.Fatalf("simulation defaults: %+v", c)
	}
	if c.ServeAfterSim {
		t.Fatalf("ServeAfterSim default")
	}
	if c.RedisAddr != "" || c.RedisDB != 11 || c.StockKeyPrefix != "seckill:stock:" {
		t.Fatalf("redis defaults: %+v", c)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("SHUTDOWN_TIMEOUT", "2")
	t.Setenv("PAYMENT_WINDOW_MS", "250")
	t.Setenv("CONSUMERS_PER_QUEUE", "3")
	t.Setenv("SIM_PRODUCT_ID", "ticket")
	t.Setenv("SIM_STOCK", "10")
	t.Setenv("SIM_BUYERS", "20")
	t.Setenv("SERVE_AFTER_SIM", "true")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	c := Load()
	if c.HTTPAddr != ":9090" {
		t.Fatalf("HTTPAddr env")
	}
	if c.ShutdownTimeout != 2*time.Second {
		t.Fatalf("ShutdownTimeout env")
	}
	if c.PaymentWindow != 250*time.Millisecond {
		t.Fatalf("PaymentWindow env")
	}
	if c.ConsumersPerQueue != 3 {
		t.Fatalf("ConsumersPerQueue env")
	}
	if c.SimProductID != "ticket" || c.SimStock != 10 || c.SimBuyers != 20 {
		t.Fatalf("simulation env: %+v", c)
	}
	if !c.ServeAfterSim {
		t.Fatalf("ServeAfterSim env")
	}
	if c.RedisAddr != "localhost:6379" || c.RedisDB != 2 {
		t.Fatalf("redis env: %+v", c)
	}
}

func TestLoadIgnoresGarbage(t *testing.T) {
	t.Setenv("SIM_STOCK", "not-a-number")
	t.Setenv("SERVE_AFTER_SIM", "maybe")
	c := Load()
	if c.SimStock != 3 {
		t.Fatalf("expected default stock, got %d", c.SimStock)
	}
	if c.ServeAfterSim {
		t.Fatalf("expected default ServeAfterSim")
	}
}
