package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

func baseURL() string {
	if v := os.Getenv("BASE_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func waitReady(t *testing.T) {
	t.Helper()
	url := fmt.Sprintf("%s/healthz", baseURL())
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Skip("service not reachable; set BASE_URL or start the server")
}

func TestIntegration_OpenAPIServed(t *testing.T) {
	waitReady(t)
	resp, err := http.Get(baseURL() + "/openapi.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestIntegration_DocsServed(t *testing.T) {
	waitReady(t)
	resp, err := http.Get(baseURL() + "/docs")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	buf := make([]byte, 1024)
	n, _ := resp.Body.Read(buf)
	if !strings.Contains(string(buf[:n]), "swagger-ui") {
		t.Fatalf("expected swagger-ui in docs page")
	}
}

type seckillResponse struct {
	Decision  string `json:"decision"`
	BuyerID   string `json:"buyer_id"`
	ProductID string `json:"product_id"`
	RequestID string `json:"request_id"`
}

type stockResponse struct {
	ProductID       string `json:"product_id"`
	Stock           int64  `json:"stock"`
	LikelyExhausted bool   `json:"likely_exhausted"`
}

func postSeckill(t *testing.T, buyerID, productID string) (*http.Response, seckillResponse) {
	t.Helper()
	body := []byte(`{"buyer_id":"` + buyerID + `","product_id":"` + productID + `"}`)
	r, err := http.NewRequest(http.MethodPost, baseURL()+"/seckill", bytes.NewBuffer(body))
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var sr seckillResponse
	_ = json.NewDecoder(resp.Body).Decode(&sr)
	return resp, sr
}

// The default boot seeds product "notebook" with 3 units and runs the
// scripted simulation, so by the time the server answers, the sale is over.
func TestIntegration_SeckillSoldOut(t *testing.T) {
	waitReady(t)
	resp, sr := postSeckill(t, "bb-buyer", "notebook")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	if sr.Decision != "FastRejected" && sr.Decision != "StockRejected" {
		t.Fatalf("expected a rejection decision, got %q", sr.Decision)
	}
	if sr.RequestID == "" {
		t.Fatalf("expected request_id in response")
	}
}

func TestIntegration_StockReadable(t *testing.T) {
	waitReady(t)
	resp, err := http.Get(baseURL() + "/stock/notebook")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var s stockResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.ProductID != "notebook" || s.Stock < 0 {
		t.Fatalf("unexpected stock response: %+v", s)
	}
}

func TestIntegration_UnknownOrder(t *testing.T) {
	waitReady(t)
	resp, err := http.Get(baseURL() + "/orders/nope1234")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestIntegration_MetricsServed(t *testing.T) {
	waitReady(t)
	resp, err := http.Get(baseURL() + "/debug/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["orders_by_status"]; !ok {
		t.Fatalf("expected orders_by_status in metrics: %v", m)
	}
	if _, ok := m["queue_depths"]; !ok {
		t.Fatalf("expected queue_depths in metrics: %v", m)
	}
}
