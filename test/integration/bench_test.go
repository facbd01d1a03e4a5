package integration

import (
	"bytes"
	"net/http"
	"testing"
)

// Benchmark for POST /seckill; to run: go test -bench=. ./test/integration -run ^$
func BenchmarkPostSeckill(b *testing.B) {
	u := baseURL()
	client := &http.Client{}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			body := []byte(`{"buyer_id":"bench","product_id":"notebook"}`)
			r, _ := http.NewRequest(http.MethodPost, u+"/seckill", bytes.NewBuffer(body))
			r.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(r)
			if err == nil {
				_ = resp.Body.Close()
			}
		}
	})
}
