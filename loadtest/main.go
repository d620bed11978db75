package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Configuration
var (
	targetURL = flag.String("url", "http://localhost:8080/v1/telemetry", "Agent ingest URL")
	agentKey  = flag.String("key", "pulse-agent-key-1", "Agent API key")
	totalVUs  = flag.Int("c", 50, "Virtual users (concurrency)")
	duration  = flag.Duration("d", 60*time.Second, "Test duration")
	interval  = flag.Duration("i", 100*time.Millisecond, "Delay between requests per VU")
	priority  = flag.String("p", "medium", "Priority attached to generated items")
)

// Metrics
var (
	sentOK      int64
	sentErr     int64
	rateLimited int64
	latencySum  int64 // milliseconds
	latencyCnt  int64
)

type submitBody struct {
	SessionID string `json:"session_id"`
	Content   any    `json:"content"`
	Priority  string `json:"priority"`
}

func main() {
	flag.Parse()

	fmt.Printf("🚀 Starting Ingest Load Test\n")
	fmt.Printf("   Target: %s\n", *targetURL)
	fmt.Printf("   VUs: %d\n", *totalVUs)
	fmt.Printf("   Duration: %v\n", *duration)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	httpClient := &http.Client{Timeout: 5 * time.Second}

	// Metric Reporter
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok := atomic.SwapInt64(&sentOK, 0)
				errs := atomic.LoadInt64(&sentErr)
				limited := atomic.LoadInt64(&rateLimited)
				latSum := atomic.SwapInt64(&latencySum, 0)
				latCnt := atomic.SwapInt64(&latencyCnt, 0)

				avgLat := float64(0)
				if latCnt > 0 {
					avgLat = float64(latSum) / float64(latCnt)
				}
				fmt.Printf("[report] ok/s=%d errors=%d rate_limited=%d avg_latency=%.1fms\n",
					ok, errs, limited, avgLat)
			}
		}
	}()

	var wg sync.WaitGroup
	for vu := 0; vu < *totalVUs; vu++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runVU(ctx, httpClient, id)
		}(vu)
	}

	wg.Wait()
	fmt.Printf("Done. errors=%d rate_limited=%d\n",
		atomic.LoadInt64(&sentErr), atomic.LoadInt64(&rateLimited))
}

func runVU(ctx context.Context, httpClient *http.Client, id int) {
	session := fmt.Sprintf("loadtest-session-%d", id)
	seq := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		seq++
		body, _ := json.Marshal(submitBody{
			SessionID: session,
			Content: map[string]any{
				"event":    "loadtest.tick",
				"sequence": seq,
				"vu":       id,
				"ts":       time.Now().UnixMilli(),
			},
			Priority: *priority,
		})

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, *targetURL, bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Pulse-Key", *agentKey)

		start := time.Now()
		resp, err := httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			atomic.AddInt64(&sentErr, 1)
		} else {
			resp.Body.Close()
			switch {
			case resp.StatusCode == http.StatusAccepted:
				atomic.AddInt64(&sentOK, 1)
				atomic.AddInt64(&latencySum, time.Since(start).Milliseconds())
				atomic.AddInt64(&latencyCnt, 1)
			case resp.StatusCode == http.StatusTooManyRequests:
				atomic.AddInt64(&rateLimited, 1)
			default:
				atomic.AddInt64(&sentErr, 1)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(*interval):
		}
	}
}
