// Command loadtest drives a running deployment with a mix of document
// ingests, word listings and similarity scans, then prints per-operation
// latency percentiles.
//
// Usage:
//
//	go run ./cmd/loadtest --url http://localhost:8082 --api-key <key>
//	go run ./cmd/loadtest --url http://localhost:8080 --tenant acme
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	BaseURL     string
	APIKey      string
	Tenant      string
	Concurrency int
	Duration    time.Duration
	IngestRatio float64
	ScanRatio   float64
}

// Stats aggregates the outcome of one operation kind.
type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 10000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

const (
	opIngest = "ingest"
	opWords  = "words"
	opScan   = "similar"
)

var sentences = []string{
	"Chất phụ gia thực phẩm được sử dụng rộng rãi trong công nghiệp chế biến.",
	"Tăng trưởng kinh tế quý ba đạt 15,6% so với cùng kỳ năm trước.",
	"Do đó các doanh nghiệp cần chuẩn bị kế hoạch sản xuất cho năm tới.",
	"Thị trường bất động sản có nhiều biến động trong những tháng gần đây.",
	"Ngân hàng nhà nước điều chỉnh lãi suất điều hành để ổn định tỷ giá.",
	"Học sinh tham gia kỳ thi tốt nghiệp trung học phổ thông trên cả nước.",
	"Giá xăng dầu trong nước giảm nhẹ theo diễn biến của thị trường thế giới.",
	"Đội tuyển bóng đá quốc gia chuẩn bị cho vòng loại giải vô địch châu Á.",
}

var sections = []string{"news", "economy", "sport", "education"}

// randomDocument joins a few sentences so near-duplicates appear naturally.
func randomDocument(r *rand.Rand) string {
	n := 3 + r.Intn(4)
	parts := make([]string, n)
	for i := range parts {
		parts[i] = sentences[r.Intn(len(sentences))]
	}
	return strings.Join(parts, " ")
}

// pickOp chooses an operation from the configured mix.
func pickOp(r *rand.Rand, cfg Config) string {
	x := r.Float64()
	switch {
	case x < cfg.IngestRatio:
		return opIngest
	case x < cfg.IngestRatio+cfg.ScanRatio:
		return opScan
	default:
		return opWords
	}
}

func main() {
	var cfg Config
	pflag.StringVar(&cfg.BaseURL, "url", "http://localhost:8082", "base URL of the gateway or a service")
	pflag.StringVar(&cfg.APIKey, "api-key", "", "API key sent as X-API-Key (gateway)")
	pflag.StringVar(&cfg.Tenant, "tenant", "", "tenant sent as X-Tenant-ID (direct service access)")
	pflag.IntVar(&cfg.Concurrency, "concurrency", 10, "number of concurrent workers")
	pflag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	pflag.Float64Var(&cfg.IngestRatio, "ingest-ratio", 0.3, "share of requests that ingest a document")
	pflag.Float64Var(&cfg.ScanRatio, "scan-ratio", 0.2, "share of requests that run a similarity scan")
	pflag.Parse()

	if cfg.APIKey == "" && cfg.Tenant == "" {
		fmt.Fprintln(os.Stderr, "one of --api-key or --tenant is required")
		os.Exit(1)
	}
	if cfg.IngestRatio < 0 || cfg.ScanRatio < 0 || cfg.IngestRatio+cfg.ScanRatio > 1 {
		fmt.Fprintln(os.Stderr, "--ingest-ratio and --scan-ratio must be non-negative and sum to at most 1")
		os.Exit(1)
	}

	fmt.Println("=== Kokuto Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Mix:         ingest %.0f%%, similar %.0f%%, words %.0f%%\n",
		cfg.IngestRatio*100, cfg.ScanRatio*100, (1-cfg.IngestRatio-cfg.ScanRatio)*100)
	fmt.Println()

	stats := runLoadTest(cfg)
	var total int64
	for _, op := range []string{opIngest, opScan, opWords} {
		total += stats[op].totalRequests.Load()
		printReport(os.Stdout, op, stats[op], cfg.Duration)
	}
	if total == 0 {
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func runLoadTest(cfg Config) map[string]*Stats {
	stats := map[string]*Stats{opIngest: NewStats(), opScan: NewStats(), opWords: NewStats()}
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			for ctx.Err() == nil {
				op := pickOp(r, cfg)
				req, err := newRequest(ctx, cfg, op, r)
				if err != nil {
					stats[op].RecordRequest(0, 0, err)
					continue
				}

				start := time.Now()
				resp, err := client.Do(req)
				duration := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats[op].RecordRequest(duration, 0, err)
					}
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats[op].RecordRequest(duration, resp.StatusCode, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func newRequest(ctx context.Context, cfg Config, op string, r *rand.Rand) (*http.Request, error) {
	var (
		method = http.MethodGet
		path   string
		body   any
	)
	switch op {
	case opIngest:
		method, path = http.MethodPost, "/api/v1/documents"
		body = map[string]any{
			"text":     randomDocument(r),
			"sections": []string{sections[r.Intn(len(sections))]},
		}
	case opScan:
		method, path = http.MethodPost, "/api/v1/similar"
		body = map[string]any{"text": randomDocument(r)}
	default:
		path = "/api/v1/sections/" + sections[r.Intn(len(sections))] + "?limit=50"
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cfg.APIKey != "" {
		req.Header.Set("X-API-Key", cfg.APIKey)
	}
	if cfg.Tenant != "" {
		req.Header.Set("X-Tenant-ID", cfg.Tenant)
	}
	return req, nil
}

func printReport(w io.Writer, op string, stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Fprintf(w, "=== %s ===\n", op)
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", success)
	fmt.Fprintf(w, "Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Fprintf(w, "Latency min/avg/max: %s / %s / %s\n", latencies[0], avg, latencies[len(latencies)-1])
		fmt.Fprintf(w, "Latency p50/p90/p99: %s / %s / %s\n",
			percentile(latencies, 50), percentile(latencies, 90), percentile(latencies, 99))
	}

	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()
	fmt.Fprintln(w)
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
