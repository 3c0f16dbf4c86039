// Command loadtest прогоняет сценарии жизненного цикла заказа через REST API и печатает сводку задержек.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/epiccart/internal/auth"
	"github.com/vladislavdragonenkov/epiccart/internal/env"
)

const (
	envJWTSecret      = "EPICCART_JWT_SECRET"
	idempotencyHeader = "Idempotency-Key"
	scenarioMethod    = "scenario"
	transportFailure  = "transport_error"
)

type loadMode string

const (
	modeCreate           loadMode = "create"
	modeCreatePay        loadMode = "create-pay"
	modeCreatePayDeliver loadMode = "create-pay-deliver"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	deliverRate int
	productID   string
	qty         int
	userTag     string
	outputPath  string
	secret      string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	success   int64
	statuses  map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{methods: make(map[string]*methodStats)}
}

// record учитывает вызов; status содержит HTTP-код или transportFailure.
func (c *collector) record(method string, latency time.Duration, status string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, exists := c.methods[method]
	if !exists {
		stats = &methodStats{statuses: make(map[string]int64)}
		c.methods[method] = stats
	}

	stats.calls++
	if ok {
		stats.success++
	}
	stats.statuses[status]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	for name, stats := range c.methods {
		statuses := make(map[string]int64, len(stats.statuses))
		for status, count := range stats.statuses {
			statuses[status] = count
		}
		failed := stats.calls - stats.success
		method := methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    failed,
			ErrorRate: ratio(failed, stats.calls),
			Statuses:  statuses,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
		result.Methods[name] = method

		if name == scenarioMethod {
			result.TotalScenarios = method.Calls
			result.SuccessScenarios = method.Success
			result.FailedScenarios = method.Failed
			result.ErrorRate = method.ErrorRate
			result.ScenarioLatencyMs = method.LatencyMs
		}
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	return result
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	var cfg config
	var modeValue string

	flags := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.StringVar(&cfg.baseURL, "addr", "http://localhost:5000", "REST API base URL")
	flags.IntVar(&cfg.total, "total", 400, "total scenarios in count mode; with -duration only used when set explicitly")
	flags.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m)")
	flags.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flags.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	flags.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-pay | create-pay-deliver")
	flags.IntVar(&cfg.deliverRate, "deliver-rate", 0, "share of create-pay scenarios that are also delivered, percent (0..100)")
	flags.StringVar(&cfg.productID, "product", "", "catalog product id to order")
	flags.IntVar(&cfg.qty, "qty", 1, "quantity per order")
	flags.StringVar(&cfg.userTag, "user-tag", "load", "user id prefix for issued tokens")
	flags.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := flags.Parse(args); err != nil {
		return cfg, fmt.Errorf("parse flags: %w", err)
	}

	flags.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	cfg.productID = strings.TrimSpace(cfg.productID)
	cfg.secret = getenv(envJWTSecret)

	switch {
	case cfg.baseURL == "":
		return cfg, errors.New("addr is required")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.qty <= 0:
		return cfg, errors.New("qty must be > 0")
	case cfg.deliverRate < 0 || cfg.deliverRate > 100:
		return cfg, errors.New("deliver-rate must be between 0 and 100")
	case cfg.productID == "":
		return cfg, errors.New("product is required")
	case strings.TrimSpace(cfg.userTag) == "":
		return cfg, errors.New("user-tag is required")
	case cfg.secret == "":
		return cfg, errors.New(envJWTSecret + " is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreatePay, modeCreatePayDeliver:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	if err := env.Load(".env", ".env.local"); err != nil {
		fail("load env files: %v", err)
	}
	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fail("invalid config: %v", err)
	}

	client := &http.Client{
		Transport: &http.Transport{MaxIdleConnsPerHost: cfg.concurrency},
	}
	result, err := runLoad(context.Background(), cfg, client)
	if err != nil {
		fail("%v", err)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			fail("failed to write report: %v", err)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// runLoad выполняет сценарии и собирает отчёт. Токен пользователя выпускается с правами администратора,
// иначе сценарий доставки невозможен.
func runLoad(ctx context.Context, cfg config, httpClient *http.Client) (report, error) {
	tokens, err := auth.NewTokenManager(cfg.secret, 0)
	if err != nil {
		return report{}, err
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	token, err := tokens.Issue(auth.Identity{UserID: cfg.userTag + "-" + runID, IsAdmin: true})
	if err != nil {
		return report{}, fmt.Errorf("issue token: %w", err)
	}

	api := &apiClient{
		baseURL: cfg.baseURL,
		http:    httpClient,
		token:   token,
		timeout: cfg.timeout,
		col:     newCollector(),
	}

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for worker := 0; worker < cfg.concurrency; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				_ = runScenario(ctx, api, cfg, index, runID)
			}
		}()
	}

	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()

	return api.col.buildReport(startedAt, time.Since(startedAt)), nil
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for i := 0; ; i++ {
		if (cfg.duration <= 0 || cfg.totalSet) && i >= cfg.total {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}

func runScenario(ctx context.Context, api *apiClient, cfg config, index int, runID string) (err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "failed"
		}
		api.col.record(scenarioMethod, time.Since(start), status, err == nil)
	}()

	var created struct {
		Data struct {
			ID string `json:"_id"`
		} `json:"data"`
	}
	createBody := map[string]any{
		"orderItems":      []map[string]any{{"_id": cfg.productID, "qty": cfg.qty}},
		"shippingAddress": map[string]string{"address": "1 Load St", "city": "Bench", "postalCode": "00000", "country": "US"},
		"paymentMethod":   "PayPal",
	}
	createKey := fmt.Sprintf("lt-create-%s-%d", runID, index)
	if err := api.call(ctx, "CreateOrder", http.MethodPost, "/api/orders", createKey, createBody, &created); err != nil {
		return err
	}
	orderID := created.Data.ID
	if orderID == "" {
		return errors.New("create response returned empty order id")
	}

	if cfg.mode == modeCreate {
		return nil
	}

	payBody := map[string]any{
		"id":          fmt.Sprintf("lt-pay-%s-%d", runID, index),
		"status":      "COMPLETED",
		"update_time": time.Now().UTC().Format(time.RFC3339),
		"payer":       map[string]string{"email_address": "load@example.com"},
	}
	payKey := fmt.Sprintf("lt-pay-%s-%d", runID, index)
	if err := api.call(ctx, "PayOrder", http.MethodPut, "/api/orders/"+orderID+"/pay", payKey, payBody, nil); err != nil {
		return err
	}

	if cfg.mode == modeCreatePayDeliver || shouldSample(index, cfg.deliverRate) {
		if err := api.call(ctx, "DeliverOrder", http.MethodPut, "/api/orders/"+orderID+"/deliver", "", nil, nil); err != nil {
			return err
		}
	}

	return nil
}

type apiClient struct {
	baseURL string
	http    *http.Client
	token   string
	timeout time.Duration
	col     *collector
}

// call выполняет запрос и записывает его в статистику под именем method. Ответ 2xx разбирается в out.
func (c *apiClient) call(ctx context.Context, method, httpMethod, path, idempotencyKey string, body, out any) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", method, err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(idempotencyHeader, idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.col.record(method, time.Since(start), transportFailure, false)
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if ok && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.col.record(method, time.Since(start), strconv.Itoa(resp.StatusCode), false)
			return fmt.Errorf("%s: decode response: %w", method, err)
		}
	}
	c.col.record(method, time.Since(start), strconv.Itoa(resp.StatusCode), ok)
	if !ok {
		return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}
	return nil
}

func shouldSample(index, rate int) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 100 {
		return true
	}
	return index%100 < rate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- путь задаётся явно флагом CLI.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(out io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(out, "Load test summary")
	_, _ = fmt.Fprintf(out, "mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode, runTarget(cfg), result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ErrorRate)
	_, _ = fmt.Fprintf(out, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(out, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	names := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name != scenarioMethod {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Methods[name]
		_, _ = fmt.Fprintf(out, "%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name, stats.Calls, stats.Success, stats.Failed, stats.ErrorRate, stats.LatencyMs.P95)
	}
}

func runTarget(cfg config) string {
	switch {
	case cfg.duration <= 0:
		return fmt.Sprintf("count:%d", cfg.total)
	case cfg.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	default:
		return fmt.Sprintf("duration:%s", cfg.duration)
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

// percentile интерполирует линейно между соседними рангами.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	return sorted[lower] + (sorted[upper]-sorted[lower])*(rank-float64(lower))
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
