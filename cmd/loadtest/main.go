package main

import (
	"bytes"
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
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/service/webhook"
)

const (
	customerHeader  = "X-Customer-Id"
	signatureHeader = "X-Webhook-Signature"
	defaultQty      = int64(1)
)

type loadMode string

const (
	modeBrowse      loadMode = "browse"
	modeCheckout    loadMode = "checkout"
	modeCheckoutPay loadMode = "checkout-pay"
	modeOversell    loadMode = "oversell"
	modeReplayBurst loadMode = "replay-burst"
)

type config struct {
	baseURL       string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	timeout       time.Duration
	mode          loadMode
	failRate      int
	variantID     string
	qty           int64
	stock         int64
	addressID     string
	paymentMethod string
	webhookSecret string
	provider      string
	customerTag   string
	outputPath    string
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
	Codes     map[string]int64 `json:"codes"`
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
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
	}
}

func (c *collector) record(method string, latency time.Duration, statusCode int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, exists := c.methods[method]
	if !exists {
		stats = &methodStats{
			codes: make(map[string]int64),
		}
		c.methods[method] = stats
	}

	stats.calls++
	if ok {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[fmt.Sprintf("%d", statusCode)]++
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

	scenarioStats := c.methods["scenario"]
	if scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		codesCopy := make(map[string]int64, len(stats.codes))
		for code, count := range stats.codes {
			codesCopy[code] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Codes:     codesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string
	var timeoutValue string
	var durationValue string

	flag.StringVar(&cfg.baseURL, "addr", "http://localhost:8080", "HTTP API base URL")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modeCheckout), "load mode: browse | checkout | checkout-pay | oversell | replay-burst")
	flag.IntVar(&cfg.failRate, "fail-rate", 0, "payment.failed probability in percent for checkout-pay mode (0..100)")
	flag.StringVar(&cfg.variantID, "variant", "demo-tee-blue-m", "variant id to add to cart")
	flag.Int64Var(&cfg.qty, "qty", defaultQty, "quantity per cart item")
	flag.Int64Var(&cfg.stock, "stock", 0, "stock of the shared variant for oversell mode; accepted units must not exceed it")
	flag.StringVar(&cfg.addressID, "address", "addr-load", "shipping/billing address id")
	flag.StringVar(&cfg.paymentMethod, "payment-method", "card", "payment method for checkout")
	flag.StringVar(&cfg.webhookSecret, "webhook-secret", "", "webhook HMAC secret for checkout-pay mode (fallback: CHECKOUT_WEBHOOK_SECRET)")
	flag.StringVar(&cfg.provider, "provider", "stripe", "payment provider path segment for webhook deliveries")
	flag.StringVar(&cfg.customerTag, "customer-tag", "load", "customer id prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	if cfg.webhookSecret == "" {
		cfg.webhookSecret = strings.TrimSpace(os.Getenv("CHECKOUT_WEBHOOK_SECRET"))
	}

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.qty <= 0 {
		return cfg, errors.New("qty must be > 0")
	}
	if cfg.failRate < 0 || cfg.failRate > 100 {
		return cfg, errors.New("fail-rate must be between 0 and 100")
	}
	if strings.TrimSpace(cfg.variantID) == "" {
		return cfg, errors.New("variant is required")
	}
	if strings.TrimSpace(cfg.customerTag) == "" {
		return cfg, errors.New("customer-tag is required")
	}
	needsWebhook := cfg.mode == modeCheckoutPay || cfg.mode == modeReplayBurst
	if needsWebhook && cfg.webhookSecret == "" {
		return cfg, fmt.Errorf("webhook-secret (or CHECKOUT_WEBHOOK_SECRET) is required for %s mode", cfg.mode)
	}
	if needsWebhook && strings.TrimSpace(cfg.provider) == "" {
		return cfg, fmt.Errorf("provider is required for %s mode", cfg.mode)
	}
	if cfg.mode == modeOversell && cfg.stock <= 0 {
		return cfg, errors.New("stock must be > 0 for oversell mode")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeBrowse:
		return modeBrowse, nil
	case modeCheckout:
		return modeCheckout, nil
	case modeCheckoutPay:
		return modeCheckoutPay, nil
	case modeOversell:
		return modeOversell, nil
	case modeReplayBurst:
		return modeReplayBurst, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{
		Timeout: cfg.timeout,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.concurrency * 2,
			MaxIdleConnsPerHost: cfg.concurrency * 2,
		},
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()
	state := &runState{}

	if cfg.mode == modeReplayBurst {
		burst, err := prepareReplayBurst(client, cfg, runID, col)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to prepare replay burst: %v\n", err)
			os.Exit(1)
		}
		state.burst = burst
	}

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(client, cfg, id, runID, col, state); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	exitCode := 0
	if result.FailedScenarios > 0 {
		exitCode = 1
	}

	switch cfg.mode {
	case modeOversell:
		accepted := atomic.LoadInt64(&state.acceptedUnits)
		fmt.Printf("oversell check: accepted_units=%d stock=%d\n", accepted, cfg.stock)
		if accepted > cfg.stock {
			_, _ = fmt.Fprintf(os.Stderr, "oversell detected: accepted %d units with stock %d\n", accepted, cfg.stock)
			exitCode = 1
		}
	case modeReplayBurst:
		if err := verifyReplayBurst(client, cfg, col, state.burst); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "replay burst check failed: %v\n", err)
			exitCode = 1
		} else {
			fmt.Printf("replay burst check: deliveries=%d applied_once=true\n", atomic.LoadInt64(&state.burst.deliveries))
		}
	}

	os.Exit(exitCode)
}

// runState — разделяемое между worker'ами состояние режимов oversell
// и replay-burst.
type runState struct {
	acceptedUnits int64
	burst         *replayBurst
}

// replayBurst держит один подписанный webhook-payload, который все worker'ы
// доставляют повторно, и первый успешный результат обработки для сверки.
type replayBurst struct {
	orderID    string
	customer   string
	body       []byte
	deliveries int64
	inFlight   int64
	mismatches int64

	mu        sync.Mutex
	firstBody []byte
}

// prepareReplayBurst прогоняет один checkout и собирает событие оплаты,
// которое затем будет доставлено многократно с одной подписью.
func prepareReplayBurst(client *http.Client, cfg config, runID string, col *collector) (*replayBurst, error) {
	customer := fmt.Sprintf("%s-%s-burst", cfg.customerTag, runID)

	_, _, err := doCall(client, cfg, col, "cart.add", http.MethodPost, "/cart/items", customer, map[string]any{
		"product_variant_id": cfg.variantID,
		"quantity":           cfg.qty,
	}, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var order struct {
		ID string `json:"id"`
	}
	_, _, err = doCall(client, cfg, col, "orders.create", http.MethodPost, "/orders", customer, map[string]any{
		"shipping_address_id": cfg.addressID,
		"billing_address_id":  cfg.addressID,
		"payment_method":      cfg.paymentMethod,
	}, &order, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, errors.New("create order response returned empty id")
	}

	body, err := json.Marshal(map[string]any{
		"id":       uuid.NewString(),
		"type":     "payment.succeeded",
		"order_id": order.ID,
	})
	if err != nil {
		return nil, err
	}

	return &replayBurst{orderID: order.ID, customer: customer, body: body}, nil
}

// verifyReplayBurst проверяет, что повторные доставки не привели к повторной
// обработке: все зафиксированные результаты совпали, заказ оплачен ровно раз.
func verifyReplayBurst(client *http.Client, cfg config, col *collector, burst *replayBurst) error {
	if burst == nil {
		return errors.New("replay burst state is not initialized")
	}
	if mismatches := atomic.LoadInt64(&burst.mismatches); mismatches > 0 {
		return fmt.Errorf("replayed deliveries produced %d divergent success bodies", mismatches)
	}

	burst.mu.Lock()
	applied := burst.firstBody != nil
	burst.mu.Unlock()
	if !applied {
		return errors.New("no replayed delivery returned an applied result")
	}

	var status struct {
		PaymentStatus string `json:"payment_status"`
	}
	_, _, err := doCall(client, cfg, col, "orders.status", http.MethodGet, "/orders/"+burst.orderID+"/status", burst.customer, nil, &status, http.StatusOK)
	if err != nil {
		return err
	}
	if status.PaymentStatus != "paid" {
		return fmt.Errorf("expected paid order after replay burst, got %q", status.PaymentStatus)
	}
	return nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(client *http.Client, cfg config, index int, runID string, col *collector, state *runState) error {
	scenarioStart := time.Now()
	scenarioOK := false
	scenarioCode := 0
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioCode, scenarioOK)
	}()

	customer := fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, index)

	if cfg.mode == modeReplayBurst {
		code, err := deliverReplay(client, cfg, col, state.burst)
		scenarioCode = code
		if err != nil {
			return err
		}
		scenarioOK = true
		return nil
	}

	code, _, err := doCall(client, cfg, col, "cart.add", http.MethodPost, "/cart/items", customer, map[string]any{
		"product_variant_id": cfg.variantID,
		"quantity":           cfg.qty,
	}, nil, http.StatusOK)
	if err != nil {
		scenarioCode = code
		return err
	}

	if cfg.mode == modeBrowse {
		code, _, err = doCall(client, cfg, col, "cart.get", http.MethodGet, "/cart", customer, nil, nil, http.StatusOK)
		scenarioCode = code
		if err != nil {
			return err
		}
		scenarioOK = true
		return nil
	}

	if cfg.mode == modeOversell {
		// Конкурирующие заказы на общий variant: отказ по стоку — это
		// ожидаемый исход сценария, а не ошибка.
		code, _, err = doCall(client, cfg, col, "orders.create", http.MethodPost, "/orders", customer, map[string]any{
			"shipping_address_id": cfg.addressID,
			"billing_address_id":  cfg.addressID,
			"payment_method":      cfg.paymentMethod,
		}, nil, http.StatusCreated, http.StatusConflict)
		scenarioCode = code
		if err != nil {
			return err
		}
		if code == http.StatusCreated {
			atomic.AddInt64(&state.acceptedUnits, cfg.qty)
		}
		scenarioOK = true
		return nil
	}

	var order struct {
		ID string `json:"id"`
	}
	code, _, err = doCall(client, cfg, col, "orders.create", http.MethodPost, "/orders", customer, map[string]any{
		"shipping_address_id": cfg.addressID,
		"billing_address_id":  cfg.addressID,
		"payment_method":      cfg.paymentMethod,
	}, &order, http.StatusCreated)
	if err != nil {
		scenarioCode = code
		return err
	}
	if order.ID == "" {
		scenarioCode = code
		return errors.New("create order response returned empty id")
	}

	if cfg.mode == modeCheckoutPay {
		eventType := "payment.succeeded"
		if cfg.failRate > 0 && index%100 < cfg.failRate {
			eventType = "payment.failed"
		}

		body, marshalErr := json.Marshal(map[string]any{
			"id":       uuid.NewString(),
			"type":     eventType,
			"order_id": order.ID,
		})
		if marshalErr != nil {
			return marshalErr
		}

		code, _, err = doWebhook(client, cfg, col, body)
		if err != nil {
			scenarioCode = code
			return err
		}

		code, _, err = doCall(client, cfg, col, "orders.status", http.MethodGet, "/orders/"+order.ID+"/status", customer, nil, nil, http.StatusOK)
		if err != nil {
			scenarioCode = code
			return err
		}
	}

	scenarioCode = http.StatusOK
	scenarioOK = true
	return nil
}

func doCall(
	client *http.Client,
	cfg config,
	col *collector,
	method string,
	httpMethod string,
	path string,
	customer string,
	payload map[string]any,
	out any,
	wantStatuses ...int,
) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(httpMethod, cfg.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set(customerHeader, customer)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		col.record(method, latency, 0, false)
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		col.record(method, latency, resp.StatusCode, false)
		return resp.StatusCode, nil, err
	}

	ok := false
	for _, want := range wantStatuses {
		if resp.StatusCode == want {
			ok = true
			break
		}
	}
	col.record(method, latency, resp.StatusCode, ok)
	if !ok {
		return resp.StatusCode, body, fmt.Errorf("%s %s: unexpected status %d", httpMethod, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, body, err
		}
	}
	return resp.StatusCode, body, nil
}

func doWebhook(client *http.Client, cfg config, col *collector, body []byte) (int, []byte, error) {
	req, err := http.NewRequest(http.MethodPost, cfg.baseURL+"/webhooks/"+cfg.provider, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, webhook.Sign([]byte(cfg.webhookSecret), body))

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		col.record("webhook.deliver", latency, 0, false)
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		col.record("webhook.deliver", latency, resp.StatusCode, false)
		return resp.StatusCode, nil, err
	}

	ok := resp.StatusCode == http.StatusOK
	col.record("webhook.deliver", latency, resp.StatusCode, ok)
	if !ok {
		return resp.StatusCode, respBody, fmt.Errorf("webhook delivery: unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, respBody, nil
}

// deliverReplay отправляет один и тот же подписанный payload ещё раз и сверяет
// успешный ответ с первым зафиксированным: расхождение означает, что событие
// было обработано повторно.
func deliverReplay(client *http.Client, cfg config, col *collector, burst *replayBurst) (int, error) {
	code, respBody, err := doWebhook(client, cfg, col, burst.body)
	if err != nil {
		return code, err
	}
	atomic.AddInt64(&burst.deliveries, 1)

	// Нейтральный ответ гонки за обработку: исход ещё не зафиксирован.
	if bytes.Equal(respBody, []byte(`{"status":"processing"}`)) {
		atomic.AddInt64(&burst.inFlight, 1)
		return code, nil
	}

	burst.mu.Lock()
	defer burst.mu.Unlock()
	if burst.firstBody == nil {
		burst.firstBody = respBody
		return code, nil
	}
	if !bytes.Equal(burst.firstBody, respBody) {
		atomic.AddInt64(&burst.mismatches, 1)
		return code, fmt.Errorf("replayed delivery diverged from cached result: %s", respBody)
	}
	return code, nil
}

func buildLatencySummary(latencies []float64) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	sort.Float64s(sorted)

	var total float64
	for _, value := range sorted {
		total += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: total / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func ratio(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

func printReport(result report, cfg config) {
	fmt.Printf("mode=%s scenarios=%d success=%d failed=%d error_rate=%.4f rps=%.1f\n",
		cfg.mode,
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
		result.RPS,
	)
	fmt.Printf("scenario latency ms: p50=%.1f p95=%.1f p99=%.1f max=%.1f\n",
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	names := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == "scenario" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := result.Methods[name]
		fmt.Printf("  %-16s calls=%d failed=%d p95=%.1fms\n", name, m.Calls, m.Failed, m.LatencyMs.P95)
	}
}

func writeJSONReport(path string, result report) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(encoded, '\n'), 0o644)
}
