package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/transport/httpapi"
)

const (
	idempotencyHeader = "Idempotency-Key"
	tokenTTL          = time.Hour

	operationScenario  = "scenario"
	operationPlace     = "PlaceOrder"
	operationSetStatus = "SetStatus"
	operationMenu      = "CreateMenuItem"
)

type loadMode string

const (
	modePlace         loadMode = "place"
	modePlaceComplete loadMode = "place-complete"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	users       int
	timeout     time.Duration
	mode        loadMode
	jwtSecret   string
	itemID      string
	quantity    int
	userTag     string
	outputPath  string
}

func parseConfig(args []string, lookup func(string) (string, bool)) (config, error) {
	flags := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	var cfg config
	var modeValue, timeoutValue, durationValue string

	flags.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "canteen HTTP API base URL")
	flags.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flags.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 1m)")
	flags.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flags.IntVar(&cfg.users, "users", 50, "number of distinct customers placing orders")
	flags.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flags.StringVar(&modeValue, "mode", string(modePlace), "load mode: place | place-complete")
	flags.StringVar(&cfg.jwtSecret, "jwt-secret", "", "HS256 secret used to sign test tokens (fallback: CANTEEN_JWT_SECRET)")
	flags.StringVar(&cfg.itemID, "item", "", "menu item id to order; empty creates a dedicated item")
	flags.IntVar(&cfg.quantity, "quantity", 1, "quantity per order")
	flags.StringVar(&cfg.userTag, "user-tag", "load", "customer id prefix")
	flags.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := flags.Parse(args); err != nil {
		return cfg, err
	}

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

	if strings.TrimSpace(cfg.jwtSecret) == "" {
		if v, ok := lookup("CANTEEN_JWT_SECRET"); ok {
			cfg.jwtSecret = strings.TrimSpace(v)
		}
	}
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	switch {
	case cfg.baseURL == "":
		return cfg, errors.New("url is required")
	case cfg.jwtSecret == "":
		return cfg, errors.New("jwt-secret (or CANTEEN_JWT_SECRET) is required")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.users <= 0:
		return cfg, errors.New("users must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.quantity <= 0:
		return cfg, errors.New("quantity must be > 0")
	case strings.TrimSpace(cfg.userTag) == "":
		return cfg, errors.New("user-tag is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modePlace:
		return modePlace, nil
	case modePlaceComplete:
		return modePlaceComplete, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := runLoad(ctx, cfg, &http.Client{Timeout: cfg.timeout})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || result.Tokens.Duplicates > 0 {
		os.Exit(1)
	}
}

// loadRunner держит общие для сценариев параметры прогона.
type loadRunner struct {
	cfg        config
	client     *http.Client
	auth       *httpapi.Authenticator
	runID      string
	itemID     string
	staffToken string
	col        *collector
}

// runLoad размещает заказы конкурентно и проверяет уникальность выданных номеров.
func runLoad(ctx context.Context, cfg config, client *http.Client) (report, error) {
	auth := httpapi.NewAuthenticator(cfg.jwtSecret)
	staffToken, err := auth.Sign(domain.Actor{UserID: cfg.userTag + "-staff", Role: domain.RoleStaff}, tokenTTL)
	if err != nil {
		return report{}, fmt.Errorf("sign staff token: %w", err)
	}

	startedAt := time.Now()
	r := &loadRunner{
		cfg:        cfg,
		client:     client,
		auth:       auth,
		runID:      fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid()),
		itemID:     cfg.itemID,
		staffToken: staffToken,
		col:        newCollector(),
	}

	if r.itemID == "" {
		r.itemID, err = r.createMenuItem(ctx)
		if err != nil {
			return report{}, err
		}
	}

	jobs := make(chan int, cfg.concurrency*2)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.concurrency; w++ {
		g.Go(func() error {
			for index := range jobs {
				r.runScenario(gctx, index)
			}
			return nil
		})
	}
	g.Go(func() error {
		dispatchJobs(gctx, jobs, cfg)
		return nil
	})
	if err := g.Wait(); err != nil {
		return report{}, err
	}

	return r.col.buildReport(startedAt, time.Since(startedAt)), nil
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

func (r *loadRunner) createMenuItem(ctx context.Context) (string, error) {
	start := time.Now()
	status, body, err := r.do(ctx, http.MethodPost, "/api/menu", r.staffToken, map[string]any{
		"name":     "Load test item " + r.runID,
		"category": "loadtest",
		"price":    100,
	}, "")
	r.col.record(operationMenu, time.Since(start), status)
	if err != nil {
		return "", fmt.Errorf("create menu item: %w", err)
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("create menu item: unexpected status %d: %s", status, strings.TrimSpace(string(body)))
	}

	var item struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &item); err != nil || item.ID == "" {
		return "", fmt.Errorf("create menu item: unexpected response %s", strings.TrimSpace(string(body)))
	}
	return item.ID, nil
}

func (r *loadRunner) runScenario(ctx context.Context, index int) {
	scenarioStart := time.Now()
	scenarioStatus := http.StatusOK
	defer func() {
		r.col.record(operationScenario, time.Since(scenarioStart), scenarioStatus)
	}()

	userID := fmt.Sprintf("%s-%s-%d", r.cfg.userTag, r.runID, index%r.cfg.users)
	userToken, err := r.auth.Sign(domain.Actor{UserID: userID, Role: domain.RoleUser}, tokenTTL)
	if err != nil {
		scenarioStatus = 0
		return
	}

	start := time.Now()
	status, body, err := r.do(ctx, http.MethodPost, "/api/orders", userToken, map[string]any{
		"items": []map[string]any{{"itemId": r.itemID, "quantity": r.cfg.quantity}},
	}, fmt.Sprintf("lt-place-%s-%d", r.runID, index))
	r.col.record(operationPlace, time.Since(start), status)
	if err != nil || status != http.StatusCreated {
		scenarioStatus = status
		return
	}

	var order struct {
		OrderID string `json:"orderId"`
		Token   int64  `json:"token"`
	}
	if err := json.Unmarshal(body, &order); err != nil || order.OrderID == "" || order.Token <= 0 {
		scenarioStatus = http.StatusInternalServerError
		return
	}
	r.col.recordToken(order.Token)

	if r.cfg.mode != modePlaceComplete {
		return
	}

	start = time.Now()
	status, _, err = r.do(ctx, http.MethodPatch, "/api/orders/"+order.OrderID+"/status", r.staffToken,
		map[string]string{"status": string(domain.OrderStatusCompleted)}, "")
	r.col.record(operationSetStatus, time.Since(start), status)
	if err != nil || status != http.StatusOK {
		scenarioStatus = status
	}
}

// do выполняет JSON-запрос; status 0 означает, что ответа не было.
func (r *loadRunner) do(ctx context.Context, method, path, token string, payload any, idempotencyKey string) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, r.cfg.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if idempotencyKey != "" {
		req.Header.Set(idempotencyHeader, idempotencyKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}
