package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/metrics"
	"github.com/vladislavdragonenkov/canteen/internal/storage/memory"
)

var _ domain.IdempotencyRepository = (*stubSweepRepo)(nil)

func newTestSweeper(repo domain.IdempotencyRepository, reg *prometheus.Registry, opts ...SweeperOption) *Sweeper {
	opts = append([]SweeperOption{WithSweepMetrics(metrics.NewPlacementKeyMetricsWithRegisterer(reg))}, opts...)
	return NewSweeper(repo, opts...)
}

func metricValue(t *testing.T, reg *prometheus.Registry, name, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			matched := result == ""
			for _, pair := range m.GetLabel() {
				if pair.GetName() == "result" && pair.GetValue() == result {
					matched = true
				}
			}
			if !matched {
				continue
			}
			if m.GetGauge() != nil {
				return m.GetGauge().GetValue()
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestSweeper_Sweep_Batches(t *testing.T) {
	t.Parallel()

	repo := &stubSweepRepo{results: []int{2, 2, 1}}
	sweeper := newTestSweeper(repo, prometheus.NewRegistry(), WithSweepBatchSize(2))

	report, err := sweeper.Sweep(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Removed != 5 || report.Batches != 3 || report.Partial {
		t.Fatalf("unexpected report: %+v", report)
	}
	if calls := repo.calls(); calls != 3 {
		t.Fatalf("unexpected delete calls: got=%d want=3", calls)
	}
}

func TestSweeper_Sweep_StopsAtBatchLimit(t *testing.T) {
	t.Parallel()

	repo := &stubSweepRepo{fallback: 10}
	sweeper := newTestSweeper(repo, prometheus.NewRegistry(), WithSweepBatchSize(10))

	report, err := sweeper.Sweep(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if !report.Partial {
		t.Fatal("expected partial sweep")
	}
	if report.Batches != maxSweepBatches || report.Removed != 10*maxSweepBatches {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestSweeper_Sweep_Error(t *testing.T) {
	t.Parallel()

	repo := &stubSweepRepo{results: []int{4}, errs: []error{nil, errors.New("connection reset")}}
	sweeper := newTestSweeper(repo, prometheus.NewRegistry(), WithSweepBatchSize(4))

	report, err := sweeper.Sweep(context.Background(), time.Now().UTC())
	if err == nil {
		t.Fatal("expected Sweep error")
	}
	if report.Removed != 4 {
		t.Fatalf("removed before failure: got=%d want=4", report.Removed)
	}
}

func TestSweeper_TickRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	repo := &stubSweepRepo{results: []int{3}, errs: []error{nil, errors.New("connection reset")}}
	sweeper := newTestSweeper(repo, reg, WithSweepBatchSize(10))

	sweeper.tick(context.Background())
	if got := metricValue(t, reg, "canteen_placement_key_sweeps_total", "ok"); got != 1 {
		t.Fatalf("ok sweeps: got=%v want=1", got)
	}
	if got := metricValue(t, reg, "canteen_placement_keys_removed_total", ""); got != 3 {
		t.Fatalf("removed keys: got=%v want=3", got)
	}

	sweeper.tick(context.Background())
	if got := metricValue(t, reg, "canteen_placement_key_sweeps_total", "error"); got != 1 {
		t.Fatalf("failed sweeps: got=%v want=1", got)
	}
	if got := metricValue(t, reg, "canteen_placement_keys_last_sweep_removed", ""); got != 3 {
		t.Fatalf("failed sweep must keep last result: got=%v want=3", got)
	}
}

func TestSweeper_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &stubSweepRepo{}
	sweeper := newTestSweeper(repo, prometheus.NewRegistry(), WithSweepInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
	if repo.calls() == 0 {
		t.Fatal("expected at least one sweep")
	}
}

func TestSweeper_MemoryRepositoryKeepsLiveKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()
	keys := make([]domain.PlacementKey, 0, 3)
	for i, ttl := range []time.Duration{-time.Hour, -time.Minute, time.Hour} {
		key := domain.PlacementKey{UserID: "student-1", Key: fmt.Sprintf("lunch-%d", i)}
		if _, err := repo.CreateProcessing(ctx, key, "hash", now.Add(ttl)); err != nil {
			t.Fatalf("create %s: %v", key, err)
		}
		keys = append(keys, key)
	}

	report, err := newTestSweeper(repo, prometheus.NewRegistry(), WithSweepBatchSize(1)).Sweep(ctx, now)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Removed != 2 {
		t.Fatalf("unexpected removed total: got=%d want=2", report.Removed)
	}
	if _, err := repo.Get(ctx, keys[2]); err != nil {
		t.Fatalf("live key should survive sweep: %v", err)
	}
	// удалённый ключ снова свободен для нового заказа
	if _, err := repo.CreateProcessing(ctx, keys[0], "other-cart", now.Add(time.Hour)); err != nil {
		t.Fatalf("swept key should be reusable: %v", err)
	}
}

type stubSweepRepo struct {
	mu sync.Mutex

	results  []int
	errs     []error
	fallback int
	count    int
}

func (s *stubSweepRepo) CreateProcessing(context.Context, domain.PlacementKey, string, time.Time) (domain.IdempotencyRecord, error) {
	panic("not implemented")
}

func (s *stubSweepRepo) Get(context.Context, domain.PlacementKey) (domain.IdempotencyRecord, error) {
	panic("not implemented")
}

func (s *stubSweepRepo) MarkDone(context.Context, domain.PlacementKey, []byte, int) error {
	panic("not implemented")
}

func (s *stubSweepRepo) MarkFailed(context.Context, domain.PlacementKey, []byte, int) error {
	panic("not implemented")
}

func (s *stubSweepRepo) DeleteExpired(_ context.Context, _ time.Time, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	if len(s.results) == 0 {
		return s.fallback, nil
	}
	result := s.results[0]
	s.results = s.results[1:]
	return result, nil
}

func (s *stubSweepRepo) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
