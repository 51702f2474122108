package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/metrics"
)

const (
	defaultSweepInterval  = 10 * time.Minute
	defaultSweepBatchSize = 500
	// maxSweepBatches ограничивает один проход; остаток уйдёт в следующий тик.
	maxSweepBatches = 100
)

// SweeperOption настраивает Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepLogger задаёт logger.
func WithSweepLogger(logger *log.Entry) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSweepInterval задаёт период между проходами.
func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithSweepBatchSize задаёт число ключей, удаляемых одним запросом.
func WithSweepBatchSize(size int) SweeperOption {
	return func(s *Sweeper) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithSweepMetrics задаёт метрики очистки.
func WithSweepMetrics(m *metrics.PlacementKeyMetrics) SweeperOption {
	return func(s *Sweeper) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Sweeper удаляет ключи повтора размещения, которые уже не защищают от дублей.
// Просроченный ключ и без этого не мешает новому заказу: хранилище перезаписывает его.
type Sweeper struct {
	repo      domain.IdempotencyRepository
	metrics   *metrics.PlacementKeyMetrics
	logger    *log.Entry
	now       func() time.Time
	interval  time.Duration
	batchSize int
}

// SweepReport итог одного прохода.
type SweepReport struct {
	Removed int
	Batches int
	// Partial: проход упёрся в maxSweepBatches, просроченные ключи ещё остались.
	Partial bool
}

// NewSweeper создаёт очистку ключей.
func NewSweeper(repo domain.IdempotencyRepository, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		repo:      repo,
		logger:    log.WithField("component", "placement-key-sweeper"),
		now:       func() time.Time { return time.Now().UTC() },
		interval:  defaultSweepInterval,
		batchSize: defaultSweepBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewPlacementKeyMetrics()
	}
	return s
}

// Run чистит ключи сразу и затем по таймеру до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.repo == nil {
		s.logger.Warn("placement key sweeper disabled: no repository")
		return
	}

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	started := s.now()
	report, err := s.Sweep(ctx, started)
	elapsed := s.now().Sub(started)
	fields := log.Fields{
		"removed":  report.Removed,
		"batches":  report.Batches,
		"cutoff":   started.Format(time.RFC3339),
		"duration": elapsed.String(),
	}

	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		s.metrics.RecordSweep("error", report.Removed, elapsed)
		s.logger.WithError(err).WithFields(fields).Warn("placement key sweep failed")
	case report.Partial:
		s.metrics.RecordSweep("partial", report.Removed, elapsed)
		s.logger.WithFields(fields).Info("placement key sweep stopped at batch limit")
	default:
		s.metrics.RecordSweep("ok", report.Removed, elapsed)
		if report.Removed > 0 {
			s.logger.WithFields(fields).Info("expired placement keys removed")
		}
	}
}

// Sweep удаляет ключи, истёкшие к cutoff, порциями batchSize.
func (s *Sweeper) Sweep(ctx context.Context, cutoff time.Time) (SweepReport, error) {
	if cutoff.IsZero() {
		cutoff = s.now()
	}

	var report SweepReport
	for report.Batches < maxSweepBatches {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		removed, err := s.repo.DeleteExpired(ctx, cutoff, s.batchSize)
		if err != nil {
			return report, err
		}
		report.Batches++
		report.Removed += removed
		if removed < s.batchSize {
			return report, nil
		}
	}
	report.Partial = true
	return report, nil
}
