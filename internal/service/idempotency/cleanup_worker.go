// Package idempotency очищает просроченные ключи идемпотентности HTTP-запросов.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/epiccart/internal/metrics"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	maxBatchesPerRun        = 1000
)

// ExpiredKeyStore удаляет ключи с ttl_at <= before, не больше limit за вызов.
// Ему удовлетворяет любой domain.IdempotencyRepository.
type ExpiredKeyStore interface {
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

type CleanupOption func(*CleanupWorker)

func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithMetrics(m *metrics.CleanupMetrics) CleanupOption {
	return func(w *CleanupWorker) {
		if m != nil {
			w.metrics = m
		}
	}
}

// WithInterval задаёт паузу между прогонами; значения <= 0 игнорируются.
func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize задаёт лимит одного DeleteExpired; значения <= 0 игнорируются.
func WithBatchSize(size int) CleanupOption {
	return func(w *CleanupWorker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

func WithClock(now func() time.Time) CleanupOption {
	return func(w *CleanupWorker) {
		if now != nil {
			w.now = now
		}
	}
}

// CleanupWorker по таймеру вычищает ключи, срок которых истёк. Ответы по ним больше не повторяются,
// а сам ключ снова можно занять.
type CleanupWorker struct {
	store     ExpiredKeyStore
	logger    *log.Entry
	metrics   *metrics.CleanupMetrics
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewCleanupWorker(store ExpiredKeyStore, opts ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		store:     store,
		interval:  defaultCleanupInterval,
		batchSize: defaultCleanupBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = log.WithField("component", "idempotency-cleanup-worker")
	}
	if w.metrics == nil {
		w.metrics = metrics.NewCleanupMetrics(prometheus.DefaultRegisterer)
	}
	return w
}

// Run чистит сразу при старте, затем раз в interval, пока ctx не отменён.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.store == nil {
		w.logger.Warn("idempotency cleanup is disabled: no key store")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		w.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce выполняет один прогон и возвращает число удалённых ключей.
func (w *CleanupWorker) RunOnce(ctx context.Context) int {
	removed, err := w.DeleteExpired(ctx, w.now().UTC())
	switch {
	case errors.Is(err, context.Canceled):
	case err != nil:
		w.metrics.Runs.WithLabelValues("error").Inc()
		w.logger.WithError(err).WithField("deleted", removed).Warn("idempotency cleanup run failed")
	default:
		w.metrics.Runs.WithLabelValues("ok").Inc()
		w.metrics.LastDeleted.Set(float64(removed))
		if removed > 0 {
			w.logger.WithField("deleted", removed).Info("expired idempotency keys removed")
		}
	}
	return removed
}

// DeleteExpired удаляет порции по batchSize, пока порция заполнена целиком.
// Число порций за прогон ограничено maxBatchesPerRun.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.now().UTC()
	}

	removed := 0
	for range maxBatchesPerRun {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		n, err := w.store.DeleteExpired(ctx, before, w.batchSize)
		if err != nil {
			return removed, err
		}
		removed += n
		w.metrics.Deleted.Add(float64(n))
		if n < w.batchSize {
			break
		}
	}
	return removed, nil
}
