// Package idempotency защищает размещение заказов от повторной отправки одного и того же запроса.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

const (
	// DefaultTTL — время жизни ключа идемпотентности.
	DefaultTTL = 24 * time.Hour
	// storeTimeout ограничивает сохранение ответа после отмены запроса.
	storeTimeout = 5 * time.Second
)

// Response — сохраняемый ответ на запрос с ключом идемпотентности.
type Response struct {
	Status int
	Body   []byte
}

// Guard размещает заказ не более одного раза на PlacementKey и воспроизводит сохранённый ответ.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

// NewGuard создаёт Guard; ttl <= 0 означает DefaultTTL.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{
		repo:   repo,
		ttl:    ttl,
		logger: log.WithField("component", "idempotency-guard"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// HashRequest строит отпечаток запроса из метода, пути и тела.
func HashRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(":"))
	h.Write([]byte(path))
	h.Write([]byte(":"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Do размещает заказ через handler для нового ключа. Для ключа с сохранённым ответом
// возвращает этот ответ и replayed=true. Пустой ключ отключает защиту.
func (g *Guard) Do(ctx context.Context, key domain.PlacementKey, requestHash string, handler func(context.Context) Response) (resp Response, replayed bool, err error) {
	if g == nil || g.repo == nil || key.IsZero() {
		return handler(ctx), false, nil
	}

	record, err := g.repo.CreateProcessing(ctx, key, requestHash, g.now().Add(g.ttl))
	if err != nil {
		return g.replay(key, record, err)
	}

	resp = handler(ctx)
	g.store(ctx, key, resp)
	return resp, false, nil
}

func (g *Guard) replay(key domain.PlacementKey, record domain.IdempotencyRecord, createErr error) (Response, bool, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return Response{}, false, createErr
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		if record.Status == domain.IdempotencyStatusProcessing {
			return Response{}, false, domain.ErrIdempotencyKeyConflict
		}
		if !record.Status.Replayable() {
			return Response{}, false, fmt.Errorf("placement key %s has unknown status %q", key, record.Status)
		}
		status := record.HTTPStatus
		if status == 0 {
			status = http.StatusOK
		}
		g.logger.WithFields(g.keyFields(key)).WithField("status", status).Debug("replaying stored placement response")
		return Response{Status: status, Body: record.ResponseBody}, true, nil
	default:
		g.logger.WithError(createErr).WithFields(g.keyFields(key)).Warn("failed to claim placement key")
		return Response{}, false, fmt.Errorf("claim placement key: %w", createErr)
	}
}

// store сохраняет ответ даже при отменённом контексте запроса: заказ уже размещён, номер выдан.
func (g *Guard) store(ctx context.Context, key domain.PlacementKey, resp Response) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	var err error
	if resp.Status >= http.StatusInternalServerError {
		err = g.repo.MarkFailed(ctx, key, resp.Body, resp.Status)
	} else {
		err = g.repo.MarkDone(ctx, key, resp.Body, resp.Status)
	}
	if err != nil {
		g.logger.WithError(err).WithFields(g.keyFields(key)).Warn("failed to store placement response")
	}
}

func (g *Guard) keyFields(key domain.PlacementKey) log.Fields {
	return log.Fields{"user_id": key.UserID, "idempotency_key": key.Key}
}
