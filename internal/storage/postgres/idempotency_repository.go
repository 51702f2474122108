package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

var placementKeyColumns = []string{
	"user_id", "key", "request_hash", "status", "http_status", "response_body", "expires_at", "created_at", "updated_at",
}

// claimExpiredKey перезанимает ключ, чей срок истёк, но запись ещё не удалена очисткой.
const claimExpiredKey = `ON CONFLICT (user_id, key) DO UPDATE SET
	request_hash = EXCLUDED.request_hash,
	status = EXCLUDED.status,
	http_status = NULL,
	response_body = NULL,
	expires_at = EXCLUDED.expires_at,
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at
WHERE placement_keys.expires_at <= EXCLUDED.created_at
RETURNING user_id`

// placementKeyRepository хранит размещения заказов по ключу клиента в placement_keys.
type placementKeyRepository struct {
	db *sql.DB
}

// NewIdempotencyRepository создаёт PostgreSQL-реализацию IdempotencyRepository.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &placementKeyRepository{db: store.DB()}
}

func (r *placementKeyRepository) CreateProcessing(ctx context.Context, key domain.PlacementKey, requestHash string, expiresAt time.Time) (domain.IdempotencyRecord, error) {
	if key.IsZero() {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := time.Now().UTC()
	if expiresAt.IsZero() {
		expiresAt = now.Add(24 * time.Hour)
	}
	record := domain.IdempotencyRecord{
		Scope:       key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query, args, err := psql.Insert("placement_keys").
		Columns("user_id", "key", "request_hash", "status", "expires_at", "created_at", "updated_at").
		Values(key.UserID, key.Key, requestHash, string(record.Status), expiresAt, now, now).
		Suffix(claimExpiredKey).
		ToSql()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("build placement key insert: %w", err)
	}

	opCtx, cancel := withOpTimeout(ctx)
	defer cancel()

	var claimed string
	err = r.db.QueryRowContext(opCtx, query, args...).Scan(&claimed)
	switch {
	case err == nil:
		return record, nil
	case errors.Is(err, sql.ErrNoRows):
		// ключ занят живой записью
		existing, getErr := r.Get(ctx, key)
		if getErr != nil {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		if existing.RequestHash != requestHash {
			return existing, domain.ErrIdempotencyHashMismatch
		}
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	default:
		return domain.IdempotencyRecord{}, fmt.Errorf("claim placement key %s: %w", key, err)
	}
}

func (r *placementKeyRepository) Get(ctx context.Context, key domain.PlacementKey) (domain.IdempotencyRecord, error) {
	query, args, err := psql.Select(placementKeyColumns...).
		From("placement_keys").
		Where(sq.Eq{"user_id": key.UserID, "key": key.Key}).
		Where("expires_at > NOW()").
		ToSql()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("build placement key query: %w", err)
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var (
		record     domain.IdempotencyRecord
		status     string
		httpStatus sql.NullInt64
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&record.Scope.UserID, &record.Scope.Key, &record.RequestHash, &status, &httpStatus,
		&record.ResponseBody, &record.ExpiresAt, &record.CreatedAt, &record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("get placement key %s: %w", key, err)
	}

	record.Status = domain.IdempotencyStatus(status)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("placement key %s has unknown status %q", key, status)
	}
	record.HTTPStatus = int(httpStatus.Int64)
	return record, nil
}

func (r *placementKeyRepository) MarkDone(ctx context.Context, key domain.PlacementKey, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *placementKeyRepository) MarkFailed(ctx context.Context, key domain.PlacementKey, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired удаляет не больше limit просроченных записей, самые старые первыми.
func (r *placementKeyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	// подзапрос собирается с "?", плейсхолдеры $n расставит внешний psql
	expired := sq.Select("user_id", "key").
		From("placement_keys").
		Where(sq.LtOrEq{"expires_at": before}).
		OrderBy("expires_at")
	if limit > 0 {
		expired = expired.Limit(uint64(limit))
	}
	sub, subArgs, err := expired.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build expired placement keys query: %w", err)
	}
	query, args, err := psql.Delete("placement_keys").
		Where(sq.Expr("(user_id, key) IN ("+sub+")", subArgs...)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build placement keys cleanup: %w", err)
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired placement keys: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("placement keys rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *placementKeyRepository) finish(ctx context.Context, key domain.PlacementKey, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	query, args, err := psql.Update("placement_keys").SetMap(map[string]any{
		"status":        string(status),
		"http_status":   httpStatus,
		"response_body": responseBody,
		"updated_at":    time.Now().UTC(),
	}).Where(sq.Eq{"user_id": key.UserID, "key": key.Key}).ToSql()
	if err != nil {
		return fmt.Errorf("build placement key update: %w", err)
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store response for placement key %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("placement keys rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

var _ domain.IdempotencyRepository = (*placementKeyRepository)(nil)
