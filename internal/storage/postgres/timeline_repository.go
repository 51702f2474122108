package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

var timelineColumns = []string{"order_id", "token", "type", "status", "actor", "occurred"}

// timelineRepository хранит историю заказов в order_timeline.
type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository создаёт PostgreSQL-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	query, args, err := psql.Insert("order_timeline").Columns(timelineColumns...).Values(
		event.OrderID, event.Token, event.Type, string(event.Status), event.Actor, event.Occurred,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build timeline insert: %w", err)
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("append timeline event for token %d: %w", event.Token, err)
	}
	return nil
}

func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	query, args, err := psql.Select(timelineColumns...).
		From("order_timeline").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("occurred", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build timeline query: %w", err)
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list timeline of order %s: %w", orderID, err)
	}
	defer rows.Close()

	var events []domain.TimelineEvent
	for rows.Next() {
		var (
			event  domain.TimelineEvent
			status string
		)
		if err := rows.Scan(&event.OrderID, &event.Token, &event.Type, &status, &event.Actor, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		event.Status = domain.OrderStatus(status)
		event.Occurred = event.Occurred.UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
