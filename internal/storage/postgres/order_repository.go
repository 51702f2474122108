package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

const orderTokenConstraint = "orders_token_key"

var orderColumns = []string{"id", "owner_id", "token", "total_amount_minor", "status", "created_at", "updated_at"}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

// Create сохраняет заказ и его строки в одной транзакции.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) (created domain.Order, err error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, owner_id, token, total_amount_minor, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		order.ID, order.OwnerID, order.Token, order.TotalAmountMinor,
		string(order.Status), order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if uniqueConstraint(err) == orderTokenConstraint {
				return domain.Order{}, domain.ErrDuplicateToken
			}
			return domain.Order{}, domain.ErrOrderAlreadyExists
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for position, line := range order.Lines {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (
				order_id, position, item_id, name, unit_price_minor, quantity
			) VALUES ($1,$2,$3,$4,$5,$6)
		`,
			order.ID, position, line.ItemID, line.Name, line.UnitPriceMinor, line.Quantity,
		); err != nil {
			return domain.Order{}, fmt.Errorf("insert order line: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit create order: %w", err)
	}

	return order, nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	query, args, err := psql.Select(orderColumns...).From("orders").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Order{}, fmt.Errorf("build select order: %w", err)
	}

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	orders := []domain.Order{order}
	if err := r.attachLines(ctx, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

// List строит запрос по фильтру; строки подгружаются одним запросом на всю страницу.
func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	builder := psql.Select(orderColumns...).From("orders").OrderBy("created_at DESC", "token DESC")
	if filter.OwnerID != "" {
		builder = builder.Where(sq.Eq{"owner_id": filter.OwnerID})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list orders: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus меняет только статус и updated_at; строки заказа не трогаются.
func (r *orderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, updatedAt time.Time) (domain.Order, error) {
	opCtx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(opCtx, `
		UPDATE orders
		SET status = $1,
		    updated_at = $2
		WHERE id = $3
	`, string(status), updatedAt, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Order{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	return r.Get(ctx, id)
}

// Summary агрегирует заказы по статусам на стороне базы.
func (r *orderRepository) Summary(ctx context.Context) (domain.SalesSummary, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(total_amount_minor), 0)
		FROM orders
		GROUP BY status
	`)
	if err != nil {
		return domain.SalesSummary{}, fmt.Errorf("sales summary query: %w", err)
	}
	defer rows.Close()

	summary := domain.Summarize(nil)
	for rows.Next() {
		var (
			status string
			count  int64
			sum    int64
		)
		if err := rows.Scan(&status, &count, &sum); err != nil {
			return domain.SalesSummary{}, fmt.Errorf("scan sales summary: %w", err)
		}
		summary.CountsByStatus[domain.OrderStatus(status)] = count
		if domain.OrderStatus(status) == domain.OrderStatusCompleted {
			summary.TotalOrders = count
			summary.TotalSalesMinor = sum
		}
	}
	if err := rows.Err(); err != nil {
		return domain.SalesSummary{}, fmt.Errorf("iterate sales summary: %w", err)
	}

	if summary.TotalOrders > 0 {
		summary.AverageOrderValueMinor = float64(summary.TotalSalesMinor) / float64(summary.TotalOrders)
	}
	return summary, nil
}

func (r *orderRepository) attachLines(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, 0, len(orders))
	index := make(map[string]int, len(orders))
	for i, order := range orders {
		ids = append(ids, order.ID)
		index[order.ID] = i
	}

	query, args, err := psql.
		Select("order_id", "item_id", "name", "unit_price_minor", "quantity").
		From("order_lines").
		Where(sq.Eq{"order_id": ids}).
		OrderBy("order_id", "position").
		ToSql()
	if err != nil {
		return fmt.Errorf("build load order lines: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			line    domain.OrderLine
		)
		if err := rows.Scan(&orderID, &line.ItemID, &line.Name, &line.UnitPriceMinor, &line.Quantity); err != nil {
			return fmt.Errorf("scan order line: %w", err)
		}
		i := index[orderID]
		orders[i].Lines = append(orders[i].Lines, line)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order lines: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	if err := row.Scan(
		&order.ID, &order.OwnerID, &order.Token, &order.TotalAmountMinor,
		&status, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
