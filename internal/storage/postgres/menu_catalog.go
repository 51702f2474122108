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

var menuColumns = []string{"id", "name", "description", "category", "price_minor", "is_available", "created_at", "updated_at"}

type menuCatalog struct {
	db *sql.DB
}

// NewMenuCatalog создаёт PostgreSQL-реализацию MenuCatalog.
func NewMenuCatalog(store *Store) domain.MenuCatalog {
	return &menuCatalog{db: store.DB()}
}

func (c *menuCatalog) FindByID(ctx context.Context, id string) (domain.MenuItem, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	query, args, err := psql.Select(menuColumns...).From("menu_items").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.MenuItem{}, fmt.Errorf("build select menu item: %w", err)
	}

	item, err := scanMenuItem(c.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.MenuItem{}, domain.ErrMenuItemNotFound
		}
		return domain.MenuItem{}, fmt.Errorf("select menu item: %w", err)
	}
	return item, nil
}

func (c *menuCatalog) FindMany(ctx context.Context, ids []string) ([]domain.MenuItem, error) {
	if len(ids) == 0 {
		return []domain.MenuItem{}, nil
	}
	return c.query(ctx, psql.Select(menuColumns...).From("menu_items").Where(sq.Eq{"id": ids}))
}

func (c *menuCatalog) List(ctx context.Context, onlyAvailable bool) ([]domain.MenuItem, error) {
	builder := psql.Select(menuColumns...).From("menu_items").OrderBy("category", "name", "id")
	if onlyAvailable {
		builder = builder.Where(sq.Eq{"is_available": true})
	}
	return c.query(ctx, builder)
}

func (c *menuCatalog) Create(ctx context.Context, item domain.MenuItem) (domain.MenuItem, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now

	query, args, err := psql.Insert("menu_items").Columns(menuColumns...).Values(
		item.ID, item.Name, item.Description, item.Category,
		item.PriceMinor, item.IsAvailable, item.CreatedAt, item.UpdatedAt,
	).ToSql()
	if err != nil {
		return domain.MenuItem{}, fmt.Errorf("build insert menu item: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return domain.MenuItem{}, fmt.Errorf("insert menu item: %w", err)
	}
	return item, nil
}

func (c *menuCatalog) Update(ctx context.Context, item domain.MenuItem) (domain.MenuItem, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	item.UpdatedAt = time.Now().UTC()
	query, args, err := psql.Update("menu_items").SetMap(map[string]any{
		"name":         item.Name,
		"description":  item.Description,
		"category":     item.Category,
		"price_minor":  item.PriceMinor,
		"is_available": item.IsAvailable,
		"updated_at":   item.UpdatedAt,
	}).Where(sq.Eq{"id": item.ID}).Suffix("RETURNING created_at").ToSql()
	if err != nil {
		return domain.MenuItem{}, fmt.Errorf("build update menu item: %w", err)
	}

	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&item.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.MenuItem{}, domain.ErrMenuItemNotFound
		}
		return domain.MenuItem{}, fmt.Errorf("update menu item: %w", err)
	}
	item.CreatedAt = item.CreatedAt.UTC()
	return item, nil
}

func (c *menuCatalog) Delete(ctx context.Context, id string) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := c.db.ExecContext(ctx, `DELETE FROM menu_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete menu item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrMenuItemNotFound
	}
	return nil
}

func (c *menuCatalog) query(ctx context.Context, builder sq.SelectBuilder) ([]domain.MenuItem, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build menu query: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query menu items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.MenuItem, 0)
	for rows.Next() {
		item, err := scanMenuItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate menu items: %w", err)
	}
	return items, nil
}

func scanMenuItem(row rowScanner) (domain.MenuItem, error) {
	var item domain.MenuItem
	if err := row.Scan(
		&item.ID, &item.Name, &item.Description, &item.Category,
		&item.PriceMinor, &item.IsAvailable, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		return domain.MenuItem{}, err
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, nil
}

var _ domain.MenuCatalog = (*menuCatalog)(nil)
