package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// menuCatalogInMemory хранит меню в памяти.
type menuCatalogInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.MenuItem
}

// NewMenuCatalog создаёт in-memory каталог, заполненный seed-позициями.
func NewMenuCatalog(seed ...domain.MenuItem) domain.MenuCatalog {
	c := &menuCatalogInMemory{items: make(map[string]domain.MenuItem, len(seed))}
	for _, item := range seed {
		c.items[item.ID] = item
	}
	return c
}

func (c *menuCatalogInMemory) FindByID(ctx context.Context, id string) (domain.MenuItem, error) {
	if err := ctx.Err(); err != nil {
		return domain.MenuItem{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[id]
	if !ok {
		return domain.MenuItem{}, domain.ErrMenuItemNotFound
	}
	return item, nil
}

func (c *menuCatalogInMemory) FindMany(ctx context.Context, ids []string) ([]domain.MenuItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{}, len(ids))
	result := make([]domain.MenuItem, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if item, ok := c.items[id]; ok {
			result = append(result, item)
		}
	}
	return result, nil
}

func (c *menuCatalogInMemory) List(ctx context.Context, onlyAvailable bool) ([]domain.MenuItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]domain.MenuItem, 0, len(c.items))
	for _, item := range c.items {
		if onlyAvailable && !item.IsAvailable {
			continue
		}
		result = append(result, item)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Category != result[j].Category {
			return result[i].Category < result[j].Category
		}
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (c *menuCatalogInMemory) Create(ctx context.Context, item domain.MenuItem) (domain.MenuItem, error) {
	if err := ctx.Err(); err != nil {
		return domain.MenuItem{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	c.items[item.ID] = item
	return item, nil
}

func (c *menuCatalogInMemory) Update(ctx context.Context, item domain.MenuItem) (domain.MenuItem, error) {
	if err := ctx.Err(); err != nil {
		return domain.MenuItem{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.items[item.ID]
	if !ok {
		return domain.MenuItem{}, domain.ErrMenuItemNotFound
	}
	item.CreatedAt = current.CreatedAt
	item.UpdatedAt = time.Now().UTC()
	c.items[item.ID] = item
	return item, nil
}

func (c *menuCatalogInMemory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[id]; !ok {
		return domain.ErrMenuItemNotFound
	}
	delete(c.items, id)
	return nil
}

var _ domain.MenuCatalog = (*menuCatalogInMemory)(nil)
