package domain

import (
	"context"
	"time"
)

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ и возвращает его с присвоенным идентификатором.
	Create(ctx context.Context, order Order) (Order, error)
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает заказы по фильтру, новые первыми.
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	// UpdateStatus меняет статус и updated_at; возвращает ErrOrderNotFound, если заказа нет.
	UpdateStatus(ctx context.Context, id string, status OrderStatus, updatedAt time.Time) (Order, error)
	// Summary считает сводку продаж по текущему состоянию хранилища.
	Summary(ctx context.Context) (SalesSummary, error)
}

// MenuCatalog — источник истины по позициям меню.
type MenuCatalog interface {
	// FindByID возвращает позицию или ErrMenuItemNotFound.
	FindByID(ctx context.Context, id string) (MenuItem, error)
	// FindMany возвращает найденные позиции; отсутствующие id молча пропускаются.
	FindMany(ctx context.Context, ids []string) ([]MenuItem, error)
	// List возвращает меню, отсортированное по категории и названию.
	List(ctx context.Context, onlyAvailable bool) ([]MenuItem, error)
	Create(ctx context.Context, item MenuItem) (MenuItem, error)
	Update(ctx context.Context, item MenuItem) (MenuItem, error)
	Delete(ctx context.Context, id string) error
}

// TokenCounter — атомарный инкремент именованного счётчика в хранилище.
type TokenCounter interface {
	// Increment увеличивает счётчик на единицу и возвращает новое значение.
	// Отсутствующий счётчик создаётся со значением 1.
	Increment(ctx context.Context, key string) (int64, error)
}
