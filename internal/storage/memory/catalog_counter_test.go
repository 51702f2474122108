package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/storage/memory"
)

func TestMenuCatalog_ListSortedByCategoryThenName(t *testing.T) {
	ctx := context.Background()
	catalog := memory.NewMenuCatalog(
		domain.MenuItem{ID: "1", Name: "Tea", Category: "drinks", PriceMinor: 20, IsAvailable: true},
		domain.MenuItem{ID: "2", Name: "Borscht", Category: "soups", PriceMinor: 50, IsAvailable: true},
		domain.MenuItem{ID: "3", Name: "Coffee", Category: "drinks", PriceMinor: 30, IsAvailable: false},
		domain.MenuItem{ID: "4", Name: "Juice", Category: "drinks", PriceMinor: 25, IsAvailable: true},
	)

	available, err := catalog.List(ctx, true)
	require.NoError(t, err)
	require.Equal(t, []string{"4", "1", "2"}, menuIDs(available))

	all, err := catalog.List(ctx, false)
	require.NoError(t, err)
	require.Equal(t, []string{"3", "4", "1", "2"}, menuIDs(all))
}

func TestMenuCatalog_FindManySkipsUnknownAndDuplicates(t *testing.T) {
	ctx := context.Background()
	catalog := memory.NewMenuCatalog(
		domain.MenuItem{ID: "a", Name: "Soup", PriceMinor: 50, IsAvailable: true},
	)

	items, err := catalog.FindMany(ctx, []string{"a", "ghost", "a"})
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = catalog.FindByID(ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrMenuItemNotFound)
}

func TestMenuCatalog_CRUD(t *testing.T) {
	ctx := context.Background()
	catalog := memory.NewMenuCatalog()

	created, err := catalog.Create(ctx, domain.MenuItem{Name: "Pie", Category: "bakery", PriceMinor: 40, IsAvailable: true})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.False(t, created.CreatedAt.IsZero())

	created.PriceMinor = 45
	updated, err := catalog.Update(ctx, created)
	require.NoError(t, err)
	require.Equal(t, int64(45), updated.PriceMinor)
	require.False(t, updated.UpdatedAt.Before(created.CreatedAt))

	require.NoError(t, catalog.Delete(ctx, created.ID))
	require.ErrorIs(t, catalog.Delete(ctx, created.ID), domain.ErrMenuItemNotFound)

	_, err = catalog.Update(ctx, domain.MenuItem{ID: "ghost"})
	require.ErrorIs(t, err, domain.ErrMenuItemNotFound)
}

func TestTokenCounter_ConcurrentIncrementsAreDistinct(t *testing.T) {
	ctx := context.Background()
	counter := memory.NewTokenCounter()

	const workers = 64
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		tokens = make(map[int64]struct{}, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := counter.Increment(ctx, "order_token")
			assert.NoError(t, err)
			mu.Lock()
			tokens[value] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, tokens, workers)
	for i := int64(1); i <= workers; i++ {
		require.Contains(t, tokens, i)
	}

	other, err := counter.Increment(ctx, "other")
	require.NoError(t, err)
	require.Equal(t, int64(1), other)
}

func TestTokenCounter_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := memory.NewTokenCounter().Increment(ctx, "order_token")
	require.Error(t, err)
}

func TestTimelineRepository_ChronologicalOrder(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTimelineRepository()
	base := time.Now().UTC()

	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{OrderID: "o", Type: domain.TimelineOrderStatusChanged, Status: domain.OrderStatusCompleted, Occurred: base.Add(time.Minute)}))
	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{OrderID: "o", Type: domain.TimelineOrderPlaced, Occurred: base}))

	events, err := repo.List(ctx, "o")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.TimelineOrderPlaced, events[0].Type)
}

func menuIDs(items []domain.MenuItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}
