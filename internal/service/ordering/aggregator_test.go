package ordering

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestAggregator_BuildComputesTotalAndSnapshot(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	agg := NewAggregator(fixedClock(now))

	cart := domain.ValidatedCart{Lines: []domain.ValidatedLine{
		{Item: domain.MenuItem{ID: "A", Name: "Samosa", PriceMinor: 50, IsAvailable: true}, Quantity: 2},
		{Item: domain.MenuItem{ID: "C", Name: "Chai", PriceMinor: 20, IsAvailable: true}, Quantity: 3},
	}}

	order, err := agg.Build("user-1", cart, 7)
	require.NoError(t, err)

	assert.Empty(t, order.ID)
	assert.Equal(t, "user-1", order.OwnerID)
	assert.Equal(t, int64(7), order.Token)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, int64(160), order.TotalAmountMinor)
	assert.Equal(t, now, order.CreatedAt)
	assert.Equal(t, now, order.UpdatedAt)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, domain.OrderLine{ItemID: "A", Name: "Samosa", UnitPriceMinor: 50, Quantity: 2}, order.Lines[0])
	require.Empty(t, order.ValidateInvariants())
}

func TestAggregator_BuildIsPure(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	agg := NewAggregator(fixedClock(now))
	cart := domain.ValidatedCart{Lines: []domain.ValidatedLine{
		{Item: domain.MenuItem{ID: "A", Name: "Samosa", PriceMinor: 50}, Quantity: 1},
	}}

	first, err := agg.Build("user-1", cart, 3)
	require.NoError(t, err)
	second, err := agg.Build("user-1", cart, 3)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	// изменение снимка после сборки не влияет на заказ
	cart.Lines[0].Item.PriceMinor = 999
	assert.Equal(t, int64(50), first.Lines[0].UnitPriceMinor)
}

func TestAggregator_BuildRejectsOverflow(t *testing.T) {
	agg := NewAggregator(nil)

	cart := domain.ValidatedCart{Lines: []domain.ValidatedLine{
		{Item: domain.MenuItem{ID: "A", PriceMinor: math.MaxInt64 / 2}, Quantity: 3},
	}}
	_, err := agg.Build("user-1", cart, 1)
	require.ErrorIs(t, err, domain.ErrQuantityOutOfRange)

	cart = domain.ValidatedCart{Lines: []domain.ValidatedLine{
		{Item: domain.MenuItem{ID: "A", PriceMinor: math.MaxInt64 - 1}, Quantity: 1},
		{Item: domain.MenuItem{ID: "B", PriceMinor: 10}, Quantity: 1},
	}}
	_, err = agg.Build("user-1", cart, 1)
	require.ErrorIs(t, err, domain.ErrQuantityOutOfRange)
}
