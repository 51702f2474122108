package ordering

import (
	"context"
	"fmt"
	"math"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// Validator сверяет корзину клиента с каталогом меню.
type Validator struct {
	catalog domain.MenuCatalog
}

// NewValidator создаёт валидатор поверх каталога.
func NewValidator(catalog domain.MenuCatalog) *Validator {
	return &Validator{catalog: catalog}
}

// Validate проверяет корзину по порядку: пустота, наличие позиций, количество и сумма.
// Ни одна строка не принимается частично: первая недоступная позиция отклоняет всю корзину.
func (v *Validator) Validate(ctx context.Context, cart []domain.CartLine) (domain.ValidatedCart, error) {
	if len(cart) == 0 {
		return domain.ValidatedCart{}, domain.ErrEmptyCart
	}

	ids := make([]string, 0, len(cart))
	for _, line := range cart {
		ids = append(ids, line.ItemID)
	}

	found, err := v.catalog.FindMany(ctx, ids)
	if err != nil {
		return domain.ValidatedCart{}, fmt.Errorf("lookup menu items: %w", err)
	}

	byID := make(map[string]domain.MenuItem, len(found))
	available := 0
	for _, item := range found {
		byID[item.ID] = item
		if item.IsAvailable {
			available++
		}
	}
	if available == 0 {
		return domain.ValidatedCart{}, domain.ErrInvalidItems
	}

	lines := make([]domain.ValidatedLine, 0, len(cart))
	var total int64
	for _, line := range cart {
		item, ok := byID[line.ItemID]
		if !ok || !item.IsAvailable {
			return domain.ValidatedCart{}, &domain.ItemUnavailableError{ItemID: line.ItemID, Name: item.Name}
		}

		qty := CoerceQuantity(line.RequestedQuantity)
		if qty > domain.MaxLineQuantity {
			return domain.ValidatedCart{}, fmt.Errorf("%w: %s requested %d, max %d",
				domain.ErrQuantityOutOfRange, line.ItemID, qty, domain.MaxLineQuantity)
		}
		if total, err = addLineTotal(total, item, qty); err != nil {
			return domain.ValidatedCart{}, err
		}
		lines = append(lines, domain.ValidatedLine{Item: item, Quantity: qty})
	}

	return domain.ValidatedCart{Lines: lines}, nil
}

// addLineTotal прибавляет стоимость строки к сумме заказа с проверкой переполнения int64.
func addLineTotal(total int64, item domain.MenuItem, qty int64) (int64, error) {
	if item.PriceMinor > 0 && qty > math.MaxInt64/item.PriceMinor {
		return 0, fmt.Errorf("%w: line total overflows for %s", domain.ErrQuantityOutOfRange, item.ID)
	}
	lineTotal := item.PriceMinor * qty
	if total > math.MaxInt64-lineTotal {
		return 0, fmt.Errorf("%w: order total overflows", domain.ErrQuantityOutOfRange)
	}
	return total + lineTotal, nil
}

// CoerceQuantity приводит запрошенное количество к целому >= 1.
// Нечисловое, бесконечное и неположительное значение превращается в 1, остальное округляется.
func CoerceQuantity(requested float64) int64 {
	if math.IsNaN(requested) || math.IsInf(requested, 0) || requested <= 0 {
		return 1
	}
	rounded := math.Round(requested)
	if rounded < 1 {
		return 1
	}
	if rounded > float64(math.MaxInt64/2) {
		return math.MaxInt64 / 2
	}
	return int64(rounded)
}
