package domain

import "time"

// MaxLineQuantity ограничивает количество в одной строке заказа.
const MaxLineQuantity int64 = 10000

// MenuItem — позиция меню, принадлежащая каталогу.
type MenuItem struct {
	ID          string
	Name        string
	Description string
	Category    string
	// PriceMinor — цена за единицу в минимальных денежных единицах.
	PriceMinor  int64
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CartLine приходит от клиента и не сохраняется.
type CartLine struct {
	ItemID            string
	RequestedQuantity float64
}

// ValidatedLine содержит строку корзины, сверенную с каталогом.
type ValidatedLine struct {
	Item     MenuItem
	Quantity int64
}

// ValidatedCart — результат проверки корзины, готовый к агрегации.
type ValidatedCart struct {
	Lines []ValidatedLine
}
