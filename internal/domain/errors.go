package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCart возвращается, если в корзине нет ни одной позиции.
	ErrEmptyCart = errors.New("cart must contain at least one item")
	// ErrInvalidItems возвращается, если каталог не нашёл ни одной из запрошенных позиций.
	ErrInvalidItems = errors.New("selected menu items are not available")
	// ErrItemUnavailable возвращается, если позиция неизвестна каталогу или снята с продажи.
	ErrItemUnavailable = errors.New("menu item is unavailable")
	// ErrQuantityOutOfRange возвращается, если количество после округления превышает предел.
	ErrQuantityOutOfRange = errors.New("item quantity is out of range")
	// ErrInvalidStatus возвращается для статуса вне поддерживаемого набора.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrTokenUnavailable означает, что счётчик не выдал номер очереди.
	ErrTokenUnavailable = errors.New("order token is unavailable")
	// ErrPersistence означает, что заказ не сохранён после выдачи номера.
	ErrPersistence = errors.New("order persistence failed")
	// ErrDuplicateToken возвращается хранилищем, если номер уже занят другим заказом.
	ErrDuplicateToken = errors.New("order token already used")
	// ErrOrderAlreadyExists возвращается при повторном сохранении заказа с тем же ID.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrMenuItemNotFound возвращается, если позиции меню нет в каталоге.
	ErrMenuItemNotFound = errors.New("menu item not found")
	// ErrForbidden возвращается, если у актора нет прав на операцию.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized возвращается для запроса без валидной аутентификации.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidRequest возвращается, если тело или параметры запроса не разобраны.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrIdempotencyKeyConflict возвращается, пока запрос с тем же ключом ещё обрабатывается.
	ErrIdempotencyKeyConflict = errors.New("idempotency key conflict")
	// ErrIdempotencyKeyAlreadyExists возвращается, если запись по ключу уже создана.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch возвращается при повторном ключе с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key request hash mismatch")
	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound возвращается, если записи по ключу нет.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrOutboxPublish оборачивает ошибки публикации из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ItemUnavailableError называет конкретную позицию, из-за которой отклонена корзина.
type ItemUnavailableError struct {
	ItemID string
	Name   string
}

func (e *ItemUnavailableError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("menu item %q (%s) is unavailable", e.Name, e.ItemID)
	}
	return fmt.Sprintf("menu item %s is unavailable", e.ItemID)
}

// Unwrap позволяет сопоставлять ошибку через errors.Is(err, ErrItemUnavailable).
func (e *ItemUnavailableError) Unwrap() error {
	return ErrItemUnavailable
}

// ErrorKind — машинно-различимый вид ошибки для клиентов API.
type ErrorKind string

const (
	KindEmptyCart           ErrorKind = "EMPTY_CART"
	KindInvalidItems        ErrorKind = "INVALID_ITEMS"
	KindItemUnavailable     ErrorKind = "ITEM_UNAVAILABLE"
	KindQuantityOutOfRange  ErrorKind = "QUANTITY_OUT_OF_RANGE"
	KindInvalidStatus       ErrorKind = "INVALID_STATUS"
	KindTokenUnavailable    ErrorKind = "TOKEN_UNAVAILABLE"
	KindPersistenceFailure  ErrorKind = "PERSISTENCE_FAILURE"
	KindOrderNotFound       ErrorKind = "ORDER_NOT_FOUND"
	KindMenuItemNotFound    ErrorKind = "MENU_ITEM_NOT_FOUND"
	KindForbidden           ErrorKind = "FORBIDDEN"
	KindUnauthorized        ErrorKind = "UNAUTHORIZED"
	KindInvalidRequest      ErrorKind = "INVALID_REQUEST"
	KindIdempotencyConflict ErrorKind = "IDEMPOTENCY_CONFLICT"
	KindInternal            ErrorKind = "INTERNAL"
)

var kindBySentinel = []struct {
	err  error
	kind ErrorKind
}{
	{ErrEmptyCart, KindEmptyCart},
	{ErrInvalidItems, KindInvalidItems},
	{ErrItemUnavailable, KindItemUnavailable},
	{ErrQuantityOutOfRange, KindQuantityOutOfRange},
	{ErrInvalidStatus, KindInvalidStatus},
	{ErrTokenUnavailable, KindTokenUnavailable},
	{ErrPersistence, KindPersistenceFailure},
	{ErrOrderNotFound, KindOrderNotFound},
	{ErrMenuItemNotFound, KindMenuItemNotFound},
	{ErrForbidden, KindForbidden},
	{ErrUnauthorized, KindUnauthorized},
	{ErrInvalidRequest, KindInvalidRequest},
	{ErrIdempotencyKeyConflict, KindIdempotencyConflict},
	{ErrIdempotencyHashMismatch, KindIdempotencyConflict},
}

// KindOf возвращает вид ошибки; неизвестные ошибки считаются внутренними.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, entry := range kindBySentinel {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindInternal
}

// IsIdempotencyConflict проверяет, является ли ошибка конфликтом ключа идемпотентности.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyConflict) ||
		errors.Is(err, ErrIdempotencyKeyAlreadyExists) ||
		errors.Is(err, ErrIdempotencyHashMismatch)
}
