package domain

import (
	"fmt"
	"strings"
	"time"
)

// MaxPlacementKeyLength ограничивает длину заголовка Idempotency-Key.
const MaxPlacementKeyLength = 128

// PlacementKey — клиентский ключ повтора размещения заказа в пределах одного пользователя.
// Одинаковые ключи разных пользователей не пересекаются.
type PlacementKey struct {
	UserID string
	Key    string
}

// NewPlacementKey нормализует ключ клиента и проверяет его длину.
func NewPlacementKey(userID, key string) (PlacementKey, error) {
	k := PlacementKey{UserID: strings.TrimSpace(userID), Key: strings.TrimSpace(key)}
	switch {
	case k.UserID == "":
		return PlacementKey{}, ErrUnauthorized
	case k.Key == "":
		return PlacementKey{}, ErrIdempotencyKeyRequired
	case len(k.Key) > MaxPlacementKeyLength:
		return PlacementKey{}, fmt.Errorf("%w: idempotency key longer than %d bytes", ErrInvalidRequest, MaxPlacementKeyLength)
	}
	return k, nil
}

// IsZero сообщает, что ключ не задан и защита от повторов не нужна.
func (k PlacementKey) IsZero() bool {
	return k.Key == ""
}

func (k PlacementKey) String() string {
	return k.UserID + "/" + k.Key
}

// IdempotencyStatus — стадия размещения, начатого с ключом.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing: заказ размещается, повтор получит конфликт.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone: ответ сохранён, повтор получит его же.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed: размещение упало на стороне сервера, ответ сохранён как есть.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// Replayable сообщает, что у записи есть сохранённый ответ.
func (s IdempotencyStatus) Replayable() bool {
	return s == IdempotencyStatusDone || s == IdempotencyStatusFailed
}

// IdempotencyRecord — размещение заказа, привязанное к PlacementKey, и ответ на него.
type IdempotencyRecord struct {
	Scope        PlacementKey
	RequestHash  string
	Status       IdempotencyStatus
	HTTPStatus   int
	ResponseBody []byte
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired сообщает, что запись больше не защищает от повторов.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
