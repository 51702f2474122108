package domain

// Role определяет уровень доступа пользователя.
type Role string

const (
	RoleUser  Role = "user"
	RoleStaff Role = "staff"
	RoleAdmin Role = "admin"
)

// Valid проверяет, что роль известна системе.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleStaff, RoleAdmin:
		return true
	default:
		return false
	}
}

// Actor — аутентифицированный инициатор операции.
type Actor struct {
	UserID string
	Role   Role
}

// CanManageOrders сообщает, может ли актор менять статусы и видеть все заказы.
func (a Actor) CanManageOrders() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin
}

// CanView проверяет доступ к конкретному заказу: владелец или персонал.
func (a Actor) CanView(order Order) bool {
	return a.CanManageOrders() || (a.UserID != "" && a.UserID == order.OwnerID)
}
