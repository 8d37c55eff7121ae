package enum

// ── State machines (CHECK constrained in DB) ──

const (
	OrderStatusPending   = "PENDING"
	OrderStatusPreparing = "PREPARING"
	OrderStatusReady     = "READY"
	OrderStatusServed    = "SERVED"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusCancelled = "CANCELLED"
)

const (
	PaymentStatusPending = "PENDING"
	PaymentStatusPaid    = "PAID"
	PaymentStatusFailed  = "FAILED"
)

// ── Roles and plans (CHECK constrained in DB) ──

const (
	UserRoleOwner = "OWNER"
	UserRoleStaff = "STAFF"
	UserRoleAdmin = "ADMIN"
)

const (
	PlanStarter = "STARTER"
	PlanMedium  = "MEDIUM"
	PlanPro     = "PRO"
)

// ── Configurable labels ──

const (
	PaymentMethodCash   = "CASH"
	PaymentMethodOnline = "ONLINE"
)

// IsTerminalOrderStatus reports whether no further status transition is
// permitted from s.
func IsTerminalOrderStatus(s string) bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}
