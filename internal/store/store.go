package store

import (
	"context"
	"errors"
	"time"

	"dorixona/backend/internal/domain"
	"dorixona/backend/internal/reconcile"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrValidation mirrors the arithmetic layer sentinel so callers can
	// match it with errors.Is regardless of which layer raised it.
	ErrValidation = reconcile.ErrValidation
	// ErrInsufficientStock is returned when a sale or return asks for more
	// units than the outlet still holds.
	ErrInsufficientStock = reconcile.ErrInsufficientStock
)

// Repository is the persistence contract shared by the Postgres and the
// in-memory implementations. Mutating stock or debt methods run as a single
// transaction inside the implementation.
type Repository interface {
	// Products.
	ListProducts(ctx context.Context, includeArchived bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (domain.Product, error)
	ArchiveProduct(ctx context.Context, id string) error
	TopUpProductStock(ctx context.Context, id string, units int) (domain.Product, error)

	// Outlets.
	ListOutlets(ctx context.Context, kind string) ([]domain.Outlet, error)
	GetOutlet(ctx context.Context, id string) (domain.Outlet, error)
	CreateOutlet(ctx context.Context, outlet domain.Outlet) (domain.Outlet, error)
	UpdateOutlet(ctx context.Context, outlet domain.Outlet) (domain.Outlet, error)

	// Intake: moves units from central stock onto the outlet shelf and
	// increases outlet debt by the receipt total. A repeated idempotency key
	// returns the stored receipt with duplicate=true instead of applying
	// the intake twice.
	CreateReceipt(ctx context.Context, receipt domain.Receipt) (domain.Receipt, bool, error)
	GetReceipt(ctx context.Context, id string) (domain.Receipt, error)
	ListReceiptsByOutlet(ctx context.Context, outletID string) ([]domain.Receipt, error)
	// DeleteReceipt reverses an intake. It fails with ErrValidation when any
	// unit on the receipt has already been sold or returned.
	DeleteReceipt(ctx context.Context, id string) error

	// SellProduct consumes qty units from the outlet's open receipt lines,
	// oldest first. Debt does not change: sold units were already owed at
	// intake time.
	SellProduct(ctx context.Context, outletID, productID string, qty int) (domain.SaleResponse, error)
	// ReturnProduct sends qty units back to central stock and credits the
	// allocated value against the outlet's debt.
	ReturnProduct(ctx context.Context, outletID, productID string, qty int) (domain.ReturnResponse, error)

	// Debt.
	RecordDebtPayment(ctx context.Context, outletID string, amount int64) (domain.PaymentResponse, error)
	ListDebtPayments(ctx context.Context, outletID string) ([]domain.DebtPayment, error)
	DebtSummary(ctx context.Context, outletID string) (domain.DebtSummary, error)

	// OutletStock reports per-product given/remaining/sold figures for one
	// outlet, derived from its receipt lines.
	OutletStock(ctx context.Context, outletID string) ([]domain.ProductStock, error)

	// Notifications and audit trail.
	CreateNotification(ctx context.Context, notification domain.Notification) error
	ListNotifications(ctx context.Context, limit int) ([]domain.Notification, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	// ListAuditLogs returns entries newest-first. A non-zero day restricts
	// the listing to entries created on that UTC calendar day.
	ListAuditLogs(ctx context.Context, day time.Time, limit int) ([]domain.AuditLog, error)

	// Users.
	GetUser(ctx context.Context, username string) (domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	UpdateUserPassword(ctx context.Context, username, passwordHash string) error
	SetUserActive(ctx context.Context, username string, active bool) error
}
