package domain

import "time"

// All monetary amounts are integral so'm. All quantities are single pills or
// pieces (units); package counts are converted to units at the edge.

type Product struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Dosage          string `json:"dosage"`
	Manufacturer    string `json:"manufacturer"`
	UnitKind        string `json:"unit_kind"`
	PillsPerPackage int    `json:"pills_per_package"`
	SellingPrice    int64  `json:"selling_price"`
	PurchasePrice   int64  `json:"purchase_price"`
	StockUnits      int    `json:"stock_units"`
	Archived        bool   `json:"archived"`
}

type ProductCreateRequest struct {
	Name            string `json:"name"`
	Dosage          string `json:"dosage"`
	Manufacturer    string `json:"manufacturer"`
	UnitKind        string `json:"unit_kind"`
	PillsPerPackage int    `json:"pills_per_package"`
	SellingPrice    int64  `json:"selling_price"`
	PurchasePrice   int64  `json:"purchase_price"`
	InitialPackages int    `json:"initial_packages"`
	InitialUnits    int    `json:"initial_units"`
}

type ProductUpdateRequest struct {
	Name          *string `json:"name,omitempty"`
	Dosage        *string `json:"dosage,omitempty"`
	Manufacturer  *string `json:"manufacturer,omitempty"`
	SellingPrice  *int64  `json:"selling_price,omitempty"`
	PurchasePrice *int64  `json:"purchase_price,omitempty"`
}

type StockTopUpRequest struct {
	Packages int `json:"packages"`
	Units    int `json:"units"`
}

// Outlet is a pharmacy or polyclinic that receives stock on credit.
// RemainingDebt is maintained by the store inside the same transaction as
// every debt-touching mutation; callers must re-read it after mutating.
type Outlet struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Name          string    `json:"name"`
	Address       string    `json:"address"`
	Phone         string    `json:"phone"`
	Manager       string    `json:"manager"`
	Region        string    `json:"region"`
	RemainingDebt int64     `json:"remaining_debt"`
	CreatedAt     time.Time `json:"created_at"`
}

type OutletCreateRequest struct {
	Kind    string `json:"kind,omitempty"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Manager string `json:"manager"`
	Region  string `json:"region"`
}

type OutletUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Address *string `json:"address,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Manager *string `json:"manager,omitempty"`
	Region  *string `json:"region,omitempty"`
}

// ReceiptLine snapshots the unit price at intake time. The invariant
// 0 <= Remaining <= TotalGiven holds for every committed line.
type ReceiptLine struct {
	ID         string `json:"id"`
	ReceiptID  string `json:"receipt_id"`
	ProductID  string `json:"product_id"`
	UnitPrice  int64  `json:"unit_price"`
	TotalGiven int    `json:"total_given"`
	Remaining  int    `json:"remaining"`
}

type Receipt struct {
	ID             string        `json:"id"`
	OutletID       string        `json:"outlet_id"`
	IdempotencyKey string        `json:"idempotency_key"`
	TotalPrice     int64         `json:"total_price"`
	CreatedAt      time.Time     `json:"created_at"`
	Lines          []ReceiptLine `json:"lines"`
}

type ReceiptItemRequest struct {
	ProductID string `json:"product_id"`
	Packages  int    `json:"packages"`
	Units     int    `json:"units"`
}

type ReceiptCreateRequest struct {
	OutletID       string               `json:"outlet_id"`
	IdempotencyKey string               `json:"idempotency_key"`
	Items          []ReceiptItemRequest `json:"items"`
}

type ReceiptResponse struct {
	Receipt   Receipt `json:"receipt"`
	Outlet    Outlet  `json:"outlet"`
	Duplicate bool    `json:"duplicate"`
}

type SaleRequest struct {
	OutletID  string `json:"outlet_id"`
	ProductID string `json:"product_id"`
	Packages  int    `json:"packages"`
	Units     int    `json:"units"`
}

type SaleAllocation struct {
	ReceiptID string `json:"receipt_id"`
	LineID    string `json:"line_id"`
	Qty       int    `json:"qty"`
	Value     int64  `json:"value"`
}

type SaleResponse struct {
	OutletID    string           `json:"outlet_id"`
	ProductID   string           `json:"product_id"`
	Qty         int              `json:"qty"`
	SoldValue   int64            `json:"sold_value"`
	Allocations []SaleAllocation `json:"allocations"`
}

type ReturnRequest struct {
	OutletID   string `json:"outlet_id"`
	ProductID  string `json:"product_id"`
	Packages   int    `json:"packages"`
	Units      int    `json:"units"`
	ManagerPIN string `json:"manager_pin"`
}

type ReturnResponse struct {
	OutletID    string           `json:"outlet_id"`
	ProductID   string           `json:"product_id"`
	Qty         int              `json:"qty"`
	CreditValue int64            `json:"credit_value"`
	Allocations []SaleAllocation `json:"allocations"`
	Outlet      Outlet           `json:"outlet"`
}

// DebtPayment is an append-only ledger entry; payments are never edited.
type DebtPayment struct {
	ID        string    `json:"id"`
	OutletID  string    `json:"outlet_id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

type PaymentRequest struct {
	OutletID   string `json:"outlet_id"`
	Amount     int64  `json:"amount"`
	ManagerPIN string `json:"manager_pin"`
}

type PaymentResponse struct {
	Payment DebtPayment `json:"payment"`
	Outlet  Outlet      `json:"outlet"`
}

type DebtSummary struct {
	OutletID      string `json:"outlet_id"`
	TotalOwed     int64  `json:"total_owed"`
	TotalPaid     int64  `json:"total_paid"`
	RemainingDebt int64  `json:"remaining_debt"`
}

// ProductStock aggregates one product's receipt lines at one outlet.
type ProductStock struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	UnitPrice      int64  `json:"unit_price"`
	TotalGiven     int    `json:"total_given"`
	Remaining      int    `json:"remaining"`
	Sold           int    `json:"sold"`
	SoldValue      int64  `json:"sold_value"`
	RemainingValue int64  `json:"remaining_value"`
}

type OutletStockResponse struct {
	OutletID string         `json:"outlet_id"`
	Products []ProductStock `json:"products"`
}

type SMSReminderRequest struct {
	OutletID string `json:"outlet_id"`
	Message  string `json:"message,omitempty"`
}

type SMSReminderResponse struct {
	OutletID string `json:"outlet_id"`
	Phone    string `json:"phone"`
	Message  string `json:"message"`
	SentAt   string `json:"sent_at"`
}

type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	OutletID  string    `json:"outlet_id,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type OperatorCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type OperatorUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	UnitKindPachka = "pachka"
	UnitKindDona   = "dona"
)

const (
	OutletKindPharmacy   = "pharmacy"
	OutletKindPolyclinic = "polyclinic"
)

const (
	NotificationIntake   = "intake"
	NotificationSale     = "sale"
	NotificationReturn   = "return"
	NotificationPayment  = "payment"
	NotificationReminder = "sms_reminder"
)
