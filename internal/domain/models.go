package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Settlement accounts form a closed set. "deferred" is a pseudo-account whose
// balance is derived from open deferred invoices, never from ledger rows.
const (
	AccountCash           = "cash"
	AccountVodafoneElsawy = "vodafone_elsawy"
	AccountVodafoneWael   = "vodafone_wael"
	AccountInstapay       = "instapay"
	AccountYadElsawy      = "yad_elsawy"
	AccountDeferred       = "deferred"
)

// SettlementAccounts lists the real-money accounts in presentation order.
var SettlementAccounts = []string{
	AccountCash,
	AccountVodafoneElsawy,
	AccountVodafoneWael,
	AccountInstapay,
	AccountYadElsawy,
}

const (
	TxKindIncome  = "income"
	TxKindExpense = "expense"
)

const (
	InvoiceStatusUnpaid        = "unpaid"
	InvoiceStatusDeferred      = "deferred"
	InvoiceStatusPartiallyPaid = "partially_paid"
	InvoiceStatusPaid          = "paid"
	InvoiceStatusCancelled     = "cancelled"
)

const (
	DiscountTypeAmount     = "amount"
	DiscountTypePercentage = "percentage"
)

const (
	InventoryTxIn  = "in"
	InventoryTxOut = "out"
)

const (
	MaterialBUR  = "BUR"
	MaterialNBR  = "NBR"
	MaterialBT   = "BT"
	MaterialVT   = "VT"
	MaterialBOOM = "BOOM"
)

type InvoiceItem struct {
	Description   string          `json:"description,omitempty"`
	MaterialType  string          `json:"material_type,omitempty"`
	InnerDiameter float64         `json:"inner_diameter,omitempty"`
	OuterDiameter float64         `json:"outer_diameter,omitempty"`
	Height        float64         `json:"height,omitempty"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	LineTotal     decimal.Decimal `json:"line_total"`
}

// Manufactured reports whether the line consumes raw-material inventory.
func (it InvoiceItem) Manufactured() bool {
	return it.MaterialType != ""
}

type Invoice struct {
	ID                 string          `json:"id"`
	Number             string          `json:"number"`
	IdempotencyKey     string          `json:"idempotency_key,omitempty"`
	CustomerID         string          `json:"customer_id,omitempty"`
	CustomerName       string          `json:"customer_name"`
	Items              []InvoiceItem   `json:"items"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	DiscountType       string          `json:"discount_type"`
	DiscountValue      decimal.Decimal `json:"discount_value"`
	Discount           decimal.Decimal `json:"discount"`
	TotalAfterDiscount decimal.Decimal `json:"total_after_discount"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	PaymentMethod      string          `json:"payment_method"`
	PaidAmount         decimal.Decimal `json:"paid_amount"`
	RemainingAmount    decimal.Decimal `json:"remaining_amount"`
	Status             string          `json:"status"`
	Notes              string          `json:"notes,omitempty"`
	Inconsistent       bool            `json:"inconsistent,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ArchivedInvoice is a cancelled invoice: the original snapshot plus the ids
// of the compensating ledger transactions emitted at cancellation.
type ArchivedInvoice struct {
	Invoice                Invoice   `json:"invoice"`
	CancelledBy            string    `json:"cancelled_by"`
	CancelledAt            time.Time `json:"cancelled_at"`
	ReversalTransactionIDs []string  `json:"reversal_transaction_ids"`
	InventoryRestored      bool      `json:"inventory_restored"`
}

type Payment struct {
	ID            string          `json:"id"`
	InvoiceID     string          `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type TreasuryTransaction struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type AccountBalance struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

// AccountTotals holds the income/expense sums for one settlement account.
type AccountTotals struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
}

type InventoryItem struct {
	ID              string    `json:"id"`
	MaterialType    string    `json:"material_type"`
	InnerDiameter   float64   `json:"inner_diameter"`
	OuterDiameter   float64   `json:"outer_diameter"`
	AvailablePieces float64   `json:"available_pieces"`
	MinStockLevel   float64   `json:"min_stock_level"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type InventoryTransaction struct {
	ID              string    `json:"id"`
	InventoryItemID string    `json:"inventory_item_id"`
	MaterialType    string    `json:"material_type"`
	InnerDiameter   float64   `json:"inner_diameter"`
	OuterDiameter   float64   `json:"outer_diameter"`
	Kind            string    `json:"kind"`
	PiecesChange    float64   `json:"pieces_change"`
	RemainingPieces float64   `json:"remaining_pieces"`
	Reason          string    `json:"reason"`
	Reference       string    `json:"reference,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type RawMaterialUnit struct {
	ID            string    `json:"id"`
	MaterialType  string    `json:"material_type"`
	InnerDiameter float64   `json:"inner_diameter"`
	OuterDiameter float64   `json:"outer_diameter"`
	UnitCode      string    `json:"unit_code"`
	PiecesCount   float64   `json:"pieces_count"`
	CreatedAt     time.Time `json:"created_at"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type InvoiceItemInput struct {
	Description   string          `json:"description,omitempty"`
	MaterialType  string          `json:"material_type,omitempty"`
	InnerDiameter float64         `json:"inner_diameter,omitempty"`
	OuterDiameter float64         `json:"outer_diameter,omitempty"`
	Height        float64         `json:"height,omitempty"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

type InvoiceCreateRequest struct {
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
	CustomerID     string             `json:"customer_id,omitempty"`
	CustomerName   string             `json:"customer_name"`
	Items          []InvoiceItemInput `json:"items"`
	DiscountType   string             `json:"discount_type,omitempty"`
	DiscountValue  decimal.Decimal    `json:"discount_value,omitempty"`
	PaymentMethod  string             `json:"payment_method"`
	Notes          string             `json:"notes,omitempty"`
}

// InvoiceUpdateRequest carries only the fields the caller wants changed.
// A nil Items means "keep the persisted items"; financials are still
// recomputed against them when discount fields change.
type InvoiceUpdateRequest struct {
	CustomerID    *string             `json:"customer_id,omitempty"`
	CustomerName  *string             `json:"customer_name,omitempty"`
	Items         *[]InvoiceItemInput `json:"items,omitempty"`
	DiscountType  *string             `json:"discount_type,omitempty"`
	DiscountValue *decimal.Decimal    `json:"discount_value,omitempty"`
	Notes         *string             `json:"notes,omitempty"`
}

type InvoiceCancelRequest struct {
	Reason     string `json:"reason,omitempty"`
	ManagerPIN string `json:"manager_pin"`
}

type InvoiceRestoreRequest struct {
	ManagerPIN string `json:"manager_pin"`
}

type PaymentCreateRequest struct {
	InvoiceID      string          `json:"invoice_id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentMethod  string          `json:"payment_method"`
	Notes          string          `json:"notes,omitempty"`
}

type InventoryItemCreateRequest struct {
	MaterialType    string  `json:"material_type"`
	InnerDiameter   float64 `json:"inner_diameter"`
	OuterDiameter   float64 `json:"outer_diameter"`
	AvailablePieces float64 `json:"available_pieces"`
	MinStockLevel   float64 `json:"min_stock_level,omitempty"`
}

type InventoryItemUpdateRequest struct {
	AvailablePieces *float64 `json:"available_pieces,omitempty"`
	MinStockLevel   *float64 `json:"min_stock_level,omitempty"`
}

// InventoryAdjustRequest applies a signed manual correction to one item.
type InventoryAdjustRequest struct {
	InventoryItemID string  `json:"inventory_item_id"`
	PiecesChange    float64 `json:"pieces_change"`
	Reason          string  `json:"reason"`
}

type RawMaterialUnitCreateRequest struct {
	MaterialType  string  `json:"material_type"`
	InnerDiameter float64 `json:"inner_diameter"`
	OuterDiameter float64 `json:"outer_diameter"`
	PiecesCount   float64 `json:"pieces_count"`
}

type CustomerCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type LowStockAlert struct {
	InventoryItemID string  `json:"inventory_item_id"`
	MaterialType    string  `json:"material_type"`
	InnerDiameter   float64 `json:"inner_diameter"`
	OuterDiameter   float64 `json:"outer_diameter"`
	AvailablePieces float64 `json:"available_pieces"`
	MinStockLevel   float64 `json:"min_stock_level"`
	Severity        string  `json:"severity"`
}

type LowStockAlertResponse struct {
	GeneratedAt string          `json:"generated_at"`
	Alerts      []LowStockAlert `json:"alerts"`
}

type WorkOrderLine struct {
	InvoiceNumber string  `json:"invoice_number"`
	CustomerName  string  `json:"customer_name"`
	MaterialType  string  `json:"material_type"`
	InnerDiameter float64 `json:"inner_diameter"`
	OuterDiameter float64 `json:"outer_diameter"`
	Height        float64 `json:"height"`
	Quantity      int     `json:"quantity"`
}

// DailyWorkOrder aggregates one day's finalized invoices for the workshop.
type DailyWorkOrder struct {
	Date           string          `json:"date"`
	InvoiceCount   int             `json:"invoice_count"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	DeferredAmount decimal.Decimal `json:"deferred_amount"`
	Lines          []WorkOrderLine `json:"lines"`
}

// Snapshot is the opaque export of the four logical stores consumed by the
// offsite backup uploader.
type Snapshot struct {
	GeneratedAt           time.Time              `json:"generated_at"`
	Invoices              []Invoice              `json:"invoices"`
	ArchivedInvoices      []ArchivedInvoice      `json:"archived_invoices"`
	Payments              []Payment              `json:"payments"`
	TreasuryTransactions  []TreasuryTransaction  `json:"treasury_transactions"`
	InventoryItems        []InventoryItem        `json:"inventory_items"`
	InventoryTransactions []InventoryTransaction `json:"inventory_transactions"`
	RawMaterialUnits      []RawMaterialUnit      `json:"raw_material_units"`
}

type BackupRunResponse struct {
	Object     string `json:"object"`
	Bytes      int    `json:"bytes"`
	UploadedAt string `json:"uploaded_at"`
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

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
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
