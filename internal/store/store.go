package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"sealdesk/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation failed")
	ErrConsistency       = errors.New("consistency violation")
)

type Repository interface {
	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	GetInvoiceByID(ctx context.Context, id string) (*domain.Invoice, error)
	FindInvoiceByIdempotency(ctx context.Context, key string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, limit int) ([]domain.Invoice, error)
	UpdateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	NextInvoiceSequence(ctx context.Context) (int64, error)
	ArchiveInvoice(ctx context.Context, archived domain.ArchivedInvoice) error
	GetArchivedInvoiceByID(ctx context.Context, id string) (*domain.ArchivedInvoice, error)
	ListArchivedInvoices(ctx context.Context, limit int) ([]domain.ArchivedInvoice, error)
	RestoreInvoice(ctx context.Context, id string, invoice domain.Invoice) (*domain.Invoice, error)
	SumDeferredRemaining(ctx context.Context) (decimal.Decimal, error)

	CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error)
	ListPayments(ctx context.Context, limit int) ([]domain.Payment, error)
	ListPaymentsByInvoice(ctx context.Context, invoiceID string) ([]domain.Payment, error)

	CreateTreasuryTransaction(ctx context.Context, tx domain.TreasuryTransaction) (*domain.TreasuryTransaction, error)
	FindTreasuryTransactionByReference(ctx context.Context, reference string) (*domain.TreasuryTransaction, error)
	ListTreasuryTransactions(ctx context.Context, accountID string, referencePrefix string, limit int) ([]domain.TreasuryTransaction, error)
	GetAccountTotals(ctx context.Context) (map[string]domain.AccountTotals, error)

	CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)
	GetInventoryItemByID(ctx context.Context, id string) (*domain.InventoryItem, error)
	FindInventoryItemBySpec(ctx context.Context, materialType string, innerDiameter float64, outerDiameter float64) (*domain.InventoryItem, error)
	ListInventoryItems(ctx context.Context) ([]domain.InventoryItem, error)
	UpdateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)
	DeleteInventoryItem(ctx context.Context, id string) error
	// AdjustInventoryPieces applies delta atomically and fails with
	// ErrInsufficientStock when the result would go negative.
	AdjustInventoryPieces(ctx context.Context, id string, delta float64) (*domain.InventoryItem, error)
	CreateInventoryTransaction(ctx context.Context, tx domain.InventoryTransaction) (*domain.InventoryTransaction, error)
	ListInventoryTransactions(ctx context.Context, inventoryItemID string, limit int) ([]domain.InventoryTransaction, error)

	CreateRawMaterialUnit(ctx context.Context, unit domain.RawMaterialUnit) (*domain.RawMaterialUnit, error)
	ListRawMaterialUnits(ctx context.Context) ([]domain.RawMaterialUnit, error)
	// NextUnitSequence returns the next sequential number for a unit-code
	// prefix. Counters are persistent, independent per prefix, and the
	// read-modify-write is serialized by the store.
	NextUnitSequence(ctx context.Context, prefix string) (int64, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
