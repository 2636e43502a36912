package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"sealdesk/backend/internal/domain"
	"sealdesk/backend/internal/store"
	"sealdesk/backend/internal/xid"
)

type Store struct {
	mu                 sync.RWMutex
	invoicesByID       map[string]domain.Invoice
	invoicesByIdem     map[string]string
	archivedByID       map[string]domain.ArchivedInvoice
	invoiceSeq         int64
	paymentsByID       map[string]domain.Payment
	treasuryByID       map[string]domain.TreasuryTransaction
	treasuryByRef      map[string]string
	inventoryByID      map[string]domain.InventoryItem
	inventoryTxByID    map[string]domain.InventoryTransaction
	rawUnitsByID       map[string]domain.RawMaterialUnit
	unitSeqByPrefix    map[string]int64
	customersByID      map[string]domain.Customer
	usersByUsername    map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		invoicesByID:    make(map[string]domain.Invoice),
		invoicesByIdem:  make(map[string]string),
		archivedByID:    make(map[string]domain.ArchivedInvoice),
		paymentsByID:    make(map[string]domain.Payment),
		treasuryByID:    make(map[string]domain.TreasuryTransaction),
		treasuryByRef:   make(map[string]string),
		inventoryByID:   make(map[string]domain.InventoryItem),
		inventoryTxByID: make(map[string]domain.InventoryTransaction),
		rawUnitsByID:    make(map[string]domain.RawMaterialUnit),
		unitSeqByPrefix: make(map[string]int64),
		customersByID:   make(map[string]domain.Customer),
		usersByUsername: seedUsers(),
	}
}

// NewSeeded returns a store preloaded with workshop inventory and a small
// customer directory for dev/demo mode and tests.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	seedItems := []domain.InventoryItem{
		{MaterialType: domain.MaterialNBR, InnerDiameter: 20, OuterDiameter: 30, AvailablePieces: 1000, MinStockLevel: 2},
		{MaterialType: domain.MaterialNBR, InnerDiameter: 25, OuterDiameter: 40, AvailablePieces: 600, MinStockLevel: 2},
		{MaterialType: domain.MaterialBUR, InnerDiameter: 25, OuterDiameter: 35, AvailablePieces: 500, MinStockLevel: 2},
		{MaterialType: domain.MaterialBT, InnerDiameter: 30, OuterDiameter: 45, AvailablePieces: 350, MinStockLevel: 2},
		{MaterialType: domain.MaterialVT, InnerDiameter: 30, OuterDiameter: 40, AvailablePieces: 300, MinStockLevel: 2},
		{MaterialType: domain.MaterialBOOM, InnerDiameter: 40, OuterDiameter: 55, AvailablePieces: 150, MinStockLevel: 2},
	}
	for _, item := range seedItems {
		item.ID = xid.New("item")
		item.CreatedAt = now
		item.UpdatedAt = now
		s.inventoryByID[item.ID] = item
	}

	seedCustomers := []domain.Customer{
		{Name: "شركة النور للتوريدات", Phone: "01001234567"},
		{Name: "ورشة الإخلاص", Phone: "01119876543"},
		{Name: "مصنع الدلتا للمعدات", Phone: "01225550199"},
	}
	for _, customer := range seedCustomers {
		customer.ID = xid.New("cust")
		customer.CreatedAt = now
		s.customersByID[customer.ID] = customer
	}

	return s
}

func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if invoice.ID == "" || invoice.Number == "" {
		return nil, store.ErrValidation
	}
	if _, exists := s.invoicesByID[invoice.ID]; exists {
		return nil, store.ErrValidation
	}
	if invoice.IdempotencyKey != "" {
		if _, exists := s.invoicesByIdem[invoice.IdempotencyKey]; exists {
			return nil, store.ErrConsistency
		}
		s.invoicesByIdem[invoice.IdempotencyKey] = invoice.ID
	}

	invoice.Items = slices.Clone(invoice.Items)
	s.invoicesByID[invoice.ID] = invoice
	created := cloneInvoice(invoice)
	return &created, nil
}

func (s *Store) GetInvoiceByID(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, exists := s.invoicesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := cloneInvoice(invoice)
	return &copied, nil
}

func (s *Store) FindInvoiceByIdempotency(_ context.Context, key string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.invoicesByIdem[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	invoice, exists := s.invoicesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := cloneInvoice(invoice)
	return &copied, nil
}

func (s *Store) ListInvoices(_ context.Context, limit int) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]domain.Invoice, 0, len(s.invoicesByID))
	for _, invoice := range s.invoicesByID {
		invoices = append(invoices, cloneInvoice(invoice))
	}
	slices.SortFunc(invoices, func(a, b domain.Invoice) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(invoices) > limit {
		invoices = invoices[:limit]
	}
	return invoices, nil
}

func (s *Store) UpdateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoicesByID[invoice.ID]; !exists {
		return nil, store.ErrNotFound
	}
	invoice.Items = slices.Clone(invoice.Items)
	s.invoicesByID[invoice.ID] = invoice
	updated := cloneInvoice(invoice)
	return &updated, nil
}

func (s *Store) NextInvoiceSequence(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invoiceSeq++
	return s.invoiceSeq, nil
}

func (s *Store) ArchiveInvoice(_ context.Context, archived domain.ArchivedInvoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := archived.Invoice.ID
	if _, exists := s.invoicesByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.invoicesByID, id)
	if archived.Invoice.IdempotencyKey != "" {
		delete(s.invoicesByIdem, archived.Invoice.IdempotencyKey)
	}
	archived.Invoice.Items = slices.Clone(archived.Invoice.Items)
	archived.ReversalTransactionIDs = slices.Clone(archived.ReversalTransactionIDs)
	s.archivedByID[id] = archived
	return nil
}

func (s *Store) GetArchivedInvoiceByID(_ context.Context, id string) (*domain.ArchivedInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	archived, exists := s.archivedByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := cloneArchived(archived)
	return &copied, nil
}

func (s *Store) ListArchivedInvoices(_ context.Context, limit int) ([]domain.ArchivedInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	archived := make([]domain.ArchivedInvoice, 0, len(s.archivedByID))
	for _, entry := range s.archivedByID {
		archived = append(archived, cloneArchived(entry))
	}
	slices.SortFunc(archived, func(a, b domain.ArchivedInvoice) int {
		return b.CancelledAt.Compare(a.CancelledAt)
	})
	if limit > 0 && len(archived) > limit {
		archived = archived[:limit]
	}
	return archived, nil
}

func (s *Store) RestoreInvoice(_ context.Context, id string, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.archivedByID[id]; !exists {
		return nil, store.ErrNotFound
	}
	if _, exists := s.invoicesByID[invoice.ID]; exists {
		return nil, store.ErrConsistency
	}
	delete(s.archivedByID, id)
	invoice.Items = slices.Clone(invoice.Items)
	s.invoicesByID[invoice.ID] = invoice
	if invoice.IdempotencyKey != "" {
		s.invoicesByIdem[invoice.IdempotencyKey] = invoice.ID
	}
	restored := cloneInvoice(invoice)
	return &restored, nil
}

func (s *Store) SumDeferredRemaining(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, invoice := range s.invoicesByID {
		if invoice.PaymentMethod != domain.AccountDeferred {
			continue
		}
		total = total.Add(invoice.RemainingAmount)
	}
	return total, nil
}

func (s *Store) CreatePayment(_ context.Context, payment domain.Payment) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payment.ID == "" || payment.InvoiceID == "" {
		return nil, store.ErrValidation
	}
	if _, exists := s.paymentsByID[payment.ID]; exists {
		return nil, store.ErrValidation
	}
	s.paymentsByID[payment.ID] = payment
	created := payment
	return &created, nil
}

func (s *Store) ListPayments(_ context.Context, limit int) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]domain.Payment, 0, len(s.paymentsByID))
	for _, payment := range s.paymentsByID {
		payments = append(payments, payment)
	}
	slices.SortFunc(payments, func(a, b domain.Payment) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(payments) > limit {
		payments = payments[:limit]
	}
	return payments, nil
}

func (s *Store) ListPaymentsByInvoice(_ context.Context, invoiceID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]domain.Payment, 0, 4)
	for _, payment := range s.paymentsByID {
		if payment.InvoiceID != invoiceID {
			continue
		}
		payments = append(payments, payment)
	}
	slices.SortFunc(payments, func(a, b domain.Payment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return payments, nil
}

func (s *Store) CreateTreasuryTransaction(_ context.Context, tx domain.TreasuryTransaction) (*domain.TreasuryTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" || tx.AccountID == "" {
		return nil, store.ErrValidation
	}
	if tx.Kind != domain.TxKindIncome && tx.Kind != domain.TxKindExpense {
		return nil, store.ErrValidation
	}
	if !tx.Amount.IsPositive() {
		return nil, store.ErrValidation
	}
	if tx.Reference != "" {
		if _, exists := s.treasuryByRef[tx.Reference]; exists {
			return nil, store.ErrConsistency
		}
		s.treasuryByRef[tx.Reference] = tx.ID
	}
	s.treasuryByID[tx.ID] = tx
	created := tx
	return &created, nil
}

func (s *Store) FindTreasuryTransactionByReference(_ context.Context, reference string) (*domain.TreasuryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.treasuryByRef[reference]
	if !exists {
		return nil, store.ErrNotFound
	}
	tx := s.treasuryByID[id]
	copied := tx
	return &copied, nil
}

func (s *Store) ListTreasuryTransactions(_ context.Context, accountID string, referencePrefix string, limit int) ([]domain.TreasuryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := make([]domain.TreasuryTransaction, 0, 32)
	for _, tx := range s.treasuryByID {
		if accountID != "" && tx.AccountID != accountID {
			continue
		}
		if referencePrefix != "" && !strings.HasPrefix(tx.Reference, referencePrefix) {
			continue
		}
		txs = append(txs, tx)
	}
	slices.SortFunc(txs, func(a, b domain.TreasuryTransaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (s *Store) GetAccountTotals(_ context.Context) (map[string]domain.AccountTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]domain.AccountTotals, len(domain.SettlementAccounts))
	for _, tx := range s.treasuryByID {
		entry := totals[tx.AccountID]
		switch tx.Kind {
		case domain.TxKindIncome:
			entry.Income = entry.Income.Add(tx.Amount)
		case domain.TxKindExpense:
			entry.Expense = entry.Expense.Add(tx.Amount)
		}
		totals[tx.AccountID] = entry
	}
	return totals, nil
}

func (s *Store) CreateInventoryItem(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" || item.MaterialType == "" {
		return nil, store.ErrValidation
	}
	if item.AvailablePieces < 0 {
		return nil, store.ErrValidation
	}
	for _, existing := range s.inventoryByID {
		if sameSpec(existing, item.MaterialType, item.InnerDiameter, item.OuterDiameter) {
			return nil, store.ErrValidation
		}
	}
	s.inventoryByID[item.ID] = item
	created := item
	return &created, nil
}

func (s *Store) GetInventoryItemByID(_ context.Context, id string) (*domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.inventoryByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := item
	return &copied, nil
}

func (s *Store) FindInventoryItemBySpec(_ context.Context, materialType string, innerDiameter float64, outerDiameter float64) (*domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.inventoryByID {
		if sameSpec(item, materialType, innerDiameter, outerDiameter) {
			copied := item
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListInventoryItems(_ context.Context) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.InventoryItem, 0, len(s.inventoryByID))
	for _, item := range s.inventoryByID {
		items = append(items, item)
	}
	slices.SortFunc(items, compareMaterialSpec)
	return items, nil
}

func (s *Store) UpdateInventoryItem(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.inventoryByID[item.ID]; !exists {
		return nil, store.ErrNotFound
	}
	if item.AvailablePieces < 0 {
		return nil, store.ErrValidation
	}
	s.inventoryByID[item.ID] = item
	updated := item
	return &updated, nil
}

func (s *Store) DeleteInventoryItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.inventoryByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.inventoryByID, id)
	return nil
}

func (s *Store) AdjustInventoryPieces(_ context.Context, id string, delta float64) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.inventoryByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	next := item.AvailablePieces + delta
	if next < 0 {
		return nil, store.ErrInsufficientStock
	}
	item.AvailablePieces = next
	item.UpdatedAt = time.Now().UTC()
	s.inventoryByID[id] = item
	updated := item
	return &updated, nil
}

func (s *Store) CreateInventoryTransaction(_ context.Context, tx domain.InventoryTransaction) (*domain.InventoryTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" || tx.InventoryItemID == "" {
		return nil, store.ErrValidation
	}
	if tx.Kind != domain.InventoryTxIn && tx.Kind != domain.InventoryTxOut {
		return nil, store.ErrValidation
	}
	s.inventoryTxByID[tx.ID] = tx
	created := tx
	return &created, nil
}

func (s *Store) ListInventoryTransactions(_ context.Context, inventoryItemID string, limit int) ([]domain.InventoryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := make([]domain.InventoryTransaction, 0, 32)
	for _, tx := range s.inventoryTxByID {
		if inventoryItemID != "" && tx.InventoryItemID != inventoryItemID {
			continue
		}
		txs = append(txs, tx)
	}
	slices.SortFunc(txs, func(a, b domain.InventoryTransaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (s *Store) CreateRawMaterialUnit(_ context.Context, unit domain.RawMaterialUnit) (*domain.RawMaterialUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if unit.ID == "" || unit.MaterialType == "" || unit.UnitCode == "" {
		return nil, store.ErrValidation
	}
	for _, existing := range s.rawUnitsByID {
		if existing.UnitCode == unit.UnitCode {
			return nil, store.ErrConsistency
		}
	}
	s.rawUnitsByID[unit.ID] = unit
	created := unit
	return &created, nil
}

func (s *Store) ListRawMaterialUnits(_ context.Context) ([]domain.RawMaterialUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	units := make([]domain.RawMaterialUnit, 0, len(s.rawUnitsByID))
	for _, unit := range s.rawUnitsByID {
		units = append(units, unit)
	}
	slices.SortFunc(units, func(a, b domain.RawMaterialUnit) int {
		if pa, pb := domain.MaterialPriority(a.MaterialType), domain.MaterialPriority(b.MaterialType); pa != pb {
			return pa - pb
		}
		if a.InnerDiameter != b.InnerDiameter {
			return cmpFloat(a.InnerDiameter, b.InnerDiameter)
		}
		return cmpFloat(a.OuterDiameter, b.OuterDiameter)
	})
	return units, nil
}

func (s *Store) NextUnitSequence(_ context.Context, prefix string) (int64, error) {
	if prefix == "" {
		return 0, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.unitSeqByPrefix[prefix]++
	return s.unitSeqByPrefix[prefix], nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" || customer.Name == "" {
		return nil, store.ErrValidation
	}
	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := customer
	return &copied, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, customer := range s.customersByID {
		customers = append(customers, customer)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrValidation
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := user
	return &copied, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneInvoice(invoice domain.Invoice) domain.Invoice {
	invoice.Items = slices.Clone(invoice.Items)
	return invoice
}

func cloneArchived(archived domain.ArchivedInvoice) domain.ArchivedInvoice {
	archived.Invoice = cloneInvoice(archived.Invoice)
	archived.ReversalTransactionIDs = slices.Clone(archived.ReversalTransactionIDs)
	return archived
}

func sameSpec(item domain.InventoryItem, materialType string, innerDiameter float64, outerDiameter float64) bool {
	return item.MaterialType == materialType &&
		item.InnerDiameter == innerDiameter &&
		item.OuterDiameter == outerDiameter
}

func compareMaterialSpec(a, b domain.InventoryItem) int {
	if pa, pb := domain.MaterialPriority(a.MaterialType), domain.MaterialPriority(b.MaterialType); pa != pb {
		return pa - pb
	}
	if a.InnerDiameter != b.InnerDiameter {
		return cmpFloat(a.InnerDiameter, b.InnerDiameter)
	}
	return cmpFloat(a.OuterDiameter, b.OuterDiameter)
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
