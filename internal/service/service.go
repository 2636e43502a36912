// Package service implements the invoice lifecycle engine: invoice creation
// and update, partial payments, cancellation with compensating ledger
// reversals, and restoration. All money flows through the append-only
// treasury ledger; account balances are derived, never stored.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"sealdesk/backend/internal/alerts"
	"sealdesk/backend/internal/backup"
	"sealdesk/backend/internal/domain"
	"sealdesk/backend/internal/store"
	"sealdesk/backend/internal/xid"
)

type Service struct {
	repo   store.Repository
	alerts *alerts.Engine
	backup *backup.Uploader
	locks  *lockTable
}

func New(repo store.Repository, alertEngine *alerts.Engine, uploader *backup.Uploader) *Service {
	if repo == nil {
		panic("service: repository is required")
	}
	if alertEngine == nil {
		alertEngine = alerts.NewEngine(nil, 0)
	}
	return &Service{
		repo:   repo,
		alerts: alertEngine,
		backup: uploader,
		locks:  newLockTable(),
	}
}

type actorContextKey struct{}

// WithActor attaches the authenticated user to the context so service
// operations can attribute their writes.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// CreateInvoice runs the full creation sequence: financial calculation,
// inventory consumption, ledger emission, persistence. Steps run in that
// fixed order so the reversible step (inventory) precedes the append-only
// one (ledger). A failing step compensates the earlier ones.
func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (*domain.Invoice, error) {
	if req.IdempotencyKey != "" {
		existing, err := s.repo.FindInvoiceByIdempotency(ctx, req.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	customerName := req.CustomerName
	if req.CustomerID != "" {
		customer, err := s.repo.GetCustomerByID(ctx, req.CustomerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: customer %s does not exist", store.ErrValidation, req.CustomerID)
			}
			return nil, err
		}
		customerName = customer.Name
	}
	if customerName == "" {
		return nil, fmt.Errorf("%w: customer name is required", store.ErrValidation)
	}

	items, subtotal, discount, total, err := calculateFinancials(req.Items, req.DiscountType, req.DiscountValue)
	if err != nil {
		return nil, err
	}
	accountID, deferred, err := resolveAccount(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	seq, err := s.repo.NextInvoiceSequence(ctx)
	if err != nil {
		return nil, fmt.Errorf("next invoice sequence: %w", err)
	}

	now := time.Now().UTC()
	invoice := domain.Invoice{
		ID:                 xid.New("inv"),
		Number:             fmt.Sprintf("INV-%06d", seq),
		IdempotencyKey:     req.IdempotencyKey,
		CustomerID:         req.CustomerID,
		CustomerName:       customerName,
		Items:              items,
		Subtotal:           subtotal,
		DiscountType:       defaultString(req.DiscountType, domain.DiscountTypeAmount),
		DiscountValue:      req.DiscountValue,
		Discount:           discount,
		TotalAfterDiscount: total,
		TotalAmount:        total,
		PaymentMethod:      req.PaymentMethod,
		Notes:              req.Notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if deferred {
		invoice.RemainingAmount = total
	} else {
		invoice.PaidAmount = total
	}
	invoice.Status = deriveStatus(&invoice)

	reference := "invoice:" + invoice.ID
	if err := s.consumeForItems(ctx, items, reference); err != nil {
		return nil, err
	}

	if !deferred && total.IsPositive() {
		_, _, err := s.emitGuarded(ctx, accountID, domain.TxKindIncome, total, reference,
			fmt.Sprintf("invoice %s (%s)", invoice.Number, customerName))
		if err != nil {
			if restoreErr := s.restoreForItems(ctx, items, "compensation: ledger emission failed", reference+":compensation"); restoreErr != nil {
				invoice.Inconsistent = true
				if _, persistErr := s.repo.CreateInvoice(ctx, invoice); persistErr != nil {
					log.Printf("[service] could not persist inconsistent invoice %s: %v", invoice.Number, persistErr)
				}
				return nil, fmt.Errorf("%w: ledger emission and inventory compensation both failed", store.ErrConsistency)
			}
			return nil, fmt.Errorf("%w: ledger emission failed", store.ErrConsistency)
		}
	}

	created, err := s.repo.CreateInvoice(ctx, invoice)
	if err != nil {
		if !deferred && total.IsPositive() {
			if tx, lookupErr := s.repo.FindTreasuryTransactionByReference(ctx, reference); lookupErr == nil {
				if _, _, revErr := s.emitGuarded(ctx, tx.AccountID, reversalKind(tx.Kind), tx.Amount,
					tx.Reference+":reversal", "reversal: invoice persistence failed"); revErr != nil {
					log.Printf("[service] reversal after failed persistence of %s also failed: %v", invoice.Number, revErr)
				}
			}
		}
		if restoreErr := s.restoreForItems(ctx, items, "compensation: invoice persistence failed", reference+":compensation"); restoreErr != nil {
			log.Printf("[service] inventory compensation after failed persistence of %s failed: %v", invoice.Number, restoreErr)
		}
		return nil, fmt.Errorf("%w: invoice could not be persisted", store.ErrConsistency)
	}

	actor, _ := ActorFromContext(ctx)
	log.Printf("[service] invoice %s created for %s, total %s, method %s, by %s",
		created.Number, created.CustomerName, created.TotalAmount, created.PaymentMethod, actor.Username)
	return created, nil
}

// UpdateInvoice recomputes financials and reconciles inventory against the
// edited items. Money already received is never rewritten: a new total below
// the paid amount is rejected, so the ledger stays untouched and only the
// remaining balance moves.
func (s *Service) UpdateInvoice(ctx context.Context, id string, req domain.InvoiceUpdateRequest) (*domain.Invoice, error) {
	unlock := s.locks.lock("invoice:" + id)
	defer unlock()

	invoice, err := s.repo.GetInvoiceByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.CustomerID != nil {
		if *req.CustomerID != "" {
			customer, err := s.repo.GetCustomerByID(ctx, *req.CustomerID)
			if err != nil {
				return nil, fmt.Errorf("%w: customer %s does not exist", store.ErrValidation, *req.CustomerID)
			}
			invoice.CustomerName = customer.Name
		}
		invoice.CustomerID = *req.CustomerID
	}
	if req.CustomerName != nil && *req.CustomerName != "" {
		invoice.CustomerName = *req.CustomerName
	}
	if req.Notes != nil {
		invoice.Notes = *req.Notes
	}

	discountType := invoice.DiscountType
	if req.DiscountType != nil {
		discountType = *req.DiscountType
	}
	discountValue := invoice.DiscountValue
	if req.DiscountValue != nil {
		discountValue = *req.DiscountValue
	}

	itemInputs := itemsToInputs(invoice.Items)
	if req.Items != nil {
		itemInputs = *req.Items
	}

	items, subtotal, discount, total, err := calculateFinancials(itemInputs, discountType, discountValue)
	if err != nil {
		return nil, err
	}
	if total.LessThan(invoice.PaidAmount) {
		return nil, fmt.Errorf("%w: new total %s is below the %s already paid", store.ErrValidation, total, invoice.PaidAmount)
	}

	if req.Items != nil {
		if err := s.reconcileInventory(ctx, invoice.Items, items, "invoice:"+invoice.ID); err != nil {
			return nil, err
		}
	}

	invoice.Items = items
	invoice.Subtotal = subtotal
	invoice.DiscountType = defaultString(discountType, domain.DiscountTypeAmount)
	invoice.DiscountValue = discountValue
	invoice.Discount = discount
	invoice.TotalAfterDiscount = total
	invoice.TotalAmount = total
	invoice.RemainingAmount = total.Sub(invoice.PaidAmount)
	invoice.Status = deriveStatus(invoice)
	invoice.UpdatedAt = time.Now().UTC()

	updated, err := s.repo.UpdateInvoice(ctx, *invoice)
	if err != nil {
		return nil, err
	}
	log.Printf("[service] invoice %s updated, total %s, remaining %s", updated.Number, updated.TotalAmount, updated.RemainingAmount)
	return updated, nil
}

// reconcileInventory moves stock by the per-spec difference between the old
// and new item lists. Increases consume, decreases restore, all or nothing.
func (s *Service) reconcileInventory(ctx context.Context, oldItems, newItems []domain.InvoiceItem, reference string) error {
	type specKey struct {
		material string
		inner    float64
		outer    float64
	}
	deltas := make(map[specKey]float64)
	for _, item := range newItems {
		if !item.Manufactured() {
			continue
		}
		deltas[specKey{item.MaterialType, item.InnerDiameter, item.OuterDiameter}] += piecesNeeded(item)
	}
	for _, item := range oldItems {
		if !item.Manufactured() {
			continue
		}
		deltas[specKey{item.MaterialType, item.InnerDiameter, item.OuterDiameter}] -= piecesNeeded(item)
	}

	type appliedMove struct {
		itemID string
		delta  float64
	}
	var applied []appliedMove
	rollback := func() {
		for _, move := range applied {
			if _, err := s.repo.AdjustInventoryPieces(ctx, move.itemID, move.delta); err != nil {
				log.Printf("[service] rollback of inventory reconciliation failed for item %s: %v", move.itemID, err)
			}
		}
	}

	for key, delta := range deltas {
		if delta == 0 {
			continue
		}
		stock, err := s.repo.FindInventoryItemBySpec(ctx, key.material, key.inner, key.outer)
		if err != nil {
			rollback()
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: no stock for %s %g/%g", store.ErrInsufficientStock, key.material, key.inner, key.outer)
			}
			return err
		}
		updated, err := s.repo.AdjustInventoryPieces(ctx, stock.ID, -delta)
		if err != nil {
			rollback()
			if errors.Is(err, store.ErrInsufficientStock) {
				return fmt.Errorf("%w: %s %g/%g needs %g more pieces", store.ErrInsufficientStock, key.material, key.inner, key.outer, delta)
			}
			return err
		}
		applied = append(applied, appliedMove{itemID: stock.ID, delta: delta})
		kind := domain.InventoryTxOut
		if delta < 0 {
			kind = domain.InventoryTxIn
		}
		s.recordInventoryTx(ctx, updated, kind, -delta, "invoice updated", reference)
	}
	return nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	return s.repo.GetInvoiceByID(ctx, id)
}

func (s *Service) ListInvoices(ctx context.Context, limit int) ([]domain.Invoice, error) {
	return s.repo.ListInvoices(ctx, limit)
}

func (s *Service) GetArchivedInvoice(ctx context.Context, id string) (*domain.ArchivedInvoice, error) {
	return s.repo.GetArchivedInvoiceByID(ctx, id)
}

func (s *Service) ListArchivedInvoices(ctx context.Context, limit int) ([]domain.ArchivedInvoice, error) {
	return s.repo.ListArchivedInvoices(ctx, limit)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: customer name is required", store.ErrValidation)
	}
	customer := domain.Customer{
		ID:        xid.New("cust"),
		Name:      req.Name,
		Phone:     req.Phone,
		Address:   req.Address,
		CreatedAt: time.Now().UTC(),
	}
	return s.repo.CreateCustomer(ctx, customer)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return s.repo.GetCustomerByID(ctx, id)
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

// deriveStatus recomputes an active invoice's status from its amounts.
func deriveStatus(invoice *domain.Invoice) string {
	switch {
	case invoice.RemainingAmount.IsZero() && invoice.PaidAmount.IsPositive():
		return domain.InvoiceStatusPaid
	case invoice.PaidAmount.IsPositive():
		return domain.InvoiceStatusPartiallyPaid
	case invoice.PaymentMethod == domain.AccountDeferred:
		return domain.InvoiceStatusDeferred
	default:
		return domain.InvoiceStatusUnpaid
	}
}

func itemsToInputs(items []domain.InvoiceItem) []domain.InvoiceItemInput {
	inputs := make([]domain.InvoiceItemInput, 0, len(items))
	for _, item := range items {
		inputs = append(inputs, domain.InvoiceItemInput{
			Description:   item.Description,
			MaterialType:  item.MaterialType,
			InnerDiameter: item.InnerDiameter,
			OuterDiameter: item.OuterDiameter,
			Height:        item.Height,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
		})
	}
	return inputs
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
