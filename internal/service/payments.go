package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"sealdesk/backend/internal/domain"
	"sealdesk/backend/internal/store"
	"sealdesk/backend/internal/xid"
)

// ProcessPayment records a partial or final payment against an open invoice.
// The ledger row is emitted before the payment and invoice rows are written;
// if those writes fail the emission is reversed, never deleted.
func (s *Service) ProcessPayment(ctx context.Context, req domain.PaymentCreateRequest) (*domain.Payment, error) {
	if req.InvoiceID == "" {
		return nil, fmt.Errorf("%w: invoice id is required", store.ErrValidation)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
	}
	accountID, deferred, err := resolveAccount(req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if deferred {
		return nil, fmt.Errorf("%w: payments must settle into a real account", store.ErrValidation)
	}

	unlock := s.locks.lock("invoice:" + req.InvoiceID)
	defer unlock()

	invoice, err := s.repo.GetInvoiceByID(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if !invoice.RemainingAmount.IsPositive() {
		return nil, fmt.Errorf("%w: invoice %s has no remaining balance", store.ErrValidation, invoice.Number)
	}
	if req.Amount.GreaterThan(invoice.RemainingAmount) {
		return nil, fmt.Errorf("%w: payment %s exceeds remaining balance %s", store.ErrConsistency, req.Amount, invoice.RemainingAmount)
	}

	// A client-supplied idempotency key replaces the generated id in the
	// ledger reference, so a retried request trips the reference guard
	// instead of settling twice.
	paymentID := xid.New("pay")
	referenceToken := paymentID
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		if strings.Contains(key, ":") {
			return nil, fmt.Errorf("%w: idempotency key must not contain ':'", store.ErrValidation)
		}
		referenceToken = key
	}
	reference := fmt.Sprintf("invoice:%s:payment:%s", invoice.ID, referenceToken)
	description := fmt.Sprintf("payment for invoice %s", invoice.Number)

	tx, existed, err := s.emitGuarded(ctx, accountID, domain.TxKindIncome, req.Amount, reference, description)
	if err != nil {
		return nil, fmt.Errorf("emit payment transaction: %w", err)
	}
	if existed {
		return nil, fmt.Errorf("%w: payment reference %s already settled", store.ErrConsistency, reference)
	}

	payment := domain.Payment{
		ID:            paymentID,
		InvoiceID:     invoice.ID,
		Amount:        req.Amount,
		PaymentMethod: accountID,
		Notes:         req.Notes,
		CreatedAt:     time.Now().UTC(),
	}
	created, err := s.repo.CreatePayment(ctx, payment)
	if err != nil {
		s.reverseOrFlag(ctx, invoice, tx, "payment row write failed")
		return nil, fmt.Errorf("%w: payment could not be recorded", store.ErrConsistency)
	}

	invoice.PaidAmount = invoice.PaidAmount.Add(req.Amount)
	invoice.RemainingAmount = invoice.RemainingAmount.Sub(req.Amount)
	invoice.Status = deriveStatus(invoice)
	invoice.UpdatedAt = time.Now().UTC()

	if _, err := s.repo.UpdateInvoice(ctx, *invoice); err != nil {
		s.reverseOrFlag(ctx, invoice, tx, "invoice update after payment failed")
		return nil, fmt.Errorf("%w: invoice could not be updated after payment", store.ErrConsistency)
	}

	actor, _ := ActorFromContext(ctx)
	log.Printf("[service] payment %s of %s recorded on invoice %s by %s", created.ID, created.Amount, invoice.Number, actor.Username)
	return created, nil
}

// reverseOrFlag compensates a ledger emission whose follow-up writes failed.
// If even the compensating reversal cannot be written, the invoice is flagged
// inconsistent so an operator can reconcile it by hand.
func (s *Service) reverseOrFlag(ctx context.Context, invoice *domain.Invoice, tx *domain.TreasuryTransaction, cause string) {
	log.Printf("[service] compensating transaction %s on invoice %s: %s", tx.ID, invoice.Number, cause)
	_, _, err := s.emitGuarded(ctx, tx.AccountID, reversalKind(tx.Kind), tx.Amount,
		tx.Reference+":reversal", "reversal: "+cause)
	if err == nil {
		return
	}
	log.Printf("[service] reversal emission failed for %s: %v", tx.Reference, err)
	s.flagInconsistent(ctx, invoice.ID)
}

func (s *Service) flagInconsistent(ctx context.Context, invoiceID string) {
	invoice, err := s.repo.GetInvoiceByID(ctx, invoiceID)
	if err != nil {
		log.Printf("[service] could not load invoice %s to flag it inconsistent: %v", invoiceID, err)
		return
	}
	invoice.Inconsistent = true
	invoice.UpdatedAt = time.Now().UTC()
	if _, err := s.repo.UpdateInvoice(ctx, *invoice); err != nil {
		log.Printf("[service] could not flag invoice %s inconsistent: %v", invoiceID, err)
	}
}

func (s *Service) ListPayments(ctx context.Context, limit int) ([]domain.Payment, error) {
	return s.repo.ListPayments(ctx, limit)
}

func (s *Service) ListPaymentsByInvoice(ctx context.Context, invoiceID string) ([]domain.Payment, error) {
	if _, err := s.repo.GetInvoiceByID(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListPaymentsByInvoice(ctx, invoiceID)
}
