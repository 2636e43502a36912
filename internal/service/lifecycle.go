package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"sealdesk/backend/internal/domain"
	"sealdesk/backend/internal/store"
)

// Ledger rows for one invoice form chains per base reference: an income row,
// its ":reversal" expense, that reversal's ":restore" income, and so on
// through repeated cancel/restore cycles. Only the tip of each chain is
// outstanding; compensation always targets the tips, guarded by reference so
// retries never double-post.
func chainTips(txs []domain.TreasuryTransaction) []domain.TreasuryTransaction {
	byRef := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		if tx.Reference != "" {
			byRef[tx.Reference] = struct{}{}
		}
	}
	tips := make([]domain.TreasuryTransaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Reference == "" {
			continue
		}
		if _, reversed := byRef[tx.Reference+":reversal"]; reversed {
			continue
		}
		if _, restored := byRef[tx.Reference+":restore"]; restored {
			continue
		}
		tips = append(tips, tx)
	}
	return tips
}

// CancelInvoice takes an invoice out of the active set. The ledger is never
// rewritten: every outstanding income row tied to the invoice gets a
// compensating expense, consumed inventory is put back, and the invoice
// moves to the archive. Partial failures archive the invoice flagged
// inconsistent and report ErrConsistency so an operator follows up.
func (s *Service) CancelInvoice(ctx context.Context, id, reason string) (*domain.ArchivedInvoice, error) {
	unlock := s.locks.lock("invoice:" + id)
	defer unlock()

	invoice, err := s.repo.GetInvoiceByID(ctx, id)
	if err != nil {
		return nil, err
	}

	base := "invoice:" + invoice.ID
	txs, err := s.repo.ListTreasuryTransactions(ctx, "", base, 0)
	if err != nil {
		return nil, fmt.Errorf("list invoice transactions: %w", err)
	}

	var reversalIDs []string
	reversalsOK := true
	for _, tx := range chainTips(txs) {
		if tx.Kind != domain.TxKindIncome {
			continue
		}
		reversal, _, err := s.emitGuarded(ctx, tx.AccountID, domain.TxKindExpense, tx.Amount,
			tx.Reference+":reversal", "reversal: invoice cancelled")
		if err != nil {
			log.Printf("[service] cancel of %s: reversal for %s failed: %v", invoice.Number, tx.Reference, err)
			reversalsOK = false
			continue
		}
		reversalIDs = append(reversalIDs, reversal.ID)
	}

	restoreErr := s.restoreForItems(ctx, invoice.Items, "invoice cancelled", base+":reversal")

	actor, _ := ActorFromContext(ctx)
	snapshot := *invoice
	snapshot.Status = domain.InvoiceStatusCancelled
	snapshot.UpdatedAt = time.Now().UTC()
	if reason != "" {
		snapshot.Notes = strings.TrimSpace(snapshot.Notes + "\ncancelled: " + reason)
	}
	if !reversalsOK || restoreErr != nil {
		snapshot.Inconsistent = true
	}

	archived := domain.ArchivedInvoice{
		Invoice:                snapshot,
		CancelledBy:            actor.Username,
		CancelledAt:            time.Now().UTC(),
		ReversalTransactionIDs: reversalIDs,
		InventoryRestored:      restoreErr == nil,
	}
	if err := s.repo.ArchiveInvoice(ctx, archived); err != nil {
		// Reversals are reference-guarded, so retrying the cancel is safe.
		return nil, fmt.Errorf("archive invoice: %w", err)
	}

	if !reversalsOK || restoreErr != nil {
		return &archived, fmt.Errorf("%w: invoice %s cancelled with incomplete compensation", store.ErrConsistency, invoice.Number)
	}
	log.Printf("[service] invoice %s cancelled by %s, %d ledger reversals", invoice.Number, actor.Username, len(reversalIDs))
	return &archived, nil
}

// RestoreInvoice brings a cancelled invoice back: inventory is consumed
// again, every outstanding cancellation reversal gets a compensating income
// row, and the invoice returns to the active set with a status recomputed
// from its amounts. If stock no longer covers the items nothing changes.
func (s *Service) RestoreInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	unlock := s.locks.lock("invoice:" + id)
	defer unlock()

	archived, err := s.repo.GetArchivedInvoiceByID(ctx, id)
	if err != nil {
		return nil, err
	}
	invoice := archived.Invoice

	base := "invoice:" + invoice.ID
	if err := s.consumeForItems(ctx, invoice.Items, base+":restore"); err != nil {
		return nil, err
	}

	txs, err := s.repo.ListTreasuryTransactions(ctx, "", base, 0)
	if err != nil {
		s.compensateRestore(ctx, invoice, base)
		return nil, fmt.Errorf("list invoice transactions: %w", err)
	}
	for _, tx := range chainTips(txs) {
		if tx.Kind != domain.TxKindExpense {
			continue
		}
		if _, _, err := s.emitGuarded(ctx, tx.AccountID, domain.TxKindIncome, tx.Amount,
			tx.Reference+":restore", "invoice restored"); err != nil {
			log.Printf("[service] restore of %s: re-emission for %s failed: %v", invoice.Number, tx.Reference, err)
			s.compensateRestore(ctx, invoice, base)
			return nil, fmt.Errorf("%w: ledger re-emission failed during restore", store.ErrConsistency)
		}
	}

	// A flag set by an incomplete cancellation survives the restore; only
	// manual reconciliation clears it.
	invoice.Status = deriveStatus(&invoice)
	invoice.UpdatedAt = time.Now().UTC()

	restored, err := s.repo.RestoreInvoice(ctx, id, invoice)
	if err != nil {
		s.compensateRestore(ctx, invoice, base)
		return nil, fmt.Errorf("%w: invoice could not be moved back to the active set", store.ErrConsistency)
	}

	actor, _ := ActorFromContext(ctx)
	log.Printf("[service] invoice %s restored by %s, status %s", restored.Number, actor.Username, restored.Status)
	return restored, nil
}

// compensateRestore undoes the inventory consumption of a failed restore.
func (s *Service) compensateRestore(ctx context.Context, invoice domain.Invoice, base string) {
	if err := s.restoreForItems(ctx, invoice.Items, "compensation: restore failed", base+":restore:compensation"); err != nil {
		log.Printf("[service] compensation after failed restore of %s failed: %v", invoice.Number, err)
	}
}
