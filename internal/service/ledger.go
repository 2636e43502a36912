package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"sealdesk/backend/internal/domain"
	"sealdesk/backend/internal/store"
	"sealdesk/backend/internal/xid"
)

// emitTransaction writes one ledger row. Amounts are always positive; the
// direction lives in the kind. Ledger rows are append-only.
func (s *Service) emitTransaction(ctx context.Context, accountID, kind string, amount decimal.Decimal, reference, description string) (*domain.TreasuryTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: transaction amount must be positive", store.ErrValidation)
	}
	tx := domain.TreasuryTransaction{
		ID:          xid.New("tx"),
		AccountID:   accountID,
		Kind:        kind,
		Amount:      amount,
		Reference:   reference,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	return s.repo.CreateTreasuryTransaction(ctx, tx)
}

// emitGuarded emits a transaction unless one with the same reference already
// exists. The lookup short-circuits the common replay; the store's unique
// reference constraint closes the race between two concurrent emitters.
func (s *Service) emitGuarded(ctx context.Context, accountID, kind string, amount decimal.Decimal, reference, description string) (tx *domain.TreasuryTransaction, existed bool, err error) {
	if reference == "" {
		return nil, false, fmt.Errorf("%w: guarded emission requires a reference", store.ErrValidation)
	}

	if existing, err := s.repo.FindTreasuryTransactionByReference(ctx, reference); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	created, err := s.emitTransaction(ctx, accountID, kind, amount, reference, description)
	if err != nil {
		if errors.Is(err, store.ErrConsistency) {
			if existing, lookupErr := s.repo.FindTreasuryTransactionByReference(ctx, reference); lookupErr == nil {
				return existing, true, nil
			}
		}
		return nil, false, err
	}
	return created, false, nil
}

// reversalKind returns the opposite ledger direction.
func reversalKind(kind string) string {
	if kind == domain.TxKindIncome {
		return domain.TxKindExpense
	}
	return domain.TxKindIncome
}

// AccountBalances returns the derived balance of every settlement account
// plus the deferred pseudo-account. Settlement balances are income minus
// expense over the ledger; the deferred balance is the sum of remaining
// amounts on open deferred invoices and never touches ledger rows.
func (s *Service) AccountBalances(ctx context.Context) ([]domain.AccountBalance, error) {
	totals, err := s.repo.GetAccountTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load account totals: %w", err)
	}

	balances := make([]domain.AccountBalance, 0, len(domain.SettlementAccounts)+1)
	for _, accountID := range domain.SettlementAccounts {
		entry := totals[accountID]
		balances = append(balances, domain.AccountBalance{
			AccountID: accountID,
			Balance:   entry.Income.Sub(entry.Expense),
		})
	}

	deferred, err := s.repo.SumDeferredRemaining(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum deferred remaining: %w", err)
	}
	balances = append(balances, domain.AccountBalance{
		AccountID: domain.AccountDeferred,
		Balance:   deferred,
	})
	return balances, nil
}

func (s *Service) ListTreasuryTransactions(ctx context.Context, accountID, referencePrefix string, limit int) ([]domain.TreasuryTransaction, error) {
	if accountID != "" {
		if _, _, err := resolveAccount(accountID); err != nil {
			return nil, err
		}
	}
	return s.repo.ListTreasuryTransactions(ctx, accountID, referencePrefix, limit)
}
