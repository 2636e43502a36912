package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sealdesk/backend/internal/domain"
	"sealdesk/backend/internal/store"
)

func TestAdjustInventoryPiecesGuardsAgainstNegativeStock(t *testing.T) {
	databaseURL := os.Getenv("SEALDESK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SEALDESK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	itemID := fmt.Sprintf("inv-adjust-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_items WHERE id = $1`, itemID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_items (
			id, material_type, inner_diameter, outer_diameter, available_pieces,
			min_stock_level, created_at, updated_at
		)
		VALUES ($1, 'NBR', 20, 30, 10, 2, now(), now())
	`, itemID); err != nil {
		t.Fatalf("seed inventory item: %v", err)
	}

	item, err := s.AdjustInventoryPieces(ctx, itemID, -8)
	if err != nil {
		t.Fatalf("adjust inventory: %v", err)
	}
	if item.AvailablePieces != 2 {
		t.Fatalf("expected 2 pieces after decrement, got %v", item.AvailablePieces)
	}

	if _, err := s.AdjustInventoryPieces(ctx, itemID, -3); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	var pieces float64
	if err := s.db.QueryRowContext(ctx, `
		SELECT available_pieces
		FROM inventory_items
		WHERE id = $1
	`, itemID).Scan(&pieces); err != nil {
		t.Fatalf("query inventory: %v", err)
	}
	if pieces != 2 {
		t.Fatalf("expected stock unchanged at 2 after rejected decrement, got %v", pieces)
	}
}

func TestTreasuryReferenceUniquenessYieldsConsistencyError(t *testing.T) {
	databaseURL := os.Getenv("SEALDESK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SEALDESK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	reference := fmt.Sprintf("invoice:it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM treasury_transactions WHERE reference = $1`, reference)
	})

	first := domain.TreasuryTransaction{
		ID:          fmt.Sprintf("tx-it-a-%d", stamp),
		AccountID:   domain.AccountCash,
		Kind:        domain.TxKindIncome,
		Amount:      decimal.NewFromInt(250),
		Reference:   reference,
		Description: "integration test emission",
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := s.CreateTreasuryTransaction(ctx, first); err != nil {
		t.Fatalf("first emission: %v", err)
	}

	second := first
	second.ID = fmt.Sprintf("tx-it-b-%d", stamp)
	if _, err := s.CreateTreasuryTransaction(ctx, second); !errors.Is(err, store.ErrConsistency) {
		t.Fatalf("expected ErrConsistency on duplicate reference, got %v", err)
	}
}
