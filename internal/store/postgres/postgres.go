package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"sealdesk/backend/internal/domain"
	"sealdesk/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if invoice.ID == "" || invoice.Number == "" {
		return nil, store.ErrValidation
	}
	items, err := json.Marshal(invoice.Items)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invoices (
			id, number, idempotency_key, customer_id, customer_name, items,
			subtotal, discount_type, discount_value, discount, total_after_discount,
			total_amount, payment_method, paid_amount, remaining_amount, status,
			notes, inconsistent, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, invoice.ID, invoice.Number, nullIfEmpty(invoice.IdempotencyKey), nullIfEmpty(invoice.CustomerID),
		invoice.CustomerName, items, invoice.Subtotal, invoice.DiscountType, invoice.DiscountValue,
		invoice.Discount, invoice.TotalAfterDiscount, invoice.TotalAmount, invoice.PaymentMethod,
		invoice.PaidAmount, invoice.RemainingAmount, invoice.Status, invoice.Notes,
		invoice.Inconsistent, invoice.CreatedAt, invoice.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConsistency
		}
		return nil, err
	}

	created := invoice
	return &created, nil
}

const invoiceColumns = `
	id, number, COALESCE(idempotency_key,''), COALESCE(customer_id,''), customer_name, items,
	subtotal, discount_type, discount_value, discount, total_after_discount,
	total_amount, payment_method, paid_amount, remaining_amount, status,
	notes, inconsistent, created_at, updated_at
`

func scanInvoice(row interface{ Scan(...any) error }) (*domain.Invoice, error) {
	var invoice domain.Invoice
	var items []byte
	err := row.Scan(
		&invoice.ID, &invoice.Number, &invoice.IdempotencyKey, &invoice.CustomerID,
		&invoice.CustomerName, &items, &invoice.Subtotal, &invoice.DiscountType,
		&invoice.DiscountValue, &invoice.Discount, &invoice.TotalAfterDiscount,
		&invoice.TotalAmount, &invoice.PaymentMethod, &invoice.PaidAmount,
		&invoice.RemainingAmount, &invoice.Status, &invoice.Notes,
		&invoice.Inconsistent, &invoice.CreatedAt, &invoice.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &invoice.Items); err != nil {
		return nil, err
	}
	invoice.CreatedAt = invoice.CreatedAt.UTC()
	invoice.UpdatedAt = invoice.UpdatedAt.UTC()
	return &invoice, nil
}

func (s *Store) GetInvoiceByID(ctx context.Context, id string) (*domain.Invoice, error) {
	invoice, err := scanInvoice(s.db.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return invoice, nil
}

func (s *Store) FindInvoiceByIdempotency(ctx context.Context, key string) (*domain.Invoice, error) {
	invoice, err := scanInvoice(s.db.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE idempotency_key = $1
	`, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return invoice, nil
}

func (s *Store) ListInvoices(ctx context.Context, limit int) ([]domain.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		ORDER BY created_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, 64)
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	items, err := json.Marshal(invoice.Items)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET customer_id = $2, customer_name = $3, items = $4, subtotal = $5,
			discount_type = $6, discount_value = $7, discount = $8,
			total_after_discount = $9, total_amount = $10, payment_method = $11,
			paid_amount = $12, remaining_amount = $13, status = $14, notes = $15,
			inconsistent = $16, updated_at = $17
		WHERE id = $1
	`, invoice.ID, nullIfEmpty(invoice.CustomerID), invoice.CustomerName, items,
		invoice.Subtotal, invoice.DiscountType, invoice.DiscountValue, invoice.Discount,
		invoice.TotalAfterDiscount, invoice.TotalAmount, invoice.PaymentMethod,
		invoice.PaidAmount, invoice.RemainingAmount, invoice.Status, invoice.Notes,
		invoice.Inconsistent, invoice.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := invoice
	return &updated, nil
}

func (s *Store) NextInvoiceSequence(ctx context.Context) (int64, error) {
	return s.nextCounter(ctx, "invoice")
}

// nextCounter bumps a named persistent counter and returns the new value.
// The upsert serializes concurrent callers on the counter row.
func (s *Store) nextCounter(ctx context.Context, name string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO counters (name, value)
		VALUES ($1, 1)
		ON CONFLICT (name)
		DO UPDATE SET value = counters.value + 1
		RETURNING value
	`, name).Scan(&value)
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (s *Store) ArchiveInvoice(ctx context.Context, archived domain.ArchivedInvoice) error {
	payload, err := json.Marshal(archived.Invoice)
	if err != nil {
		return err
	}
	reversals, err := json.Marshal(archived.ReversalTransactionIDs)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, archived.Invoice.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO archived_invoices (id, invoice, cancelled_by, cancelled_at, reversal_transaction_ids, inventory_restored)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, archived.Invoice.ID, payload, archived.CancelledBy, archived.CancelledAt, reversals, archived.InventoryRestored)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func scanArchived(row interface{ Scan(...any) error }) (*domain.ArchivedInvoice, error) {
	var archived domain.ArchivedInvoice
	var payload []byte
	var reversals []byte
	err := row.Scan(&payload, &archived.CancelledBy, &archived.CancelledAt, &reversals, &archived.InventoryRestored)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &archived.Invoice); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(reversals, &archived.ReversalTransactionIDs); err != nil {
		return nil, err
	}
	archived.CancelledAt = archived.CancelledAt.UTC()
	return &archived, nil
}

func (s *Store) GetArchivedInvoiceByID(ctx context.Context, id string) (*domain.ArchivedInvoice, error) {
	archived, err := scanArchived(s.db.QueryRowContext(ctx, `
		SELECT invoice, cancelled_by, cancelled_at, reversal_transaction_ids, inventory_restored
		FROM archived_invoices
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return archived, nil
}

func (s *Store) ListArchivedInvoices(ctx context.Context, limit int) ([]domain.ArchivedInvoice, error) {
	query := `
		SELECT invoice, cancelled_by, cancelled_at, reversal_transaction_ids, inventory_restored
		FROM archived_invoices
		ORDER BY cancelled_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	archived := make([]domain.ArchivedInvoice, 0, 32)
	for rows.Next() {
		entry, err := scanArchived(rows)
		if err != nil {
			return nil, err
		}
		archived = append(archived, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return archived, nil
}

func (s *Store) RestoreInvoice(ctx context.Context, id string, invoice domain.Invoice) (*domain.Invoice, error) {
	items, err := json.Marshal(invoice.Items)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM archived_invoices WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (
			id, number, idempotency_key, customer_id, customer_name, items,
			subtotal, discount_type, discount_value, discount, total_after_discount,
			total_amount, payment_method, paid_amount, remaining_amount, status,
			notes, inconsistent, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, invoice.ID, invoice.Number, nullIfEmpty(invoice.IdempotencyKey), nullIfEmpty(invoice.CustomerID),
		invoice.CustomerName, items, invoice.Subtotal, invoice.DiscountType, invoice.DiscountValue,
		invoice.Discount, invoice.TotalAfterDiscount, invoice.TotalAmount, invoice.PaymentMethod,
		invoice.PaidAmount, invoice.RemainingAmount, invoice.Status, invoice.Notes,
		invoice.Inconsistent, invoice.CreatedAt, invoice.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConsistency
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	restored := invoice
	return &restored, nil
}

func (s *Store) SumDeferredRemaining(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(remaining_amount), 0)
		FROM invoices
		WHERE payment_method = $1
	`, domain.AccountDeferred).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *Store) CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	if payment.ID == "" || payment.InvoiceID == "" {
		return nil, store.ErrValidation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, invoice_id, amount, payment_method, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, payment.ID, payment.InvoiceID, payment.Amount, payment.PaymentMethod, payment.Notes, payment.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}
	created := payment
	return &created, nil
}

func (s *Store) ListPayments(ctx context.Context, limit int) ([]domain.Payment, error) {
	query := `
		SELECT id, invoice_id, amount, payment_method, notes, created_at
		FROM payments
		ORDER BY created_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	return s.queryPayments(ctx, query, args...)
}

func (s *Store) ListPaymentsByInvoice(ctx context.Context, invoiceID string) ([]domain.Payment, error) {
	return s.queryPayments(ctx, `
		SELECT id, invoice_id, amount, payment_method, notes, created_at
		FROM payments
		WHERE invoice_id = $1
		ORDER BY created_at ASC
	`, invoiceID)
}

func (s *Store) queryPayments(ctx context.Context, query string, args ...any) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 16)
	for rows.Next() {
		var payment domain.Payment
		if err := rows.Scan(&payment.ID, &payment.InvoiceID, &payment.Amount, &payment.PaymentMethod, &payment.Notes, &payment.CreatedAt); err != nil {
			return nil, err
		}
		payment.CreatedAt = payment.CreatedAt.UTC()
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) CreateTreasuryTransaction(ctx context.Context, tx domain.TreasuryTransaction) (*domain.TreasuryTransaction, error) {
	if tx.ID == "" || tx.AccountID == "" {
		return nil, store.ErrValidation
	}
	if tx.Kind != domain.TxKindIncome && tx.Kind != domain.TxKindExpense {
		return nil, store.ErrValidation
	}
	if !tx.Amount.IsPositive() {
		return nil, store.ErrValidation
	}

	// A partial unique index on non-empty references turns a duplicate
	// emission into ErrConsistency instead of a second ledger row.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO treasury_transactions (id, account_id, kind, amount, reference, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, tx.ID, tx.AccountID, tx.Kind, tx.Amount, tx.Reference, tx.Description, tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConsistency
		}
		return nil, err
	}
	created := tx
	return &created, nil
}

func (s *Store) FindTreasuryTransactionByReference(ctx context.Context, reference string) (*domain.TreasuryTransaction, error) {
	var tx domain.TreasuryTransaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, kind, amount, reference, description, created_at
		FROM treasury_transactions
		WHERE reference = $1
	`, reference).Scan(&tx.ID, &tx.AccountID, &tx.Kind, &tx.Amount, &tx.Reference, &tx.Description, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	return &tx, nil
}

func (s *Store) ListTreasuryTransactions(ctx context.Context, accountID string, referencePrefix string, limit int) ([]domain.TreasuryTransaction, error) {
	query := `
		SELECT id, account_id, kind, amount, reference, description, created_at
		FROM treasury_transactions
		WHERE ($1 = '' OR account_id = $1)
			AND ($2 = '' OR reference LIKE $2 || '%')
		ORDER BY created_at DESC
	`
	args := []any{accountID, referencePrefix}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.TreasuryTransaction, 0, 64)
	for rows.Next() {
		var tx domain.TreasuryTransaction
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Kind, &tx.Amount, &tx.Reference, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Store) GetAccountTotals(ctx context.Context) (map[string]domain.AccountTotals, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id,
			COALESCE(SUM(amount) FILTER (WHERE kind = 'income'), 0),
			COALESCE(SUM(amount) FILTER (WHERE kind = 'expense'), 0)
		FROM treasury_transactions
		GROUP BY account_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]domain.AccountTotals, 8)
	for rows.Next() {
		var accountID string
		var entry domain.AccountTotals
		if err := rows.Scan(&accountID, &entry.Income, &entry.Expense); err != nil {
			return nil, err
		}
		totals[accountID] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *Store) CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	if item.ID == "" || item.MaterialType == "" || item.AvailablePieces < 0 {
		return nil, store.ErrValidation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_items (
			id, material_type, inner_diameter, outer_diameter, available_pieces,
			min_stock_level, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, item.ID, item.MaterialType, item.InnerDiameter, item.OuterDiameter,
		item.AvailablePieces, item.MinStockLevel, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}
	created := item
	return &created, nil
}

const inventoryColumns = `
	id, material_type, inner_diameter, outer_diameter, available_pieces,
	min_stock_level, created_at, updated_at
`

func scanInventoryItem(row interface{ Scan(...any) error }) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := row.Scan(&item.ID, &item.MaterialType, &item.InnerDiameter, &item.OuterDiameter,
		&item.AvailablePieces, &item.MinStockLevel, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}

func (s *Store) GetInventoryItemByID(ctx context.Context, id string) (*domain.InventoryItem, error) {
	item, err := scanInventoryItem(s.db.QueryRowContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_items
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

func (s *Store) FindInventoryItemBySpec(ctx context.Context, materialType string, innerDiameter float64, outerDiameter float64) (*domain.InventoryItem, error) {
	item, err := scanInventoryItem(s.db.QueryRowContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_items
		WHERE material_type = $1 AND inner_diameter = $2 AND outer_diameter = $3
	`, materialType, innerDiameter, outerDiameter))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

func (s *Store) ListInventoryItems(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_items
		ORDER BY
			CASE material_type
				WHEN 'BUR' THEN 1 WHEN 'NBR' THEN 2 WHEN 'BT' THEN 3
				WHEN 'BOOM' THEN 4 WHEN 'VT' THEN 5 ELSE 6
			END,
			inner_diameter, outer_diameter
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, 64)
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	if item.AvailablePieces < 0 {
		return nil, store.ErrValidation
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE inventory_items
		SET available_pieces = $2, min_stock_level = $3, updated_at = $4
		WHERE id = $1
	`, item.ID, item.AvailablePieces, item.MinStockLevel, item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := item
	return &updated, nil
}

func (s *Store) DeleteInventoryItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM inventory_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AdjustInventoryPieces(ctx context.Context, id string, delta float64) (*domain.InventoryItem, error) {
	// The guard in the WHERE clause keeps the decrement atomic so two
	// concurrent consumers can never drive the count negative.
	item, err := scanInventoryItem(s.db.QueryRowContext(ctx, `
		UPDATE inventory_items
		SET available_pieces = available_pieces + $2, updated_at = now()
		WHERE id = $1 AND available_pieces + $2 >= 0
		RETURNING `+inventoryColumns+`
	`, id, delta))
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM inventory_items WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	return nil, store.ErrInsufficientStock
}

func (s *Store) CreateInventoryTransaction(ctx context.Context, tx domain.InventoryTransaction) (*domain.InventoryTransaction, error) {
	if tx.ID == "" || tx.InventoryItemID == "" {
		return nil, store.ErrValidation
	}
	if tx.Kind != domain.InventoryTxIn && tx.Kind != domain.InventoryTxOut {
		return nil, store.ErrValidation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_transactions (
			id, inventory_item_id, material_type, inner_diameter, outer_diameter,
			kind, pieces_change, remaining_pieces, reason, reference, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, tx.ID, tx.InventoryItemID, tx.MaterialType, tx.InnerDiameter, tx.OuterDiameter,
		tx.Kind, tx.PiecesChange, tx.RemainingPieces, tx.Reason, tx.Reference, tx.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := tx
	return &created, nil
}

func (s *Store) ListInventoryTransactions(ctx context.Context, inventoryItemID string, limit int) ([]domain.InventoryTransaction, error) {
	query := `
		SELECT id, inventory_item_id, material_type, inner_diameter, outer_diameter,
			kind, pieces_change, remaining_pieces, reason, reference, created_at
		FROM inventory_transactions
		WHERE ($1 = '' OR inventory_item_id = $1)
		ORDER BY created_at DESC
	`
	args := []any{inventoryItemID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.InventoryTransaction, 0, 64)
	for rows.Next() {
		var tx domain.InventoryTransaction
		if err := rows.Scan(&tx.ID, &tx.InventoryItemID, &tx.MaterialType, &tx.InnerDiameter,
			&tx.OuterDiameter, &tx.Kind, &tx.PiecesChange, &tx.RemainingPieces, &tx.Reason,
			&tx.Reference, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Store) CreateRawMaterialUnit(ctx context.Context, unit domain.RawMaterialUnit) (*domain.RawMaterialUnit, error) {
	if unit.ID == "" || unit.MaterialType == "" || unit.UnitCode == "" {
		return nil, store.ErrValidation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_material_units (id, material_type, inner_diameter, outer_diameter, unit_code, pieces_count, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, unit.ID, unit.MaterialType, unit.InnerDiameter, unit.OuterDiameter, unit.UnitCode, unit.PiecesCount, unit.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConsistency
		}
		return nil, err
	}
	created := unit
	return &created, nil
}

func (s *Store) ListRawMaterialUnits(ctx context.Context) ([]domain.RawMaterialUnit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, material_type, inner_diameter, outer_diameter, unit_code, pieces_count, created_at
		FROM raw_material_units
		ORDER BY
			CASE material_type
				WHEN 'BUR' THEN 1 WHEN 'NBR' THEN 2 WHEN 'BT' THEN 3
				WHEN 'BOOM' THEN 4 WHEN 'VT' THEN 5 ELSE 6
			END,
			inner_diameter, outer_diameter
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := make([]domain.RawMaterialUnit, 0, 64)
	for rows.Next() {
		var unit domain.RawMaterialUnit
		if err := rows.Scan(&unit.ID, &unit.MaterialType, &unit.InnerDiameter, &unit.OuterDiameter,
			&unit.UnitCode, &unit.PiecesCount, &unit.CreatedAt); err != nil {
			return nil, err
		}
		unit.CreatedAt = unit.CreatedAt.UTC()
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}

func (s *Store) NextUnitSequence(ctx context.Context, prefix string) (int64, error) {
	if prefix == "" {
		return 0, store.ErrValidation
	}
	return s.nextCounter(ctx, "unit:"+prefix)
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || customer.Name == "" {
		return nil, store.ErrValidation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, address, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, customer.ID, customer.Name, customer.Phone, customer.Address, customer.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, address, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&customer.ID, &customer.Name, &customer.Phone, &customer.Address, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, address, created_at
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		var customer domain.Customer
		if err := rows.Scan(&customer.ID, &customer.Name, &customer.Phone, &customer.Address, &customer.CreatedAt); err != nil {
			return nil, err
		}
		customer.CreatedAt = customer.CreatedAt.UTC()
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" {
		return store.ErrValidation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
