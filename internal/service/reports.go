package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"sealdesk/backend/internal/domain"
	"sealdesk/backend/internal/store"
)

// DailyWorkOrder aggregates the day's active invoices into the cutting list
// handed to the workshop. Only manufactured lines appear; cancelled invoices
// are excluded because they live in the archive.
func (s *Service) DailyWorkOrder(ctx context.Context, date string) (*domain.DailyWorkOrder, error) {
	day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be formatted YYYY-MM-DD", store.ErrValidation)
	}
	dayEnd := day.Add(24 * time.Hour)

	invoices, err := s.repo.ListInvoices(ctx, 0)
	if err != nil {
		return nil, err
	}

	order := &domain.DailyWorkOrder{
		Date:           date,
		TotalAmount:    decimal.Zero,
		PaidAmount:     decimal.Zero,
		DeferredAmount: decimal.Zero,
		Lines:          []domain.WorkOrderLine{},
	}
	for _, invoice := range invoices {
		if invoice.CreatedAt.Before(day) || !invoice.CreatedAt.Before(dayEnd) {
			continue
		}
		order.InvoiceCount++
		order.TotalAmount = order.TotalAmount.Add(invoice.TotalAmount)
		order.PaidAmount = order.PaidAmount.Add(invoice.PaidAmount)
		order.DeferredAmount = order.DeferredAmount.Add(invoice.RemainingAmount)
		for _, item := range invoice.Items {
			if !item.Manufactured() {
				continue
			}
			order.Lines = append(order.Lines, domain.WorkOrderLine{
				InvoiceNumber: invoice.Number,
				CustomerName:  invoice.CustomerName,
				MaterialType:  item.MaterialType,
				InnerDiameter: item.InnerDiameter,
				OuterDiameter: item.OuterDiameter,
				Height:        item.Height,
				Quantity:      item.Quantity,
			})
		}
	}
	return order, nil
}

// ExportSnapshot collects the full state of every logical store.
func (s *Service) ExportSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	snapshot := &domain.Snapshot{GeneratedAt: time.Now().UTC()}

	var err error
	if snapshot.Invoices, err = s.repo.ListInvoices(ctx, 0); err != nil {
		return nil, fmt.Errorf("snapshot invoices: %w", err)
	}
	if snapshot.ArchivedInvoices, err = s.repo.ListArchivedInvoices(ctx, 0); err != nil {
		return nil, fmt.Errorf("snapshot archive: %w", err)
	}
	if snapshot.Payments, err = s.repo.ListPayments(ctx, 0); err != nil {
		return nil, fmt.Errorf("snapshot payments: %w", err)
	}
	if snapshot.TreasuryTransactions, err = s.repo.ListTreasuryTransactions(ctx, "", "", 0); err != nil {
		return nil, fmt.Errorf("snapshot treasury: %w", err)
	}
	if snapshot.InventoryItems, err = s.repo.ListInventoryItems(ctx); err != nil {
		return nil, fmt.Errorf("snapshot inventory: %w", err)
	}
	if snapshot.InventoryTransactions, err = s.repo.ListInventoryTransactions(ctx, "", 0); err != nil {
		return nil, fmt.Errorf("snapshot inventory movements: %w", err)
	}
	if snapshot.RawMaterialUnits, err = s.repo.ListRawMaterialUnits(ctx); err != nil {
		return nil, fmt.Errorf("snapshot raw material units: %w", err)
	}
	return snapshot, nil
}

// RunBackup serializes a snapshot and ships it to the configured bucket.
func (s *Service) RunBackup(ctx context.Context) (*domain.BackupRunResponse, error) {
	if s.backup == nil || !s.backup.Enabled() {
		return nil, fmt.Errorf("%w: backup bucket is not configured", store.ErrValidation)
	}

	snapshot, err := s.ExportSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	object := "backups/" + snapshot.GeneratedAt.Format("20060102T150405Z") + ".json"
	if err := s.backup.Upload(ctx, object, payload); err != nil {
		return nil, fmt.Errorf("upload backup: %w", err)
	}

	log.Printf("[service] backup uploaded: %s (%d bytes)", object, len(payload))
	return &domain.BackupRunResponse{
		Object:     object,
		Bytes:      len(payload),
		UploadedAt: snapshot.GeneratedAt.Format(time.RFC3339),
	}, nil
}
