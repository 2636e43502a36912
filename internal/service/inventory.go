package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"sealdesk/backend/internal/domain"
	"sealdesk/backend/internal/store"
	"sealdesk/backend/internal/xid"
)

// Every manufactured piece is cut with a fixed 2cm waste allowance on top of
// the ordered height.
const wasteAllowanceCm = 2

func piecesNeeded(item domain.InvoiceItem) float64 {
	return (item.Height + wasteAllowanceCm) * float64(item.Quantity)
}

// unitCodePrefixes maps material types to their unit-code letter. Codes are
// numbered independently per prefix, e.g. B-1, B-2 alongside N-1.
var unitCodePrefixes = map[string]string{
	domain.MaterialBUR:  "B",
	domain.MaterialNBR:  "N",
	domain.MaterialBT:   "T",
	domain.MaterialVT:   "V",
	domain.MaterialBOOM: "M",
}

type consumptionLine struct {
	itemID string
	spec   domain.InvoiceItem
	pieces float64
}

// planConsumption resolves every manufactured line to a concrete inventory
// item without mutating anything. Lines with the same spec are kept separate;
// the store-level atomic decrement handles the aggregate.
func (s *Service) planConsumption(ctx context.Context, items []domain.InvoiceItem) ([]consumptionLine, error) {
	plan := make([]consumptionLine, 0, len(items))
	for _, item := range items {
		if !item.Manufactured() {
			continue
		}
		stock, err := s.repo.FindInventoryItemBySpec(ctx, item.MaterialType, item.InnerDiameter, item.OuterDiameter)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: no stock for %s %g/%g", store.ErrInsufficientStock, item.MaterialType, item.InnerDiameter, item.OuterDiameter)
			}
			return nil, err
		}
		plan = append(plan, consumptionLine{itemID: stock.ID, spec: item, pieces: piecesNeeded(item)})
	}
	return plan, nil
}

// consumeForItems decrements stock for every manufactured line, all or
// nothing. If any decrement fails the ones already applied are rolled back
// before returning, so a rejected invoice leaves inventory untouched.
func (s *Service) consumeForItems(ctx context.Context, items []domain.InvoiceItem, reference string) error {
	plan, err := s.planConsumption(ctx, items)
	if err != nil {
		return err
	}

	applied := make([]consumptionLine, 0, len(plan))
	for _, line := range plan {
		updated, err := s.repo.AdjustInventoryPieces(ctx, line.itemID, -line.pieces)
		if err != nil {
			for _, done := range applied {
				if _, rbErr := s.repo.AdjustInventoryPieces(ctx, done.itemID, done.pieces); rbErr != nil {
					log.Printf("[service] rollback of inventory decrement failed for item %s: %v", done.itemID, rbErr)
				}
			}
			if errors.Is(err, store.ErrInsufficientStock) {
				return fmt.Errorf("%w: %s %g/%g needs %g pieces", store.ErrInsufficientStock, line.spec.MaterialType, line.spec.InnerDiameter, line.spec.OuterDiameter, line.pieces)
			}
			return err
		}
		applied = append(applied, line)
		s.recordInventoryTx(ctx, updated, domain.InventoryTxOut, -line.pieces, "invoice consumption", reference)
	}
	return nil
}

// restoreForItems puts the pieces consumed for the given lines back. Used by
// cancellation and by compensation after a failed ledger emission. Returns an
// error only when some stock could not be restored.
func (s *Service) restoreForItems(ctx context.Context, items []domain.InvoiceItem, reason, reference string) error {
	var firstErr error
	for _, item := range items {
		if !item.Manufactured() {
			continue
		}
		stock, err := s.repo.FindInventoryItemBySpec(ctx, item.MaterialType, item.InnerDiameter, item.OuterDiameter)
		if err != nil {
			log.Printf("[service] inventory restore: spec %s %g/%g not found: %v", item.MaterialType, item.InnerDiameter, item.OuterDiameter, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		pieces := piecesNeeded(item)
		updated, err := s.repo.AdjustInventoryPieces(ctx, stock.ID, pieces)
		if err != nil {
			log.Printf("[service] inventory restore failed for item %s: %v", stock.ID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.recordInventoryTx(ctx, updated, domain.InventoryTxIn, pieces, reason, reference)
	}
	return firstErr
}

// recordInventoryTx appends a movement row. Movement history is advisory; a
// failed write is logged, never propagated.
func (s *Service) recordInventoryTx(ctx context.Context, item *domain.InventoryItem, kind string, piecesChange float64, reason, reference string) {
	tx := domain.InventoryTransaction{
		ID:              xid.New("itx"),
		InventoryItemID: item.ID,
		MaterialType:    item.MaterialType,
		InnerDiameter:   item.InnerDiameter,
		OuterDiameter:   item.OuterDiameter,
		Kind:            kind,
		PiecesChange:    piecesChange,
		RemainingPieces: item.AvailablePieces,
		Reason:          reason,
		Reference:       reference,
		CreatedAt:       time.Now().UTC(),
	}
	if _, err := s.repo.CreateInventoryTransaction(ctx, tx); err != nil {
		log.Printf("[service] failed to record inventory movement for item %s: %v", item.ID, err)
	}
}

func (s *Service) CreateInventoryItem(ctx context.Context, req domain.InventoryItemCreateRequest) (*domain.InventoryItem, error) {
	if _, ok := unitCodePrefixes[req.MaterialType]; !ok {
		return nil, fmt.Errorf("%w: unknown material type %q", store.ErrValidation, req.MaterialType)
	}
	if req.InnerDiameter <= 0 || req.OuterDiameter <= req.InnerDiameter {
		return nil, fmt.Errorf("%w: diameters are invalid", store.ErrValidation)
	}
	if req.AvailablePieces < 0 {
		return nil, fmt.Errorf("%w: available pieces must not be negative", store.ErrValidation)
	}
	minStock := req.MinStockLevel
	if minStock <= 0 {
		minStock = 2
	}

	now := time.Now().UTC()
	item := domain.InventoryItem{
		ID:              xid.New("item"),
		MaterialType:    req.MaterialType,
		InnerDiameter:   req.InnerDiameter,
		OuterDiameter:   req.OuterDiameter,
		AvailablePieces: req.AvailablePieces,
		MinStockLevel:   minStock,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	created, err := s.repo.CreateInventoryItem(ctx, item)
	if err != nil {
		return nil, err
	}
	log.Printf("[service] inventory item %s created: %s %g/%g", created.ID, created.MaterialType, created.InnerDiameter, created.OuterDiameter)
	return created, nil
}

func (s *Service) GetInventoryItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	return s.repo.GetInventoryItemByID(ctx, id)
}

func (s *Service) ListInventoryItems(ctx context.Context) ([]domain.InventoryItem, error) {
	return s.repo.ListInventoryItems(ctx)
}

func (s *Service) UpdateInventoryItem(ctx context.Context, id string, req domain.InventoryItemUpdateRequest) (*domain.InventoryItem, error) {
	item, err := s.repo.GetInventoryItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.AvailablePieces != nil {
		if *req.AvailablePieces < 0 {
			return nil, fmt.Errorf("%w: available pieces must not be negative", store.ErrValidation)
		}
		item.AvailablePieces = *req.AvailablePieces
	}
	if req.MinStockLevel != nil {
		if *req.MinStockLevel < 0 {
			return nil, fmt.Errorf("%w: min stock level must not be negative", store.ErrValidation)
		}
		item.MinStockLevel = *req.MinStockLevel
	}
	item.UpdatedAt = time.Now().UTC()
	return s.repo.UpdateInventoryItem(ctx, *item)
}

func (s *Service) DeleteInventoryItem(ctx context.Context, id string) error {
	return s.repo.DeleteInventoryItem(ctx, id)
}

// AdjustInventory applies a signed manual correction, e.g. after a physical
// stock count. The movement row carries the operator-supplied reason.
func (s *Service) AdjustInventory(ctx context.Context, req domain.InventoryAdjustRequest) (*domain.InventoryItem, error) {
	if req.InventoryItemID == "" {
		return nil, fmt.Errorf("%w: inventory item id is required", store.ErrValidation)
	}
	if req.PiecesChange == 0 {
		return nil, fmt.Errorf("%w: pieces change must not be zero", store.ErrValidation)
	}
	if req.Reason == "" {
		return nil, fmt.Errorf("%w: a reason is required for manual adjustments", store.ErrValidation)
	}

	updated, err := s.repo.AdjustInventoryPieces(ctx, req.InventoryItemID, req.PiecesChange)
	if err != nil {
		return nil, err
	}
	kind := domain.InventoryTxIn
	if req.PiecesChange < 0 {
		kind = domain.InventoryTxOut
	}
	actor, _ := ActorFromContext(ctx)
	s.recordInventoryTx(ctx, updated, kind, req.PiecesChange, req.Reason, "manual:"+actor.Username)
	return updated, nil
}

func (s *Service) ListInventoryTransactions(ctx context.Context, inventoryItemID string, limit int) ([]domain.InventoryTransaction, error) {
	return s.repo.ListInventoryTransactions(ctx, inventoryItemID, limit)
}

// RegisterRawMaterialUnit records a labeled unit cut from blank stock and
// assigns it the next code for its material prefix. Producing the unit
// consumes pieces_count blank pieces from the matching stock line through the
// guarded path, so the unit is not created when stock cannot cover it. The
// sequence never reuses numbers, even across restarts.
func (s *Service) RegisterRawMaterialUnit(ctx context.Context, req domain.RawMaterialUnitCreateRequest) (*domain.RawMaterialUnit, error) {
	prefix, ok := unitCodePrefixes[req.MaterialType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown material type %q", store.ErrValidation, req.MaterialType)
	}
	if req.InnerDiameter <= 0 || req.OuterDiameter <= req.InnerDiameter {
		return nil, fmt.Errorf("%w: diameters are invalid", store.ErrValidation)
	}
	if req.PiecesCount <= 0 {
		return nil, fmt.Errorf("%w: pieces count must be positive", store.ErrValidation)
	}

	seq, err := s.repo.NextUnitSequence(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("next unit sequence: %w", err)
	}

	unit := domain.RawMaterialUnit{
		ID:            xid.New("unit"),
		MaterialType:  req.MaterialType,
		InnerDiameter: req.InnerDiameter,
		OuterDiameter: req.OuterDiameter,
		UnitCode:      fmt.Sprintf("%s-%d", prefix, seq),
		PiecesCount:   req.PiecesCount,
		CreatedAt:     time.Now().UTC(),
	}

	stock, err := s.repo.FindInventoryItemBySpec(ctx, req.MaterialType, req.InnerDiameter, req.OuterDiameter)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if stock != nil {
		updated, err := s.repo.AdjustInventoryPieces(ctx, stock.ID, -req.PiecesCount)
		if err != nil {
			if errors.Is(err, store.ErrInsufficientStock) {
				return nil, fmt.Errorf("%w: unit %s needs %g pieces of %s %g/%g", store.ErrInsufficientStock,
					unit.UnitCode, req.PiecesCount, req.MaterialType, req.InnerDiameter, req.OuterDiameter)
			}
			return nil, err
		}
		s.recordInventoryTx(ctx, updated, domain.InventoryTxOut, -req.PiecesCount, "raw material unit produced", "unit:"+unit.UnitCode)
	}

	created, err := s.repo.CreateRawMaterialUnit(ctx, unit)
	if err != nil {
		if stock != nil {
			if restored, adjErr := s.repo.AdjustInventoryPieces(ctx, stock.ID, req.PiecesCount); adjErr == nil {
				s.recordInventoryTx(ctx, restored, domain.InventoryTxIn, req.PiecesCount, "compensation: unit registration failed", "unit:"+unit.UnitCode)
			} else {
				log.Printf("[service] could not return pieces for failed unit %s: %v", unit.UnitCode, adjErr)
			}
		}
		return nil, err
	}

	log.Printf("[service] raw material unit %s registered (%s %g/%g)", created.UnitCode, created.MaterialType, created.InnerDiameter, created.OuterDiameter)
	return created, nil
}

func (s *Service) ListRawMaterialUnits(ctx context.Context) ([]domain.RawMaterialUnit, error) {
	return s.repo.ListRawMaterialUnits(ctx)
}

// LowStockAlerts evaluates current stock against per-item thresholds.
func (s *Service) LowStockAlerts(ctx context.Context) (*domain.LowStockAlertResponse, error) {
	items, err := s.repo.ListInventoryItems(ctx)
	if err != nil {
		return nil, err
	}
	return s.alerts.Evaluate(ctx, items)
}
