package alerts

import (
	"context"
	"testing"
	"time"

	"sealdesk/backend/internal/domain"
)

func TestEvaluateClassifiesBySeverity(t *testing.T) {
	engine := NewEngine(nil, time.Second)

	items := []domain.InventoryItem{
		{ID: "ok", MaterialType: domain.MaterialNBR, AvailablePieces: 100, MinStockLevel: 10},
		{ID: "low", MaterialType: domain.MaterialBUR, AvailablePieces: 10, MinStockLevel: 10},
		{ID: "critical", MaterialType: domain.MaterialBT, AvailablePieces: 4, MinStockLevel: 10},
		{ID: "out", MaterialType: domain.MaterialVT, AvailablePieces: 0, MinStockLevel: 10},
	}

	resp, err := engine.Evaluate(context.Background(), items)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(resp.Alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(resp.Alerts))
	}
	// Out-of-stock items surface first, then critical, then low.
	if resp.Alerts[0].InventoryItemID != "out" || resp.Alerts[0].Severity != SeverityOut {
		t.Fatalf("expected out_of_stock first, got %+v", resp.Alerts[0])
	}
	if resp.Alerts[1].Severity != SeverityCritical {
		t.Fatalf("expected critical second, got %s", resp.Alerts[1].Severity)
	}
	if resp.Alerts[2].Severity != SeverityLow {
		t.Fatalf("expected low last, got %s", resp.Alerts[2].Severity)
	}
}

func TestEvaluateEmptyStockListYieldsNoAlerts(t *testing.T) {
	engine := NewEngine(nil, time.Second)

	resp, err := engine.Evaluate(context.Background(), nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(resp.Alerts) != 0 {
		t.Fatalf("expected no alerts, got %d", len(resp.Alerts))
	}
	if resp.GeneratedAt == "" {
		t.Fatalf("expected generated_at to be set")
	}
}
