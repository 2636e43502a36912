// Package alerts evaluates raw-material stock against per-item thresholds
// and produces the low-stock feed shown on the dashboard.
package alerts

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"sealdesk/backend/internal/cache"
	"sealdesk/backend/internal/domain"
)

const (
	SeverityOut      = "out_of_stock"
	SeverityCritical = "critical"
	SeverityLow      = "low"
)

type Engine struct {
	cache    cache.AlertCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.AlertCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopAlertCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

// Evaluate returns one alert per item at or below its threshold. Results are
// cached keyed on the stock fingerprint, so a cache hit is always current.
func (e *Engine) Evaluate(ctx context.Context, items []domain.InventoryItem) (*domain.LowStockAlertResponse, error) {
	cacheKey := buildCacheKey(items)
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		return cached, nil
	}

	alerts := make([]domain.LowStockAlert, 0, 8)
	for _, item := range items {
		severity, triggered := classify(item)
		if !triggered {
			continue
		}
		alerts = append(alerts, domain.LowStockAlert{
			InventoryItemID: item.ID,
			MaterialType:    item.MaterialType,
			InnerDiameter:   item.InnerDiameter,
			OuterDiameter:   item.OuterDiameter,
			AvailablePieces: item.AvailablePieces,
			MinStockLevel:   item.MinStockLevel,
			Severity:        severity,
		})
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return severityRank(alerts[i].Severity) < severityRank(alerts[j].Severity)
	})

	resp := &domain.LowStockAlertResponse{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Alerts:      alerts,
	}
	_ = e.cache.Set(ctx, cacheKey, resp, e.cacheTTL)
	return resp, nil
}

func classify(item domain.InventoryItem) (string, bool) {
	switch {
	case item.AvailablePieces <= 0:
		return SeverityOut, true
	case item.AvailablePieces <= item.MinStockLevel/2:
		return SeverityCritical, true
	case item.AvailablePieces <= item.MinStockLevel:
		return SeverityLow, true
	default:
		return "", false
	}
}

func severityRank(severity string) int {
	switch severity {
	case SeverityOut:
		return 0
	case SeverityCritical:
		return 1
	default:
		return 2
	}
}

func buildCacheKey(items []domain.InventoryItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%s:%g:%g:%g:%g",
			item.MaterialType, item.InnerDiameter, item.OuterDiameter, item.AvailablePieces, item.MinStockLevel))
	}
	sort.Strings(parts)
	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return "sealdesk:lowstock:" + hex.EncodeToString(hash[:])
}
