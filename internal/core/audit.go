package core

import (
	"context"

	"github.com/JonMunkholm/bso/internal/logging"
	"github.com/JonMunkholm/bso/internal/release"
	"github.com/JonMunkholm/bso/internal/store"
)

// newReleaseEntry builds the release log row for a reconciled batch.
func newReleaseEntry(ctx context.Context, orderID, childOrderID string, status release.Status, lines []release.ChildLine) store.ReleaseEntry {
	meta := RequestMetaFromContext(ctx)

	entry := store.ReleaseEntry{
		BlanketOrderID: orderID,
		ChildOrderID:   childOrderID,
		Status:         status,
		Lines:          make([]store.ReleaseLine, len(lines)),
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
	}
	for i, l := range lines {
		entry.Lines[i] = store.ReleaseLine{
			LineID:    l.LineID,
			ItemID:    l.Item.ID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
	}
	return entry
}

// Releases returns the release log of an order, newest first.
// limit <= 0 uses the configured default.
func (s *Service) Releases(ctx context.Context, orderID string, limit int) ([]store.ReleaseEntry, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	if _, err := s.store.LoadOrder(ctx, orderID); err != nil {
		return nil, err
	}

	entries, err := s.store.ListReleases(ctx, orderID, limit)
	if err != nil {
		logging.FromContext(ctx).Error("failed to list releases", "order_id", orderID, "error", err)
		return nil, err
	}
	if entries == nil {
		entries = []store.ReleaseEntry{}
	}
	return entries, nil
}
