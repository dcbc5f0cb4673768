// Package store persists blanket orders, the sales orders generated from
// them, and the release log.
//
// The release core never talks to a database directly; it receives a
// *release.BlanketOrder from [RecordStore.LoadOrder] and hands the mutated
// order back to [RecordStore.SaveOrder]. Two implementations are provided:
// [Postgres] for production and [Memory] for tests and local runs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/bso/internal/release"
	"github.com/shopspring/decimal"
)

// ErrOrderNotFound is returned when a blanket order does not exist.
var ErrOrderNotFound = errors.New("blanket order not found")

// ChildOrderHeader is the header of a sales order generated by a release.
type ChildOrderHeader struct {
	BlanketOrderID string
	release.Header
}

// ChildOrderLine is a sales order line with its unit resolved to a canonical code.
type ChildOrderLine struct {
	release.ChildLine
	UnitCode string
}

// ReleaseLine records the quantity released from one blanket line.
type ReleaseLine struct {
	LineID    string          `json:"lineId"`
	ItemID    string          `json:"itemId"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// ReleaseEntry is one row of the release log.
type ReleaseEntry struct {
	ID             string         `json:"id"`
	BlanketOrderID string         `json:"blanketOrderId"`
	ChildOrderID   string         `json:"childOrderId"`
	Status         release.Status `json:"status"`
	Lines          []ReleaseLine  `json:"lines"`
	IPAddress      string         `json:"ipAddress,omitempty"`
	UserAgent      string         `json:"userAgent,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// RecordStore loads and saves blanket orders and creates child orders.
type RecordStore interface {
	// LoadOrder returns the order with its active lines, or ErrOrderNotFound.
	LoadOrder(ctx context.Context, id string) (*release.BlanketOrder, error)

	// SaveOrder writes line quantities and order status. It fails with
	// *release.StaleLineError when a line no longer exists or is inactive.
	SaveOrder(ctx context.Context, order *release.BlanketOrder) error

	// CreateChildOrder creates a sales order and returns its ID.
	CreateChildOrder(ctx context.Context, header ChildOrderHeader, lines []ChildOrderLine) (string, error)
}

// ReleaseLog records completed releases.
type ReleaseLog interface {
	RecordRelease(ctx context.Context, entry ReleaseEntry) (ReleaseEntry, error)
	ListReleases(ctx context.Context, orderID string, limit int) ([]ReleaseEntry, error)
}

// Store is everything the release service needs from persistence.
type Store interface {
	RecordStore
	ReleaseLog
}

// Transactor is implemented by stores that can run several calls atomically.
// fn receives a Store bound to the transaction; returning an error rolls back.
type Transactor interface {
	InTx(ctx context.Context, fn func(Store) error) error
}
