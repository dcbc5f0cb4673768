package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/bso/internal/release"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres is the PostgreSQL-backed Store.
type Postgres struct {
	db DBTX
}

// NewPostgres wraps a pool or connection.
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// InTx runs fn inside a transaction. Nested calls use savepoints.
func (p *Postgres) InTx(ctx context.Context, fn func(Store) error) error {
	return pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		return fn(&Postgres{db: tx})
	})
}

const selectHeader = `
SELECT id, number, status, customer_id, customer_name, sales_rep_id,
       account_manager_id, terms_id, ship_condition_id, incoterm_id,
       incoterm_description, payment_basis, pallets_required_id,
       packaging_type_id, delivery_notes, customer_po, memo,
       delivery_start, delivery_end
FROM bso_header
WHERE id = $1`

const selectLines = `
SELECT id, item_id, item_name, units_measure, quantity, quantity_released,
       quantity_remaining, price
FROM bso_item
WHERE bso_id = $1 AND NOT is_inactive
ORDER BY line_no, id`

// LoadOrder reads the header and active lines of a blanket order.
func (p *Postgres) LoadOrder(ctx context.Context, id string) (*release.BlanketOrder, error) {
	var (
		order      release.BlanketOrder
		status     int16
		start, end pgtype.Date
	)
	h := &order.Header
	err := p.db.QueryRow(ctx, selectHeader, id).Scan(
		&order.ID, &order.Number, &status, &h.CustomerID, &h.CustomerName, &h.SalesRepID,
		&h.AccountManagerID, &h.TermsID, &h.ShipConditionID, &h.IncotermID,
		&h.IncotermDescription, &h.PaymentBasis, &h.PalletsRequiredID,
		&h.PackagingTypeID, &h.DeliveryNotes, &h.CustomerPO, &h.Memo,
		&start, &end,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	order.Status = release.Status(status)
	h.DeliveryStart = fromPgDate(start)
	h.DeliveryEnd = fromPgDate(end)

	rows, err := p.db.Query(ctx, selectLines, id)
	if err != nil {
		return nil, fmt.Errorf("load lines for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var l release.LineItem
		if err := rows.Scan(
			&l.ID, &l.Item.ID, &l.Item.Name, &l.UnitOfMeasure, &l.OrderedQuantity,
			&l.ReleasedQuantity, &l.RemainingQuantity, &l.UnitPrice,
		); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		order.Lines = append(order.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load lines for %s: %w", id, err)
	}

	return &order, nil
}

// SaveOrder writes every line's released and remaining quantities and the
// order status in one transaction.
func (p *Postgres) SaveOrder(ctx context.Context, order *release.BlanketOrder) error {
	return pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		for _, l := range order.Lines {
			tag, err := tx.Exec(ctx, `
				UPDATE bso_item
				SET quantity_released = $3, quantity_remaining = $4
				WHERE id = $1 AND bso_id = $2 AND NOT is_inactive`,
				l.ID, order.ID, l.ReleasedQuantity, l.RemainingQuantity,
			)
			if err != nil {
				return fmt.Errorf("update line %s: %w", l.ID, err)
			}
			if tag.RowsAffected() == 0 {
				return &release.StaleLineError{OrderID: order.ID, LineID: l.ID}
			}
		}

		tag, err := tx.Exec(ctx,
			`UPDATE bso_header SET status = $2, updated_at = now() WHERE id = $1`,
			order.ID, int16(order.Status),
		)
		if err != nil {
			return fmt.Errorf("update order %s: %w", order.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrOrderNotFound
		}
		return nil
	})
}

// CreateChildOrder inserts a sales order and its lines.
func (p *Postgres) CreateChildOrder(ctx context.Context, header ChildOrderHeader, lines []ChildOrderLine) (string, error) {
	hdr, err := json.Marshal(header.Header)
	if err != nil {
		return "", fmt.Errorf("encode header: %w", err)
	}
	id := uuid.New()

	err = pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO sales_order (id, bso_id, customer_id, header) VALUES ($1, $2, $3, $4)`,
			id, header.BlanketOrderID, header.CustomerID, hdr,
		); err != nil {
			return fmt.Errorf("insert sales order: %w", err)
		}

		batch := &pgx.Batch{}
		for i, l := range lines {
			batch.Queue(`
				INSERT INTO sales_order_line (sales_order_id, line_no, bso_item_id, item_id, units, quantity, rate)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				id, i+1, l.LineID, l.Item.ID, l.UnitCode, l.Quantity, l.UnitPrice,
			)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert sales order lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// RecordRelease appends an entry to the release log. ID and CreatedAt are
// assigned when empty.
func (p *Postgres) RecordRelease(ctx context.Context, entry ReleaseEntry) (ReleaseEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	lines, err := json.Marshal(entry.Lines)
	if err != nil {
		return entry, fmt.Errorf("encode release lines: %w", err)
	}

	_, err = p.db.Exec(ctx, `
		INSERT INTO release_log (id, bso_id, sales_order_id, status, lines, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.BlanketOrderID, entry.ChildOrderID, int16(entry.Status), lines,
		entry.IPAddress, entry.UserAgent, entry.CreatedAt,
	)
	if err != nil {
		return entry, fmt.Errorf("insert release log: %w", err)
	}
	return entry, nil
}

// ListReleases returns the newest releases of an order first.
func (p *Postgres) ListReleases(ctx context.Context, orderID string, limit int) ([]ReleaseEntry, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id::text, bso_id, sales_order_id::text, status, lines, ip_address, user_agent, created_at
		FROM release_log
		WHERE bso_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		orderID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	defer rows.Close()

	var entries []ReleaseEntry
	for rows.Next() {
		var (
			e      ReleaseEntry
			status int16
			lines  []byte
		)
		if err := rows.Scan(&e.ID, &e.BlanketOrderID, &e.ChildOrderID, &status, &lines,
			&e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan release: %w", err)
		}
		e.Status = release.Status(status)
		if err := json.Unmarshal(lines, &e.Lines); err != nil {
			return nil, fmt.Errorf("decode release lines: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func fromPgDate(d pgtype.Date) *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}
