//go:build integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/bso/internal/release"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *Postgres {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("bso"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	p := NewPostgres(pool)
	require.NoError(t, p.Migrate(ctx))
	seed(t, pool)
	return p
}

func seed(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		INSERT INTO bso_header (id, number, customer_id, terms_id, delivery_start)
		VALUES ('bso-1', 'BSO-0001', 'cust-9', 'net30', '2024-03-01')`)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		INSERT INTO bso_item (id, bso_id, line_no, item_id, units_measure, quantity, quantity_released, quantity_remaining, price, is_inactive)
		VALUES
			('A', 'bso-1', 1, 'item-a', 'Gallon', 5, 0, NULL, 2.50, false),
			('B', 'bso-1', 2, 'item-b', 'MT', 10, 7, 3, 4, false),
			('C', 'bso-1', 3, 'item-c', 'Pound', 1, 0, NULL, 1, true)`)
	require.NoError(t, err)
}

func TestIntegration_Postgres_LoadOrder(t *testing.T) {
	p := setupPostgres(t)
	ctx := context.Background()

	order, err := p.LoadOrder(ctx, "bso-1")
	require.NoError(t, err)

	assert.Equal(t, "BSO-0001", order.Number)
	assert.Equal(t, "net30", order.Header.TermsID)
	require.NotNil(t, order.Header.DeliveryStart)
	assert.Nil(t, order.Header.DeliveryEnd)

	require.Len(t, order.Lines, 2, "inactive line must be excluded")
	assert.Equal(t, "A", order.Lines[0].ID)
	assert.False(t, order.Lines[0].RemainingQuantity.Valid)
	assert.True(t, order.Lines[0].UnitPrice.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, order.Lines[1].RemainingQuantity.Decimal.Equal(decimal.NewFromInt(3)))

	_, err = p.LoadOrder(ctx, "nope")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestIntegration_Postgres_SaveAndCreateChild(t *testing.T) {
	p := setupPostgres(t)
	ctx := context.Background()

	var childID string
	err := p.InTx(ctx, func(s Store) error {
		order, err := s.LoadOrder(ctx, "bso-1")
		if err != nil {
			return err
		}
		order.Lines[1].ReleasedQuantity = decimal.NewFromInt(10)
		order.Lines[1].RemainingQuantity = decimal.NewNullDecimal(decimal.Zero)
		order.Status = release.StatusPartial
		if err := s.SaveOrder(ctx, order); err != nil {
			return err
		}

		childID, err = s.CreateChildOrder(ctx,
			ChildOrderHeader{BlanketOrderID: "bso-1", Header: order.Header},
			[]ChildOrderLine{{
				ChildLine: release.ChildLine{LineID: "B", Item: release.ItemRef{ID: "item-b"},
					Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(4)},
				UnitCode: "12",
			}},
		)
		return err
	})
	require.NoError(t, err)
	assert.NotEmpty(t, childID)

	order, err := p.LoadOrder(ctx, "bso-1")
	require.NoError(t, err)
	assert.True(t, order.Lines[1].ReleasedQuantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, order.Lines[1].RemainingQuantity.Decimal.IsZero())

	entry, err := p.RecordRelease(ctx, ReleaseEntry{
		BlanketOrderID: "bso-1",
		ChildOrderID:   childID,
		Status:         release.StatusPartial,
		Lines:          []ReleaseLine{{LineID: "B", ItemID: "item-b", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(4)}},
	})
	require.NoError(t, err)

	entries, err := p.ListReleases(ctx, "bso-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.Equal(t, childID, entries[0].ChildOrderID)
	require.Len(t, entries[0].Lines, 1)
	assert.True(t, entries[0].Lines[0].Quantity.Equal(decimal.NewFromInt(3)))
}

func TestIntegration_Postgres_SaveOrder_StaleLineRollsBack(t *testing.T) {
	p := setupPostgres(t)
	ctx := context.Background()

	order, err := p.LoadOrder(ctx, "bso-1")
	require.NoError(t, err)
	order.Lines[0].ReleasedQuantity = decimal.NewFromInt(1)
	order.Lines = append(order.Lines, release.LineItem{ID: "C"})

	err = p.SaveOrder(ctx, order)
	require.Error(t, err)
	assert.True(t, errors.Is(err, release.ErrStaleLine))

	reloaded, err := p.LoadOrder(ctx, "bso-1")
	require.NoError(t, err)
	assert.True(t, reloaded.Lines[0].ReleasedQuantity.IsZero(), "line A update must roll back")
}
