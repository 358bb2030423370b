package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "journal.db")
	db, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(context.Background(), path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestPositionStore_RoundTrip(t *testing.T) {
	store := NewPositionStore(openTestDB(t))
	ctx := context.Background()
	created := time.UnixMilli(1704067200123).UTC()

	p := &domain.Position{ID: 1, RunID: "r", Mint: "M", State: domain.StatePendingBuy, CreatedAt: created}
	require.NoError(t, store.Insert(ctx, p))
	assert.ErrorIs(t, store.Insert(ctx, p), storage.ErrDuplicateKey)

	p.State = domain.StateClosed
	p.ExitReason = domain.ReasonTakeProfit
	p.RealizedPnL = 12.5
	p.ClosedAt = created.Add(time.Minute)
	require.NoError(t, store.Update(ctx, p))

	got, err := store.Get(ctx, "r", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StateClosed, got.State)
	assert.Equal(t, domain.ReasonTakeProfit, got.ExitReason)
	assert.InDelta(t, 12.5, got.RealizedPnL, 1e-12)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.OpenedAt.IsZero())

	_, err = store.Get(ctx, "r", 2)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.Update(ctx, &domain.Position{ID: 2, RunID: "r"}), storage.ErrNotFound)
}

func TestPositionStore_List(t *testing.T) {
	store := NewPositionStore(openTestDB(t))
	ctx := context.Background()
	base := time.UnixMilli(1704067200000)

	for i, st := range []domain.PositionState{domain.StateOpen, domain.StateAbandoned, domain.StatePendingBuy} {
		require.NoError(t, store.Insert(ctx, &domain.Position{
			ID: int64(i + 1), RunID: "r", Mint: "M", State: st, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	open, err := store.List(ctx, storage.PositionFilter{OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, int64(1), open[0].ID)
	assert.Equal(t, int64(3), open[1].ID)

	open, err = store.List(ctx, storage.PositionFilter{RunID: "r", OpenOnly: true, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestTransitionAndSampleStores(t *testing.T) {
	db := openTestDB(t)
	journal := NewJournal(db)
	ctx := context.Background()
	at := time.UnixMilli(1704067200000)

	require.NoError(t, journal.Transitions.Append(ctx, &domain.Transition{
		RunID: "r", PositionID: 1, Mint: "M", From: domain.StateOpen, To: domain.StatePendingSell, Reason: domain.ReasonTimeout, At: at,
	}))
	require.NoError(t, journal.Transitions.Append(ctx, &domain.Transition{
		RunID: "r", PositionID: 1, Mint: "M", From: domain.StatePendingSell, To: domain.StateClosed, Reason: domain.ReasonFilled, PnL: -1, At: at,
	}))

	trs, err := journal.Transitions.List(ctx, storage.TransitionFilter{Mint: "M"})
	require.NoError(t, err)
	require.Len(t, trs, 2)
	assert.Equal(t, domain.StatePendingSell, trs[0].To)
	assert.InDelta(t, -1, trs[1].PnL, 1e-12)

	samples := []*domain.PriceSample{
		{RunID: "r", PositionID: 1, Mint: "M", Price: 2, At: at.Add(time.Second)},
		{RunID: "r", PositionID: 1, Mint: "M", Price: 1, At: at},
	}
	require.NoError(t, journal.Samples.InsertBulk(ctx, samples))
	assert.ErrorIs(t, journal.Samples.InsertBulk(ctx, samples[:1]), storage.ErrDuplicateKey)

	got, err := journal.Samples.GetByPosition(ctx, "r", 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 1, got[0].Price, 1e-12)
}
