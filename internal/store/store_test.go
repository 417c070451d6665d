package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/betbot/aquoter/internal/analytics"
	"github.com/betbot/aquoter/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertPositionThenRestore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now()
	pos := domain.NewTrackedPosition("asset-1")
	pos.ConfirmedSize = domain.NewSize(decimal.NewFromInt(10))
	pos.AvgPrice = domain.NewPrice(decimal.NewFromFloat(0.55))

	require.NoError(t, s.UpsertPosition(ctx, *pos, now))

	restored, err := s.RestorePositions(ctx)
	require.NoError(t, err)
	require.True(t, restored["asset-1"].Equal(domain.NewSize(decimal.NewFromInt(10))))

	// Upsert again with an updated size to exercise the ON CONFLICT path.
	pos.ConfirmedSize = domain.NewSize(decimal.NewFromInt(15))
	require.NoError(t, s.UpsertPosition(ctx, *pos, now))

	restored, err = s.RestorePositions(ctx)
	require.NoError(t, err)
	require.True(t, restored["asset-1"].Equal(domain.NewSize(decimal.NewFromInt(15))))
}

func TestInsertFillIsIdempotentOnDuplicateKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := domain.Fill{
		TradeID:   "trade-1",
		AssetID:   "asset-1",
		Side:      domain.SideBuy,
		Price:     domain.NewPrice(decimal.NewFromFloat(0.5)),
		Size:      domain.NewSize(decimal.NewFromInt(10)),
		Fee:       domain.NewPrice(decimal.NewFromFloat(0.01)),
		Timestamp: time.Now(),
	}
	mid := domain.NewPrice(decimal.NewFromFloat(0.51))

	require.NoError(t, s.InsertFill(ctx, f, mid))
	require.NoError(t, s.InsertFill(ctx, f, mid)) // duplicate insert must not error

	summary, err := s.MarkoutSummaryByAsset(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	require.Equal(t, 1, summary[0].FillCount)
}

func TestInsertMarkoutsAndSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := domain.Fill{
		TradeID:   "trade-2",
		AssetID:   "asset-2",
		Side:      domain.SideSell,
		Price:     domain.NewPrice(decimal.NewFromFloat(0.6)),
		Size:      domain.NewSize(decimal.NewFromInt(5)),
		Fee:       domain.NewPrice(decimal.NewFromFloat(0.005)),
		Timestamp: time.Now(),
	}
	require.NoError(t, s.InsertFill(ctx, f, domain.NewPrice(decimal.NewFromFloat(0.6))))

	now := time.Now()
	err := s.InsertMarkouts(ctx, []analytics.Markout{
		{FillKey: f.Key(), AssetID: "asset-2", HorizonS: 1, Mid: domain.NewPrice(decimal.NewFromFloat(0.61)), MarkoutBps: decimal.NewFromInt(10), CapturedAt: now},
		{FillKey: f.Key(), AssetID: "asset-2", HorizonS: 5, Mid: domain.NewPrice(decimal.NewFromFloat(0.62)), MarkoutBps: decimal.NewFromInt(-20), CapturedAt: now},
	})
	require.NoError(t, err)

	summary, err := s.MarkoutSummaryByAsset(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	require.Equal(t, "asset-2", summary[0].AssetID)
	require.InDelta(t, -20, summary[0].MeanMarkout5s, 0.001)
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	type snap struct {
		Assets []string `json:"assets"`
	}
	require.NoError(t, s.StartSession(ctx, "sess-1", snap{Assets: []string{"a1"}}, time.Now()))
	require.NoError(t, s.EndSession(ctx, "sess-1", "stopped", time.Now()))
}

func TestAppendEvent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendEvent(ctx, "asset-1", "sequence_gap", map[string]int{"expected": 5, "got": 9}))
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	_, err = s2.RestorePositions(context.Background())
	require.NoError(t, err)
}
