package journal

import (
	"context"
	"testing"
	"time"

	"phase-trade-bot-go/internal/database"
	"phase-trade-bot-go/internal/market"
	"phase-trade-bot-go/internal/venue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := database.NewDatabase("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	return New(db, "XAUUSD", true, zap.NewNop())
}

func TestJournal_TradeLifecycle(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	req := venue.OrderRequest{Direction: market.Buy, Volume: 0.02, Price: 2000, StopLoss: 1997, TakeProfit: 2006, Tag: "phase1"}
	require.NoError(t, j.TradeOpened(ctx, 1, 11, req))
	require.NoError(t, j.TradeOpened(ctx, 1, 12, req))
	require.NoError(t, j.TradeClosed(ctx, 11, "trend reversal"))
	// Unknown tickets are not an error.
	require.NoError(t, j.TradeClosed(ctx, 99, "phase target reached"))

	trades, err := j.Trades(ctx, 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Len(t, trades[0].ID, 26)

	byTicket := map[uint64]int{}
	for i, tr := range trades {
		byTicket[tr.Ticket] = i
	}
	closed := trades[byTicket[11]]
	require.NotNil(t, closed.ClosedAt)
	assert.Equal(t, "trend reversal", closed.CloseReason)
	assert.Equal(t, "BUY", closed.Direction)
	assert.True(t, closed.IsSimulation)
	assert.Nil(t, trades[byTicket[12]].ClosedAt)

	limited, err := j.Trades(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestJournal_Phases(t *testing.T) {
	j := newTestJournal(t)
	j.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	ctx := context.Background()

	require.NoError(t, j.PhaseCompleted(ctx, 2, 61.5, 3))
	require.NoError(t, j.PhaseCompleted(ctx, 1, 55, 2))

	phases, err := j.Phases(ctx)
	require.NoError(t, err)
	require.Len(t, phases, 2)
	assert.Equal(t, 1, phases[0].Number)
	assert.Equal(t, 61.5, phases[1].Profit)
	assert.Equal(t, 3, phases[1].Trades)
	assert.True(t, phases[0].CompletedAt.Equal(j.now()))
}

func TestDatabase_ResetsOnOpen(t *testing.T) {
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := database.NewDatabase(dsn)
	require.NoError(t, err)
	j := New(db, "XAUUSD", false, zap.NewNop())
	require.NoError(t, j.PhaseCompleted(context.Background(), 1, 10, 1))

	// Keep the first handle open so the shared in-memory database survives.
	db2, err := database.NewDatabase(dsn)
	require.NoError(t, err)
	phases, err := New(db2, "XAUUSD", false, zap.NewNop()).Phases(context.Background())
	require.NoError(t, err)
	assert.Empty(t, phases)
}
