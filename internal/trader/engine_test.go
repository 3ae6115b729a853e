package trader

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"phase-trade-bot-go/internal/config"
	"phase-trade-bot-go/internal/market"
	"phase-trade-bot-go/internal/phase"
	"phase-trade-bot-go/internal/venue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockVenue stands in for venue.Gateway on both the trading and the
// session side.
type MockVenue struct {
	mock.Mock
}

func (m *MockVenue) Connect(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *MockVenue) Disconnect(ctx context.Context) {
	m.Called()
}

func (m *MockVenue) Connected() bool {
	return m.Called().Bool(0)
}

func (m *MockVenue) FetchEquity(ctx context.Context) (float64, error) {
	args := m.Called()
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockVenue) FetchSnapshot(ctx context.Context, barCount int) (*market.Snapshot, error) {
	args := m.Called(barCount)
	snap, _ := args.Get(0).(*market.Snapshot)
	return snap, args.Error(1)
}

func (m *MockVenue) FetchTick(ctx context.Context) (market.Tick, error) {
	args := m.Called()
	return args.Get(0).(market.Tick), args.Error(1)
}

func (m *MockVenue) FetchOpenPositions(ctx context.Context) ([]venue.Position, error) {
	args := m.Called()
	positions, _ := args.Get(0).([]venue.Position)
	return positions, args.Error(1)
}

func (m *MockVenue) SubmitOrder(ctx context.Context, req venue.OrderRequest) (venue.TradeHandle, error) {
	args := m.Called(req)
	return args.Get(0).(venue.TradeHandle), args.Error(1)
}

func (m *MockVenue) ClosePosition(ctx context.Context, handle venue.TradeHandle) error {
	return m.Called(handle).Error(0)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingNotifier) Send(ctx context.Context, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, text)
}

func (r *recordingNotifier) count(sub string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if strings.Contains(m, sub) {
			n++
		}
	}
	return n
}

func flatSnapshot() *market.Snapshot {
	return &market.Snapshot{
		Bars:       []market.Bar{{Close: 1990}},
		Indicators: market.Indicators{EMA: 1990, RSI: 50, ATR: 2},
	}
}

func newTestEngine(v *MockVenue, poll, cooldown time.Duration) (*Engine, *recordingNotifier) {
	n := &recordingNotifier{}
	ctrl := phase.NewController(v, n, nil, phase.Settings{
		Symbol: "XAUUSD", BaseLot: 0.01, StrongLot: 0.02, StrongMoveThreshold: 1.8, BarCount: 100,
	}, zap.NewNop())
	cfg := &config.Trading{PollInterval: poll, PhaseCooldown: cooldown}
	return NewEngine(zap.NewNop(), cfg, ctrl, v, n), n
}

func TestEngine_StartRequiresConfiguration(t *testing.T) {
	v := new(MockVenue)
	e, _ := newTestEngine(v, time.Millisecond, time.Millisecond)

	err := e.Start(context.Background())

	assert.ErrorIs(t, err, phase.ErrNotConfigured)
	v.AssertNotCalled(t, "Connect")
	assert.NotEmpty(t, e.UUID)
}

func TestEngine_ConnectFailureAbortsStart(t *testing.T) {
	v := new(MockVenue)
	v.On("Connect").Return(&venue.ConnectError{Reason: "login failed", Err: errors.New("invalid account")})
	e, n := newTestEngine(v, time.Millisecond, time.Millisecond)
	require.NoError(t, e.Configure(phase.Config{MaxTradesPerPhase: 1, ProfitTargetPerPhase: 10, MaxPhases: 1}))

	err := e.Start(context.Background())

	var ce *venue.ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, phase.Configured, e.controller.State())
	assert.Equal(t, 1, n.count("Failed to start"))
	v.AssertNotCalled(t, "FetchOpenPositions")
}

func TestEngine_RunAndStop(t *testing.T) {
	v := new(MockVenue)
	v.On("Connect").Return(nil)
	v.On("Disconnect").Return().Once()
	v.On("FetchOpenPositions").Return([]venue.Position{}, nil)
	var ticks atomic.Int32
	v.On("FetchSnapshot", 100).Return(flatSnapshot(), nil).Run(func(mock.Arguments) { ticks.Add(1) })

	e, n := newTestEngine(v, 5*time.Millisecond, time.Millisecond)
	require.NoError(t, e.Configure(phase.Config{MaxTradesPerPhase: 2, ProfitTargetPerPhase: 50, MaxPhases: 3}))
	require.NoError(t, e.Start(context.Background()))
	assert.ErrorIs(t, e.Start(context.Background()), phase.ErrAlreadyRunning)

	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))
	require.NoError(t, e.Stop(ctx))

	assert.Equal(t, phase.Stopped, e.controller.State())
	assert.Equal(t, 1, n.count("Trading started on XAUUSD"))
	assert.Equal(t, 1, n.count("Trading stopped."))
	v.AssertNumberOfCalls(t, "Disconnect", 1)
}

func TestEngine_CooldownAfterPhaseThenFinish(t *testing.T) {
	v := new(MockVenue)
	v.On("Connect").Return(nil)
	v.On("Disconnect").Return()
	v.On("FetchOpenPositions").Return([]venue.Position{{Ticket: 7, Profit: 20}}, nil)
	v.On("ClosePosition", venue.TradeHandle(7)).Return(nil)

	// The poll interval is far longer than the test; only the short
	// post-phase cooldown lets the second phase complete in time.
	e, n := newTestEngine(v, time.Hour, time.Millisecond)
	require.NoError(t, e.Configure(phase.Config{MaxTradesPerPhase: 2, ProfitTargetPerPhase: 10, MaxPhases: 2}))
	require.NoError(t, e.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("control loop did not finish")
	}

	st := e.controller.Status()
	assert.Equal(t, phase.Stopped, st.State)
	assert.Equal(t, 2, st.Session.CurrentPhase)
	assert.Equal(t, 1, n.count("All 2 phases done"))
	v.AssertNumberOfCalls(t, "ClosePosition", 2)
	v.AssertNumberOfCalls(t, "Disconnect", 1)
	v.AssertNotCalled(t, "SubmitOrder", mock.Anything)
}

func TestEngine_RecoversFromPanic(t *testing.T) {
	v := new(MockVenue)
	v.On("Connect").Return(nil)
	v.On("Disconnect").Return()
	v.On("FetchOpenPositions").Panic("boom")

	e, n := newTestEngine(v, time.Millisecond, time.Millisecond)
	require.NoError(t, e.Configure(phase.Config{MaxTradesPerPhase: 1, ProfitTargetPerPhase: 10, MaxPhases: 1}))
	require.NoError(t, e.Start(context.Background()))
	e.Wait()

	assert.Equal(t, phase.Stopped, e.controller.State())
	assert.Equal(t, 1, n.count("Critical error: boom"))
	v.AssertNumberOfCalls(t, "Disconnect", 1)

	// The engine can be configured and started again afterwards.
	v.ExpectedCalls = nil
	v.On("Connect").Return(nil)
	v.On("Disconnect").Return()
	v.On("FetchOpenPositions").Return([]venue.Position{{Ticket: 1, Profit: 11}}, nil)
	v.On("ClosePosition", venue.TradeHandle(1)).Return(nil)
	require.NoError(t, e.Configure(phase.Config{MaxTradesPerPhase: 1, ProfitTargetPerPhase: 10, MaxPhases: 1}))
	require.NoError(t, e.Start(context.Background()))
	e.Wait()
	assert.Equal(t, 1, n.count("All 1 phases done"))
}

func TestEngine_Report(t *testing.T) {
	t.Run("EquityUnavailableWhenDisconnected", func(t *testing.T) {
		v := new(MockVenue)
		v.On("Connected").Return(false)
		e, _ := newTestEngine(v, time.Millisecond, time.Millisecond)

		r := e.Report(context.Background())
		var ee *venue.EquityError
		assert.ErrorAs(t, r.EquityErr, &ee)
		assert.Equal(t, phase.Unconfigured, r.Status.State)
		v.AssertNotCalled(t, "FetchEquity")
	})

	t.Run("EquityFetched", func(t *testing.T) {
		v := new(MockVenue)
		v.On("Connected").Return(true)
		v.On("FetchEquity").Return(10250.5, nil)
		e, _ := newTestEngine(v, time.Millisecond, time.Millisecond)

		r := e.Report(context.Background())
		require.NoError(t, r.EquityErr)
		assert.Equal(t, 10250.5, r.Equity)
	})
}

func phaseConfig(maxTrades int, target float64, maxPhases int) phase.Config {
	return phase.Config{MaxTradesPerPhase: maxTrades, ProfitTargetPerPhase: target, MaxPhases: maxPhases}
}
