// Package phase implements the phase state machine: it decides when to open,
// close and roll trades over, one control-loop tick at a time.
package phase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"phase-trade-bot-go/internal/market"
	"phase-trade-bot-go/internal/metrics"
	"phase-trade-bot-go/internal/notify"
	"phase-trade-bot-go/internal/signal"
	"phase-trade-bot-go/internal/venue"

	"go.uber.org/zap"
)

// Stop-loss and take-profit distances in ATRs.
const (
	TakeProfitATR = 3.0
	StopLossATR   = 1.5
)

// Gateway is the subset of the venue the controller trades through.
type Gateway interface {
	FetchSnapshot(ctx context.Context, barCount int) (*market.Snapshot, error)
	FetchTick(ctx context.Context) (market.Tick, error)
	FetchOpenPositions(ctx context.Context) ([]venue.Position, error)
	SubmitOrder(ctx context.Context, req venue.OrderRequest) (venue.TradeHandle, error)
	ClosePosition(ctx context.Context, handle venue.TradeHandle) error
}

// Journal records the trade lifecycle. Journal errors are logged and never
// affect trading.
type Journal interface {
	TradeOpened(ctx context.Context, phase int, handle venue.TradeHandle, req venue.OrderRequest) error
	TradeClosed(ctx context.Context, handle venue.TradeHandle, reason string) error
	PhaseCompleted(ctx context.Context, phase int, profit float64, trades int) error
}

// Controller owns the session. Tick is meant to be driven by a single loop
// goroutine; the command methods and Status may be called from anywhere.
type Controller struct {
	gateway  Gateway
	notifier notify.Notifier
	journal  Journal
	logger   *zap.Logger
	settings Settings
	now      func() time.Time

	// tickMu serializes ticks; mu guards the fields below it.
	tickMu  sync.Mutex
	mu      sync.Mutex
	state   State
	cfg     Config
	session Session
}

// NewController creates an unconfigured controller. journal may be nil.
func NewController(gateway Gateway, notifier notify.Notifier, journal Journal, settings Settings, logger *zap.Logger) *Controller {
	return &Controller{
		gateway:  gateway,
		notifier: notifier,
		journal:  journal,
		logger:   logger.Named("phase"),
		settings: settings,
		now:      time.Now,
		state:    Unconfigured,
	}
}

// Configure sets the run targets. An invalid cfg leaves the controller
// untouched. Configuring after a run has stopped prepares a fresh run.
func (c *Controller) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Running {
		return ErrAlreadyRunning
	}
	c.cfg = cfg
	c.state = Configured
	c.session = Session{}
	c.logger.Info("Configured",
		zap.Int("max_trades", cfg.MaxTradesPerPhase),
		zap.Float64("profit_target", cfg.ProfitTargetPerPhase),
		zap.Int("max_phases", cfg.MaxPhases),
	)
	return nil
}

// Start moves a configured controller to Running and opens phase 1.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Running:
		return ErrAlreadyRunning
	case Configured:
	default:
		return ErrNotConfigured
	}

	c.session = Session{
		Symbol:              c.settings.Symbol,
		BaseLot:             c.settings.BaseLot,
		StrongLot:           c.settings.StrongLot,
		StrongMoveThreshold: c.settings.StrongMoveThreshold,
		CurrentPhase:        1,
		CurrentTrend:        signal.None,
		Running:             true,
		StartedAt:           c.now(),
	}
	c.state = Running
	metrics.Phase.Set(1)
	metrics.PhaseProfit.Set(0)
	c.logger.Info("Trading started", zap.String("symbol", c.settings.Symbol))
	return nil
}

// Stop ends the run. It reports whether this call did the transition, so
// calling it again is harmless.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return false
	}
	c.state = Stopped
	c.session.Running = false
	c.logger.Info("Trading stopped", zap.Int("phase", c.session.CurrentPhase))
	return true
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Running reports whether the controller is trading.
func (c *Controller) Running() bool {
	return c.State() == Running
}

// Status returns a copy of the controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	s.ActiveTrades = append([]venue.TradeHandle(nil), c.session.ActiveTrades...)
	return Status{State: c.state, Config: c.cfg, Session: s}
}

// Tick runs one decision cycle. Errors are already reported to the notifier
// when Tick returns them; the caller only needs to log.
func (c *Controller) Tick(ctx context.Context) (Outcome, error) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	if !c.Running() {
		return Idle, ErrNotRunning
	}
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	positions, err := c.gateway.FetchOpenPositions(ctx)
	if err != nil {
		return c.skip(ctx, "fetch open positions", err)
	}
	var profit float64
	for _, p := range positions {
		profit += p.Profit
	}
	c.mu.Lock()
	c.session.PhaseProfit = profit
	c.mu.Unlock()
	metrics.PhaseProfit.Set(profit)

	if profit >= cfg.ProfitTargetPerPhase {
		return c.completePhase(ctx, cfg, profit, positions)
	}

	snap, err := c.gateway.FetchSnapshot(ctx, c.settings.BarCount)
	if err != nil {
		return c.skip(ctx, "fetch market snapshot", err)
	}
	trend, strength := signal.Classify(snap, c.settings.StrongMoveThreshold)

	c.mu.Lock()
	current := c.session.CurrentTrend
	c.mu.Unlock()

	if trend != signal.None && trend != current {
		c.logger.Info("Trend changed", zap.String("from", string(current)), zap.String("to", string(trend)))
		c.closeAll(ctx, c.activeTrades(), "trend reversal")
		c.mu.Lock()
		c.session.ActiveTrades = nil
		c.session.CurrentTrend = trend
		c.mu.Unlock()
		c.notifier.Send(ctx, fmt.Sprintf("Trend changed: %s -> %s", current, trend))
	}

	dir, ok := trend.Direction()
	if !ok {
		return Idle, nil
	}
	if len(c.activeTrades()) >= cfg.MaxTradesPerPhase {
		c.logger.Debug("Phase is at its trade limit", zap.Int("max_trades", cfg.MaxTradesPerPhase))
		return Idle, nil
	}
	// A stop may have arrived while this tick was waiting on the venue.
	if !c.Running() {
		return Idle, nil
	}
	return c.enter(ctx, cfg, dir, strength, snap.Indicators.ATR)
}

func (c *Controller) enter(ctx context.Context, cfg Config, dir market.Direction, strength signal.Strength, atr float64) (Outcome, error) {
	tick, err := c.gateway.FetchTick(ctx)
	if err != nil {
		return c.skip(ctx, "fetch tick", err)
	}

	price := tick.Price(dir)
	lot := c.settings.BaseLot
	if strength == signal.Extreme {
		lot = c.settings.StrongLot
	}

	c.mu.Lock()
	phase := c.session.CurrentPhase
	c.mu.Unlock()

	req := venue.OrderRequest{
		Direction:  dir,
		Volume:     lot,
		Price:      price,
		StopLoss:   price - StopLossATR*atr,
		TakeProfit: price + TakeProfitATR*atr,
		Tag:        fmt.Sprintf("phase%d", phase),
	}
	if dir == market.Sell {
		req.StopLoss = price + StopLossATR*atr
		req.TakeProfit = price - TakeProfitATR*atr
	}

	handle, err := c.gateway.SubmitOrder(ctx, req)
	if err != nil {
		metrics.Orders.WithLabelValues(string(dir), "error").Inc()
		return c.skip(ctx, fmt.Sprintf("%s order", dir), err)
	}
	metrics.Orders.WithLabelValues(string(dir), "ok").Inc()

	c.mu.Lock()
	c.session.ActiveTrades = append(c.session.ActiveTrades, handle)
	count := len(c.session.ActiveTrades)
	c.mu.Unlock()

	if c.journal != nil {
		if err := c.journal.TradeOpened(ctx, phase, handle, req); err != nil {
			c.logger.Warn("Failed to journal trade", zap.Error(err))
		}
	}

	c.notifier.Send(ctx, fmt.Sprintf("Opened %s %.2f %s @ %.2f (SL %.2f, TP %.2f) | phase %d, trade %d/%d, %s move",
		dir, lot, c.settings.Symbol, price, req.StopLoss, req.TakeProfit, phase, count, cfg.MaxTradesPerPhase, strength))
	return Traded, nil
}

// completePhase closes the phase's trades and every position that counted
// toward its profit, then rolls over or finishes the run. The phase only
// rolls over once all of its positions are closed.
func (c *Controller) completePhase(ctx context.Context, cfg Config, profit float64, positions []venue.Position) (Outcome, error) {
	handles := c.activeTrades()
	seen := make(map[venue.TradeHandle]bool, len(handles))
	for _, h := range handles {
		seen[h] = true
	}
	for _, p := range positions {
		if !seen[p.Ticket] {
			handles = append(handles, p.Ticket)
			seen[p.Ticket] = true
		}
	}
	if err := c.closeAll(ctx, handles, "phase target reached"); err != nil {
		var survivors []venue.TradeHandle
		for _, h := range handles {
			if err.open[h] {
				survivors = append(survivors, h)
			}
		}
		c.mu.Lock()
		c.session.ActiveTrades = survivors
		phase := c.session.CurrentPhase
		c.mu.Unlock()
		c.logger.Warn("Phase target reached but positions remain open", zap.Int("phase", phase), zap.Int("open", len(survivors)))
		return Skipped, err
	}

	c.mu.Lock()
	// A stop may have arrived while the positions were closing.
	if c.state != Running {
		c.session.ActiveTrades = nil
		c.mu.Unlock()
		return Idle, nil
	}
	phase := c.session.CurrentPhase
	c.session.ActiveTrades = nil
	finished := phase >= cfg.MaxPhases
	if finished {
		c.state = Stopped
		c.session.Running = false
	} else {
		c.session.CurrentPhase++
		c.session.PhaseProfit = 0
		c.session.CurrentTrend = signal.None
	}
	next := c.session.CurrentPhase
	c.mu.Unlock()

	metrics.Phase.Set(float64(next))
	metrics.PhaseProfit.Set(0)
	if c.journal != nil {
		if err := c.journal.PhaseCompleted(ctx, phase, profit, len(handles)); err != nil {
			c.logger.Warn("Failed to journal phase", zap.Error(err))
		}
	}

	c.logger.Info("Phase complete", zap.Int("phase", phase), zap.Float64("profit", profit), zap.Bool("finished", finished))
	if finished {
		c.notifier.Send(ctx, fmt.Sprintf("Phase %d complete with profit %.2f. All %d phases done, trading stopped.", phase, profit, cfg.MaxPhases))
		return Finished, nil
	}
	c.notifier.Send(ctx, fmt.Sprintf("Phase %d complete with profit %.2f. Starting phase %d.", phase, profit, next))
	return PhaseCompleted, nil
}

// closeFailure lists the positions a closeAll call could not close.
type closeFailure struct {
	open  map[venue.TradeHandle]bool
	total int
	err   error
}

func (e *closeFailure) Error() string {
	return fmt.Sprintf("failed to close %d of %d positions: %v", len(e.open), e.total, e.err)
}

func (e *closeFailure) Unwrap() error { return e.err }

// closeAll attempts every handle; one failure does not stop the rest. It
// returns nil only when every handle closed.
func (c *Controller) closeAll(ctx context.Context, handles []venue.TradeHandle, reason string) *closeFailure {
	var failed []error
	open := make(map[venue.TradeHandle]bool)
	for _, h := range handles {
		if err := c.gateway.ClosePosition(ctx, h); err != nil {
			metrics.Closes.WithLabelValues("error").Inc()
			c.logger.Error("Failed to close position", zap.Uint64("ticket", uint64(h)), zap.Error(err))
			failed = append(failed, err)
			open[h] = true
			continue
		}
		metrics.Closes.WithLabelValues("ok").Inc()
		if c.journal != nil {
			if err := c.journal.TradeClosed(ctx, h, reason); err != nil {
				c.logger.Warn("Failed to journal close", zap.Error(err))
			}
		}
	}
	if len(handles) > 0 {
		c.logger.Info("Closed positions", zap.String("reason", reason), zap.Int("requested", len(handles)), zap.Int("failed", len(failed)))
	}
	if len(failed) == 0 {
		return nil
	}
	c.notifier.Send(ctx, fmt.Sprintf("Failed to close %d of %d positions (%s): %v", len(failed), len(handles), reason, errors.Join(failed...)))
	return &closeFailure{open: open, total: len(handles), err: errors.Join(failed...)}
}

func (c *Controller) activeTrades() []venue.TradeHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]venue.TradeHandle(nil), c.session.ActiveTrades...)
}

func (c *Controller) skip(ctx context.Context, what string, err error) (Outcome, error) {
	err = fmt.Errorf("%s: %w", what, err)
	c.logger.Warn("Tick skipped", zap.Error(err))
	c.notifier.Send(ctx, fmt.Sprintf("Error: %v", err))
	return Skipped, err
}
