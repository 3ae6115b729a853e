package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"phase-trade-bot-go/internal/command"
	"phase-trade-bot-go/internal/config"
	"phase-trade-bot-go/internal/metrics"
	"phase-trade-bot-go/internal/notify"
	"phase-trade-bot-go/internal/phase"
	"phase-trade-bot-go/internal/venue"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VenueSession is the connection side of the venue gateway.
type VenueSession interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context)
	Connected() bool
	FetchEquity(ctx context.Context) (float64, error)
}

// Engine is the control loop. It connects the venue on start, drives the
// phase controller one tick at a time and disconnects when the run ends.
type Engine struct {
	UUID string

	logger        *zap.Logger
	controller    *phase.Controller
	session       VenueSession
	notifier      notify.Notifier
	pollInterval  time.Duration
	phaseCooldown time.Duration

	// startMu serializes Start; mu guards the loop handles.
	startMu sync.Mutex
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ command.Intake = (*Engine)(nil)

// NewEngine creates a new trading engine.
func NewEngine(logger *zap.Logger, cfg *config.Trading, controller *phase.Controller, session VenueSession, notifier notify.Notifier) *Engine {
	return &Engine{
		UUID:          uuid.NewString(),
		logger:        logger.Named("engine"),
		controller:    controller,
		session:       session,
		notifier:      notifier,
		pollInterval:  cfg.PollInterval,
		phaseCooldown: cfg.PhaseCooldown,
	}
}

// Configure sets the phase targets for the next run.
func (e *Engine) Configure(cfg phase.Config) error {
	return e.controller.Configure(cfg)
}

// Start connects to the venue and launches the control loop. A connect
// failure aborts the start and is reported.
func (e *Engine) Start(ctx context.Context) error {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	if e.looping() {
		return phase.ErrAlreadyRunning
	}
	switch e.controller.State() {
	case phase.Configured:
	case phase.Running:
		return phase.ErrAlreadyRunning
	default:
		return phase.ErrNotConfigured
	}

	e.logger.Info("Connecting to venue...")
	if err := e.session.Connect(ctx); err != nil {
		e.logger.Error("Failed to connect to venue", zap.Error(err))
		e.notifier.Send(ctx, fmt.Sprintf("Failed to start: %v", err))
		return err
	}
	if err := e.controller.Start(); err != nil {
		e.session.Disconnect(ctx)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	e.mu.Lock()
	e.cancel, e.done = cancel, done
	e.mu.Unlock()

	st := e.controller.Status()
	e.logger.Info("Starting control loop",
		zap.Duration("poll_interval", e.pollInterval),
		zap.Duration("phase_cooldown", e.phaseCooldown),
	)
	e.notifier.Send(ctx, fmt.Sprintf("Trading started on %s: %d trades/phase, %.2f profit/phase, %d phases.",
		st.Session.Symbol, st.Config.MaxTradesPerPhase, st.Config.ProfitTargetPerPhase, st.Config.MaxPhases))

	go e.run(loopCtx, done)
	return nil
}

// Stop ends the run and waits for the loop to exit or ctx to expire.
// Requests already sent to the venue are allowed to finish. Stopping an
// idle engine is a no-op.
func (e *Engine) Stop(ctx context.Context) error {
	stopped := e.controller.Stop()

	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("waiting for the trading loop: %w", ctx.Err())
		}
	}
	if stopped {
		e.notifier.Send(ctx, "Trading stopped.")
	}
	return nil
}

// Wait blocks until the current loop, if any, has exited.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Report builds the status report. Equity is fetched live and left
// unavailable when the venue is not connected or does not answer.
func (e *Engine) Report(ctx context.Context) command.Report {
	st := e.controller.Status()
	r := command.Report{Status: st}
	if st.State == phase.Running {
		r.Uptime = time.Since(st.Session.StartedAt)
	}

	if !e.session.Connected() {
		r.EquityErr = &venue.EquityError{Err: errors.New("venue not connected")}
		return r
	}
	r.Equity, r.EquityErr = e.session.FetchEquity(ctx)
	return r
}

func (e *Engine) looping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// run is the single writer of session state while trading.
func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer e.session.Disconnect(context.WithoutCancel(ctx))
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Trading loop panicked", zap.Any("panic", r), zap.Stack("stack"))
			e.controller.Stop()
			e.notifier.Send(ctx, fmt.Sprintf("Critical error: %v. Trading stopped.", r))
		}
	}()

	for {
		if ctx.Err() != nil || !e.controller.Running() {
			return
		}

		outcome, err := e.controller.Tick(ctx)
		metrics.Ticks.WithLabelValues(outcome.String()).Inc()
		if err != nil {
			e.logger.Warn("Tick failed", zap.String("outcome", outcome.String()), zap.Error(err))
		}
		if outcome == phase.Finished {
			e.logger.Info("All phases complete, leaving control loop")
			return
		}

		interval := e.pollInterval
		if outcome == phase.PhaseCompleted {
			interval = e.phaseCooldown
		}
		if ctx.Err() != nil || !e.controller.Running() {
			return
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
