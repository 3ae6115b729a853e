package phase

import (
	"errors"
	"fmt"
	"math"
	"time"

	"phase-trade-bot-go/internal/signal"
	"phase-trade-bot-go/internal/venue"
)

// Config is the per-run trading target. It is fixed once trading starts.
type Config struct {
	MaxTradesPerPhase    int     `json:"max_trades"`
	ProfitTargetPerPhase float64 `json:"profit_target"`
	MaxPhases            int     `json:"max_phases"`
}

// ConfigError reports an invalid Config field.
type ConfigError struct {
	Field string
	Value any
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s must be a positive number, got %v", e.Field, e.Value)
}

// Validate returns a *ConfigError for the first non-positive field.
func (c Config) Validate() error {
	switch {
	case c.MaxTradesPerPhase <= 0:
		return &ConfigError{Field: "max trades per phase", Value: c.MaxTradesPerPhase}
	case !(c.ProfitTargetPerPhase > 0) || math.IsInf(c.ProfitTargetPerPhase, 0):
		return &ConfigError{Field: "profit target per phase", Value: c.ProfitTargetPerPhase}
	case c.MaxPhases <= 0:
		return &ConfigError{Field: "max phases", Value: c.MaxPhases}
	}
	return nil
}

var (
	ErrNotConfigured  = errors.New("trading is not configured, run configure first")
	ErrAlreadyRunning = errors.New("trading is already running")
	ErrNotRunning     = errors.New("trading is not running")
)

// Settings are the sizing parameters that come from the application config
// rather than from the configure command.
type Settings struct {
	Symbol              string
	BaseLot             float64
	StrongLot           float64
	StrongMoveThreshold float64
	BarCount            int
}

// State of the controller.
type State int

const (
	Unconfigured State = iota
	Configured
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is the mutable state of one run.
type Session struct {
	Symbol              string
	BaseLot             float64
	StrongLot           float64
	StrongMoveThreshold float64
	CurrentPhase        int
	CurrentTrend        signal.Trend
	PhaseProfit         float64
	ActiveTrades        []venue.TradeHandle
	Running             bool
	StartedAt           time.Time
}

// Status is a point-in-time copy of the controller state.
type Status struct {
	State   State
	Config  Config
	Session Session
}

// Outcome describes what a Tick did.
type Outcome int

const (
	// Idle means the tick held: no signal or the phase is full.
	Idle Outcome = iota
	// Traded means a new position was opened.
	Traded
	// Skipped means an external call failed and the tick was abandoned.
	Skipped
	// PhaseCompleted means the profit target was hit and the next phase began.
	PhaseCompleted
	// Finished means the last phase completed and the controller stopped.
	Finished
)

func (o Outcome) String() string {
	switch o {
	case Idle:
		return "idle"
	case Traded:
		return "traded"
	case Skipped:
		return "skipped"
	case PhaseCompleted:
		return "phase_completed"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}
