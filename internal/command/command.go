// Package command parses operator commands ("!configure 5 50 3", "!start",
// ...) and routes them to the trading engine.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"phase-trade-bot-go/internal/phase"

	"go.uber.org/zap"
)

// Prefix starts every command.
const Prefix = "!"

// Intake is the command surface of the trading engine.
type Intake interface {
	Configure(cfg phase.Config) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Report(ctx context.Context) Report
}

// Report is what the status command prints.
type Report struct {
	Status phase.Status
	// Equity is only meaningful when EquityErr is nil.
	Equity    float64
	EquityErr error
	Uptime    time.Duration
}

func (r Report) String() string {
	var b strings.Builder
	st := r.Status
	fmt.Fprintf(&b, "State: %s\n", st.State)

	if st.State == phase.Unconfigured {
		b.WriteString("Run !configure <max_trades> <profit_target> <max_phases> to begin.")
		return b.String()
	}

	fmt.Fprintf(&b, "Targets: %d trades/phase, %.2f profit/phase, %d phases\n",
		st.Config.MaxTradesPerPhase, st.Config.ProfitTargetPerPhase, st.Config.MaxPhases)
	if st.Session.CurrentPhase > 0 {
		fmt.Fprintf(&b, "Symbol: %s\n", st.Session.Symbol)
		fmt.Fprintf(&b, "Phase: %d/%d\n", st.Session.CurrentPhase, st.Config.MaxPhases)
		fmt.Fprintf(&b, "Trend: %s\n", st.Session.CurrentTrend)
		fmt.Fprintf(&b, "Phase profit: %.2f\n", st.Session.PhaseProfit)
		fmt.Fprintf(&b, "Active trades: %d/%d\n", len(st.Session.ActiveTrades), st.Config.MaxTradesPerPhase)
	}
	if r.EquityErr != nil {
		b.WriteString("Equity: unavailable\n")
	} else {
		fmt.Fprintf(&b, "Equity: %.2f\n", r.Equity)
	}
	if st.State == phase.Running {
		fmt.Fprintf(&b, "Uptime: %s", r.Uptime.Truncate(time.Second))
	}
	return strings.TrimRight(b.String(), "\n")
}

// UsageError is a malformed command. Its message is meant for the operator.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

const help = `Commands:
!configure <max_trades> <profit_target> <max_phases>  set the phase targets
!start   connect and start trading
!stop    stop trading
!status  show the current state
!help    show this message
!hi      say hello`

// Router executes command lines against an Intake.
type Router struct {
	intake Intake
	logger *zap.Logger
}

// NewRouter creates a router.
func NewRouter(intake Intake, logger *zap.Logger) *Router {
	return &Router{intake: intake, logger: logger.Named("command")}
}

// Handle runs line and returns the reply text. Errors are turned into
// replies too, so the result is always something to show the operator.
func (r *Router) Handle(ctx context.Context, line string) string {
	reply, err := r.Execute(ctx, line)
	if err != nil {
		var ue *UsageError
		var ce *phase.ConfigError
		if !errors.As(err, &ue) && !errors.As(err, &ce) {
			r.logger.Warn("Command failed", zap.String("command", line), zap.Error(err))
		}
		return "Error: " + err.Error()
	}
	return reply
}

// Execute runs line and returns its reply or the error.
func (r *Router) Execute(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], Prefix) {
		return "", &UsageError{Msg: "commands start with " + Prefix + ", try !help"}
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], Prefix))
	args := fields[1:]

	switch name {
	case "configure":
		cfg, err := ParseConfig(args)
		if err != nil {
			return "", err
		}
		if err := r.intake.Configure(cfg); err != nil {
			return "", err
		}
		return fmt.Sprintf("Configured: %d trades/phase, %.2f profit/phase, %d phases. Use !start to begin.",
			cfg.MaxTradesPerPhase, cfg.ProfitTargetPerPhase, cfg.MaxPhases), nil
	case "start":
		if err := r.intake.Start(ctx); err != nil {
			return "", err
		}
		return "Trading started.", nil
	case "stop":
		if err := r.intake.Stop(ctx); err != nil {
			return "", err
		}
		return "Trading stopped.", nil
	case "status":
		return r.intake.Report(ctx).String(), nil
	case "help":
		return help, nil
	case "hi":
		return "Yo, trading bot here for you!", nil
	default:
		return "", &UsageError{Msg: fmt.Sprintf("unknown command %q, try !help", Prefix+name)}
	}
}

// ParseConfig parses "<max_trades> <profit_target> <max_phases>".
func ParseConfig(args []string) (phase.Config, error) {
	if len(args) != 3 {
		return phase.Config{}, &UsageError{Msg: "usage: !configure <max_trades> <profit_target> <max_phases>"}
	}

	maxTrades, err := strconv.Atoi(args[0])
	if err != nil {
		return phase.Config{}, &UsageError{Msg: fmt.Sprintf("max_trades must be a whole number, got %q", args[0])}
	}
	target, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return phase.Config{}, &UsageError{Msg: fmt.Sprintf("profit_target must be a number, got %q", args[1])}
	}
	maxPhases, err := strconv.Atoi(args[2])
	if err != nil {
		return phase.Config{}, &UsageError{Msg: fmt.Sprintf("max_phases must be a whole number, got %q", args[2])}
	}

	cfg := phase.Config{MaxTradesPerPhase: maxTrades, ProfitTargetPerPhase: target, MaxPhases: maxPhases}
	if err := cfg.Validate(); err != nil {
		return phase.Config{}, err
	}
	return cfg, nil
}
