package venue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"phase-trade-bot-go/internal/config"
	"phase-trade-bot-go/internal/market"
	"phase-trade-bot-go/internal/retry"
	"phase-trade-bot-go/internal/trace"

	"go.uber.org/zap"
)

// TradeHandle identifies an open position on the venue.
type TradeHandle uint64

// Position is an open position in the gateway's terms.
type Position struct {
	Ticket    TradeHandle
	Direction market.Direction
	Volume    float64
	PriceOpen float64
	Profit    float64
}

// OrderRequest describes a market entry.
type OrderRequest struct {
	Direction  market.Direction
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Tag        string
}

// Gateway owns the venue session for one symbol. Every operation is wrapped
// in the retry policy; in-flight requests are not cancelled when the caller's
// context is, only the waits between attempts are.
type Gateway struct {
	api       API
	logger    *zap.Logger
	policy    retry.Policy
	creds     Credentials
	symbol    string
	timeframe string
	deviation int
	magic     int64

	mu        sync.Mutex
	info      *SymbolInfo
	connected bool
}

// NewGateway creates a gateway over api using the venue configuration.
func NewGateway(api API, cfg *config.Venue, logger *zap.Logger) *Gateway {
	policy := retry.DefaultPolicy
	if cfg.RetryAttempts > 0 {
		policy.Attempts = cfg.RetryAttempts
	}
	if cfg.RetryDelay > 0 {
		policy.Delay = cfg.RetryDelay
	}

	return &Gateway{
		api:       api,
		logger:    logger.Named("venue"),
		policy:    policy,
		creds:     Credentials{Login: cfg.Login, Password: cfg.Password, Server: cfg.Server},
		symbol:    cfg.Symbol,
		timeframe: cfg.Timeframe,
		deviation: cfg.Deviation,
		magic:     cfg.Magic,
	}
}

// Symbol returns the traded symbol.
func (g *Gateway) Symbol() string { return g.symbol }

// Connected reports whether Connect succeeded and Disconnect has not been called since.
func (g *Gateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// Connect authenticates and selects the trading symbol.
func (g *Gateway) Connect(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "venue.Connect")
	defer span.End()

	info, err := retry.Do(ctx, g.logger, g.policy, "connect", func(ctx context.Context) (*SymbolInfo, error) {
		call := context.WithoutCancel(ctx)
		if err := g.api.Login(call, g.creds); err != nil {
			return nil, &ConnectError{Reason: "login failed", Err: err}
		}
		info, err := g.api.SelectSymbol(call, g.symbol)
		if err != nil {
			return nil, &ConnectError{Reason: fmt.Sprintf("symbol %s unavailable", g.symbol), Err: err}
		}
		return info, nil
	})
	if err != nil {
		var ce *ConnectError
		if !errors.As(err, &ce) {
			err = &ConnectError{Reason: "aborted", Err: err}
		}
		return err
	}

	g.mu.Lock()
	g.info = info
	g.connected = true
	g.mu.Unlock()

	g.logger.Info("Connected to venue",
		zap.String("symbol", g.symbol),
		zap.Float64("volume_min", info.VolumeMin),
		zap.Float64("volume_max", info.VolumeMax),
	)
	return nil
}

// Disconnect shuts the venue session down. It is best-effort and never retried.
func (g *Gateway) Disconnect(ctx context.Context) {
	g.mu.Lock()
	wasConnected := g.connected
	g.connected = false
	g.mu.Unlock()
	if !wasConnected {
		return
	}

	if err := g.api.Shutdown(context.WithoutCancel(ctx)); err != nil {
		g.logger.Warn("Venue shutdown failed", zap.Error(err))
		return
	}
	g.logger.Info("Disconnected from venue")
}

// FetchSnapshot pulls barCount bars and computes the indicators on them.
func (g *Gateway) FetchSnapshot(ctx context.Context, barCount int) (*market.Snapshot, error) {
	ctx, span := trace.StartSpan(ctx, "venue.FetchSnapshot")
	defer span.End()

	return retry.Do(ctx, g.logger, g.policy, "fetch_snapshot", func(ctx context.Context) (*market.Snapshot, error) {
		rates, err := g.api.Rates(context.WithoutCancel(ctx), g.symbol, g.timeframe, barCount)
		if err != nil {
			return nil, &DataError{Reason: "rates request failed", Err: err}
		}
		if len(rates) == 0 {
			return nil, &DataError{Reason: "no bars returned"}
		}

		bars := make([]market.Bar, len(rates))
		for i, r := range rates {
			if r.Time == nil {
				return nil, &DataError{Reason: fmt.Sprintf("bar %d has no timestamp", i)}
			}
			bars[i] = market.Bar{
				Time:   time.Unix(*r.Time, 0).UTC(),
				Open:   r.Open,
				High:   r.High,
				Low:    r.Low,
				Close:  r.Close,
				Volume: r.TickVolume,
			}
		}

		snap, err := market.NewSnapshot(bars)
		if err != nil {
			return nil, &DataError{Reason: "indicators", Err: err}
		}
		return snap, nil
	})
}

// FetchTick returns the current bid/ask.
func (g *Gateway) FetchTick(ctx context.Context) (market.Tick, error) {
	ctx, span := trace.StartSpan(ctx, "venue.FetchTick")
	defer span.End()

	return retry.Do(ctx, g.logger, g.policy, "fetch_tick", g.tick)
}

func (g *Gateway) tick(ctx context.Context) (market.Tick, error) {
	t, err := g.api.Tick(context.WithoutCancel(ctx), g.symbol)
	if err != nil {
		return market.Tick{}, &TickError{Err: err}
	}
	if t.Bid <= 0 || t.Ask <= 0 {
		return market.Tick{}, &TickError{Err: fmt.Errorf("empty quote bid=%v ask=%v", t.Bid, t.Ask)}
	}
	return market.Tick{Bid: t.Bid, Ask: t.Ask, Time: time.Unix(t.Time, 0).UTC()}, nil
}

// FetchEquity returns account equity. On error the value is meaningless and
// must not be read as zero.
func (g *Gateway) FetchEquity(ctx context.Context) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "venue.FetchEquity")
	defer span.End()

	return retry.Do(ctx, g.logger, g.policy, "fetch_equity", func(ctx context.Context) (float64, error) {
		acct, err := g.api.Account(context.WithoutCancel(ctx))
		if err != nil {
			return 0, &EquityError{Err: err}
		}
		return acct.Equity, nil
	})
}

// FetchOpenPositions lists open positions on the traded symbol.
func (g *Gateway) FetchOpenPositions(ctx context.Context) ([]Position, error) {
	ctx, span := trace.StartSpan(ctx, "venue.FetchOpenPositions")
	defer span.End()

	return retry.Do(ctx, g.logger, g.policy, "fetch_positions", g.positions)
}

func (g *Gateway) positions(ctx context.Context) ([]Position, error) {
	infos, err := g.api.Positions(context.WithoutCancel(ctx), g.symbol)
	if err != nil {
		return nil, err
	}
	positions := make([]Position, 0, len(infos))
	for _, p := range infos {
		dir := market.Buy
		if p.Type == OrderTypeSell {
			dir = market.Sell
		}
		positions = append(positions, Position{
			Ticket:    TradeHandle(p.Ticket),
			Direction: dir,
			Volume:    p.Volume,
			PriceOpen: p.PriceOpen,
			Profit:    p.Profit,
		})
	}
	return positions, nil
}

// SubmitOrder opens a market position. Volumes outside the symbol's bounds are
// rejected before anything is sent.
func (g *Gateway) SubmitOrder(ctx context.Context, req OrderRequest) (TradeHandle, error) {
	ctx, span := trace.StartSpan(ctx, "venue.SubmitOrder")
	defer span.End()

	g.mu.Lock()
	info := g.info
	g.mu.Unlock()

	l := g.logger.With(
		zap.String("symbol", g.symbol),
		zap.String("direction", string(req.Direction)),
		zap.Float64("volume", req.Volume),
	)

	return retry.Do(ctx, l, g.policy, "submit_order", func(ctx context.Context) (TradeHandle, error) {
		volume, err := normalizeVolume(info, req.Volume)
		if err != nil {
			return 0, retry.Permanent(&OrderError{Message: err.Error()})
		}

		result, err := g.api.SendOrder(context.WithoutCancel(ctx), TradeRequest{
			Action:      ActionDeal,
			Symbol:      g.symbol,
			Volume:      volume,
			Type:        orderType(req.Direction),
			Price:       req.Price,
			SL:          req.StopLoss,
			TP:          req.TakeProfit,
			Deviation:   g.deviation,
			Magic:       g.magic,
			Comment:     req.Tag,
			TypeTime:    OrderTimeGTC,
			TypeFilling: OrderFillingIOC,
		})
		if err != nil {
			return 0, &OrderError{Message: "request failed", Err: err}
		}
		if !result.Succeeded() {
			return 0, &OrderError{Code: result.Retcode, Message: result.Comment}
		}

		handle := TradeHandle(result.Position)
		if handle == 0 {
			handle = TradeHandle(result.Order)
		}
		l.Info("Order placed", zap.Uint64("ticket", uint64(handle)), zap.Float64("price", result.Price))
		return handle, nil
	})
}

// ClosePosition closes handle at market with the opposing side.
// A position the venue no longer reports counts as closed.
func (g *Gateway) ClosePosition(ctx context.Context, handle TradeHandle) error {
	ctx, span := trace.StartSpan(ctx, "venue.ClosePosition")
	defer span.End()

	l := g.logger.With(zap.Uint64("ticket", uint64(handle)))

	err := retry.Run(ctx, l, g.policy, "close_position", func(ctx context.Context) error {
		positions, err := g.positions(ctx)
		if err != nil {
			return err
		}

		var pos *Position
		for i := range positions {
			if positions[i].Ticket == handle {
				pos = &positions[i]
				break
			}
		}
		if pos == nil {
			l.Info("Position already closed on venue")
			return nil
		}

		tick, err := g.tick(ctx)
		if err != nil {
			return err
		}

		side := pos.Direction.Opposite()
		result, err := g.api.SendOrder(context.WithoutCancel(ctx), TradeRequest{
			Action:      ActionDeal,
			Symbol:      g.symbol,
			Volume:      pos.Volume,
			Type:        orderType(side),
			Price:       tick.Price(side),
			Deviation:   g.deviation,
			Magic:       g.magic,
			Comment:     "close",
			Position:    uint64(handle),
			TypeTime:    OrderTimeGTC,
			TypeFilling: OrderFillingIOC,
		})
		if err != nil {
			return err
		}
		if !result.Succeeded() {
			return &OrderError{Code: result.Retcode, Message: result.Comment}
		}
		l.Info("Position closed", zap.Float64("price", result.Price))
		return nil
	})
	if err != nil {
		return &CloseError{Ticket: handle, Err: err}
	}
	return nil
}

func orderType(d market.Direction) int {
	if d == market.Sell {
		return OrderTypeSell
	}
	return OrderTypeBuy
}
