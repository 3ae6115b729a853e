package venue

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// PaperAPI simulates the account side of the venue for dry runs. Market data
// (rates, ticks, symbol rules) still comes from the wrapped API, but orders,
// positions and equity never touch the real account.
type PaperAPI struct {
	data         API
	logger       *zap.Logger
	contractSize float64

	mu         sync.Mutex
	balance    float64
	nextTicket uint64
	positions  map[uint64]*PositionInfo
}

var _ API = (*PaperAPI)(nil)

// NewPaperAPI creates a paper account with the given starting balance.
// contractSize converts a price move per lot into account currency.
func NewPaperAPI(data API, balance, contractSize float64, logger *zap.Logger) *PaperAPI {
	return &PaperAPI{
		data:         data,
		logger:       logger.Named("paper"),
		contractSize: contractSize,
		balance:      balance,
		nextTicket:   1,
		positions:    make(map[uint64]*PositionInfo),
	}
}

func (p *PaperAPI) Login(ctx context.Context, creds Credentials) error {
	p.logger.Warn("Dry run enabled. Orders are simulated.")
	return p.data.Login(ctx, creds)
}

func (p *PaperAPI) SelectSymbol(ctx context.Context, symbol string) (*SymbolInfo, error) {
	return p.data.SelectSymbol(ctx, symbol)
}

func (p *PaperAPI) Rates(ctx context.Context, symbol, timeframe string, count int) ([]Rate, error) {
	return p.data.Rates(ctx, symbol, timeframe, count)
}

func (p *PaperAPI) Tick(ctx context.Context, symbol string) (*TickResponse, error) {
	return p.data.Tick(ctx, symbol)
}

// Positions marks every simulated position to the current tick. Positions
// whose stop loss or take profit the tick has crossed are closed at that
// level first, the way the venue would have closed them.
func (p *PaperAPI) Positions(ctx context.Context, symbol string) ([]PositionInfo, error) {
	p.mu.Lock()
	empty := len(p.positions) == 0
	p.mu.Unlock()
	if empty {
		return []PositionInfo{}, nil
	}

	tick, err := p.data.Tick(ctx, symbol)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PositionInfo, 0, len(p.positions))
	for _, pos := range p.positions {
		if pos.Symbol != symbol {
			continue
		}
		if level, reason, hit := triggered(pos, tick); hit {
			realized := p.profitAt(pos, level)
			p.balance += realized
			delete(p.positions, pos.Ticket)
			p.logger.Info("[Dry Run] Position hit "+reason,
				zap.Uint64("ticket", pos.Ticket),
				zap.Float64("price", level),
				zap.Float64("profit", realized),
			)
			continue
		}
		pos.Profit = p.profit(pos, tick)
		out = append(out, *pos)
	}
	return out, nil
}

// triggered reports whether tick crossed pos's stop loss or take profit and
// the level it fills at. A zero level is unset.
func triggered(pos *PositionInfo, tick *TickResponse) (float64, string, bool) {
	price := closePrice(pos.Type, tick)
	if pos.Type == OrderTypeSell {
		switch {
		case pos.SL > 0 && price >= pos.SL:
			return pos.SL, "stop loss", true
		case pos.TP > 0 && price <= pos.TP:
			return pos.TP, "take profit", true
		}
		return 0, "", false
	}
	switch {
	case pos.SL > 0 && price <= pos.SL:
		return pos.SL, "stop loss", true
	case pos.TP > 0 && price >= pos.TP:
		return pos.TP, "take profit", true
	}
	return 0, "", false
}

// Account reports balance plus open profit as equity.
func (p *PaperAPI) Account(ctx context.Context) (*AccountInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	equity := p.balance
	for _, pos := range p.positions {
		equity += pos.Profit
	}
	return &AccountInfo{Balance: p.balance, Equity: equity, Currency: "USD"}, nil
}

// SendOrder opens a position, or closes one when req.Position is set.
func (p *PaperAPI) SendOrder(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	tick, err := p.data.Tick(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Position != 0 {
		pos, ok := p.positions[req.Position]
		if !ok {
			return &TradeResult{Retcode: 10036, Comment: "Position already closed"}, nil
		}
		realized := p.profit(pos, tick)
		p.balance += realized
		delete(p.positions, req.Position)
		p.logger.Info("[Dry Run] Closed position", zap.Uint64("ticket", req.Position), zap.Float64("profit", realized))
		return &TradeResult{Retcode: RetcodeDone, Comment: "Request executed", Position: req.Position, Price: closePrice(pos.Type, tick), Volume: pos.Volume}, nil
	}

	if req.Volume <= 0 {
		return &TradeResult{Retcode: 10014, Comment: "Invalid volume"}, nil
	}

	price := tick.Ask
	if req.Type == OrderTypeSell {
		price = tick.Bid
	}
	ticket := p.nextTicket
	p.nextTicket++
	p.positions[ticket] = &PositionInfo{
		Ticket:    ticket,
		Symbol:    req.Symbol,
		Type:      req.Type,
		Volume:    req.Volume,
		PriceOpen: price,
		SL:        req.SL,
		TP:        req.TP,
		Magic:     req.Magic,
		Comment:   req.Comment,
	}
	p.logger.Info("[Dry Run] Opened position",
		zap.Uint64("ticket", ticket),
		zap.Int("type", req.Type),
		zap.Float64("volume", req.Volume),
		zap.Float64("price", price),
	)
	return &TradeResult{Retcode: RetcodeDone, Comment: "Request executed", Order: ticket, Position: ticket, Price: price, Volume: req.Volume}, nil
}

func (p *PaperAPI) Shutdown(ctx context.Context) error {
	return p.data.Shutdown(ctx)
}

func (p *PaperAPI) profit(pos *PositionInfo, tick *TickResponse) float64 {
	return p.profitAt(pos, closePrice(pos.Type, tick))
}

func (p *PaperAPI) profitAt(pos *PositionInfo, price float64) float64 {
	diff := price - pos.PriceOpen
	if pos.Type == OrderTypeSell {
		diff = pos.PriceOpen - price
	}
	return diff * pos.Volume * p.contractSize
}

func closePrice(posType int, tick *TickResponse) float64 {
	if posType == OrderTypeSell {
		return tick.Ask
	}
	return tick.Bid
}

// String is used in startup logs.
func (p *PaperAPI) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("paper(balance=%.2f)", p.balance)
}
