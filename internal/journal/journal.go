// Package journal records the session's trades and completed phases in the
// gorm database so they can be listed over the API.
package journal

import (
	"context"
	"fmt"
	"time"

	"phase-trade-bot-go/internal/models"
	"phase-trade-bot-go/internal/venue"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Journal implements phase.Journal on a gorm database.
type Journal struct {
	db        *gorm.DB
	logger    *zap.Logger
	symbol    string
	simulated bool
	now       func() time.Time
}

// New creates a journal. simulated marks every trade as a dry-run trade.
func New(db *gorm.DB, symbol string, simulated bool, logger *zap.Logger) *Journal {
	return &Journal{
		db:        db,
		logger:    logger.Named("journal"),
		symbol:    symbol,
		simulated: simulated,
		now:       time.Now,
	}
}

// TradeOpened stores a new open trade.
func (j *Journal) TradeOpened(ctx context.Context, phase int, handle venue.TradeHandle, req venue.OrderRequest) error {
	trade := models.Trade{
		ID:           ulid.Make().String(),
		Ticket:       uint64(handle),
		Phase:        phase,
		Symbol:       j.symbol,
		Direction:    string(req.Direction),
		Volume:       req.Volume,
		Price:        req.Price,
		StopLoss:     req.StopLoss,
		TakeProfit:   req.TakeProfit,
		Tag:          req.Tag,
		IsSimulation: j.simulated,
		OpenedAt:     j.now().UTC(),
	}
	if err := j.db.WithContext(ctx).Create(&trade).Error; err != nil {
		return fmt.Errorf("failed to save trade %d: %w", handle, err)
	}
	j.logger.Debug("Saved trade record", zap.String("id", trade.ID), zap.Uint64("ticket", trade.Ticket))
	return nil
}

// TradeClosed marks the open trade for handle as closed. Positions the
// session never opened are ignored.
func (j *Journal) TradeClosed(ctx context.Context, handle venue.TradeHandle, reason string) error {
	closedAt := j.now().UTC()
	res := j.db.WithContext(ctx).Model(&models.Trade{}).
		Where("ticket = ? AND closed_at IS NULL", uint64(handle)).
		Updates(map[string]any{"closed_at": closedAt, "close_reason": reason})
	if res.Error != nil {
		return fmt.Errorf("failed to close trade %d: %w", handle, res.Error)
	}
	return nil
}

// PhaseCompleted stores a completed phase.
func (j *Journal) PhaseCompleted(ctx context.Context, phase int, profit float64, trades int) error {
	rec := models.Phase{
		ID:          ulid.Make().String(),
		Number:      phase,
		Profit:      profit,
		Trades:      trades,
		CompletedAt: j.now().UTC(),
	}
	if err := j.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to save phase %d: %w", phase, err)
	}
	return nil
}

// Trades lists trades newest first. limit <= 0 means all.
func (j *Journal) Trades(ctx context.Context, limit int) ([]models.Trade, error) {
	var trades []models.Trade
	q := j.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

// Phases lists completed phases in order.
func (j *Journal) Phases(ctx context.Context) ([]models.Phase, error) {
	var phases []models.Phase
	if err := j.db.WithContext(ctx).Order("number ASC, id ASC").Find(&phases).Error; err != nil {
		return nil, fmt.Errorf("failed to list phases: %w", err)
	}
	return phases, nil
}
