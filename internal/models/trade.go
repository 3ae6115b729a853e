package models

import "time"

// Trade is one position opened during the session.
type Trade struct {
	ID           string     `gorm:"primaryKey;size:26" json:"id"`
	Ticket       uint64     `gorm:"index" json:"ticket"`
	Phase        int        `gorm:"index" json:"phase"`
	Symbol       string     `json:"symbol"`
	Direction    string     `json:"direction"` // "BUY" or "SELL"
	Volume       float64    `json:"volume"`
	Price        float64    `json:"price"`
	StopLoss     float64    `json:"stop_loss"`
	TakeProfit   float64    `json:"take_profit"`
	Tag          string     `json:"tag"`
	IsSimulation bool       `json:"is_simulation"`
	OpenedAt     time.Time  `json:"opened_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	CloseReason  string     `json:"close_reason,omitempty"`
}
