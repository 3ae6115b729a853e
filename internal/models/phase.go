package models

import "time"

// Phase is a completed trading phase.
type Phase struct {
	ID          string    `gorm:"primaryKey;size:26" json:"id"`
	Number      int       `gorm:"index" json:"number"`
	Profit      float64   `json:"profit"`
	Trades      int       `json:"trades"`
	CompletedAt time.Time `json:"completed_at"`
}
