package models

import "time"

// MatchRecord is the persisted outcome of one remote match. The primary key
// is the room id, so a repeated save of the same match is an upsert.
type MatchRecord struct {
	ID        string `gorm:"primaryKey" json:"id"`
	MatchType string `gorm:"index;not null" json:"match_type"` // matchmaking, direct or a tournament id

	Player1ID    string `gorm:"index;not null" json:"player1_id"`
	Player2ID    string `gorm:"index;not null" json:"player2_id"`
	Player1Score int    `json:"player1_score"`
	Player2Score int    `json:"player2_score"`
	WinnerID     string `gorm:"index" json:"winner_id,omitempty"`
	EndReason    string `gorm:"type:varchar(16)" json:"end_reason"` // completed, disconnected, exited

	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     time.Time  `json:"ended_at"`
	DurationSec int        `json:"duration_sec" gorm:"default:0"`

	Timestamps
}
