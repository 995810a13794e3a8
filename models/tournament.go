package models

// TournamentSnapshot holds the full in-memory tournament as JSON so a
// restarted process can resume it.
type TournamentSnapshot struct {
	ID        string `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"index;not null" json:"name"`
	CreatedBy string `gorm:"index" json:"created_by"`
	Status    string `gorm:"type:varchar(16);index" json:"status"` // waiting, countdown, running, completed, cancelled
	Payload   string `gorm:"type:jsonb;not null" json:"payload"`
	Version   int64  `gorm:"not null;default:0" json:"version"`

	Timestamps
}
