package models

// TournamentParticipation is one player's final standing, written when a
// tournament reaches a terminal status.
type TournamentParticipation struct {
	ID             string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex:idx_participation_user;not null" json:"external_user_id"`
	TournamentID   string `gorm:"uniqueIndex:idx_participation_user;not null" json:"tournament_id"`

	Seed              int    `json:"seed"`
	FinalRank         int    `json:"final_rank" gorm:"default:0"` // 0 = not ranked
	MatchesPlayed     int    `json:"matches_played" gorm:"default:0"`
	EliminationReason string `json:"elimination_reason,omitempty" gorm:"type:varchar(16)"`

	// Status
	Status string `json:"status" gorm:"type:varchar(16);default:'joined'"` // joined, eliminated, winner, cancelled

	Timestamps
}
