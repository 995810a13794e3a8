package models

import (
	"time"

	"gorm.io/gorm"
)

// TournamentUser is a local snapshot of the profile data the arena shows
// next to a player: alias or username. Populated by the profile sync worker.
type TournamentUser struct {
	ID                string  `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID    string  `gorm:"uniqueIndex;not null" json:"external_user_id"` // the profile service's user id
	Username          string  `gorm:"index;not null" json:"username"`
	Alias             *string `json:"alias,omitempty"`
	FirstName         *string `json:"first_name,omitempty"`
	LastName          *string `json:"last_name,omitempty"`
	ProfilePictureURL *string `json:"profile_picture_url,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	IsBanned bool `json:"is_banned" gorm:"default:false"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// DisplayName prefers the alias, then the username.
func (u TournamentUser) DisplayName() string {
	if u.Alias != nil && *u.Alias != "" {
		return *u.Alias
	}
	return u.Username
}
