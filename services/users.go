package services

import (
	"strings"
	"sync"
	"time"

	"pong-arena/models"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const displayNameTTL = 5 * time.Minute

type cachedName struct {
	name    string
	expires time.Time
}

// PresenceService resolves user ids to display names from the local
// profile mirror. It never fails: unknown users are shown by id.
type PresenceService struct {
	DB *gorm.DB

	mu    sync.Mutex
	cache map[string]cachedName
	now   func() time.Time
	log   zerolog.Logger
}

func NewPresenceService(db *gorm.DB) *PresenceService {
	return &PresenceService{
		DB:    db,
		cache: make(map[string]cachedName),
		now:   time.Now,
		log:   log.With().Str("component", "presence").Logger(),
	}
}

func (s *PresenceService) DisplayName(userID string) string {
	if s == nil || s.DB == nil || userID == "" {
		return userID
	}
	now := s.now()
	s.mu.Lock()
	if c, ok := s.cache[userID]; ok && now.Before(c.expires) {
		s.mu.Unlock()
		return c.name
	}
	s.mu.Unlock()

	var user models.TournamentUser
	err := s.DB.Where("external_user_id = ?", userID).Limit(1).Find(&user).Error
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("display name lookup failed")
		return userID
	}
	name := strings.TrimSpace(user.DisplayName())
	if name == "" {
		name = userID
	}

	s.mu.Lock()
	s.cache[userID] = cachedName{name: name, expires: now.Add(displayNameTTL)}
	s.mu.Unlock()
	return name
}

// Search lists mirrored users whose username or alias contains query.
func (s *PresenceService) Search(query string, limit int) ([]models.TournamentUser, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var users []models.TournamentUser
	if s.DB == nil {
		return users, nil
	}
	db := s.DB.Model(&models.TournamentUser{}).Limit(limit)
	if q := strings.ToLower(strings.TrimSpace(query)); q != "" {
		term := "%" + q + "%"
		db = db.Where("LOWER(username) LIKE ? OR LOWER(alias) LIKE ?", term, term)
	}
	if err := db.Order("username").Find(&users).Error; err != nil {
		return nil, eris.Wrap(err, "failed to search users")
	}
	return users, nil
}

// Forget drops a cached name, e.g. after a profile sync touched it.
func (s *PresenceService) Forget(userID string) {
	s.mu.Lock()
	delete(s.cache, userID)
	s.mu.Unlock()
}
