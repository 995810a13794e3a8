package services

import (
	"context"

	"pong-arena/models"

	"github.com/rotisserie/eris"
)

// PlayerStats is the lifetime record of one user.
type PlayerStats struct {
	UserID            string `json:"userId"`
	MatchesPlayed     int64  `json:"matchesPlayed"`
	MatchesWon        int64  `json:"matchesWon"`
	TournamentsPlayed int64  `json:"tournamentsPlayed"`
	TournamentsWon    int64  `json:"tournamentsWon"`
}

func (s *GormStore) PlayerStats(ctx context.Context, userID string) (PlayerStats, error) {
	out := PlayerStats{UserID: userID}
	db := s.DB.WithContext(ctx)

	if err := db.Model(&models.MatchRecord{}).
		Where("player1_id = ? OR player2_id = ?", userID, userID).
		Count(&out.MatchesPlayed).Error; err != nil {
		return out, eris.Wrapf(err, "failed to count matches of %s", userID)
	}
	if err := db.Model(&models.MatchRecord{}).
		Where("winner_id = ?", userID).
		Count(&out.MatchesWon).Error; err != nil {
		return out, eris.Wrapf(err, "failed to count match wins of %s", userID)
	}
	if err := db.Model(&models.TournamentParticipation{}).
		Where("external_user_id = ?", userID).
		Count(&out.TournamentsPlayed).Error; err != nil {
		return out, eris.Wrapf(err, "failed to count tournaments of %s", userID)
	}
	if err := db.Model(&models.TournamentParticipation{}).
		Where("external_user_id = ? AND final_rank = 1", userID).
		Count(&out.TournamentsWon).Error; err != nil {
		return out, eris.Wrapf(err, "failed to count tournament wins of %s", userID)
	}
	return out, nil
}

func (s *MemoryStore) PlayerStats(_ context.Context, userID string) (PlayerStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := PlayerStats{UserID: userID}
	for _, r := range s.results {
		if r.P1 != userID && r.P2 != userID {
			continue
		}
		out.MatchesPlayed++
		if r.WinnerID == userID {
			out.MatchesWon++
		}
	}
	for _, t := range s.snapshots {
		if !t.Status.Terminal() || !t.IsPlayer(userID) {
			continue
		}
		out.TournamentsPlayed++
		if t.Result != nil && t.Result.Winner == userID {
			out.TournamentsWon++
		}
	}
	return out, nil
}
