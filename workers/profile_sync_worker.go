package workers

import (
	"context"
	"time"

	"pong-arena/models"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileChange is one user record returned by the profile sync service.
type ProfileChange struct {
	ExternalID        string    `json:"external_id"`
	Username          string    `json:"username"`
	Alias             *string   `json:"alias,omitempty"`
	FirstName         *string   `json:"first_name,omitempty"`
	LastName          *string   `json:"last_name,omitempty"`
	ProfilePictureURL *string   `json:"profile_picture_url,omitempty"`
	AccountStatus     string    `json:"account_status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Users []ProfileChange `json:"users"`
}

// NameInvalidator drops cached display names of synced users.
type NameInvalidator interface {
	Forget(userID string)
}

// ProfileSyncWorker keeps models.TournamentUser in step with the profile
// service so display names resolve locally.
type ProfileSyncWorker struct {
	db           *gorm.DB
	rest         *resty.Client
	endpointPath string
	interval     time.Duration
	names        NameInvalidator
	log          zerolog.Logger
}

func NewProfileSyncWorker(db *gorm.DB, baseURL, endpointPath, serviceToken string, interval time.Duration, names NameInvalidator) *ProfileSyncWorker {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("X-Service-Token", serviceToken).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)
	if interval <= 0 {
		interval = time.Minute
	}
	return &ProfileSyncWorker{
		db:           db,
		rest:         rest,
		endpointPath: endpointPath,
		interval:     interval,
		names:        names,
		log:          log.With().Str("component", "profile-sync").Logger(),
	}
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("starting profile sync worker")
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx, time.Time{}); err != nil {
		w.log.Warn().Err(err).Msg("initial profile sync failed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx, w.lastSyncTime()); err != nil {
				w.log.Error().Err(err).Msg("profile sync failed")
			}
		case <-ctx.Done():
			w.log.Info().Msg("profile sync worker stopped")
			return
		}
	}
}

// lastSyncTime is the newest mirrored update, or the epoch.
func (w *ProfileSyncWorker) lastSyncTime() time.Time {
	var last time.Time
	err := w.db.Raw("SELECT MAX(updated_at) FROM tournament_users WHERE deleted_at IS NULL").Scan(&last).Error
	if err != nil || last.IsZero() {
		return time.Unix(0, 0)
	}
	return last
}

// SyncOnce pulls changes since the given time and upserts them. It
// returns how many users were written.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context, since time.Time) (int, error) {
	var body profileChangesResponse
	resp, err := w.rest.R().
		SetContext(ctx).
		SetQueryParam("since", since.UTC().Format(time.RFC3339)).
		SetResult(&body).
		Get(w.endpointPath)
	if err != nil {
		return 0, eris.Wrap(err, "profile sync request failed")
	}
	if resp.IsError() {
		return 0, eris.Errorf("profile sync returned %d: %.256s", resp.StatusCode(), resp.String())
	}
	if len(body.Users) == 0 {
		return 0, nil
	}

	written, failed := 0, 0
	for _, change := range body.Users {
		if change.ExternalID == "" {
			continue
		}
		user := models.TournamentUser{
			ExternalUserID:    change.ExternalID,
			Username:          change.Username,
			Alias:             change.Alias,
			FirstName:         change.FirstName,
			LastName:          change.LastName,
			ProfilePictureURL: change.ProfilePictureURL,
			IsBanned:          change.AccountStatus == "banned" || change.AccountStatus == "suspended",
			CreatedAt:         change.CreatedAt,
			UpdatedAt:         change.UpdatedAt,
		}
		err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"username", "alias", "first_name", "last_name",
				"profile_picture_url", "is_banned", "updated_at",
			}),
		}).Create(&user).Error
		if err != nil {
			failed++
			w.log.Warn().Err(err).Str("external_id", change.ExternalID).Msg("failed to upsert mirrored user")
			continue
		}
		written++
		if w.names != nil {
			w.names.Forget(change.ExternalID)
		}
	}

	w.log.Info().Int("received", len(body.Users)).Int("upserted", written).Int("failed", failed).Msg("profile sync batch done")
	return written, nil
}
