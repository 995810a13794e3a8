package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"pong-arena/models"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the persistence boundary. Gameplay never waits on it; see
// AsyncStore.
type Store interface {
	SaveMatchResult(ctx context.Context, result MatchResult) error
	UpsertTournamentSnapshot(ctx context.Context, t *Tournament) error
	LoadTournamentSnapshots(ctx context.Context) ([]*Tournament, error)
	PlayerStats(ctx context.Context, userID string) (PlayerStats, error)
}

// ResultRecorder accepts match results without blocking.
type ResultRecorder interface {
	RecordMatchResult(result MatchResult)
}

// SnapshotRecorder accepts tournament snapshots without blocking.
type SnapshotRecorder interface {
	RecordTournament(t *Tournament)
}

// GormStore persists to Postgres.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) SaveMatchResult(ctx context.Context, r MatchResult) error {
	rec := models.MatchRecord{
		ID:           r.RoomID,
		MatchType:    r.MatchType,
		Player1ID:    r.P1,
		Player2ID:    r.P2,
		Player1Score: r.Score.P1,
		Player2Score: r.Score.P2,
		WinnerID:     r.WinnerID,
		EndReason:    string(r.EndReason),
		EndedAt:      r.EndedAt,
	}
	if !r.StartedAt.IsZero() {
		started := r.StartedAt
		rec.StartedAt = &started
		rec.DurationSec = int(r.EndedAt.Sub(started).Seconds())
	}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	return eris.Wrapf(err, "failed to save match result %s", r.RoomID)
}

func (s *GormStore) UpsertTournamentSnapshot(ctx context.Context, t *Tournament) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return eris.Wrapf(err, "failed to encode tournament %s", t.ID)
	}
	row := models.TournamentSnapshot{
		ID:        t.ID,
		Name:      t.Name,
		CreatedBy: t.CreatedBy,
		Status:    string(t.Status),
		Payload:   string(payload),
		Version:   t.Version,
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "status", "payload", "version", "updated_at"}),
			// never let a stale write overwrite a newer snapshot
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "tournament_snapshots.version <= excluded.version"},
			}},
		}).Create(&row).Error
		if err != nil {
			return eris.Wrapf(err, "failed to upsert tournament snapshot %s", t.ID)
		}
		if !t.Status.Terminal() {
			return nil
		}
		for _, p := range standings(t) {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "external_user_id"}, {Name: "tournament_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"final_rank", "matches_played", "elimination_reason", "status", "updated_at"}),
			}).Create(&p).Error
			if err != nil {
				return eris.Wrapf(err, "failed to record standing of %s in %s", p.ExternalUserID, t.ID)
			}
		}
		return nil
	})
}

func (s *GormStore) LoadTournamentSnapshots(ctx context.Context) ([]*Tournament, error) {
	var rows []models.TournamentSnapshot
	err := s.DB.WithContext(ctx).
		Where("status IN ?", []string{string(StatusWaiting), string(StatusCountdown), string(StatusRunning)}).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, eris.Wrap(err, "failed to load tournament snapshots")
	}

	out := make([]*Tournament, 0, len(rows))
	for _, row := range rows {
		var t Tournament
		if err := json.Unmarshal([]byte(row.Payload), &t); err != nil {
			log.Warn().Err(err).Str("tournament_id", row.ID).Msg("skipping unreadable tournament snapshot")
			continue
		}
		out = append(out, &t)
	}
	return out, nil
}

// standings ranks the players of a finished tournament: winner 1, finalist
// 2, everyone else eliminated 3. Cancelled tournaments rank nobody.
func standings(t *Tournament) []models.TournamentParticipation {
	played := make(map[string]int)
	for _, m := range t.Bracket.matches() {
		if m.Status == SlotCompleted && m.RoomID != "" {
			played[m.P1]++
			played[m.P2]++
		}
	}

	finalist := ""
	if f := t.Bracket.Final; f != nil && f.Status == SlotCompleted && f.Winner != "" {
		finalist = f.opponentOf(f.Winner)
	}

	out := make([]models.TournamentParticipation, 0, len(t.Players))
	for i, p := range t.Players {
		row := models.TournamentParticipation{
			ExternalUserID:    p,
			TournamentID:      t.ID,
			Seed:              i + 1,
			MatchesPlayed:     played[p],
			EliminationReason: string(t.EliminationReasons[p]),
			Status:            "eliminated",
		}
		switch {
		case t.Status == StatusCancelled:
			row.Status = "cancelled"
		case t.Result != nil && t.Result.Winner == p:
			row.Status = "winner"
			row.FinalRank = 1
		case p == finalist:
			row.FinalRank = 2
		default:
			row.FinalRank = 3
		}
		out = append(out, row)
	}
	return out
}

// MemoryStore keeps everything in process. Used without a database and in
// tests.
type MemoryStore struct {
	mu        sync.Mutex
	results   []MatchResult
	snapshots map[string]*Tournament
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]*Tournament)}
}

func (s *MemoryStore) SaveMatchResult(_ context.Context, r MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}

func (s *MemoryStore) UpsertTournamentSnapshot(_ context.Context, t *Tournament) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.snapshots[t.ID]; ok && prev.Version > t.Version {
		return nil
	}
	s.snapshots[t.ID] = t.Clone()
	return nil
}

func (s *MemoryStore) LoadTournamentSnapshots(_ context.Context) ([]*Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Tournament, 0, len(s.snapshots))
	for _, t := range s.snapshots {
		if !t.Status.Terminal() {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Results() []MatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MatchResult(nil), s.results...)
}

func (s *MemoryStore) Snapshot(id string) (*Tournament, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.snapshots[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

const (
	asyncQueueSize    = 256
	asyncWriteTimeout = 5 * time.Second
)

// AsyncStore serialises writes to a Store on one background goroutine.
// A full queue drops the write and logs it.
type AsyncStore struct {
	store Store
	jobs  chan func(ctx context.Context) error
	done  chan struct{}
	log   zerolog.Logger
}

func NewAsyncStore(store Store) *AsyncStore {
	return &AsyncStore{
		store: store,
		jobs:  make(chan func(ctx context.Context) error, asyncQueueSize),
		done:  make(chan struct{}),
		log:   log.With().Str("component", "persistence").Logger(),
	}
}

// Run processes writes until ctx is cancelled, then drains what is queued.
func (a *AsyncStore) Run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case job := <-a.jobs:
			a.exec(job)
		case <-ctx.Done():
			for {
				select {
				case job := <-a.jobs:
					a.exec(job)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (a *AsyncStore) Done() <-chan struct{} { return a.done }

func (a *AsyncStore) exec(job func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
	defer cancel()
	if err := job(ctx); err != nil {
		a.log.Error().Err(err).Msg("persistence write failed")
	}
}

func (a *AsyncStore) enqueue(what string, job func(ctx context.Context) error) {
	select {
	case a.jobs <- job:
	default:
		a.log.Warn().Str("write", what).Msg("persistence queue full, dropping write")
	}
}

func (a *AsyncStore) RecordMatchResult(r MatchResult) {
	a.enqueue("match_result", func(ctx context.Context) error {
		return a.store.SaveMatchResult(ctx, r)
	})
}

func (a *AsyncStore) RecordTournament(t *Tournament) {
	a.enqueue("tournament_snapshot", func(ctx context.Context) error {
		return a.store.UpsertTournamentSnapshot(ctx, t)
	})
}

// PlayerStats reads through to the wrapped store.
func (a *AsyncStore) PlayerStats(ctx context.Context, userID string) (PlayerStats, error) {
	return a.store.PlayerStats(ctx, userID)
}

// Load reads snapshots synchronously. Only used at startup.
func (a *AsyncStore) Load(ctx context.Context) ([]*Tournament, error) {
	return a.store.LoadTournamentSnapshots(ctx)
}
