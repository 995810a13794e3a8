package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"pong-arena/engine"
	"pong-arena/metrics"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	MaxTournamentPlayers = 4
	maxTournamentName    = 40
	maxStartsInMinutes   = 60
)

// TournamentConfig holds the timing and policy knobs of the orchestrator.
type TournamentConfig struct {
	Countdown     time.Duration
	InviteTimeout time.Duration
	// Cancel once this many players were eliminated for declining.
	DeclineCancelThreshold int
	NoShowRetries          int
	FinalRescueDelay       time.Duration
	// Terminal tournaments are forgotten this long after they end.
	Retention time.Duration
}

func DefaultTournamentConfig() TournamentConfig {
	return TournamentConfig{
		Countdown:              10 * time.Second,
		InviteTimeout:          30 * time.Second,
		DeclineCancelThreshold: 3,
		NoShowRetries:          3,
		FinalRescueDelay:       5 * time.Second,
		Retention:              time.Hour,
	}
}

// Archiver uploads the final JSON of a tournament.
type Archiver interface {
	Archive(ctx context.Context, key string, body []byte) error
}

type TournamentOption func(*TournamentService)

func WithTournamentClock(now func() time.Time) TournamentOption {
	return func(s *TournamentService) { s.now = now }
}

func WithTournamentConfig(cfg TournamentConfig) TournamentOption {
	return func(s *TournamentService) { s.cfg = cfg }
}

func WithArchiver(a Archiver) TournamentOption {
	return func(s *TournamentService) { s.archiver = a }
}

func WithTournamentMetrics(m metrics.ArenaMetrics) TournamentOption {
	return func(s *TournamentService) { s.metrics = m }
}

// TournamentService runs every tournament state machine. All tournament
// state is guarded by mu; time-based transitions only happen in Tick and
// Heal.
type TournamentService struct {
	mu          sync.Mutex
	tournaments map[string]*Tournament

	registry  *SessionRegistry
	locks     *ActivityLockService
	notifier  Notifier
	snapshots SnapshotRecorder
	names     NameResolver
	archiver  Archiver
	metrics   metrics.ArenaMetrics

	cfg TournamentConfig
	now func() time.Time
	log zerolog.Logger
}

func NewTournamentService(registry *SessionRegistry, locks *ActivityLockService, notifier Notifier, snapshots SnapshotRecorder, names NameResolver, opts ...TournamentOption) *TournamentService {
	s := &TournamentService{
		tournaments: make(map[string]*Tournament),
		registry:    registry,
		locks:       locks,
		notifier:    notifier,
		snapshots:   snapshots,
		names:       names,
		metrics:     metrics.Noop(),
		cfg:         DefaultTournamentConfig(),
		now:         time.Now,
		log:         log.With().Str("component", "tournaments").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if registry != nil {
		registry.OnResult(s.HandleMatchResult)
	}
	return s
}

// Restore loads non-terminal tournaments persisted before a restart.
func (s *TournamentService) Restore(loaded []*Tournament) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range loaded {
		if t == nil || t.ID == "" {
			continue
		}
		if t.Status.Terminal() {
			s.releaseLocks(t)
			s.persist(t)
			continue
		}
		if t.EliminationReasons == nil {
			t.EliminationReasons = make(map[string]EliminationReason)
		}
		s.tournaments[t.ID] = t
		n++
	}
	s.log.Info().Int("restored", n).Msg("tournaments restored from snapshots")
	return n
}

func (s *TournamentService) Get(id string) (*Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tournaments[id]
	if !ok {
		return nil, ErrTournamentNotFound
	}
	return t.Clone(), nil
}

// List returns every known tournament, newest first.
func (s *TournamentService) List() []*Tournament {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Tournament, 0, len(s.tournaments))
	for _, t := range s.tournaments {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// activeTournamentOf returns the tournament userID still competes in.
// Caller holds mu.
func (s *TournamentService) activeTournamentOf(userID string) *Tournament {
	for _, t := range s.tournaments {
		if !t.Status.Terminal() && t.IsPlayer(userID) && !t.IsEliminated(userID) {
			return t
		}
	}
	return nil
}

// Create opens a tournament that starts in startsInMinutes. The creator
// joins it.
func (s *TournamentService) Create(creator, name string, startsInMinutes int) (*Tournament, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxTournamentName || startsInMinutes < 1 || startsInMinutes > maxStartsInMinutes {
		return nil, ErrInvalidTournament
	}
	key := slug.Make(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tournaments {
		if t.Status == StatusWaiting && slug.Make(t.Name) == key {
			return nil, ErrTournamentName
		}
	}
	if s.activeTournamentOf(creator) != nil {
		return nil, ErrInOtherTournament
	}

	now := s.now()
	t := &Tournament{
		ID:                 uuid.NewString(),
		Name:               name,
		CreatedBy:          creator,
		CreatedAt:          now,
		StartsAt:           now.Add(time.Duration(startsInMinutes) * time.Minute),
		Status:             StatusWaiting,
		Players:            []string{creator},
		EliminationReasons: make(map[string]EliminationReason),
	}
	s.tournaments[t.ID] = t
	s.persist(t)
	s.metrics.AddTournamentTransition(string(StatusWaiting))
	s.notifier.Broadcast(EventTournamentCreated, t.Clone())
	s.log.Info().Str("tournament_id", t.ID).Str("name", name).Time("starts_at", t.StartsAt).Msg("tournament created")
	return t.Clone(), nil
}

func (s *TournamentService) Join(userID, id string) (*Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tournaments[id]
	if !ok {
		return nil, ErrTournamentNotFound
	}
	switch {
	case t.Status == StatusCountdown || t.Status == StatusRunning:
		return nil, ErrTournamentStarted
	case t.Status.Terminal():
		return nil, ErrTournamentClosed
	case t.IsPlayer(userID):
		return nil, ErrAlreadyJoined
	case len(t.Players) >= MaxTournamentPlayers:
		return nil, ErrTournamentFull
	case s.activeTournamentOf(userID) != nil:
		return nil, ErrInOtherTournament
	}

	t.Players = append(t.Players, userID)
	s.persist(t)
	s.pushUpdate(t)
	return t.Clone(), nil
}

// Leave is only allowed while waiting. The last player leaving cancels.
func (s *TournamentService) Leave(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tournaments[id]
	if !ok {
		return ErrTournamentNotFound
	}
	if !t.IsPlayer(userID) {
		return ErrNotParticipant
	}
	if t.Status != StatusWaiting {
		return ErrTournamentStarted
	}

	t.removePlayer(userID)
	if len(t.Players) == 0 {
		s.cancel(t, "all players left")
		return nil
	}
	s.persist(t)
	s.pushUpdate(t)
	s.notifier.SendToUser(userID, EventTournamentUpdate, t.Clone())
	return nil
}

// Respond records accept or decline for a bracket match invite.
func (s *TournamentService) Respond(userID, id string, key MatchKey, accept bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tournaments[id]
	if !ok {
		return ErrTournamentNotFound
	}
	if t.Status != StatusRunning {
		if t.Status.Terminal() {
			return ErrTournamentClosed
		}
		return ErrMatchInviteClosed
	}
	m := t.Match(key)
	if m == nil {
		return ErrUnknownMatchKey
	}
	side, ok := m.sideOf(userID)
	if !ok {
		return ErrNotParticipant
	}
	if m.Invite == nil {
		// a repeated accept after both sides already accepted
		if accept && (m.Status == SlotStarting || m.Status == SlotInProgress) {
			return nil
		}
		return ErrMatchInviteClosed
	}
	if t.IsEliminated(userID) {
		return ErrEliminated
	}

	answer := ResponseDeclined
	if accept {
		answer = ResponseAccepted
	}
	current := &m.Invite.P1Response
	if side == engine.P2 {
		current = &m.Invite.P2Response
	}
	if *current != ResponsePending {
		if *current == answer {
			return nil
		}
		return ErrMatchInviteClosed
	}
	*current = answer

	now := s.now()
	s.resolveInvite(t, m, now, false)
	s.evaluate(t, now)
	s.persist(t)
	s.pushUpdate(t)
	return nil
}

// Tick drives every time-based transition: start times, countdown end,
// invite expiry, delayed match starts and the final rescue check.
func (s *TournamentService) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tournaments {
		if s.advance(t, now) {
			s.persist(t)
			s.pushUpdate(t)
		}
	}
}

func (s *TournamentService) advance(t *Tournament, now time.Time) bool {
	switch t.Status {
	case StatusWaiting:
		if now.Before(t.StartsAt) {
			return false
		}
		if len(t.Players) < MaxTournamentPlayers {
			s.cancel(t, "not enough players")
			return false
		}
		s.startCountdown(t, now)
		return true

	case StatusCountdown:
		if now.Before(t.CountdownEndsAt) {
			return false
		}
		s.startRunning(t, now)
		return true

	case StatusRunning:
		changed := false
		for _, m := range t.Bracket.matches() {
			if m.Invite != nil && !now.Before(m.Invite.ExpiresAt) {
				s.resolveInvite(t, m, now, true)
				changed = true
			}
			if t.Status != StatusRunning {
				return false
			}
			if m.Status == SlotStarting && !now.Before(m.NextStartAt) {
				s.tryStart(t, m, now)
				changed = true
			}
		}
		if !t.FinalRescueAt.IsZero() && !now.Before(t.FinalRescueAt) {
			t.FinalRescueAt = time.Time{}
			s.ensureFinal(t, now)
			changed = true
		}
		if changed {
			s.evaluate(t, now)
		}
		return changed && !t.Status.Terminal()
	}
	return false
}

// Heal is the slow self-healing pass. It reapplies lock discipline,
// re-invites bracket matches whose room vanished, issues a missing final,
// and re-evaluates elimination state.
func (s *TournamentService) Heal(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tournaments {
		switch t.Status {
		case StatusCountdown:
			for _, p := range t.Players {
				s.locks.SetTournamentLock(p, true)
			}
		case StatusRunning:
			for _, p := range t.Players {
				s.locks.SetTournamentLock(p, !t.IsEliminated(p))
			}
			changed := false
			for _, m := range t.Bracket.matches() {
				if m.Status == SlotInProgress && !s.registry.Exists(m.RoomID) {
					s.log.Warn().Str("tournament_id", t.ID).Str("match", string(m.Key)).Str("room_id", m.RoomID).Msg("bracket room vanished, re-inviting")
					m.RoomID = ""
					s.issueInvite(t, m, now)
					changed = true
				}
			}
			if s.ensureFinal(t, now) {
				changed = true
			}
			before := t.Status
			s.evaluate(t, now)
			if changed || t.Status != before {
				s.persist(t)
				if !t.Status.Terminal() {
					s.pushUpdate(t)
				}
			}
		case StatusCompleted, StatusCancelled:
			if !t.LocksReleased {
				s.releaseLocks(t)
				s.persist(t)
			}
			if !t.EndedAt.IsZero() && now.Sub(t.EndedAt) > s.cfg.Retention {
				delete(s.tournaments, id)
			}
		}
	}
}

func (s *TournamentService) startCountdown(t *Tournament, now time.Time) {
	t.Status = StatusCountdown
	t.CountdownEndsAt = now.Add(s.cfg.Countdown)
	for _, p := range t.Players {
		s.locks.SetTournamentLock(p, true)
	}
	s.metrics.AddTournamentTransition(string(StatusCountdown))
	s.notifyPlayers(t, EventTournamentCountdown, map[string]any{
		"tournamentId": t.ID,
		"seconds":      int(s.cfg.Countdown.Seconds()),
	})
	s.log.Info().Str("tournament_id", t.ID).Msg("countdown started")
}

func (s *TournamentService) startRunning(t *Tournament, now time.Time) {
	t.Status = StatusRunning
	t.Bracket = seedBracket(t.Players, s.names)
	s.metrics.AddTournamentTransition(string(StatusRunning))
	s.notifyPlayers(t, EventTournamentStarted, map[string]any{
		"tournamentId": t.ID,
		"bracket":      t.Clone().Bracket,
	})
	for _, m := range []*BracketMatch{t.Bracket.Semi1, t.Bracket.Semi2} {
		if m != nil {
			s.issueInvite(t, m, now)
		}
	}
	s.log.Info().Str("tournament_id", t.ID).Msg("tournament running")
}

func (s *TournamentService) issueInvite(t *Tournament, m *BracketMatch, now time.Time) {
	m.Status = SlotInviting
	m.Invite = &MatchInvite{
		P1Response: ResponsePending,
		P2Response: ResponsePending,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.cfg.InviteTimeout),
	}
	for _, u := range []string{m.P1, m.P2} {
		side, _ := m.sideOf(u)
		opp := m.opponentOf(u)
		s.notifier.SendToUser(u, EventTournamentInvite, map[string]any{
			"tournamentId": t.ID,
			"matchKey":     m.Key,
			"you":          side,
			"opponent":     map[string]string{"userId": opp, "name": m.DisplayNames[opp]},
			"expiresAt":    m.Invite.ExpiresAt,
		})
	}
}

// resolveInvite applies the outcome of an invite once it is decided. A
// decline hands the slot to the other side whether it accepted or not.
func (s *TournamentService) resolveInvite(t *Tournament, m *BracketMatch, now time.Time, expired bool) {
	inv := m.Invite
	if inv == nil {
		return
	}
	r1, r2 := inv.P1Response, inv.P2Response

	switch {
	case r1 == ResponseAccepted && r2 == ResponseAccepted:
		m.Invite = nil
		m.Status = SlotStarting
		m.StartAttempts = 0
		m.NextStartAt = now
		s.tryStart(t, m, now)
	case r1 == ResponseDeclined && r2 == ResponseDeclined:
		s.voidMatch(t, m, ReasonDeclined, ReasonDeclined, now)
	case r1 == ResponseDeclined:
		s.walkover(t, m, m.P2, m.P1, ReasonDeclined, now)
	case r2 == ResponseDeclined:
		s.walkover(t, m, m.P1, m.P2, ReasonDeclined, now)
	case !expired:
		return
	case r1 == ResponseAccepted:
		s.walkover(t, m, m.P1, m.P2, ReasonNoResponse, now)
	case r2 == ResponseAccepted:
		s.walkover(t, m, m.P2, m.P1, ReasonNoResponse, now)
	default:
		s.voidMatch(t, m, ReasonNoResponse, ReasonNoResponse, now)
	}
}

// tryStart opens the room of a fully accepted match. A participant with no
// live connection is retried with backoff and finally counted as a no-show.
func (s *TournamentService) tryStart(t *Tournament, m *BracketMatch, now time.Time) {
	c1, ok1 := s.notifier.ConnForUser(m.P1)
	c2, ok2 := s.notifier.ConnForUser(m.P2)
	if !ok1 || !ok2 {
		m.StartAttempts++
		if m.StartAttempts <= s.cfg.NoShowRetries {
			m.NextStartAt = now.Add(noShowBackoff(m.StartAttempts))
			return
		}
		switch {
		case !ok1 && !ok2:
			s.voidMatch(t, m, ReasonNoShow, ReasonNoShow, now)
		case !ok1:
			s.walkover(t, m, m.P2, m.P1, ReasonNoShow, now)
		default:
			s.walkover(t, m, m.P1, m.P2, ReasonNoShow, now)
		}
		return
	}

	roomID, _, err := s.registry.CreateRemote(
		Participant{ConnID: c1, UserID: m.P1},
		Participant{ConnID: c2, UserID: m.P2},
		nil,
		RemoteOptions{MatchType: t.ID},
	)
	if err != nil {
		// still finishing another match, try again shortly
		m.NextStartAt = now.Add(2 * time.Second)
		s.log.Warn().Err(err).Str("tournament_id", t.ID).Str("match", string(m.Key)).Msg("bracket room not opened yet")
		return
	}
	m.RoomID = roomID
	m.Status = SlotInProgress
	m.StartAttempts = 0
	for _, p := range []Participant{{ConnID: c1, UserID: m.P1}, {ConnID: c2, UserID: m.P2}} {
		side, _ := m.sideOf(p.UserID)
		s.notifier.SendToConn(p.ConnID, EventMatched, map[string]any{
			"roomId":       roomID,
			"side":         side,
			"tournamentId": t.ID,
			"matchKey":     m.Key,
		})
	}
	s.log.Info().Str("tournament_id", t.ID).Str("match", string(m.Key)).Str("room_id", roomID).Msg("bracket match started")
}

func noShowBackoff(attempt int) time.Duration {
	d := time.Second << (attempt - 1)
	if d > 8*time.Second {
		d = 8 * time.Second
	}
	return d
}

func (s *TournamentService) walkover(t *Tournament, m *BracketMatch, winner, loser string, reason EliminationReason, now time.Time) {
	m.Invite = nil
	m.Winner = winner
	m.Status = SlotCompleted
	m.EndReason = "walkover"
	s.eliminate(t, loser, reason)
	s.slotResolved(t, m, now)
}

func (s *TournamentService) voidMatch(t *Tournament, m *BracketMatch, r1, r2 EliminationReason, now time.Time) {
	m.Invite = nil
	m.Status = SlotVoid
	s.eliminate(t, m.P1, r1)
	s.eliminate(t, m.P2, r2)
	s.slotResolved(t, m, now)
}

func (s *TournamentService) eliminate(t *Tournament, userID string, reason EliminationReason) {
	if t.eliminate(userID, reason) {
		s.locks.SetTournamentLock(userID, false)
		s.log.Info().Str("tournament_id", t.ID).Str("user_id", userID).Str("reason", string(reason)).Msg("player eliminated")
	}
}

func (s *TournamentService) slotResolved(t *Tournament, m *BracketMatch, now time.Time) {
	if m.Key == MatchFinal {
		return
	}
	s.ensureFinal(t, now)
	t.FinalRescueAt = now.Add(s.cfg.FinalRescueDelay)
}

// ensureFinal seeds and invites the final once both semifinal winners are
// known. Calling it again is a no-op.
func (s *TournamentService) ensureFinal(t *Tournament, now time.Time) bool {
	if t.Status != StatusRunning {
		return false
	}
	seedFinal(t.Bracket, s.names)
	f := t.Bracket.Final
	if f == nil || f.P1 == "" || f.Status != SlotPending {
		return false
	}
	s.issueInvite(t, f, now)
	s.log.Info().Str("tournament_id", t.ID).Str("p1", f.P1).Str("p2", f.P2).Msg("final invite issued")
	return true
}

// evaluate applies the decline cascade and bracket completion rules.
func (s *TournamentService) evaluate(t *Tournament, now time.Time) {
	if t.Status != StatusRunning {
		return
	}
	if t.declineCount() >= s.cfg.DeclineCancelThreshold {
		s.cancel(t, "insufficient willing participants")
		return
	}
	s1, s2, f := t.Bracket.Semi1, t.Bracket.Semi2, t.Bracket.Final
	if s1 == nil || s2 == nil || !s1.resolved() || !s2.resolved() {
		return
	}

	var winners []string
	for _, m := range []*BracketMatch{s1, s2} {
		if m.Winner != "" {
			winners = append(winners, m.Winner)
		}
	}
	switch len(winners) {
	case 0:
		s.cancel(t, "no remaining participants")
	case 1:
		s.complete(t, winners[0], now)
	default:
		switch {
		case f == nil:
			s.cancel(t, "bracket has no final")
		case f.Status == SlotCompleted:
			s.complete(t, f.Winner, now)
		case f.Status == SlotVoid:
			s.cancel(t, "final not played")
		}
	}
}

// HandleMatchResult feeds a finished room back into its bracket.
func (s *TournamentService) HandleMatchResult(result MatchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, m := s.findRoom(result)
	if t == nil || m == nil || t.Status != StatusRunning || m.resolved() {
		return
	}

	winner := result.WinnerID
	if winner == "" {
		switch {
		case result.Score.P1 > result.Score.P2:
			winner = result.P1
		case result.Score.P2 > result.Score.P1:
			winner = result.P2
		}
	}
	if _, ok := m.sideOf(winner); !ok {
		s.log.Warn().Str("tournament_id", t.ID).Str("room_id", result.RoomID).Msg("match result without a bracket winner, re-inviting")
		m.RoomID = ""
		s.issueInvite(t, m, s.now())
		s.persist(t)
		s.pushUpdate(t)
		return
	}

	now := s.now()
	score := result.Score
	if result.P1 != m.P1 {
		score.P1, score.P2 = score.P2, score.P1
	}
	m.Score = &score
	m.EndReason = string(result.EndReason)
	m.Winner = winner
	m.Status = SlotCompleted
	s.eliminate(t, m.opponentOf(winner), ReasonLost)
	s.slotResolved(t, m, now)
	s.evaluate(t, now)
	s.persist(t)
	if !t.Status.Terminal() {
		s.pushUpdate(t)
	}
}

// findRoom locates the bracket match a room belongs to. Caller holds mu.
func (s *TournamentService) findRoom(result MatchResult) (*Tournament, *BracketMatch) {
	match := func(t *Tournament) *BracketMatch {
		for _, m := range t.Bracket.matches() {
			if m.RoomID != "" && m.RoomID == result.RoomID {
				return m
			}
		}
		return nil
	}
	if t, ok := s.tournaments[result.MatchType]; ok {
		return t, match(t)
	}
	for _, t := range s.tournaments {
		if m := match(t); m != nil {
			return t, m
		}
	}
	return nil, nil
}

func (s *TournamentService) complete(t *Tournament, winner string, now time.Time) {
	t.Status = StatusCompleted
	t.EndedAt = now
	t.FinalRescueAt = time.Time{}

	var runnersUp []string
	if f := t.Bracket.Final; f != nil && f.Status == SlotCompleted && f.Winner == winner {
		runnersUp = append(runnersUp, f.opponentOf(winner))
	}
	for _, p := range t.Eliminated {
		if p != winner && !contains(runnersUp, p) {
			runnersUp = append(runnersUp, p)
		}
	}
	t.Result = &TournamentResult{Winner: winner, RunnersUp: runnersUp, CompletedAt: now}

	s.releaseLocks(t)
	s.metrics.AddTournamentTransition(string(StatusCompleted))
	s.notifyPlayers(t, EventTournamentCompleted, map[string]any{
		"tournamentId": t.ID,
		"result":       t.Result,
		"bracket":      t.Clone().Bracket,
	})
	s.persist(t)
	s.archive(t)
	s.log.Info().Str("tournament_id", t.ID).Str("winner", winner).Msg("tournament completed")
}

func (s *TournamentService) cancel(t *Tournament, reason string) {
	t.Status = StatusCancelled
	t.CancelReason = reason
	t.FinalRescueAt = time.Time{}
	for _, m := range t.Bracket.matches() {
		m.Invite = nil
	}
	t.EndedAt = s.now()

	s.releaseLocks(t)
	s.metrics.AddTournamentTransition(string(StatusCancelled))
	s.notifyPlayers(t, EventTournamentCancelled, map[string]any{
		"tournamentId": t.ID,
		"reason":       reason,
	})
	s.persist(t)
	s.archive(t)
	s.log.Info().Str("tournament_id", t.ID).Str("reason", reason).Msg("tournament cancelled")
}

// releaseLocks clears the tournament lock of every player and any match
// lock not backed by a live session. Runs once per tournament.
func (s *TournamentService) releaseLocks(t *Tournament) {
	if t.LocksReleased {
		return
	}
	for _, p := range t.Players {
		s.locks.SetTournamentLock(p, false)
		if s.locks.Get(p).InMatch && (s.registry == nil || !s.registry.InSession(p)) {
			s.locks.ForceClear(p)
		}
	}
	t.LocksReleased = true
}

func (s *TournamentService) persist(t *Tournament) {
	t.Version++
	if s.snapshots != nil {
		s.snapshots.RecordTournament(t.Clone())
	}
}

func (s *TournamentService) archive(t *Tournament) {
	if s.archiver == nil {
		return
	}
	body, err := json.Marshal(t)
	if err != nil {
		s.log.Error().Err(err).Str("tournament_id", t.ID).Msg("failed to encode tournament archive")
		return
	}
	key := "tournaments/" + t.ID + ".json"
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.archiver.Archive(ctx, key, body); err != nil {
			s.log.Error().Err(err).Str("key", key).Msg("tournament archive upload failed")
		}
	}()
}

func (s *TournamentService) notifyPlayers(t *Tournament, event string, payload any) {
	for _, p := range t.Players {
		s.notifier.SendToUser(p, event, payload)
	}
}

func (s *TournamentService) pushUpdate(t *Tournament) {
	s.notifyPlayers(t, EventTournamentUpdate, map[string]any{
		"tournamentId": t.ID,
		"status":       t.Status,
		"players":      append([]string(nil), t.Players...),
		"bracket":      t.Clone().Bracket,
	})
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
