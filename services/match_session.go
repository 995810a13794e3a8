package services

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"pong-arena/engine"
	"pong-arena/metrics"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	MatchTypeLocal       = "local"
	MatchTypeMatchmaking = "matchmaking"
	MatchTypeDirect      = "direct"

	KeyUp   = "up"
	KeyDown = "down"

	scorePause       = 500 * time.Millisecond
	localAutoStart   = 700 * time.Millisecond
	remoteAutoStart  = 3 * time.Second
	defaultTickEvery = time.Second / 60
)

// MatchResult is emitted exactly once per session.
type MatchResult struct {
	RoomID    string           `json:"roomId"`
	MatchType string           `json:"matchType"`
	Local     bool             `json:"local"`
	P1        string           `json:"p1"`
	P2        string           `json:"p2"`
	Score     engine.Score     `json:"score"`
	Winner    engine.Side      `json:"winner,omitempty"`
	WinnerID  string           `json:"winnerId,omitempty"`
	LoserID   string           `json:"loserId,omitempty"`
	EndReason engine.EndReason `json:"endReason"`
	StartedAt time.Time        `json:"startedAt"`
	EndedAt   time.Time        `json:"endedAt"`
}

// MatchSnapshot is pushed to both participants after every tick.
type MatchSnapshot struct {
	RoomID string       `json:"roomId"`
	State  engine.State `json:"state"`
}

// RoomStatus is a read-only view of a live session.
type RoomStatus struct {
	RoomID     string       `json:"roomId"`
	MatchType  string       `json:"matchType"`
	Players    []string     `json:"players"`
	Started    bool         `json:"started"`
	Over       bool         `json:"over"`
	Score      engine.Score `json:"score"`
	AgeSeconds int          `json:"ageSeconds"`
}

type SessionOption func(*Session)

// WithSessionClock replaces time.Now for deterministic tests.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithSessionRand fixes the serve randomness.
func WithSessionRand(rnd engine.RandFunc) SessionOption {
	return func(s *Session) { s.rnd = rnd }
}

func WithTickInterval(d time.Duration) SessionOption {
	return func(s *Session) { s.tickEvery = d }
}

func WithSessionMetrics(m metrics.ArenaMetrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// Session owns one match. State is only mutated under mu, from Step or from
// the input and termination methods.
type Session struct {
	ID        string
	MatchType string
	Local     bool
	Settings  engine.Settings
	CreatedAt time.Time

	mu          sync.Mutex
	p1, p2      Participant
	state       engine.State
	held        map[engine.Side]map[string]struct{}
	ready       map[engine.Side]bool
	autoStartAt time.Time
	resumeAt    time.Time
	startedAt   time.Time
	endedAt     time.Time
	resultSaved bool
	cancel      context.CancelFunc

	notifier  Notifier
	onFinish  func(*Session, MatchResult)
	now       func() time.Time
	rnd       engine.RandFunc
	tickEvery time.Duration
	metrics   metrics.ArenaMetrics
	log       zerolog.Logger
}

func newSession(id string, p1, p2 Participant, settings engine.Settings, local bool, matchType string, notifier Notifier, opts ...SessionOption) *Session {
	s := &Session{
		ID:        id,
		MatchType: matchType,
		Local:     local,
		Settings:  settings.WithDefaults(),
		p1:        p1,
		p2:        p2,
		held: map[engine.Side]map[string]struct{}{
			engine.P1: {},
			engine.P2: {},
		},
		ready:     make(map[engine.Side]bool),
		notifier:  notifier,
		now:       time.Now,
		rnd:       rand.Float64,
		tickEvery: defaultTickEvery,
		metrics:   metrics.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.CreatedAt = s.now()
	wait := remoteAutoStart
	if local {
		wait = localAutoStart
	}
	s.autoStartAt = s.CreatedAt.Add(wait)
	serveToward := engine.P1
	if s.rnd() < 0.5 {
		serveToward = engine.P2
	}
	s.state = engine.NewState(s.Settings, serveToward, s.rnd)
	s.log = log.With().Str("component", "session").Str("room_id", id).Logger()
	return s
}

// Participants returns the current p1 and p2 handles.
func (s *Session) Participants() (Participant, Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p1, s.p2
}

// Rebind swaps in fresh connection handles, keeping the side assignment of
// each user.
func (s *Session) Rebind(a, b Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range []Participant{a, b} {
		switch p.UserID {
		case s.p1.UserID:
			s.p1.ConnID = p.ConnID
		case s.p2.UserID:
			s.p2.ConnID = p.ConnID
		}
	}
}

// SideOfUser reports which side userID plays. Local sessions have no
// remote opponent, so the owner maps to p1.
func (s *Session) SideOfUser(userID string) (engine.Side, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch userID {
	case s.p1.UserID:
		return engine.P1, true
	case s.p2.UserID:
		return engine.P2, true
	}
	return "", false
}

// SideOfConn reports which side a connection drives.
func (s *Session) SideOfConn(connID string) (engine.Side, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch connID {
	case s.p1.ConnID:
		return engine.P1, true
	case s.p2.ConnID:
		return engine.P2, true
	}
	return "", false
}

// HasConn reports whether connID is one of the participant connections.
func (s *Session) HasConn(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p1.ConnID == connID || s.p2.ConnID == connID
}

func (s *Session) State() engine.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsOver() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Over
}

func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Started
}

// EndedAt is zero until the session is over.
func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

func (s *Session) Status(now time.Time) RoomStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	players := []string{s.p1.UserID}
	if !s.Local {
		players = append(players, s.p2.UserID)
	}
	return RoomStatus{
		RoomID:     s.ID,
		MatchType:  s.MatchType,
		Players:    players,
		Started:    s.state.Started,
		Over:       s.state.Over,
		Score:      s.state.Score,
		AgeSeconds: int(now.Sub(s.CreatedAt).Seconds()),
	}
}

// Ready records the start signal of a participant. Local sessions start on
// the owner's signal; remote sessions once both sides are ready.
func (s *Session) Ready(userID string) error {
	side, ok := s.SideOfUser(userID)
	if !ok {
		return ErrSideNotAllowed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Started || s.state.Over {
		return nil
	}
	s.ready[side] = true
	if s.Local || (s.ready[engine.P1] && s.ready[engine.P2]) {
		s.startLocked(s.now())
	}
	return nil
}

func (s *Session) startLocked(now time.Time) {
	s.state.Started = true
	s.startedAt = now
	s.log.Debug().Msg("match started")
}

// Input applies a key press or release. Remote participants may only drive
// their own side; the owner of a local session drives both.
func (s *Session) Input(userID string, side engine.Side, key string, pressed bool) error {
	if key != KeyUp && key != KeyDown {
		return ErrInvalidPayload
	}
	own, ok := s.SideOfUser(userID)
	if !ok {
		return ErrSideNotAllowed
	}
	if side == "" {
		side = own
	}
	if !side.Valid() || (!s.Local && side != own) {
		return ErrSideNotAllowed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if pressed {
		s.held[side][key] = struct{}{}
	} else {
		delete(s.held[side], key)
	}
	return nil
}

// inputs converts held key sets into engine input. Caller holds mu.
func (s *Session) inputs() engine.Inputs {
	in := func(side engine.Side) engine.Input {
		_, up := s.held[side][KeyUp]
		_, down := s.held[side][KeyDown]
		return engine.Input{Up: up, Down: down}
	}
	return engine.Inputs{P1: in(engine.P1), P2: in(engine.P2)}
}

// Step runs one tick at the given time.
func (s *Session) Step(now time.Time) {
	s.mu.Lock()
	if s.state.Over {
		s.mu.Unlock()
		return
	}
	if !s.state.Started && !now.Before(s.autoStartAt) {
		s.startLocked(now)
	}
	if s.state.Paused && !now.Before(s.resumeAt) {
		s.state.Paused = false
	}

	prev := s.state
	res := engine.Step(s.state, s.Settings, s.inputs(), s.rnd)
	s.state = res.State
	if res.Scored && !s.state.Over {
		s.state.Paused = true
		s.resumeAt = now.Add(scorePause)
	}

	var result *MatchResult
	if s.state.Over {
		result = s.finalizeLocked(now)
	}
	snap := s.state
	push := snap.Started || snap != prev
	s.mu.Unlock()

	if push || result != nil {
		s.pushState(snap)
	}
	if result != nil {
		s.finish(*result)
	}
}

// ForceEnd terminates the match with reason, awarding the win to the side
// opposite loser. It returns false if the match was already over.
func (s *Session) ForceEnd(reason engine.EndReason, loser engine.Side) bool {
	s.mu.Lock()
	if s.state.Over {
		s.mu.Unlock()
		return false
	}
	if !s.Local {
		winner := loser.Opponent()
		if s.state.Score.Of(winner) < s.Settings.WinScore {
			s.state.Score.Set(winner, s.Settings.WinScore)
		}
		s.state.Winner = winner
	}
	s.state.Over = true
	s.state.EndReason = reason
	result := s.finalizeLocked(s.now())
	snap := s.state
	s.mu.Unlock()

	s.pushState(snap)
	if result != nil {
		s.finish(*result)
	}
	return true
}

// finalizeLocked builds the result once. Caller holds mu.
func (s *Session) finalizeLocked(now time.Time) *MatchResult {
	if s.resultSaved {
		return nil
	}
	s.resultSaved = true
	s.endedAt = now
	r := MatchResult{
		RoomID:    s.ID,
		MatchType: s.MatchType,
		Local:     s.Local,
		P1:        s.p1.UserID,
		P2:        s.p2.UserID,
		Score:     s.state.Score,
		Winner:    s.state.Winner,
		EndReason: s.state.EndReason,
		StartedAt: s.startedAt,
		EndedAt:   now,
	}
	switch s.state.Winner {
	case engine.P1:
		r.WinnerID, r.LoserID = s.p1.UserID, s.p2.UserID
	case engine.P2:
		r.WinnerID, r.LoserID = s.p2.UserID, s.p1.UserID
	}
	return &r
}

func (s *Session) finish(result MatchResult) {
	s.log.Info().
		Str("end_reason", string(result.EndReason)).
		Int("p1", result.Score.P1).
		Int("p2", result.Score.P2).
		Msg("match over")
	s.Stop()
	if s.onFinish != nil {
		s.onFinish(s, result)
	}
}

func (s *Session) pushState(st engine.State) {
	if s.notifier == nil {
		return
	}
	p1, p2 := s.Participants()
	snap := MatchSnapshot{RoomID: s.ID, State: st}
	s.notifier.SendToConn(p1.ConnID, EventMatchState, snap)
	if p2.ConnID != p1.ConnID {
		s.notifier.SendToConn(p2.ConnID, EventMatchState, snap)
	}
}

// Run drives Step at the configured tick rate until the match ends or ctx
// is cancelled.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	ticker := time.NewTicker(s.tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			began := time.Now()
			s.Step(s.now())
			s.metrics.ObserveTickDuration(time.Since(began))
			if s.IsOver() {
				return
			}
		}
	}
}

// Stop halts the tick loop without touching match state.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
