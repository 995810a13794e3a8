package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"pong-arena/engine"
	"pong-arena/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minSessionAge      = 500 * time.Millisecond
	defaultIdleTimeout = 10 * time.Minute
)

// RemoteOptions tags a remote session.
type RemoteOptions struct {
	MatchType string
}

type RegistryOption func(*SessionRegistry)

func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *SessionRegistry) { r.now = now }
}

func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *SessionRegistry) { r.idleTimeout = d }
}

func WithRegistryMetrics(m metrics.ArenaMetrics) RegistryOption {
	return func(r *SessionRegistry) { r.metrics = m }
}

// WithSessionOptions is applied to every session the registry creates.
func WithSessionOptions(opts ...SessionOption) RegistryOption {
	return func(r *SessionRegistry) { r.sessionOpts = append(r.sessionOpts, opts...) }
}

// WithManualTicks keeps sessions from starting their own tick loop. Tests
// drive Session.Step directly.
func WithManualTicks() RegistryOption {
	return func(r *SessionRegistry) { r.manualTicks = true }
}

// SessionRegistry creates, deduplicates and destroys match sessions.
// At most one live session exists per unordered user pair.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	pairs    map[string]string
	ctx      context.Context

	notifier  Notifier
	locks     *ActivityLockService
	results   ResultRecorder
	listeners []func(MatchResult)

	now         func() time.Time
	idleTimeout time.Duration
	sessionOpts []SessionOption
	manualTicks bool
	metrics     metrics.ArenaMetrics
	log         zerolog.Logger
}

func NewSessionRegistry(ctx context.Context, notifier Notifier, locks *ActivityLockService, results ResultRecorder, opts ...RegistryOption) *SessionRegistry {
	r := &SessionRegistry{
		sessions:    make(map[string]*Session),
		pairs:       make(map[string]string),
		ctx:         ctx,
		notifier:    notifier,
		locks:       locks,
		results:     results,
		now:         time.Now,
		idleTimeout: defaultIdleTimeout,
		metrics:     metrics.Noop(),
		log:         log.With().Str("component", "registry").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnResult registers fn to receive every finished match result.
// Must be called before sessions are created.
func (r *SessionRegistry) OnResult(fn func(MatchResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func pairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "|")
}

// CreateLocal starts a single-screen match for one connection. A previous
// local match of the same connection is ended first.
func (r *SessionRegistry) CreateLocal(owner Participant, settings engine.Settings) (string, error) {
	if r.locks != nil && r.locks.IsLocked(owner.UserID).Locked {
		return "", ErrUserBusy
	}

	var previous []*Session
	r.mu.Lock()
	for _, s := range r.sessions {
		if s != nil && s.Local && s.HasConn(owner.ConnID) {
			previous = append(previous, s)
		}
	}
	r.mu.Unlock()
	for _, s := range previous {
		s.ForceEnd(engine.EndExited, engine.P1)
	}

	s := r.newSession(owner, owner, settings, true, MatchTypeLocal)
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	r.start(s)
	r.log.Info().Str("room_id", s.ID).Str("user_id", owner.UserID).Msg("local session created")
	return s.ID, nil
}

// CreateRemote returns the live session of the pair, rebinding its
// connections, or creates a new one and locks both users for the match.
// reused is true when an existing session was returned.
func (r *SessionRegistry) CreateRemote(p1, p2 Participant, settings *engine.Settings, opts RemoteOptions) (id string, reused bool, err error) {
	if p1.UserID == "" || p2.UserID == "" || p1.UserID == p2.UserID {
		return "", false, ErrSelfPairing
	}
	if opts.MatchType == "" {
		opts.MatchType = MatchTypeDirect
	}
	cfg := engine.DefaultSettings()
	if settings != nil {
		cfg = settings.WithDefaults()
	}

	key := pairKey(p1.UserID, p2.UserID)

	r.mu.Lock()
	if existingID, ok := r.pairs[key]; ok {
		existing := r.sessions[existingID]
		if existing != nil && !existing.IsOver() {
			existing.Rebind(p1, p2)
			r.mu.Unlock()
			r.log.Debug().Str("room_id", existingID).Msg("reused live session for pair")
			return existingID, true, nil
		}
		r.removeLocked(existingID)
	}
	if r.locks != nil && !r.locks.TryLockForMatch(p1.UserID, p2.UserID) {
		r.mu.Unlock()
		return "", false, ErrUserBusy
	}
	s := r.newSession(p1, p2, cfg, false, opts.MatchType)
	r.sessions[s.ID] = s
	r.pairs[key] = s.ID
	r.mu.Unlock()

	r.start(s)
	r.log.Info().
		Str("room_id", s.ID).
		Str("p1", p1.UserID).
		Str("p2", p2.UserID).
		Str("match_type", opts.MatchType).
		Msg("remote session created")
	return s.ID, false, nil
}

func (r *SessionRegistry) newSession(p1, p2 Participant, settings engine.Settings, local bool, matchType string) *Session {
	opts := append([]SessionOption{WithSessionClock(r.now), WithSessionMetrics(r.metrics)}, r.sessionOpts...)
	s := newSession(uuid.NewString(), p1, p2, settings, local, matchType, r.notifier, opts...)
	s.onFinish = r.handleFinished
	return s
}

func (r *SessionRegistry) start(s *Session) {
	if r.manualTicks {
		return
	}
	go s.Run(r.ctx)
}

// handleFinished runs once per session, outside any registry lock. The room
// stays registered until every listener has seen the result.
func (r *SessionRegistry) handleFinished(s *Session, result MatchResult) {
	r.metrics.AddMatchFinished(result.MatchType, string(result.EndReason))
	if !result.Local {
		if r.locks != nil {
			r.locks.UnlockFromMatch(result.P1, result.P2)
		}
		if r.results != nil {
			r.results.RecordMatchResult(result)
		}
		r.mu.Lock()
		listeners := append([]func(MatchResult){}, r.listeners...)
		r.mu.Unlock()
		for _, fn := range listeners {
			fn(result)
		}
	}

	r.mu.Lock()
	r.removeLocked(s.ID)
	r.mu.Unlock()
}

// removeLocked drops a session from both indexes and stops its loop.
// Caller holds mu.
func (r *SessionRegistry) removeLocked(id string) {
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	for k, v := range r.pairs {
		if v == id {
			delete(r.pairs, k)
		}
	}
	if ok && s != nil {
		s.Stop()
	}
}

// Delete tears down a session. Sessions younger than 500ms are kept, a
// stale cleanup racing their creation must not remove them.
func (r *SessionRegistry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok || s == nil {
		r.mu.Unlock()
		return ErrRoomNotFound
	}
	if r.now().Sub(s.CreatedAt) < minSessionAge {
		r.mu.Unlock()
		return ErrSessionTooYoung
	}
	r.removeLocked(id)
	r.mu.Unlock()

	r.releaseUnfinished(s)
	return nil
}

// releaseUnfinished unlocks the users of a remote session that was torn
// down without producing a result.
func (r *SessionRegistry) releaseUnfinished(s *Session) {
	if s.Local || s.IsOver() || r.locks == nil {
		return
	}
	p1, p2 := s.Participants()
	r.locks.UnlockFromMatch(p1.UserID, p2.UserID)
}

func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok && s != nil
}

// Exists reports whether a live or finished session with id is registered.
func (r *SessionRegistry) Exists(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// InSession reports whether userID plays in any session that is not over.
func (r *SessionRegistry) InSession(userID string) bool {
	for _, s := range r.snapshot() {
		if _, ok := s.SideOfUser(userID); ok && !s.IsOver() {
			return true
		}
	}
	return false
}

func (r *SessionRegistry) snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Ready forwards a start signal.
func (r *SessionRegistry) Ready(roomID, userID string) error {
	s, ok := r.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	return s.Ready(userID)
}

// Input forwards a key press or release.
func (r *SessionRegistry) Input(roomID, userID string, side engine.Side, key string, pressed bool) error {
	s, ok := r.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	return s.Input(userID, side, key, pressed)
}

// Leave ends the match with reason exited. Without a room id every session
// of the connection is left.
func (r *SessionRegistry) Leave(roomID string, who Participant) error {
	var targets []*Session
	if roomID != "" {
		s, ok := r.Get(roomID)
		if !ok {
			return ErrRoomNotFound
		}
		targets = append(targets, s)
	} else {
		for _, s := range r.snapshot() {
			if s.HasConn(who.ConnID) {
				targets = append(targets, s)
			}
		}
		if len(targets) == 0 {
			return ErrRoomNotFound
		}
	}

	for _, s := range targets {
		side, ok := s.SideOfUser(who.UserID)
		if !ok {
			return ErrSideNotAllowed
		}
		s.ForceEnd(engine.EndExited, side)
	}
	return nil
}

// HandleDisconnect forces a loss on every session the connection plays in.
func (r *SessionRegistry) HandleDisconnect(connID string) {
	for _, s := range r.snapshot() {
		side, ok := s.SideOfConn(connID)
		if !ok {
			continue
		}
		if s.ForceEnd(engine.EndDisconnected, side) {
			r.log.Info().Str("room_id", s.ID).Str("side", string(side)).Msg("participant disconnected, match forfeited")
		}
	}
}

// ExpireStale deletes sessions that never started within the idle timeout
// and finished sessions that are still registered.
func (r *SessionRegistry) ExpireStale(now time.Time) int {
	var expired []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s == nil {
			r.removeLocked(id)
			continue
		}
		age := now.Sub(s.CreatedAt)
		if age < minSessionAge {
			continue
		}
		if s.IsOver() || (!s.Started() && age >= r.idleTimeout) {
			r.removeLocked(id)
			expired = append(expired, s)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		r.releaseUnfinished(s)
		r.log.Info().Str("room_id", s.ID).Msg("session expired")
	}
	return len(expired)
}

// RoomCount returns the number of registered sessions, pruning any entry
// that lost its session.
func (r *SessionRegistry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	return len(r.sessions)
}

func (r *SessionRegistry) RoomStatus() []RoomStatus {
	r.mu.Lock()
	r.pruneLocked()
	r.mu.Unlock()

	now := r.now()
	sessions := r.snapshot()
	out := make([]RoomStatus, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Status(now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgeSeconds > out[j].AgeSeconds })
	return out
}

func (r *SessionRegistry) pruneLocked() {
	for id, s := range r.sessions {
		if s == nil {
			delete(r.sessions, id)
		}
	}
	for k, id := range r.pairs {
		if _, ok := r.sessions[id]; !ok {
			delete(r.pairs, k)
		}
	}
}
