package services

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type LockReason string

const (
	LockNone       LockReason = "none"
	LockMatch      LockReason = "match"
	LockTournament LockReason = "tournament"

	// LockInvite only tags invite notifications. IsLocked never reports it.
	LockInvite LockReason = "invite"
)

// LockState answers "may this user start something new".
type LockState struct {
	Locked bool       `json:"locked"`
	Reason LockReason `json:"reason"`
}

// ActivityLock is the busy-state of one user.
type ActivityLock struct {
	InMatch          bool   `json:"inMatch"`
	TournamentLocked bool   `json:"tournamentLocked"`
	PendingInviteID  string `json:"pendingInviteId,omitempty"`
}

func (l ActivityLock) state() LockState {
	switch {
	case l.InMatch:
		return LockState{Locked: true, Reason: LockMatch}
	case l.TournamentLocked:
		return LockState{Locked: true, Reason: LockTournament}
	default:
		return LockState{Reason: LockNone}
	}
}

type lockChange struct {
	userID  string
	reason  LockReason
	locked  bool
	after   LockState
	pending bool
}

func changeOf(userID string, reason LockReason, locked bool, l *ActivityLock) lockChange {
	return lockChange{userID: userID, reason: reason, locked: locked, after: l.state(), pending: l.PendingInviteID != ""}
}

// ActivityLockService is the single authority on whether a user may be
// admitted into a new match, invite or tournament.
type ActivityLockService struct {
	mu       sync.Mutex
	locks    map[string]*ActivityLock
	reset    map[string]struct{}
	notifier Notifier
	log      zerolog.Logger
}

func NewActivityLockService(notifier Notifier) *ActivityLockService {
	return &ActivityLockService{
		locks:    make(map[string]*ActivityLock),
		reset:    make(map[string]struct{}),
		notifier: notifier,
		log:      log.With().Str("component", "locks").Logger(),
	}
}

// lockFor returns the record for userID, creating it on first reference.
// Caller holds mu.
func (s *ActivityLockService) lockFor(userID string) *ActivityLock {
	l, ok := s.locks[userID]
	if !ok {
		l = &ActivityLock{}
		s.locks[userID] = l
	}
	return l
}

func (s *ActivityLockService) Get(userID string) ActivityLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[userID]; ok {
		return *l
	}
	return ActivityLock{}
}

func (s *ActivityLockService) IsLocked(userID string) LockState {
	return s.Get(userID).state()
}

// IsBusyForInvite is true while in a match, tournament-locked, or holding a
// pending invite.
func (s *ActivityLockService) IsBusyForInvite(userID string) bool {
	l := s.Get(userID)
	return l.InMatch || l.TournamentLocked || l.PendingInviteID != ""
}

// TryLockForMatch locks both users for a match only if neither is already
// in one. It reports whether the lock was taken.
func (s *ActivityLockService) TryLockForMatch(u1, u2 string) bool {
	s.mu.Lock()
	if s.lockFor(u1).InMatch || s.lockFor(u2).InMatch {
		s.mu.Unlock()
		return false
	}
	changes := s.setMatchLocked(true, u1, u2)
	s.mu.Unlock()
	s.emit(changes)
	return true
}

// LockForMatch marks both sides of a pairing as in a match.
func (s *ActivityLockService) LockForMatch(u1, u2 string) {
	s.mu.Lock()
	changes := s.setMatchLocked(true, u1, u2)
	s.mu.Unlock()
	s.emit(changes)
}

// UnlockFromMatch releases both sides of a pairing.
func (s *ActivityLockService) UnlockFromMatch(u1, u2 string) {
	s.mu.Lock()
	changes := s.setMatchLocked(false, u1, u2)
	s.mu.Unlock()
	s.emit(changes)
}

func (s *ActivityLockService) setMatchLocked(locked bool, users ...string) []lockChange {
	var changes []lockChange
	for _, u := range users {
		if u == "" {
			continue
		}
		l := s.lockFor(u)
		if l.InMatch == locked {
			continue
		}
		l.InMatch = locked
		changes = append(changes, changeOf(u, LockMatch, locked, l))
	}
	return changes
}

// SetPendingInvite records an outstanding invite on both users. It fails
// if either already holds one.
func (s *ActivityLockService) SetPendingInvite(inviter, recipient, inviteID string) error {
	s.mu.Lock()
	a, b := s.lockFor(inviter), s.lockFor(recipient)
	if a.PendingInviteID != "" || b.PendingInviteID != "" {
		s.mu.Unlock()
		return ErrDuplicateInvite
	}
	a.PendingInviteID = inviteID
	b.PendingInviteID = inviteID
	changes := []lockChange{
		changeOf(inviter, LockInvite, true, a),
		changeOf(recipient, LockInvite, true, b),
	}
	s.mu.Unlock()
	s.emit(changes)
	return nil
}

// ClearPendingInvite clears inviteID from the given users. A user holding a
// different invite is left alone.
func (s *ActivityLockService) ClearPendingInvite(inviteID string, users ...string) {
	var changes []lockChange
	s.mu.Lock()
	for _, u := range users {
		if l, ok := s.locks[u]; ok && inviteID != "" && l.PendingInviteID == inviteID {
			l.PendingInviteID = ""
			changes = append(changes, changeOf(u, LockInvite, false, l))
		}
	}
	s.mu.Unlock()
	s.emit(changes)
}

// SetTournamentLock is a no-op when the state is already as requested.
func (s *ActivityLockService) SetTournamentLock(userID string, locked bool) {
	s.mu.Lock()
	l := s.lockFor(userID)
	if l.TournamentLocked == locked {
		s.mu.Unlock()
		return
	}
	l.TournamentLocked = locked
	change := changeOf(userID, LockTournament, locked, l)
	s.mu.Unlock()
	s.emit([]lockChange{change})
}

// ForceClear drops both the tournament and match locks of a user.
func (s *ActivityLockService) ForceClear(userID string) {
	s.mu.Lock()
	changes := s.setMatchLocked(false, userID)
	l := s.lockFor(userID)
	if l.TournamentLocked {
		l.TournamentLocked = false
		changes = append(changes, changeOf(userID, LockTournament, false, l))
	}
	s.mu.Unlock()
	s.emit(changes)
}

// ResetLocksForUser clears match and invite residue the first time a user
// connects after process start. The tournament lock is kept. Returns true
// when the reset ran.
func (s *ActivityLockService) ResetLocksForUser(userID string) bool {
	s.mu.Lock()
	if _, done := s.reset[userID]; done {
		s.mu.Unlock()
		return false
	}
	s.reset[userID] = struct{}{}
	changes := s.setMatchLocked(false, userID)
	if l, ok := s.locks[userID]; ok && l.PendingInviteID != "" {
		l.PendingInviteID = ""
		changes = append(changes, changeOf(userID, LockInvite, false, l))
	}
	s.mu.Unlock()
	s.emit(changes)
	s.log.Debug().Str("user_id", userID).Msg("locks reset on first connection")
	return true
}

func (s *ActivityLockService) emit(changes []lockChange) {
	if s.notifier == nil {
		return
	}
	for _, c := range changes {
		event := EventUserUnlocked
		if c.locked {
			event = EventUserLocked
		}
		s.notifier.SendToUser(c.userID, event, map[string]any{"reason": c.reason})
		s.notifier.Broadcast(EventUserLockState, map[string]any{
			"userId":        c.userID,
			"locked":        c.after.Locked,
			"reason":        c.after.Reason,
			"pendingInvite": c.pending,
		})
	}
}
