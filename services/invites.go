package services

import (
	"sync"
	"time"

	"pong-arena/engine"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultInviteTimeout = 30 * time.Second

// DirectInvite is an outstanding one-to-one match challenge.
type DirectInvite struct {
	ID          string    `json:"inviteId"`
	InviterID   string    `json:"inviterId"`
	RecipientID string    `json:"recipientId"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`

	inviterConn string
}

type consumedInvite struct {
	inviteID string
	roomID   string
	at       time.Time
}

type InviteOption func(*InviteService)

func WithInviteClock(now func() time.Time) InviteOption {
	return func(s *InviteService) { s.now = now }
}

func WithInviteTimeout(d time.Duration) InviteOption {
	return func(s *InviteService) { s.timeout = d }
}

// InviteService owns direct invites between two online users.
type InviteService struct {
	mu       sync.Mutex
	pending  map[string]*DirectInvite // inviter|recipient
	consumed map[string]consumedInvite

	registry *SessionRegistry
	locks    *ActivityLockService
	notifier Notifier
	timeout  time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

func NewInviteService(registry *SessionRegistry, locks *ActivityLockService, notifier Notifier, opts ...InviteOption) *InviteService {
	s := &InviteService{
		pending:  make(map[string]*DirectInvite),
		consumed: make(map[string]consumedInvite),
		registry: registry,
		locks:    locks,
		notifier: notifier,
		timeout:  defaultInviteTimeout,
		now:      time.Now,
		log:      log.With().Str("component", "invites").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func inviteKey(inviterID, recipientID string) string {
	return inviterID + "|" + recipientID
}

// Send challenges targetUserID on behalf of inviter.
func (s *InviteService) Send(inviter Participant, targetUserID string) (*DirectInvite, error) {
	if targetUserID == "" || targetUserID == inviter.UserID {
		return nil, ErrSelfInvite
	}
	if _, online := s.notifier.ConnForUser(targetUserID); !online {
		return nil, ErrTargetOffline
	}
	if s.locks.IsBusyForInvite(inviter.UserID) {
		return nil, ErrUserBusy
	}
	if s.locks.IsBusyForInvite(targetUserID) {
		return nil, ErrOpponentBusy
	}

	now := s.now()
	inv := &DirectInvite{
		ID:          uuid.NewString(),
		InviterID:   inviter.UserID,
		RecipientID: targetUserID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.timeout),
		inviterConn: inviter.ConnID,
	}
	if err := s.locks.SetPendingInvite(inv.InviterID, inv.RecipientID, inv.ID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.pending[inviteKey(inv.InviterID, inv.RecipientID)] = inv
	s.mu.Unlock()

	s.notifier.SendToConn(inviter.ConnID, EventInviteSent, inv)
	s.notifier.SendToUser(targetUserID, EventInviteReceived, inv)
	s.log.Info().Str("invite_id", inv.ID).Str("inviter", inv.InviterID).Str("recipient", inv.RecipientID).Msg("invite sent")
	return inv, nil
}

// take removes and returns the pending invite from inviterID to recipientID.
func (s *InviteService) take(inviterID, recipientID string) (*DirectInvite, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := inviteKey(inviterID, recipientID)
	inv, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	return inv, ok
}

// Accept turns the pending invite into a match. A repeated accept of an
// invite that was just consumed returns the same room.
func (s *InviteService) Accept(recipient Participant, inviterID string) (string, error) {
	key := inviteKey(inviterID, recipient.UserID)
	inv, ok := s.take(inviterID, recipient.UserID)
	if !ok {
		s.mu.Lock()
		c, seen := s.consumed[key]
		s.mu.Unlock()
		if seen && s.registry.Exists(c.roomID) {
			s.notifier.SendToConn(recipient.ConnID, EventMatched, map[string]any{
				"roomId":     c.roomID,
				"side":       engine.P2,
				"opponentId": inviterID,
			})
			return c.roomID, nil
		}
		return "", ErrInviteNotFound
	}
	s.locks.ClearPendingInvite(inv.ID, inv.InviterID, inv.RecipientID)

	// either side may have joined a match or tournament since the invite was sent
	var busy error
	switch {
	case s.locks.IsLocked(recipient.UserID).Locked:
		busy = ErrUserBusy
	case s.locks.IsLocked(inviterID).Locked:
		busy = ErrOpponentBusy
	}
	if busy != nil {
		s.notifier.SendToUser(inviterID, EventInviteExpired, map[string]any{"inviteId": inv.ID, "reason": "busy"})
		s.log.Info().Str("invite_id", inv.ID).Err(busy).Msg("invite accepted by or for a busy user")
		return "", busy
	}

	inviterConn := inv.inviterConn
	if !s.notifier.IsConnected(inviterConn) {
		conn, online := s.notifier.ConnForUser(inviterID)
		if !online {
			return "", ErrTargetOffline
		}
		inviterConn = conn
	}

	p1 := Participant{ConnID: inviterConn, UserID: inviterID}
	roomID, _, err := s.registry.CreateRemote(p1, recipient, nil, RemoteOptions{MatchType: MatchTypeDirect})
	if err != nil {
		s.notifier.SendToUser(inviterID, EventInviteExpired, map[string]any{"inviteId": inv.ID, "reason": "busy"})
		return "", err
	}

	s.mu.Lock()
	s.consumed[key] = consumedInvite{inviteID: inv.ID, roomID: roomID, at: s.now()}
	s.mu.Unlock()

	s.notifier.SendToConn(inviterConn, EventMatched, map[string]any{"roomId": roomID, "side": engine.P1, "opponentId": recipient.UserID})
	s.notifier.SendToConn(recipient.ConnID, EventMatched, map[string]any{"roomId": roomID, "side": engine.P2, "opponentId": inviterID})
	consumed := map[string]any{"inviteId": inv.ID, "roomId": roomID}
	s.notifier.SendToUser(inviterID, EventInviteConsumed, consumed)
	s.notifier.SendToUser(recipient.UserID, EventInviteConsumed, consumed)
	s.log.Info().Str("invite_id", inv.ID).Str("room_id", roomID).Msg("invite accepted")
	return roomID, nil
}

func (s *InviteService) Decline(recipient Participant, inviterID string) error {
	inv, ok := s.take(inviterID, recipient.UserID)
	if !ok {
		return ErrInviteNotFound
	}
	s.locks.ClearPendingInvite(inv.ID, inv.InviterID, inv.RecipientID)
	s.notifier.SendToUser(inviterID, EventInviteDeclined, map[string]any{
		"inviteId":    inv.ID,
		"recipientId": recipient.UserID,
	})
	s.notifier.SendToUser(recipient.UserID, EventInviteDeclined, map[string]any{
		"inviteId":    inv.ID,
		"recipientId": recipient.UserID,
	})
	return nil
}

// Withdraw drops every invite the user sent or received. The other side
// is told the invite expired.
func (s *InviteService) Withdraw(userID string) int {
	var dropped []*DirectInvite
	s.mu.Lock()
	for key, inv := range s.pending {
		if inv.InviterID == userID || inv.RecipientID == userID {
			dropped = append(dropped, inv)
			delete(s.pending, key)
		}
	}
	s.mu.Unlock()

	for _, inv := range dropped {
		s.locks.ClearPendingInvite(inv.ID, inv.InviterID, inv.RecipientID)
		other := inv.RecipientID
		if other == userID {
			other = inv.InviterID
		}
		s.notifier.SendToUser(other, EventInviteExpired, map[string]any{"inviteId": inv.ID, "reason": "withdrawn"})
	}
	return len(dropped)
}

// ExpireStale drops invites whose timeout passed.
func (s *InviteService) ExpireStale(now time.Time) int {
	var expired []*DirectInvite
	s.mu.Lock()
	for key, inv := range s.pending {
		if !now.Before(inv.ExpiresAt) {
			expired = append(expired, inv)
			delete(s.pending, key)
		}
	}
	for key, c := range s.consumed {
		if now.Sub(c.at) >= s.timeout {
			delete(s.consumed, key)
		}
	}
	s.mu.Unlock()

	for _, inv := range expired {
		s.locks.ClearPendingInvite(inv.ID, inv.InviterID, inv.RecipientID)
		payload := map[string]any{"inviteId": inv.ID, "reason": "timeout"}
		s.notifier.SendToUser(inv.InviterID, EventInviteExpired, payload)
		s.notifier.SendToUser(inv.RecipientID, EventInviteExpired, payload)
	}
	return len(expired)
}

func (s *InviteService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
