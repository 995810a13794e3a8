package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// RejectedIntent is a user-facing refusal of a request. It is reported to the
// requester as-is and never retried by the server.
type RejectedIntent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *RejectedIntent) Error() string { return e.Message }

func reject(code string, status int, msg string) *RejectedIntent {
	return &RejectedIntent{Code: code, Message: msg, Status: status}
}

var (
	ErrInvalidPayload = reject("invalid_payload", fiber.StatusBadRequest, "invalid payload")

	ErrUserBusy        = reject("user_busy", fiber.StatusConflict, "user is busy with another activity")
	ErrOpponentBusy    = reject("opponent_busy", fiber.StatusConflict, "opponent is busy with another activity")
	ErrAlreadyQueued   = reject("already_queued", fiber.StatusConflict, "already queued")
	ErrAlreadyInRoom   = reject("already_in_session", fiber.StatusConflict, "already in a session")
	ErrSelfPairing     = reject("self_pairing", fiber.StatusBadRequest, "cannot pair a user with themselves")
	ErrRoomNotFound    = reject("room_not_found", fiber.StatusNotFound, "room not found")
	ErrSideNotAllowed  = reject("side_not_allowed", fiber.StatusForbidden, "not authorized for requested side")
	ErrSessionTooYoung = reject("session_too_young", fiber.StatusConflict, "session was just created")

	ErrSelfInvite      = reject("self_invite", fiber.StatusBadRequest, "cannot invite yourself")
	ErrDuplicateInvite = reject("duplicate_invite", fiber.StatusConflict, "an invite is already pending")
	ErrInviteNotFound  = reject("invite_not_found", fiber.StatusNotFound, "invite not found")
	ErrTargetOffline   = reject("target_offline", fiber.StatusNotFound, "user is not online")

	ErrTournamentNotFound = reject("tournament_not_found", fiber.StatusNotFound, "tournament not found")
	ErrTournamentStarted  = reject("tournament_started", fiber.StatusConflict, "already started")
	ErrTournamentClosed   = reject("tournament_closed", fiber.StatusConflict, "tournament is closed")
	ErrTournamentFull     = reject("tournament_full", fiber.StatusConflict, "tournament is full")
	ErrTournamentName     = reject("tournament_name_taken", fiber.StatusConflict, "a waiting tournament already uses that name")
	ErrInvalidTournament  = reject("invalid_tournament", fiber.StatusBadRequest, "name and a start between 1 and 60 minutes are required")
	ErrAlreadyJoined      = reject("already_joined", fiber.StatusConflict, "already joined this tournament")
	ErrInOtherTournament  = reject("in_other_tournament", fiber.StatusConflict, "already in another active tournament")
	ErrNotParticipant     = reject("not_participant", fiber.StatusForbidden, "not a participant")
	ErrUnknownMatchKey    = reject("unknown_match", fiber.StatusBadRequest, "unknown bracket match")
	ErrMatchInviteClosed  = reject("match_invite_closed", fiber.StatusConflict, "no open invite for this match")
	ErrEliminated         = reject("eliminated", fiber.StatusConflict, "already eliminated")
)

// AsRejected extracts a RejectedIntent from err, if any.
func AsRejected(err error) (*RejectedIntent, bool) {
	var r *RejectedIntent
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
