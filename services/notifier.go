package services

// Participant is one side of a pairing: a live connection and the stable
// user id behind it.
type Participant struct {
	ConnID string `json:"-"`
	UserID string `json:"userId"`
}

// Notifier is the delivery contract the transport offers to services.
// Implementations must not block the caller.
type Notifier interface {
	SendToConn(connID, event string, payload any)
	SendToUser(userID, event string, payload any)
	Broadcast(event string, payload any)
	IsConnected(connID string) bool
	// ConnForUser returns the most recent live connection of a user.
	ConnForUser(userID string) (string, bool)
}

// Outbound event names.
const (
	EventMatchState    = "matchStateSnapshot"
	EventMatchError    = "matchError"
	EventMatchJoined   = "matchJoined"
	EventQueued        = "queued"
	EventQueueTimeout  = "timeout"
	EventQueueLeft     = "matchmakingLeft"
	EventMatched       = "matched"
	EventUserLocked    = "userLocked"
	EventUserUnlocked  = "userUnlocked"
	EventUserLockState = "userLockState"

	EventInviteSent     = "inviteSent"
	EventInviteReceived = "inviteReceived"
	EventInviteDeclined = "inviteDeclined"
	EventInviteConsumed = "inviteConsumed"
	EventInviteExpired  = "inviteExpired"

	EventTournamentCreated   = "tournamentCreated"
	EventTournamentCountdown = "tournamentCountdown"
	EventTournamentStarted   = "tournamentStarted"
	EventTournamentUpdate    = "tournamentUpdate"
	EventTournamentCompleted = "tournamentCompleted"
	EventTournamentCancelled = "tournamentCancelled"
	EventTournamentInvite    = "tournamentMatchInvite"
)
