package services

import (
	"time"

	"pong-arena/engine"
)

type TournamentStatus string

const (
	StatusWaiting   TournamentStatus = "waiting"
	StatusCountdown TournamentStatus = "countdown"
	StatusRunning   TournamentStatus = "running"
	StatusCompleted TournamentStatus = "completed"
	StatusCancelled TournamentStatus = "cancelled"
)

func (s TournamentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type EliminationReason string

const (
	ReasonLost       EliminationReason = "lost"
	ReasonDeclined   EliminationReason = "declined"
	ReasonNoResponse EliminationReason = "no_response"
	ReasonNoShow     EliminationReason = "no_show"
)

type InviteResponse string

const (
	ResponsePending  InviteResponse = "pending"
	ResponseAccepted InviteResponse = "accepted"
	ResponseDeclined InviteResponse = "declined"
)

type MatchKey string

const (
	MatchSemi1 MatchKey = "semi1"
	MatchSemi2 MatchKey = "semi2"
	MatchFinal MatchKey = "final"
)

// SlotStatus tracks one bracket match.
//
//	pending -> inviting -> starting -> in_progress -> completed
//	                   \-> completed (walkover) | void (no winner)
type SlotStatus string

const (
	SlotPending    SlotStatus = "pending"
	SlotInviting   SlotStatus = "inviting"
	SlotStarting   SlotStatus = "starting"
	SlotInProgress SlotStatus = "in_progress"
	SlotCompleted  SlotStatus = "completed"
	SlotVoid       SlotStatus = "void"
)

// MatchInvite exists only while the accept window of a bracket match is open.
type MatchInvite struct {
	P1Response InviteResponse `json:"p1Response"`
	P2Response InviteResponse `json:"p2Response"`
	IssuedAt   time.Time      `json:"issuedAt"`
	ExpiresAt  time.Time      `json:"expiresAt"`
}

type BracketMatch struct {
	Key          MatchKey          `json:"key"`
	P1           string            `json:"p1,omitempty"`
	P2           string            `json:"p2,omitempty"`
	DisplayNames map[string]string `json:"displayNames,omitempty"`
	Status       SlotStatus        `json:"status"`
	RoomID       string            `json:"roomId,omitempty"`
	Winner       string            `json:"winner,omitempty"`
	Invite       *MatchInvite      `json:"invite,omitempty"`
	Score        *engine.Score     `json:"score,omitempty"`
	EndReason    string            `json:"endReason,omitempty"`

	StartAttempts int       `json:"startAttempts,omitempty"`
	NextStartAt   time.Time `json:"nextStartAt,omitempty"`
}

func (m *BracketMatch) resolved() bool {
	return m.Status == SlotCompleted || m.Status == SlotVoid
}

// sideOf returns p1 or p2 for a participant of this match.
func (m *BracketMatch) sideOf(userID string) (engine.Side, bool) {
	switch {
	case userID == "":
		return "", false
	case userID == m.P1:
		return engine.P1, true
	case userID == m.P2:
		return engine.P2, true
	}
	return "", false
}

func (m *BracketMatch) opponentOf(userID string) string {
	if userID == m.P1 {
		return m.P2
	}
	return m.P1
}

func (m *BracketMatch) clone() *BracketMatch {
	if m == nil {
		return nil
	}
	c := *m
	if m.DisplayNames != nil {
		c.DisplayNames = make(map[string]string, len(m.DisplayNames))
		for k, v := range m.DisplayNames {
			c.DisplayNames[k] = v
		}
	}
	if m.Invite != nil {
		inv := *m.Invite
		c.Invite = &inv
	}
	if m.Score != nil {
		sc := *m.Score
		c.Score = &sc
	}
	return &c
}

type Bracket struct {
	Semi1 *BracketMatch `json:"semi1"`
	Semi2 *BracketMatch `json:"semi2"`
	Final *BracketMatch `json:"final"`
}

func (b Bracket) matches() []*BracketMatch {
	out := make([]*BracketMatch, 0, 3)
	for _, m := range []*BracketMatch{b.Semi1, b.Semi2, b.Final} {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

type TournamentResult struct {
	Winner      string    `json:"winner"`
	RunnersUp   []string  `json:"runnersUp"`
	CompletedAt time.Time `json:"completedAt"`
}

// Tournament is owned by TournamentService and only mutated under its lock.
// Callers always receive a Clone.
type Tournament struct {
	ID                 string                       `json:"id"`
	Name               string                       `json:"name"`
	CreatedBy          string                       `json:"createdBy"`
	CreatedAt          time.Time                    `json:"createdAt"`
	StartsAt           time.Time                    `json:"startsAt"`
	CountdownEndsAt    time.Time                    `json:"countdownEndsAt,omitempty"`
	Status             TournamentStatus             `json:"status"`
	Players            []string                     `json:"players"`
	Bracket            Bracket                      `json:"bracket"`
	Eliminated         []string                     `json:"eliminated"`
	EliminationReasons map[string]EliminationReason `json:"eliminationReasons"`
	Result             *TournamentResult            `json:"result,omitempty"`
	EndedAt            time.Time                    `json:"endedAt,omitempty"`
	CancelReason       string                       `json:"cancelReason,omitempty"`
	LocksReleased      bool                         `json:"locksReleased"`
	FinalRescueAt      time.Time                    `json:"finalRescueAt,omitempty"`
	Version            int64                        `json:"version"`
}

func (t *Tournament) IsPlayer(userID string) bool {
	for _, p := range t.Players {
		if p == userID {
			return true
		}
	}
	return false
}

func (t *Tournament) IsEliminated(userID string) bool {
	_, ok := t.EliminationReasons[userID]
	return ok
}

// ActivePlayers are the players not yet eliminated.
func (t *Tournament) ActivePlayers() []string {
	out := make([]string, 0, len(t.Players))
	for _, p := range t.Players {
		if !t.IsEliminated(p) {
			out = append(out, p)
		}
	}
	return out
}

func (t *Tournament) Match(key MatchKey) *BracketMatch {
	switch key {
	case MatchSemi1:
		return t.Bracket.Semi1
	case MatchSemi2:
		return t.Bracket.Semi2
	case MatchFinal:
		return t.Bracket.Final
	}
	return nil
}

func (t *Tournament) declineCount() int {
	n := 0
	for _, r := range t.EliminationReasons {
		if r == ReasonDeclined {
			n++
		}
	}
	return n
}

// eliminate records the first reason a player was knocked out. It reports
// whether the player was newly eliminated.
func (t *Tournament) eliminate(userID string, reason EliminationReason) bool {
	if userID == "" || t.IsEliminated(userID) {
		return false
	}
	if t.EliminationReasons == nil {
		t.EliminationReasons = make(map[string]EliminationReason)
	}
	t.EliminationReasons[userID] = reason
	t.Eliminated = append(t.Eliminated, userID)
	return true
}

func (t *Tournament) removePlayer(userID string) {
	out := t.Players[:0]
	for _, p := range t.Players {
		if p != userID {
			out = append(out, p)
		}
	}
	t.Players = out
}

// Clone returns a deep copy safe to hand outside the service.
func (t *Tournament) Clone() *Tournament {
	c := *t
	c.Players = append([]string(nil), t.Players...)
	c.Eliminated = append([]string(nil), t.Eliminated...)
	c.EliminationReasons = make(map[string]EliminationReason, len(t.EliminationReasons))
	for k, v := range t.EliminationReasons {
		c.EliminationReasons[k] = v
	}
	c.Bracket = Bracket{
		Semi1: t.Bracket.Semi1.clone(),
		Semi2: t.Bracket.Semi2.clone(),
		Final: t.Bracket.Final.clone(),
	}
	if t.Result != nil {
		r := *t.Result
		r.RunnersUp = append([]string(nil), t.Result.RunnersUp...)
		c.Result = &r
	}
	return &c
}
