package handlers

import (
	"pong-arena/engine"
	"pong-arena/metrics"
	"pong-arena/realtime"
	"pong-arena/services"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Inbound intent names.
const (
	IntentJoinLocalMatch   = "joinLocalMatch"
	IntentLeaveMatch       = "leaveMatch"
	IntentMatchReady       = "matchReady"
	IntentMatchInput       = "matchInput"
	IntentMatchmakingJoin  = "matchmakingJoin"
	IntentMatchmakingLeave = "matchmakingLeave"
	IntentSendInvite       = "sendInvite"
	IntentAcceptInvite     = "acceptInvite"
	IntentDeclineInvite    = "declineInvite"
	IntentCreateTournament = "createTournament"
	IntentJoinTournament   = "joinTournament"
	IntentLeaveTournament  = "leaveTournament"
	IntentRespondToInvite  = "respondToMatchInvite"
)

type joinLocalMatchPayload struct {
	Settings *engine.Settings `json:"settings" validate:"omitempty"`
}

type leaveMatchPayload struct {
	RoomID string `json:"roomId" validate:"omitempty,uuid"`
}

type matchReadyPayload struct {
	RoomID string `json:"roomId" validate:"required,uuid"`
}

type matchInputPayload struct {
	RoomID  string      `json:"roomId" validate:"required,uuid"`
	Side    engine.Side `json:"side" validate:"omitempty,oneof=p1 p2"`
	Key     string      `json:"key" validate:"required,oneof=up down"`
	Pressed bool        `json:"pressed"`
}

type sendInvitePayload struct {
	TargetUserID string `json:"targetUserId" validate:"required"`
}

type inviterPayload struct {
	InviterID string `json:"inviterId" validate:"required"`
}

type createTournamentPayload struct {
	Name            string `json:"name" validate:"required,max=64"`
	StartsInMinutes int    `json:"startsInMinutes" validate:"required,min=1,max=60"`
}

type tournamentIDPayload struct {
	ID string `json:"id" validate:"required,uuid"`
}

type respondPayload struct {
	TournamentID string `json:"tournamentId" validate:"required,uuid"`
	MatchKey     string `json:"matchKey" validate:"required,oneof=semi1 semi2 final"`
	Accept       *bool  `json:"accept" validate:"required"`
}

// RealtimeHandler turns websocket intents into service calls.
type RealtimeHandler struct {
	Registry    *services.SessionRegistry
	Matchmaking *services.MatchmakingService
	Invites     *services.InviteService
	Tournaments *services.TournamentService
	Notifier    services.Notifier
	Metrics     metrics.ArenaMetrics

	validate *validator.Validate
	log      zerolog.Logger
}

var _ realtime.Dispatcher = (*RealtimeHandler)(nil)

func NewRealtimeHandler(
	registry *services.SessionRegistry,
	matchmaking *services.MatchmakingService,
	invites *services.InviteService,
	tournaments *services.TournamentService,
	notifier services.Notifier,
	m metrics.ArenaMetrics,
) *RealtimeHandler {
	if m == nil {
		m = metrics.Noop()
	}
	return &RealtimeHandler{
		Registry:    registry,
		Matchmaking: matchmaking,
		Invites:     invites,
		Tournaments: tournaments,
		Notifier:    notifier,
		Metrics:     m,
		validate:    validator.New(),
		log:         log.With().Str("component", "realtime-handler").Logger(),
	}
}

// decode fills dst from raw and validates it. An absent payload decodes as
// the zero value.
func (h *RealtimeHandler) decode(raw json.RawMessage, dst any) error {
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, dst); err != nil {
			return services.ErrInvalidPayload
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		return services.ErrInvalidPayload
	}
	return nil
}

func (h *RealtimeHandler) Dispatch(c *realtime.Client, env realtime.Envelope) {
	if err := h.handle(c, env); err != nil {
		h.reject(c, env.Type, err)
	}
}

func (h *RealtimeHandler) handle(c *realtime.Client, env realtime.Envelope) error {
	me := c.Participant()

	switch env.Type {
	case IntentJoinLocalMatch:
		var p joinLocalMatchPayload
		if err := h.decode(env.Data, &p); err != nil {
			return err
		}
		settings := engine.DefaultSettings()
		if p.Settings != nil {
			settings = p.Settings.WithDefaults()
		}
		roomID, err := h.Registry.CreateLocal(me, settings)
		if err != nil {
			return err
		}
		h.Notifier.SendToConn(c.ID, services.EventMatchJoined, map[string]any{
			"roomId":   roomID,
			"local":    true,
			"settings": settings,
		})

	case IntentLeaveMatch:
		var p leaveMatchPayload
		if err := h.decode(env.Data, &p); err != nil {
			return err
		}
		return h.Registry.Leave(p.RoomID, me)

	case IntentMatchReady:
		var p matchReadyPayload
		if err := h.decode(env.Data, &p); err != nil {
			return err
		}
		return h.Registry.Ready(p.RoomID, me.UserID)

	case IntentMatchInput:
		var p matchInputPayload
		if err := h.decode(env.Data, &p); err != nil {
			return err
		}
		return h.Registry.Input(p.RoomID, me.UserID, p.Side, p.Key, p.Pressed)

	case IntentMatchmakingJoin:
		return h.Matchmaking.Join(me)

	case IntentMatchmakingLeave:
		h.Matchmaking.Leave(c.ID)

	case IntentSendInvite:
		var p sendInvitePayload
		if err := h.decode(env.Data, &p); err != nil {
			return err
		}
		_, err := h.Invites.Send(me, p.TargetUserID)
		return err

	case IntentAcceptInvite:
		var p inviterPayload
		if err := h.decode(env.Data, &p); err != nil {
			return err
		}
		_, err := h.Invites.Accept(me, p.InviterID)
		return err

	case IntentDeclineInvite:
		var p inviterPayload
		if err := h.decode(env.Data, &p); err != nil {
			return err
		}
		return h.Invites.Decline(me, p.InviterID)

	case IntentCreateTournament:
		var p createTournamentPayload
		if err := h.decode(env.Data, &p); err != nil {
			return err
		}
		_, err := h.Tournaments.Create(me.UserID, p.Name, p.StartsInMinutes)
		return err

	case IntentJoinTournament:
		var p tournamentIDPayload
		if err := h.decode(env.Data, &p); err != nil {
			return err
		}
		_, err := h.Tournaments.Join(me.UserID, p.ID)
		return err

	case IntentLeaveTournament:
		var p tournamentIDPayload
		if err := h.decode(env.Data, &p); err != nil {
			return err
		}
		return h.Tournaments.Leave(me.UserID, p.ID)

	case IntentRespondToInvite:
		var p respondPayload
		if err := h.decode(env.Data, &p); err != nil {
			return err
		}
		return h.Tournaments.Respond(me.UserID, p.TournamentID, services.MatchKey(p.MatchKey), *p.Accept)

	default:
		return services.ErrInvalidPayload
	}
	return nil
}

func (h *RealtimeHandler) reject(c *realtime.Client, intent string, err error) {
	rejected, ok := services.AsRejected(err)
	if !ok {
		h.log.Error().Err(err).Str("intent", intent).Str("user_id", c.UserID).Msg("intent failed")
		rejected = &services.RejectedIntent{Code: "internal", Message: "internal error"}
	}
	h.Metrics.AddRejectedIntent(intent, rejected.Code)
	h.Notifier.SendToConn(c.ID, services.EventMatchError, map[string]any{
		"intent":  intent,
		"code":    rejected.Code,
		"message": rejected.Message,
	})
}

// Disconnected treats a dropped socket as an implicit cancellation: the
// queue entry goes, sessions are forfeited and, once the user has no other
// tab, their direct invites are withdrawn.
func (h *RealtimeHandler) Disconnected(c *realtime.Client) {
	h.Matchmaking.Leave(c.ID)
	h.Registry.HandleDisconnect(c.ID)
	if _, online := h.Notifier.ConnForUser(c.UserID); !online {
		h.Invites.Withdraw(c.UserID)
	}
}
