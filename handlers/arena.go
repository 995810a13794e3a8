package handlers

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"pong-arena/middleware"
	"pong-arena/realtime"
	"pong-arena/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const presenceKeepAlive = 15 * time.Second

// StatsReader serves lifetime player statistics.
type StatsReader interface {
	PlayerStats(ctx context.Context, userID string) (services.PlayerStats, error)
}

// ArenaDeps is what the operational and realtime routes read from.
type ArenaDeps struct {
	Hub       *realtime.Hub
	Registry  *services.SessionRegistry
	Locks     *services.ActivityLockService
	Presence  *services.PresenceService
	Stats     StatsReader
	Gatherer  prometheus.Gatherer
	WSAuth    fiber.Handler
	StartedAt time.Time
}

// SetupOpsRoutes registers the probes and the websocket endpoint. They
// must be registered before any gateway-guarded group.
func SetupOpsRoutes(app *fiber.App, deps ArenaDeps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"uptime":      time.Since(deps.StartedAt).Round(time.Second).String(),
			"rooms":       deps.Registry.RoomCount(),
			"connections": deps.Hub.ConnectionCount(),
		})
	})
	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	app.Get("/ws", deps.WSAuth, websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals(middleware.UserIDLocal).(string)
		deps.Hub.Serve(conn, userID)
	}))
}

func SetupArenaRoutes(router fiber.Router, deps ArenaDeps) {
	router.Get("/rooms", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"count": deps.Registry.RoomCount(),
			"rooms": deps.Registry.RoomStatus(),
		})
	})

	router.Get("/users/search", func(c *fiber.Ctx) error {
		users, err := deps.Presence.Search(c.Query("q"), c.QueryInt("limit", 50))
		if err != nil {
			log.Error().Err(err).Msg("user search failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "search failed"})
		}
		type userSummary struct {
			ExternalUserID string `json:"external_user_id"`
			DisplayName    string `json:"display_name"`
			Locked         bool   `json:"locked"`
		}
		res := make([]userSummary, len(users))
		for i, u := range users {
			res[i] = userSummary{
				ExternalUserID: u.ExternalUserID,
				DisplayName:    u.DisplayName(),
				Locked:         deps.Locks.IsLocked(u.ExternalUserID).Locked,
			}
		}
		return c.JSON(res)
	})

	router.Get("/users/:id/lock", func(c *fiber.Ctx) error {
		id := c.Params("id")
		return c.JSON(fiber.Map{
			"userId": id,
			"state":  deps.Locks.IsLocked(id),
			"lock":   deps.Locks.Get(id),
		})
	})

	router.Get("/users/:id/stats", func(c *fiber.Ctx) error {
		stats, err := deps.Stats.PlayerStats(c.UserContext(), c.Params("id"))
		if err != nil {
			log.Error().Err(err).Str("user_id", c.Params("id")).Msg("stats lookup failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load stats"})
		}
		return c.JSON(stats)
	})

	router.Get("/presence/stream", presenceStream(deps.Hub))
}

// presenceStream relays every userLockState broadcast as server-sent events.
func presenceStream(hub *realtime.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		frames, cancel := hub.SubscribePresence()
		done := c.Context().Done()
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer cancel()
			ticker := time.NewTicker(presenceKeepAlive)
			defer ticker.Stop()

			_, _ = w.WriteString(":\n\n")
			if err := w.Flush(); err != nil {
				return
			}
			for {
				select {
				case frame := <-frames:
					fmt.Fprintf(w, "event: %s\ndata: %s\n\n", services.EventUserLockState, frame)
				case <-ticker.C:
					_, _ = w.WriteString(":\n\n")
				case <-done:
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		})
		return nil
	}
}
