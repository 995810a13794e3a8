package handlers

import (
	"pong-arena/middleware"
	"pong-arena/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type createTournamentRequest struct {
	Name            string `json:"name" validate:"required,max=64"`
	StartsInMinutes int    `json:"startsInMinutes" validate:"required,min=1,max=60"`
}

type respondRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

// TournamentHandler exposes the orchestrator over HTTP.
type TournamentHandler struct {
	Tournaments *services.TournamentService
	validate    *validator.Validate
}

func SetupTournamentRoutes(router fiber.Router, tournaments *services.TournamentService) {
	h := &TournamentHandler{Tournaments: tournaments, validate: validator.New()}

	router.Get("/tournaments", h.List)
	router.Get("/tournaments/:id", h.Get)

	userCtx := middleware.UserContextMiddleware()
	router.Post("/tournaments", userCtx, h.Create)
	router.Post("/tournaments/:id/join", userCtx, h.Join)
	router.Post("/tournaments/:id/leave", userCtx, h.Leave)
	router.Post("/tournaments/:id/matches/:matchKey/respond", userCtx, h.Respond)
}

// writeError maps service errors onto HTTP responses.
func writeError(c *fiber.Ctx, err error) error {
	if rejected, ok := services.AsRejected(err); ok {
		status := rejected.Status
		if status == 0 {
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(fiber.Map{"error": rejected.Message, "code": rejected.Code})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

func (h *TournamentHandler) bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return services.ErrInvalidPayload
	}
	if err := h.validate.Struct(dst); err != nil {
		return services.ErrInvalidPayload
	}
	return nil
}

func (h *TournamentHandler) List(c *fiber.Ctx) error {
	return c.JSON(h.Tournaments.List())
}

func (h *TournamentHandler) Get(c *fiber.Ctx) error {
	t, err := h.Tournaments.Get(c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(t)
}

func (h *TournamentHandler) Create(c *fiber.Ctx) error {
	var req createTournamentRequest
	if err := h.bind(c, &req); err != nil {
		return writeError(c, err)
	}
	t, err := h.Tournaments.Create(middleware.UserID(c), req.Name, req.StartsInMinutes)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (h *TournamentHandler) Join(c *fiber.Ctx) error {
	t, err := h.Tournaments.Join(middleware.UserID(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(t)
}

func (h *TournamentHandler) Leave(c *fiber.Ctx) error {
	if err := h.Tournaments.Leave(middleware.UserID(c), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *TournamentHandler) Respond(c *fiber.Ctx) error {
	var req respondRequest
	if err := h.bind(c, &req); err != nil {
		return writeError(c, err)
	}
	key := services.MatchKey(c.Params("matchKey"))
	if err := h.Tournaments.Respond(middleware.UserID(c), c.Params("id"), key, *req.Accept); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
