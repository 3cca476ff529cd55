package controller

import (
	"context"
	"errors"
	"strings"

	"product-rec-agent/internal/dto"
	"product-rec-agent/internal/pkg/serverutils"
	"product-rec-agent/internal/service"
	"product-rec-agent/pkg/turn"

	"github.com/gofiber/fiber/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router, middlewares ...fiber.Handler)
	NewSession(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
	FollowUp(ctx *fiber.Ctx) error
	Retry(ctx *fiber.Ctx) error
	GetStatus(ctx *fiber.Ctx) error
	ListSessions(ctx *fiber.Ctx) error
	GetSession(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
}

type chatController struct {
	service service.IChatService
}

func NewChatController(service service.IChatService) IChatController {
	return &chatController{service: service}
}

func (c *chatController) RegisterRoutes(r fiber.Router, middlewares ...fiber.Handler) {
	h := r.Group("/chat/v1")
	for _, m := range middlewares {
		h.Use(m)
	}
	h.Post("/sessions", c.NewSession)
	h.Get("/sessions", c.ListSessions)
	h.Get("/sessions/:id", c.GetSession)
	h.Delete("/sessions/:id", c.DeleteSession)
	h.Get("/sessions/:id/status", c.GetStatus)
	h.Post("/sessions/:id/messages", c.SendMessage)
	h.Post("/sessions/:id/followups", c.FollowUp)
	h.Post("/sessions/:id/retry", c.Retry)
}

func (c *chatController) NewSession(ctx *fiber.Ctx) error {
	var req dto.NewSessionRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.NewSession(ctx.UserContext(), &req)
	if err != nil {
		return mapChatError(err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create session", res))
}

func (c *chatController) SendMessage(ctx *fiber.Ctx) error {
	return c.turn(ctx, c.service.SendMessage)
}

func (c *chatController) FollowUp(ctx *fiber.Ctx) error {
	return c.turn(ctx, c.service.FollowUp)
}

func (c *chatController) Retry(ctx *fiber.Ctx) error {
	res, err := c.service.Retry(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return c.turnError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success retry turn", res))
}

func (c *chatController) GetStatus(ctx *fiber.Ctx) error {
	res, err := c.service.GetStatus(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return mapChatError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get session status", res))
}

func (c *chatController) ListSessions(ctx *fiber.Ctx) error {
	res, err := c.service.ListSessions(ctx.UserContext(), ctx.Query("q"), ctx.QueryBool("sample", false))
	if err != nil {
		return mapChatError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get sessions", res))
}

func (c *chatController) GetSession(ctx *fiber.Ctx) error {
	res, err := c.service.GetSession(ctx.UserContext(), ctx.Params("id"), ctx.QueryBool("sample", false))
	if err != nil {
		return mapChatError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get session", res))
}

func (c *chatController) DeleteSession(ctx *fiber.Ctx) error {
	if err := c.service.DeleteSession(ctx.UserContext(), ctx.Params("id")); err != nil {
		return mapChatError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete session", nil))
}

type turnFunc func(ctx context.Context, sessionId string, req *dto.SendMessageRequest) (*dto.TurnResponse, error)

func (c *chatController) turn(ctx *fiber.Ctx, send turnFunc) error {
	var req dto.SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	// Blank input is dropped silently, like any other rejected turn.
	if strings.TrimSpace(req.Text) == "" {
		return ctx.SendStatus(fiber.StatusNoContent)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := send(ctx.UserContext(), ctx.Params("id"), &req)
	if err != nil {
		return c.turnError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success send message", res))
}

// turnError answers rejected turns with 204 so nothing is surfaced to the user.
func (c *chatController) turnError(ctx *fiber.Ctx, err error) error {
	if errors.Is(err, turn.ErrEmptyInput) || errors.Is(err, turn.ErrTurnInFlight) {
		return ctx.SendStatus(fiber.StatusNoContent)
	}
	return mapChatError(err)
}

func mapChatError(err error) error {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNothingToRetry):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
