package handler

import (
	"product-rec-agent/internal/pkg/logger"
	"product-rec-agent/internal/pkg/serverutils"
	"product-rec-agent/internal/service"
	internalWS "product-rec-agent/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// SessionStreamHandler pushes turn events for one session over a websocket.
type SessionStreamHandler struct {
	chat      service.IChatService
	hub       *internalWS.Hub
	jwtSecret string
	logger    logger.ILogger
}

func NewSessionStreamHandler(chat service.IChatService, hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *SessionStreamHandler {
	return &SessionStreamHandler{
		chat:      chat,
		hub:       hub,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

func (h *SessionStreamHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/ws/sessions/:id", h.ServeWs)
}

func (h *SessionStreamHandler) ServeWs(c *fiber.Ctx) error {
	if h.jwtSecret != "" {
		// Browsers can't set headers on the handshake, so accept the token as a query param too.
		tokenStr := c.Query("token")
		if tokenStr == "" {
			authHeader := c.Get("Authorization")
			if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
				tokenStr = authHeader[7:]
			}
		}
		if tokenStr == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Missing token (Query 'token' or Header 'Authorization')")
		}
		if _, err := serverutils.ParseToken(tokenStr, h.jwtSecret); err != nil {
			h.logger.Warn("SessionStream", "Invalid token in WS handshake", map[string]interface{}{"error": err.Error()})
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
		}
	}

	sessionID := c.Params("id")
	if _, err := h.chat.GetStatus(c.UserContext(), sessionID); err != nil {
		return fiber.NewError(fiber.StatusNotFound, "session not found")
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("SessionStream", "Starting WebSocket session", map[string]interface{}{"session_id": sessionID})
		internalWS.ServeWs(h.hub, conn, sessionID)
		h.logger.Info("SessionStream", "WebSocket session ended", map[string]interface{}{"session_id": sessionID})
	})(c)
}
