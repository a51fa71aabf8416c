package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/linesage/linesage/internal/services"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// ChatHandler handles chat turn HTTP requests
type ChatHandler struct {
	chat *services.ChatService
	log  *logrus.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat *services.ChatService, log *logrus.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, log: log}
}

// Chat godoc
// @Summary Run one diagnosis turn
// @Description Consults the selected experts about a manufacturing issue and returns the moderated recommendation
// @Tags chat
// @Accept json
// @Produce json
// @Param request body services.ChatRequest true "Chat turn"
// @Success 200 {object} services.ChatResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/chat [post]
func (h *ChatHandler) Chat(c *gin.Context) {
	var req services.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "BAD_REQUEST"})
		return
	}

	res, err := h.chat.Chat(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ChatHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidMessage):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "BAD_REQUEST"})
	case errors.Is(err, services.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Kind: "SESSION_NOT_FOUND"})
	case errors.Is(err, services.ErrConcurrentTurn):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Kind: "CONCURRENT_TURN"})
	default:
		h.log.WithError(err).Error("chat turn failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Kind: "INTERNAL"})
	}
}
