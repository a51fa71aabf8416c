package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/linesage/linesage/internal/session"
)

// SessionHandler handles session lifecycle HTTP requests
type SessionHandler struct {
	store session.Store
	log   *logrus.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(store session.Store, log *logrus.Logger) *SessionHandler {
	return &SessionHandler{store: store, log: log}
}

// CreateSessionRequest is the create-session body.
type CreateSessionRequest struct {
	OwnerID   string `json:"owner_id,omitempty"`
	IssueCode string `json:"issue_code,omitempty"`
}

// Create godoc
// @Summary Create a session
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body CreateSessionRequest false "Session options"
// @Success 201 {object} models.Session
// @Router /api/v1/sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "BAD_REQUEST"})
			return
		}
	}

	s, err := h.store.Create(c.Request.Context(), req.OwnerID, req.IssueCode)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// Get godoc
// @Summary Fetch a session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.Session
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	s, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// History godoc
// @Summary Fetch a session's conversation history
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} gin.H
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/history [get]
func (h *SessionHandler) History(c *gin.Context) {
	s, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":           s.ID,
		"conversation_count":   s.ConversationCount,
		"conversation_history": s.History,
	})
}

// End godoc
// @Summary End a session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} gin.H
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/end [post]
func (h *SessionHandler) End(c *gin.Context) {
	if err := h.store.End(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": c.Param("id"), "status": "ended"})
}

// Delete godoc
// @Summary Delete a session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) writeError(c *gin.Context, err error) {
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Kind: "SESSION_NOT_FOUND"})
		return
	}
	h.log.WithError(err).Error("session operation failed")
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Kind: "INTERNAL"})
}
