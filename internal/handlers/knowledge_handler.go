package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/linesage/linesage/internal/classifier"
	"github.com/linesage/linesage/internal/retrieval"
)

// KnowledgeHandler handles knowledge-base and issue dictionary requests
type KnowledgeHandler struct {
	retrieval *retrieval.Provider
	log       *logrus.Logger
}

// NewKnowledgeHandler creates a new knowledge handler
func NewKnowledgeHandler(provider *retrieval.Provider, log *logrus.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{retrieval: provider, log: log}
}

// AddDocumentsRequest carries documents for indexing.
type AddDocumentsRequest struct {
	Documents []retrieval.Document `json:"documents" binding:"required,min=1"`
}

// AddDocuments godoc
// @Summary Index knowledge-base documents
// @Description Adds documents to both the vector and the keyword store
// @Tags knowledge
// @Accept json
// @Produce json
// @Param request body AddDocumentsRequest true "Documents"
// @Success 202 {object} gin.H
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/documents [post]
func (h *KnowledgeHandler) AddDocuments(c *gin.Context) {
	var req AddDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "BAD_REQUEST"})
		return
	}

	if err := h.retrieval.AddDocuments(c.Request.Context(), req.Documents); err != nil {
		h.log.WithError(err).Warn("document indexing partially failed")
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error(), Kind: "INDEXING_FAILED"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"indexed": len(req.Documents)})
}

// GetIssue godoc
// @Summary Look up a known issue code
// @Tags knowledge
// @Produce json
// @Param code path string true "Issue code"
// @Success 200 {object} classifier.IssueInfo
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/issues/{code} [get]
func (h *KnowledgeHandler) GetIssue(c *gin.Context) {
	info, ok := classifier.LookupIssue(c.Param("code"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown issue code", Kind: "ISSUE_NOT_FOUND"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"issue":    info,
		"category": info.QuestionCategory(),
	})
}
