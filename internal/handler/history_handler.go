package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-docs-api/internal/models"
	"github.com/noah-isme/sma-docs-api/internal/service"
	appErrors "github.com/noah-isme/sma-docs-api/pkg/errors"
	"github.com/noah-isme/sma-docs-api/pkg/response"
)

type historyService interface {
	List(ctx context.Context, filter models.HistoryFilter, actor *models.JWTClaims) ([]models.HistoryEntry, error)
	Export(ctx context.Context, filter models.HistoryFilter, format service.ExportFormat, actor *models.JWTClaims) (*service.ExportResult, error)
}

// HistoryHandler serves the append-only audit trail.
type HistoryHandler struct {
	service historyService
}

// NewHistoryHandler constructs the handler.
func NewHistoryHandler(service historyService) *HistoryHandler {
	return &HistoryHandler{service: service}
}

// List godoc
// @Summary List audit trail entries, most recent first
// @Tags History
// @Produce json
// @Param documentId query string false "Document filter"
// @Param performedBy query string false "Actor filter"
// @Param action query string false "Action filter"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /history [get]
func (h *HistoryHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "history service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := historyFilterFromQuery(c)
	entries, err := h.service.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// ListByDocument godoc
// @Summary List the audit trail of a single document
// @Tags History
// @Produce json
// @Param id path string true "Document ID"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/history [get]
func (h *HistoryHandler) ListByDocument(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "history service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := historyFilterFromQuery(c)
	filter.DocumentID = c.Param("id")
	entries, err := h.service.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Export godoc
// @Summary Export the audit trail as CSV or PDF
// @Tags History
// @Produce octet-stream
// @Param format query string false "csv or pdf"
// @Param documentId query string false "Document filter"
// @Param action query string false "Action filter"
// @Success 200 {file} binary
// @Router /history/export [get]
func (h *HistoryHandler) Export(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "history service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := historyFilterFromQuery(c)
	format := service.ExportFormat(strings.ToLower(c.DefaultQuery("format", "csv")))
	result, err := h.service.Export(c.Request.Context(), filter, format, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.MimeType, result.Content)
}

func historyFilterFromQuery(c *gin.Context) models.HistoryFilter {
	filter := models.HistoryFilter{
		DocumentID:  strings.TrimSpace(c.Query("documentId")),
		PerformedBy: strings.TrimSpace(c.Query("performedBy")),
		Action:      strings.TrimSpace(c.Query("action")),
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil {
		filter.Limit = limit
	}
	return filter
}
