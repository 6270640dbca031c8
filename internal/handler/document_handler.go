package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-docs-api/internal/dto"
	"github.com/noah-isme/sma-docs-api/internal/models"
	"github.com/noah-isme/sma-docs-api/internal/service"
	appErrors "github.com/noah-isme/sma-docs-api/pkg/errors"
	"github.com/noah-isme/sma-docs-api/pkg/response"
)

type documentService interface {
	Upload(ctx context.Context, req dto.CreateDocumentRequest, upload service.DocumentUpload, actor *models.JWTClaims) (*models.Document, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Document, error)
	List(ctx context.Context, query dto.DocumentQuery, actor *models.JWTClaims) ([]models.Document, error)
	Approve(ctx context.Context, id string, reviewer *models.JWTClaims) (*models.Document, error)
	Reject(ctx context.Context, id, reason string, reviewer *models.JWTClaims) (*models.Document, error)
	GetDownloadURL(ctx context.Context, id string, actor *models.JWTClaims) (*dto.DocumentDownloadResponse, error)
	Download(ctx context.Context, id, token string, actor *models.JWTClaims) (*service.DocumentDownload, error)
}

type governanceMetrics interface {
	RecordDocumentUploaded()
	RecordDocumentReviewed(outcome string)
}

// DocumentHandler manages document lifecycle HTTP endpoints.
type DocumentHandler struct {
	service documentService
	metrics governanceMetrics
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(service documentService, metrics governanceMetrics) *DocumentHandler {
	return &DocumentHandler{service: service, metrics: metrics}
}

// Upload godoc
// @Summary Upload a document for review
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param documentTypeId formData string true "Document type"
// @Param title formData string true "Title"
// @Param department formData string false "Department"
// @Param schoolYear formData string false "School year"
// @Param file formData file true "Document"
// @Success 201 {object} response.Envelope
// @Router /documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return
	}
	var req dto.CreateDocumentRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid document payload"))
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	reader, ok := src.(io.ReadSeeker)
	if !ok {
		buf, readErr := io.ReadAll(src)
		if readErr != nil {
			response.Error(c, appErrors.Wrap(readErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to buffer file"))
			return
		}
		reader = bytes.NewReader(buf)
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	upload := service.DocumentUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Content:  reader,
	}
	doc, err := h.service.Upload(c.Request.Context(), req, upload, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordDocumentUploaded()
	}
	response.JSON(c, http.StatusCreated, doc, nil)
}

// List godoc
// @Summary List documents visible to the caller
// @Tags Documents
// @Produce json
// @Param documentTypeId query string false "Document type"
// @Param status query string false "Comma separated statuses"
// @Param department query string false "Department"
// @Param schoolYear query string false "School year"
// @Param mine query bool false "Only own uploads"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.DocumentQuery{
		DocumentTypeID: strings.TrimSpace(c.Query("documentTypeId")),
		Department:     strings.TrimSpace(c.Query("department")),
		SchoolYear:     strings.TrimSpace(c.Query("schoolYear")),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.DocumentStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.DocumentStatus(part))
		}
		query.Status = statuses
	}
	if mine, err := strconv.ParseBool(c.DefaultQuery("mine", "false")); err == nil {
		query.Mine = mine
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil {
		query.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		query.Offset = offset
	}
	docs, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// Get godoc
// @Summary Get document detail with a signed download URL
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.GetDownloadURL(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Approve godoc
// @Summary Approve a pending document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/approve [post]
func (h *DocumentHandler) Approve(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	doc, err := h.service.Approve(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordDocumentReviewed(string(models.DocumentStatusApproved))
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Reject godoc
// @Summary Reject a pending document with a reason
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.RejectDocumentRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/reject [post]
func (h *DocumentHandler) Reject(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RejectDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid rejection payload"))
		return
	}
	doc, err := h.service.Reject(c.Request.Context(), c.Param("id"), req.Reason, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordDocumentReviewed(string(models.DocumentStatusRejected))
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Download godoc
// @Summary Download a document via signed token
// @Tags Documents
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /documents/{id}/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	token := c.Query("token")
	if strings.TrimSpace(token) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.service.Download(c.Request.Context(), c.Param("id"), token, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.SizeBytes, result.MimeType, result.File, nil)
}
