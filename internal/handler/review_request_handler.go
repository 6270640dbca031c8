package handler

import (
	"bytes"
	"context"
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

type reviewRequestService interface {
	Create(ctx context.Context, payload dto.CreateReviewRequestPayload, upload *service.DocumentUpload, actor *models.JWTClaims) (*models.ReviewRequest, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ReviewRequest, error)
	List(ctx context.Context, query dto.ReviewRequestQuery, actor *models.JWTClaims) ([]models.ReviewRequest, error)
	Approve(ctx context.Context, id string, payload dto.ResolveReviewRequestPayload, reviewer *models.JWTClaims) (*models.ReviewRequest, error)
	Reject(ctx context.Context, id string, payload dto.ResolveReviewRequestPayload, reviewer *models.JWTClaims) (*models.ReviewRequest, error)
}

type resolutionMetrics interface {
	RecordRequestResolved(requestType, outcome string)
}

// ReviewRequestHandler exposes the change-request workflow endpoints.
type ReviewRequestHandler struct {
	service reviewRequestService
	metrics resolutionMetrics
}

// NewReviewRequestHandler constructs the handler.
func NewReviewRequestHandler(service reviewRequestService, metrics resolutionMetrics) *ReviewRequestHandler {
	return &ReviewRequestHandler{service: service, metrics: metrics}
}

// Create godoc
// @Summary Submit an edit or delete request for an approved document
// @Tags ReviewRequests
// @Accept multipart/form-data
// @Produce json
// @Param documentId formData string true "Target document"
// @Param type formData string true "EDIT or DELETE"
// @Param reason formData string true "Reason"
// @Param proposedFileName formData string false "Proposed file name"
// @Param file formData file false "Replacement file for EDIT requests"
// @Success 201 {object} response.Envelope
// @Router /review-requests [post]
func (h *ReviewRequestHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "review request service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload dto.CreateReviewRequestPayload
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if err := c.ShouldBind(&payload); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid review request payload"))
			return
		}
	} else if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid review request payload"))
		return
	}

	var upload *service.DocumentUpload
	if fileHeader, err := c.FormFile("file"); err == nil {
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
		upload = &service.DocumentUpload{
			Filename: fileHeader.Filename,
			Size:     fileHeader.Size,
			MimeType: fileHeader.Header.Get("Content-Type"),
			Content:  reader,
		}
	}

	request, err := h.service.Create(c.Request.Context(), payload, upload, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, request, nil)
}

// List godoc
// @Summary List review requests
// @Tags ReviewRequests
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param type query string false "EDIT or DELETE"
// @Param documentId query string false "Target document"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /review-requests [get]
func (h *ReviewRequestHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "review request service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.ReviewRequestQuery{
		DocumentID: strings.TrimSpace(c.Query("documentId")),
	}
	if rawType := c.Query("type"); rawType != "" {
		query.Type = models.ReviewRequestType(strings.ToUpper(rawType))
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.ReviewRequestStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.ReviewRequestStatus(part))
		}
		query.Status = statuses
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil {
		query.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		query.Offset = offset
	}
	requests, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get review request detail
// @Tags ReviewRequests
// @Produce json
// @Param id path string true "Review request ID"
// @Success 200 {object} response.Envelope
// @Router /review-requests/{id} [get]
func (h *ReviewRequestHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "review request service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Approve godoc
// @Summary Approve a pending review request
// @Tags ReviewRequests
// @Accept json
// @Produce json
// @Param id path string true "Review request ID"
// @Param payload body dto.ResolveReviewRequestPayload false "Optional note"
// @Success 200 {object} response.Envelope
// @Router /review-requests/{id}/approve [post]
func (h *ReviewRequestHandler) Approve(c *gin.Context) {
	h.resolve(c, true)
}

// Reject godoc
// @Summary Reject a pending review request with a note
// @Tags ReviewRequests
// @Accept json
// @Produce json
// @Param id path string true "Review request ID"
// @Param payload body dto.ResolveReviewRequestPayload true "Mandatory note"
// @Success 200 {object} response.Envelope
// @Router /review-requests/{id}/reject [post]
func (h *ReviewRequestHandler) Reject(c *gin.Context) {
	h.resolve(c, false)
}

func (h *ReviewRequestHandler) resolve(c *gin.Context, approve bool) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "review request service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload dto.ResolveReviewRequestPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid resolution payload"))
			return
		}
	}
	var (
		request *models.ReviewRequest
		err     error
	)
	if approve {
		request, err = h.service.Approve(c.Request.Context(), c.Param("id"), payload, claims)
	} else {
		request, err = h.service.Reject(c.Request.Context(), c.Param("id"), payload, claims)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordRequestResolved(string(request.Type), string(request.Status))
	}
	response.JSON(c, http.StatusOK, request, nil)
}
