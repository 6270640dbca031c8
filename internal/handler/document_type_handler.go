package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-docs-api/internal/dto"
	"github.com/noah-isme/sma-docs-api/internal/models"
	appErrors "github.com/noah-isme/sma-docs-api/pkg/errors"
	"github.com/noah-isme/sma-docs-api/pkg/response"
)

type documentTypeService interface {
	Create(ctx context.Context, req dto.CreateDocumentTypeRequest, actorID string) (*models.DocumentType, error)
	Get(ctx context.Context, id string) (*models.DocumentType, error)
	List(ctx context.Context, filter models.DocumentTypeFilter) ([]models.DocumentType, error)
	VisibleTo(ctx context.Context, userID string) ([]models.DocumentType, error)
	Update(ctx context.Context, id string, req dto.UpdateDocumentTypeRequest) (*models.DocumentType, error)
	Delete(ctx context.Context, id string) error
	AvailableUploaders(ctx context.Context, id string) ([]models.User, error)
}

// DocumentTypeHandler exposes REST endpoints for document categories.
type DocumentTypeHandler struct {
	service documentTypeService
}

// NewDocumentTypeHandler constructs the handler.
func NewDocumentTypeHandler(service documentTypeService) *DocumentTypeHandler {
	return &DocumentTypeHandler{service: service}
}

// Create godoc
// @Summary Create a document type
// @Tags DocumentTypes
// @Accept json
// @Produce json
// @Param payload body dto.CreateDocumentTypeRequest true "Document type payload"
// @Success 201 {object} response.Envelope
// @Router /document-types [post]
func (h *DocumentTypeHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document type service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateDocumentTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid document type payload"))
		return
	}
	docType, err := h.service.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, docType, nil)
}

// List godoc
// @Summary List document types
// @Tags DocumentTypes
// @Produce json
// @Param active query bool false "Active filter"
// @Param search query string false "Search term"
// @Param visible query bool false "Restrict to types the caller may view"
// @Success 200 {object} response.Envelope
// @Router /document-types [get]
func (h *DocumentTypeHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document type service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if visible, err := strconv.ParseBool(c.DefaultQuery("visible", "false")); err == nil && visible {
		types, err := h.service.VisibleTo(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, types, nil)
		return
	}
	var filter models.DocumentTypeFilter
	if active := c.Query("active"); active != "" {
		if val, err := strconv.ParseBool(active); err == nil {
			filter.Active = &val
		}
	}
	filter.Search = strings.TrimSpace(c.Query("search"))
	types, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, types, nil)
}

// Get godoc
// @Summary Get document type detail
// @Tags DocumentTypes
// @Produce json
// @Param id path string true "Document type ID"
// @Success 200 {object} response.Envelope
// @Router /document-types/{id} [get]
func (h *DocumentTypeHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document type service not configured"))
		return
	}
	docType, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docType, nil)
}

// Update godoc
// @Summary Partially update a document type
// @Tags DocumentTypes
// @Accept json
// @Produce json
// @Param id path string true "Document type ID"
// @Param payload body dto.UpdateDocumentTypeRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /document-types/{id} [put]
func (h *DocumentTypeHandler) Update(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document type service not configured"))
		return
	}
	var req dto.UpdateDocumentTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid document type payload"))
		return
	}
	docType, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docType, nil)
}

// Delete godoc
// @Summary Delete a document type without documents
// @Tags DocumentTypes
// @Produce json
// @Param id path string true "Document type ID"
// @Success 204
// @Router /document-types/{id} [delete]
func (h *DocumentTypeHandler) Delete(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document type service not configured"))
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Uploaders godoc
// @Summary List users eligible to upload under a type
// @Tags DocumentTypes
// @Produce json
// @Param id path string true "Document type ID"
// @Success 200 {object} response.Envelope
// @Router /document-types/{id}/uploaders [get]
func (h *DocumentTypeHandler) Uploaders(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document type service not configured"))
		return
	}
	id := c.Param("id")
	users, err := h.service.AvailableUploaders(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	infos := make([]models.UserInfo, 0, len(users))
	for _, user := range users {
		infos = append(infos, models.UserInfo{
			ID:         user.ID,
			Email:      user.Email,
			FullName:   user.FullName,
			Role:       user.Role,
			Department: user.Department,
		})
	}
	response.JSON(c, http.StatusOK, dto.UploaderList{DocumentTypeID: id, Users: infos}, nil)
}
