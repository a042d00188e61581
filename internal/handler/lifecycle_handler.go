package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-krs-api/internal/service"
	appErrors "github.com/noah-isme/uni-krs-api/pkg/errors"
	"github.com/noah-isme/uni-krs-api/pkg/response"
)

// LifecycleHandler exposes the orchestrated subject lifecycle endpoints.
// These are admin-only operations that coordinate catalog, offerings and
// the enrollment ledger.
type LifecycleHandler struct {
	service *service.LifecycleService
}

// NewLifecycleHandler constructs a lifecycle handler.
func NewLifecycleHandler(svc *service.LifecycleService) *LifecycleHandler {
	return &LifecycleHandler{service: svc}
}

type forceDeleteRequest struct {
	SubjectIDs []string `json:"subject_ids" binding:"required,min=1"`
	Confirm    bool     `json:"confirm"`
}

type bulkActivateRequest struct {
	Cohort     string `json:"cohort" binding:"required"`
	ClassLabel string `json:"class_label" binding:"required"`
}

// Activate godoc
// @Summary Activate a subject and ensure a current-term offering
// @Tags Lifecycle
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /subjects/{id}/activate [post]
func (h *LifecycleHandler) Activate(c *gin.Context) {
	result, err := h.service.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Deactivate godoc
// @Summary Archive a subject when no active enrollments remain
// @Tags Lifecycle
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /subjects/{id}/deactivate [post]
func (h *LifecycleHandler) Deactivate(c *gin.Context) {
	if err := h.service.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"id": c.Param("id"), "status": "ARCHIVED"}, nil)
}

// ForceDeactivate godoc
// @Summary Archive a subject, dropping its enrollments and closing its offerings
// @Tags Lifecycle
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /subjects/{id}/force-deactivate [post]
func (h *LifecycleHandler) ForceDeactivate(c *gin.Context) {
	result, err := h.service.ForceDeactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ForceDelete godoc
// @Summary Permanently delete subjects with their offerings and enrollments
// @Tags Lifecycle
// @Accept json
// @Produce json
// @Param payload body forceDeleteRequest true "Deletion payload, confirm must be true"
// @Success 200 {object} response.Envelope
// @Router /subjects/force-delete [post]
func (h *LifecycleHandler) ForceDelete(c *gin.Context) {
	var req forceDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if !req.Confirm {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "confirm must be true for permanent deletion"))
		return
	}
	result, err := h.service.ForceDelete(c.Request.Context(), req.SubjectIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// BulkActivate godoc
// @Summary Activate every subject of a cohort class
// @Tags Lifecycle
// @Accept json
// @Produce json
// @Param payload body bulkActivateRequest true "Cohort class payload"
// @Success 200 {object} response.Envelope
// @Router /subjects/bulk-activate [post]
func (h *LifecycleHandler) BulkActivate(c *gin.Context) {
	var req bulkActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.BulkActivateCohortClass(c.Request.Context(), req.Cohort, req.ClassLabel)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
