package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-krs-api/internal/models"
	"github.com/noah-isme/uni-krs-api/internal/service"
	appErrors "github.com/noah-isme/uni-krs-api/pkg/errors"
	"github.com/noah-isme/uni-krs-api/pkg/response"
)

// OfferingHandler exposes offering management endpoints.
type OfferingHandler struct {
	service *service.OfferingService
	export  *service.RosterExportService
}

// NewOfferingHandler constructs an offering handler.
func NewOfferingHandler(svc *service.OfferingService, export *service.RosterExportService) *OfferingHandler {
	return &OfferingHandler{service: svc, export: export}
}

type offeringStatusRequest struct {
	Status models.OfferingStatus `json:"status" binding:"required"`
}

// List godoc
// @Summary List offerings
// @Tags Offerings
// @Produce json
// @Param subject_id query string false "Filter by subject"
// @Param cohort query string false "Filter by cohort"
// @Param class_label query string false "Filter by class label"
// @Param term query string false "Filter by term"
// @Param status query string false "Filter by status (OPEN or CLOSED)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /offerings [get]
func (h *OfferingHandler) List(c *gin.Context) {
	var filter models.OfferingFilter
	filter.SubjectID = c.Query("subject_id")
	filter.Cohort = c.Query("cohort")
	filter.ClassLabel = c.Query("class_label")
	filter.Term = c.Query("term")
	filter.Status = models.OfferingStatus(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	offerings, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, offerings, pagination)
}

// Get godoc
// @Summary Get offering detail
// @Tags Offerings
// @Produce json
// @Param id path string true "Offering ID"
// @Success 200 {object} response.Envelope
// @Router /offerings/{id} [get]
func (h *OfferingHandler) Get(c *gin.Context) {
	offering, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, offering, nil)
}

// Open godoc
// @Summary Open a new offering
// @Tags Offerings
// @Accept json
// @Produce json
// @Param payload body service.OpenOfferingRequest true "Offering payload"
// @Success 201 {object} response.Envelope
// @Router /offerings [post]
func (h *OfferingHandler) Open(c *gin.Context) {
	var req service.OpenOfferingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	offering, err := h.service.Open(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, offering)
}

// SetStatus godoc
// @Summary Update offering status
// @Tags Offerings
// @Accept json
// @Produce json
// @Param id path string true "Offering ID"
// @Param payload body offeringStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /offerings/{id}/status [patch]
func (h *OfferingHandler) SetStatus(c *gin.Context) {
	var req offeringStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.SetStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"id": c.Param("id"), "status": req.Status}, nil)
}

// Capacity godoc
// @Summary Report seat usage for an offering
// @Tags Offerings
// @Produce json
// @Param id path string true "Offering ID"
// @Success 200 {object} response.Envelope
// @Router /offerings/{id}/capacity [get]
func (h *OfferingHandler) Capacity(c *gin.Context) {
	id := c.Param("id")
	offering, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	count, err := h.service.EnrollmentCount(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	full, err := h.service.IsFull(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload := gin.H{"id": id, "enrolled": count, "capacity": offering.Capacity, "full": full}
	if offering.Capacity != nil {
		payload["remaining"] = *offering.Capacity - count
	}
	response.JSON(c, http.StatusOK, payload, nil)
}

// ExportRoster godoc
// @Summary Export the enrollment roster of an offering
// @Tags Offerings
// @Produce application/octet-stream
// @Param id path string true "Offering ID"
// @Param format query string false "Export format (csv or pdf)" default(csv)
// @Success 200 {file} binary
// @Router /offerings/{id}/roster/export [get]
func (h *OfferingHandler) ExportRoster(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	result, err := h.export.Export(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+result.FileName)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}
