package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-krs-api/internal/models"
	"github.com/noah-isme/uni-krs-api/internal/service"
	appErrors "github.com/noah-isme/uni-krs-api/pkg/errors"
	"github.com/noah-isme/uni-krs-api/pkg/response"
)

// SubjectHandler exposes subject catalog endpoints.
type SubjectHandler struct {
	service *service.CatalogService
}

// NewSubjectHandler constructs a subject handler.
func NewSubjectHandler(svc *service.CatalogService) *SubjectHandler {
	return &SubjectHandler{service: svc}
}

// List godoc
// @Summary List subjects
// @Tags Subjects
// @Produce json
// @Param cohort query string false "Filter by cohort"
// @Param class_label query string false "Filter by class label"
// @Param program query string false "Filter by study program"
// @Param status query string false "Filter by status (ACTIVE or ARCHIVED)"
// @Param teacher_id query string false "Filter by assigned teacher"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /subjects [get]
func (h *SubjectHandler) List(c *gin.Context) {
	var filter models.SubjectFilter
	filter.Cohort = c.Query("cohort")
	filter.ClassLabel = c.Query("class_label")
	filter.Program = c.Query("program")
	filter.Status = models.SubjectStatus(c.Query("status"))
	filter.TeacherID = c.Query("teacher_id")
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	subjects, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, pagination)
}

// Get godoc
// @Summary Get subject detail
// @Tags Subjects
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /subjects/{id} [get]
func (h *SubjectHandler) Get(c *gin.Context) {
	subject, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject, nil)
}

// ListByTeacher godoc
// @Summary List subjects taught by an instructor
// @Tags Subjects
// @Produce json
// @Param teacherId path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{teacherId}/subjects [get]
func (h *SubjectHandler) ListByTeacher(c *gin.Context) {
	subjects, err := h.service.ListByTeacher(c.Request.Context(), c.Param("teacherId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, nil)
}

// Create godoc
// @Summary Create subject
// @Tags Subjects
// @Accept json
// @Produce json
// @Param payload body service.UpsertSubjectRequest true "Subject payload"
// @Success 201 {object} response.Envelope
// @Router /subjects [post]
func (h *SubjectHandler) Create(c *gin.Context) {
	var req service.UpsertSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.ID = ""
	subject, err := h.service.Upsert(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subject)
}

type subjectStatusRequest struct {
	Status models.SubjectStatus `json:"status" binding:"required"`
}

// SetStatus godoc
// @Summary Set subject status
// @Description Pure status mutation; never touches offerings or enrollments
// @Tags Subjects
// @Accept json
// @Produce json
// @Param id path string true "Subject ID"
// @Param payload body subjectStatusRequest true "Status payload"
// @Success 204 "No Content"
// @Router /subjects/{id}/status [patch]
func (h *SubjectHandler) SetStatus(c *gin.Context) {
	var req subjectStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.SetStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Update godoc
// @Summary Update subject
// @Tags Subjects
// @Accept json
// @Produce json
// @Param id path string true "Subject ID"
// @Param payload body service.UpsertSubjectRequest true "Subject payload"
// @Success 200 {object} response.Envelope
// @Router /subjects/{id} [put]
func (h *SubjectHandler) Update(c *gin.Context) {
	var req service.UpsertSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.ID = c.Param("id")
	subject, err := h.service.Upsert(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject, nil)
}
