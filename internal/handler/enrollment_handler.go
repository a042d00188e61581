package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-krs-api/internal/middleware"
	"github.com/noah-isme/uni-krs-api/internal/models"
	"github.com/noah-isme/uni-krs-api/internal/service"
	appErrors "github.com/noah-isme/uni-krs-api/pkg/errors"
	"github.com/noah-isme/uni-krs-api/pkg/response"
)

func currentClaims(c *gin.Context) *models.JWTClaims {
	if value, ok := c.Get(middleware.ContextUserKey); ok {
		if claims, ok := value.(*models.JWTClaims); ok {
			return claims
		}
	}
	return nil
}

// EnrollmentHandler exposes enrollment ledger endpoints.
type EnrollmentHandler struct {
	service *service.EnrollmentService
}

// NewEnrollmentHandler constructs an enrollment handler.
func NewEnrollmentHandler(svc *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param subject_id query string false "Filter by subject"
// @Param offering_id query string false "Filter by offering"
// @Param term query string false "Filter by term"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	var filter models.EnrollmentFilter
	filter.StudentID = c.Query("student_id")
	filter.SubjectID = c.Query("subject_id")
	filter.OfferingID = c.Query("offering_id")
	filter.Term = c.Query("term")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	enrollments, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Enroll godoc
// @Summary Enroll a student into an offering
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := currentClaims(c); claims != nil && claims.Role == models.RoleStudent && req.StudentID != claims.UserID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "students may only enroll themselves"))
		return
	}
	enrollment, err := h.service.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Withdraw godoc
// @Summary Withdraw an enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 204 "No Content"
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Withdraw(c *gin.Context) {
	id := c.Param("id")
	if claims := currentClaims(c); claims != nil && claims.Role == models.RoleStudent {
		record, err := h.service.Get(c.Request.Context(), id)
		if err != nil {
			// Withdrawing a missing record stays a success for the owner
			// and everyone else alike.
			if appErrors.FromError(err).Status == http.StatusNotFound {
				response.NoContent(c)
				return
			}
			response.Error(c, err)
			return
		}
		if record.StudentID != claims.UserID {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "students may only withdraw their own enrollments"))
			return
		}
	}
	if err := h.service.Withdraw(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// StudentSchedule godoc
// @Summary List a student's enrollments for a term
// @Tags Enrollments
// @Produce json
// @Param studentId path string true "Student ID"
// @Param term query string true "Academic term"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/enrollments [get]
func (h *EnrollmentHandler) StudentSchedule(c *gin.Context) {
	term := c.Query("term")
	if term == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "term is required"))
		return
	}
	enrollments, err := h.service.ListByStudentAndTerm(c.Request.Context(), c.Param("studentId"), term)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// OfferingRoster godoc
// @Summary List enrollments of an offering
// @Tags Enrollments
// @Produce json
// @Param id path string true "Offering ID"
// @Success 200 {object} response.Envelope
// @Router /offerings/{id}/roster [get]
func (h *EnrollmentHandler) OfferingRoster(c *gin.Context) {
	enrollments, err := h.service.ListByOffering(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}
