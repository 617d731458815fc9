package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-enrollment-api/internal/dto"
	"github.com/noah-isme/edu-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/edu-enrollment-api/pkg/errors"
	"github.com/noah-isme/edu-enrollment-api/pkg/response"
)

type enrollmentService interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error)
	ListByUser(ctx context.Context, userID string) ([]models.EnrollmentDetail, error)
	Get(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Create(ctx context.Context, req dto.CreateEnrollmentRequest) (*models.EnrollmentDetail, error)
	UpdateStatusAndPerformance(ctx context.Context, userID, courseID string, req dto.UpdateEnrollmentRequest) (*models.EnrollmentDetail, error)
	AssignMentor(ctx context.Context, enrollmentID string, req dto.AssignMentorRequest) (*models.EnrollmentDetail, error)
	RemoveMentor(ctx context.Context, enrollmentID, mentorID string) (*models.EnrollmentDetail, error)
	Delete(ctx context.Context, id string) error
	DeleteByUserAndCourse(ctx context.Context, userID, courseID string) error
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
	logger      *zap.Logger
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService, logger *zap.Logger) *EnrollmentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentHandler{enrollments: enrollments, logger: logger}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param userId query string false "Filter by user"
// @Param courseId query string false "Filter by course"
// @Param mentorId query string false "Filter by mentor"
// @Param status query string false "Filter by status (enrolled, completed)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	filter := models.EnrollmentFilter{
		UserID:   c.Query("userId"),
		CourseID: c.Query("courseId"),
		MentorID: c.Query("mentorId"),
		Status:   models.EnrollmentStatus(strings.ToLower(c.Query("status"))),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "limit", 20),
	}

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// ListByUser godoc
// @Summary List the enrollments of a user
// @Tags Enrollments
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{userId} [get]
func (h *EnrollmentHandler) ListByUser(c *gin.Context) {
	enrollments, err := h.enrollments.ListByUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollment/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	enrollment, err := h.enrollments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Create godoc
// @Summary Enroll a user in a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.CreateEnrollmentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req dto.CreateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Update godoc
// @Summary Update status and performance of an enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Param courseId path string true "Course ID"
// @Param payload body dto.UpdateEnrollmentRequest true "Patch; absent fields are kept"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{userId}/{courseId} [put]
func (h *EnrollmentHandler) Update(c *gin.Context) {
	var req dto.UpdateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.Empty() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "nothing to update"))
		return
	}
	enrollment, err := h.enrollments.UpdateStatusAndPerformance(c.Request.Context(), c.Param("userId"), c.Param("courseId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims := claimsFromContext(c); claims != nil {
		h.logger.Info("enrollment updated", zap.String("enrollment_id", enrollment.ID), zap.String("actor", claims.UserID))
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// DeleteByUserAndCourse godoc
// @Summary Remove the enrollment of a user in a course
// @Tags Enrollments
// @Produce json
// @Param userId path string true "User ID"
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{userId}/{courseId} [delete]
func (h *EnrollmentHandler) DeleteByUserAndCourse(c *gin.Context) {
	if err := h.enrollments.DeleteByUserAndCourse(c.Request.Context(), c.Param("userId"), c.Param("courseId")); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "enrollment deleted")
}

// Delete godoc
// @Summary Remove an enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollment/{id} [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	if err := h.enrollments.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "enrollment deleted")
}

// AssignMentor godoc
// @Summary Assign a mentor to an enrollment
// @Tags Mentors
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.AssignMentorRequest true "Mentor"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollment/{id}/mentors [post]
func (h *EnrollmentHandler) AssignMentor(c *gin.Context) {
	var req dto.AssignMentorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.AssignMentor(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// RemoveMentor godoc
// @Summary Remove a mentor from an enrollment
// @Tags Mentors
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param mentorId path string true "Mentor ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollment/{id}/mentors/{mentorId} [delete]
func (h *EnrollmentHandler) RemoveMentor(c *gin.Context) {
	enrollment, err := h.enrollments.RemoveMentor(c.Request.Context(), c.Param("id"), c.Param("mentorId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}
