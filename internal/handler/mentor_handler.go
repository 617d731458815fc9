package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-enrollment-api/internal/models"
	"github.com/noah-isme/edu-enrollment-api/pkg/response"
)

type mentorService interface {
	GetMentor(ctx context.Context, mentorID string) (*models.MentorDetail, error)
}

// MentorHandler exposes mentor lookups.
type MentorHandler struct {
	mentors mentorService
}

// NewMentorHandler constructs MentorHandler.
func NewMentorHandler(mentors mentorService) *MentorHandler {
	return &MentorHandler{mentors: mentors}
}

// Get godoc
// @Summary Get a mentor with their enrollment roster
// @Tags Mentors
// @Produce json
// @Param id path string true "Mentor ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /mentors/{id} [get]
func (h *MentorHandler) Get(c *gin.Context) {
	mentor, err := h.mentors.GetMentor(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, mentor, nil)
}
