package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-enrollment-api/internal/dto"
	"github.com/noah-isme/edu-enrollment-api/internal/middleware"
	"github.com/noah-isme/edu-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/edu-enrollment-api/pkg/errors"
	"github.com/noah-isme/edu-enrollment-api/pkg/response"
)

type rankingService interface {
	TopPerformers(ctx context.Context, courseID string, limit int) ([]models.EnrollmentDetail, bool, error)
	ExportCohort(ctx context.Context, courseID string, format dto.ExportFormat) (*dto.ExportFile, error)
	FlushCache(ctx context.Context) error
}

// RankingHandler exposes cohort ranking endpoints.
type RankingHandler struct {
	rankings rankingService
}

// NewRankingHandler constructs RankingHandler.
func NewRankingHandler(rankings rankingService) *RankingHandler {
	return &RankingHandler{rankings: rankings}
}

// TopPerformers godoc
// @Summary Rank a course cohort and return the top performers
// @Tags Rankings
// @Produce json
// @Param courseId path string true "Course ID"
// @Param limit query int false "Number of learners"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/top-practical/{courseId} [get]
func (h *RankingHandler) TopPerformers(c *gin.Context) {
	limit := queryInt(c, "limit", 0)
	if limit < 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be positive"))
		return
	}
	ranked, cached, err := h.rankings.TopPerformers(c.Request.Context(), c.Param("courseId"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, ranked, nil, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export a ranked cohort
// @Tags Rankings
// @Produce text/csv
// @Produce application/pdf
// @Param courseId path string true "Course ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/top-practical/{courseId}/export [get]
func (h *RankingHandler) Export(c *gin.Context) {
	format, ok := dto.ParseExportFormat(c.Query("format"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}
	file, err := h.rankings.ExportCohort(c.Request.Context(), c.Param("courseId"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Body)
}

// FlushCache godoc
// @Summary Drop every cached ranking
// @Tags Rankings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /cache/rankings [delete]
func (h *RankingHandler) FlushCache(c *gin.Context) {
	if err := h.rankings.FlushCache(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "ranking cache flushed")
}
