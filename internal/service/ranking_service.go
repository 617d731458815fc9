package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-enrollment-api/internal/dto"
	"github.com/noah-isme/edu-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/edu-enrollment-api/pkg/errors"
	"github.com/noah-isme/edu-enrollment-api/pkg/export"
)

type cohortRepository interface {
	ListDetailsByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
	UpdateRanks(ctx context.Context, courseID string, assignments []models.RankAssignment) error
}

type rankingCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Generation(ctx context.Context, courseID string) (int64, error)
	Flush(ctx context.Context) error
}

// cachedCohort is a ranked cohort stamped with the generation it was read under.
type cachedCohort struct {
	Generation int64                     `json:"generation"`
	Members    []models.EnrollmentDetail `json:"members"`
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// RankingConfig tunes the ranking endpoints.
type RankingConfig struct {
	CacheTTL     time.Duration
	DefaultLimit int
}

// RankCohort orders a cohort in place by practical then theoretical percentage, both
// descending, and assigns 1-based ranks. Members equal on both keys keep their input order.
func RankCohort(cohort []models.EnrollmentDetail) []models.RankAssignment {
	sort.SliceStable(cohort, func(i, j int) bool {
		a, b := cohort[i].Performance, cohort[j].Performance
		if a.PracticalPercentage != b.PracticalPercentage {
			return a.PracticalPercentage > b.PracticalPercentage
		}
		return a.TheoreticalPercentage > b.TheoreticalPercentage
	})
	assignments := make([]models.RankAssignment, len(cohort))
	for i := range cohort {
		rank := i + 1
		cohort[i].Rank = &rank
		assignments[i] = models.RankAssignment{EnrollmentID: cohort[i].ID, Rank: rank}
	}
	return assignments
}

// RankingService computes, persists and serves cohort rankings.
type RankingService struct {
	repo    cohortRepository
	cache   rankingCache
	metrics *MetricsService
	csv     csvRenderer
	pdf     pdfRenderer
	cfg     RankingConfig
	logger  *zap.Logger
}

// NewRankingService constructs RankingService.
func NewRankingService(repo cohortRepository, cache rankingCache, metrics *MetricsService, csv csvRenderer, pdf pdfRenderer, cfg RankingConfig, logger *zap.Logger) *RankingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		exporter := export.NewPDFExporter()
		exporter.Landscape = true
		exporter.Weights = export.CohortColumnWeights
		pdf = exporter
	}
	return &RankingService{repo: repo, cache: cache, metrics: metrics, csv: csv, pdf: pdf, cfg: cfg, logger: logger}
}

// RankCohort recomputes and persists the ranks of every enrollment of a course.
func (s *RankingService) RankCohort(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	start := time.Now()
	generation, cacheable := s.generation(ctx, courseID)
	cohort, err := s.repo.ListDetailsByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load cohort")
	}
	if len(cohort) == 0 {
		return nil, appErrors.Clone(appErrors.ErrEmptyCohort, "")
	}

	assignments := RankCohort(cohort)
	if err := s.repo.UpdateRanks(ctx, courseID, assignments); err != nil {
		return nil, appErrors.Internal(err, "failed to persist ranks")
	}

	duration := time.Since(start)
	s.metrics.ObserveRankComputation(len(cohort), duration)
	s.logger.Info("cohort ranked",
		zap.String("course_id", courseID),
		zap.Int("size", len(cohort)),
		zap.Duration("duration", duration))

	if cacheable {
		entry := cachedCohort{Generation: generation, Members: cohort}
		if err := s.cache.Set(ctx, RankingCacheKey(courseID), entry, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("ranking cache write failed", zap.String("course_id", courseID), zap.Error(err))
		}
	}
	return cohort, nil
}

// TopPerformers returns the first limit members of the ranked cohort. A cached ranking
// is served while the cohort is unchanged.
func (s *RankingService) TopPerformers(ctx context.Context, courseID string, limit int) ([]models.EnrollmentDetail, bool, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	ranked, cached, err := s.ranked(ctx, courseID)
	if err != nil {
		return nil, false, err
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, cached, nil
}

// ExportCohort renders the whole ranked cohort.
func (s *RankingService) ExportCohort(ctx context.Context, courseID string, format dto.ExportFormat) (*dto.ExportFile, error) {
	ranked, _, err := s.ranked(ctx, courseID)
	if err != nil {
		return nil, err
	}
	rows := make([]export.CohortRow, len(ranked))
	for i, member := range ranked {
		rank := i + 1
		if member.Rank != nil {
			rank = *member.Rank
		}
		learner := member.UserName
		if learner == "" {
			learner = member.UserID
		}
		rows[i] = export.CohortRow{
			Rank:        rank,
			Learner:     learner,
			Email:       member.UserEmail,
			Practical:   member.Performance.PracticalPercentage,
			Theoretical: member.Performance.TheoreticalPercentage,
			Grade:       string(member.Performance.Grade),
			Status:      string(member.Status),
		}
	}
	data := export.CohortDataset(rows)
	base := fmt.Sprintf("cohort-%s", courseID)

	switch format {
	case dto.ExportFormatPDF:
		title := "Cohort ranking"
		if len(ranked) > 0 && ranked[0].CourseName != "" {
			title = "Cohort ranking: " + ranked[0].CourseName
		}
		body, err := s.pdf.Render(data, title)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to render cohort pdf")
		}
		return &dto.ExportFile{Filename: base + ".pdf", ContentType: "application/pdf", Body: body}, nil
	case dto.ExportFormatCSV:
		body, err := s.csv.Render(data)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to render cohort csv")
		}
		return &dto.ExportFile{Filename: base + ".csv", ContentType: "text/csv", Body: body}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

// FlushCache drops every cached ranking.
func (s *RankingService) FlushCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Flush(ctx); err != nil {
		return appErrors.Internal(err, "failed to flush ranking cache")
	}
	return nil
}

func (s *RankingService) ranked(ctx context.Context, courseID string) ([]models.EnrollmentDetail, bool, error) {
	if s.cache != nil {
		var entry cachedCohort
		hit, err := s.cache.Get(ctx, RankingCacheKey(courseID), &entry)
		if err == nil && hit && len(entry.Members) > 0 {
			current, err := s.cache.Generation(ctx, courseID)
			if err == nil && current == entry.Generation {
				return entry.Members, true, nil
			}
		}
	}
	ranked, err := s.RankCohort(ctx, courseID)
	return ranked, false, err
}

// generation must be read before the cohort is loaded.
func (s *RankingService) generation(ctx context.Context, courseID string) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	generation, err := s.cache.Generation(ctx, courseID)
	if err != nil {
		s.logger.Warn("ranking cache generation unavailable", zap.String("course_id", courseID), zap.Error(err))
		return 0, false
	}
	return generation, true
}
