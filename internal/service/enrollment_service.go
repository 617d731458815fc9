package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-enrollment-api/internal/dto"
	"github.com/noah-isme/edu-enrollment-api/internal/models"
	"github.com/noah-isme/edu-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/edu-enrollment-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	ExistsForUserAndCourse(ctx context.Context, userID, courseID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatusAndPerformance(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id string) (bool, error)
	AddMentor(ctx context.Context, enrollmentID, mentorID string) (bool, error)
	RemoveMentor(ctx context.Context, enrollmentID, mentorID string) (bool, error)
	MentorsByEnrollment(ctx context.Context, enrollmentIDs []string) (map[string][]models.Mentor, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type mentorReader interface {
	FindByID(ctx context.Context, id string) (*models.Mentor, error)
	FindDetailByID(ctx context.Context, id string) (*models.MentorDetail, error)
}

type cohortInvalidator interface {
	InvalidateCourse(ctx context.Context, courseID string) error
}

// EnrollmentConfig carries the policy switches of the enrollment workflow.
type EnrollmentConfig struct {
	AllowStatusReversion bool
}

// EnrollmentService orchestrates enrollment workflows.
type EnrollmentService struct {
	repo      enrollmentRepository
	users     userReader
	courses   courseReader
	mentors   mentorReader
	cache     cohortInvalidator
	cfg       EnrollmentConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, users userReader, courses courseReader, mentors mentorReader, cache cohortInvalidator, cfg EnrollmentConfig, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:      repo,
		users:     users,
		courses:   courses,
		mentors:   mentors,
		cache:     cache,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns enrollments with pagination metadata. A filtered query matching nothing is NotFound.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list enrollments")
	}
	if len(enrollments) == 0 && filter.HasCriteria() {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "no enrollments match the filter")
	}
	if err := s.attachMentors(ctx, enrollments); err != nil {
		return nil, nil, err
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

const listByUserPageSize = 100

// ListByUser returns every enrollment of a user, reading the store page by page.
func (s *EnrollmentService) ListByUser(ctx context.Context, userID string) ([]models.EnrollmentDetail, error) {
	filter := models.EnrollmentFilter{UserID: userID, Page: 1, PageSize: listByUserPageSize}
	var all []models.EnrollmentDetail
	for {
		page, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to list enrollments")
		}
		all = append(all, page...)
		if len(page) < listByUserPageSize || len(all) >= total {
			break
		}
		filter.Page++
	}
	if len(all) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no enrollments match the filter")
	}
	if err := s.attachMentors(ctx, all); err != nil {
		return nil, err
	}
	return all, nil
}

// Get returns one enrollment with its references resolved.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Internal(err, "failed to load enrollment")
	}
	details := []models.EnrollmentDetail{*detail}
	if err := s.attachMentors(ctx, details); err != nil {
		return nil, err
	}
	return &details[0], nil
}

// Create registers a user to a course.
func (s *EnrollmentService) Create(ctx context.Context, req dto.CreateEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid enrollment payload")
	}
	if err := checkGrade(req.Performance); err != nil {
		return nil, err
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to load course")
	}
	if _, err := s.users.FindByID(ctx, req.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	exists, err := s.repo.ExistsForUserAndCourse(ctx, req.UserID, req.CourseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to validate enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
	}

	enrollment := &models.Enrollment{
		UserID:   req.UserID,
		CourseID: req.CourseID,
		Status:   models.EnrollmentStatusEnrolled,
	}
	if req.Status != nil {
		enrollment.Status = *req.Status
	}
	if req.Performance != nil {
		req.Performance.ApplyTo(&enrollment.Performance)
	}
	s.stampCompletion(enrollment, req.Performance)

	if err := s.repo.Create(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
		}
		return nil, appErrors.Internal(err, "failed to create enrollment")
	}
	s.invalidate(ctx, enrollment.CourseID)
	s.logger.Info("enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("user_id", enrollment.UserID),
		zap.String("course_id", enrollment.CourseID))
	return s.Get(ctx, enrollment.ID)
}

// UpdateStatusAndPerformance merges the patch into the enrollment of a user in a course.
func (s *EnrollmentService) UpdateStatusAndPerformance(ctx context.Context, userID, courseID string, req dto.UpdateEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid enrollment update")
	}
	if err := checkGrade(req.Performance); err != nil {
		return nil, err
	}
	enrollment, err := s.repo.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Internal(err, "failed to load enrollment")
	}
	if req.Status != nil {
		if enrollment.Status == models.EnrollmentStatusCompleted && *req.Status == models.EnrollmentStatusEnrolled && !s.cfg.AllowStatusReversion {
			return nil, appErrors.Clone(appErrors.ErrValidation, "completed enrollments cannot be reverted")
		}
		enrollment.Status = *req.Status
	}
	if req.Performance != nil {
		req.Performance.ApplyTo(&enrollment.Performance)
	}
	s.stampCompletion(enrollment, req.Performance)

	if err := s.repo.UpdateStatusAndPerformance(ctx, enrollment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Internal(err, "failed to update enrollment")
	}
	s.invalidate(ctx, enrollment.CourseID)
	return s.Get(ctx, enrollment.ID)
}

func checkGrade(patch *models.PerformancePatch) error {
	if patch != nil && !patch.GradeValid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown grade %q", *patch.Grade))
	}
	return nil
}

// stampCompletion records the completion time when an enrollment is completed without one.
func (s *EnrollmentService) stampCompletion(enrollment *models.Enrollment, patch *models.PerformancePatch) {
	if enrollment.Status != models.EnrollmentStatusCompleted || enrollment.Performance.CompletedAt != nil {
		return
	}
	if patch != nil && patch.CompletedAt != nil {
		return
	}
	completedAt := s.now()
	enrollment.Performance.CompletedAt = &completedAt
}

// AssignMentor links a mentor to an enrollment. Assigning twice is a no-op.
func (s *EnrollmentService) AssignMentor(ctx context.Context, enrollmentID string, req dto.AssignMentorRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid mentor assignment")
	}
	if _, err := s.loadEnrollment(ctx, enrollmentID); err != nil {
		return nil, err
	}
	if _, err := s.mentors.FindByID(ctx, req.MentorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "mentor not found")
		}
		return nil, appErrors.Internal(err, "failed to load mentor")
	}
	added, err := s.repo.AddMentor(ctx, enrollmentID, req.MentorID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to assign mentor")
	}
	if added {
		s.logger.Info("mentor assigned", zap.String("enrollment_id", enrollmentID), zap.String("mentor_id", req.MentorID))
	}
	return s.Get(ctx, enrollmentID)
}

// RemoveMentor unlinks a mentor from an enrollment. Removing a missing link is a no-op.
func (s *EnrollmentService) RemoveMentor(ctx context.Context, enrollmentID, mentorID string) (*models.EnrollmentDetail, error) {
	if _, err := s.loadEnrollment(ctx, enrollmentID); err != nil {
		return nil, err
	}
	removed, err := s.repo.RemoveMentor(ctx, enrollmentID, mentorID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to remove mentor")
	}
	if removed {
		s.logger.Info("mentor removed", zap.String("enrollment_id", enrollmentID), zap.String("mentor_id", mentorID))
	}
	return s.Get(ctx, enrollmentID)
}

// GetMentor returns a mentor together with their enrollment roster.
func (s *EnrollmentService) GetMentor(ctx context.Context, mentorID string) (*models.MentorDetail, error) {
	detail, err := s.mentors.FindDetailByID(ctx, mentorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "mentor not found")
		}
		return nil, appErrors.Internal(err, "failed to load mentor")
	}
	return detail, nil
}

// Delete removes an enrollment. Certificates referencing it are kept.
func (s *EnrollmentService) Delete(ctx context.Context, id string) error {
	enrollment, err := s.loadEnrollment(ctx, id)
	if err != nil {
		return err
	}
	return s.delete(ctx, enrollment)
}

// DeleteByUserAndCourse removes the enrollment of a user in a course.
func (s *EnrollmentService) DeleteByUserAndCourse(ctx context.Context, userID, courseID string) error {
	enrollment, err := s.repo.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Internal(err, "failed to load enrollment")
	}
	return s.delete(ctx, enrollment)
}

func (s *EnrollmentService) delete(ctx context.Context, enrollment *models.Enrollment) error {
	deleted, err := s.repo.Delete(ctx, enrollment.ID)
	if err != nil {
		return appErrors.Internal(err, "failed to delete enrollment")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	s.invalidate(ctx, enrollment.CourseID)
	s.logger.Info("enrollment deleted", zap.String("enrollment_id", enrollment.ID), zap.String("course_id", enrollment.CourseID))
	return nil
}

func (s *EnrollmentService) loadEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Internal(err, "failed to load enrollment")
	}
	return enrollment, nil
}

func (s *EnrollmentService) attachMentors(ctx context.Context, details []models.EnrollmentDetail) error {
	if len(details) == 0 {
		return nil
	}
	ids := make([]string, len(details))
	for i := range details {
		ids[i] = details[i].ID
	}
	mentors, err := s.repo.MentorsByEnrollment(ctx, ids)
	if err != nil {
		return appErrors.Internal(err, "failed to load mentors")
	}
	for i := range details {
		if list, ok := mentors[details[i].ID]; ok {
			details[i].Mentors = list
		} else {
			details[i].Mentors = []models.Mentor{}
		}
	}
	return nil
}

// invalidate drops the cached ranking of the course. Cache failures do not fail the mutation.
func (s *EnrollmentService) invalidate(ctx context.Context, courseID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateCourse(ctx, courseID); err != nil {
		s.logger.Warn("ranking cache invalidation failed", zap.String("course_id", courseID), zap.Error(err))
	}
}
