package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-enrollment-api/internal/dto"
	"github.com/noah-isme/edu-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/edu-enrollment-api/pkg/errors"
	"github.com/noah-isme/edu-enrollment-api/pkg/storage"
)

type testEnv struct {
	store        *memStore
	cache        *memCache
	cacheSvc     *CacheService
	objects      *memObjectStore
	metrics      *MetricsService
	enrollments  *EnrollmentService
	rankings     *RankingService
	certificates *CertificateService
}

func newTestEnv(t *testing.T, cfg EnrollmentConfig) *testEnv {
	t.Helper()
	store := newMemStore()
	store.addUser("u1", "Ada", "Lovelace")
	store.addUser("u2", "Alan", "Turing")
	store.addUser("u3", "Grace", "Hopper")
	store.addCourse("c1", "Go Basics")
	store.addCourse("c2", "Distributed Systems")
	store.addMentor("m1", "Rob")
	store.addMentor("m2", "Ken")

	metrics := NewMetricsService()
	cacheRepo := newMemCache()
	cacheSvc := NewCacheService(cacheRepo, metrics, time.Minute, nil, true)
	repo := enrollmentFake{store}
	objects := &memObjectStore{}
	media := NewMediaService(objects, MediaConfig{MaxUploadBytes: 1 << 20, Image: storage.ImageOptions{MaxWidth: 64, MaxHeight: 64}}, metrics, nil)

	return &testEnv{
		store:        store,
		cache:        cacheRepo,
		cacheSvc:     cacheSvc,
		objects:      objects,
		metrics:      metrics,
		enrollments:  NewEnrollmentService(repo, userFake{store}, courseFake{store}, mentorFake{store}, cacheSvc, cfg, nil, nil),
		rankings:     NewRankingService(repo, cacheSvc, metrics, nil, nil, RankingConfig{CacheTTL: time.Minute}, nil),
		certificates: NewCertificateService(certificateFake{store}, repo, media, nil, "certificates", metrics, nil, nil),
	}
}

func (e *testEnv) enroll(t *testing.T, userID, courseID string, practical, theoretical float64) *models.EnrollmentDetail {
	t.Helper()
	detail, err := e.enrollments.Create(context.Background(), dto.CreateEnrollmentRequest{
		UserID:   userID,
		CourseID: courseID,
		Performance: &models.PerformancePatch{
			PracticalPercentage:   ptr(practical),
			TheoreticalPercentage: ptr(theoretical),
		},
	})
	require.NoError(t, err)
	return detail
}

func TestEnrollmentCreateDefaults(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{AllowStatusReversion: true})

	detail, err := env.enrollments.Create(context.Background(), dto.CreateEnrollmentRequest{UserID: "u1", CourseID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusEnrolled, detail.Status)
	assert.Equal(t, models.Performance{}, detail.Performance)
	assert.Nil(t, detail.Rank)
	assert.Equal(t, "Go Basics", detail.CourseName)
	assert.Equal(t, "Ada Lovelace", detail.UserName)
	assert.Empty(t, detail.Mentors)
}

func TestEnrollmentCreateRejectsDuplicatePair(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})
	env.enroll(t, "u1", "c1", 50, 50)

	_, err := env.enrollments.Create(context.Background(), dto.CreateEnrollmentRequest{UserID: "u1", CourseID: "c1"})
	requireAppError(t, err, appErrors.ErrDuplicateEnrollment)

	list, _, err := env.enrollments.List(context.Background(), models.EnrollmentFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEnrollmentCreateUnknownReferences(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})

	_, err := env.enrollments.Create(context.Background(), dto.CreateEnrollmentRequest{UserID: "u1", CourseID: "nope"})
	requireAppError(t, err, appErrors.ErrNotFound)

	_, err = env.enrollments.Create(context.Background(), dto.CreateEnrollmentRequest{UserID: "ghost", CourseID: "c1"})
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestEnrollmentCreateValidatesPerformance(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})

	_, err := env.enrollments.Create(context.Background(), dto.CreateEnrollmentRequest{
		UserID:      "u1",
		CourseID:    "c1",
		Performance: &models.PerformancePatch{PracticalPercentage: ptr(140.0)},
	})
	requireAppError(t, err, appErrors.ErrValidation)

	_, err = env.enrollments.Create(context.Background(), dto.CreateEnrollmentRequest{
		UserID:      "u1",
		CourseID:    "c1",
		Performance: &models.PerformancePatch{Grade: ptr(models.Grade("E"))},
	})
	requireAppError(t, err, appErrors.ErrValidation)
}

func TestEnrollmentUpdateMergesOnlyPresentFields(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})
	created := env.enroll(t, "u1", "c1", 72, 64)

	updated, err := env.enrollments.UpdateStatusAndPerformance(context.Background(), "u1", "c1", dto.UpdateEnrollmentRequest{
		Performance: &models.PerformancePatch{Feedback: ptr("solid work")},
	})
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "solid work", updated.Performance.Feedback)
	assert.Equal(t, 72.0, updated.Performance.PracticalPercentage)
	assert.Equal(t, 64.0, updated.Performance.TheoreticalPercentage)
	assert.Equal(t, models.EnrollmentStatusEnrolled, updated.Status)
}

func TestEnrollmentUpdateAppliesFalsyValues(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})
	env.enroll(t, "u1", "c1", 72, 64)
	_, err := env.enrollments.UpdateStatusAndPerformance(context.Background(), "u1", "c1", dto.UpdateEnrollmentRequest{
		Performance: &models.PerformancePatch{Feedback: ptr("draft"), Topic: ptr("channels")},
	})
	require.NoError(t, err)

	updated, err := env.enrollments.UpdateStatusAndPerformance(context.Background(), "u1", "c1", dto.UpdateEnrollmentRequest{
		Performance: &models.PerformancePatch{PracticalPercentage: ptr(0.0), Feedback: ptr("")},
	})
	require.NoError(t, err)

	assert.Equal(t, 0.0, updated.Performance.PracticalPercentage)
	assert.Equal(t, "", updated.Performance.Feedback)
	assert.Equal(t, "channels", updated.Performance.Topic)
}

func TestEnrollmentUpdateClearsGrade(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})
	ctx := context.Background()
	env.enroll(t, "u1", "c1", 80, 70)

	graded, err := env.enrollments.UpdateStatusAndPerformance(ctx, "u1", "c1", dto.UpdateEnrollmentRequest{
		Performance: &models.PerformancePatch{Grade: ptr(models.GradeA)},
	})
	require.NoError(t, err)
	assert.Equal(t, models.GradeA, graded.Performance.Grade)

	cleared, err := env.enrollments.UpdateStatusAndPerformance(ctx, "u1", "c1", dto.UpdateEnrollmentRequest{
		Performance: &models.PerformancePatch{Grade: ptr(models.GradeUnset)},
	})
	require.NoError(t, err)
	assert.Equal(t, models.GradeUnset, cleared.Performance.Grade)
	assert.Equal(t, 80.0, cleared.Performance.PracticalPercentage)

	_, err = env.enrollments.UpdateStatusAndPerformance(ctx, "u1", "c1", dto.UpdateEnrollmentRequest{
		Performance: &models.PerformancePatch{Grade: ptr(models.Grade("a+"))},
	})
	requireAppError(t, err, appErrors.ErrValidation)
}

func TestEnrollmentUpdateStampsCompletion(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{AllowStatusReversion: true})
	env.enroll(t, "u1", "c1", 80, 80)
	stamp := time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)
	env.enrollments.now = func() time.Time { return stamp }

	completed, err := env.enrollments.UpdateStatusAndPerformance(context.Background(), "u1", "c1", dto.UpdateEnrollmentRequest{
		Status: ptr(models.EnrollmentStatusCompleted),
	})
	require.NoError(t, err)
	require.NotNil(t, completed.Performance.CompletedAt)
	assert.True(t, stamp.Equal(*completed.Performance.CompletedAt))

	explicit := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	env.enroll(t, "u2", "c1", 70, 70)
	completed, err = env.enrollments.UpdateStatusAndPerformance(context.Background(), "u2", "c1", dto.UpdateEnrollmentRequest{
		Status:      ptr(models.EnrollmentStatusCompleted),
		Performance: &models.PerformancePatch{CompletedAt: &explicit},
	})
	require.NoError(t, err)
	assert.True(t, explicit.Equal(*completed.Performance.CompletedAt))
}

func TestEnrollmentStatusReversionPolicy(t *testing.T) {
	completedReq := dto.UpdateEnrollmentRequest{Status: ptr(models.EnrollmentStatusCompleted)}
	revertReq := dto.UpdateEnrollmentRequest{Status: ptr(models.EnrollmentStatusEnrolled)}

	strict := newTestEnv(t, EnrollmentConfig{AllowStatusReversion: false})
	strict.enroll(t, "u1", "c1", 90, 90)
	_, err := strict.enrollments.UpdateStatusAndPerformance(context.Background(), "u1", "c1", completedReq)
	require.NoError(t, err)
	_, err = strict.enrollments.UpdateStatusAndPerformance(context.Background(), "u1", "c1", revertReq)
	requireAppError(t, err, appErrors.ErrValidation)

	lenient := newTestEnv(t, EnrollmentConfig{AllowStatusReversion: true})
	lenient.enroll(t, "u1", "c1", 90, 90)
	_, err = lenient.enrollments.UpdateStatusAndPerformance(context.Background(), "u1", "c1", completedReq)
	require.NoError(t, err)
	reverted, err := lenient.enrollments.UpdateStatusAndPerformance(context.Background(), "u1", "c1", revertReq)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, reverted.Status)
}

func TestEnrollmentUpdateMissingPair(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})

	_, err := env.enrollments.UpdateStatusAndPerformance(context.Background(), "u1", "c1", dto.UpdateEnrollmentRequest{
		Performance: &models.PerformancePatch{Feedback: ptr("x")},
	})
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestEnrollmentListFilteredEmptyIsNotFound(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})
	env.enroll(t, "u1", "c1", 10, 10)

	_, _, err := env.enrollments.List(context.Background(), models.EnrollmentFilter{CourseID: "c2"})
	requireAppError(t, err, appErrors.ErrNotFound)

	all, pagination, err := env.enrollments.List(context.Background(), models.EnrollmentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, 20, pagination.PageSize)

	_, _, err = env.enrollments.List(context.Background(), models.EnrollmentFilter{Status: "paused"})
	requireAppError(t, err, appErrors.ErrValidation)
}

func TestMentorAssignmentIsIdempotentAndSymmetric(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})
	enrollment := env.enroll(t, "u1", "c1", 10, 10)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		detail, err := env.enrollments.AssignMentor(ctx, enrollment.ID, dto.AssignMentorRequest{MentorID: "m1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"m1"}, detail.MentorIDs)
		require.Len(t, detail.Mentors, 1)
		assert.Equal(t, "Rob", detail.Mentors[0].Name)
	}

	mentor, err := env.enrollments.GetMentor(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{enrollment.ID}, mentor.EnrollmentIDs)

	for i := 0; i < 2; i++ {
		detail, err := env.enrollments.RemoveMentor(ctx, enrollment.ID, "m1")
		require.NoError(t, err)
		assert.Empty(t, detail.MentorIDs)
	}
	mentor, err = env.enrollments.GetMentor(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, mentor.EnrollmentIDs)
}

func TestMentorAssignmentUnknownReferences(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})
	enrollment := env.enroll(t, "u1", "c1", 10, 10)

	_, err := env.enrollments.AssignMentor(context.Background(), enrollment.ID, dto.AssignMentorRequest{MentorID: "ghost"})
	requireAppError(t, err, appErrors.ErrNotFound)

	_, err = env.enrollments.AssignMentor(context.Background(), "missing", dto.AssignMentorRequest{MentorID: "m1"})
	requireAppError(t, err, appErrors.ErrNotFound)

	_, err = env.enrollments.GetMentor(context.Background(), "ghost")
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestEnrollmentDeleteKeepsCertificates(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})
	ctx := context.Background()
	enrollment := env.enroll(t, "u1", "c1", 10, 10)
	_, err := env.enrollments.AssignMentor(ctx, enrollment.ID, dto.AssignMentorRequest{MentorID: "m1"})
	require.NoError(t, err)
	cert, err := env.certificates.Issue(ctx, dto.IssueCertificateRequest{UserID: "u1", EnrollmentID: enrollment.ID})
	require.NoError(t, err)

	require.NoError(t, env.enrollments.Delete(ctx, enrollment.ID))

	_, err = env.enrollments.Get(ctx, enrollment.ID)
	requireAppError(t, err, appErrors.ErrNotFound)
	mentor, err := env.enrollments.GetMentor(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, mentor.EnrollmentIDs)

	still, err := env.certificates.Get(ctx, cert.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.ID, still.EnrollmentID)

	requireAppError(t, env.enrollments.Delete(ctx, enrollment.ID), appErrors.ErrNotFound)
}

func TestEnrollmentDeleteByUserAndCourse(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})
	env.enroll(t, "u1", "c1", 10, 10)

	require.NoError(t, env.enrollments.DeleteByUserAndCourse(context.Background(), "u1", "c1"))
	requireAppError(t, env.enrollments.DeleteByUserAndCourse(context.Background(), "u1", "c1"), appErrors.ErrNotFound)
}

func TestEnrollmentListByUserReadsEveryPage(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})
	for i := 0; i < 230; i++ {
		id := fmt.Sprintf("bulk-%03d", i)
		env.store.addCourse(id, "Course "+id)
		env.enroll(t, "u2", id, 50, 50)
	}
	env.enroll(t, "u1", "c1", 50, 50)

	enrollments, err := env.enrollments.ListByUser(context.Background(), "u2")
	require.NoError(t, err)
	require.Len(t, enrollments, 230)

	seen := map[string]bool{}
	for _, e := range enrollments {
		assert.Equal(t, "u2", e.UserID)
		seen[e.ID] = true
	}
	assert.Len(t, seen, 230)
}
