package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-enrollment-api/internal/dto"
	"github.com/noah-isme/edu-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/edu-enrollment-api/pkg/errors"
)

func member(id string, practical, theoretical float64) models.EnrollmentDetail {
	return models.EnrollmentDetail{Enrollment: models.Enrollment{
		ID:          id,
		Performance: models.Performance{PracticalPercentage: practical, TheoreticalPercentage: theoretical},
	}}
}

func TestRankCohortOrdersByPracticalThenTheoretical(t *testing.T) {
	cohort := []models.EnrollmentDetail{
		member("a", 70, 90),
		member("b", 85, 40),
		member("c", 70, 95),
		member("d", 10, 100),
	}

	assignments := RankCohort(cohort)

	ids := make([]string, len(cohort))
	for i, m := range cohort {
		ids[i] = m.ID
		require.NotNil(t, m.Rank)
		assert.Equal(t, i+1, *m.Rank)
	}
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids)
	assert.Equal(t, []models.RankAssignment{
		{EnrollmentID: "b", Rank: 1},
		{EnrollmentID: "c", Rank: 2},
		{EnrollmentID: "a", Rank: 3},
		{EnrollmentID: "d", Rank: 4},
	}, assignments)
}

func TestRankCohortKeepsInputOrderOnFullTies(t *testing.T) {
	cohort := []models.EnrollmentDetail{member("first", 50, 50), member("second", 50, 50), member("third", 50, 50)}

	RankCohort(cohort)

	assert.Equal(t, "first", cohort[0].ID)
	assert.Equal(t, "second", cohort[1].ID)
	assert.Equal(t, "third", cohort[2].ID)
}

func TestRankingServiceRanksCohortAndPersists(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})
	e1 := env.enroll(t, "u1", "c1", 80, 90)
	e2 := env.enroll(t, "u2", "c1", 90, 50)
	env.enroll(t, "u3", "c2", 100, 100)

	ranked, err := env.rankings.RankCohort(context.Background(), "c1")
	require.NoError(t, err)

	require.Len(t, ranked, 2)
	assert.Equal(t, e2.ID, ranked[0].ID)
	assert.Equal(t, 1, *ranked[0].Rank)
	assert.Equal(t, e1.ID, ranked[1].ID)
	assert.Equal(t, 2, *ranked[1].Rank)

	stored, err := env.enrollments.Get(context.Background(), e1.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Rank)
	assert.Equal(t, 2, *stored.Rank)

	other, err := env.enrollments.ListByUser(context.Background(), "u3")
	require.NoError(t, err)
	assert.Nil(t, other[0].Rank)
	assert.Equal(t, uint64(1), env.metrics.Snapshot().RankComputations)
}

func TestRankingServiceIsIdempotent(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})
	env.enroll(t, "u1", "c1", 60, 60)
	env.enroll(t, "u2", "c1", 60, 60)
	env.enroll(t, "u3", "c1", 95, 10)

	first, err := env.rankings.RankCohort(context.Background(), "c1")
	require.NoError(t, err)
	second, err := env.rankings.RankCohort(context.Background(), "c1")
	require.NoError(t, err)

	require.Len(t, second, len(first))
	seen := map[int]bool{}
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, *first[i].Rank, *second[i].Rank)
		assert.False(t, seen[*second[i].Rank])
		seen[*second[i].Rank] = true
	}
	assert.Equal(t, 2, env.store.rankWrites)
}

func TestRankingServiceEmptyCohort(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})

	_, err := env.rankings.RankCohort(context.Background(), "c1")
	requireAppError(t, err, appErrors.ErrEmptyCohort)

	_, _, err = env.rankings.TopPerformers(context.Background(), "c1", 5)
	requireAppError(t, err, appErrors.ErrEmptyCohort)
}

func TestTopPerformersServesCacheUntilCohortChanges(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})
	ctx := context.Background()
	env.enroll(t, "u1", "c1", 80, 90)
	env.enroll(t, "u2", "c1", 90, 50)

	top, cached, err := env.rankings.TopPerformers(ctx, "c1", 1)
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, top, 1)
	assert.Equal(t, "u2", top[0].UserID)
	assert.True(t, env.cache.has(RankingCacheKey("c1")))

	top, cached, err = env.rankings.TopPerformers(ctx, "c1", 5)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Len(t, top, 2)
	assert.Equal(t, 1, env.store.rankWrites)

	_, err = env.enrollments.UpdateStatusAndPerformance(ctx, "u1", "c1", dto.UpdateEnrollmentRequest{
		Performance: &models.PerformancePatch{PracticalPercentage: ptr(99.0)},
	})
	require.NoError(t, err)
	assert.False(t, env.cache.has(RankingCacheKey("c1")))

	top, cached, err = env.rankings.TopPerformers(ctx, "c1", 1)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "u1", top[0].UserID)

	snapshot := env.metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(2), snapshot.CacheMisses)
}

// changingCohort runs onLoad once, right after the cohort has been read.
type changingCohort struct {
	cohortRepository
	onLoad func()
}

func (c *changingCohort) ListDetailsByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	cohort, err := c.cohortRepository.ListDetailsByCourse(ctx, courseID)
	if c.onLoad != nil {
		load := c.onLoad
		c.onLoad = nil
		load()
	}
	return cohort, err
}

func TestTopPerformersIgnoresRankingOvertakenByUpdate(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})
	ctx := context.Background()
	env.enroll(t, "u1", "c1", 90, 90)
	env.enroll(t, "u2", "c1", 10, 10)

	repo := &changingCohort{cohortRepository: enrollmentFake{env.store}}
	repo.onLoad = func() {
		_, err := env.enrollments.UpdateStatusAndPerformance(ctx, "u2", "c1", dto.UpdateEnrollmentRequest{
			Performance: &models.PerformancePatch{PracticalPercentage: ptr(100.0)},
		})
		require.NoError(t, err)
	}
	rankings := NewRankingService(repo, env.cacheSvc, env.metrics, nil, nil, RankingConfig{CacheTTL: time.Minute}, nil)

	top, cached, err := rankings.TopPerformers(ctx, "c1", 1)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "u1", top[0].UserID)

	top, cached, err = rankings.TopPerformers(ctx, "c1", 1)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "u2", top[0].UserID)
	assert.Equal(t, 100.0, top[0].Performance.PracticalPercentage)

	top, cached, err = rankings.TopPerformers(ctx, "c1", 1)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "u2", top[0].UserID)
}

func TestTopPerformersFallsBackWhenCacheFails(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})
	env.enroll(t, "u1", "c1", 80, 90)
	env.cache.failGet = true

	top, cached, err := env.rankings.TopPerformers(context.Background(), "c1", 0)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Len(t, top, 1)
}

func TestFlushCacheDropsEveryRanking(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})
	env.enroll(t, "u1", "c1", 80, 90)
	env.enroll(t, "u2", "c2", 80, 90)
	_, _, err := env.rankings.TopPerformers(context.Background(), "c1", 0)
	require.NoError(t, err)
	_, _, err = env.rankings.TopPerformers(context.Background(), "c2", 0)
	require.NoError(t, err)

	require.NoError(t, env.rankings.FlushCache(context.Background()))
	assert.False(t, env.cache.has(RankingCacheKey("c1")))
	assert.False(t, env.cache.has(RankingCacheKey("c2")))
}

func TestExportCohort(t *testing.T) {
	env := newTestEnv(t, EnrollmentConfig{})
	env.enroll(t, "u1", "c1", 80, 90)
	env.enroll(t, "u2", "c1", 90, 50)

	file, err := env.rankings.ExportCohort(context.Background(), "c1", dto.ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "cohort-c1.csv", file.Filename)
	records, err := csv.NewReader(bytes.NewReader(file.Body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "1", records[1][0])
	assert.Equal(t, "Alan Turing", records[1][1])
	assert.Equal(t, "90.00", records[1][3])

	file, err = env.rankings.ExportCohort(context.Background(), "c1", dto.ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Body, []byte("%PDF")))

	_, err = env.rankings.ExportCohort(context.Background(), "c1", dto.ExportFormat("xlsx"))
	requireAppError(t, err, appErrors.ErrValidation)
}
