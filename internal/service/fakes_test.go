package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-enrollment-api/internal/dto"
	"github.com/noah-isme/edu-enrollment-api/internal/models"
	"github.com/noah-isme/edu-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/edu-enrollment-api/pkg/errors"
)

// memStore backs the enrollment, reference and certificate fakes with one shared state.
type memStore struct {
	mu           sync.Mutex
	seq          int
	clock        time.Time
	users        map[string]models.User
	courses      map[string]models.Course
	mentors      map[string]models.Mentor
	enrollments  map[string]*models.Enrollment
	links        map[string][]string
	certificates map[string]*models.Certificate
	rankWrites   int
}

func newMemStore() *memStore {
	return &memStore{
		clock:        time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		users:        map[string]models.User{},
		courses:      map[string]models.Course{},
		mentors:      map[string]models.Mentor{},
		enrollments:  map[string]*models.Enrollment{},
		links:        map[string][]string{},
		certificates: map[string]*models.Certificate{},
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%d", prefix, s.seq)
}

func (s *memStore) addUser(id, first, last string) {
	s.users[id] = models.User{ID: id, FirstName: first, LastName: last, Email: strings.ToLower(first) + "@example.com"}
}

func (s *memStore) addCourse(id, name string) {
	s.courses[id] = models.Course{ID: id, Name: name}
}

func (s *memStore) addMentor(id, name string) {
	s.mentors[id] = models.Mentor{ID: id, Name: name}
}

func (s *memStore) certificateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.certificates)
}

// enrollmentFake implements the enrollment and cohort repositories.
type enrollmentFake struct{ s *memStore }

func (f enrollmentFake) detail(e *models.Enrollment) models.EnrollmentDetail {
	d := models.EnrollmentDetail{Enrollment: *e}
	d.MentorIDs = append([]string{}, f.s.links[e.ID]...)
	d.Performance = e.Performance
	if u, ok := f.s.users[e.UserID]; ok {
		d.UserName = u.FullName()
		d.UserEmail = u.Email
	}
	if c, ok := f.s.courses[e.CourseID]; ok {
		d.CourseName = c.Name
		d.CourseCategory = c.Category
	}
	return d
}

func (f enrollmentFake) ordered() []*models.Enrollment {
	out := make([]*models.Enrollment, 0, len(f.s.enrollments))
	for _, e := range f.s.enrollments {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (f enrollmentFake) matching(filter models.EnrollmentFilter) []models.EnrollmentDetail {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.EnrollmentDetail
	for _, e := range f.ordered() {
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		if filter.CourseID != "" && e.CourseID != filter.CourseID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.MentorID != "" && !contains(f.s.links[e.ID], filter.MentorID) {
			continue
		}
		out = append(out, f.detail(e))
	}
	return out
}

func (f enrollmentFake) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	out := f.matching(filter)
	total := len(out)
	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	start := (page - 1) * size
	if start >= total {
		return nil, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (f enrollmentFake) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	e, ok := f.s.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *e
	cp.MentorIDs = append([]string{}, f.s.links[id]...)
	return &cp, nil
}

func (f enrollmentFake) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	e, ok := f.s.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	d := f.detail(e)
	return &d, nil
}

func (f enrollmentFake) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, e := range f.s.enrollments {
		if e.UserID == userID && e.CourseID == courseID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f enrollmentFake) ExistsForUserAndCourse(ctx context.Context, userID, courseID string) (bool, error) {
	_, err := f.FindByUserAndCourse(ctx, userID, courseID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (f enrollmentFake) Create(ctx context.Context, enrollment *models.Enrollment) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, e := range f.s.enrollments {
		if e.UserID == enrollment.UserID && e.CourseID == enrollment.CourseID {
			return repository.ErrUniqueViolation
		}
	}
	enrollment.ID = f.s.nextID("e")
	now := f.s.tick()
	enrollment.CreatedAt, enrollment.UpdatedAt = now, now
	enrollment.MentorIDs = []string{}
	cp := *enrollment
	f.s.enrollments[cp.ID] = &cp
	return nil
}

func (f enrollmentFake) UpdateStatusAndPerformance(ctx context.Context, enrollment *models.Enrollment) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	current, ok := f.s.enrollments[enrollment.ID]
	if !ok {
		return sql.ErrNoRows
	}
	current.Status = enrollment.Status
	current.Performance = enrollment.Performance
	current.UpdatedAt = f.s.tick()
	return nil
}

func (f enrollmentFake) Delete(ctx context.Context, id string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.enrollments[id]; !ok {
		return false, nil
	}
	delete(f.s.enrollments, id)
	delete(f.s.links, id)
	return true, nil
}

func (f enrollmentFake) AddMentor(ctx context.Context, enrollmentID, mentorID string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if contains(f.s.links[enrollmentID], mentorID) {
		return false, nil
	}
	f.s.links[enrollmentID] = append(f.s.links[enrollmentID], mentorID)
	return true, nil
}

func (f enrollmentFake) RemoveMentor(ctx context.Context, enrollmentID, mentorID string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	links := f.s.links[enrollmentID]
	for i, id := range links {
		if id == mentorID {
			f.s.links[enrollmentID] = append(links[:i:i], links[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f enrollmentFake) MentorsByEnrollment(ctx context.Context, enrollmentIDs []string) (map[string][]models.Mentor, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := make(map[string][]models.Mentor)
	for _, id := range enrollmentIDs {
		for _, mentorID := range f.s.links[id] {
			out[id] = append(out[id], f.s.mentors[mentorID])
		}
	}
	return out, nil
}

func (f enrollmentFake) ListDetailsByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	return f.matching(models.EnrollmentFilter{CourseID: courseID}), nil
}

func (f enrollmentFake) UpdateRanks(ctx context.Context, courseID string, assignments []models.RankAssignment) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.rankWrites++
	for _, a := range assignments {
		if e, ok := f.s.enrollments[a.EnrollmentID]; ok {
			rank := a.Rank
			e.Rank = &rank
		}
	}
	return nil
}

type userFake struct{ s *memStore }

func (f userFake) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := f.s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

type courseFake struct{ s *memStore }

func (f courseFake) FindByID(ctx context.Context, id string) (*models.Course, error) {
	c, ok := f.s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

type mentorFake struct{ s *memStore }

func (f mentorFake) FindByID(ctx context.Context, id string) (*models.Mentor, error) {
	m, ok := f.s.mentors[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &m, nil
}

func (f mentorFake) FindDetailByID(ctx context.Context, id string) (*models.MentorDetail, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	m, ok := f.s.mentors[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := &models.MentorDetail{Mentor: m, EnrollmentIDs: []string{}}
	enrollments := enrollmentFake{f.s}
	for _, e := range enrollments.ordered() {
		if contains(f.s.links[e.ID], id) {
			detail.EnrollmentIDs = append(detail.EnrollmentIDs, e.ID)
		}
	}
	return detail, nil
}

// certificateFake implements the certificate repository.
type certificateFake struct{ s *memStore }

func (f certificateFake) detail(c *models.Certificate) models.CertificateDetail {
	d := models.CertificateDetail{Certificate: *c}
	if u, ok := f.s.users[c.UserID]; ok {
		d.UserName = u.FullName()
		d.UserEmail = u.Email
	}
	if e, ok := f.s.enrollments[c.EnrollmentID]; ok {
		d.CourseID = e.CourseID
		d.CourseName = f.s.courses[e.CourseID].Name
	}
	return d
}

func (f certificateFake) insert(cert *models.Certificate, now time.Time) error {
	for _, c := range f.s.certificates {
		if c.UserID == cert.UserID && c.EnrollmentID == cert.EnrollmentID {
			return repository.ErrUniqueViolation
		}
	}
	cert.ID = f.s.nextID("cert-")
	cert.CreatedAt, cert.UpdatedAt = now, now
	cp := *cert
	f.s.certificates[cp.ID] = &cp
	return nil
}

func (f certificateFake) Create(ctx context.Context, cert *models.Certificate) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.insert(cert, f.s.tick())
}

func (f certificateFake) CreateBatch(ctx context.Context, certs []*models.Certificate) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	snapshot := make(map[string]*models.Certificate, len(f.s.certificates))
	for k, v := range f.s.certificates {
		snapshot[k] = v
	}
	now := f.s.tick()
	for _, cert := range certs {
		if err := f.insert(cert, now); err != nil {
			f.s.certificates = snapshot
			return err
		}
	}
	return nil
}

func (f certificateFake) FindByID(ctx context.Context, id string) (*models.CertificateDetail, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.certificates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	d := f.detail(c)
	return &d, nil
}

func (f certificateFake) filter(keep func(*models.Certificate) bool) []models.CertificateDetail {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.CertificateDetail
	for _, c := range f.s.certificates {
		if keep(c) {
			out = append(out, f.detail(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f certificateFake) ListByUser(ctx context.Context, userID string) ([]models.CertificateDetail, error) {
	return f.filter(func(c *models.Certificate) bool { return c.UserID == userID }), nil
}

func (f certificateFake) ListByBatch(ctx context.Context, batchID string) ([]models.CertificateDetail, error) {
	return f.filter(func(c *models.Certificate) bool { return c.BatchID != nil && *c.BatchID == batchID }), nil
}

func (f certificateFake) List(ctx context.Context) ([]models.CertificateDetail, error) {
	return f.filter(func(*models.Certificate) bool { return true }), nil
}

func (f certificateFake) ExistsForEnrollment(ctx context.Context, userID, enrollmentID string) (bool, error) {
	return len(f.filter(func(c *models.Certificate) bool { return c.UserID == userID && c.EnrollmentID == enrollmentID })) > 0, nil
}

func (f certificateFake) UpdateStatus(ctx context.Context, cert *models.Certificate) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	current, ok := f.s.certificates[cert.ID]
	if !ok {
		return sql.ErrNoRows
	}
	current.Status = cert.Status
	current.UpdatedAt = f.s.tick()
	return nil
}

func (f certificateFake) DeleteByID(ctx context.Context, id string) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.certificates[id]; !ok {
		return 0, nil
	}
	delete(f.s.certificates, id)
	return 1, nil
}

func (f certificateFake) DeleteByUser(ctx context.Context, userID, enrollmentID string) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var removed int64
	for id, c := range f.s.certificates {
		if c.UserID == userID && (enrollmentID == "" || c.EnrollmentID == enrollmentID) {
			delete(f.s.certificates, id)
			removed++
		}
	}
	return removed, nil
}

// memCache is an in-process CacheRepository.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	failGet bool
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return errors.New("connection refused")
	}
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *memCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *memCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

func (c *memCache) Incr(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var value int64
	if raw, ok := c.entries[key]; ok {
		if err := json.Unmarshal(raw, &value); err != nil {
			return 0, err
		}
	}
	value++
	raw, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}
	c.entries[key] = raw
	return value, nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// memObjectStore records uploads and can fail on a given call.
type memObjectStore struct {
	mu      sync.Mutex
	uploads []string
	failAt  int
}

func (s *memObjectStore) Name() string { return "memory" }

func (s *memObjectStore) Upload(ctx context.Context, folder, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.uploads)+1 == s.failAt {
		return "", errors.New("storage unavailable")
	}
	url := "https://cdn.test/" + folder + "/" + name
	s.uploads = append(s.uploads, url)
	return url, nil
}

func (s *memObjectStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func upload(t *testing.T, name string) dto.UploadFile {
	return dto.UploadFile{Name: name, Data: pngBytes(t, 16, 12)}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func ptr[T any](v T) *T { return &v }

func requireAppError(t *testing.T, err error, want *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected app error, got %v", err)
	require.Equal(t, want.Code, appErr.Code, appErr.Message)
	require.Equal(t, want.Status, appErr.Status)
}
