package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/edu-enrollment-api/internal/models"
)

const enrollmentColumns = `e.id, e.user_id, e.course_id, e.status, e.theoretical_percentage, e.practical_percentage,
        e.feedback, e.grade, e.completed_at, e.topic, e.rank, e.created_at, e.updated_at,
        ARRAY(SELECT em.mentor_id FROM enrollment_mentors em WHERE em.enrollment_id = e.id ORDER BY em.assigned_at, em.mentor_id) AS mentor_ids`

const enrollmentDetailColumns = enrollmentColumns + `,
        COALESCE(u.first_name, '') AS user_first_name, COALESCE(u.last_name, '') AS user_last_name,
        COALESCE(u.email, '') AS user_email, COALESCE(c.name, '') AS course_name, COALESCE(c.category, '') AS course_category`

const enrollmentDetailJoins = `FROM enrollments e
LEFT JOIN users u ON u.id = e.user_id
LEFT JOIN courses c ON c.id = e.course_id`

type enrollmentRow struct {
	ID                    string         `db:"id"`
	UserID                string         `db:"user_id"`
	CourseID              string         `db:"course_id"`
	Status                string         `db:"status"`
	TheoreticalPercentage float64        `db:"theoretical_percentage"`
	PracticalPercentage   float64        `db:"practical_percentage"`
	Feedback              string         `db:"feedback"`
	Grade                 string         `db:"grade"`
	CompletedAt           *time.Time     `db:"completed_at"`
	Topic                 string         `db:"topic"`
	Rank                  *int           `db:"rank"`
	MentorIDs             pq.StringArray `db:"mentor_ids"`
	CreatedAt             time.Time      `db:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at"`
}

func (r enrollmentRow) toModel() models.Enrollment {
	mentorIDs := []string(r.MentorIDs)
	if mentorIDs == nil {
		mentorIDs = []string{}
	}
	return models.Enrollment{
		ID:       r.ID,
		UserID:   r.UserID,
		CourseID: r.CourseID,
		Status:   models.EnrollmentStatus(r.Status),
		Performance: models.Performance{
			TheoreticalPercentage: r.TheoreticalPercentage,
			PracticalPercentage:   r.PracticalPercentage,
			Feedback:              r.Feedback,
			Grade:                 models.Grade(r.Grade),
			CompletedAt:           r.CompletedAt,
			Topic:                 r.Topic,
		},
		Rank:      r.Rank,
		MentorIDs: mentorIDs,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type enrollmentDetailRow struct {
	enrollmentRow
	UserFirstName  string `db:"user_first_name"`
	UserLastName   string `db:"user_last_name"`
	UserEmail      string `db:"user_email"`
	CourseName     string `db:"course_name"`
	CourseCategory string `db:"course_category"`
}

func (r enrollmentDetailRow) toModel() models.EnrollmentDetail {
	user := models.User{FirstName: r.UserFirstName, LastName: r.UserLastName}
	return models.EnrollmentDetail{
		Enrollment:     r.enrollmentRow.toModel(),
		UserName:       user.FullName(),
		UserEmail:      r.UserEmail,
		CourseName:     r.CourseName,
		CourseCategory: r.CourseCategory,
		Mentors:        []models.Mentor{},
	}
}

// EnrollmentRepository handles persistence of enrollments and their mentor links.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("e.user_id = $%d", len(args)))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)))
	}
	if filter.MentorID != "" {
		args = append(args, filter.MentorID)
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM enrollment_mentors fm WHERE fm.enrollment_id = e.id AND fm.mentor_id = $%d)", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)))
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s%s ORDER BY e.created_at DESC, e.id LIMIT %d OFFSET %d",
		enrollmentDetailColumns, enrollmentDetailJoins, clause, size, offset)

	var rows []enrollmentDetailRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM enrollments e" + clause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}

	details := make([]models.EnrollmentDetail, len(rows))
	for i, row := range rows {
		details[i] = row.toModel()
	}
	return details, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments e WHERE e.id = $1"
	var row enrollmentRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	enrollment := row.toModel()
	return &enrollment, nil
}

// FindByUserAndCourse returns the enrollment of a user in a course.
func (r *EnrollmentRepository) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments e WHERE e.user_id = $1 AND e.course_id = $2"
	var row enrollmentRow
	if err := r.db.GetContext(ctx, &row, query, userID, courseID); err != nil {
		return nil, err
	}
	enrollment := row.toModel()
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with user and course info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE e.id = $1", enrollmentDetailColumns, enrollmentDetailJoins)
	var row enrollmentDetailRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	detail := row.toModel()
	return &detail, nil
}

// ListDetailsByCourse returns the cohort of a course in retrieval order.
func (r *EnrollmentRepository) ListDetailsByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE e.course_id = $1 ORDER BY e.created_at, e.id", enrollmentDetailColumns, enrollmentDetailJoins)
	var rows []enrollmentDetailRow
	if err := r.db.SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, fmt.Errorf("list course cohort: %w", err)
	}
	details := make([]models.EnrollmentDetail, len(rows))
	for i, row := range rows {
		details[i] = row.toModel()
	}
	return details, nil
}

// ExistsForUserAndCourse checks whether the user already holds an enrollment in the course.
func (r *EnrollmentRepository) ExistsForUserAndCourse(ctx context.Context, userID, courseID string) (bool, error) {
	const query = "SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2 LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, userID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = enrollment.CreatedAt
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}
	if enrollment.MentorIDs == nil {
		enrollment.MentorIDs = []string{}
	}
	perf := enrollment.Performance
	const query = `INSERT INTO enrollments (id, user_id, course_id, status, theoretical_percentage, practical_percentage,
        feedback, grade, completed_at, topic, rank, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, $11, $12)`
	_, err := r.db.ExecContext(ctx, query, enrollment.ID, enrollment.UserID, enrollment.CourseID, enrollment.Status,
		perf.TheoreticalPercentage, perf.PracticalPercentage, perf.Feedback, perf.Grade, perf.CompletedAt, perf.Topic,
		enrollment.CreatedAt, enrollment.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUniqueViolation
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatusAndPerformance writes the status and the whole performance block.
func (r *EnrollmentRepository) UpdateStatusAndPerformance(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	perf := enrollment.Performance
	const query = `UPDATE enrollments SET status = $2, theoretical_percentage = $3, practical_percentage = $4,
        feedback = $5, grade = $6, completed_at = $7, topic = $8, updated_at = $9 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, enrollment.ID, enrollment.Status, perf.TheoreticalPercentage,
		perf.PracticalPercentage, perf.Feedback, perf.Grade, perf.CompletedAt, perf.Topic, enrollment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update enrollment performance: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateRanks rewrites the rank of every listed enrollment in a single transaction.
// Rewrites of the same course are serialised through an advisory lock.
func (r *EnrollmentRepository) UpdateRanks(ctx context.Context, courseID string, assignments []models.RankAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rank update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, courseID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("lock course ranks: %w", err)
	}
	const query = `UPDATE enrollments SET rank = $2 WHERE id = $1`
	for _, a := range assignments {
		if _, err := tx.ExecContext(ctx, query, a.EnrollmentID, a.Rank); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("update enrollment rank: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ranks: %w", err)
	}
	return nil
}

// Delete removes an enrollment and its mentor links. It reports whether a row was removed.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete enrollment: %w", err)
	}
	return affected > 0, nil
}

// AddMentor links a mentor to an enrollment. Existing links are left as they are.
func (r *EnrollmentRepository) AddMentor(ctx context.Context, enrollmentID, mentorID string) (bool, error) {
	const query = `INSERT INTO enrollment_mentors (enrollment_id, mentor_id, assigned_at) VALUES ($1, $2, $3)
        ON CONFLICT (enrollment_id, mentor_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, enrollmentID, mentorID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("assign mentor: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("assign mentor: %w", err)
	}
	return affected > 0, nil
}

// RemoveMentor unlinks a mentor from an enrollment.
func (r *EnrollmentRepository) RemoveMentor(ctx context.Context, enrollmentID, mentorID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollment_mentors WHERE enrollment_id = $1 AND mentor_id = $2`, enrollmentID, mentorID)
	if err != nil {
		return false, fmt.Errorf("remove mentor: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove mentor: %w", err)
	}
	return affected > 0, nil
}

// MentorsByEnrollment loads the mentors linked to each of the given enrollments.
func (r *EnrollmentRepository) MentorsByEnrollment(ctx context.Context, enrollmentIDs []string) (map[string][]models.Mentor, error) {
	result := make(map[string][]models.Mentor, len(enrollmentIDs))
	if len(enrollmentIDs) == 0 {
		return result, nil
	}
	const query = `SELECT em.enrollment_id, m.id, m.name, m.email, m.phone, m.expertise, m.created_at, m.updated_at
        FROM enrollment_mentors em
        JOIN mentors m ON m.id = em.mentor_id
        WHERE em.enrollment_id = ANY($1)
        ORDER BY em.assigned_at, m.id`
	var rows []struct {
		EnrollmentID string `db:"enrollment_id"`
		models.Mentor
	}
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(enrollmentIDs)); err != nil {
		return nil, fmt.Errorf("list enrollment mentors: %w", err)
	}
	for _, row := range rows {
		result[row.EnrollmentID] = append(result[row.EnrollmentID], row.Mentor)
	}
	return result, nil
}
