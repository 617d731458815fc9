package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-enrollment-api/internal/models"
)

const certificateDetailQuery = `SELECT ct.id, ct.user_id, ct.enrollment_id, ct.batch_id, ct.image_url, ct.type, ct.created_at, ct.updated_at,
        COALESCE(u.first_name, '') AS user_first_name, COALESCE(u.last_name, '') AS user_last_name,
        COALESCE(u.email, '') AS user_email, COALESCE(e.course_id, '') AS course_id, COALESCE(c.name, '') AS course_name
FROM certificates ct
LEFT JOIN users u ON u.id = ct.user_id
LEFT JOIN enrollments e ON e.id = ct.enrollment_id
LEFT JOIN courses c ON c.id = e.course_id`

type certificateRow struct {
	ID            string    `db:"id"`
	UserID        string    `db:"user_id"`
	EnrollmentID  string    `db:"enrollment_id"`
	BatchID       *string   `db:"batch_id"`
	ImageURL      *string   `db:"image_url"`
	Type          string    `db:"type"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
	UserFirstName string    `db:"user_first_name"`
	UserLastName  string    `db:"user_last_name"`
	UserEmail     string    `db:"user_email"`
	CourseID      string    `db:"course_id"`
	CourseName    string    `db:"course_name"`
}

func (r certificateRow) toModel() models.CertificateDetail {
	user := models.User{FirstName: r.UserFirstName, LastName: r.UserLastName}
	return models.CertificateDetail{
		Certificate: models.Certificate{
			ID:           r.ID,
			UserID:       r.UserID,
			EnrollmentID: r.EnrollmentID,
			BatchID:      r.BatchID,
			Status: models.CertificateStatus{
				Image: r.ImageURL,
				Type:  models.CertificateType(r.Type),
			},
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		UserName:   user.FullName(),
		UserEmail:  r.UserEmail,
		CourseID:   r.CourseID,
		CourseName: r.CourseName,
	}
}

// CertificateRepository persists issued certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

const insertCertificate = `INSERT INTO certificates (id, user_id, enrollment_id, batch_id, image_url, type, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertCertificateWith(ctx context.Context, exec execer, cert *models.Certificate, now time.Time) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	cert.CreatedAt = now
	cert.UpdatedAt = now
	_, err := exec.ExecContext(ctx, insertCertificate, cert.ID, cert.UserID, cert.EnrollmentID, cert.BatchID,
		cert.Status.Image, cert.Status.Type, cert.CreatedAt, cert.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUniqueViolation
		}
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

// Create stores a single certificate.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	return insertCertificateWith(ctx, r.db, cert, time.Now().UTC())
}

// CreateBatch stores every certificate or none of them.
func (r *CertificateRepository) CreateBatch(ctx context.Context, certs []*models.Certificate) error {
	if len(certs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin certificate batch: %w", err)
	}
	now := time.Now().UTC()
	for _, cert := range certs {
		if err := insertCertificateWith(ctx, tx, cert, now); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit certificate batch: %w", err)
	}
	return nil
}

// FindByID returns a certificate with its resolved references.
func (r *CertificateRepository) FindByID(ctx context.Context, id string) (*models.CertificateDetail, error) {
	var row certificateRow
	if err := r.db.GetContext(ctx, &row, certificateDetailQuery+" WHERE ct.id = $1", id); err != nil {
		return nil, err
	}
	detail := row.toModel()
	return &detail, nil
}

// ListByUser returns the certificates of a user, newest first.
func (r *CertificateRepository) ListByUser(ctx context.Context, userID string) ([]models.CertificateDetail, error) {
	return r.list(ctx, certificateDetailQuery+" WHERE ct.user_id = $1 ORDER BY ct.created_at DESC, ct.id", userID)
}

// ListByBatch returns the certificates issued together, in creation order.
func (r *CertificateRepository) ListByBatch(ctx context.Context, batchID string) ([]models.CertificateDetail, error) {
	return r.list(ctx, certificateDetailQuery+" WHERE ct.batch_id = $1 ORDER BY ct.created_at, ct.id", batchID)
}

// List returns every certificate, newest first.
func (r *CertificateRepository) List(ctx context.Context) ([]models.CertificateDetail, error) {
	return r.list(ctx, certificateDetailQuery+" ORDER BY ct.created_at DESC, ct.id")
}

func (r *CertificateRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.CertificateDetail, error) {
	var rows []certificateRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	details := make([]models.CertificateDetail, len(rows))
	for i, row := range rows {
		details[i] = row.toModel()
	}
	return details, nil
}

// ExistsForEnrollment reports whether the user already holds a certificate for the enrollment.
func (r *CertificateRepository) ExistsForEnrollment(ctx context.Context, userID, enrollmentID string) (bool, error) {
	const query = "SELECT 1 FROM certificates WHERE user_id = $1 AND enrollment_id = $2 LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, userID, enrollmentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check certificate: %w", err)
	}
	return true, nil
}

// UpdateStatus writes the image and type of a certificate.
func (r *CertificateRepository) UpdateStatus(ctx context.Context, cert *models.Certificate) error {
	cert.UpdatedAt = time.Now().UTC()
	const query = `UPDATE certificates SET image_url = $2, type = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, cert.ID, cert.Status.Image, cert.Status.Type, cert.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update certificate: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteByID removes a certificate by its id and returns the number of removed rows.
func (r *CertificateRepository) DeleteByID(ctx context.Context, id string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM certificates WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete certificate: %w", err)
	}
	return res.RowsAffected()
}

// DeleteByUser removes the certificates of a user. A non-empty enrollmentID narrows
// the deletion to that enrollment.
func (r *CertificateRepository) DeleteByUser(ctx context.Context, userID, enrollmentID string) (int64, error) {
	query := `DELETE FROM certificates WHERE user_id = $1`
	args := []interface{}{userID}
	if enrollmentID != "" {
		query += ` AND enrollment_id = $2`
		args = append(args, enrollmentID)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete user certificates: %w", err)
	}
	return res.RowsAffected()
}
