package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-enrollment-api/internal/models"
)

// MentorRepository reads mentor records and their enrollment rosters.
type MentorRepository struct {
	db *sqlx.DB
}

// NewMentorRepository constructs the repository.
func NewMentorRepository(db *sqlx.DB) *MentorRepository {
	return &MentorRepository{db: db}
}

// FindByID returns a mentor by identifier.
func (r *MentorRepository) FindByID(ctx context.Context, id string) (*models.Mentor, error) {
	const query = `SELECT id, name, email, phone, expertise, created_at, updated_at FROM mentors WHERE id = $1 LIMIT 1`
	var mentor models.Mentor
	if err := r.db.GetContext(ctx, &mentor, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find mentor by id: %w", err)
	}
	return &mentor, nil
}

// FindDetailByID returns the mentor together with the ids of enrollments they guide.
func (r *MentorRepository) FindDetailByID(ctx context.Context, id string) (*models.MentorDetail, error) {
	mentor, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	const query = `SELECT enrollment_id FROM enrollment_mentors WHERE mentor_id = $1 ORDER BY assigned_at, enrollment_id`
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, id); err != nil {
		return nil, fmt.Errorf("list mentor roster: %w", err)
	}
	return &models.MentorDetail{Mentor: *mentor, EnrollmentIDs: ids}, nil
}
