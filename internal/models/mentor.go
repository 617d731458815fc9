package models

import "time"

// Mentor guides learners through one or more enrollments.
type Mentor struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	Expertise string    `db:"expertise" json:"expertise"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// MentorDetail adds the mentor's roster of enrollment ids.
type MentorDetail struct {
	Mentor
	EnrollmentIDs []string `json:"enrollmentIds"`
}
