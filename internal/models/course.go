package models

import "time"

// CourseMode describes how a course is delivered.
type CourseMode string

const (
	CourseModeOnline  CourseMode = "online"
	CourseModeOffline CourseMode = "offline"
	CourseModeBoth    CourseMode = "both"
)

// Course is a catalog entry. The catalog subsystem owns these records.
type Course struct {
	ID          string     `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description"`
	Mode        CourseMode `db:"mode" json:"mode"`
	Category    string     `db:"category" json:"category"`
	Subcategory string     `db:"subcategory" json:"subcategory"`
	Duration    string     `db:"duration" json:"duration"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}
