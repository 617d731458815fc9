package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
)

// Valid reports whether s is a known status.
func (s EnrollmentStatus) Valid() bool {
	return s == EnrollmentStatusEnrolled || s == EnrollmentStatusCompleted
}

// Grade is the letter grade recorded with a performance. The empty grade means unset.
type Grade string

const (
	GradeUnset Grade = ""
	GradeA     Grade = "A"
	GradeB     Grade = "B"
	GradeC     Grade = "C"
	GradeD     Grade = "D"
	GradeF     Grade = "F"
)

// Valid reports whether the grade is a known letter or unset.
func (g Grade) Valid() bool {
	switch g {
	case GradeUnset, GradeA, GradeB, GradeC, GradeD, GradeF:
		return true
	}
	return false
}

// Performance is the assessment block owned by an enrollment.
type Performance struct {
	TheoreticalPercentage float64    `json:"theoreticalPercentage"`
	PracticalPercentage   float64    `json:"practicalPercentage"`
	Feedback              string     `json:"feedback"`
	Grade                 Grade      `json:"grade"`
	CompletedAt           *time.Time `json:"completedAt"`
	Topic                 string     `json:"topic"`
}

// PerformancePatch carries a partial performance update. Nil fields are left untouched.
type PerformancePatch struct {
	TheoreticalPercentage *float64   `json:"theoreticalPercentage" validate:"omitempty,gte=0,lte=100"`
	PracticalPercentage   *float64   `json:"practicalPercentage" validate:"omitempty,gte=0,lte=100"`
	Feedback              *string    `json:"feedback"`
	Grade                 *Grade     `json:"grade"`
	CompletedAt           *time.Time `json:"completedAt"`
	Topic                 *string    `json:"topic"`
}

// GradeValid reports whether the patch leaves the grade alone or sets a valid one.
func (p PerformancePatch) GradeValid() bool {
	return p.Grade == nil || p.Grade.Valid()
}

// Empty reports whether the patch carries no field at all.
func (p PerformancePatch) Empty() bool {
	return p.TheoreticalPercentage == nil && p.PracticalPercentage == nil && p.Feedback == nil &&
		p.Grade == nil && p.CompletedAt == nil && p.Topic == nil
}

// ApplyTo overwrites every field present in the patch.
func (p PerformancePatch) ApplyTo(perf *Performance) {
	if p.TheoreticalPercentage != nil {
		perf.TheoreticalPercentage = *p.TheoreticalPercentage
	}
	if p.PracticalPercentage != nil {
		perf.PracticalPercentage = *p.PracticalPercentage
	}
	if p.Feedback != nil {
		perf.Feedback = *p.Feedback
	}
	if p.Grade != nil {
		perf.Grade = *p.Grade
	}
	if p.CompletedAt != nil {
		completedAt := p.CompletedAt.UTC()
		perf.CompletedAt = &completedAt
	}
	if p.Topic != nil {
		perf.Topic = *p.Topic
	}
}

// Enrollment captures a user's registration to a course.
type Enrollment struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	CourseID    string           `json:"courseId"`
	Status      EnrollmentStatus `json:"status"`
	Performance Performance      `json:"performance"`
	Rank        *int             `json:"rank"`
	MentorIDs   []string         `json:"mentorIds"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// EnrollmentDetail enriches Enrollment with the referenced user, course and mentors.
type EnrollmentDetail struct {
	Enrollment
	UserName       string   `json:"userName"`
	UserEmail      string   `json:"userEmail"`
	CourseName     string   `json:"courseName"`
	CourseCategory string   `json:"courseCategory"`
	Mentors        []Mentor `json:"mentors"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	UserID   string
	CourseID string
	MentorID string
	Status   EnrollmentStatus
	Page     int
	PageSize int
}

// HasCriteria reports whether the filter narrows the result set.
func (f EnrollmentFilter) HasCriteria() bool {
	return f.UserID != "" || f.CourseID != "" || f.MentorID != "" || f.Status != ""
}

// RankAssignment pairs an enrollment with its computed cohort position.
type RankAssignment struct {
	EnrollmentID string
	Rank         int
}
