package dto

import "github.com/noah-isme/edu-enrollment-api/internal/models"

// CreateEnrollmentRequest registers a user to a course.
type CreateEnrollmentRequest struct {
	UserID      string                   `json:"userId" validate:"required"`
	CourseID    string                   `json:"courseId" validate:"required"`
	Status      *models.EnrollmentStatus `json:"status" validate:"omitempty,oneof=enrolled completed"`
	Performance *models.PerformancePatch `json:"performance"`
}

// UpdateEnrollmentRequest patches status and performance. Absent fields keep their values.
type UpdateEnrollmentRequest struct {
	Status      *models.EnrollmentStatus `json:"status" validate:"omitempty,oneof=enrolled completed"`
	Performance *models.PerformancePatch `json:"performance"`
}

// Empty reports whether the request changes nothing.
func (r UpdateEnrollmentRequest) Empty() bool {
	return r.Status == nil && (r.Performance == nil || r.Performance.Empty())
}

// AssignMentorRequest links a mentor to an enrollment.
type AssignMentorRequest struct {
	MentorID string `json:"mentorId" validate:"required"`
}
