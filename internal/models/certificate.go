package models

import (
	"strings"
	"time"
)

// CertificateType is the approval state of a certificate.
type CertificateType string

const (
	CertificateTypePending   CertificateType = "Pending"
	CertificateTypeApproved  CertificateType = "Approved"
	CertificateTypeCompleted CertificateType = "Completed"
	CertificateTypeRejected  CertificateType = "Rejected"
)

var certificateTypes = []CertificateType{
	CertificateTypePending,
	CertificateTypeApproved,
	CertificateTypeCompleted,
	CertificateTypeRejected,
}

// ParseCertificateType matches raw case-insensitively against the known types.
func ParseCertificateType(raw string) (CertificateType, bool) {
	raw = strings.TrimSpace(raw)
	for _, t := range certificateTypes {
		if strings.EqualFold(string(t), raw) {
			return t, true
		}
	}
	return "", false
}

// Issued reports whether the type counts as a granted certificate.
func (t CertificateType) Issued() bool {
	return t == CertificateTypeApproved || t == CertificateTypeCompleted
}

// CertificateStatus holds the image and approval type of a certificate.
type CertificateStatus struct {
	Image *string         `json:"image"`
	Type  CertificateType `json:"type"`
}

// HasImage reports whether an image URL is on file.
func (s CertificateStatus) HasImage() bool {
	return s.Image != nil && *s.Image != ""
}

// Consistent reports whether the status satisfies the image rule:
// anything other than Pending must carry an image.
func (s CertificateStatus) Consistent() bool {
	return s.Type == CertificateTypePending || s.HasImage()
}

// Certificate is issued per user and enrollment. It references the enrollment
// without being owned by it.
type Certificate struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	EnrollmentID string            `json:"enrollmentId"`
	BatchID      *string           `json:"batchId,omitempty"`
	Status       CertificateStatus `json:"status"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// CertificateDetail resolves the referenced user and the enrollment's course.
type CertificateDetail struct {
	Certificate
	UserName   string `json:"userName"`
	UserEmail  string `json:"userEmail"`
	CourseID   string `json:"courseId"`
	CourseName string `json:"courseName"`
}

// CertificateBatch is the result of a batch issuance.
type CertificateBatch struct {
	ID           string              `json:"batchId"`
	Certificates []CertificateDetail `json:"certificates"`
}
