package dto

// UploadFile is an uploaded image held in memory.
type UploadFile struct {
	Name string
	Data []byte
}

// IssueCertificateRequest issues a single certificate. Without an image the type is forced to Pending.
type IssueCertificateRequest struct {
	UserID       string      `json:"userId" form:"userId" validate:"required"`
	EnrollmentID string      `json:"enrollmentId" form:"enrollmentId" validate:"required"`
	Type         string      `json:"type" form:"type"`
	Image        *UploadFile `json:"-" form:"-"`
}

// BatchCertificateEntry is one metadata element of a batch issuance.
// Entries are paired with uploaded images by position.
type BatchCertificateEntry struct {
	UserID       string `json:"userId" validate:"required"`
	EnrollmentID string `json:"enrollmentId" validate:"required"`
	Type         string `json:"type"`
}

// UpdateCertificateRequest patches the certificate of a user.
type UpdateCertificateRequest struct {
	EnrollmentID string      `json:"enrollmentId" form:"enrollmentId"`
	Type         *string     `json:"type" form:"type"`
	Image        *UploadFile `json:"-" form:"-"`
}

// Empty reports whether the request changes nothing.
func (r UpdateCertificateRequest) Empty() bool {
	return r.Type == nil && r.Image == nil
}
