package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionEnrollmentCreate  = "ENROLLMENT_CREATE"
	AuditActionEnrollmentUpdate  = "ENROLLMENT_UPDATE"
	AuditActionEnrollmentDelete  = "ENROLLMENT_DELETE"
	AuditActionMentorAssign      = "MENTOR_ASSIGN"
	AuditActionMentorRemove      = "MENTOR_REMOVE"
	AuditActionRankingFlush      = "RANKING_CACHE_FLUSH"
	AuditActionCertificateIssue  = "CERTIFICATE_ISSUE"
	AuditActionCertificateUpdate = "CERTIFICATE_UPDATE"
	AuditActionCertificateDelete = "CERTIFICATE_DELETE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"userId,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resourceId,omitempty"`
	NewValues  []byte    `db:"new_values" json:"newValues,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ipAddress"`
	UserAgent  string    `db:"user_agent" json:"userAgent"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
