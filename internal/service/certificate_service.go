package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-enrollment-api/internal/dto"
	"github.com/noah-isme/edu-enrollment-api/internal/models"
	"github.com/noah-isme/edu-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/edu-enrollment-api/pkg/errors"
	"github.com/noah-isme/edu-enrollment-api/pkg/export"
)

type certificateRepository interface {
	Create(ctx context.Context, cert *models.Certificate) error
	CreateBatch(ctx context.Context, certs []*models.Certificate) error
	FindByID(ctx context.Context, id string) (*models.CertificateDetail, error)
	ListByUser(ctx context.Context, userID string) ([]models.CertificateDetail, error)
	ListByBatch(ctx context.Context, batchID string) ([]models.CertificateDetail, error)
	List(ctx context.Context) ([]models.CertificateDetail, error)
	ExistsForEnrollment(ctx context.Context, userID, enrollmentID string) (bool, error)
	UpdateStatus(ctx context.Context, cert *models.Certificate) error
	DeleteByID(ctx context.Context, id string) (int64, error)
	DeleteByUser(ctx context.Context, userID, enrollmentID string) (int64, error)
}

type enrollmentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type imageUploader interface {
	Upload(ctx context.Context, file dto.UploadFile, folder string) (string, error)
	UploadAll(ctx context.Context, files []dto.UploadFile, folder string) ([]string, error)
}

type certificateRenderer interface {
	Render(doc export.CertificateDocument) ([]byte, error)
}

// CertificateService issues and maintains course certificates.
type CertificateService struct {
	repo        certificateRepository
	enrollments enrollmentLookup
	media       imageUploader
	renderer    certificateRenderer
	folder      string
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCertificateService constructs CertificateService.
func NewCertificateService(repo certificateRepository, enrollments enrollmentLookup, media imageUploader, renderer certificateRenderer, folder string, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CertificateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = export.NewCertificateRenderer("")
	}
	if folder == "" {
		folder = "certificates"
	}
	return &CertificateService{
		repo:        repo,
		enrollments: enrollments,
		media:       media,
		renderer:    renderer,
		folder:      folder,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

func parseType(raw string) (models.CertificateType, error) {
	if raw == "" {
		return models.CertificateTypePending, nil
	}
	t, ok := models.ParseCertificateType(raw)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown certificate type %q", raw))
	}
	return t, nil
}

// resolveEnrollment checks that the enrollment exists and belongs to the user.
func (s *CertificateService) resolveEnrollment(ctx context.Context, userID, enrollmentID string) error {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrRequired, fmt.Sprintf("enrollment %s not found", enrollmentID))
		}
		return appErrors.Internal(err, "failed to load enrollment")
	}
	if enrollment.UserID != userID {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("enrollment %s does not belong to user %s", enrollmentID, userID))
	}
	return nil
}

func (s *CertificateService) ensureNotIssued(ctx context.Context, userID, enrollmentID string) error {
	exists, err := s.repo.ExistsForEnrollment(ctx, userID, enrollmentID)
	if err != nil {
		return appErrors.Internal(err, "failed to check certificate")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrDuplicateCertificate, fmt.Sprintf("certificate already issued for enrollment %s", enrollmentID))
	}
	return nil
}

// Issue creates one certificate. Without an image the certificate stays Pending.
func (s *CertificateService) Issue(ctx context.Context, req dto.IssueCertificateRequest) (*models.CertificateDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid certificate payload")
	}
	certType, err := parseType(req.Type)
	if err != nil {
		return nil, err
	}
	if err := s.resolveEnrollment(ctx, req.UserID, req.EnrollmentID); err != nil {
		return nil, err
	}
	if err := s.ensureNotIssued(ctx, req.UserID, req.EnrollmentID); err != nil {
		return nil, err
	}

	cert := &models.Certificate{UserID: req.UserID, EnrollmentID: req.EnrollmentID}
	if req.Image != nil {
		url, err := s.media.Upload(ctx, *req.Image, s.folder)
		if err != nil {
			return nil, err
		}
		cert.Status = models.CertificateStatus{Image: &url, Type: certType}
	} else {
		cert.Status = models.CertificateStatus{Type: models.CertificateTypePending}
	}

	if err := s.repo.Create(ctx, cert); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateCertificate, "")
		}
		return nil, appErrors.Internal(err, "failed to create certificate")
	}
	s.metrics.ObserveCertificates(cert)
	s.logger.Info("certificate issued",
		zap.String("certificate_id", cert.ID),
		zap.String("user_id", cert.UserID),
		zap.String("type", string(cert.Status.Type)))
	return s.Get(ctx, cert.ID)
}

// IssueBatch issues one certificate per entry, pairing entries with images by position.
// Either every certificate is stored or none is.
func (s *CertificateService) IssueBatch(ctx context.Context, entries []dto.BatchCertificateEntry, images []dto.UploadFile) (*models.CertificateBatch, error) {
	if len(entries) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one certificate is required")
	}
	if len(entries) != len(images) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("received %d certificates but %d images", len(entries), len(images)))
	}

	types := make([]models.CertificateType, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for i, entry := range entries {
		if err := s.validator.Struct(entry); err != nil {
			return nil, appErrors.Validation(err, fmt.Sprintf("invalid certificate at position %d", i))
		}
		t, err := parseType(entry.Type)
		if err != nil {
			return nil, err
		}
		types[i] = t
		key := entry.UserID + "/" + entry.EnrollmentID
		if _, dup := seen[key]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("enrollment %s listed twice for user %s", entry.EnrollmentID, entry.UserID))
		}
		seen[key] = struct{}{}
		if err := s.resolveEnrollment(ctx, entry.UserID, entry.EnrollmentID); err != nil {
			return nil, err
		}
		if err := s.ensureNotIssued(ctx, entry.UserID, entry.EnrollmentID); err != nil {
			return nil, err
		}
	}

	urls, err := s.media.UploadAll(ctx, images, s.folder)
	if err != nil {
		return nil, err
	}
	if len(urls) != len(entries) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "every certificate needs an uploaded image")
	}

	batchID := uuid.NewString()
	certs := make([]*models.Certificate, len(entries))
	for i, entry := range entries {
		if urls[i] == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("certificate at position %d has no image", i))
		}
		url := urls[i]
		certs[i] = &models.Certificate{
			UserID:       entry.UserID,
			EnrollmentID: entry.EnrollmentID,
			BatchID:      &batchID,
			Status:       models.CertificateStatus{Image: &url, Type: types[i]},
		}
	}

	if err := s.repo.CreateBatch(ctx, certs); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateCertificate, "")
		}
		return nil, appErrors.Internal(err, "failed to store certificate batch")
	}
	s.metrics.ObserveCertificates(certs...)
	s.logger.Info("certificate batch issued", zap.String("batch_id", batchID), zap.Int("count", len(certs)))

	details, err := s.repo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load certificate batch")
	}
	return &models.CertificateBatch{ID: batchID, Certificates: details}, nil
}

// Get returns a certificate by id.
func (s *CertificateService) Get(ctx context.Context, id string) (*models.CertificateDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Internal(err, "failed to load certificate")
	}
	return detail, nil
}

// ListByUser returns the certificates of a user.
func (s *CertificateService) ListByUser(ctx context.Context, userID string) ([]models.CertificateDetail, error) {
	certs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list certificates")
	}
	if len(certs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no certificates found for user")
	}
	return certs, nil
}

// List returns every certificate.
func (s *CertificateService) List(ctx context.Context) ([]models.CertificateDetail, error) {
	certs, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list certificates")
	}
	return certs, nil
}

// findForUser picks the single certificate a user-scoped request refers to.
func (s *CertificateService) findForUser(ctx context.Context, userID, enrollmentID string) (*models.CertificateDetail, error) {
	certs, err := s.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if enrollmentID != "" {
		for i := range certs {
			if certs[i].EnrollmentID == enrollmentID {
				return &certs[i], nil
			}
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found for enrollment")
	}
	if len(certs) > 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user holds several certificates; enrollmentId is required")
	}
	return &certs[0], nil
}

// UpdateByUser merges a type and image patch into the certificate of a user.
// A certificate can only leave Pending once it carries an image.
func (s *CertificateService) UpdateByUser(ctx context.Context, userID string, req dto.UpdateCertificateRequest) (*models.CertificateDetail, error) {
	if req.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to update")
	}
	current, err := s.findForUser(ctx, userID, req.EnrollmentID)
	if err != nil {
		return nil, err
	}

	status := current.Status
	if req.Type != nil {
		t, ok := models.ParseCertificateType(*req.Type)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown certificate type %q", *req.Type))
		}
		status.Type = t
	}
	if status.Type != models.CertificateTypePending && !status.HasImage() && req.Image == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("a %s certificate requires an image", status.Type))
	}
	if req.Image != nil {
		url, err := s.media.Upload(ctx, *req.Image, s.folder)
		if err != nil {
			return nil, err
		}
		status.Image = &url
	}

	cert := current.Certificate
	cert.Status = status
	if err := s.repo.UpdateStatus(ctx, &cert); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Internal(err, "failed to update certificate")
	}
	s.logger.Info("certificate updated", zap.String("certificate_id", cert.ID), zap.String("type", string(cert.Status.Type)))
	return s.Get(ctx, cert.ID)
}

// DeleteByUser removes the certificates of a user, optionally only the one of an enrollment.
func (s *CertificateService) DeleteByUser(ctx context.Context, userID, enrollmentID string) (int64, error) {
	removed, err := s.repo.DeleteByUser(ctx, userID, enrollmentID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to delete certificates")
	}
	if removed == 0 {
		return 0, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
	}
	return removed, nil
}

// DeleteByID removes a certificate by id.
func (s *CertificateService) DeleteByID(ctx context.Context, id string) error {
	removed, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		return appErrors.Internal(err, "failed to delete certificate")
	}
	if removed == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
	}
	return nil
}

// RenderPDF prints an approved or completed certificate of a user.
func (s *CertificateService) RenderPDF(ctx context.Context, userID, enrollmentID string) (*dto.ExportFile, error) {
	cert, err := s.findForUser(ctx, userID, enrollmentID)
	if err != nil {
		return nil, err
	}
	if !cert.Status.Type.Issued() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("a %s certificate cannot be printed", cert.Status.Type))
	}
	doc := export.CertificateDocument{
		CertificateID: cert.ID,
		Learner:       firstNonEmpty(cert.UserName, cert.UserID),
		Course:        firstNonEmpty(cert.CourseName, cert.CourseID, cert.EnrollmentID),
		Status:        string(cert.Status.Type),
		IssuedAt:      cert.UpdatedAt,
	}
	if cert.Status.HasImage() {
		doc.ImageURL = *cert.Status.Image
	}
	body, err := s.renderer.Render(doc)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render certificate")
	}
	return &dto.ExportFile{Filename: fmt.Sprintf("certificate-%s.pdf", cert.ID), ContentType: "application/pdf", Body: body}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
