package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-enrollment-api/internal/dto"
	"github.com/noah-isme/edu-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/edu-enrollment-api/pkg/errors"
	"github.com/noah-isme/edu-enrollment-api/pkg/response"
)

const (
	batchImagesField   = "images[]"
	batchMetadataField = "certificates"
	imageField         = "image"
)

type certificateService interface {
	Issue(ctx context.Context, req dto.IssueCertificateRequest) (*models.CertificateDetail, error)
	IssueBatch(ctx context.Context, entries []dto.BatchCertificateEntry, images []dto.UploadFile) (*models.CertificateBatch, error)
	Get(ctx context.Context, id string) (*models.CertificateDetail, error)
	ListByUser(ctx context.Context, userID string) ([]models.CertificateDetail, error)
	List(ctx context.Context) ([]models.CertificateDetail, error)
	UpdateByUser(ctx context.Context, userID string, req dto.UpdateCertificateRequest) (*models.CertificateDetail, error)
	DeleteByUser(ctx context.Context, userID, enrollmentID string) (int64, error)
	DeleteByID(ctx context.Context, id string) error
	RenderPDF(ctx context.Context, userID, enrollmentID string) (*dto.ExportFile, error)
}

// CertificateHandler exposes certificate endpoints.
type CertificateHandler struct {
	certificates certificateService
}

// NewCertificateHandler constructs CertificateHandler.
func NewCertificateHandler(certificates certificateService) *CertificateHandler {
	return &CertificateHandler{certificates: certificates}
}

// IssueBatch godoc
// @Summary Issue a batch of certificates
// @Description Images are paired with the certificates array by position. Nothing is stored unless every certificate is.
// @Tags Certificates
// @Accept multipart/form-data
// @Produce json
// @Param certificates formData string true "JSON array of {userId, enrollmentId, type}"
// @Param images[] formData file true "One image per certificate"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /certificate [post]
func (h *CertificateHandler) IssueBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "multipart form expected"))
		return
	}
	raw := form.Value[batchMetadataField]
	if len(raw) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "certificates field is required"))
		return
	}
	var entries []dto.BatchCertificateEntry
	if err := json.Unmarshal([]byte(raw[0]), &entries); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "certificates must be a JSON array"))
		return
	}

	headers := form.File[batchImagesField]
	if len(headers) == 0 {
		headers = form.File["images"]
	}
	images := make([]dto.UploadFile, 0, len(headers))
	for _, fh := range headers {
		file, err := readUpload(fh)
		if err != nil {
			response.Error(c, err)
			return
		}
		images = append(images, file)
	}

	batch, err := h.certificates.IssueBatch(c.Request.Context(), entries, images)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, batch)
}

// Issue godoc
// @Summary Issue one certificate
// @Description Without an image the certificate is stored as Pending.
// @Tags Certificates
// @Accept multipart/form-data
// @Produce json
// @Param userId formData string true "User ID"
// @Param enrollmentId formData string true "Enrollment ID"
// @Param type formData string false "Pending, Approved, Completed or Rejected"
// @Param image formData file false "Certificate image"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /certificate/issue [post]
func (h *CertificateHandler) Issue(c *gin.Context) {
	var req dto.IssueCertificateRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	image, err := optionalImage(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	req.Image = image

	cert, err := h.certificates.Issue(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cert)
}

// List godoc
// @Summary List certificates
// @Tags Certificates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /certificates [get]
func (h *CertificateHandler) List(c *gin.Context) {
	certs, err := h.certificates.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, certs, nil)
}

// ListByUser godoc
// @Summary List the certificates of a user
// @Tags Certificates
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificate/{userId} [get]
func (h *CertificateHandler) ListByUser(c *gin.Context) {
	certs, err := h.certificates.ListByUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, certs, nil)
}

// Update godoc
// @Summary Update the certificate of a user
// @Description A certificate can only leave Pending once it carries an image.
// @Tags Certificates
// @Accept multipart/form-data
// @Produce json
// @Param userId path string true "User ID"
// @Param enrollmentId formData string false "Required when the user holds several certificates"
// @Param type formData string false "New type"
// @Param image formData file false "Replacement image"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificate/{userId} [put]
func (h *CertificateHandler) Update(c *gin.Context) {
	req := dto.UpdateCertificateRequest{
		EnrollmentID: c.PostForm("enrollmentId"),
	}
	if req.EnrollmentID == "" {
		req.EnrollmentID = c.Query("enrollmentId")
	}
	if t, ok := c.GetPostForm("type"); ok {
		req.Type = &t
	}
	image, err := optionalImage(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	req.Image = image

	cert, err := h.certificates.UpdateByUser(c.Request.Context(), c.Param("userId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// DeleteByUser godoc
// @Summary Delete the certificates of a user
// @Tags Certificates
// @Produce json
// @Param userId path string true "User ID"
// @Param enrollmentId query string false "Only delete the certificate of this enrollment"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificate/{userId} [delete]
func (h *CertificateHandler) DeleteByUser(c *gin.Context) {
	removed, err := h.certificates.DeleteByUser(c.Request.Context(), c.Param("userId"), c.Query("enrollmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"removed": removed}, nil)
}

// DeleteByID godoc
// @Summary Delete a certificate
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificate/deleteById/{id} [delete]
func (h *CertificateHandler) DeleteByID(c *gin.Context) {
	if err := h.certificates.DeleteByID(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "certificate deleted")
}

// PDF godoc
// @Summary Download a certificate as PDF
// @Tags Certificates
// @Produce application/pdf
// @Param userId path string true "User ID"
// @Param enrollmentId query string false "Required when the user holds several certificates"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificate/{userId}/pdf [get]
func (h *CertificateHandler) PDF(c *gin.Context) {
	file, err := h.certificates.RenderPDF(c.Request.Context(), c.Param("userId"), c.Query("enrollmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Body)
}

// optionalImage reads the image form file when one was sent.
func optionalImage(c *gin.Context) (*dto.UploadFile, error) {
	fh, err := c.FormFile(imageField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid image upload")
	}
	file, err := readUpload(fh)
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func readUpload(fh *multipart.FileHeader) (dto.UploadFile, error) {
	f, err := fh.Open()
	if err != nil {
		return dto.UploadFile{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable upload")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return dto.UploadFile{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable upload")
	}
	return dto.UploadFile{Name: fh.Filename, Data: data}, nil
}
