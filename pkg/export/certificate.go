package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateDocument is the content printed on a certificate.
type CertificateDocument struct {
	CertificateID string
	Learner       string
	Course        string
	Status        string
	IssuedAt      time.Time
	ImageURL      string
}

// CertificateRenderer prints single-page landscape certificates.
type CertificateRenderer struct {
	Issuer string
}

// NewCertificateRenderer constructs a renderer signing documents with issuer.
func NewCertificateRenderer(issuer string) *CertificateRenderer {
	return &CertificateRenderer{Issuer: issuer}
}

// Render produces the certificate PDF.
func (r *CertificateRenderer) Render(doc CertificateDocument) ([]byte, error) {
	if doc.Learner == "" || doc.Course == "" {
		return nil, fmt.Errorf("certificate requires learner and course")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, 277, 190, "D")
	pdf.SetLineWidth(0.3)
	pdf.Rect(14, 14, 269, 182, "D")

	pdf.SetY(40)
	pdf.SetFont("Times", "B", 32)
	pdf.CellFormat(0, 14, "Certificate of Completion", "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Times", "", 16)
	pdf.CellFormat(0, 10, "This certifies that", "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "B", 26)
	pdf.CellFormat(0, 14, doc.Learner, "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "", 16)
	pdf.CellFormat(0, 10, "has successfully completed", "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "B", 20)
	pdf.CellFormat(0, 12, doc.Course, "", 1, "C", false, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Status: %s  |  Issued: %s", doc.Status, doc.IssuedAt.UTC().Format("02 January 2006")), "", 1, "C", false, 0, "")
	if r.Issuer != "" {
		pdf.CellFormat(0, 6, "Issued by "+r.Issuer, "", 1, "C", false, 0, "")
	}

	pdf.SetY(180)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 5, "Certificate ID: "+doc.CertificateID, "", 1, "C", false, 0, "")
	if doc.ImageURL != "" {
		pdf.SetTextColor(0, 0, 200)
		pdf.CellFormat(0, 5, doc.ImageURL, "", 1, "C", false, 0, doc.ImageURL)
		pdf.SetTextColor(0, 0, 0)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
