package render

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-cert-api/internal/models"
)

// Page geometry in millimetres for a landscape A4 certificate.
const (
	pageWidth  = 297.0
	pageHeight = 210.0
)

// region is a named fixed rectangle on the certificate page. All text is
// drawn at these pre-calibrated coordinates against the background template;
// nothing reflows, so field positions are stable across viewers.
type region struct {
	X, Y, W, H float64
}

// Field regions calibrated against the default background template.
var (
	regionInstitution   = region{X: 48.5, Y: 28, W: 200, H: 10}
	regionTitle         = region{X: 48.5, Y: 44, W: 200, H: 12}
	regionStudentName   = region{X: 48.5, Y: 78, W: 200, H: 14}
	regionGuardianName  = region{X: 48.5, Y: 94, W: 200, H: 8}
	regionStudentNumber = region{X: 48.5, Y: 104, W: 200, H: 7}
	regionCourseLabel   = region{X: 48.5, Y: 116, W: 200, H: 7}
	regionCourseTitle   = region{X: 48.5, Y: 124, W: 200, H: 10}
	regionGrade         = region{X: 48.5, Y: 138, W: 200, H: 8}
	regionIssueDate     = region{X: 30, Y: 178, W: 90, H: 7}
	regionCertificateID = region{X: 30, Y: 186, W: 90, H: 6}
	regionQRCode        = region{X: 243, Y: 156, W: 38, H: 38}
)

// Options configures the renderer.
type Options struct {
	InstitutionName string
	FrontendBaseURL string
	TemplatePath    string
}

// CertificateRenderer produces the fixed-layout certificate document. It is
// stateless apart from configuration and safe for concurrent use.
type CertificateRenderer struct {
	opts   Options
	logger *zap.Logger
}

// NewCertificateRenderer constructs a renderer.
func NewCertificateRenderer(opts Options, logger *zap.Logger) *CertificateRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.FrontendBaseURL = strings.TrimRight(opts.FrontendBaseURL, "/")
	return &CertificateRenderer{opts: opts, logger: logger}
}

// VerificationURL returns the public lookup URL encoded into the QR code.
func (r *CertificateRenderer) VerificationURL(certificateID string) string {
	return fmt.Sprintf("%s/verify-certificate/%s", r.opts.FrontendBaseURL, certificateID)
}

// Render produces the certificate PDF. Missing template and failed QR
// generation degrade the document rather than failing it; the only errors
// surfaced are from the PDF engine itself.
func (r *CertificateRenderer) Render(cert models.Certificate) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	// Sorted catalog output keeps font/resource object ordering stable
	// across renders; without it gofpdf emits them in map-iteration order.
	pdf.SetCatalogSort(true)
	pdf.SetAutoPageBreak(false, 0)
	// Uncompressed output keeps the byte stream reproducible for
	// downstream validators.
	pdf.SetCompression(false)
	pdf.SetTitle(fmt.Sprintf("Certificate %s", cert.CertificateID), true)
	pdf.SetAuthor(r.opts.InstitutionName, true)
	pdf.SetCreator("lms-cert-api", true)
	pdf.SetCreationDate(cert.IssueDate.UTC())
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	r.drawBackground(pdf)

	pdf.SetTextColor(40, 40, 40)

	pdf.SetFont("Helvetica", "B", 18)
	drawText(pdf, regionInstitution, tr(strings.ToUpper(r.opts.InstitutionName)))

	pdf.SetFont("Times", "B", 30)
	drawText(pdf, regionTitle, "Certificate of Completion")

	pdf.SetFont("Times", "B", 26)
	drawText(pdf, regionStudentName, tr(cert.StudentName))

	if cert.GuardianName != "" {
		pdf.SetFont("Helvetica", "", 12)
		drawText(pdf, regionGuardianName, tr(fmt.Sprintf("Son/Daughter of %s", cert.GuardianName)))
	}

	pdf.SetFont("Helvetica", "", 11)
	drawText(pdf, regionStudentNumber, tr(fmt.Sprintf("Student ID: %s", cert.StudentNumber)))

	pdf.SetFont("Helvetica", "", 12)
	drawText(pdf, regionCourseLabel, "has successfully completed the course")

	pdf.SetFont("Times", "B", 18)
	drawText(pdf, regionCourseTitle, tr(cert.CourseTitle))

	if cert.Grade != "" {
		pdf.SetFont("Helvetica", "B", 13)
		drawText(pdf, regionGrade, tr(fmt.Sprintf("Grade: %s", cert.Grade)))
	}

	pdf.SetFont("Helvetica", "", 10)
	drawTextLeft(pdf, regionIssueDate, fmt.Sprintf("Issued on %s", cert.IssueDate.Format("January 2, 2006")))

	pdf.SetFont("Courier", "", 9)
	drawTextLeft(pdf, regionCertificateID, fmt.Sprintf("Certificate ID: %s", cert.CertificateID))

	r.drawQRCode(pdf, cert.CertificateID)

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// drawBackground registers the template image stretched over the full page,
// falling back to a solid parchment fill with a frame when the template is
// missing or unreadable. The image is decoded up front: gofpdf's error
// state is sticky, so a broken template must never reach the PDF engine.
func (r *CertificateRenderer) drawBackground(pdf *gofpdf.Fpdf) {
	if r.opts.TemplatePath != "" {
		data, err := os.ReadFile(r.opts.TemplatePath)
		if err != nil {
			r.logger.Warn("certificate template missing, using solid background",
				zap.String("template", r.opts.TemplatePath), zap.Error(err))
		} else if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			r.logger.Warn("certificate template unreadable, using solid background",
				zap.String("template", r.opts.TemplatePath), zap.Error(err))
		} else {
			opts := gofpdf.ImageOptions{ImageType: templateImageType(r.opts.TemplatePath)}
			pdf.RegisterImageOptionsReader("certificate-template", opts, bytes.NewReader(data))
			pdf.ImageOptions("certificate-template", 0, 0, pageWidth, pageHeight, false, opts, 0, "")
			return
		}
	}

	pdf.SetFillColor(250, 247, 240)
	pdf.Rect(0, 0, pageWidth, pageHeight, "F")
	pdf.SetDrawColor(180, 150, 80)
	pdf.SetLineWidth(1.2)
	pdf.Rect(8, 8, pageWidth-16, pageHeight-16, "D")
}

// drawQRCode places the scannable verification code at its fixed region.
// QR generation failure omits the code rather than failing the document.
func (r *CertificateRenderer) drawQRCode(pdf *gofpdf.Fpdf, certificateID string) {
	data, err := qrPNG(r.VerificationURL(certificateID))
	if err != nil {
		r.logger.Warn("qr generation failed, omitting verification code", zap.Error(err))
		return
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("verification-qr", opts, bytes.NewReader(data))
	pdf.ImageOptions("verification-qr", regionQRCode.X, regionQRCode.Y, regionQRCode.W, regionQRCode.H, false, opts, 0, "")

	pdf.SetFont("Helvetica", "", 6)
	pdf.SetXY(regionQRCode.X, regionQRCode.Y+regionQRCode.H+1)
	pdf.CellFormat(regionQRCode.W, 3, "Scan to verify", "", 0, "C", false, 0, "")
}

// qrPNG encodes url as a QR code and returns it as an 8-bit grayscale PNG.
// The barcode library yields a color.Gray16 image; encoding that directly
// would produce a 16-bit PNG, which gofpdf's parser rejects and — with its
// sticky error state — would fail the whole document. Re-drawing onto an
// 8-bit canvas keeps the embed safe.
func qrPNG(url string) ([]byte, error) {
	code, err := qr.Encode(url, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	scaled, err := barcode.Scale(code, 256, 256)
	if err != nil {
		return nil, fmt.Errorf("qr scale: %w", err)
	}

	gray := image.NewGray(scaled.Bounds())
	draw.Draw(gray, gray.Bounds(), scaled, scaled.Bounds().Min, draw.Src)

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, gray); err != nil {
		return nil, fmt.Errorf("qr png encode: %w", err)
	}
	return buf.Bytes(), nil
}

func drawText(pdf *gofpdf.Fpdf, reg region, text string) {
	pdf.SetXY(reg.X, reg.Y)
	pdf.CellFormat(reg.W, reg.H, text, "", 0, "C", false, 0, "")
}

func drawTextLeft(pdf *gofpdf.Fpdf, reg region, text string) {
	pdf.SetXY(reg.X, reg.Y)
	pdf.CellFormat(reg.W, reg.H, text, "", 0, "L", false, 0, "")
}

func templateImageType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "JPG"
	default:
		return "PNG"
	}
}
