package export

import (
	"context"
	"fmt"

	"resumekit/api/internal/resume"
)

// Renderer turns rendered resume HTML into another document format.
type Renderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

// Service provides resume export functionality
type Service struct {
	pdf  Renderer
	docx Renderer
}

// NewService wires the PDF and DOCX renderers. Either may be nil, in which
// case that format reports its dependency as missing.
func NewService(pdf, docx Renderer) *Service {
	return &Service{pdf: pdf, docx: docx}
}

// Export renders res in the requested format.
func (s *Service) Export(ctx context.Context, res resume.Resume, format Format) (*Result, error) {
	html, err := RenderHTML(res)
	if err != nil {
		return nil, err
	}
	base := sanitizeFilename(res.DisplayName())

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: base + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		if s.pdf == nil {
			return nil, fmt.Errorf("%w: no renderer configured", ErrPDFDependencyMissing)
		}
		data, err := s.pdf.Render(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:     data,
			Filename: base + ".pdf",
			MimeType: "application/pdf",
		}, nil
	case FormatDOCX:
		if s.docx == nil {
			return nil, fmt.Errorf("%w: no renderer configured", ErrDOCXDependencyMissing)
		}
		data, err := s.docx.Render(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:     data,
			Filename: base + ".docx",
			MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
