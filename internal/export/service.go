package export

import (
	"context"
	"fmt"
	"time"
)

// PDFRenderer prints an HTML page to PDF.
type PDFRenderer func(ctx context.Context, html string) ([]byte, error)

type Service struct {
	renderPDF PDFRenderer
	now       func() time.Time
}

// NewService uses headless Chrome for PDFs when renderPDF is nil.
func NewService(renderPDF PDFRenderer) *Service {
	if renderPDF == nil {
		renderPDF = ChromePDF
	}
	return &Service{renderPDF: renderPDF, now: time.Now}
}

// Export renders thread in the requested format.
func (s *Service) Export(ctx context.Context, thread Thread, format Format) (*Result, error) {
	page, err := RenderThreadHTML(buildTemplateData(thread, s.now()))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(page),
			Filename: sanitizeFilename(thread.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		data, err := s.renderPDF(ctx, page)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:     data,
			Filename: sanitizeFilename(thread.Title) + ".pdf",
			MimeType: "application/pdf",
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// sanitizeFilename keeps ASCII letters, digits, '-' and '_', turns spaces
// into '-' and caps the result at 50 bytes.
func sanitizeFilename(title string) string {
	out := make([]byte, 0, len(title))
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, byte(r))
		case r == ' ':
			out = append(out, '-')
		}
		if len(out) >= 50 {
			break
		}
	}
	if len(out) == 0 {
		return "thread"
	}
	return string(out)
}
