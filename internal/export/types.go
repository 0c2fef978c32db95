// Package export renders a thread as a standalone HTML page or PDF.
package export

import (
	"errors"
	"time"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// ParseFormat maps a query value to a Format; empty means HTML.
func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Ext is the file extension for f.
func (f Format) Ext() string {
	return string(f)
}

// Thread is the exportable view of a thread.
type Thread struct {
	ID            string
	Title         string
	AuthorName    string
	Tags          []string
	IsPublished   bool
	OriginalTitle string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Segments      []Segment
}

type Segment struct {
	Order int
	// Content is either HTML or a ProseMirror JSON document.
	Content   string
	Reactions map[string]int
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates no Chrome binary is available for PDF rendering.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
