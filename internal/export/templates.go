package export

import (
	"bytes"
	"embed"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

//go:embed templates/*.html
var templateFS embed.FS

var threadTemplate = template.Must(template.New("thread.html").Funcs(template.FuncMap{
	"date":  func(t time.Time) string { return t.UTC().Format("January 2, 2006") },
	"ago":   func(t time.Time, now time.Time) string { return humanize.RelTime(t, now, "ago", "from now") },
	"comma": func(n int) string { return humanize.Comma(int64(n)) },
	"join":  strings.Join,
}).ParseFS(templateFS, "templates/thread.html"))

// TemplateData is what templates/thread.html renders.
type TemplateData struct {
	Title         string
	AuthorName    string
	Tags          []string
	Draft         bool
	OriginalTitle string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	GeneratedAt   time.Time
	Segments      []TemplateSegment
}

type TemplateSegment struct {
	Number    int
	HTML      template.HTML
	Reactions []TemplateReaction
}

type TemplateReaction struct {
	Emoji string
	Count int
}

func buildTemplateData(thread Thread, now time.Time) TemplateData {
	data := TemplateData{
		Title:         thread.Title,
		AuthorName:    thread.AuthorName,
		Tags:          thread.Tags,
		Draft:         !thread.IsPublished,
		OriginalTitle: thread.OriginalTitle,
		CreatedAt:     thread.CreatedAt,
		UpdatedAt:     thread.UpdatedAt,
		GeneratedAt:   now,
	}

	segments := append([]Segment(nil), thread.Segments...)
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Order < segments[j].Order })
	for i, segment := range segments {
		rendered := TemplateSegment{Number: i + 1, HTML: SegmentHTML(segment.Content)}
		for emoji, count := range segment.Reactions {
			if count > 0 {
				rendered.Reactions = append(rendered.Reactions, TemplateReaction{Emoji: emoji, Count: count})
			}
		}
		sort.Slice(rendered.Reactions, func(a, b int) bool {
			if rendered.Reactions[a].Count != rendered.Reactions[b].Count {
				return rendered.Reactions[a].Count > rendered.Reactions[b].Count
			}
			return rendered.Reactions[a].Emoji < rendered.Reactions[b].Emoji
		})
		data.Segments = append(data.Segments, rendered)
	}
	return data
}

// RenderThreadHTML renders the thread page.
func RenderThreadHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := threadTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
