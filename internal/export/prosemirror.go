package export

import (
	"encoding/json"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"
)

// ProseMirrorNode is one node of a ProseMirror (TipTap) document.
type ProseMirrorNode struct {
	Type    string            `json:"type"`
	Attrs   map[string]any    `json:"attrs,omitempty"`
	Content []ProseMirrorNode `json:"content,omitempty"`
	Text    string            `json:"text,omitempty"`
	Marks   []ProseMirrorMark `json:"marks,omitempty"`
}

type ProseMirrorMark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

var (
	scriptBlock  = regexp.MustCompile(`(?is)<(script|style|iframe|object|embed)\b.*?</(script|style|iframe|object|embed)\s*>`)
	eventAttr    = regexp.MustCompile(`(?i)\s+on[a-z]+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	scriptHref   = regexp.MustCompile(`(?i)(href|src)\s*=\s*(["']?)\s*javascript:`)
	looksLikeTag = regexp.MustCompile(`<[a-zA-Z][^>]*>`)
)

// SegmentHTML turns stored segment content into HTML for the export page.
// ProseMirror JSON is converted, HTML is scrubbed of active content, and
// anything else is escaped as plain text.
func SegmentHTML(content string) template.HTML {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "{") {
		var doc ProseMirrorNode
		if err := json.Unmarshal([]byte(trimmed), &doc); err == nil && doc.Type == "doc" {
			return template.HTML(ProseMirrorToHTML(doc))
		}
	}
	if looksLikeTag.MatchString(trimmed) {
		return template.HTML(scrubHTML(trimmed))
	}
	paragraphs := strings.Split(trimmed, "\n\n")
	var b strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(p), "\n", "<br>"))
		b.WriteString("</p>\n")
	}
	return template.HTML(b.String())
}

func scrubHTML(s string) string {
	s = scriptBlock.ReplaceAllString(s, "")
	s = eventAttr.ReplaceAllString(s, "")
	return scriptHref.ReplaceAllString(s, `$1=$2#`)
}

// ProseMirrorToHTML converts a ProseMirror document tree to HTML.
func ProseMirrorToHTML(node ProseMirrorNode) string {
	var b strings.Builder
	renderNode(&b, node)
	return b.String()
}

func renderNode(b *strings.Builder, node ProseMirrorNode) {
	switch node.Type {
	case "doc":
		renderChildren(b, node)
	case "paragraph":
		wrap(b, "p", node)
	case "heading":
		level := 1
		if lvl, ok := node.Attrs["level"].(float64); ok && lvl >= 1 && lvl <= 6 {
			level = int(lvl)
		}
		wrap(b, fmt.Sprintf("h%d", level), node)
	case "bulletList":
		wrap(b, "ul", node)
	case "orderedList":
		wrap(b, "ol", node)
	case "listItem":
		wrap(b, "li", node)
	case "blockquote":
		wrap(b, "blockquote", node)
	case "codeBlock":
		b.WriteString("<pre><code>")
		for _, child := range node.Content {
			b.WriteString(html.EscapeString(child.Text))
		}
		b.WriteString("</code></pre>\n")
	case "image":
		src, _ := node.Attrs["src"].(string)
		alt, _ := node.Attrs["alt"].(string)
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			fmt.Fprintf(b, `<img src="%s" alt="%s">`, html.EscapeString(src), html.EscapeString(alt))
		}
	case "text":
		b.WriteString(renderTextWithMarks(node.Text, node.Marks))
	case "hardBreak":
		b.WriteString("<br>")
	case "horizontalRule":
		b.WriteString("<hr>\n")
	default:
		renderChildren(b, node)
	}
}

func wrap(b *strings.Builder, tag string, node ProseMirrorNode) {
	b.WriteString("<" + tag + ">")
	renderChildren(b, node)
	b.WriteString("</" + tag + ">\n")
}

func renderChildren(b *strings.Builder, node ProseMirrorNode) {
	for _, child := range node.Content {
		renderNode(b, child)
	}
}

// renderTextWithMarks applies marks from the innermost outwards.
func renderTextWithMarks(text string, marks []ProseMirrorMark) string {
	if text == "" {
		return ""
	}
	out := html.EscapeString(text)
	for i := len(marks) - 1; i >= 0; i-- {
		switch marks[i].Type {
		case "bold":
			out = "<strong>" + out + "</strong>"
		case "italic":
			out = "<em>" + out + "</em>"
		case "code":
			out = "<code>" + out + "</code>"
		case "strike":
			out = "<s>" + out + "</s>"
		case "underline":
			out = "<u>" + out + "</u>"
		case "link":
			href, _ := marks[i].Attrs["href"].(string)
			if strings.HasPrefix(strings.ToLower(strings.TrimSpace(href)), "javascript:") {
				href = "#"
			}
			out = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), out)
		}
	}
	return out
}
