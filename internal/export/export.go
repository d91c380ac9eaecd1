// Package export отдает опубликованную политику в Markdown, HTML или DOCX.
package export

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatDOCX     Format = "docx"
	FormatPDF      Format = "pdf"
)

// ErrUnsupportedFormat: формат известен, но не реализован, либо неизвестен.
var ErrUnsupportedFormat = errors.New("export format is not supported")

// Document: готовый к отдаче файл.
type Document struct {
	Format      Format
	ContentType string
	Filename    string
	Body        []byte
	Notice      string // непусто, если вместо запрошенного формата отдан fallback
}

type Exporter struct {
	md goldmark.Markdown
}

func NewExporter() *Exporter {
	return &Exporter{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

// Export рендерит документ. Неподдерживаемый формат не ошибка для вызывающего:
// отдается Markdown и заполняется Notice. Ошибка — только сбой рендера.
func (e *Exporter) Export(p *domain.GeneratedPolicy, format string) (*Document, error) {
	f := Format(strings.ToLower(strings.TrimSpace(format)))
	if f == "" {
		f = FormatMarkdown
	}

	doc, err := e.render(p, f)
	if errors.Is(err, ErrUnsupportedFormat) {
		doc, err = e.render(p, FormatMarkdown)
		if err != nil {
			return nil, err
		}
		doc.Notice = fmt.Sprintf("format %q is not available, exported as Markdown", f)
		return doc, nil
	}
	return doc, err
}

func (e *Exporter) render(p *domain.GeneratedPolicy, f Format) (*Document, error) {
	base := Filename(p.Title)
	switch f {
	case FormatMarkdown:
		return &Document{
			Format:      f,
			ContentType: "text/markdown; charset=utf-8",
			Filename:    base + ".md",
			Body:        []byte(p.Content),
		}, nil
	case FormatHTML:
		body, err := e.HTML(p)
		if err != nil {
			return nil, err
		}
		return &Document{Format: f, ContentType: "text/html; charset=utf-8", Filename: base + ".html", Body: body}, nil
	case FormatDOCX:
		body, err := DOCX(p)
		if err != nil {
			return nil, err
		}
		return &Document{
			Format:      f,
			ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			Filename:    base + ".docx",
			Body:        body,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
}

// HTML: самодостаточная страница.
func (e *Exporter) HTML(p *domain.GeneratedPolicy) ([]byte, error) {
	var body bytes.Buffer
	if err := e.md.Convert([]byte(p.Content), &body); err != nil {
		return nil, fmt.Errorf("export: markdown to html: %w", err)
	}

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n<title>")
	xml.EscapeText(&out, []byte(p.Title))
	out.WriteString("</title>\n</head>\n<body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9]+`)

// Filename: безопасное имя файла без расширения.
func Filename(title string) string {
	s := strings.Trim(unsafeName.ReplaceAllString(title, "-"), "-")
	if s == "" {
		return "policy"
	}
	return strings.ToLower(s)
}
