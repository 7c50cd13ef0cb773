package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

// File types the parser understands, keyed by extension.
var supportedTypes = map[string]string{
	"pdf":  "pdf",
	"txt":  "text",
	"md":   "markdown",
	"docx": "docx",
	"html": "html",
	"htm":  "html",
}

// FileType maps a filename to its parser type. ok is false for
// unsupported extensions.
func FileType(filename string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	t, ok := supportedTypes[ext]
	return t, ok
}

// Parse extracts the text content of the file at path according to its type.
func Parse(path, fileType string) (string, error) {
	switch fileType {
	case "pdf":
		return parsePDF(path)
	case "text", "markdown":
		return parseText(path)
	case "docx":
		return parseDocx(path)
	case "html":
		return parseHTML(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
}

// parseText reads a plain-text or markdown file. Content that is not valid
// UTF-8 is reinterpreted as Latin-1 so legacy exports still ingest.
func parseText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading text file: %w", err)
	}

	if utf8.Valid(data) {
		return string(data), nil
	}

	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes), nil
}

// parsePDF extracts the plain text of every page, pages separated by blank
// lines.
func parsePDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	var parts []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extracting text from pdf page %d: %w", i, err)
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, "\n\n"), nil
}

// docx paragraph markup, reduced to what text extraction needs.
type docxBody struct {
	Paragraphs []docxParagraph `xml:"body>p"`
}

type docxParagraph struct {
	Runs []string `xml:"r>t"`
}

// parseDocx pulls paragraph text out of the Word document's main part.
func parseDocx(path string) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("opening docx archive: %w", err)
	}
	defer archive.Close()

	var docFile *zip.File
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("docx archive has no word/document.xml")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("opening docx document part: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("reading docx document part: %w", err)
	}

	var body docxBody
	if err := xml.Unmarshal(data, &body); err != nil {
		return "", fmt.Errorf("decoding docx xml: %w", err)
	}

	var paragraphs []string
	for _, p := range body.Paragraphs {
		text := strings.TrimSpace(strings.Join(p.Runs, ""))
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	}

	return strings.Join(paragraphs, "\n\n"), nil
}

// parseHTML extracts visible text, dropping script and style content.
func parseHTML(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading html file: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	var parts []string
	doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 {
			return
		}
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		if text := strings.TrimSpace(doc.Text()); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, "\n\n"), nil
}
