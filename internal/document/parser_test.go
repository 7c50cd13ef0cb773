package document

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileType(t *testing.T) {
	tests := []struct {
		filename string
		want     string
		ok       bool
	}{
		{"notes.txt", "text", true},
		{"README.md", "markdown", true},
		{"paper.PDF", "pdf", true},
		{"report.docx", "docx", true},
		{"page.html", "html", true},
		{"page.htm", "html", true},
		{"archive.zip", "", false},
		{"noext", "", false},
	}

	for _, tt := range tests {
		got, ok := FileType(tt.filename)
		if got != tt.want || ok != tt.ok {
			t.Errorf("FileType(%q) = (%q, %v), want (%q, %v)", tt.filename, got, ok, tt.want, tt.ok)
		}
	}
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseTextUTF8(t *testing.T) {
	path := writeFile(t, "a.txt", []byte("plain text with ünïcode"))

	got, err := Parse(path, "text")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != "plain text with ünïcode" {
		t.Errorf("got %q", got)
	}
}

func TestParseTextLatin1Fallback(t *testing.T) {
	// 0xE9 is é in Latin-1 but invalid as a standalone UTF-8 byte.
	path := writeFile(t, "a.txt", []byte{'c', 'a', 'f', 0xE9})

	got, err := Parse(path, "text")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != "café" {
		t.Errorf("got %q, want café", got)
	}
}

func TestParseDocx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	w := zip.NewWriter(f)
	part, err := w.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	_, err = part.Write([]byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>   </w:t></w:r></w:p>
  </w:body>
</w:document>`))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := Parse(path, "docx")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := "First paragraph.\n\nSecond paragraph."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseHTML(t *testing.T) {
	html := `<html><head><style>p { color: red }</style></head>
<body>
  <script>var hidden = true;</script>
  <h1>Title</h1>
  <p>Body text here.</p>
</body></html>`
	path := writeFile(t, "page.html", []byte(html))

	got, err := Parse(path, "html")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.Contains(got, "Title") || !strings.Contains(got, "Body text here.") {
		t.Errorf("missing visible text: %q", got)
	}
	if strings.Contains(got, "hidden") || strings.Contains(got, "color") {
		t.Errorf("script/style content leaked: %q", got)
	}
}

func TestParseUnsupportedType(t *testing.T) {
	if _, err := Parse("whatever", "zip"); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}
