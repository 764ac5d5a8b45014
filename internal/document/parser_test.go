package document

import (
	"os"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTempFile(t *testing.T, content, ext string) string {
	tmpFile, err := os.CreateTemp("", "anki-test-*"+ext)
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	if _, err := tmpFile.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	tmpFile.Close()
	return tmpFile.Name()
}

func createTempPDF(t *testing.T, text string) string {
	tmpFile, err := os.CreateTemp("", "anki-test-*.pdf")
	if err != nil {
		t.Fatalf("Failed to create temp PDF file: %v", err)
	}
	defer tmpFile.Close()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)
	pdf.MultiCell(0, 10, text, "", "", false)
	if err := pdf.Output(tmpFile); err != nil {
		t.Fatalf("Failed to write PDF: %v", err)
	}
	return tmpFile.Name()
}

func TestPlainTextParser(t *testing.T) {
	content := "Front: What is 2+2?\nBack: 4\n"
	file := createTempFile(t, content, ".txt")
	defer os.Remove(file)

	parser := NewPlainTextParser()
	text, err := parser.Parse(file)
	require.NoError(t, err)
	assert.Equal(t, content, text)
}

func TestPlainTextParser_NFC(t *testing.T) {
	// 组合字符 e + U+0301 应合并为 U+00E9
	decomposed := "Re\u0301ponse: oui"
	text, err := NewPlainTextParser().ParseReader(strings.NewReader(decomposed), "cards.txt")
	require.NoError(t, err)
	assert.Equal(t, "R\u00e9ponse: oui", text)
}

func TestMarkdownParser(t *testing.T) {
	content := "# Title\n\nThis is a **markdown** file.\n\n- Item 1\n- Item 2"
	file := createTempFile(t, content, ".md")
	defer os.Remove(file)

	parser := NewMarkdownParser()
	text, err := parser.Parse(file)
	require.NoError(t, err)
	assert.Contains(t, text, "markdown file")
	assert.Contains(t, text, "Item 1\n")
	assert.Contains(t, text, "Item 2")
	assert.NotContains(t, text, "**")
}

func TestMarkdownParser_KeepsCardLines(t *testing.T) {
	content := strings.Join([]string{
		"---",
		"deck: Geography",
		"---",
		"",
		"Front: Capital of **France**",
		"Back: Paris &amp; suburbs",
		"",
		"Front: 2 < 3?",
		"Back: yes",
	}, "\n")

	text, err := NewMarkdownParser().ParseReader(strings.NewReader(content), "cards.md")
	require.NoError(t, err)

	assert.NotContains(t, text, "deck: Geography")
	assert.Contains(t, text, "Front: Capital of France\nBack: Paris & suburbs")
	assert.Contains(t, text, "Front: 2 < 3?\nBack: yes")
}

func TestPDFParser(t *testing.T) {
	file := createTempPDF(t, "Front: What is 2+2?\nBack: 4")
	defer os.Remove(file)

	parser := NewPDFParser()
	text, err := parser.Parse(file)
	require.NoError(t, err)
	assert.Contains(t, text, "Front: What is 2+2?")
	assert.Contains(t, text, "Back: 4")
}

func TestParserFactory(t *testing.T) {
	txtFile := createTempFile(t, "plain text", ".txt")
	defer os.Remove(txtFile)
	mdFile := createTempFile(t, "# Markdown", ".md")
	defer os.Remove(mdFile)
	pdfFile := createTempPDF(t, "PDF content")
	defer os.Remove(pdfFile)

	tests := []struct {
		file     string
		expected string
	}{
		{txtFile, "plain text"},
		{mdFile, "Markdown"},
		{pdfFile, "PDF content"},
	}

	for _, tt := range tests {
		parser, err := ParserFactory(tt.file)
		require.NoError(t, err, "ParserFactory failed for %s", tt.file)
		text, err := parser.Parse(tt.file)
		require.NoError(t, err, "Parser.Parse failed for %s", tt.file)
		assert.Contains(t, text, tt.expected)
	}

	_, err := ParserFactory("cards.docx")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, PlainText, DetectContentType("cards.TXT"))
	assert.Equal(t, Markdown, DetectContentType("notes.markdown"))
	assert.Equal(t, PDF, DetectContentType("/tmp/deck.pdf"))
	assert.Equal(t, Unknown, DetectContentType("archive.zip"))
	assert.True(t, IsSupported("a.md"))
	assert.False(t, IsSupported("a"))
}
