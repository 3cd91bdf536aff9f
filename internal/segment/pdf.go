package segment

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

var excessBlankLines = regexp.MustCompile(`\n{3,}`)

// ExtractPDFText returns the plain text of a PDF document.
func ExtractPDFText(r io.ReaderAt, size int64) (string, error) {
	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := doc.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return normalizeText(string(b)), nil
}

// ExtractText returns the text content of a documentation file. PDFs are
// decoded; anything else is treated as UTF-8 text.
func ExtractText(filename string, data []byte) (string, error) {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return ExtractPDFText(bytes.NewReader(data), int64(len(data)))
	}
	return normalizeText(string(data)), nil
}

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(excessBlankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
