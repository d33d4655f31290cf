// Package extract turns uploaded document bytes into plain text. The
// extractor is chosen by file extension.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"docchat/internal/domain"
)

var extractors = map[string]domain.Extractor{
	".pdf":  PDF,
	".docx": DOCX,
	".txt":  Plain,
	".md":   Plain,
	".xlsx": XLSX,
	".html": HTML,
	".htm":  HTML,
}

// Supported returns the accepted extensions, sorted.
func Supported() []string {
	out := make([]string, 0, len(extractors))
	for ext := range extractors {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// For returns the extractor registered for name's extension, or an
// *domain.UnsupportedFormatError.
func For(name string) (domain.Extractor, error) {
	ext := strings.ToLower(filepath.Ext(name))
	fn, ok := extractors[ext]
	if !ok {
		return nil, &domain.UnsupportedFormatError{Name: name, Ext: ext}
	}
	return fn, nil
}

// Text extracts the text of the file called name from data.
func Text(name string, data []byte) (string, error) {
	fn, err := For(name)
	if err != nil {
		return "", err
	}
	text, err := fn(data)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", name, err)
	}
	return text, nil
}

// Plain decodes UTF-8 text, replacing invalid sequences.
func Plain(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data), nil
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

// PDF extracts the plain text of every page.
func PDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}
