// Package extract pulls plain text out of bibliography attachments so it
// can be indexed as entry content.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/bunken/internal/models"
)

// Extractor extracts plain text from attachment files.
type Extractor struct {
	maxBytes int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxContentBytes caps the extracted text length. Zero means no cap.
func WithMaxContentBytes(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxBytes = n
		}
	}
}

// NewExtractor returns an Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractEntry returns the attachment text of an entry. Entries without an
// attachment yield empty text and no error.
func (e *Extractor) ExtractEntry(entry *models.Entry) (string, error) {
	if entry == nil {
		return "", nil
	}
	path := entry.AttachmentPath()
	if path == "" {
		return "", nil
	}
	text, err := e.Extract(path)
	if err != nil {
		return "", fmt.Errorf("failed to extract attachment of %q: %w", entry.Key, err)
	}
	return text, nil
}

// Extract reads the file at path and returns its text content. PDF, DOCX,
// and XLSX are parsed from their binary formats; everything else is treated
// as plain text (UTF-8 validated).
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	var text string
	var err error
	switch ext {
	case ".pdf":
		text, err = extractPDF(content)
	case ".docx":
		text, err = extractDOCX(content)
	case ".xlsx":
		text, err = extractXLSX(content)
	default:
		// Notes, README files, and anything unrecognized index as-is.
		text, err = extractPlain(content)
	}
	if err != nil {
		return "", err
	}
	return e.truncate(text), nil
}

// truncate caps text at maxBytes, snapped back to a rune boundary.
func (e *Extractor) truncate(text string) string {
	if e.maxBytes <= 0 || len(text) <= e.maxBytes {
		return text
	}
	cut := e.maxBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
