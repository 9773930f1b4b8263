// Package extract turns supported document files into plain text ready for
// chunking.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	docerrors "github.com/Aman-CERP/docmemory/internal/errors"
)

// Document is the extracted text of one file.
type Document struct {
	// Text is the extracted plain text, trimmed.
	Text string
	// Format is the lowercased extension without its dot ("docx", "txt").
	Format string
	// Title is a title embedded in the file itself (HTML <title>, docx
	// core properties). Empty when the format has none.
	Title string
}

// Func extracts text from raw file bytes.
type Func func(data []byte) (Document, error)

// Extractor dispatches on file extension.
type Extractor struct {
	formats map[string]Func
}

// New returns an Extractor for txt, md, rtf, odt, csv, html, htm and docx.
// rtf and odt are read as plain text.
func New() *Extractor {
	return &Extractor{
		formats: map[string]Func{
			".txt":  extractText,
			".md":   extractText,
			".rtf":  extractText,
			".odt":  extractText,
			".csv":  extractCSV,
			".html": extractHTML,
			".htm":  extractHTML,
			".docx": extractDOCX,
		},
	}
}

// Register adds or replaces the handler for an extension such as ".log".
func (e *Extractor) Register(ext string, fn Func) {
	e.formats[strings.ToLower(ext)] = fn
}

// Supports reports whether path has a handled extension.
func (e *Extractor) Supports(path string) bool {
	_, ok := e.formats[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Formats returns the handled extensions, sorted.
func (e *Extractor) Formats() []string {
	exts := make([]string, 0, len(e.formats))
	for ext := range e.formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract reads path and returns its text. Unknown extensions fail with
// an UnsupportedFormat error before the file is read.
func (e *Extractor) Extract(path string) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	fn, ok := e.formats[ext]
	if !ok {
		return nil, docerrors.UnsupportedFormatError(path, strings.TrimPrefix(ext, "."))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, docerrors.New(docerrors.ErrCodeFileNotFound, "file not found: "+path, err)
		}
		return nil, docerrors.New(docerrors.ErrCodeFilePermission, "read "+path, err)
	}

	doc, err := fn(data)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	doc.Format = strings.TrimPrefix(ext, ".")
	doc.Text = strings.TrimSpace(doc.Text)
	return &doc, nil
}
