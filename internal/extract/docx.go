package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// extractDOCX reads word/document.xml, emitting one line per paragraph,
// table cells included, and the dc:title from docProps/core.xml.
func extractDOCX(data []byte) (Document, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Document{}, fmt.Errorf("open docx archive: %w", err)
	}

	var doc Document
	for _, f := range reader.File {
		switch f.Name {
		case "word/document.xml":
			text, err := readZipEntry(f, parseDocumentXML)
			if err != nil {
				return Document{}, err
			}
			doc.Text = text
		case "docProps/core.xml":
			// A malformed core.xml only costs the title.
			title, _ := readZipEntry(f, parseCoreTitle)
			doc.Title = title
		}
	}
	return doc, nil
}

func readZipEntry(f *zip.File, parse func(io.Reader) (string, error)) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()
	return parse(rc)
}

// parseDocumentXML walks WordprocessingML tokens: text lives in <w:t>,
// paragraphs end at </w:p>, and <w:tab/>, <w:br/> become whitespace.
func parseDocumentXML(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		sb     strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

type coreProperties struct {
	Title string `xml:"title"`
}

func parseCoreTitle(r io.Reader) (string, error) {
	var core coreProperties
	if err := xml.NewDecoder(r).Decode(&core); err != nil {
		return "", err
	}
	return strings.TrimSpace(core.Title), nil
}
