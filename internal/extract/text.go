package extract

import (
	"bytes"
	"encoding/csv"
	"strings"
	"unicode/utf8"
)

// extractText decodes UTF-8, falling back to Latin-1 for invalid input.
func extractText(data []byte) (Document, error) {
	return Document{Text: decodeText(data)}, nil
}

func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	// Latin-1 maps each byte to the code point of the same value.
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

// extractCSV renders each record as one line of space-separated fields,
// header included.
func extractCSV(data []byte) (Document, error) {
	r := csv.NewReader(strings.NewReader(decodeText(data)))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return Document{}, err
	}

	var sb strings.Builder
	for i, rec := range records {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strings.Join(rec, " "))
	}
	return Document{Text: sb.String()}, nil
}
