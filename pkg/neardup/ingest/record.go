package ingest

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/cognicore/neardup/pkg/neardup/internalerr"
)

// Record is one input document. Raw holds the original JSON line so kept
// records can be re-emitted with their fields and key order untouched.
type Record struct {
	Seq  int
	Line int
	ID   string
	Text string
	Raw  []byte
}

// SyntheticID names a record that carries no usable id field.
func SyntheticID(seq int) string {
	return fmt.Sprintf("doc_%d", seq)
}

// ParseRecord extracts id and text from a JSON object line.
//
// A line that is not a JSON object fails with ErrMalformedRecord; a missing
// or non-string text field fails with ErrMissingField. String and numeric
// ids are used as-is; any other id falls back to SyntheticID(seq).
func ParseRecord(raw []byte, seq, line int) (Record, error) {
	if !gjson.ValidBytes(raw) {
		return Record{}, fmt.Errorf("line %d: %w: invalid JSON", line, internalerr.ErrMalformedRecord)
	}
	obj := gjson.ParseBytes(raw)
	if !obj.IsObject() {
		return Record{}, fmt.Errorf("line %d: %w: expected a JSON object", line, internalerr.ErrMalformedRecord)
	}

	text := obj.Get("text")
	if !text.Exists() {
		return Record{}, fmt.Errorf("line %d: %w: text", line, internalerr.ErrMissingField)
	}
	if text.Type != gjson.String {
		return Record{}, fmt.Errorf("line %d: %w: text is %s, not a string", line, internalerr.ErrMissingField, text.Type)
	}

	rec := Record{
		Seq:  seq,
		Line: line,
		Text: text.Str,
		Raw:  raw,
	}
	switch id := obj.Get("id"); id.Type {
	case gjson.String:
		rec.ID = id.Str
	case gjson.Number:
		rec.ID = id.Raw
	}
	if rec.ID == "" {
		rec.ID = SyntheticID(seq)
	}
	return rec, nil
}
