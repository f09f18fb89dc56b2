package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Well-known document fields read by the handler
const (
	FieldTimestamp   = "timestamp"
	FieldServiceName = "service_name"
)

// Document errors
var (
	ErrInvalidJSON      = errors.New("invalid JSON document")
	ErrNotAnObject      = errors.New("document must be a JSON object")
	ErrTimestampNotText = errors.New("timestamp must be a string")
)

// Document is a decoded caller document. The raw JSON text is kept so the
// stored copy preserves key order and number formatting.
type Document struct {
	raw    []byte
	value  any
	fields map[string]any
}

// DecodeDocument parses exactly one JSON value from body.
func DecodeDocument(body []byte) (*Document, error) {
	if !json.Valid(body) {
		var v any
		err := json.Unmarshal(body, &v)
		if err == nil {
			err = ErrInvalidJSON
		}
		return nil, fmt.Errorf("decode document: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	fields, _ := value.(map[string]any)
	return &Document{
		raw:    compact.Bytes(),
		value:  value,
		fields: fields,
	}, nil
}

// Value returns the decoded value, numbers as json.Number.
func (d *Document) Value() any {
	return d.value
}

// IsObject reports whether the document is a JSON object
func (d *Document) IsObject() bool {
	return d.fields != nil
}

// Timestamp returns the document's timestamp text. ok is false when the field
// is absent or empty (null, "", false, 0, [] or {}), which means "use the
// current time".
func (d *Document) Timestamp() (ts string, ok bool, err error) {
	v, present := d.fields[FieldTimestamp]
	if !present || isEmptyValue(v) {
		return "", false, nil
	}
	s, isText := v.(string)
	if !isText {
		return "", false, fmt.Errorf("%w, got %s", ErrTimestampNotText, jsonText(v))
	}
	return s, true, nil
}

// ServiceName returns service_name, or DefaultService when absent or null.
// Non-string values are rendered as their JSON text.
func (d *Document) ServiceName() string {
	v, present := d.fields[FieldServiceName]
	if !present || v == nil {
		return DefaultService
	}
	if s, ok := v.(string); ok {
		return s
	}
	return jsonText(v)
}

// Bytes returns the compact JSON text followed by exactly one newline.
func (d *Document) Bytes() []byte {
	out := make([]byte, 0, len(d.raw)+1)
	out = append(out, d.raw...)
	return append(out, '\n')
}

// Len is the size of the serialized document including the newline
func (d *Document) Len() int {
	return len(d.raw) + 1
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func jsonText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
