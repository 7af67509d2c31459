package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const SurveyResponseType = "SurveyResponse"

// Document is a survey platform document as stored in the document store.
// Only the fields the response view reads are lifted out; the full object is
// kept so the document can be emitted unchanged.
type Document struct {
	ID           string
	Rev          string
	DocumentType string
	FormModelID  Value
	Void         Value
	Values       Value
	Modified     Value

	fields map[string]any
}

// NewDocument builds a Document over an already decoded JSON object.
func NewDocument(fields map[string]any) Document {
	if fields == nil {
		fields = map[string]any{}
	}
	d := Document{
		FormModelID: lookup(fields, "form_model_id"),
		Void:        lookup(fields, "void"),
		Values:      lookup(fields, "values"),
		Modified:    lookup(fields, "modified"),
		fields:      fields,
	}
	d.ID, _ = fields["_id"].(string)
	d.Rev, _ = fields["_rev"].(string)
	d.DocumentType, _ = fields["document_type"].(string)
	return d
}

// ParseDocument decodes a single JSON object. Numbers are kept as
// json.Number so large integers survive a round trip.
func ParseDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	if fields == nil {
		return Document{}, fmt.Errorf("decode document: not an object")
	}
	return NewDocument(fields), nil
}

// Tag returns values.tag. A missing or non-object values field yields an
// absent tag.
func (d Document) Tag() Value {
	m, ok := d.Values.raw.(map[string]any)
	if !ok {
		return Value{}
	}
	return lookup(m, "tag")
}

// Fields returns the full decoded object.
func (d Document) Fields() map[string]any {
	return d.fields
}

// Deleted reports the store's own tombstone marker.
func (d Document) Deleted() bool {
	return lookup(d.fields, "_deleted").Truthy()
}

func (d Document) MarshalJSON() ([]byte, error) {
	if d.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d.fields)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	doc, err := ParseDocument(data)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}
