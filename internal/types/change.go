package types

// Change is one entry of the document change feed.
type Change struct {
	Seq     string    `json:"seq,omitempty"`
	ID      string    `json:"id"`
	Rev     string    `json:"rev,omitempty"`
	Deleted bool      `json:"deleted,omitempty"`
	Doc     *Document `json:"doc,omitempty"`
}

// NewChange wraps a document read from the store or an export file.
func NewChange(doc Document) Change {
	return Change{
		ID:      doc.ID,
		Rev:     doc.Rev,
		Deleted: doc.Deleted(),
		Doc:     &doc,
	}
}

// DocID prefers the feed's id and falls back to the document's own _id.
func (c Change) DocID() string {
	if c.ID != "" {
		return c.ID
	}
	if c.Doc != nil {
		return c.Doc.ID
	}
	return ""
}
