// Package view holds the map function behind the undeleted survey response
// view: responses keyed by form model, tag and modification time.
package view

import (
	"fmt"

	"github.com/BRO3886/survey-index/internal/types"
)

// Mapper turns one document into at most one view row. A nil record with a
// nil error means the document does not belong in the view.
type Mapper interface {
	Map(doc types.Document) (*types.IndexRecord, error)
}

type MapFunc func(doc types.Document) (*types.IndexRecord, error)

func (f MapFunc) Map(doc types.Document) (*types.IndexRecord, error) {
	return f(doc)
}

// ResponseIndexMapper is the default Mapper.
var ResponseIndexMapper Mapper = MapFunc(Map)

// Map emits a row for a survey response that has a form model, carries a
// tag and is not void. The row value is the whole document.
func Map(doc types.Document) (*types.IndexRecord, error) {
	if doc.DocumentType != types.SurveyResponseType {
		return nil, nil
	}
	if !doc.FormModelID.IsNotEmpty() || doc.Void.Truthy() {
		return nil, nil
	}
	tag := doc.Tag()
	if !tag.IsNotEmpty() {
		return nil, nil
	}

	formModelID, ok := doc.FormModelID.Text()
	if !ok {
		return nil, nil
	}
	tagText, ok := tag.Text()
	if !ok {
		return nil, nil
	}

	modified, ok := doc.Modified.Raw().(string)
	if !ok {
		return nil, fmt.Errorf("document %q: %w: not a string", doc.ID, ErrInvalidModified)
	}
	epoch, err := ParseModified(modified)
	if err != nil {
		return nil, fmt.Errorf("document %q: %w", doc.ID, err)
	}

	return &types.IndexRecord{
		ID: doc.ID,
		Key: types.Key{
			FormModelID:   formModelID,
			Tag:           tagText,
			ModifiedEpoch: epoch,
		},
		Value: doc,
	}, nil
}
