package types

import (
	"cmp"
	"encoding/json"
	"fmt"
)

// Key is the composite view key. Rows sort by form model, then tag, then
// modification time.
type Key struct {
	FormModelID   string
	Tag           string
	ModifiedEpoch int64
}

func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.FormModelID, o.FormModelID); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Tag, o.Tag); c != 0 {
		return c
	}
	return cmp.Compare(k.ModifiedEpoch, o.ModifiedEpoch)
}

func (k Key) String() string {
	return fmt.Sprintf("[%q, %q, %d]", k.FormModelID, k.Tag, k.ModifiedEpoch)
}

// MarshalJSON encodes the key as a three element array, the way view keys
// are usually written.
func (k Key) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{k.FormModelID, k.Tag, k.ModifiedEpoch})
}

func (k *Key) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 3 {
		return fmt.Errorf("key: want 3 parts, got %d", len(parts))
	}
	if err := json.Unmarshal(parts[0], &k.FormModelID); err != nil {
		return fmt.Errorf("key: form model id: %w", err)
	}
	if err := json.Unmarshal(parts[1], &k.Tag); err != nil {
		return fmt.Errorf("key: tag: %w", err)
	}
	if err := json.Unmarshal(parts[2], &k.ModifiedEpoch); err != nil {
		return fmt.Errorf("key: modified: %w", err)
	}
	return nil
}

// IndexRecord is one emitted view row.
type IndexRecord struct {
	ID    string   `json:"id"`
	Key   Key      `json:"key"`
	Value Document `json:"value"`
}
