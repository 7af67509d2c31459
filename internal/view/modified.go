package view

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ErrInvalidModified marks a document whose modified timestamp cannot be
// turned into a sort key. Such documents are left out of the view.
var ErrInvalidModified = errors.New("invalid modified timestamp")

// ParseModified converts a timestamp string to epoch milliseconds.
// Timestamps without a zone are read as UTC. A string of digits is only
// accepted as a four digit year; longer runs are not read as epochs.
func ParseModified(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidModified)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UnixMilli(), nil
	}
	if allDigits(s) {
		if len(s) != 4 {
			return 0, fmt.Errorf("%w: %q: bare number", ErrInvalidModified, s)
		}
		t, err := time.ParseInLocation("2006", s, time.UTC)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalidModified, s, err)
		}
		return t.UnixMilli(), nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidModified, s, err)
	}
	return t.UnixMilli(), nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
