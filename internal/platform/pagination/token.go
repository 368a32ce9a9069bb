// Package pagination encodes Firestore list cursors as opaque page tokens.
// The customer and order repositories hand the raw cursor values of the last
// document back to the client as a token; the next request replays them with
// StartAfter so pages stay stable while new orders arrive.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultPageSize is applied when a repository filter carries no page size.
const DefaultPageSize = 50

// ErrInvalidPageToken is returned when a token cannot be decoded. Callers map
// it to a 400; a stale but well-formed token simply yields an empty page.
var ErrInvalidPageToken = errors.New("pagination: invalid pageToken")

// Cursor holds the ordered field values Firestore resumes a query from.
type Cursor struct {
	StartAfter []any `json:"startAfter,omitempty"`
	StartAt    []any `json:"startAt,omitempty"`
}

// EncodeToken serialises the cursor into a base64 URL-safe page token. An
// empty cursor encodes to the empty string, which marks the final page.
func EncodeToken(cursor Cursor) (string, error) {
	if len(cursor.StartAfter) == 0 && len(cursor.StartAt) == 0 {
		return "", nil
	}
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses a token produced by EncodeToken back into a cursor.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return cursor, nil
}
