package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// KeyField is one named component of a dedup key.
type KeyField struct {
	Name  string
	Value string
}

// Key identifies a record in the external store. Donations, volunteers and
// contact messages are keyed by (email, date); newsletter entries by email.
type Key []KeyField

// String joins the key values with "|", e.g. "a@x.com|2024-01-15T10:30:00.000Z".
func (k Key) String() string {
	vals := make([]string, len(k))
	for i, f := range k {
		vals[i] = f.Value
	}
	return strings.Join(vals, "|")
}

// DedupKey は保存済みレコードから重複判定用のフィールドを取り出す
func DedupKey(c Collection, raw json.RawMessage) (Key, error) {
	if c == CollectionNewsletter {
		var e NewsletterEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode newsletter entry: %w", err)
		}
		if e.Email == "" {
			return nil, ErrNoKey
		}
		return Key{{Name: "email", Value: e.Email}}, nil
	}

	var rec struct {
		Email string `json:"email"`
		Date  string `json:"date"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", c, err)
	}
	if rec.Email == "" || rec.Date == "" {
		return nil, ErrNoKey
	}
	return Key{{Name: "email", Value: rec.Email}, {Name: "date", Value: rec.Date}}, nil
}

// Document converts a stored record into a field map for an external store.
// Bare-string newsletter entries become {"email": <value>}. Whole-number JSON
// numbers are returned as int64 so they land as integers externally.
func Document(c Collection, raw json.RawMessage) (map[string]any, error) {
	if c == CollectionNewsletter {
		var e NewsletterEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode newsletter entry: %w", err)
		}
		doc := map[string]any{"email": e.Email}
		if e.Date != "" {
			doc["date"] = e.Date
		}
		return doc, nil
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", c, err)
	}
	for k, v := range doc {
		if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			doc[k] = int64(f)
		}
	}
	return doc, nil
}
