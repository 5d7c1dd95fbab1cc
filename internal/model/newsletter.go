package model

import (
	"bytes"
	"encoding/json"
)

// NewsletterEntry はニュースレター登録 1 件。古いファイルではアドレスだけの
// JSON 文字列で保存されているので、UnmarshalJSON は両方の形を受け付ける
type NewsletterEntry struct {
	Email string `json:"email"`
	Date  string `json:"date,omitempty"`
}

func (e *NewsletterEntry) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = NewsletterEntry{Email: s}
		return nil
	}
	type plain NewsletterEntry
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*e = NewsletterEntry(p)
	return nil
}

// NewsletterEmail returns the normalized address of a stored newsletter
// entry, or "" when the entry cannot be read.
func NewsletterEmail(raw json.RawMessage) string {
	var e NewsletterEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return ""
	}
	return NormalizeEmail(e.Email)
}
