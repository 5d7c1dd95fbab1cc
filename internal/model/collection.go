package model

import (
	"errors"
	"strings"
	"time"
)

// Collection names one logical set of submissions. The value doubles as the
// JSON file base name and the external collection/table name.
type Collection string

const (
	CollectionDonations  Collection = "donations"
	CollectionVolunteer  Collection = "volunteer"
	CollectionNewsletter Collection = "newsletter"
	CollectionContact    Collection = "contact"
)

// Collections lists every collection in the order the admin view and the sync job use.
var Collections = []Collection{
	CollectionDonations,
	CollectionVolunteer,
	CollectionNewsletter,
	CollectionContact,
}

// Valid reports whether c is one of the known collections.
func (c Collection) Valid() bool {
	for _, known := range Collections {
		if c == known {
			return true
		}
	}
	return false
}

// DateLayout is the layout of the "date" field stamped on every record.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatDate renders t in UTC using DateLayout.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// NormalizeEmail は比較用にアドレスを trim して小文字化する
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ErrNoKey is returned when a record lacks the fields of its dedup key.
var ErrNoKey = errors.New("record has no dedup key")
