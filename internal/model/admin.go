package model

import "encoding/json"

// AdminData is the full content of every collection, as returned by GET /admin/data.
type AdminData struct {
	Donations  []json.RawMessage `json:"donations"`
	Volunteer  []json.RawMessage `json:"volunteer"`
	Newsletter []json.RawMessage `json:"newsletter"`
	Contact    []json.RawMessage `json:"contact"`
}
