package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// AttachmentList stores message attachments as a JSONB column.
type AttachmentList []Attachment

// Value implements driver.Valuer.
func (a AttachmentList) Value() (driver.Value, error) {
	if len(a) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *AttachmentList) Scan(src interface{}) error {
	return scanJSON(src, a)
}

// RevisionList stores a message's append-only edit history as JSONB.
type RevisionList []Revision

// Value implements driver.Valuer.
func (r RevisionList) Value() (driver.Value, error) {
	if len(r) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner.
func (r *RevisionList) Scan(src interface{}) error {
	return scanJSON(src, r)
}

// SnapshotList stores the prior-state snapshots of an operation as JSONB.
type SnapshotList []MessageSnapshot

// Value implements driver.Valuer.
func (s SnapshotList) Value() (driver.Value, error) {
	if len(s) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *SnapshotList) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// Metadata is a free-form JSONB object attached to notifications.
type Metadata map[string]string

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src interface{}) error {
	return scanJSON(src, m)
}

func scanJSON(src, dst interface{}) error {
	if src == nil {
		return nil
	}
	switch data := src.(type) {
	case []byte:
		return json.Unmarshal(data, dst)
	case string:
		return json.Unmarshal([]byte(data), dst)
	default:
		return fmt.Errorf("cannot scan %T into JSON column", src)
	}
}
