package audit

import "time"

// Entry is one record in the append-only audit trail. Sequence gives
// insertion order and is assigned by the store.
type Entry struct {
	Sequence   uint64    `json:"sequence"`
	ID         string    `json:"id"`
	Hash       string    `json:"hash"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Page is a slice of the trail plus the total length at read time.
type Page struct {
	Entries []Entry `json:"entries"`
	Offset  int     `json:"offset"`
	Total   int     `json:"total"`
}
