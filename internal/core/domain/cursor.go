package domain

import "time"

// Cursor represents the incremental polling position of a tracked token.
type Cursor struct {
	LastSeenSlot      uint64    `json:"last_seen_slot"`
	LastSeenSignature string    `json:"last_seen_signature"`
	LastSeenAt        time.Time `json:"last_seen_at"`
}

// IsZero reports whether the cursor has never been advanced.
func (c Cursor) IsZero() bool {
	return c.LastSeenSlot == 0 && c.LastSeenSignature == "" && c.LastSeenAt.IsZero()
}

// Advance returns the cursor moved forward to the given observation.
// Fields never decrease: a lower slot or older block time leaves the cursor unchanged.
func (c Cursor) Advance(slot uint64, blockTime time.Time, signature string) Cursor {
	next := c
	switch {
	case slot > c.LastSeenSlot:
		next.LastSeenSlot = slot
		next.LastSeenSignature = signature
	case slot == c.LastSeenSlot && signature != "" && c.LastSeenSignature == "":
		next.LastSeenSignature = signature
	}
	if blockTime.After(c.LastSeenAt) {
		next.LastSeenAt = blockTime
	}
	return next
}

// Merge returns the field-wise maximum of two cursors.
func (c Cursor) Merge(other Cursor) Cursor {
	return c.Advance(other.LastSeenSlot, other.LastSeenAt, other.LastSeenSignature)
}

// Before reports whether c is strictly behind other on any field.
func (c Cursor) Before(other Cursor) bool {
	return c.LastSeenSlot < other.LastSeenSlot || c.LastSeenAt.Before(other.LastSeenAt)
}
