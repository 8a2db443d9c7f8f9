package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCursor_AdvanceIsMonotonic(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	c := Cursor{}.Advance(100, t0, "sigA")

	assert.Equal(t, uint64(100), c.LastSeenSlot)
	assert.Equal(t, "sigA", c.LastSeenSignature)
	assert.Equal(t, t0, c.LastSeenAt)

	// Older observation must not move the cursor back.
	back := c.Advance(90, t0.Add(-time.Minute), "sigOld")
	assert.Equal(t, c, back)

	fwd := c.Advance(120, t0.Add(time.Minute), "sigB")
	assert.Equal(t, uint64(120), fwd.LastSeenSlot)
	assert.Equal(t, "sigB", fwd.LastSeenSignature)
	assert.False(t, fwd.Before(c))
	assert.True(t, c.Before(fwd))
}

func TestCursor_Merge(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	a := Cursor{LastSeenSlot: 10, LastSeenSignature: "a", LastSeenAt: t0.Add(time.Hour)}
	b := Cursor{LastSeenSlot: 20, LastSeenSignature: "b", LastSeenAt: t0}

	m := a.Merge(b)
	assert.Equal(t, uint64(20), m.LastSeenSlot)
	assert.Equal(t, "b", m.LastSeenSignature)
	assert.Equal(t, t0.Add(time.Hour), m.LastSeenAt)
}

func TestParticipant_Eligible(t *testing.T) {
	now := time.Now()
	tests := []struct {
		p      Participant
		ok     bool
		reason string
	}{
		{Participant{Status: ParticipantAlive}, true, ""},
		{Participant{Status: ParticipantDead}, false, "dead"},
		{Participant{Status: ParticipantIncapacitated}, false, "incapacitated"},
		{Participant{Status: ParticipantAlive, SuppressedUntil: now.Add(time.Minute)}, false, "suppressed"},
		{Participant{Status: ParticipantAlive, SuppressedUntil: now.Add(-time.Minute)}, true, ""},
	}
	for _, tt := range tests {
		ok, reason := tt.p.Eligible(now)
		assert.Equal(t, tt.ok, ok)
		assert.Equal(t, tt.reason, reason)
	}
}
