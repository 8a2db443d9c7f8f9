package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenetex/cosyworld-sub000/internal/core/config"
	"github.com/cenetex/cosyworld-sub000/internal/core/domain"
)

func TestParticipants_CarrySuppression(t *testing.T) {
	until := time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)
	got := participants([]config.ParticipantConfig{
		{ID: "p1", Name: "Rati", Wallet: "W1", Status: "alive"},
		{ID: "p2", Name: "Moss", Emoji: "🌿", Wallet: "W2", Status: "alive", SuppressedUntil: until},
	})
	require.Len(t, got, 2)

	ok, _ := got[0].Eligible(until.Add(-time.Hour))
	assert.True(t, ok)

	ok, reason := got[1].Eligible(until.Add(-time.Hour))
	assert.False(t, ok)
	assert.Equal(t, "suppressed", reason)

	ok, _ = got[1].Eligible(until)
	assert.True(t, ok, "suppression ends at the configured time")
	assert.Equal(t, domain.ParticipantAlive, got[1].Status)
}
