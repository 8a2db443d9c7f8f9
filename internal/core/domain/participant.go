package domain

import "time"

// Participant is a virtual participant bound to a wallet address.
type Participant struct {
	ID              string
	Name            string
	Emoji           string
	Wallet          string
	Claimed         bool
	Status          ParticipantStatus
	SuppressedUntil time.Time
}

type ParticipantStatus string

const (
	ParticipantAlive         ParticipantStatus = "alive"
	ParticipantDead          ParticipantStatus = "dead"
	ParticipantInactive      ParticipantStatus = "inactive"
	ParticipantIncapacitated ParticipantStatus = "incapacitated"
)

// Role of a participant in an event.
type Role string

const (
	RoleBuyer     Role = "buyer"
	RoleSeller    Role = "seller"
	RoleSender    Role = "sender"
	RoleRecipient Role = "recipient"
)

// Eligible reports whether the participant may react at now, and if not, why.
func (p *Participant) Eligible(now time.Time) (bool, string) {
	switch p.Status {
	case ParticipantDead, ParticipantInactive, ParticipantIncapacitated:
		return false, string(p.Status)
	}
	if now.Before(p.SuppressedUntil) {
		return false, "suppressed"
	}
	return true, ""
}

// DisplayName returns "emoji name" when known.
func (p *Participant) DisplayName() string {
	if p.Emoji == "" {
		return p.Name
	}
	return p.Emoji + " " + p.Name
}
