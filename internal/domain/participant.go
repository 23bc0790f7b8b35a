// Package domain contains entities without logic, just meta-data
package domain

import "unicode/utf8"

const (
	MaxParticipantNameLen = 36
	MaxRoomNameLen        = 64
)

type ParticipantName string

// ParticipantKey is the identity of a participant: a name is unique only
// inside its room, so two sessions are the same participant iff both parts match.
type ParticipantKey struct {
	Room RoomName
	Name ParticipantName
}

func (k ParticipantKey) String() string {
	return string(k.Room) + "/" + string(k.Name)
}

// NewParticipantName validates a raw name received from a client.
func NewParticipantName(raw string) (ParticipantName, error) {
	if raw == "" {
		return "", ErrNameEmpty
	}
	if utf8.RuneCountInString(raw) > MaxParticipantNameLen {
		return "", ErrNameTooLong
	}
	return ParticipantName(raw), nil
}
