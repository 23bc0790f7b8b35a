package domain

import "errors"

var (
	ErrNameEmpty   = errors.New("name empty")
	ErrNameTooLong = errors.New("name too long")

	ErrNameTaken         = errors.New("name already taken in room")
	ErrNotJoined         = errors.New("connection has not joined a room")
	ErrNotInRoom         = errors.New("participant is not a member of the room")
	ErrSenderNotFound    = errors.New("sender not found")
	ErrRoomClosed        = errors.New("room closed")
	ErrParticipantClosed = errors.New("participant closed")
)
