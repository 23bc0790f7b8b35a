package domain

import "unicode/utf8"

type RoomName string

func NewRoomName(raw string) (RoomName, error) {
	if raw == "" {
		return "", ErrNameEmpty
	}
	if utf8.RuneCountInString(raw) > MaxRoomNameLen {
		return "", ErrNameTooLong
	}
	return RoomName(raw), nil
}
