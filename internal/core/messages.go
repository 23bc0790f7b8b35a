package core

import "github.com/dkeye/groupcall/internal/domain"

// Outbound message ids.
const (
	MsgNewParticipantArrived = "newParticipantArrived"
	MsgExistingParticipants  = "existingParticipants"
	MsgParticipantLeft       = "participantLeft"
	MsgReceiveVideoAnswer    = "receiveVideoAnswer"
	MsgUpdateVisibility      = "updateVisibility"
	MsgChatMessageReceived   = "chatMessageReceived"
	MsgError                 = "error"
)

// ParticipantInfo is a read-only view of a participant (no transport fields).
type ParticipantInfo struct {
	Name      domain.ParticipantName `json:"name"`
	IsAdmin   bool                   `json:"isAdmin"`
	IsVisible bool                   `json:"isVisible"`
}

type NewParticipantArrived struct {
	ID string `json:"id"`
	ParticipantInfo
}

type ExistingParticipants struct {
	ID               string            `json:"id"`
	IsNewUserAdmin   bool              `json:"isNewUserAdmin"`
	IsNewUserVisible bool              `json:"isNewUserVisible"`
	Data             []ParticipantInfo `json:"data"`
}

type ParticipantLeft struct {
	ID   string                 `json:"id"`
	Name domain.ParticipantName `json:"name"`
}

type ReceiveVideoAnswer struct {
	ID        string                 `json:"id"`
	Name      domain.ParticipantName `json:"name"`
	SdpAnswer string                 `json:"sdpAnswer"`
}

type UpdateVisibility struct {
	ID         string                 `json:"id"`
	User       domain.ParticipantName `json:"user"`
	Visibility bool                   `json:"visibility"`
}

type ChatMessageReceived struct {
	ID     string                 `json:"id"`
	Sender domain.ParticipantName `json:"sender"`
	Text   string                 `json:"text"`
	Time   string                 `json:"time"`
	IsYou  bool                   `json:"isYou"`
}

// ErrorReply is sent back to a connection whose request could not be served.
type ErrorReply struct {
	ID      string `json:"id"`
	Request string `json:"request,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RoomInfo is the directory listing entry of a room.
type RoomInfo struct {
	Name             domain.RoomName `json:"name"`
	ParticipantCount int             `json:"participant_count"`
}
