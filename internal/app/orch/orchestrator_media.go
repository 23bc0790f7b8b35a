package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/domain"
)

// ReceiveVideoFrom negotiates reception of senderName's stream for the
// connection's participant. The sender is looked up in the requester's room
// only.
func (o *Orchestrator) ReceiveVideoFrom(ctx context.Context, cid core.ConnID, senderName domain.ParticipantName, sdpOffer string) error {
	user, ok := o.Registry.GetByConn(cid)
	if !ok {
		return domain.ErrNotJoined
	}
	sender, ok := o.Registry.GetByName(user.RoomName(), senderName)
	if !ok {
		return fmt.Errorf("%s in room %s: %w", senderName, user.RoomName(), domain.ErrSenderNotFound)
	}
	return user.ReceiveVideoFrom(ctx, sender, sdpOffer)
}
