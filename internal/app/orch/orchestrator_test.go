package orch_test

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/groupcall/internal/app/orch"
	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestOrchestrator_JoinScenario(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	o, _ := newOrchestrator(t, orch.Hooks{})
	aliceConn, bobConn := &recordingConn{}, &recordingConn{}

	// Given alice joins an empty room
	alice, err := o.Join(ctx, "c1", aliceConn, "r1", "alice")
	req.NoError(err)
	req.True(alice.IsAdmin())
	req.True(alice.IsVisible())

	// When bob joins the same room
	bob, err := o.Join(ctx, "c2", bobConn, "r1", "bob")
	req.NoError(err)

	// Then bob is neither admin nor visible
	req.False(bob.IsAdmin())
	req.False(bob.IsVisible())

	// And alice heard about bob
	arrived := aliceConn.byID(core.MsgNewParticipantArrived)
	req.Len(arrived, 1)
	req.Equal("bob", arrived[0]["name"])
	req.Equal(false, arrived[0]["isAdmin"])

	// And bob got alice in his participant list
	existing := bobConn.byID(core.MsgExistingParticipants)
	req.Len(existing, 1)
	req.Equal(false, existing[0]["isNewUserAdmin"])
	data := existing[0]["data"].([]any)
	req.Len(data, 1)
	first := data[0].(map[string]any)
	req.Equal("alice", first["name"])
	req.Equal(true, first["isAdmin"])
	req.Equal(true, first["isVisible"])

	// And alice got an empty list
	existing = aliceConn.byID(core.MsgExistingParticipants)
	req.Len(existing, 1)
	req.Empty(existing[0]["data"])
	req.Equal(true, existing[0]["isNewUserAdmin"])

	req.Equal(2, o.Registry.Len())
}

func TestOrchestrator_ReceiveVideoFrom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	o, engine := newOrchestrator(t, orch.Hooks{})
	aliceConn, bobConn := &recordingConn{}, &recordingConn{}
	alice, err := o.Join(ctx, "c1", aliceConn, "r1", "alice")
	req.NoError(err)
	bob, err := o.Join(ctx, "c2", bobConn, "r1", "bob")
	req.NoError(err)

	// When bob asks for alice's stream twice
	req.NoError(o.ReceiveVideoFrom(ctx, "c2", "alice", "offer-1"))
	req.NoError(o.ReceiveVideoFrom(ctx, "c2", "alice", "offer-2"))

	// Then only bob is answered, once per request
	answers := bobConn.byID(core.MsgReceiveVideoAnswer)
	req.Len(answers, 2)
	req.Equal("alice", answers[0]["name"])
	req.Contains(answers[0]["sdpAnswer"], "answer:")
	req.Empty(aliceConn.byID(core.MsgReceiveVideoAnswer))

	// And the incoming endpoint was created and connected once
	ep, ok := bob.IncomingFrom("alice")
	req.True(ok)
	req.Equal(2, engine.Offers(ep))
	conns := engine.Connections()
	req.Len(conns, 1)
	req.Equal(alice.Outgoing().ID(), conns[0].Src)
	req.Equal(ep.ID(), conns[0].Sink)

	// When alice asks for her own stream
	req.NoError(o.ReceiveVideoFrom(ctx, "c1", "alice", "offer-3"))

	// Then the loopback uses her outgoing endpoint
	req.Equal(1, engine.Offers(alice.Outgoing()))
	req.Len(aliceConn.byID(core.MsgReceiveVideoAnswer), 1)
}

func TestOrchestrator_ReceiveVideoFrom_SenderNotFound(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	o, _ := newOrchestrator(t, orch.Hooks{})
	_, err := o.Join(ctx, "c1", &recordingConn{}, "r1", "alice")
	req.NoError(err)
	_, err = o.Join(ctx, "c2", &recordingConn{}, "r2", "bob")
	req.NoError(err)

	// Unknown sender
	err = o.ReceiveVideoFrom(ctx, "c1", "nobody", "offer")
	req.ErrorIs(err, domain.ErrSenderNotFound)

	// Sender in another room
	err = o.ReceiveVideoFrom(ctx, "c2", "alice", "offer")
	req.ErrorIs(err, domain.ErrSenderNotFound)
}

func TestOrchestrator_NotJoined(t *testing.T) {
	req := require.New(t)
	o, _ := newOrchestrator(t, orch.Hooks{})

	req.ErrorIs(o.Leave("c1"), domain.ErrNotJoined)
	_, err := o.ChangeVisibility("c1")
	req.ErrorIs(err, domain.ErrNotJoined)
	req.ErrorIs(o.Chat("c1", "hi", ""), domain.ErrNotJoined)
	req.ErrorIs(o.ReceiveVideoFrom(context.Background(), "c1", "alice", "offer"), domain.ErrNotJoined)

	// Disconnect of an unknown connection is a no-op
	o.OnDisconnect("c1")
}

func TestOrchestrator_Leave(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	o, engine := newOrchestrator(t, orch.Hooks{})
	aliceConn, bobConn := &recordingConn{}, &recordingConn{}
	alice, err := o.Join(ctx, "c1", aliceConn, "r1", "alice")
	req.NoError(err)
	bob, err := o.Join(ctx, "c2", bobConn, "r1", "bob")
	req.NoError(err)
	req.NoError(o.ReceiveVideoFrom(ctx, "c2", "alice", "offer"))
	sink, ok := bob.IncomingFrom("alice")
	req.True(ok)

	// When alice leaves
	req.NoError(o.Leave("c1"))

	// Then bob is told and drops his sink for alice
	left := bobConn.byID(core.MsgParticipantLeft)
	req.Len(left, 1)
	req.Equal("alice", left[0]["name"])
	_, ok = bob.IncomingFrom("alice")
	req.False(ok)
	req.Eventually(func() bool {
		return !engine.Live(sink.ID()) && !engine.Live(alice.Outgoing().ID())
	}, time.Second, 10*time.Millisecond)

	// And alice is deregistered but her connection stays open
	_, ok = o.Registry.GetByConn("c1")
	req.False(ok)
	_, ok = o.Registry.GetByName("r1", "alice")
	req.False(ok)
	req.False(aliceConn.IsClosed())

	// And bob stays non-admin
	req.False(bob.IsAdmin())
	_, ok = o.Rooms.Get("r1")
	req.True(ok)
}

func TestOrchestrator_LastLeaveDestroysRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	o, engine := newOrchestrator(t, orch.Hooks{})
	_, err := o.Join(ctx, "c1", &recordingConn{}, "r1", "alice")
	req.NoError(err)
	_, err = o.Join(ctx, "c2", &recordingConn{}, "r1", "bob")
	req.NoError(err)

	// When everyone leaves
	req.NoError(o.Leave("c1"))
	o.OnDisconnect("c2")

	// Then the room and its pipeline are gone
	_, ok := o.Rooms.Get("r1")
	req.False(ok)
	req.Equal(0, o.Registry.Len())
	req.Eventually(func() bool { return engine.PipelineCount() == 0 }, time.Second, 10*time.Millisecond)

	// And the next joiner of that name starts a fresh room as admin
	carol, err := o.Join(ctx, "c3", &recordingConn{}, "r1", "carol")
	req.NoError(err)
	req.True(carol.IsAdmin())
	req.True(carol.IsVisible())
}

func TestOrchestrator_RejoinLeavesCurrentRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	o, _ := newOrchestrator(t, orch.Hooks{})
	conn := &recordingConn{}
	_, err := o.Join(ctx, "c1", conn, "r1", "alice")
	req.NoError(err)

	// When the same connection joins another room
	p, err := o.Join(ctx, "c1", conn, "r2", "alice")
	req.NoError(err)

	// Then only the new membership remains
	req.Equal(domain.RoomName("r2"), p.RoomName())
	_, ok := o.Registry.GetByName("r1", "alice")
	req.False(ok)
	_, ok = o.Rooms.Get("r1")
	req.False(ok)
	got, ok := o.Registry.GetByConn("c1")
	req.True(ok)
	req.Same(p, got)
	req.Equal(1, o.Registry.Len())
}

func TestOrchestrator_NameTaken(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	o, engine := newOrchestrator(t, orch.Hooks{})
	alice, err := o.Join(ctx, "c1", &recordingConn{}, "r1", "alice")
	req.NoError(err)

	// When another connection claims the same name
	_, err = o.Join(ctx, "c2", &recordingConn{}, "r1", "alice")

	// Then it is refused and the first alice is untouched
	req.ErrorIs(err, domain.ErrNameTaken)
	_, ok := o.Registry.GetByConn("c2")
	req.False(ok)
	got, ok := o.Registry.GetByName("r1", "alice")
	req.True(ok)
	req.Same(alice, got)
	_, ok = o.Rooms.Get("r1")
	req.True(ok)
	req.Eventually(func() bool { return engine.EndpointCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestOrchestrator_ChangeVisibility(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	o, _ := newOrchestrator(t, orch.Hooks{})
	aliceConn, bobConn := &recordingConn{}, &recordingConn{}
	_, err := o.Join(ctx, "c1", aliceConn, "r1", "alice")
	req.NoError(err)
	_, err = o.Join(ctx, "c2", bobConn, "r1", "bob")
	req.NoError(err)

	visible, err := o.ChangeVisibility("c2")
	req.NoError(err)
	req.True(visible)

	for _, c := range []*recordingConn{aliceConn, bobConn} {
		updates := c.byID(core.MsgUpdateVisibility)
		req.Len(updates, 1)
		req.Equal("bob", updates[0]["user"])
		req.Equal(true, updates[0]["visibility"])
	}

	visible, err = o.ChangeVisibility("c2")
	req.NoError(err)
	req.False(visible)
}

func TestOrchestrator_Chat(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	o, _ := newOrchestrator(t, orch.Hooks{})
	aliceConn, bobConn := &recordingConn{}, &recordingConn{}
	_, err := o.Join(ctx, "c1", aliceConn, "r1", "alice")
	req.NoError(err)
	_, err = o.Join(ctx, "c2", bobConn, "r1", "bob")
	req.NoError(err)

	req.NoError(o.Chat("c1", "hello", "r1"))

	mine := aliceConn.byID(core.MsgChatMessageReceived)
	req.Len(mine, 1)
	req.Equal("alice", mine[0]["sender"])
	req.Equal("hello", mine[0]["text"])
	req.Equal(true, mine[0]["isYou"])
	req.Regexp(`^\d{2}:\d{2}:\d{2}$`, mine[0]["time"])

	theirs := bobConn.byID(core.MsgChatMessageReceived)
	req.Len(theirs, 1)
	req.Equal(false, theirs[0]["isYou"])

	// An empty room defaults to the sender's room
	req.NoError(o.Chat("c2", "hi", ""))
	req.Len(aliceConn.byID(core.MsgChatMessageReceived), 2)

	// Another room is refused
	req.ErrorIs(o.Chat("c1", "psst", "r2"), domain.ErrNotInRoom)
}

func TestOrchestrator_TestDisableHook(t *testing.T) {
	ctx := context.Background()

	t.Run("enabled releases a sink", func(t *testing.T) {
		req := require.New(t)
		o, engine := newOrchestrator(t, orch.Hooks{TestDisable: true})
		aliceConn, bobConn := &recordingConn{}, &recordingConn{}
		_, err := o.Join(ctx, "c1", aliceConn, "r1", "alice")
		req.NoError(err)
		bob, err := o.Join(ctx, "c2", bobConn, "r1", "bob")
		req.NoError(err)
		req.NoError(o.ReceiveVideoFrom(ctx, "c2", "alice", "offer"))
		sink, _ := bob.IncomingFrom("alice")

		req.NoError(o.Chat("c1", orch.TestDisableText, ""))

		_, ok := bob.IncomingFrom("alice")
		req.False(ok)
		req.Eventually(func() bool { return !engine.Live(sink.ID()) }, time.Second, 10*time.Millisecond)
		req.Empty(aliceConn.byID(core.MsgChatMessageReceived))
		req.Empty(bobConn.byID(core.MsgChatMessageReceived))
	})

	t.Run("disabled relays the text", func(t *testing.T) {
		req := require.New(t)
		o, _ := newOrchestrator(t, orch.Hooks{})
		bobConn := &recordingConn{}
		_, err := o.Join(ctx, "c1", &recordingConn{}, "r1", "alice")
		req.NoError(err)
		bob, err := o.Join(ctx, "c2", bobConn, "r1", "bob")
		req.NoError(err)
		req.NoError(o.ReceiveVideoFrom(ctx, "c2", "alice", "offer"))

		req.NoError(o.Chat("c1", orch.TestDisableText, ""))

		_, ok := bob.IncomingFrom("alice")
		req.True(ok)
		msgs := bobConn.byID(core.MsgChatMessageReceived)
		req.Len(msgs, 1)
		req.Equal(orch.TestDisableText, msgs[0]["text"])
	})
}
