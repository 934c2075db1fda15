package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/soundboard-relay/internal/dependencies/mocks"
	"github.com/mcoot/soundboard-relay/internal/model"
	"github.com/mcoot/soundboard-relay/internal/services/auth"
	"github.com/mcoot/soundboard-relay/internal/services/board"
	"github.com/mcoot/soundboard-relay/internal/services/registry"
	"github.com/mcoot/soundboard-relay/internal/services/session"
	"github.com/mcoot/soundboard-relay/internal/services/sound"
	"github.com/mcoot/soundboard-relay/internal/storage/memory"
	"github.com/mcoot/soundboard-relay/internal/testutil"
	"github.com/mcoot/soundboard-relay/internal/transport"
	"github.com/mcoot/soundboard-relay/internal/transport/hub"
)

type doc = map[string]any

const waitTimeout = time.Second

type DispatcherSuite struct {
	suite.Suite
	registry   *registry.Registry
	hub        *hub.Hub
	dispatcher *Dispatcher
	ctx        context.Context
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	clock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	hasher, err := auth.New(auth.DefaultConfig())
	s.Require().NoError(err)

	s.registry = registry.NewRegistry(memory.New(), hasher, clock, mocks.NewMockRandom())
	sessions := session.NewStore(clock)
	s.hub = hub.New(mocks.NewMockRandom(), testutil.NopLogger())
	boards := board.New(s.registry, s.hub, testutil.NopLogger())
	sounds := sound.New(sessions, s.hub, sound.Config{FetchTimeout: 50 * time.Millisecond}, testutil.NopLogger())
	s.dispatcher = NewDispatcher(s.hub, sessions, boards, sounds, s.registry, clock, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *DispatcherSuite) connect(id model.ConnectionID) *testutil.FakePeer {
	peer := testutil.NewFakePeer(id)
	s.Require().NoError(s.dispatcher.Connect(peer))
	return peer
}

func (s *DispatcherSuite) send(from model.ConnectionID, event, id string, data any) {
	s.dispatcher.Handle(s.ctx, from, transport.Frame{Event: event, ID: id, Data: data})
}

// ack returns the ack with the given id, waiting for asynchronous replies
func (s *DispatcherSuite) ack(peer *testutil.FakePeer, id string) transport.Frame {
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		for _, f := range peer.Received(model.EventAck) {
			if f.ID == id {
				return f
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.FailNow("no ack received", "id %s", id)
	return transport.Frame{}
}

func (s *DispatcherSuite) createBoard(peer *testutil.FakePeer, args doc) *model.Board {
	s.send(peer.ID(), model.EventBoardCreate, "create", args)
	ack := s.ack(peer, "create")
	s.Require().Nil(ack.Error)
	return ack.Data.(*model.Board)
}

func (s *DispatcherSuite) TestAuthJoinScenario() {
	alice := s.connect("alice")
	bob := s.connect("bob")
	created := s.createBoard(alice, doc{"clientData": doc{}, "auth": "secret"})

	s.send("bob", model.EventBoardJoin, "j1", doc{"clientData": doc{}, "boardId": string(created.ID), "auth": "nope"})
	failed := s.ack(bob, "j1")
	s.Require().NotNil(failed.Error)
	s.Equal(model.CodeAuthFailed, failed.Error.Code)
	s.Nil(failed.Data)

	s.send("bob", model.EventBoardJoin, "j2", doc{"clientData": doc{}, "boardId": string(created.ID), "auth": "secret"})
	joined := s.ack(bob, "j2")
	s.Require().Nil(joined.Error)
	s.Equal(created.ID, joined.Data.(*model.Board).ID)
	s.Equal(created.Locked, joined.Data.(*model.Board).Locked)

	_, ok := alice.WaitFor(model.EventBoardJoined, waitTimeout)
	s.True(ok)
}

func (s *DispatcherSuite) TestUpdateScenario() {
	alice := s.connect("alice")
	bob := s.connect("bob")
	created := s.createBoard(alice, doc{"clientData": doc{}})
	s.send("bob", model.EventBoardJoin, "j", doc{"clientData": doc{}, "boardId": string(created.ID)})
	s.ack(bob, "j")

	s.send("alice", model.EventBoardUpdate, "u", doc{"options": doc{"data": doc{"name": "x"}}})

	ack := s.ack(alice, "u")
	s.Require().Nil(ack.Error)
	for _, peer := range []*testutil.FakePeer{alice, bob} {
		frame, ok := peer.WaitFor(model.EventBoardUpdated, waitTimeout)
		s.Require().True(ok)
		s.Equal("x", frame.Data.(model.BoardPayload).Board.Data["name"])
	}
}

func (s *DispatcherSuite) TestMissingScenario() {
	alice := s.connect("alice")
	bob := s.connect("bob")
	created := s.createBoard(alice, doc{"clientData": doc{}})
	s.send("bob", model.EventBoardJoin, "j", doc{"clientData": doc{}, "boardId": string(created.ID)})
	s.ack(bob, "j")

	s.send("alice", model.EventSoundPlay, "", doc{"soundId": "s1"})

	s.send("bob", model.EventSoundMissing, "m1", doc{"soundId": "s1"})

	// Alice's client answers the relayed request through its own ack frame
	request, ok := alice.WaitFor(model.EventSoundMissing, waitTimeout)
	s.Require().True(ok)
	s.NotEmpty(request.ID)
	s.send("alice", model.EventAck, request.ID, doc{"id": "s1"})

	reply := s.ack(bob, "m1")
	s.Nil(reply.Error)
	s.Equal(doc{"id": "s1"}, reply.Data)
}

func (s *DispatcherSuite) TestMissingRelaysHolderErrorUnchanged() {
	tests := []struct {
		name string
		raw  any
	}{
		{"object with extra fields", doc{"code": "SoundNotCached", "message": "evicted", "details": doc{"k": float64(1)}}},
		{"bare string", "SoundNotCached"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			alice := s.connect("alice")
			bob := s.connect("bob")
			created := s.createBoard(alice, doc{"clientData": doc{}})
			s.send("bob", model.EventBoardJoin, "j", doc{"clientData": doc{}, "boardId": string(created.ID)})
			s.ack(bob, "j")
			s.send("alice", model.EventSoundPlay, "", doc{"soundId": "s1"})

			s.send("bob", model.EventSoundMissing, "m1", doc{"soundId": "s1"})
			request, ok := alice.WaitFor(model.EventSoundMissing, waitTimeout)
			s.Require().True(ok)
			s.dispatcher.Handle(s.ctx, "alice", transport.Frame{
				Event: model.EventAck,
				ID:    request.ID,
				Error: model.DecodeProtocolError(tt.raw),
			})

			reply := s.ack(bob, "m1")
			s.Require().NotNil(reply.Error)
			s.Equal(tt.raw, reply.Error.Wire())
			s.Nil(reply.Data)
		})
	}
}

func (s *DispatcherSuite) TestLoneFetchTimesOut() {
	alice := s.connect("alice")
	s.createBoard(alice, doc{"clientData": doc{}})

	s.send("alice", model.EventSoundFetch, "f1", nil)

	reply := s.ack(alice, "f1")
	s.Require().NotNil(reply.Error)
	s.Equal(model.CodeTimeout, reply.Error.Code)
}

func (s *DispatcherSuite) TestLateAckIsIgnored() {
	alice := s.connect("alice")
	s.createBoard(alice, doc{"clientData": doc{}})

	s.send("alice", model.EventSoundFetch, "f1", nil)
	request, ok := alice.WaitFor(model.EventSoundFetch, waitTimeout)
	s.Require().True(ok)
	s.ack(alice, "f1")

	s.NotPanics(func() {
		s.send("alice", model.EventAck, request.ID, []any{})
	})
}

func (s *DispatcherSuite) TestDroppedRequestsGetNoAck() {
	alice := s.connect("alice")

	s.send("alice", model.EventBoardLeave, "l", nil)
	s.send("alice", model.EventBoardUpdate, "u", doc{"options": doc{}})
	s.send("alice", model.EventBoardClientUpdate, "c", doc{"clientData": doc{}})
	s.send("alice", model.EventSoundPlay, "p", doc{"soundId": "s1"})
	s.send("alice", model.EventSoundDelete, "d", doc{"soundId": "s1"})

	time.Sleep(20 * time.Millisecond)
	s.Empty(alice.Frames())
}

func (s *DispatcherSuite) TestEmptyAcks() {
	alice := s.connect("alice")
	s.createBoard(alice, doc{"clientData": doc{}})

	s.send("alice", model.EventSoundUpdate, "su", doc{"sound": doc{"id": "s1"}})
	s.send("alice", model.EventSoundDelete, "sd", doc{"soundId": "s1"})
	s.send("alice", model.EventBoardLeave, "l", nil)

	for _, id := range []string{"su", "sd", "l"} {
		ack := s.ack(alice, id)
		s.Nil(ack.Error)
		s.Nil(ack.Data)
	}
}

func (s *DispatcherSuite) TestFramesWithoutIDGetNoAck() {
	alice := s.connect("alice")

	s.send("alice", model.EventBoardCreate, "", doc{"clientData": doc{}})
	s.send("alice", model.EventBoardJoin, "", doc{})

	s.Empty(alice.Received(model.EventAck))
	count, _ := s.registry.Count(s.ctx)
	s.Equal(1, count)
}

func (s *DispatcherSuite) TestInvalidArgumentsCarryCause() {
	alice := s.connect("alice")
	args := doc{"clientData": "nope"}

	s.send("alice", model.EventBoardCreate, "c", args)

	ack := s.ack(alice, "c")
	s.Require().NotNil(ack.Error)
	s.Equal(model.CodeInvalidArguments, ack.Error.Code)
	s.Equal("Invalid arguments", ack.Error.Message)
	s.Equal(args, ack.Error.Cause)
}

func (s *DispatcherSuite) TestUnknownEvent() {
	alice := s.connect("alice")

	s.send("alice", "board:explode", "x", nil)

	ack := s.ack(alice, "x")
	s.Require().NotNil(ack.Error)
	s.Equal(model.CodeInvalidArguments, ack.Error.Code)
}

func (s *DispatcherSuite) TestDisconnectLeavesBoard() {
	alice := s.connect("alice")
	bob := s.connect("bob")
	created := s.createBoard(alice, doc{"clientData": doc{"name": "Alice"}})
	s.send("bob", model.EventBoardJoin, "j", doc{"clientData": doc{}, "boardId": string(created.ID)})
	s.ack(bob, "j")

	s.dispatcher.Disconnect(s.ctx, "alice")

	left, ok := bob.WaitFor(model.EventBoardLeft, waitTimeout)
	s.Require().True(ok)
	s.Equal(model.ConnectionID("alice"), left.Data.(model.ClientPayload).Client.ID)
	_, err := s.registry.Get(s.ctx, created.ID)
	s.NoError(err)

	s.dispatcher.Disconnect(s.ctx, "bob")
	_, err = s.registry.Get(s.ctx, created.ID)
	s.ErrorIs(err, model.ErrBoardNotFound)

	// A second disconnect is harmless
	s.NotPanics(func() { s.dispatcher.Disconnect(s.ctx, "bob") })
	s.Equal(0, s.hub.Stats().Connections)
}

func (s *DispatcherSuite) TestFrameFromUnknownConnection() {
	s.NotPanics(func() {
		s.send("ghost", model.EventBoardCreate, "c", doc{"clientData": doc{}})
	})
}

func (s *DispatcherSuite) TestStats() {
	alice := s.connect("alice")
	s.connect("bob")
	s.createBoard(alice, doc{"clientData": doc{}})

	stats, err := s.dispatcher.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, stats.Boards)
	s.Equal(2, stats.Connections)
	s.Equal(1, stats.Groups)
}
