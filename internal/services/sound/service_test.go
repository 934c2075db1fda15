package sound

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
	"github.com/mcoot/soundboard-relay/internal/storage/memory"
	"github.com/mcoot/soundboard-relay/internal/testutil"
	"github.com/mcoot/soundboard-relay/internal/transport"
	"github.com/mcoot/soundboard-relay/internal/transport/hub"
)

type doc = map[string]any

type ServiceSuite struct {
	suite.Suite
	sessions *session.Store
	hub      *hub.Hub
	boards   *board.Service
	service  *Service
	ctx      context.Context

	alice     *session.Session
	alicePeer *testutil.FakePeer
	bob       *session.Session
	bobPeer   *testutil.FakePeer
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	clock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	hasher, err := auth.New(auth.DefaultConfig())
	s.Require().NoError(err)

	reg := registry.NewRegistry(memory.New(), hasher, clock, mocks.NewMockRandom())
	s.sessions = session.NewStore(clock)
	s.hub = hub.New(mocks.NewMockRandom(), testutil.NopLogger())
	s.boards = board.New(reg, s.hub, testutil.NopLogger())
	s.service = New(s.sessions, s.hub, Config{FetchTimeout: 50 * time.Millisecond}, testutil.NopLogger())
	s.ctx = context.Background()

	s.alice, s.alicePeer = s.connect("alice")
	s.bob, s.bobPeer = s.connect("bob")
}

func (s *ServiceSuite) connect(id model.ConnectionID) (*session.Session, *testutil.FakePeer) {
	peer := testutil.NewFakePeer(id)
	s.Require().NoError(s.hub.Register(peer))
	return s.sessions.Open(id), peer
}

// shareBoard puts alice (host) and bob on the same board
func (s *ServiceSuite) shareBoard() model.BoardID {
	b, err := s.boards.Create(s.ctx, s.alice, doc{"clientData": doc{}})
	s.Require().NoError(err)
	_, err = s.boards.Join(s.ctx, s.bob, doc{"clientData": doc{}, "boardId": string(b.ID)})
	s.Require().NoError(err)
	s.alicePeer.Reset()
	s.bobPeer.Reset()
	return b.ID
}

func (s *ServiceSuite) TestUnboundOperationsAreDropped() {
	s.ErrorIs(s.service.Play(s.ctx, s.alice, doc{"soundId": "s1"}), model.ErrDropped)
	s.ErrorIs(s.service.UpdateSound(s.ctx, s.alice, doc{"sound": doc{"id": "s1"}}), model.ErrDropped)
	s.ErrorIs(s.service.DeleteSound(s.ctx, s.alice, doc{"soundId": "s1"}), model.ErrDropped)

	_, err := s.service.Missing(s.ctx, s.alice, doc{"soundId": "s1"})
	s.ErrorIs(err, model.ErrDropped)
	_, err = s.service.Fetch(s.ctx, s.alice)
	s.ErrorIs(err, model.ErrDropped)

	// Invalid arguments are dropped too while unbound
	s.ErrorIs(s.service.DeleteSound(s.ctx, s.alice, doc{}), model.ErrDropped)
	s.Empty(s.alicePeer.Frames())
}

// Play tests

func (s *ServiceSuite) TestPlayBroadcastsToWholeGroup() {
	s.shareBoard()

	s.Require().NoError(s.service.Play(s.ctx, s.alice, doc{"soundId": "s1"}))

	for _, peer := range []*testutil.FakePeer{s.alicePeer, s.bobPeer} {
		frames := peer.Received(model.EventSoundPlayed)
		s.Require().Len(frames, 1)
		s.Equal(model.SoundIDPayload{SoundID: "s1"}, frames[0].Data)
	}
	s.True(s.alice.HasPlayed("s1"))
	s.False(s.bob.HasPlayed("s1"))
}

func (s *ServiceSuite) TestPlayInvalid() {
	s.shareBoard()

	err := s.service.Play(s.ctx, s.alice, doc{"soundId": 3})
	s.ErrorIs(err, model.ErrInvalidArguments)
	s.Empty(s.bobPeer.Frames())
}

// UpdateSound / DeleteSound tests

func (s *ServiceSuite) TestUpdateSoundRelaysDocument() {
	s.shareBoard()
	sound := doc{"id": "s1", "name": "Airhorn", "volume": 0.8}

	s.Require().NoError(s.service.UpdateSound(s.ctx, s.bob, doc{"sound": sound}))

	for _, peer := range []*testutil.FakePeer{s.alicePeer, s.bobPeer} {
		frames := peer.Received(model.EventSoundUpdated)
		s.Require().Len(frames, 1)
		s.Equal(model.SoundPayload{Sound: sound}, frames[0].Data)
	}
}

func (s *ServiceSuite) TestUpdateSoundInvalid() {
	s.shareBoard()

	for _, args := range []doc{{}, {"sound": doc{}}, {"sound": doc{"id": 1}}, {"sound": "s1"}} {
		err := s.service.UpdateSound(s.ctx, s.bob, args)
		var perr *model.ProtocolError
		s.Require().ErrorAs(err, &perr)
		s.Equal(model.CodeInvalidArguments, perr.Code)
		s.Equal(args, perr.Cause)
	}
	s.Empty(s.alicePeer.Frames())
}

func (s *ServiceSuite) TestDeleteSound() {
	s.shareBoard()

	s.Require().NoError(s.service.DeleteSound(s.ctx, s.alice, doc{"soundId": "s1"}))

	frames := s.bobPeer.Received(model.EventSoundDeleted)
	s.Require().Len(frames, 1)
	s.Equal(model.SoundIDPayload{SoundID: "s1"}, frames[0].Data)
	s.Len(s.alicePeer.Received(model.EventSoundDeleted), 1)
}

func (s *ServiceSuite) TestDeleteSoundInvalid() {
	s.shareBoard()

	err := s.service.DeleteSound(s.ctx, s.alice, doc{"soundId": nil})
	s.ErrorIs(err, model.ErrInvalidArguments)
}

// Missing tests

func (s *ServiceSuite) TestMissingRelaysHolderAnswer() {
	s.shareBoard()
	s.Require().NoError(s.service.Play(s.ctx, s.alice, doc{"soundId": "s1"}))
	s.alicePeer.Respond(s.hub, func(f transport.Frame) (any, *model.ProtocolError, bool) {
		s.Equal(model.EventSoundMissing, f.Event)
		s.Equal(model.SoundIDPayload{SoundID: "s1"}, f.Data)
		return doc{"id": "s1"}, nil, true
	})

	sound, err := s.service.Missing(s.ctx, s.bob, doc{"soundId": "s1"})
	s.Require().NoError(err)
	s.Equal(doc{"id": "s1"}, sound)
	s.Empty(s.bobPeer.Received(model.EventSoundMissing))
}

func (s *ServiceSuite) TestMissingForwardsHolderError() {
	s.shareBoard()
	s.Require().NoError(s.service.Play(s.ctx, s.alice, doc{"soundId": "s1"}))
	relayed := &model.ProtocolError{Code: model.CodeSoundNotCached, Message: "evicted", Cause: "s1"}
	s.alicePeer.Respond(s.hub, func(f transport.Frame) (any, *model.ProtocolError, bool) {
		return nil, relayed, true
	})

	_, err := s.service.Missing(s.ctx, s.bob, doc{"soundId": "s1"})

	var perr *model.ProtocolError
	s.Require().ErrorAs(err, &perr)
	s.Equal(*relayed, *perr)
}

func (s *ServiceSuite) TestMissingWithoutHolderIsDropped() {
	s.shareBoard()

	_, err := s.service.Missing(s.ctx, s.bob, doc{"soundId": "s1"})
	s.ErrorIs(err, model.ErrDropped)
	s.Empty(s.alicePeer.Frames())
}

func (s *ServiceSuite) TestMissingHolderDisconnectsIsDropped() {
	s.shareBoard()
	s.Require().NoError(s.service.Play(s.ctx, s.alice, doc{"soundId": "s1"}))

	done := make(chan error, 1)
	go func() {
		_, err := s.service.Missing(s.ctx, s.bob, doc{"soundId": "s1"})
		done <- err
	}()
	_, ok := s.alicePeer.WaitFor(model.EventSoundMissing, time.Second)
	s.Require().True(ok)

	s.hub.Unregister("alice")
	s.ErrorIs(<-done, model.ErrDropped)
}

func (s *ServiceSuite) TestMissingInvalid() {
	s.shareBoard()

	_, err := s.service.Missing(s.ctx, s.bob, doc{})
	s.ErrorIs(err, model.ErrInvalidArguments)
}

// Fetch tests

func (s *ServiceSuite) TestFetchAsksHost() {
	s.shareBoard()
	sounds := []any{doc{"id": "s1"}, doc{"id": "s2"}}
	s.alicePeer.Respond(s.hub, func(f transport.Frame) (any, *model.ProtocolError, bool) {
		return sounds, nil, true
	})

	result, err := s.service.Fetch(s.ctx, s.bob)
	s.Require().NoError(err)
	s.Equal(sounds, result)
	s.Len(s.alicePeer.Received(model.EventSoundFetch), 1)
	s.Empty(s.bobPeer.Received(model.EventSoundFetch))
}

func (s *ServiceSuite) TestLoneFetchTimesOut() {
	_, err := s.boards.Create(s.ctx, s.alice, doc{"clientData": doc{}})
	s.Require().NoError(err)

	start := time.Now()
	_, err = s.service.Fetch(s.ctx, s.alice)

	s.ErrorIs(err, model.ErrTimeout)
	s.GreaterOrEqual(time.Since(start), 50*time.Millisecond)

	// The host itself was asked and never answered
	s.Len(s.alicePeer.Received(model.EventSoundFetch), 1)
	s.Equal(0, s.hub.Stats().PendingRequests)
}

func (s *ServiceSuite) TestFetchLateReplyIsIgnored() {
	s.shareBoard()
	s.alicePeer.Respond(s.hub, func(f transport.Frame) (any, *model.ProtocolError, bool) {
		time.Sleep(100 * time.Millisecond)
		return []any{}, nil, true
	})

	_, err := s.service.Fetch(s.ctx, s.bob)
	s.ErrorIs(err, model.ErrTimeout)

	// Let the late reply arrive; nothing should break
	time.Sleep(150 * time.Millisecond)
	s.Equal(0, s.hub.Stats().PendingRequests)
}

func (s *ServiceSuite) TestDefaultConfig() {
	svc := New(s.sessions, s.hub, Config{}, testutil.NopLogger())
	s.Equal(5*time.Second, svc.cfg.FetchTimeout)
}
