package factory

import (
	"io"
	"log/slog"
	"time"

	"github.com/mcoot/soundboard-relay/internal/dependencies/mocks"
	"github.com/mcoot/soundboard-relay/internal/services/auth"
	"github.com/mcoot/soundboard-relay/internal/services/sound"
	"github.com/mcoot/soundboard-relay/internal/storage"
	"github.com/mcoot/soundboard-relay/internal/storage/memory"
	"github.com/mcoot/soundboard-relay/internal/transport/ws"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	return NewTestAppWithStorage(memory.New())
}

// NewTestAppWithStorage creates a TestApp on top of the given storage backend
func NewTestAppWithStorage(store storage.Storage) *TestApp {
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	hasher, err := auth.New(auth.DefaultConfig())
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	soundCfg := sound.Config{FetchTimeout: 100 * time.Millisecond}
	app := newWithDependencies(store, hasher, mockClock, mockRandom, soundCfg, ws.DefaultConfig(), logger)

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}
