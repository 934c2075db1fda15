package factory

import (
	"errors"
	"io"
	"log/slog"

	"github.com/mcoot/soundboard-relay/internal/dependencies/clock"
	"github.com/mcoot/soundboard-relay/internal/dependencies/random"
	"github.com/mcoot/soundboard-relay/internal/protocol"
	"github.com/mcoot/soundboard-relay/internal/services/auth"
	"github.com/mcoot/soundboard-relay/internal/services/board"
	"github.com/mcoot/soundboard-relay/internal/services/registry"
	"github.com/mcoot/soundboard-relay/internal/services/session"
	"github.com/mcoot/soundboard-relay/internal/services/sound"
	"github.com/mcoot/soundboard-relay/internal/storage"
	"github.com/mcoot/soundboard-relay/internal/storage/memory"
	redisstorage "github.com/mcoot/soundboard-relay/internal/storage/redis"
	"github.com/mcoot/soundboard-relay/internal/transport/hub"
	"github.com/mcoot/soundboard-relay/internal/transport/ws"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Services
	Hasher       *auth.Hasher
	Registry     *registry.Registry
	Sessions     *session.Store
	BoardService *board.Service
	SoundService *sound.Service

	// Transport
	Hub        *hub.Hub
	Dispatcher *protocol.Dispatcher
	WSHandler  *ws.Handler

	closers []io.Closer
}

// Config holds configuration for the application factory
type Config struct {
	// AuthConfig selects the board secret hash (optional)
	// If zero value, defaults to auth.DefaultConfig()
	AuthConfig auth.Config
	// SoundConfig holds relay timeouts (optional)
	SoundConfig sound.Config
	// WSConfig holds websocket settings (optional)
	WSConfig ws.Config
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory" or "redis")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	// Create storage based on type
	var store storage.Storage
	var closers []io.Closer
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		logger.Info("using redis storage", slog.String("instance_id", redisStore.InstanceID()))
		store = redisStore
		closers = append(closers, redisStore)
	default:
		return nil, errors.New("invalid StorageType: must be 'memory' or 'redis'")
	}

	hasher, err := auth.New(cfg.AuthConfig)
	if err != nil {
		return nil, err
	}

	app := newWithDependencies(store, hasher, clock.New(), random.New(), cfg.SoundConfig, cfg.WSConfig, logger)
	app.closers = closers
	return app, nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.Storage,
	hasher *auth.Hasher,
	clk clock.Clock,
	rnd random.Random,
	soundCfg sound.Config,
	wsCfg ws.Config,
	logger *slog.Logger,
) *App {
	reg := registry.NewRegistry(store, hasher, clk, rnd)
	sessions := session.NewStore(clk)
	h := hub.New(rnd, logger)
	boardService := board.New(reg, h, logger)
	soundService := sound.New(sessions, h, soundCfg, logger)
	dispatcher := protocol.NewDispatcher(h, sessions, boardService, soundService, reg, clk, logger)

	return &App{
		Storage:      store,
		Clock:        clk,
		Random:       rnd,
		Hasher:       hasher,
		Registry:     reg,
		Sessions:     sessions,
		BoardService: boardService,
		SoundService: soundService,
		Hub:          h,
		Dispatcher:   dispatcher,
		WSHandler:    ws.NewHandler(dispatcher, rnd, wsCfg, logger),
	}
}

// Close fails outstanding relays and releases the storage backend
func (a *App) Close() error {
	a.Hub.Close()
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
