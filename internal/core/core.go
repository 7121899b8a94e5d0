// Package core wires every component into one process: it owns
// construction order, start/stop order, and the cross-component
// adapters (registry → skill engine definitions, violation sink →
// skill engine security reports) that the individual packages
// deliberately don't know about each other to avoid import cycles.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wydcore/wyd-server/internal/config"
	"github.com/wydcore/wyd-server/internal/eventbus"
	"github.com/wydcore/wyd-server/internal/reconnect"
	"github.com/wydcore/wyd-server/internal/registry"
	"github.com/wydcore/wyd-server/internal/skillengine"
	"github.com/wydcore/wyd-server/internal/timerwheel"
	"github.com/wydcore/wyd-server/internal/violation"
)

// Core holds every component, constructed bottom-up (registry < bus <
// timers < reconnection < skill-engine) so that later components can
// safely reference earlier ones during construction without ever
// needing to take two locks at once at runtime.
type Core struct {
	Registry     *registry.Registry
	Bus          *eventbus.Bus
	Timers       *timerwheel.Wheel
	Violation    *violation.Sink
	Reconnect    *reconnect.Controller
	SkillEngine  *skillengine.Engine
	SessionStore reconnect.SessionStore

	cfg config.Core
}

// New constructs every component in lock order but starts none of them;
// call Run to start the long-running loops (bus scheduler, timer wheel)
// and block until ctx is canceled. ctx bounds the session store's initial
// connect/migrate step only; it is not retained.
func New(ctx context.Context, cfg config.Core) (*Core, error) {
	reg, err := newRegistry(cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("core: registry: %w", err)
	}

	store, err := newSessionStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("core: session store: %w", err)
	}

	workers := cfg.EventBus.NumWorkerThreads
	if !cfg.EventBus.UseAsyncDispatch {
		workers = 0
	}
	bus := eventbus.New(eventbus.Config{
		WorkerCount:  workers,
		MaxQueueSize: cfg.EventBus.MaxQueueSize,
	})

	timers := timerwheel.New()

	sink := violation.New(violation.DefaultConfig(), nil)

	var recon *reconnect.Controller
	if cfg.Reconnection.Enabled {
		recon = reconnect.New(reconnectConfig(cfg.Reconnection))
	}

	attestKey := []byte(cfg.SkillEngine.AttestationKey)
	if len(attestKey) == 0 {
		attestKey = []byte("wydcore-dev-attestation-key")
		slog.Warn("core: no skill_engine.attestation_key configured, using an insecure development default")
	}
	engine := skillengine.New(attestKey, violation.SkillEngineSink{Sink: sink})
	loadSkillDefs(engine, reg.Current(), cfg.SkillEngine)

	return &Core{
		Registry:     reg,
		Bus:          bus,
		Timers:       timers,
		Violation:    sink,
		Reconnect:    recon,
		SkillEngine:  engine,
		SessionStore: store,
		cfg:          cfg,
	}, nil
}

// newSessionStore builds the reconnection controller's session
// persistence: Postgres-backed (internal/reconnect.PostgresSessionStore)
// when Database.Enabled is set, falling back to a plain encrypted
// file per session otherwise. Either way the blob is Blowfish-encrypted
// under SessionCipherKey so the store itself never handles plaintext.
func newSessionStore(ctx context.Context, cfg config.Core) (reconnect.SessionStore, error) {
	key := []byte(cfg.Reconnection.SessionCipherKey)
	if len(key) == 0 {
		key = []byte("wydcore-dev-session-key")
		slog.Warn("core: no reconnection.session_cipher_key configured, using an insecure development default")
	}
	cipher, err := reconnect.NewSessionCipher(key)
	if err != nil {
		return nil, fmt.Errorf("building session cipher: %w", err)
	}

	if cfg.Database.Enabled {
		store, err := reconnect.NewPostgresSessionStore(ctx, cfg.Database.DSN(), cipher)
		if err != nil {
			return nil, fmt.Errorf("postgres session store: %w", err)
		}
		return store, nil
	}

	dir := cfg.Reconnection.SessionStoreDir
	if dir == "" {
		dir = "data/sessions"
	}
	store, err := reconnect.NewFileSessionStore(dir, cipher)
	if err != nil {
		return nil, fmt.Errorf("file session store: %w", err)
	}
	return store, nil
}

func newRegistry(cfg config.RegistryConfig) (*registry.Registry, error) {
	switch {
	case cfg.FixtureDir != "":
		return registry.NewFromDir(cfg.FixtureDir)
	case cfg.PakPath != "":
		return registry.NewFromPak(cfg.PakPath)
	default:
		return registry.NewFromSnapshot(&registry.Snapshot{
			Items:  map[int32]*registry.ItemDef{},
			Mobs:   map[int32]*registry.MobDef{},
			Skills: map[int32]*registry.SkillDef{},
			Drops:  map[int32]*registry.DropDef{},
			Events: map[int32]*registry.EventDef{},
			Quests: map[int32]*registry.QuestDef{},
		}), nil
	}
}

func reconnectConfig(c config.ReconnectionConfig) reconnect.Config {
	initialDelay, maxDelay, keepAliveInterval, pingTimeout := c.AsDurations()
	return reconnect.Config{
		Enabled:              c.Enabled,
		MaxAttempts:          c.MaxAttempts,
		InitialDelay:         initialDelay,
		MaxDelay:             maxDelay,
		BackoffMultiplier:    c.BackoffMultiplier,
		RandomizationFactor:  c.RandomizationFactor,
		UseRandomization:     c.UseRandomization,
		KeepAlive:            c.KeepAlive,
		KeepAliveInterval:    keepAliveInterval,
		PingTimeout:          pingTimeout,
		IntelligentReconnect: c.IntelligentReconnect,
	}
}

// loadSkillDefs registers every skill the registry's current snapshot
// carries into the engine, translating the data-only registry.SkillDef
// row into the engine's runtime skillengine.SkillDef and applying the
// process-wide execution-buffer and anomaly-threshold defaults.
func loadSkillDefs(engine *skillengine.Engine, snap *registry.Snapshot, defaults config.SkillEngineConfig) {
	for id, def := range snap.Skills {
		engine.Register(&skillengine.SkillDef{
			ID:                   fmt.Sprintf("%d", id),
			Category:             def.Category,
			Interruptible:        def.Interruptible,
			MinInterruptPriority: def.MinInterruptPriority,
			MaxCharges:           def.MaxCharges,
			ChargeRestoreMs:      time.Duration(def.ChargeRestoreMs) * time.Millisecond,
			PreparationMs:        time.Duration(def.PreparationMs) * time.Millisecond,
			CastMs:               time.Duration(def.CastMs) * time.Millisecond,
			RecoveryMs:           time.Duration(def.RecoveryMs) * time.Millisecond,
			CooldownMs:           time.Duration(def.CooldownMs) * time.Millisecond,
			Variability:          def.Variability,
			ExecutionBufferSize:  defaults.DefaultExecutionBufferSize,
			AnomalyThreshold:     defaults.DefaultAnomalyThreshold,
		})
	}
}

// Run starts the bus scheduler and timer wheel and blocks until ctx is
// canceled or either loop fails, then tears down in reverse lock order
// (reconnection < timers < bus < session store — the skill engine and
// violation sink have no background loop of their own to stop).
func (c *Core) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("core: starting event bus")
		c.Bus.Start(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("core: starting timer wheel")
		c.Timers.Run(gctx)
		return nil
	})

	<-gctx.Done()

	if c.Reconnect != nil {
		c.Reconnect.CancelReconnection()
	}
	c.Timers.Stop()
	c.Bus.Stop()
	if closer, ok := c.SessionStore.(interface{ Close() }); ok {
		closer.Close()
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("core: %w", err)
	}
	return nil
}
