// Package gitgov assembles the engine: stores, key provider, session,
// event bus and the domain adapters, wired from the configuration in the
// workspace's .gitgov directory.
package gitgov

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gitgov-io/gitgov/pkg/agent"
	"github.com/gitgov-io/gitgov/pkg/backlog"
	"github.com/gitgov-io/gitgov/pkg/config"
	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/execution"
	"github.com/gitgov-io/gitgov/pkg/feedback"
	"github.com/gitgov-io/gitgov/pkg/identity"
	"github.com/gitgov-io/gitgov/pkg/metrics"
	"github.com/gitgov-io/gitgov/pkg/observability"
	"github.com/gitgov-io/gitgov/pkg/record"
	"github.com/gitgov-io/gitgov/pkg/session"
	"github.com/gitgov-io/gitgov/pkg/store"
	"github.com/gitgov-io/gitgov/pkg/workflow"
)

// DirName is the record tree directory at the workspace root.
const DirName = ".gitgov"

// KeysDirName holds private keys under the record tree. It must be
// gitignored; only public keys travel in actor records.
const KeysDirName = "keys"

// Engine is the wired engine. Fields are the adapters callers use
// directly; lifecycle goes through Close.
type Engine struct {
	Root   string // the .gitgov directory
	Config *config.Config

	Bus      *eventbus.Bus
	Stores   *store.Stores
	Keys     store.KeyProvider
	Session  session.Manager
	Workflow *workflow.Adapter

	Identity   *identity.Adapter
	Agents     *agent.Adapter
	Feedback   *feedback.Adapter
	Executions *execution.Adapter
	Backlog    *backlog.Adapter
	Metrics    *metrics.Adapter

	obs        *observability.Provider
	watcher    *store.Watcher
	cancelBg   context.CancelFunc
	log        *slog.Logger
	clock      func() time.Time
	withWatch  bool
	tickPeriod time.Duration
}

// Option configures the engine build.
type Option func(*Engine)

// WithObservability installs a telemetry provider; the bus meters hang
// off it.
func WithObservability(p *observability.Provider) Option {
	return func(e *Engine) { e.obs = p }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

// WithWatcher enables the filesystem watcher that republishes external
// record edits onto the bus.
func WithWatcher() Option {
	return func(e *Engine) { e.withWatch = true }
}

// Open wires an engine over the .gitgov directory under workdir. The
// directory must exist; use Init to create one.
func Open(ctx context.Context, workdir string, opts ...Option) (*Engine, error) {
	root := filepath.Join(workdir, DirName)
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	stores, err := store.NewFileStores(root)
	if err != nil {
		return nil, err
	}
	keys, err := keyProviderFor(cfg, root)
	if err != nil {
		return nil, err
	}
	return build(ctx, root, cfg, stores, keys, session.NewFileManager(root), opts...)
}

// NewInMemory wires a fully in-process engine (tests, ephemeral runs).
func NewInMemory(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	return build(ctx, "", cfg, store.NewMemoryStores(), store.NewMemoryKeyProvider(),
		session.NewMemoryManager(), opts...)
}

func keyProviderFor(cfg *config.Config, root string) (store.KeyProvider, error) {
	switch cfg.KeyProvider {
	case "env":
		return store.NewEnvKeyProvider(cfg.EnvKeyPrefix), nil
	default:
		return store.NewFileKeyProvider(filepath.Join(root, KeysDirName))
	}
}

func build(ctx context.Context, root string, cfg *config.Config, stores *store.Stores,
	keys store.KeyProvider, sess session.Manager, opts ...Option) (*Engine, error) {
	e := &Engine{
		Root:    root,
		Config:  cfg,
		Stores:  stores,
		Keys:    keys,
		Session: sess,
		clock:   time.Now,
		log:     slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}

	busOpts := []eventbus.Option{}
	if e.obs != nil {
		busOpts = append(busOpts, eventbus.WithMeter(e.obs.Meter()))
		stores = instrumentStores(stores, e.obs)
		e.Stores = stores
	}
	e.Bus = eventbus.New(busOpts...)

	wf, err := workflow.Create(cfg.Methodology)
	if err != nil {
		return nil, err
	}
	e.Workflow = wf

	e.Identity = identity.New(stores.Actors, keys, sess, e.Bus, identity.WithClock(e.clock))
	e.Agents = agent.New(stores.Agents, e.Identity, keys, e.Bus, agent.WithClock(e.clock))
	e.Feedback = feedback.New(stores.Feedback, e.Identity, e.Bus, feedback.WithClock(e.clock))
	e.Executions = execution.New(stores.Executions, stores.Changelogs, stores.Tasks,
		e.Identity, e.Bus, execution.WithClock(e.clock))
	e.Backlog = backlog.New(stores.Tasks, stores.Cycles, wf, e.Identity, e.Feedback,
		e.Bus, cfg.HealthThresholds, backlog.WithClock(e.clock))
	e.Metrics = metrics.New(stores, cfg.HealthThresholds, metrics.WithClock(e.clock))

	e.Backlog.RegisterHandlers(e.Bus)

	if cfg.TickInterval != "" {
		d, err := time.ParseDuration(cfg.TickInterval)
		if err != nil {
			return nil, record.Wrap(record.CodeInvalidData, err, "parse tickInterval %q", cfg.TickInterval)
		}
		e.tickPeriod = d
	}

	bg, cancel := context.WithCancel(context.Background())
	e.cancelBg = cancel
	if e.withWatch && root != "" {
		w, err := store.NewWatcher(root, e.Bus)
		if err != nil {
			cancel()
			return nil, err
		}
		e.watcher = w
		go w.Run(bg)
	}
	if e.tickPeriod > 0 {
		go e.runTicker(bg)
	}

	e.log.InfoContext(ctx, "engine wired",
		"project", cfg.ProjectName,
		"methodology", wf.Name(),
		"key_provider", cfg.KeyProvider,
		"watcher", e.watcher != nil,
	)
	return e, nil
}

// Init creates the .gitgov tree under workdir, saves cfg and bootstraps
// the first actor, which becomes the session's acting actor.
func Init(ctx context.Context, workdir string, cfg *config.Config, first record.ActorDraft, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	root := filepath.Join(workdir, DirName)
	if _, err := store.NewFileStores(root); err != nil {
		return nil, err
	}
	if err := cfg.Save(root); err != nil {
		return nil, err
	}
	e, err := Open(ctx, workdir, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := e.Identity.CreateActor(ctx, first); err != nil {
		_ = e.Close(ctx)
		return nil, err
	}
	return e, nil
}

// Tick publishes one daily-tick event, driving the staleness sweep. The
// background ticker calls this; ops tooling can call it directly.
func (e *Engine) Tick() {
	e.Bus.Publish(eventbus.NewEvent(eventbus.TypeDailyTick, "engine", nil))
}

func (e *Engine) runTicker(ctx context.Context) {
	t := time.NewTicker(e.tickPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.Tick()
		}
	}
}

// WaitForIdle blocks until every published event has been handled.
func (e *Engine) WaitForIdle(ctx context.Context) error {
	return e.Bus.WaitForIdle(ctx)
}

// Close stops background work and drains the bus.
func (e *Engine) Close(ctx context.Context) error {
	if e.cancelBg != nil {
		e.cancelBg()
	}
	if e.watcher != nil {
		_ = e.watcher.Close()
	}
	err := e.Bus.WaitForIdle(ctx)
	e.Bus.ClearSubscriptions()
	if e.obs != nil {
		if serr := e.obs.Shutdown(ctx); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}
