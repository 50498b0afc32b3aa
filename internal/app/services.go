package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	gosync "sync"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/nhle/frontdesk-notify/internal/connection"
	"github.com/nhle/frontdesk-notify/internal/credential"
	"github.com/nhle/frontdesk-notify/internal/display"
	"github.com/nhle/frontdesk-notify/internal/events"
	"github.com/nhle/frontdesk-notify/internal/model"
	"github.com/nhle/frontdesk-notify/internal/notify"
	"github.com/nhle/frontdesk-notify/internal/prefs"
	"github.com/nhle/frontdesk-notify/internal/sound"
	"github.com/nhle/frontdesk-notify/internal/store"
	appsync "github.com/nhle/frontdesk-notify/internal/sync"
)

// Options configures the service graph. Only Config is required; the
// other fields replace production collaborators, mostly in tests.
type Options struct {
	Config *model.AppConfig

	// Headless treats the autoplay gate as pre-unlocked.
	Headless bool

	Logger  *logrus.Logger
	Clock   clock.Clock
	Store   store.Store
	Dialer  connection.Dialer
	Token   connection.TokenFunc
	Primary sound.Pipeline
	Backup  sound.Pipeline
	Desktop notify.DesktopNotifier

	// Secret looks up keyring entries such as mailbox passwords.
	Secret func(key string) (string, error)
}

// Services is the explicit-lifetime object graph of the console. Each
// service exists exactly once per Services value.
type Services struct {
	Config *model.AppConfig
	Logger *logrus.Logger

	Store      store.Store
	Prefs      *prefs.Preferences
	Bus        *events.Bus
	Sound      *sound.Engine
	Display    *display.Queue
	Dispatcher *notify.Dispatcher
	Connection *connection.Manager
	Poller     *appsync.Poller

	headless  bool
	closeOnce gosync.Once
}

// Root constructs the service graph on first use and hands out the same
// instance afterwards.
type Root struct {
	opts Options

	mu       gosync.Mutex
	services *Services
}

// NewRoot returns a root that will build services from opts.
func NewRoot(opts Options) *Root {
	return &Root{opts: opts}
}

// Services returns the service graph, constructing it on the first call.
// A failed construction is retried on the next call.
func (r *Root) Services(ctx context.Context) (*Services, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.services != nil {
		return r.services, nil
	}
	s, err := newServices(ctx, r.opts)
	if err != nil {
		return nil, err
	}
	r.services = s
	return s, nil
}

// Close releases the service graph if it was constructed.
func (r *Root) Close() {
	r.mu.Lock()
	s := r.services
	r.mu.Unlock()

	if s != nil {
		s.Close()
	}
}

func newServices(ctx context.Context, opts Options) (*Services, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Secret == nil {
		opts.Secret = credential.Lookup
	}
	if opts.Token == nil {
		opts.Token = func() (string, error) { return opts.Secret(credential.KeyAPIToken) }
	}
	if opts.Primary == nil && opts.Backup == nil {
		opts.Primary = sound.NewCommandPipeline(cfg.Sound.Player, cfg.Sound.ClipPath)
		opts.Backup = sound.NewBeepPipeline()
	}
	if opts.Desktop == nil {
		opts.Desktop = notify.BeeepNotifier{}
	}

	st := opts.Store
	if st == nil {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		sqlite, err := store.NewSQLiteStore(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		st = sqlite
	}

	log := logrus.NewEntry(opts.Logger)
	bus := events.NewBus()
	p := prefs.New(prefs.NewStoreRepository(st))

	engine := sound.NewEngine(ctx, sound.Options{
		Throttle:           cfg.Sound.Throttle,
		SettleDelay:        cfg.Sound.SettleDelay,
		PromptDelay:        cfg.Sound.PromptDelay,
		AutoplayRestricted: cfg.Sound.AutoplayRestricted && !opts.Headless,
		Clock:              opts.Clock,
		Logger:             log,
		Bus:                bus,
	}, p, opts.Primary, opts.Backup)

	queue := display.NewQueue(cfg.Display.MaxVisible, opts.Clock, bus, log)

	dispatcher := notify.NewDispatcher(notify.Options{
		Display:        queue,
		Sound:          engine,
		History:        st,
		Desktop:        opts.Desktop,
		Visible:        func() bool { return engine.AudioState().Visible },
		HistoryLimit:   cfg.Notifications.HistoryLimit,
		DesktopEnabled: cfg.Notifications.Desktop && !opts.Headless,
		Clock:          opts.Clock,
		Logger:         log,
		Bus:            bus,
	})

	conn := connection.NewManager(connection.Options{
		URL:                cfg.Server.URL,
		JoinEvent:          cfg.Server.JoinEvent,
		NotificationEvents: cfg.Server.NotificationEvents,
		MaxAttempts:        cfg.Reconnect.MaxAttempts,
		InitialDelay:       cfg.Reconnect.InitialDelay,
		MaxDelay:           cfg.Reconnect.MaxDelay,
		Dialer:             opts.Dialer,
		Token:              opts.Token,
		Clock:              opts.Clock,
		Logger:             log,
		Bus:                bus,
	}, p, dispatcher.HandleEvent)

	poller := appsync.New(dispatcher, p, appsync.Options{
		Clock:  opts.Clock,
		Logger: log,
		Bus:    bus,
	})
	registerSources(poller, cfg.Sources, opts.Secret, log)

	return &Services{
		Config:     cfg,
		Logger:     opts.Logger,
		Store:      st,
		Prefs:      p,
		Bus:        bus,
		Sound:      engine,
		Display:    queue,
		Dispatcher: dispatcher,
		Connection: conn,
		Poller:     poller,
		headless:   opts.Headless,
	}, nil
}

// Start brings the console online: the prompt scheduler, the realtime
// connection and the mailbox poller.
func (s *Services) Start(ctx context.Context) error {
	s.Sound.Start()
	if s.headless {
		if err := s.Sound.Unlock(false); err != nil {
			s.Logger.WithError(err).Warn("priming audio in headless mode")
		}
	}
	if err := s.Connection.Connect(ctx); err != nil {
		return fmt.Errorf("starting connection: %w", err)
	}
	s.Poller.Start(ctx)
	return nil
}

// Close shuts every service down in reverse dependency order. It is safe
// to call more than once.
func (s *Services) Close() {
	s.closeOnce.Do(func() {
		s.Poller.Stop()
		s.Connection.Disconnect()
		s.Sound.Close()
		s.Bus.Close()
		if err := s.Store.Close(); err != nil {
			s.Logger.WithError(err).Warn("closing store")
		}
	})
}
