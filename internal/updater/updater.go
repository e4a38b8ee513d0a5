// Package updater wires the configured components together and exposes the
// operations shared by the CLI and the HTTP API.
package updater

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/backup"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/cache"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/changelog"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/config"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/engine"
	appErrors "github.com/abhishekdudeja804/floorspace-theme-updater/internal/errors"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/metrics"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/notify"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/remote"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/store"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/version"
)

// StateLastCheck is the state key holding the Unix time of the last check.
const StateLastCheck = "last_check"

// ReminderInterval is how old the last check may get before status
// suggests running one.
const ReminderInterval = 24 * time.Hour

// Updater owns the store and every component built on top of it.
type Updater struct {
	cfg       *config.Config
	store     *store.Store
	cache     *cache.StoreCache
	versions  *version.Resolver
	changelog *changelog.Service
	backups   *backup.Store
	engine    *engine.Engine
	fetcher   remote.Fetcher
	metrics   *metrics.Metrics
	notifier  *notify.Notifier
	clock     cache.Clock
	logger    *zap.Logger
}

type options struct {
	fetcher remote.Fetcher
	clock   cache.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures New.
type Option func(*options)

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f remote.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithClock replaces the system clock.
func WithClock(c cache.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics shares a Metrics instance, e.g. with the HTTP server.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New opens the store in cfg.DataDir and builds the components. The
// operation engine is only built when an installation root is configured.
func New(cfg *config.Config, opts ...Option) (*Updater, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.clock == nil {
		o.clock = cache.SystemClock{}
	}
	if o.fetcher == nil {
		o.fetcher = remote.NewHTTPFetcher(
			remote.WithToken(cfg.Token),
			remote.WithUserAgent(cfg.UserAgent),
		)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	u := &Updater{
		cfg:     cfg,
		store:   st,
		cache:   cache.NewStoreCache(st, o.clock),
		fetcher: o.fetcher,
		metrics: o.metrics,
		clock:   o.clock,
		logger:  o.logger,
	}

	if n, err := u.cache.Purge(); err != nil {
		u.logger.Warn("failed to purge expired cache entries", zap.Error(err))
	} else if n > 0 {
		u.logger.Debug("purged expired cache entries", zap.Int64("count", n))
	}

	u.versions = version.NewResolver(o.fetcher, cfg.HeaderURL(),
		version.WithCache(u.cache),
		version.WithClock(o.clock),
		version.WithTTL(cfg.CacheTTL),
		version.WithManifestURL(cfg.ManifestURL()),
		version.WithHeaderFile(cfg.HeaderFile),
		version.WithLogger(o.logger.Named("version")),
	)
	u.changelog = changelog.NewService(o.fetcher, cfg.ChangelogURL(),
		changelog.WithCache(u.cache),
		changelog.WithTTL(cfg.CacheTTL),
		changelog.WithComponents(u.versions),
		changelog.WithLogger(o.logger.Named("changelog")),
	)
	u.backups = backup.New(cfg.BackupDir,
		backup.WithComponent(cfg.Component),
		backup.WithClock(o.clock.Now),
		backup.WithLogger(o.logger.Named("backup")),
	)

	observers := []engine.Observer{u.metrics}
	if cfg.NATSURL != "" {
		n, err := notify.Connect(cfg.NATSURL, cfg.NATSSubject, o.logger.Named("notify"))
		if err != nil {
			// Notifications are optional; operations still run.
			u.logger.Warn("event notifications disabled", zap.Error(err))
		} else {
			u.notifier = n
			observers = append(observers, n)
		}
	}

	if cfg.InstallRoot != "" {
		policy, err := engine.ParseBackupPolicy(cfg.OnBackupFailure)
		if err != nil {
			u.Close()
			return nil, appErrors.New(appErrors.CodeValidation, err.Error(), nil)
		}
		engineOpts := []engine.Option{
			engine.WithHistory(st),
			engine.WithObservers(observers...),
			engine.WithBackupPolicy(policy),
			engine.WithClock(o.clock.Now),
			engine.WithLogger(o.logger.Named("engine")),
		}
		if cfg.CacheResetCommand != "" {
			engineOpts = append(engineOpts, engine.WithInvalidator(engine.CommandInvalidator{Command: cfg.CacheResetCommand}))
		}
		u.engine = engine.New(
			engine.Installation{Root: cfg.InstallRoot},
			engine.Source{ArchiveURL: cfg.ArchiveURL(), ComponentPath: cfg.ComponentPath},
			u.backups, u.versions, o.fetcher,
			engine.NewLocker(cfg.LockDir()),
			engineOpts...,
		)
	}

	u.refreshBackupMetric()
	return u, nil
}

// Close releases the store and the notifier connection.
func (u *Updater) Close() error {
	if u.notifier != nil {
		u.notifier.Close()
	}
	return u.store.Close()
}

// Config returns the configuration the Updater was built from.
func (u *Updater) Config() *config.Config { return u.cfg }

// Store returns the history and cache store.
func (u *Updater) Store() *store.Store { return u.store }

// Backups returns the backup store.
func (u *Updater) Backups() *backup.Store { return u.backups }

// Versions returns the version resolver.
func (u *Updater) Versions() *version.Resolver { return u.versions }

// Changelog returns the changelog service.
func (u *Updater) Changelog() *changelog.Service { return u.changelog }

// Metrics returns the metrics collectors.
func (u *Updater) Metrics() *metrics.Metrics { return u.metrics }

// Logger returns the shared logger.
func (u *Updater) Logger() *zap.Logger { return u.logger }

// Engine returns the operation engine, or a validation error when no
// installation root is configured.
func (u *Updater) Engine() (*engine.Engine, error) {
	if u.engine == nil {
		return nil, u.cfg.RequireInstallRoot()
	}
	return u.engine, nil
}

// Locked reports whether an operation currently holds the installation lock.
func (u *Updater) Locked() bool {
	return u.engine != nil && u.engine.Locked()
}

// Check compares the installation against the repository and records the
// time of the check.
func (u *Updater) Check(ctx context.Context) (version.Status, error) {
	if err := u.cfg.RequireInstallRoot(); err != nil {
		return version.Status{}, err
	}
	st := u.versions.Check(ctx, u.cfg.InstallRoot)

	now := u.clock.Now()
	if err := u.store.SetState(StateLastCheck, strconv.FormatInt(now.Unix(), 10)); err != nil {
		u.logger.Warn("failed to record check time", zap.Error(err))
	}
	u.metrics.SetUpdateAvailable(st.UpdateAvailable)
	return st, nil
}

// Ping fetches the remote header file, bypassing the cache.
func (u *Updater) Ping(ctx context.Context) error {
	_, err := u.fetcher.Get(ctx, u.cfg.HeaderURL())
	return err
}

// LastCheck returns when Check last ran.
func (u *Updater) LastCheck() (time.Time, bool) {
	value, ok, err := u.store.GetState(StateLastCheck)
	if err != nil || !ok {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}

// CheckOverdue reports whether no check has run within ReminderInterval.
func (u *Updater) CheckOverdue() bool {
	last, ok := u.LastCheck()
	return !ok || u.clock.Now().Sub(last) > ReminderInterval
}

// Status is the local view of the installation. It never touches the
// network; Latest comes from the last cached remote lookup.
type Status struct {
	InstallRoot     string            `json:"install_root"`
	Repo            string            `json:"repo"`
	Branch          string            `json:"branch"`
	Current         string            `json:"current"`
	Latest          string            `json:"latest,omitempty"`
	UpdateAvailable bool              `json:"update_available"`
	Components      map[string]string `json:"components,omitempty"`
	Backup          *backup.Backup    `json:"backup,omitempty"`
	SafetyCopies    int               `json:"safety_copies"`
	LastCheck       *time.Time        `json:"last_check,omitempty"`
	CheckOverdue    bool              `json:"check_overdue"`
	Busy            bool              `json:"busy"`
}

// Status collects the local view of the installation.
func (u *Updater) Status() (*Status, error) {
	if err := u.cfg.RequireInstallRoot(); err != nil {
		return nil, err
	}

	s := &Status{
		InstallRoot:  u.cfg.InstallRoot,
		Repo:         u.cfg.Repo,
		Branch:       u.cfg.Branch,
		Current:      u.versions.Current(u.cfg.InstallRoot),
		CheckOverdue: u.CheckOverdue(),
		Busy:         u.Locked(),
	}
	if info, ok := u.versions.Cached(); ok {
		s.Latest = info.Latest
		s.Components = info.Components
		s.UpdateAvailable = version.NeedsUpdate(s.Current, s.Latest)
	}
	if b, ok := u.backups.Latest(); ok {
		s.Backup = b
	}
	copies, err := u.backups.ListSafetyCopies()
	if err != nil {
		return nil, fmt.Errorf("failed to list safety copies: %w", err)
	}
	s.SafetyCopies = len(copies)
	if last, ok := u.LastCheck(); ok {
		s.LastCheck = &last
	}
	return s, nil
}

// Update runs an update of the installation.
func (u *Updater) Update(ctx context.Context) engine.Result {
	return u.runEngine(ctx, (*engine.Engine).Update)
}

// Revert restores the installation from the backup slot.
func (u *Updater) Revert(ctx context.Context) engine.Result {
	return u.runEngine(ctx, (*engine.Engine).Revert)
}

// Backup replaces the backup slot with the current installation.
func (u *Updater) Backup(ctx context.Context) engine.Result {
	return u.runEngine(ctx, (*engine.Engine).Backup)
}

// DeleteBackup removes the backup slot.
func (u *Updater) DeleteBackup(ctx context.Context) engine.Result {
	return u.runEngine(ctx, (*engine.Engine).DeleteBackup)
}

func (u *Updater) runEngine(ctx context.Context, op func(*engine.Engine, context.Context) engine.Result) engine.Result {
	eng, err := u.Engine()
	if err != nil {
		return engine.Result{Code: appErrors.CodeOf(err), Message: err.Error()}
	}
	res := op(eng, ctx)
	u.refreshBackupMetric()
	return res
}

// Notify publishes op as an event when notifications are enabled. Engine
// operations are published automatically; this is for operations recorded
// elsewhere, such as drift.
func (u *Updater) Notify(op *store.Operation) {
	if u.notifier != nil {
		u.notifier.Observe(context.Background(), op)
	}
}

// History returns recorded operations, newest first.
func (u *Updater) History(limit int) ([]*store.Operation, error) {
	return u.store.ListOperations(limit)
}

func (u *Updater) refreshBackupMetric() {
	if b, ok := u.backups.Latest(); ok {
		u.metrics.SetBackupSize(b.Size)
		return
	}
	u.metrics.SetBackupSize(0)
}
