// Package app provides the main application context and dependency injection.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dongho-jung/pwmcfg/internal/cache"
	"github.com/dongho-jung/pwmcfg/internal/config"
	"github.com/dongho-jung/pwmcfg/internal/constants"
	"github.com/dongho-jung/pwmcfg/internal/editor"
	"github.com/dongho-jung/pwmcfg/internal/i18n"
	"github.com/dongho-jung/pwmcfg/internal/logging"
	"github.com/dongho-jung/pwmcfg/internal/nav"
	"github.com/dongho-jung/pwmcfg/internal/prefs"
	"github.com/dongho-jung/pwmcfg/internal/search"
	"github.com/dongho-jung/pwmcfg/internal/service"
	"github.com/dongho-jung/pwmcfg/internal/setting"
	"github.com/dongho-jung/pwmcfg/internal/transport"
)

// ErrNotConnected is returned by operations that need a server connection
// before Connect was called.
var ErrNotConnected = errors.New("not connected to a server")

// App represents the main application context with all dependencies.
type App struct {
	// Paths
	ConfigPath string // config file location (may not exist)

	// State
	Config *config.Config

	// Connection
	Client   *transport.Client
	Session  *service.Session
	Searcher *search.Searcher
	Tree     *nav.Tree

	// Local
	Prefs      *prefs.Store
	Translator *i18n.Translator

	// Runtime
	Debug bool // Debug mode enabled
}

// New creates a new App from the config file at configPath. A .env file next
// to the config file is loaded first so that ${VAR} references resolve.
func New(configPath string) (*App, error) {
	if err := config.LoadDotEnv(filepath.Dir(configPath)); err != nil {
		logging.Warn("config: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	a := NewWithConfig(cfg)
	a.ConfigPath = configPath
	return a, nil
}

// NewWithConfig creates an App around an already loaded configuration.
func NewWithConfig(cfg *config.Config) *App {
	for _, warning := range cfg.Normalize() {
		logging.Warn("config: %s", warning)
	}
	a := &App{
		Config: cfg,
		Debug:  cfg.Debug(),
	}
	a.setLanguage(cfg.Editor.Locale)
	return a
}

func (a *App) setLanguage(lang string) {
	t, err := i18n.New(lang)
	if err != nil {
		logging.Warn("i18n: %v, using English", err)
		t, _ = i18n.New(constants.DefaultLocale)
	}
	a.Translator = t
	i18n.SetLanguage(t.Lang())
}

// StateDir returns the directory holding the log file and preferences:
// state_dir from the config, else $XDG_STATE_HOME/pwmcfg (or ~/.local/state/pwmcfg).
func (a *App) StateDir() string {
	if a.Config.StateDir != "" {
		return a.Config.StateDir
	}
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), constants.StateDirName)
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, constants.StateDirName)
}

// Initialize creates the state directory.
func (a *App) Initialize() error {
	if err := os.MkdirAll(a.StateDir(), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", a.StateDir(), err)
	}
	return nil
}

// GetLogPath returns the path to the log file.
func (a *App) GetLogPath() string {
	if a.Config.Log.File != "" {
		return a.Config.Log.File
	}
	return filepath.Join(a.StateDir(), constants.LogFileName)
}

// GetPrefsPath returns the path to the preference database.
func (a *App) GetPrefsPath() string {
	return filepath.Join(a.StateDir(), constants.PrefsFileName)
}

// OpenPrefs opens the preference store and drops the previous run's
// session-scoped values.
func (a *App) OpenPrefs(ctx context.Context) error {
	store, err := prefs.Open(a.GetPrefsPath())
	if err != nil {
		return err
	}
	if err := store.ClearSession(ctx); err != nil {
		_ = store.Close()
		return err
	}
	a.Prefs = store
	return nil
}

// Connect creates the protocol client and session for the configured server.
// It does not contact the server.
func (a *App) Connect() error {
	if err := a.Config.Validate(); err != nil {
		return err
	}
	client, err := transport.New(transport.Options{
		BaseURL:         a.Config.Server.URL,
		BasePath:        a.Config.Server.BasePath,
		Timeout:         a.Config.Server.Timeout,
		FormID:          a.Config.Server.FormID,
		FatalErrorCodes: a.Config.Server.FatalErrorCodes,
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	client.OnError(func(e *transport.Error) {
		if e.Fatal() {
			logging.Warn("fatal server error: %v", e)
		}
	})
	a.Client = client
	a.Session = service.NewSession(client, cache.New())
	a.Searcher = search.NewSearcher(client)
	a.Session.SetFilter(a.initialFilter(context.Background()))
	logging.Info("Connect: %s", a.Config.EndpointURL())
	return nil
}

// initialFilter reads the filter from preferences, falling back to config.
func (a *App) initialFilter(ctx context.Context) service.Filter {
	f := service.Filter{
		ModifiedOnly: a.Config.Editor.ModifiedOnly,
		MaxLevel:     a.Config.Editor.MaxLevel,
	}
	if a.Prefs == nil {
		return f
	}
	f.ModifiedOnly = a.Prefs.GetBool(ctx, prefs.Local, constants.PrefModifiedOnly, f.ModifiedOnly)
	level := a.Prefs.GetInt(ctx, prefs.Local, constants.PrefMaxLevel, f.MaxLevel)
	if level >= constants.MinLevel && level <= constants.MaxLevel {
		f.MaxLevel = level
	}
	return f
}

// Bootstrap loads the catalog and the navigation tree.
func (a *App) Bootstrap(ctx context.Context) error {
	t, err := a.LoadAll(ctx)
	if err != nil {
		return err
	}
	a.Tree = t
	return nil
}

// LoadAll loads the catalog and returns a fresh navigation tree without
// installing it. Callers running off the UI goroutine hand the tree back to
// their owner, which assigns a.Tree.
func (a *App) LoadAll(ctx context.Context) (*nav.Tree, error) {
	logging.Debug("-> App.LoadAll")
	defer logging.Debug("<- App.LoadAll")

	if a.Session == nil {
		return nil, ErrNotConnected
	}
	if a.Prefs != nil {
		if lang := a.Prefs.GetString(ctx, prefs.Local, constants.PrefLocale, ""); lang != "" && lang != a.Translator.Lang() {
			a.setLanguage(lang)
		}
	}

	timer := logging.StartTimer("bootstrap")
	catalog, err := a.Session.LoadCatalog(ctx)
	if err != nil {
		timer.StopWithResult(false, err.Error())
		return nil, err
	}
	t, err := a.LoadTree(ctx)
	if err != nil {
		timer.StopWithResult(false, err.Error())
		return nil, err
	}
	timer.StopWithResult(true, fmt.Sprintf("%d settings, %d nodes", catalog.Len(), t.Len()))
	return t, nil
}

// Reload discards every cached value and bootstraps again. It is the
// recovery path after fatal errors and reload-required writes.
func (a *App) Reload(ctx context.Context) error {
	t, err := a.Resync(ctx)
	if err != nil {
		return err
	}
	a.Tree = t
	return nil
}

// Resync is Reload without installing the tree.
func (a *App) Resync(ctx context.Context) (*nav.Tree, error) {
	if a.Session == nil {
		return nil, ErrNotConnected
	}
	logging.Info("Reload: clearing %d cached values", a.Session.Cache().Len())
	a.Session.Cache().Clear()
	return a.LoadAll(ctx)
}

// RefreshTree rebuilds the navigation tree for the current filter.
func (a *App) RefreshTree(ctx context.Context) error {
	t, err := a.LoadTree(ctx)
	if err != nil {
		return err
	}
	a.Tree = t
	return nil
}

// LoadTree fetches the navigation list for the current filter and builds a
// tree. a.Tree is left untouched.
func (a *App) LoadTree(ctx context.Context) (*nav.Tree, error) {
	if a.Session == nil {
		return nil, ErrNotConnected
	}
	nodes, err := a.Session.LoadNavigation(ctx)
	if err != nil {
		return nil, err
	}
	return nav.Build(nodes), nil
}

// SetFilter changes the visibility filter, persists it and rebuilds the tree.
func (a *App) SetFilter(ctx context.Context, f service.Filter) error {
	t, err := a.ApplyFilter(ctx, f)
	if err != nil {
		return err
	}
	a.Tree = t
	return nil
}

// ApplyFilter is SetFilter without installing the tree.
func (a *App) ApplyFilter(ctx context.Context, f service.Filter) (*nav.Tree, error) {
	if a.Session == nil {
		return nil, ErrNotConnected
	}
	a.Session.SetFilter(f)
	if a.Prefs != nil {
		if err := a.Prefs.SetBool(ctx, prefs.Local, constants.PrefModifiedOnly, f.ModifiedOnly); err != nil {
			logging.Warn("SetFilter: %v", err)
		}
		if err := a.Prefs.SetInt(ctx, prefs.Local, constants.PrefMaxLevel, f.MaxLevel); err != nil {
			logging.Warn("SetFilter: %v", err)
		}
	}
	return a.LoadTree(ctx)
}

// Editor creates the editor for a setting key.
func (a *App) Editor(key string) (editor.Editor, error) {
	if a.Session == nil {
		return nil, ErrNotConnected
	}
	d, err := a.Session.Descriptor(key)
	if err != nil {
		return nil, err
	}
	return editor.New(a.Session, d)
}

// Settings returns the visible descriptors of a category ordered by label.
func (a *App) Settings(category string) []setting.Descriptor {
	if a.Session == nil {
		return nil
	}
	c := a.Session.Catalog()
	if c == nil {
		return nil
	}
	return c.SettingsInCategory(category)
}

// Close releases local resources.
func (a *App) Close() error {
	if a.Prefs != nil {
		return a.Prefs.Close()
	}
	return nil
}
