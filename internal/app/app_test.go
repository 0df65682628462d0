package app

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongho-jung/pwmcfg/internal/config"
	"github.com/dongho-jung/pwmcfg/internal/constants"
	"github.com/dongho-jung/pwmcfg/internal/devserver"
	"github.com/dongho-jung/pwmcfg/internal/editor"
	"github.com/dongho-jung/pwmcfg/internal/prefs"
	"github.com/dongho-jung/pwmcfg/internal/service"
)

func newTestApp(t *testing.T) (*App, *devserver.Server) {
	t.Helper()
	srv, err := devserver.New(devserver.Options{})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := config.DefaultConfig()
	cfg.Server.URL = ts.URL
	cfg.StateDir = t.TempDir()

	a := NewWithConfig(cfg)
	t.Cleanup(func() { _ = a.Close() })
	return a, srv
}

func TestNew_MissingConfigUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	a, err := New(filepath.Join(dir, constants.ConfigFileName))
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultBasePath, a.Config.Server.BasePath)
	assert.Equal(t, constants.DefaultMaxLevel, a.Config.Editor.MaxLevel)
	assert.NotNil(t, a.Translator)
}

func TestNew_DotEnvNextToConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PWMCFG_TEST_URL", "")
	require.NoError(t, os.Unsetenv("PWMCFG_TEST_URL"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, constants.EnvFileName),
		[]byte("PWMCFG_TEST_URL=https://pwm.example.com\n"), 0644))
	cfgPath := filepath.Join(dir, constants.ConfigFileName)
	require.NoError(t, os.WriteFile(cfgPath, []byte("server:\n  url: ${PWMCFG_TEST_URL}\n"), 0644))

	a, err := New(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "https://pwm.example.com", a.Config.Server.URL)
}

func TestPaths(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.StateDir = "/var/lib/pwmcfg"
	a := NewWithConfig(cfg)

	assert.Equal(t, "/var/lib/pwmcfg", a.StateDir())
	assert.Equal(t, filepath.Join("/var/lib/pwmcfg", constants.LogFileName), a.GetLogPath())
	assert.Equal(t, filepath.Join("/var/lib/pwmcfg", constants.PrefsFileName), a.GetPrefsPath())

	cfg.Log.File = "/tmp/custom.log"
	assert.Equal(t, "/tmp/custom.log", a.GetLogPath())
}

func TestStateDir_XDG(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/xdg/state")
	a := NewWithConfig(config.DefaultConfig())
	assert.Equal(t, filepath.Join("/xdg/state", constants.StateDirName), a.StateDir())
}

func TestInitialize(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.StateDir = filepath.Join(t.TempDir(), "nested", "state")
	a := NewWithConfig(cfg)

	require.NoError(t, a.Initialize())
	info, err := os.Stat(cfg.StateDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestConnect_RequiresURL(t *testing.T) {
	a := NewWithConfig(config.DefaultConfig())
	assert.Error(t, a.Connect())
	assert.ErrorIs(t, a.Bootstrap(context.Background()), ErrNotConnected)
	_, err := a.Editor("any")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	a, srv := newTestApp(t)
	require.NoError(t, a.Connect())
	require.NoError(t, a.Bootstrap(ctx))

	assert.Equal(t, srv.FormID(), a.Client.FormID())
	require.NotNil(t, a.Tree)
	assert.Positive(t, a.Tree.Len())
	assert.NotEmpty(t, a.Settings("policy"))

	e, err := a.Editor("passwordPolicy.minLength")
	require.NoError(t, err)
	require.NoError(t, e.Load(ctx))
	assert.Equal(t, int64(8), e.(*editor.NumericEditor).Value())
}

func TestReloadClearsCache(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)
	require.NoError(t, a.Connect())
	require.NoError(t, a.Bootstrap(ctx))

	_, err := a.Session.Read(ctx, "passwordPolicy.minLength")
	require.NoError(t, err)
	require.Equal(t, 1, a.Session.Cache().Len())

	require.NoError(t, a.Reload(ctx))
	assert.Equal(t, 0, a.Session.Cache().Len())
	assert.NotNil(t, a.Session.Catalog())
}

func TestReloadRecoversFromRotatedFormID(t *testing.T) {
	ctx := context.Background()
	a, srv := newTestApp(t)
	require.NoError(t, a.Connect())
	require.NoError(t, a.Bootstrap(ctx))

	srv.RotateFormID()
	_, err := a.Session.Read(ctx, "passwordPolicy.minLength")
	require.Error(t, err)

	require.NoError(t, a.Reload(ctx))
	_, err = a.Session.Read(ctx, "passwordPolicy.minLength")
	assert.NoError(t, err)
}

func TestFilterPersistsInPrefs(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)
	require.NoError(t, a.OpenPrefs(ctx))
	require.NoError(t, a.Connect())
	require.NoError(t, a.Bootstrap(ctx))

	require.NoError(t, a.SetFilter(ctx, service.Filter{ModifiedOnly: true, MaxLevel: 1}))
	assert.True(t, a.Prefs.GetBool(ctx, prefs.Local, constants.PrefModifiedOnly, false))
	assert.Equal(t, 1, a.Prefs.GetInt(ctx, prefs.Local, constants.PrefMaxLevel, 2))

	// A second connection picks the filter up again.
	require.NoError(t, a.Connect())
	assert.Equal(t, service.Filter{ModifiedOnly: true, MaxLevel: 1}, a.Session.Filter())
}

func TestOpenPrefsClearsSessionScope(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)
	require.NoError(t, a.OpenPrefs(ctx))
	require.NoError(t, a.Prefs.SetString(ctx, prefs.Session, constants.PrefLastSelected, "policy"))
	require.NoError(t, a.Prefs.SetString(ctx, prefs.Local, constants.PrefLocale, "de"))
	require.NoError(t, a.Close())

	require.NoError(t, a.OpenPrefs(ctx))
	assert.Equal(t, "", a.Prefs.GetString(ctx, prefs.Session, constants.PrefLastSelected, ""))
	assert.Equal(t, "de", a.Prefs.GetString(ctx, prefs.Local, constants.PrefLocale, ""))
}

func TestBootstrapAppliesStoredLocale(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)
	require.NoError(t, a.OpenPrefs(ctx))
	require.NoError(t, a.Prefs.SetString(ctx, prefs.Local, constants.PrefLocale, "de"))
	require.NoError(t, a.Connect())
	require.NoError(t, a.Bootstrap(ctx))

	assert.Equal(t, "de", a.Translator.Lang())
}
