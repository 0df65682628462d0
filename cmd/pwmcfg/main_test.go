package main

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongho-jung/pwmcfg/internal/constants"
	"github.com/dongho-jung/pwmcfg/internal/devserver"
)

// newTestConfig starts a demo server and writes a config file pointing at it.
func newTestConfig(t *testing.T) string {
	t.Helper()
	color.NoColor = true
	t.Setenv(constants.EnvServerURL, "")
	t.Setenv(constants.EnvFormID, "")

	srv, err := devserver.New(devserver.Options{})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("server:\n  url: %s\n  timeout: 5s\nstate_dir: %s\neditor:\n  locale: en\n", ts.URL, filepath.Join(dir, "state"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, filepath.Join(t.TempDir(), "none.yaml"), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pwmcfg "+Version)
}

func TestSetGetReset(t *testing.T) {
	path := newTestConfig(t)

	out, err := run(t, path, "get", "passwordPolicy.minLength", "--json")
	require.NoError(t, err)
	assert.Equal(t, "8\n", out)

	out, err = run(t, path, "set", "passwordPolicy.minLength", "12")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved passwordPolicy.minLength")

	out, err = run(t, path, "get", "passwordPolicy.minLength")
	require.NoError(t, err)
	assert.Contains(t, out, "Minimum Length")
	assert.Contains(t, out, "passwordPolicy.minLength · NUMERIC")
	assert.Contains(t, out, "modified")
	assert.Contains(t, out, "12")

	out, err = run(t, path, "reset", "passwordPolicy.minLength")
	require.NoError(t, err)
	assert.Contains(t, out, "Reset passwordPolicy.minLength")

	out, err = run(t, path, "get", "passwordPolicy.minLength", "--json")
	require.NoError(t, err)
	assert.Equal(t, "8\n", out)
}

func TestSetRejectsInvalidValue(t *testing.T) {
	path := newTestConfig(t)

	_, err := run(t, path, "set", "passwordPolicy.minLength", "many")
	assert.Error(t, err)

	_, err = run(t, path, "set", "no.such.setting", "1")
	assert.Error(t, err)
}

func TestExecCommand(t *testing.T) {
	path := newTestConfig(t)

	out, err := run(t, path, "exec", "passwordPolicy.disallowedValues", "sortValues")
	require.NoError(t, err)
	assert.Contains(t, out, "3 values sorted")

	_, err = run(t, path, "exec", "passwordPolicy.disallowedValues", "sortValues", "{not json")
	assert.Error(t, err)

	_, err = run(t, path, "exec", "passwordPolicy.disallowedValues", "explode")
	assert.Error(t, err)
}

func TestSearchCommand(t *testing.T) {
	path := newTestConfig(t)

	out, err := run(t, path, "search", "minimum")
	require.NoError(t, err)
	assert.Contains(t, out, "Password Policy")
	assert.Contains(t, out, "passwordPolicy.minLength")

	out, err = run(t, path, "search", "zzzzzz")
	require.NoError(t, err)
	assert.Contains(t, out, "No results")
}

func TestTreeCommand(t *testing.T) {
	path := newTestConfig(t)

	out, err := run(t, path, "tree")
	require.NoError(t, err)
	assert.Contains(t, out, "Settings")
	assert.Contains(t, out, "  Password Policy")
	assert.Contains(t, out, "Character Rules")

	out, err = run(t, path, "tree", "--filter", "Character")
	require.NoError(t, err)
	assert.Contains(t, out, "Character Rules")
	assert.NotContains(t, out, "User Interface")

	out, err = run(t, path, "tree", "--level", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Password Policy")
	assert.NotContains(t, out, "Character Rules")

	_, err = run(t, path, "tree", "--level", "7")
	assert.Error(t, err)
}

func TestConfigInitAndShow(t *testing.T) {
	t.Setenv(constants.EnvServerURL, "")
	color.NoColor = true
	path := filepath.Join(t.TempDir(), "pwmcfg", "config.yaml")

	out, err := run(t, path, "config", "init", "--url", "https://pwm.example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)
	assert.FileExists(t, path)

	_, err = run(t, path, "config", "init")
	assert.Error(t, err)

	_, err = run(t, path, "config", "init", "--force", "--url", "ftp://nope")
	assert.Error(t, err)

	out, err = run(t, path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "url: https://pwm.example.com")
	assert.Contains(t, out, "base_path: "+constants.DefaultBasePath)
}

func TestConnectWithoutURLFails(t *testing.T) {
	t.Setenv(constants.EnvServerURL, "")
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	_, err := run(t, filepath.Join(t.TempDir(), "none.yaml"), "get", "passwordPolicy.minLength")
	assert.Error(t, err)
}
