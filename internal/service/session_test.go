package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongho-jung/pwmcfg/internal/cache"
	"github.com/dongho-jung/pwmcfg/internal/setting"
	"github.com/dongho-jung/pwmcfg/internal/transport"
)

// fakeDoer answers requests through a per-action handler and records them.
type fakeDoer struct {
	mu       sync.Mutex
	requests []transport.Request
	handlers map[string]func(transport.Request) (*transport.Response, error)
	formID   string
}

func newFakeDoer() *fakeDoer {
	return &fakeDoer{handlers: make(map[string]func(transport.Request) (*transport.Response, error))}
}

func (f *fakeDoer) Do(_ context.Context, r transport.Request) (*transport.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, r)
	h := f.handlers[r.Action]
	f.mu.Unlock()
	if h == nil {
		return &transport.Response{}, nil
	}
	return h(r)
}

func (f *fakeDoer) SetFormID(id string) {
	f.formID = id
}

func (f *fakeDoer) last() transport.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func data(t *testing.T, v any) *transport.Response {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return &transport.Response{Data: raw}
}

func testCatalog() *setting.Catalog {
	return setting.NewCatalog(setting.CatalogData{
		Settings: map[string]setting.Descriptor{
			"passwordPolicy.minLength": {Syntax: setting.SyntaxNumeric, Category: "policy", Level: 0},
			"ldap.serverUrls":          {Syntax: setting.SyntaxStringArray, Category: "ldap", Level: 1},
			"ldap.advanced":            {Syntax: setting.SyntaxString, Category: "ldap", Level: 2},
			"ldap.profiles":            {Syntax: setting.SyntaxProfile, Category: "ldap", Level: 2},
			"mail.restart":             {Syntax: setting.SyntaxBoolean, Category: "policy", Flags: []string{setting.FlagReloadEditorOnModify}},
			"ldap.password":            {Syntax: setting.SyntaxPassword, Category: "ldap"},
		},
		Categories: map[string]setting.Category{
			"policy": {Label: "Policy"},
			"ldap":   {Label: "LDAP", Profiled: true},
		},
	})
}

func newTestSession(d *fakeDoer) *Session {
	s := NewSession(d, cache.New())
	s.SetCatalog(testCatalog())
	return s
}

func TestReadCachesValue(t *testing.T) {
	ctx := context.Background()
	d := newFakeDoer()
	d.handlers["readSetting"] = func(transport.Request) (*transport.Response, error) {
		return data(t, map[string]any{"value": 8, "isDefault": true, "modifyUser": "admin"}), nil
	}
	s := newTestSession(d)

	r, err := s.Read(ctx, "passwordPolicy.minLength")
	require.NoError(t, err)
	assert.JSONEq(t, "8", string(r.Value))
	assert.True(t, r.IsDefault)
	assert.True(t, r.Visible)
	assert.False(t, r.Stale)
	assert.Equal(t, "admin", r.ModifyUser)
	assert.Equal(t, "GET", d.last().Method)
	assert.Equal(t, "passwordPolicy.minLength", d.last().Query.Get("key"))

	e, ok := s.Cached("passwordPolicy.minLength")
	require.True(t, ok)
	assert.JSONEq(t, "8", string(e.Value))
	assert.False(t, s.Modified("passwordPolicy.minLength"))
}

func TestUnknownSetting(t *testing.T) {
	s := newTestSession(newFakeDoer())
	_, err := s.Read(context.Background(), "nope")
	assert.ErrorIs(t, err, setting.ErrUnknownSetting)

	empty := NewSession(newFakeDoer(), nil)
	_, err = empty.Read(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoCatalog)
}

func TestWriteCachesSentValueBeforeResponse(t *testing.T) {
	ctx := context.Background()
	d := newFakeDoer()
	s := newTestSession(d)
	var seen cache.Entry
	d.handlers["writeSetting"] = func(r transport.Request) (*transport.Response, error) {
		seen, _ = s.Cached("passwordPolicy.minLength")
		return data(t, map[string]any{"isDefault": false}), nil
	}

	res, err := s.Write(ctx, "passwordPolicy.minLength", 12)
	require.NoError(t, err)
	assert.False(t, res.IsDefault)
	assert.False(t, res.ReloadRequired)
	assert.JSONEq(t, "12", string(seen.Value))
	assert.True(t, s.Modified("passwordPolicy.minLength"))
	assert.Equal(t, "POST", d.last().Method)
	assert.JSONEq(t, "12", string(d.last().Body.(json.RawMessage)))
}

func TestWriteOfDefaultValueIsNotModified(t *testing.T) {
	d := newFakeDoer()
	d.handlers["writeSetting"] = func(transport.Request) (*transport.Response, error) {
		return data(t, map[string]any{"isDefault": true}), nil
	}
	s := newTestSession(d)
	_, err := s.Write(context.Background(), "passwordPolicy.minLength", 8)
	require.NoError(t, err)
	assert.False(t, s.Modified("passwordPolicy.minLength"))
}

func TestFailedWriteRestoresPreviousEntry(t *testing.T) {
	ctx := context.Background()
	d := newFakeDoer()
	d.handlers["readSetting"] = func(transport.Request) (*transport.Response, error) {
		return data(t, map[string]any{"value": 8, "isDefault": true}), nil
	}
	d.handlers["writeSetting"] = func(transport.Request) (*transport.Response, error) {
		return nil, &transport.Error{Kind: transport.KindApplication, Code: 5000, Message: "rejected"}
	}
	s := newTestSession(d)
	_, err := s.Read(ctx, "passwordPolicy.minLength")
	require.NoError(t, err)

	_, err = s.Write(ctx, "passwordPolicy.minLength", 12)
	var terr *transport.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 5000, terr.Code)

	e, ok := s.Cached("passwordPolicy.minLength")
	require.True(t, ok)
	assert.JSONEq(t, "8", string(e.Value))
	assert.True(t, e.IsDefault)
}

func TestFailedFirstWriteLeavesNoEntry(t *testing.T) {
	d := newFakeDoer()
	d.handlers["writeSetting"] = func(transport.Request) (*transport.Response, error) {
		return nil, errors.New("offline")
	}
	s := newTestSession(d)
	_, err := s.Write(context.Background(), "passwordPolicy.minLength", 12)
	require.Error(t, err)
	_, ok := s.Cached("passwordPolicy.minLength")
	assert.False(t, ok)
}

func TestStaleReadDoesNotOverwriteLaterWrite(t *testing.T) {
	ctx := context.Background()
	d := newFakeDoer()
	s := newTestSession(d)

	readIssued := make(chan struct{})
	releaseRead := make(chan struct{})
	d.handlers["readSetting"] = func(transport.Request) (*transport.Response, error) {
		close(readIssued)
		<-releaseRead
		return data(t, map[string]any{"value": 8, "isDefault": true}), nil
	}
	d.handlers["writeSetting"] = func(transport.Request) (*transport.Response, error) {
		return data(t, map[string]any{"isDefault": false}), nil
	}

	type result struct {
		r   Reading
		err error
	}
	done := make(chan result, 1)
	go func() {
		r, err := s.Read(ctx, "passwordPolicy.minLength")
		done <- result{r, err}
	}()
	<-readIssued

	_, err := s.Write(ctx, "passwordPolicy.minLength", 12)
	require.NoError(t, err)
	close(releaseRead)

	res := <-done
	require.NoError(t, res.err)
	assert.True(t, res.r.Stale)
	assert.JSONEq(t, "12", string(res.r.Value))
	assert.False(t, res.r.IsDefault)

	e, _ := s.Cached("passwordPolicy.minLength")
	assert.JSONEq(t, "12", string(e.Value))
}

func TestReadOvertakenByResetReadsAgain(t *testing.T) {
	ctx := context.Background()
	d := newFakeDoer()
	s := newTestSession(d)

	readIssued := make(chan struct{})
	releaseRead := make(chan struct{})
	reads := 0
	d.handlers["readSetting"] = func(transport.Request) (*transport.Response, error) {
		reads++
		if reads == 1 {
			close(readIssued)
			<-releaseRead
			return data(t, map[string]any{"value": 12, "isDefault": false}), nil
		}
		return data(t, map[string]any{"value": 8, "isDefault": true}), nil
	}

	type result struct {
		r   Reading
		err error
	}
	done := make(chan result, 1)
	go func() {
		r, err := s.Read(ctx, "passwordPolicy.minLength")
		done <- result{r, err}
	}()
	<-readIssued

	require.NoError(t, s.Reset(ctx, "passwordPolicy.minLength"))
	close(releaseRead)

	res := <-done
	require.NoError(t, res.err)
	assert.False(t, res.r.Stale)
	assert.JSONEq(t, "8", string(res.r.Value))
	assert.True(t, res.r.IsDefault)
	assert.False(t, s.Modified("passwordPolicy.minLength"))
	assert.Equal(t, 2, reads)

	e, ok := s.Cached("passwordPolicy.minLength")
	require.True(t, ok)
	assert.JSONEq(t, "8", string(e.Value))
}

func TestResetDropsEntry(t *testing.T) {
	ctx := context.Background()
	d := newFakeDoer()
	d.handlers["writeSetting"] = func(transport.Request) (*transport.Response, error) {
		return data(t, map[string]any{"isDefault": false}), nil
	}
	s := newTestSession(d)
	_, err := s.Write(ctx, "passwordPolicy.minLength", 12)
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx, "passwordPolicy.minLength"))
	_, ok := s.Cached("passwordPolicy.minLength")
	assert.False(t, ok)
	assert.Equal(t, "resetSetting", d.last().Action)
}

func TestReloadFlag(t *testing.T) {
	d := newFakeDoer()
	d.handlers["writeSetting"] = func(transport.Request) (*transport.Response, error) {
		return data(t, map[string]any{"isDefault": false}), nil
	}
	s := newTestSession(d)
	res, err := s.Write(context.Background(), "mail.restart", true)
	require.NoError(t, err)
	assert.True(t, res.ReloadRequired)
}

func TestSecretWriteIsNotCached(t *testing.T) {
	d := newFakeDoer()
	s := newTestSession(d)
	var cached bool
	d.handlers["writeSetting"] = func(transport.Request) (*transport.Response, error) {
		_, cached = s.Cached("ldap.password")
		return data(t, map[string]any{"isDefault": false}), nil
	}
	_, err := s.Write(context.Background(), "ldap.password", "hunter2")
	require.NoError(t, err)
	assert.False(t, cached)
	_, ok := s.Cached("ldap.password")
	assert.False(t, ok)
}

func TestProfileScoping(t *testing.T) {
	ctx := context.Background()
	d := newFakeDoer()
	d.handlers["readSetting"] = func(r transport.Request) (*transport.Response, error) {
		return data(t, map[string]any{"value": []string{r.Query.Get("profile")}, "isDefault": false}), nil
	}
	s := newTestSession(d)
	s.SetProfile("corp")
	assert.Equal(t, "corp", s.Profile())

	r, err := s.Read(ctx, "ldap.serverUrls")
	require.NoError(t, err)
	assert.Equal(t, "corp", r.Profile)
	assert.Equal(t, "corp", d.last().Query.Get("profile"))

	r, err = s.Read(ctx, "passwordPolicy.minLength")
	require.NoError(t, err)
	assert.Empty(t, r.Profile)
	assert.False(t, d.last().Query.Has("profile"))

	s.SetProfile("other")
	_, ok := s.Cached("ldap.serverUrls")
	assert.False(t, ok)
	s.SetProfile("corp")
	_, ok = s.Cached("ldap.serverUrls")
	assert.True(t, ok)
}

func TestFilterVisibility(t *testing.T) {
	level2 := setting.Descriptor{Syntax: setting.SyntaxString, Level: 2}
	profiles := setting.Descriptor{Syntax: setting.SyntaxProfile, Level: 2}
	hidden := setting.Descriptor{Syntax: setting.SyntaxString, Flags: []string{setting.FlagHidden}}

	tests := []struct {
		name      string
		filter    Filter
		d         setting.Descriptor
		isDefault bool
		want      bool
	}{
		{"level within", Filter{MaxLevel: 2}, level2, true, true},
		{"level above", Filter{MaxLevel: 1}, level2, false, false},
		{"modified only hides default", Filter{ModifiedOnly: true, MaxLevel: 2}, level2, true, false},
		{"modified only shows modified", Filter{ModifiedOnly: true, MaxLevel: 2}, level2, false, true},
		{"profile list always visible", Filter{ModifiedOnly: true, MaxLevel: 0}, profiles, true, true},
		{"hidden never visible", Filter{MaxLevel: 2}, hidden, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Visible(tt.d, tt.isDefault))
		})
	}
}

func TestExecuteBody(t *testing.T) {
	d := newFakeDoer()
	d.handlers["executeSettingFunction"] = func(transport.Request) (*transport.Response, error) {
		return &transport.Response{SuccessMessage: "sorted"}, nil
	}
	s := newTestSession(d)
	s.SetProfile("corp")

	res, err := s.Execute(context.Background(), "ldap.serverUrls", "sortValues", map[string]any{"desc": true})
	require.NoError(t, err)
	assert.Equal(t, "sorted", res.Message)

	body := d.last().Body.(map[string]any)
	assert.Equal(t, "ldap.serverUrls", body["setting"])
	assert.Equal(t, "sortValues", body["function"])
	assert.Equal(t, "corp", body["profile"])
	assert.NotNil(t, body["extraData"])
}

func TestLoadCatalogSetsFormID(t *testing.T) {
	d := newFakeDoer()
	d.handlers["settingData"] = func(transport.Request) (*transport.Response, error) {
		return &transport.Response{Data: json.RawMessage(`{
			"settings": {"a.b": {"syntax": "STRING", "label": "A"}},
			"categories": {"a": {"label": "A"}},
			"var": {"defaultLocale": "en", "formID": "f-123"}
		}`)}, nil
	}
	s := NewSession(d, nil)
	c, err := s.LoadCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "f-123", d.formID)
	assert.Same(t, c, s.Catalog())
}

func TestLoadNavigationPostsFilter(t *testing.T) {
	d := newFakeDoer()
	d.handlers["menuTreeData"] = func(transport.Request) (*transport.Response, error) {
		return &transport.Response{Data: json.RawMessage(`[
			{"id": "ROOT", "name": "Settings", "type": "navigation"},
			{"id": "ldap", "name": "LDAP", "parent": "ROOT", "type": "category", "category": "ldap"}
		]`)}, nil
	}
	s := newTestSession(d)
	s.SetFilter(Filter{ModifiedOnly: true, MaxLevel: 1})

	nodes, err := s.LoadNavigation(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "ldap", nodes[1].Category)

	body := d.last().Body.(map[string]any)
	assert.Equal(t, true, body["modifiedSettingsOnly"])
	assert.Equal(t, 1, body["settingLevel"])
}
