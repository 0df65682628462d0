package devserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongho-jung/pwmcfg/internal/cache"
	"github.com/dongho-jung/pwmcfg/internal/constants"
	"github.com/dongho-jung/pwmcfg/internal/devserver"
	"github.com/dongho-jung/pwmcfg/internal/editor"
	"github.com/dongho-jung/pwmcfg/internal/nav"
	"github.com/dongho-jung/pwmcfg/internal/search"
	"github.com/dongho-jung/pwmcfg/internal/service"
	"github.com/dongho-jung/pwmcfg/internal/setting"
	"github.com/dongho-jung/pwmcfg/internal/transport"
)

type harness struct {
	srv    *devserver.Server
	client *transport.Client
	sess   *service.Session
}

func newHarness(t *testing.T, bootstrap bool) *harness {
	t.Helper()
	return newHarnessWith(t, devserver.Options{}, bootstrap)
}

func newHarnessWith(t *testing.T, opts devserver.Options, bootstrap bool) *harness {
	t.Helper()
	srv, err := devserver.New(opts)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := transport.New(transport.Options{
		BaseURL:         ts.URL,
		Timeout:         5 * time.Second,
		FatalErrorCodes: constants.DefaultFatalErrorCodes,
	})
	require.NoError(t, err)

	h := &harness{srv: srv, client: client, sess: service.NewSession(client, cache.New())}
	if bootstrap {
		_, err := h.sess.LoadCatalog(context.Background())
		require.NoError(t, err)
	}
	return h
}

func (h *harness) editor(t *testing.T, key string) editor.Editor {
	t.Helper()
	d, err := h.sess.Descriptor(key)
	require.NoError(t, err)
	e, err := editor.New(h.sess, d)
	require.NoError(t, err)
	require.NoError(t, e.Load(context.Background()))
	return e
}

func TestMinLengthWriteResetLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	e := h.editor(t, "passwordPolicy.minLength").(*editor.NumericEditor)

	assert.Equal(t, int64(8), e.Value())
	assert.False(t, e.Modified())

	require.NoError(t, e.Write(ctx, 12))
	require.NoError(t, e.Load(ctx))
	assert.Equal(t, int64(12), e.Value())
	assert.True(t, e.Modified())
	assert.True(t, h.sess.Modified("passwordPolicy.minLength"))

	require.NoError(t, e.Reset(ctx))
	assert.Equal(t, int64(8), e.Value())
	assert.False(t, e.Modified())
	assert.False(t, h.sess.Modified("passwordPolicy.minLength"))
}

func TestWriteOfDefaultIsNotModified(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	e := h.editor(t, "passwordPolicy.minLength")
	require.NoError(t, e.Write(ctx, 8))
	assert.False(t, e.Modified())
}

func TestServerRejectsInvalidValue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	_, err := h.sess.Write(ctx, "passwordPolicy.minLength", 0)

	var terr *transport.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, transport.KindApplication, terr.Kind)
	assert.Equal(t, devserver.CodeInvalidValue, terr.Code)
	assert.False(t, terr.Fatal())
}

func TestEveryEditorLoadsIntoCache(t *testing.T) {
	h := newHarness(t, true)
	catalog := h.sess.Catalog()
	for _, key := range catalog.Keys() {
		t.Run(key, func(t *testing.T) {
			e := h.editor(t, key)
			assert.Equal(t, editor.StateRendered, e.State())
			assert.NotNil(t, e.Render())

			r, err := h.sess.Read(context.Background(), key)
			require.NoError(t, err)
			entry, ok := h.sess.Cached(key)
			require.True(t, ok)
			assert.JSONEq(t, string(r.Value), string(entry.Value))
		})
	}
}

func TestMissingFormIDIsFatal(t *testing.T) {
	h := newHarness(t, false)
	h.sess.SetCatalog(setting.NewCatalog(setting.CatalogData{
		Settings: map[string]setting.Descriptor{"passwordPolicy.minLength": {Syntax: setting.SyntaxNumeric}},
	}))

	_, err := h.sess.Read(context.Background(), "passwordPolicy.minLength")
	require.Error(t, err)
	assert.True(t, transport.IsFatal(err))
}

func TestRotatedFormIDRecoversAfterReload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	h.srv.RotateFormID()

	_, err := h.sess.Read(ctx, "passwordPolicy.minLength")
	require.True(t, transport.IsFatal(err))

	_, err = h.sess.LoadCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, h.srv.FormID(), h.client.FormID())
	_, err = h.sess.Read(ctx, "passwordPolicy.minLength")
	assert.NoError(t, err)
}

func TestExpiredSessionIsFatalOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	_, err := h.sess.Read(ctx, "passwordPolicy.minLength")
	require.NoError(t, err)

	h.srv.ExpireSessions()
	_, err = h.sess.Read(ctx, "passwordPolicy.minLength")
	var terr *transport.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, constants.ErrorCodeSessionExpired, terr.Code)
	assert.True(t, terr.Fatal())

	_, err = h.sess.Read(ctx, "passwordPolicy.minLength")
	assert.NoError(t, err)
}

func TestPasswordIsStoredHashed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	e := h.editor(t, "ldap.proxyPassword").(*editor.PasswordEditor)
	assert.False(t, e.Value().Present)

	require.NoError(t, e.Set(ctx, "correct horse"))
	assert.True(t, e.Value().Present)
	assert.True(t, h.srv.CheckPassword("ldap.proxyPassword", "", "", "correct horse"))
	assert.False(t, h.srv.CheckPassword("ldap.proxyPassword", "", "", "wrong"))

	entry, ok := h.sess.Cached("ldap.proxyPassword")
	require.True(t, ok)
	assert.NotContains(t, string(entry.Value), "correct horse")
}

func TestNamedSecretsKeepHashes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	e := h.editor(t, "security.secrets").(*editor.NamedSecretEditor)

	require.NoError(t, e.Add(ctx, "smtp", "s1", []string{"mail"}))
	require.NoError(t, e.Add(ctx, "ldap", "s2", nil))
	assert.Equal(t, []string{"ldap", "smtp"}, e.Names())
	assert.True(t, h.srv.CheckPassword("security.secrets", "", "smtp", "s1"))

	require.NoError(t, e.Remove(ctx, "ldap"))
	assert.Equal(t, []string{"smtp"}, e.Names())
	assert.True(t, h.srv.CheckPassword("security.secrets", "", "smtp", "s1"))
	assert.False(t, h.srv.CheckPassword("security.secrets", "", "ldap", "s2"))
}

func TestProfileScopedValues(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)

	h.sess.SetProfile("default")
	e := h.editor(t, "ldap.proxyUser")
	require.NoError(t, e.Write(ctx, "cn=other"))

	h.sess.SetProfile("corp")
	r, err := h.sess.Read(ctx, "ldap.proxyUser")
	require.NoError(t, err)
	assert.True(t, r.IsDefault)
	assert.Equal(t, "corp", r.Profile)

	h.sess.SetProfile("default")
	r, err = h.sess.Read(ctx, "ldap.proxyUser")
	require.NoError(t, err)
	assert.JSONEq(t, `"cn=other"`, string(r.Value))
}

func TestClearProfileFunction(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	h.sess.SetProfile("default")
	e := h.editor(t, "ldap.proxyUser")
	require.NoError(t, e.Write(ctx, "cn=other"))

	res, err := e.Execute(ctx, "clearProfile", nil)
	require.NoError(t, err)
	assert.Contains(t, res.Message, "cleared")
	assert.False(t, e.Modified())
}

func TestSortValuesFunction(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	e := h.editor(t, "passwordPolicy.disallowedValues").(*editor.ListEditor[string])
	require.NoError(t, e.Add(ctx, "abc"))

	_, err := e.Execute(ctx, "sortValues", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"123456", "abc", "letmein", "password"}, e.Items())

	_, err = h.sess.Execute(ctx, "passwordPolicy.minLength", "sortValues", nil)
	assert.True(t, transport.IsApplication(err))
}

const malformedCatalog = `
categories:
  lists:
    label: Lists
  dirs:
    label: Directories
    profiled: true
settings:
  lists.words:
    syntax: STRING_ARRAY
    category: lists
    label: Words
    default: not-a-list
  dirs.profiles:
    syntax: PROFILE
    category: dirs
    label: Profiles
    default: 42
`

func TestMalformedStoredValuesAreRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarnessWith(t, devserver.Options{Catalog: []byte(malformedCatalog)}, true)

	_, err := h.sess.Execute(ctx, "lists.words", "sortValues", nil)
	var terr *transport.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, devserver.CodeBadRequest, terr.Code)

	_, err = h.sess.LoadNavigation(ctx)
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, devserver.CodeBadRequest, terr.Code)
}

func TestClearProfileRejectsBadExtraData(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	h.sess.SetProfile("default")

	_, err := h.sess.Execute(ctx, "ldap.proxyUser", "clearProfile", "default")
	var terr *transport.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, devserver.CodeBadRequest, terr.Code)
}

func TestListOperationsAgainstServer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	e := h.editor(t, "passwordPolicy.disallowedValues").(*editor.ListEditor[string])
	before := e.Items()

	require.NoError(t, e.MoveUp(ctx, 2))
	require.NoError(t, e.MoveDown(ctx, 1))
	require.NoError(t, e.Load(ctx))
	assert.Equal(t, before, e.Items())

	require.NoError(t, e.Remove(ctx, 0))
	require.NoError(t, e.Load(ctx))
	assert.Equal(t, before[1:], e.Items())
}

func TestNavigationTree(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)

	nodes, err := h.sess.LoadNavigation(ctx)
	require.NoError(t, err)
	tree := nav.Build(nodes)
	_, ok := tree.Node("ldap-default")
	assert.True(t, ok)
	path := tree.Path("policy.rules")
	require.Len(t, path, 3)
	assert.Equal(t, "ROOT", path[0].ID)
	assert.Equal(t, "policy", path[1].ID)
	assert.Equal(t, "default", tree.ProfileOf("ldap-default"))

	_, err = h.sess.Write(ctx, "passwordPolicy.minLength", 10)
	require.NoError(t, err)
	h.sess.SetFilter(service.Filter{ModifiedOnly: true, MaxLevel: 2})
	nodes, err = h.sess.LoadNavigation(ctx)
	require.NoError(t, err)
	tree = nav.Build(nodes)
	_, ok = tree.Node("policy")
	assert.True(t, ok)
	_, ok = tree.Node("notifications")
	assert.False(t, ok)
}

func TestSearchGroupsByCategory(t *testing.T) {
	h := newHarness(t, true)
	groups, err := search.NewSearcher(h.client).Search(context.Background(), "password")
	require.NoError(t, err)
	require.NotEmpty(t, groups)

	byCategory := make(map[string][]string)
	for _, g := range groups {
		for _, r := range g.Results {
			byCategory[g.Category] = append(byCategory[g.Category], r.Key)
		}
	}
	assert.Contains(t, byCategory["Password Policy"], "passwordPolicy.minLength")
	assert.Contains(t, byCategory["LDAP Directories"], "ldap.proxyPassword")
	for _, keys := range byCategory {
		assert.NotContains(t, keys, "security.pepper")
	}
}

func TestBusyCountReturnsToZero(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)

	var mu sync.Mutex
	peak := 0
	h.client.Busy().Observe(func(n int) {
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = h.sess.Read(ctx, "passwordPolicy.minLength")
			} else {
				_, _ = h.sess.Write(ctx, "passwordPolicy.minLength", -1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, h.client.Busy().Count())
	mu.Lock()
	assert.GreaterOrEqual(t, peak, 1)
	mu.Unlock()
}

func TestReloadFlagReported(t *testing.T) {
	h := newHarness(t, true)
	res, err := h.sess.Write(context.Background(), "ui.theme", "dark")
	require.NoError(t, err)
	assert.True(t, res.ReloadRequired)
	assert.Equal(t, "Theme saved", res.Message)
}

func TestRequestsAreCounted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	for i := 0; i < 3; i++ {
		_, err := h.sess.Read(ctx, "ui.theme")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, h.srv.Requests(constants.ActionReadSetting))
	assert.Equal(t, 1, h.srv.Requests(constants.ActionSettingData))
}

func TestSettingDataCarriesFormID(t *testing.T) {
	h := newHarness(t, false)
	resp, err := h.client.Do(context.Background(), transport.Request{Action: constants.ActionSettingData})
	require.NoError(t, err)
	var data setting.CatalogData
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, h.srv.FormID(), data.Var.FormID)
	assert.Equal(t, "en", data.Var.DefaultLocale)
	assert.Contains(t, data.Settings, "passwordPolicy.minLength")
}
