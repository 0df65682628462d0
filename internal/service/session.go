// Package service implements the setting read/write/reset protocol on top of
// the transport client and the setting cache.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dongho-jung/pwmcfg/internal/cache"
	"github.com/dongho-jung/pwmcfg/internal/constants"
	"github.com/dongho-jung/pwmcfg/internal/logging"
	"github.com/dongho-jung/pwmcfg/internal/nav"
	"github.com/dongho-jung/pwmcfg/internal/setting"
	"github.com/dongho-jung/pwmcfg/internal/transport"
)

// ErrNoCatalog is returned by setting operations before LoadCatalog succeeded.
var ErrNoCatalog = errors.New("setting catalog not loaded")

// Doer sends editor requests. *transport.Client implements it.
type Doer interface {
	Do(ctx context.Context, r transport.Request) (*transport.Response, error)
}

type formIDSetter interface {
	SetFormID(id string)
}

// Filter decides which settings are shown.
type Filter struct {
	ModifiedOnly bool
	MaxLevel     int
}

// Visible applies the filter. Hidden settings are never visible; profile
// lists always are.
func (f Filter) Visible(d setting.Descriptor, isDefault bool) bool {
	if d.HasFlag(setting.FlagHidden) {
		return false
	}
	if d.Syntax == setting.SyntaxProfile {
		return true
	}
	if f.ModifiedOnly && isDefault {
		return false
	}
	return d.Level <= f.MaxLevel
}

// Reading is the result of a read.
type Reading struct {
	Key        string
	Profile    string
	Value      json.RawMessage
	IsDefault  bool
	ModifyTime time.Time
	ModifyUser string
	Visible    bool
	// Stale is set when a later request for the same key was applied before
	// this read resolved. Value then holds the cached value, not the response,
	// or nothing when a reset kept winning (IsDefault is then set).
	Stale bool
}

// Decode unmarshals the value into v.
func (r Reading) Decode(v any) error {
	if len(r.Value) == 0 || string(r.Value) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Value, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", r.Key, err)
	}
	return nil
}

// Modified reports whether the value differs from the template default.
func (r Reading) Modified() bool {
	return !r.IsDefault
}

// WriteResult is the result of a successful write.
type WriteResult struct {
	IsDefault      bool
	ReloadRequired bool
	Message        string
}

// ExecResult is the result of a setting function.
type ExecResult struct {
	Message string
	Data    json.RawMessage
}

type readData struct {
	Value      json.RawMessage `json:"value"`
	IsDefault  bool            `json:"isDefault"`
	ModifyTime *time.Time      `json:"modifyTime,omitempty"`
	ModifyUser string          `json:"modifyUser,omitempty"`
}

type writeData struct {
	IsDefault bool `json:"isDefault"`
}

type sequence struct {
	issued  uint64
	applied uint64
}

// Session is the per-console protocol state: the active profile, the
// visibility filter and the setting cache.
type Session struct {
	client Doer
	cache  *cache.Cache

	mu      sync.Mutex
	catalog *setting.Catalog
	profile string
	filter  Filter
	seqs    map[cache.Key]*sequence
}

// NewSession creates a session.
func NewSession(client Doer, c *cache.Cache) *Session {
	if c == nil {
		c = cache.New()
	}
	return &Session{
		client: client,
		cache:  c,
		filter: Filter{MaxLevel: constants.DefaultMaxLevel},
		seqs:   make(map[cache.Key]*sequence),
	}
}

// Cache returns the setting cache.
func (s *Session) Cache() *cache.Cache {
	return s.cache
}

// Catalog returns the loaded catalog or nil.
func (s *Session) Catalog() *setting.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog
}

// SetCatalog installs a catalog without contacting the server.
func (s *Session) SetCatalog(c *setting.Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = c
}

// Profile returns the active profile id.
func (s *Session) Profile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// SetProfile changes the active profile id.
func (s *Session) SetProfile(profile string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logging.Debug("SetProfile: %q -> %q", s.profile, profile)
	s.profile = profile
}

// Filter returns the visibility filter.
func (s *Session) Filter() Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SetFilter replaces the visibility filter.
func (s *Session) SetFilter(f Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
}

// Descriptor looks up a setting in the loaded catalog.
func (s *Session) Descriptor(key string) (setting.Descriptor, error) {
	c := s.Catalog()
	if c == nil {
		return setting.Descriptor{}, ErrNoCatalog
	}
	return c.Setting(key)
}

// scope returns the cache key for a setting under the active profile. Only
// settings of profiled categories or flagged ProfileScoped are qualified; the
// profile list itself never is.
func (s *Session) scope(d setting.Descriptor) cache.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := cache.Key{Setting: d.Key}
	if s.profile == "" || d.Syntax == setting.SyntaxProfile {
		return k
	}
	profiled := d.HasFlag(setting.FlagProfileScoped)
	if s.catalog != nil {
		if cat, ok := s.catalog.Category(d.Category); ok && cat.Profiled {
			profiled = true
		}
	}
	if profiled {
		k.Profile = s.profile
	}
	return k
}

func (s *Session) next(k cache.Key) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.seqs[k]
	if !ok {
		seq = &sequence{}
		s.seqs[k] = seq
	}
	seq.issued++
	return seq.issued
}

// apply runs fn under the session lock when n is newer than the last applied
// request for k. It reports whether fn ran.
func (s *Session) apply(k cache.Key, n uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.seqs[k]
	if seq == nil || n <= seq.applied {
		return false
	}
	seq.applied = n
	fn()
	return true
}

func settingQuery(k cache.Key) url.Values {
	q := url.Values{constants.ParamKey: {k.Setting}}
	if k.Profile != "" {
		q.Set(constants.ParamProfile, k.Profile)
	}
	return q
}

// maxStaleRereads bounds how often Read asks again after its response was
// superseded by a reset.
const maxStaleRereads = 2

// Read fetches the current value of key and updates the cache. A response
// superseded by a later request is discarded in favour of the cached entry;
// when that request was a reset and left no entry, the value is read again.
func (s *Session) Read(ctx context.Context, key string) (Reading, error) {
	logging.Debug("-> Session.Read(key=%s)", key)
	defer logging.Debug("<- Session.Read(key=%s)", key)

	d, err := s.Descriptor(key)
	if err != nil {
		return Reading{}, err
	}
	k := s.scope(d)

	for attempt := 0; ; attempt++ {
		r, ok, err := s.readOnce(ctx, d, k)
		if err != nil || ok {
			return r, err
		}
		if attempt == maxStaleRereads {
			// still racing resets: report the default without a value
			logging.Warn("Session.Read: %s kept changing, giving up after %d reads", key, attempt+1)
			return r, nil
		}
		logging.Debug("Session.Read: %s was reset while reading, reading again", key)
	}
}

// readOnce issues one read. ok is false when the response was stale and no
// cached entry could stand in for it; the Reading then has no Value and
// IsDefault set.
func (s *Session) readOnce(ctx context.Context, d setting.Descriptor, k cache.Key) (Reading, bool, error) {
	n := s.next(k)

	resp, err := s.client.Do(ctx, transport.Request{
		Action: constants.ActionReadSetting,
		Method: "GET",
		Query:  settingQuery(k),
	})
	if err != nil {
		return Reading{}, false, fmt.Errorf("failed to read %s: %w", d.Key, err)
	}

	var data readData
	if err := resp.Decode(&data); err != nil {
		return Reading{}, false, fmt.Errorf("failed to read %s: %w", d.Key, err)
	}

	entry := cache.Entry{
		Value:      data.Value,
		IsDefault:  data.IsDefault,
		ModifyUser: data.ModifyUser,
	}
	if data.ModifyTime != nil {
		entry.ModifyTime = *data.ModifyTime
	}

	ok := true
	applied := s.apply(k, n, func() { s.cache.Put(k, entry) })
	stale := !applied
	if stale {
		logging.Debug("Session.Read: discarding stale response for %s (seq %d)", d.Key, n)
		if cached, found := s.cache.Get(k); found {
			entry = cached
		} else {
			entry = cache.Entry{IsDefault: true}
			ok = false
		}
	}

	return Reading{
		Key:        d.Key,
		Profile:    k.Profile,
		Value:      entry.Value,
		IsDefault:  entry.IsDefault,
		ModifyTime: entry.ModifyTime,
		ModifyUser: entry.ModifyUser,
		Visible:    s.Filter().Visible(d, entry.IsDefault),
		Stale:      stale,
	}, ok, nil
}

// Write sends value for key. The cache holds the sent value from the moment
// the request is issued; a failed write restores the previous entry.
func (s *Session) Write(ctx context.Context, key string, value any) (WriteResult, error) {
	logging.Debug("-> Session.Write(key=%s)", key)
	defer logging.Debug("<- Session.Write(key=%s)", key)

	d, err := s.Descriptor(key)
	if err != nil {
		return WriteResult{}, err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return WriteResult{}, fmt.Errorf("failed to encode %s: %w", key, err)
	}

	k := s.scope(d)
	n := s.next(k)
	previous, hadPrevious := s.cache.Get(k)
	// secret payloads never enter the cache; the read shape differs anyway
	secret := d.Syntax.Secret()
	if !secret {
		s.apply(k, n, func() {
			s.cache.Put(k, cache.Entry{Value: raw, IsDefault: false, ModifyTime: time.Now()})
		})
	}

	resp, err := s.client.Do(ctx, transport.Request{
		Action: constants.ActionWriteSetting,
		Method: "POST",
		Query:  settingQuery(k),
		Body:   json.RawMessage(raw),
	})
	if err != nil {
		s.mu.Lock()
		if seq := s.seqs[k]; !secret && seq != nil && seq.applied == n {
			if hadPrevious {
				s.cache.Put(k, previous)
			} else {
				s.cache.Delete(k)
			}
		}
		s.mu.Unlock()
		return WriteResult{}, fmt.Errorf("failed to write %s: %w", key, err)
	}

	var data writeData
	if err := resp.Decode(&data); err != nil {
		return WriteResult{}, fmt.Errorf("failed to write %s: %w", key, err)
	}

	s.mu.Lock()
	if seq := s.seqs[k]; seq != nil && seq.applied == n {
		s.cache.SetDefault(k, data.IsDefault)
	}
	s.mu.Unlock()

	result := WriteResult{
		IsDefault:      data.IsDefault,
		ReloadRequired: d.HasFlag(setting.FlagReloadEditorOnModify),
		Message:        resp.SuccessMessage,
	}
	if result.ReloadRequired {
		logging.Info("Session.Write: %s requires an editor reload", key)
	}
	return result, nil
}

// Reset restores the template default of key and drops its cache entry.
func (s *Session) Reset(ctx context.Context, key string) error {
	logging.Debug("-> Session.Reset(key=%s)", key)
	defer logging.Debug("<- Session.Reset(key=%s)", key)

	d, err := s.Descriptor(key)
	if err != nil {
		return err
	}
	k := s.scope(d)
	n := s.next(k)

	if _, err := s.client.Do(ctx, transport.Request{
		Action: constants.ActionResetSetting,
		Method: "POST",
		Query:  settingQuery(k),
	}); err != nil {
		return fmt.Errorf("failed to reset %s: %w", key, err)
	}

	s.apply(k, n, func() { s.cache.Delete(k) })
	return nil
}

// Execute runs a server-side setting function.
func (s *Session) Execute(ctx context.Context, key, function string, extraData any) (ExecResult, error) {
	logging.Debug("-> Session.Execute(key=%s, function=%s)", key, function)
	defer logging.Debug("<- Session.Execute(key=%s, function=%s)", key, function)

	d, err := s.Descriptor(key)
	if err != nil {
		return ExecResult{}, err
	}
	k := s.scope(d)

	body := map[string]any{
		"setting":  key,
		"function": function,
	}
	if k.Profile != "" {
		body["profile"] = k.Profile
	}
	if extraData != nil {
		body["extraData"] = extraData
	}

	resp, err := s.client.Do(ctx, transport.Request{
		Action: constants.ActionExecuteFunction,
		Method: "POST",
		Body:   body,
	})
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to execute %s on %s: %w", function, key, err)
	}
	return ExecResult{Message: resp.SuccessMessage, Data: resp.Data}, nil
}

// Modified reports whether the cached value of key differs from its default.
// Unknown or unread settings are reported as unmodified.
func (s *Session) Modified(key string) bool {
	d, err := s.Descriptor(key)
	if err != nil {
		return false
	}
	e, ok := s.cache.Get(s.scope(d))
	return ok && e.Modified()
}

// Cached returns the cached entry of key under the active profile.
func (s *Session) Cached(key string) (cache.Entry, bool) {
	d, err := s.Descriptor(key)
	if err != nil {
		return cache.Entry{}, false
	}
	return s.cache.Get(s.scope(d))
}

// LoadCatalog fetches the descriptor catalog. A form id delivered with the
// catalog replaces the client's.
func (s *Session) LoadCatalog(ctx context.Context) (*setting.Catalog, error) {
	logging.Debug("-> Session.LoadCatalog")
	defer logging.Debug("<- Session.LoadCatalog")

	resp, err := s.client.Do(ctx, transport.Request{
		Action: constants.ActionSettingData,
		Method: "GET",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load setting catalog: %w", err)
	}
	catalog, err := setting.ParseCatalog(resp.Data)
	if err != nil {
		return nil, err
	}
	if id := catalog.FormID(); id != "" {
		if fs, ok := s.client.(formIDSetter); ok {
			fs.SetFormID(id)
		}
	}
	s.SetCatalog(catalog)
	logging.Info("LoadCatalog: %d settings", catalog.Len())
	return catalog, nil
}

// LoadNavigation fetches the navigation tree nodes for the current filter.
func (s *Session) LoadNavigation(ctx context.Context) ([]nav.Node, error) {
	logging.Debug("-> Session.LoadNavigation")
	defer logging.Debug("<- Session.LoadNavigation")

	f := s.Filter()
	resp, err := s.client.Do(ctx, transport.Request{
		Action: constants.ActionMenuTreeData,
		Method: "POST",
		Body: map[string]any{
			"modifiedSettingsOnly": f.ModifiedOnly,
			"settingLevel":         f.MaxLevel,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load navigation: %w", err)
	}
	var nodes []nav.Node
	if err := resp.Decode(&nodes); err != nil {
		return nil, fmt.Errorf("failed to load navigation: %w", err)
	}
	return nodes, nil
}
