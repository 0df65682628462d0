// Package devserver is an in-memory reference implementation of the
// configuration editor endpoints. It backs `pwmcfg serve-demo` and the
// integration tests; nothing it stores survives a restart.
package devserver

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dongho-jung/pwmcfg/internal/constants"
	"github.com/dongho-jung/pwmcfg/internal/logging"
	"github.com/dongho-jung/pwmcfg/internal/setting"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Application error codes besides the fatal ones in constants.
const (
	CodeUnknownAction   = 5001
	CodeBadRequest      = 5002
	CodeUnknownSetting  = 5004
	CodeUnknownFunction = 5005
	CodeInvalidValue    = 5022
)

// SessionCookie names the server session cookie.
const SessionCookie = "PWMCFG_SESSION"

// Options configures a Server.
type Options struct {
	BasePath string
	// Catalog is YAML in the embedded catalog's shape. Empty means the demo catalog.
	Catalog []byte
	// User is recorded as the modifying user of every write.
	User string
}

type seed struct {
	setting.Descriptor `yaml:",inline"`
	Default            any `yaml:"default"`
}

type catalogFile struct {
	DefaultLocale string                      `yaml:"defaultLocale"`
	Locales       map[string]string           `yaml:"locales"`
	Categories    map[string]setting.Category `yaml:"categories"`
	Settings      map[string]seed             `yaml:"settings"`
}

type storeKey struct {
	key     string
	profile string
}

type stored struct {
	value      json.RawMessage
	modifyTime time.Time
	modifyUser string
}

// Server holds the in-memory configuration.
type Server struct {
	basePath string
	user     string
	data     setting.CatalogData
	catalog  *setting.Catalog
	defaults map[string]json.RawMessage

	mu       sync.Mutex
	formID   string
	sessions map[string]bool
	values   map[storeKey]stored
	secrets  map[storeKey]map[string][]byte // bcrypt hashes by secret name, "" for PASSWORD
	requests map[string]int

	engine *gin.Engine
}

// New creates a server from opts.
func New(opts Options) (*Server, error) {
	raw := opts.Catalog
	if len(raw) == 0 {
		raw = defaultCatalog
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	s := &Server{
		basePath: opts.BasePath,
		user:     opts.User,
		defaults: make(map[string]json.RawMessage),
		formID:   uuid.NewString(),
		sessions: make(map[string]bool),
		values:   make(map[storeKey]stored),
		secrets:  make(map[storeKey]map[string][]byte),
		requests: make(map[string]int),
	}
	if s.basePath == "" {
		s.basePath = constants.DefaultBasePath
	}
	if s.user == "" {
		s.user = "admin"
	}

	s.data.Settings = make(map[string]setting.Descriptor, len(file.Settings))
	for key, sd := range file.Settings {
		d := sd.Descriptor
		d.Key = key
		s.data.Settings[key] = d
		if sd.Default != nil {
			def, err := json.Marshal(sd.Default)
			if err != nil {
				return nil, fmt.Errorf("failed to encode default of %s: %w", key, err)
			}
			s.defaults[key] = canonical(def)
		}
	}
	s.data.Categories = make(map[string]setting.Category, len(file.Categories))
	for key, c := range file.Categories {
		c.Key = key
		s.data.Categories[key] = c
	}
	s.data.Locales = file.Locales
	s.data.Var.DefaultLocale = file.DefaultLocale
	s.catalog = setting.NewCatalog(s.data)

	s.engine = s.newEngine()
	logging.Info("devserver: %d settings, base path %s", s.catalog.Len(), s.basePath)
	return s, nil
}

func (s *Server) newEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	g := r.Group(s.basePath)
	g.Use(s.sessionCheck())
	g.GET("", s.dispatch)
	g.POST("", s.dispatch)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "errorMessage": "Not Found"})
	})
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// BasePath returns the editor endpoint path.
func (s *Server) BasePath() string {
	return s.basePath
}

// FormID returns the current anti-forgery id.
func (s *Server) FormID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.formID
}

// RotateFormID issues a new form id. Requests carrying the old one fail
// with the invalid-form-id code until the client reloads the catalog.
func (s *Server) RotateFormID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.formID = uuid.NewString()
	return s.formID
}

// ExpireSessions forgets every session. The next request of an existing
// client fails with the session-expired code.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]bool)
}

// Requests returns how many requests were served for action.
func (s *Server) Requests(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[action]
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logging.Info("devserver: listening on http://%s%s", addr, s.basePath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		return nil
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug("devserver: %s %s action=%s status=%d (%dms)",
			c.Request.Method, c.Request.URL.Path, c.Query(constants.ParamProcessAction),
			c.Writer.Status(), time.Since(start).Milliseconds())
	}
}

// sessionCheck hands out a session cookie on the first request and rejects
// cookies the server no longer knows.
func (s *Server) sessionCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(SessionCookie)
		s.mu.Lock()
		known := err == nil && s.sessions[id]
		if !known {
			next := uuid.NewString()
			s.sessions[next] = true
			c.SetCookie(SessionCookie, next, 0, "/", "", false, true)
		}
		s.mu.Unlock()

		if err == nil && !known {
			fail(c, constants.ErrorCodeSessionExpired, "session expired", "")
			c.Abort()
			return
		}
		c.Next()
	}
}

func respond(c *gin.Context, data any, message string) {
	body := gin.H{"error": false, "data": data}
	if message != "" {
		body["successMessage"] = message
	}
	c.JSON(http.StatusOK, body)
}

func fail(c *gin.Context, code int, message, detail string) {
	body := gin.H{"error": true, "errorCode": code, "errorMessage": message}
	if detail != "" {
		body["errorDetail"] = detail
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) dispatch(c *gin.Context) {
	action := c.Query(constants.ParamProcessAction)

	s.mu.Lock()
	s.requests[action]++
	formID := s.formID
	s.mu.Unlock()

	if action != constants.ActionSettingData && c.Query(constants.ParamFormID) != formID {
		fail(c, constants.ErrorCodeInvalidFormID, "invalid form id", "reload the editor")
		return
	}

	switch action {
	case constants.ActionSettingData:
		s.settingData(c)
	case constants.ActionReadSetting:
		s.readSetting(c)
	case constants.ActionWriteSetting:
		s.writeSetting(c)
	case constants.ActionResetSetting:
		s.resetSetting(c)
	case constants.ActionExecuteFunction:
		s.executeFunction(c)
	case constants.ActionMenuTreeData:
		s.menuTreeData(c)
	case constants.ActionSearch:
		s.search(c)
	default:
		fail(c, CodeUnknownAction, fmt.Sprintf("unknown action %q", action), "")
	}
}

func (s *Server) settingData(c *gin.Context) {
	data := s.data
	data.Var.FormID = s.FormID()
	respond(c, data, "")
}

func (s *Server) lookup(c *gin.Context) (setting.Descriptor, storeKey, bool) {
	key := c.Query(constants.ParamKey)
	d, err := s.catalog.Setting(key)
	if err != nil {
		fail(c, CodeUnknownSetting, err.Error(), "")
		return setting.Descriptor{}, storeKey{}, false
	}
	return d, storeKey{key: key, profile: c.Query(constants.ParamProfile)}, true
}

func (s *Server) readSetting(c *gin.Context) {
	d, k, found := s.lookup(c)
	if !found {
		return
	}
	s.mu.Lock()
	v, has := s.values[k]
	s.mu.Unlock()

	if !has {
		respond(c, gin.H{"value": s.defaultValue(d), "isDefault": true}, "")
		return
	}
	respond(c, gin.H{
		"value":      v.value,
		"isDefault":  s.isDefault(d.Key, v.value),
		"modifyTime": v.modifyTime,
		"modifyUser": v.modifyUser,
	}, "")
}

// defaultValue returns the template default in read shape.
func (s *Server) defaultValue(d setting.Descriptor) json.RawMessage {
	if def, ok := s.defaults[d.Key]; ok {
		return def
	}
	switch d.Syntax {
	case setting.SyntaxPassword, setting.SyntaxPrivateKey:
		return json.RawMessage(`{"present":false}`)
	default:
		return json.RawMessage(`null`)
	}
}

func (s *Server) isDefault(key string, v json.RawMessage) bool {
	def, ok := s.defaults[key]
	return ok && string(def) == string(v)
}

func (s *Server) writeSetting(c *gin.Context) {
	d, k, found := s.lookup(c)
	if !found {
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		fail(c, CodeBadRequest, "failed to read body", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	value, hashes, err := s.accept(d, k, body)
	if err != nil {
		fail(c, CodeInvalidValue, err.Error(), d.Key)
		return
	}
	s.values[k] = stored{value: value, modifyTime: time.Now().UTC(), modifyUser: s.user}
	if hashes != nil {
		s.secrets[k] = hashes
	}
	respond(c, gin.H{"isDefault": s.isDefault(d.Key, value)}, fmt.Sprintf("%s saved", d.Label))
}

func (s *Server) resetSetting(c *gin.Context) {
	d, k, found := s.lookup(c)
	if !found {
		return
	}
	s.mu.Lock()
	delete(s.values, k)
	delete(s.secrets, k)
	s.mu.Unlock()
	respond(c, nil, fmt.Sprintf("%s reset", d.Label))
}

type executeBody struct {
	Setting   string          `json:"setting"`
	Function  string          `json:"function"`
	Profile   string          `json:"profile"`
	ExtraData json.RawMessage `json:"extraData"`
}

func (s *Server) executeFunction(c *gin.Context) {
	var body executeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, CodeBadRequest, "invalid request body", err.Error())
		return
	}
	d, err := s.catalog.Setting(body.Setting)
	if err != nil {
		fail(c, CodeUnknownSetting, err.Error(), "")
		return
	}
	k := storeKey{key: d.Key, profile: body.Profile}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch body.Function {
	case "sortValues":
		if d.Syntax != setting.SyntaxStringArray {
			fail(c, CodeUnknownFunction, "sortValues applies to string arrays only", d.Key)
			return
		}
		var values []string
		raw := s.defaultValue(d)
		if v, ok := s.values[k]; ok {
			raw = v.value
		}
		if err := json.Unmarshal(raw, &values); err != nil {
			fail(c, CodeBadRequest, "stored value is not a string array", err.Error())
			return
		}
		sort.Strings(values)
		sorted, err := json.Marshal(values)
		if err != nil {
			fail(c, CodeBadRequest, "failed to encode sorted values", err.Error())
			return
		}
		s.values[k] = stored{value: sorted, modifyTime: time.Now().UTC(), modifyUser: s.user}
		respond(c, values, fmt.Sprintf("%d values sorted", len(values)))
	case "clearProfile":
		profile := body.Profile
		if len(body.ExtraData) > 0 {
			var extra struct {
				Profile string `json:"profile"`
			}
			if err := json.Unmarshal(body.ExtraData, &extra); err != nil {
				fail(c, CodeBadRequest, "invalid extraData", err.Error())
				return
			}
			if extra.Profile != "" {
				profile = extra.Profile
			}
		}
		if profile == "" {
			fail(c, CodeBadRequest, "clearProfile needs a profile", "")
			return
		}
		n := 0
		for sk := range s.values {
			if sk.profile == profile {
				delete(s.values, sk)
				delete(s.secrets, sk)
				n++
			}
		}
		respond(c, gin.H{"cleared": n}, fmt.Sprintf("%d values cleared for profile %s", n, profile))
	default:
		fail(c, CodeUnknownFunction, fmt.Sprintf("unknown function %q", body.Function), "")
	}
}

type filterBody struct {
	ModifiedOnly bool `json:"modifiedSettingsOnly"`
	Level        *int `json:"settingLevel"`
}

func (s *Server) visible(d setting.Descriptor, f filterBody, profile string) bool {
	if d.HasFlag(setting.FlagHidden) {
		return false
	}
	level := constants.MaxLevel
	if f.Level != nil {
		level = *f.Level
	}
	if d.Level > level {
		return false
	}
	if f.ModifiedOnly {
		_, modified := s.values[storeKey{key: d.Key, profile: profile}]
		return modified
	}
	return true
}

// navNode mirrors the menuTreeData entry shape.
type navNode struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Parent   string `json:"parent,omitempty"`
	Type     string `json:"type"`
	Category string `json:"category,omitempty"`
	Profile  string `json:"profile,omitempty"`
}

func (s *Server) profiles(category string) ([]string, error) {
	for _, d := range s.catalog.SettingsInCategory(category) {
		if d.Syntax != setting.SyntaxProfile {
			continue
		}
		var ids []string
		raw := s.defaultValue(d)
		if v, ok := s.values[storeKey{key: d.Key}]; ok {
			raw = v.value
		}
		if err := json.Unmarshal(raw, &ids); err != nil {
			return nil, fmt.Errorf("profile list %s: %w", d.Key, err)
		}
		return ids, nil
	}
	return nil, nil
}

func (s *Server) menuTreeData(c *gin.Context) {
	var f filterBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&f); err != nil {
			fail(c, CodeBadRequest, "invalid request body", err.Error())
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.data.Categories))
	for k := range s.data.Categories {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// a category is listed when it or a descendant has a visible setting
	show := make(map[string]bool)
	profiles := make(map[string][]string)
	for _, key := range keys {
		cat := s.data.Categories[key]
		listed := false
		for _, d := range s.catalog.SettingsInCategory(key) {
			if s.visible(d, f, "") {
				listed = true
				break
			}
		}
		if cat.Profiled {
			ids, err := s.profiles(key)
			if err != nil {
				fail(c, CodeBadRequest, "failed to read profiles", err.Error())
				return
			}
			profiles[key] = ids
			listed = listed || len(ids) > 0
		}
		if !listed {
			continue
		}
		for k := key; k != "" && !show[k]; k = s.data.Categories[k].Parent {
			show[k] = true
		}
	}

	nodes := []navNode{{ID: "ROOT", Name: "Settings", Type: "navigation"}}
	for _, key := range keys {
		if !show[key] {
			continue
		}
		cat := s.data.Categories[key]
		parent := cat.Parent
		if parent == "" {
			parent = "ROOT"
		}
		nodes = append(nodes, navNode{ID: key, Name: cat.Label, Parent: parent, Type: "category", Category: key})
		if !cat.Profiled {
			continue
		}
		for _, p := range profiles[key] {
			nodes = append(nodes, navNode{
				ID: key + "-" + p, Name: p, Parent: key, Type: "profile", Category: key, Profile: p,
			})
		}
	}
	respond(c, nodes, "")
}

func (s *Server) search(c *gin.Context) {
	var body struct {
		Search string `json:"search"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, CodeBadRequest, "invalid request body", err.Error())
		return
	}
	term := strings.ToLower(strings.TrimSpace(body.Search))
	results := make(map[string][]gin.H)
	if term == "" {
		respond(c, results, "")
		return
	}
	for _, key := range s.catalog.Keys() {
		d, _ := s.catalog.Setting(key)
		if d.HasFlag(setting.FlagHidden) {
			continue
		}
		hay := strings.ToLower(d.Key + "\n" + d.Label + "\n" + d.Description)
		if !strings.Contains(hay, term) {
			continue
		}
		group := d.Category
		if cat, ok := s.catalog.Category(d.Category); ok && cat.Label != "" {
			group = cat.Label
		}
		results[group] = append(results[group], gin.H{
			"key":         d.Key,
			"label":       d.Label,
			"category":    d.Category,
			"description": d.Description,
		})
	}
	respond(c, results, "")
}
