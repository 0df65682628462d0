// Package i18n provides localized display strings.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/dongho-jung/pwmcfg/internal/logging"
)

//go:embed locales/*.yaml
var localeFS embed.FS

var (
	bundleOnce sync.Once
	bundle     *goi18n.Bundle
	bundleErr  error
	languages  []string
)

func loadBundle() (*goi18n.Bundle, error) {
	bundleOnce.Do(func() {
		b := goi18n.NewBundle(language.English)
		b.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

		entries, err := fs.ReadDir(localeFS, "locales")
		if err != nil {
			bundleErr = fmt.Errorf("failed to read locales: %w", err)
			return
		}
		for _, e := range entries {
			if _, err := b.LoadMessageFileFS(localeFS, path.Join("locales", e.Name())); err != nil {
				bundleErr = fmt.Errorf("failed to load %s: %w", e.Name(), err)
				return
			}
			languages = append(languages, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
		}
		sort.Strings(languages)
		bundle = b
	})
	return bundle, bundleErr
}

// Languages returns the codes of the embedded message files.
func Languages() []string {
	if _, err := loadBundle(); err != nil {
		return nil
	}
	return append([]string(nil), languages...)
}

// Translator renders messages for one language with English fallback.
type Translator struct {
	lang      string
	localizer *goi18n.Localizer
}

// New creates a translator for lang (a BCP 47 tag such as "de" or "de-CH").
func New(lang string) (*Translator, error) {
	b, err := loadBundle()
	if err != nil {
		return nil, err
	}
	if lang == "" {
		lang = "en"
	}
	if _, err := language.Parse(lang); err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", lang, err)
	}
	return &Translator{
		lang:      lang,
		localizer: goi18n.NewLocalizer(b, lang, "en"),
	}, nil
}

// Lang returns the requested language.
func (t *Translator) Lang() string {
	return t.lang
}

// T renders message id with optional template data. Unknown ids render as
// the id itself.
func (t *Translator) T(id string, data ...map[string]any) string {
	if t == nil || t.localizer == nil {
		return id
	}
	cfg := &goi18n.LocalizeConfig{MessageID: id}
	if len(data) > 0 {
		cfg.TemplateData = data[0]
	}
	msg, err := t.localizer.Localize(cfg)
	if err != nil {
		logging.Trace("i18n: %s: %v", id, err)
		return id
	}
	return msg
}

var (
	globalMu sync.RWMutex
	global   *Translator
)

// SetLanguage installs the global translator. Invalid languages fall back to English.
func SetLanguage(lang string) {
	t, err := New(lang)
	if err != nil {
		logging.Warn("i18n: %v, using English", err)
		t, _ = New("en")
	}
	globalMu.Lock()
	global = t
	globalMu.Unlock()
}

// T renders a message with the global translator.
func T(id string, data ...map[string]any) string {
	globalMu.RLock()
	t := global
	globalMu.RUnlock()
	if t == nil {
		SetLanguage("en")
		globalMu.RLock()
		t = global
		globalMu.RUnlock()
	}
	return t.T(id, data...)
}
