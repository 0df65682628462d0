// Package setting defines setting descriptors, categories and the catalog
// loaded from the server at bootstrap.
package setting

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownSetting is returned when a key is not in the catalog.
var ErrUnknownSetting = errors.New("unknown setting")

// Syntax is the value type tag of a setting.
type Syntax string

const (
	SyntaxString               Syntax = "STRING"
	SyntaxTextArea             Syntax = "TEXT_AREA"
	SyntaxNumeric              Syntax = "NUMERIC"
	SyntaxDuration             Syntax = "DURATION"
	SyntaxBoolean              Syntax = "BOOLEAN"
	SyntaxSelect               Syntax = "SELECT"
	SyntaxOptionList           Syntax = "OPTIONLIST"
	SyntaxStringArray          Syntax = "STRING_ARRAY"
	SyntaxForm                 Syntax = "FORM"
	SyntaxAction               Syntax = "ACTION"
	SyntaxPermission           Syntax = "PERMISSION"
	SyntaxProfile              Syntax = "PROFILE"
	SyntaxLocalizedString      Syntax = "LOCALIZED_STRING"
	SyntaxLocalizedTextArea    Syntax = "LOCALIZED_TEXT_AREA"
	SyntaxLocalizedStringArray Syntax = "LOCALIZED_STRING_ARRAY"
	SyntaxEmail                Syntax = "EMAIL"
	SyntaxVerificationMethod   Syntax = "VERIFICATION_METHOD"
	SyntaxPassword             Syntax = "PASSWORD"
	SyntaxNamedSecret          Syntax = "NAMED_SECRET"
	SyntaxX509Cert             Syntax = "X509CERT"
	SyntaxPrivateKey           Syntax = "PRIVATE_KEY"
	SyntaxFile                 Syntax = "FILE"
)

// Syntaxes returns every known syntax.
func Syntaxes() []Syntax {
	return []Syntax{
		SyntaxString, SyntaxTextArea, SyntaxNumeric, SyntaxDuration, SyntaxBoolean,
		SyntaxSelect, SyntaxOptionList, SyntaxStringArray, SyntaxForm, SyntaxAction,
		SyntaxPermission, SyntaxProfile, SyntaxLocalizedString, SyntaxLocalizedTextArea,
		SyntaxLocalizedStringArray, SyntaxEmail, SyntaxVerificationMethod, SyntaxPassword,
		SyntaxNamedSecret, SyntaxX509Cert, SyntaxPrivateKey, SyntaxFile,
	}
}

// Secret reports whether values of this syntax must never be displayed.
func (s Syntax) Secret() bool {
	switch s {
	case SyntaxPassword, SyntaxNamedSecret, SyntaxPrivateKey:
		return true
	}
	return false
}

// Flags understood by the console.
const (
	FlagReloadEditorOnModify = "ReloadEditorOnModify"
	FlagSensitive            = "Sensitive"
	FlagDeprecated           = "Deprecated"
	FlagHidden               = "Hidden"
	FlagProfileScoped        = "ProfileScoped"
)

// Property keys.
const (
	PropMinimum  = "Minimum"
	PropMaximum  = "Maximum"
	PropMinValue = "MinValue"
	PropMaxValue = "MaxValue"
)

// Descriptor describes a single setting. Immutable after bootstrap.
type Descriptor struct {
	Key         string            `json:"key" yaml:"key"`
	Syntax      Syntax            `json:"syntax" yaml:"syntax"`
	Category    string            `json:"category" yaml:"category"`
	Label       string            `json:"label" yaml:"label"`
	Description string            `json:"description,omitempty" yaml:"description"`
	Level       int               `json:"level" yaml:"level"`
	Flags       []string          `json:"flags,omitempty" yaml:"flags"`
	Pattern     string            `json:"pattern,omitempty" yaml:"pattern"`
	Options     map[string]string `json:"options,omitempty" yaml:"options"`
	Properties  map[string]string `json:"properties,omitempty" yaml:"properties"`
	Required    bool              `json:"required,omitempty" yaml:"required"`
	Placeholder string            `json:"placeholder,omitempty" yaml:"placeholder"`
}

// HasFlag reports whether the descriptor carries flag.
func (d Descriptor) HasFlag(flag string) bool {
	for _, f := range d.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// IntProperty returns a numeric property. ok is false when the property is
// missing or not an integer.
func (d Descriptor) IntProperty(name string) (v int64, ok bool) {
	raw, exists := d.Properties[name]
	if !exists {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	return v, err == nil
}

// OptionKeys returns the option keys in sorted order.
func (d Descriptor) OptionKeys() []string {
	keys := make([]string, 0, len(d.Options))
	for k := range d.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Category groups settings in the navigation tree.
type Category struct {
	Key         string `json:"key" yaml:"key"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description,omitempty" yaml:"description"`
	Level       int    `json:"level" yaml:"level"`
	Parent      string `json:"parent,omitempty" yaml:"parent"`
	Profiled    bool   `json:"profiled,omitempty" yaml:"profiled"`
}

// Catalog is the full descriptor set loaded at bootstrap.
type Catalog struct {
	settings      map[string]Descriptor
	categories    map[string]Category
	locales       map[string]string
	defaultLocale string
	formID        string
}

// CatalogData is the settingData wire shape.
type CatalogData struct {
	Settings   map[string]Descriptor `json:"settings"`
	Categories map[string]Category   `json:"categories"`
	Locales    map[string]string     `json:"locales"`
	Var        struct {
		DefaultLocale string `json:"defaultLocale"`
		FormID        string `json:"formID,omitempty"`
	} `json:"var"`
}

// NewCatalog builds a catalog from decoded settingData.
func NewCatalog(data CatalogData) *Catalog {
	c := &Catalog{
		settings:      make(map[string]Descriptor, len(data.Settings)),
		categories:    make(map[string]Category, len(data.Categories)),
		locales:       make(map[string]string, len(data.Locales)),
		defaultLocale: data.Var.DefaultLocale,
		formID:        data.Var.FormID,
	}
	for k, d := range data.Settings {
		if d.Key == "" {
			d.Key = k
		}
		c.settings[d.Key] = d
	}
	for k, cat := range data.Categories {
		if cat.Key == "" {
			cat.Key = k
		}
		c.categories[cat.Key] = cat
	}
	for k, v := range data.Locales {
		c.locales[k] = v
	}
	return c
}

// ParseCatalog decodes settingData JSON.
func ParseCatalog(raw json.RawMessage) (*Catalog, error) {
	var data CatalogData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse setting catalog: %w", err)
	}
	return NewCatalog(data), nil
}

// Setting looks up a descriptor.
func (c *Catalog) Setting(key string) (Descriptor, error) {
	d, ok := c.settings[key]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	return d, nil
}

// Category looks up a category.
func (c *Catalog) Category(key string) (Category, bool) {
	cat, ok := c.categories[key]
	return cat, ok
}

// Keys returns every setting key, sorted.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.settings))
	for k := range c.settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SettingsInCategory returns the descriptors of a category ordered by label.
// Hidden settings are skipped.
func (c *Catalog) SettingsInCategory(category string) []Descriptor {
	var out []Descriptor
	for _, d := range c.settings {
		if d.Category == category && !d.HasFlag(FlagHidden) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Locales returns the supported locale codes, sorted. The default locale is
// not included.
func (c *Catalog) Locales() []string {
	out := make([]string, 0, len(c.locales))
	for k := range c.locales {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LocaleName returns the display name of a locale code.
func (c *Catalog) LocaleName(code string) string {
	if name, ok := c.locales[code]; ok {
		return name
	}
	return code
}

// DefaultLocale returns the server-declared default locale.
func (c *Catalog) DefaultLocale() string {
	return c.defaultLocale
}

// FormID returns the form id delivered with the catalog, if any.
func (c *Catalog) FormID() string {
	return c.formID
}

// Len returns the number of settings.
func (c *Catalog) Len() int {
	return len(c.settings)
}
