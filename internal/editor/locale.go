package editor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dongho-jung/pwmcfg/internal/constants"
	"github.com/dongho-jung/pwmcfg/internal/i18n"
	"github.com/dongho-jung/pwmcfg/internal/setting"
)

// LocaleEditor edits settings holding one value per locale. The default
// locale is the empty string.
type LocaleEditor[T any] struct {
	*valueEditor[map[string]T]
	summary func(T) string
}

func newLocaleEditor[T any](b Backend, d setting.Descriptor, summary func(T) string, check func(string, T) error) *LocaleEditor[T] {
	e := &LocaleEditor[T]{valueEditor: newValueEditor[map[string]T](b, d), summary: summary}
	e.validate = func(v map[string]T) error {
		if check != nil {
			for _, loc := range sortedLocales(v) {
				if err := check(loc, v[loc]); err != nil {
					return err
				}
			}
		}
		return nil
	}
	e.format = func(v map[string]T) []string {
		if len(v) == 0 {
			return []string{i18n.T("editor.list.empty")}
		}
		var lines []string
		for _, loc := range sortedLocales(v) {
			name := loc
			if name == "" {
				name = i18n.T("editor.locale.default")
			}
			lines = append(lines, fmt.Sprintf("%s: %s", name,
				constants.TruncateWithWidth(e.summary(v[loc]), constants.MaxValueWidth)))
		}
		return lines
	}
	return e
}

// sortedLocales returns the locales of v with the default locale first.
func sortedLocales[T any](v map[string]T) []string {
	out := make([]string, 0, len(v))
	for loc := range v {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

// Locales returns the locales that have a value, default first.
func (e *LocaleEditor[T]) Locales() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sortedLocales(e.value)
}

// Get returns the value for locale.
func (e *LocaleEditor[T]) Get(locale string) (T, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.value[locale]
	return clone(v), ok
}

// Set stores v for locale.
func (e *LocaleEditor[T]) Set(ctx context.Context, locale string, v T) error {
	return e.update(ctx, func(cur map[string]T) (map[string]T, error) {
		if cur == nil {
			cur = make(map[string]T)
		}
		cur[locale] = v
		return cur, nil
	})
}

// Delete removes the value for locale. The default locale of a required
// setting can only be removed once it is the last one.
func (e *LocaleEditor[T]) Delete(ctx context.Context, locale string) error {
	return e.update(ctx, func(cur map[string]T) (map[string]T, error) {
		if _, ok := cur[locale]; !ok {
			return nil, invalid("no value for locale %q", locale)
		}
		if locale == "" && e.desc.Required && len(cur) > 1 {
			return nil, ErrDefaultLocaleRequired
		}
		delete(cur, locale)
		return cur, nil
	})
}

// Text returns the value of locale in the form SetText accepts.
func (e *LocaleEditor[T]) Text(locale string) string {
	v, ok := e.Get(locale)
	if !ok {
		return ""
	}
	return textOf(v)
}

// SetText stores a value given as text for locale.
func (e *LocaleEditor[T]) SetText(ctx context.Context, locale, text string) error {
	v, err := coerce[T](text, nil)
	if err != nil {
		return err
	}
	return e.Set(ctx, locale, v)
}

// NewLocalizedStringEditor creates a LOCALIZED_STRING or LOCALIZED_TEXT_AREA editor.
func NewLocalizedStringEditor(b Backend, d setting.Descriptor) *LocaleEditor[string] {
	item := NewStringEditor(b, d)
	return newLocaleEditor(b, d, func(s string) string {
		return strings.ReplaceAll(s, "\n", " ")
	}, func(loc, s string) error {
		if err := item.check(s); err != nil {
			return fmt.Errorf("locale %q: %w", loc, err)
		}
		return nil
	})
}

// NewLocalizedStringArrayEditor creates a LOCALIZED_STRING_ARRAY editor.
func NewLocalizedStringArrayEditor(b Backend, d setting.Descriptor) *LocaleEditor[[]string] {
	return newLocaleEditor(b, d, func(v []string) string {
		return strings.Join(v, ", ")
	}, nil)
}

// NewEmailEditor creates an EMAIL editor.
func NewEmailEditor(b Backend, d setting.Descriptor) *LocaleEditor[setting.EmailItem] {
	return newLocaleEditor(b, d, func(m setting.EmailItem) string {
		return fmt.Sprintf("%s -> %s: %s", m.From, m.To, m.Subject)
	}, func(loc string, m setting.EmailItem) error {
		if m.Subject == "" && (m.BodyPlain != "" || m.BodyHTML != "") {
			return invalid("locale %q: subject is required when a body is set", loc)
		}
		return nil
	})
}
