package editor

import (
	"context"
	"fmt"
	"strings"

	"github.com/dongho-jung/pwmcfg/internal/constants"
	"github.com/dongho-jung/pwmcfg/internal/i18n"
	"github.com/dongho-jung/pwmcfg/internal/setting"
)

// ListEditor edits settings whose value is an ordered list. Every list
// operation computes the new slice and writes it in the same step, so an
// index always refers to the list that was last rendered.
type ListEditor[T any] struct {
	*valueEditor[[]T]
	label func(T) string
}

func newListEditor[T any](b Backend, d setting.Descriptor, label func(T) string, check func([]T) error) *ListEditor[T] {
	e := &ListEditor[T]{valueEditor: newValueEditor[[]T](b, d), label: label}
	e.validate = func(v []T) error {
		if d.Required && len(v) == 0 {
			return invalid("%s requires at least one entry", d.Label)
		}
		if check != nil {
			return check(v)
		}
		return nil
	}
	e.format = func(v []T) []string {
		if len(v) == 0 {
			return []string{i18n.T("editor.list.empty")}
		}
		lines := make([]string, len(v))
		for i, item := range v {
			lines[i] = fmt.Sprintf("%d. %s", i+1, constants.TruncateWithWidth(e.label(item), constants.MaxValueWidth))
		}
		return lines
	}
	return e
}

// Items returns a copy of the rendered list.
func (e *ListEditor[T]) Items() []T {
	return e.Value()
}

// Len returns the number of rendered entries.
func (e *ListEditor[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.value)
}

// Add appends item.
func (e *ListEditor[T]) Add(ctx context.Context, item T) error {
	return e.update(ctx, func(cur []T) ([]T, error) {
		return append(cur, item), nil
	})
}

// Update replaces the entry at i.
func (e *ListEditor[T]) Update(ctx context.Context, i int, item T) error {
	return e.update(ctx, func(cur []T) ([]T, error) {
		return replaceAt(cur, i, item)
	})
}

// Remove deletes the entry at i; later entries shift down by one.
func (e *ListEditor[T]) Remove(ctx context.Context, i int) error {
	return e.update(ctx, func(cur []T) ([]T, error) {
		return removeAt(cur, i)
	})
}

// MoveUp swaps the entry at i with the one before it.
func (e *ListEditor[T]) MoveUp(ctx context.Context, i int) error {
	return e.update(ctx, func(cur []T) ([]T, error) {
		return swap(cur, i, i-1)
	})
}

// MoveDown swaps the entry at i with the one after it.
func (e *ListEditor[T]) MoveDown(ctx context.Context, i int) error {
	return e.update(ctx, func(cur []T) ([]T, error) {
		return swap(cur, i, i+1)
	})
}

// ItemText returns entry i in the form AddText and UpdateText accept.
func (e *ListEditor[T]) ItemText(i int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.value) {
		return "", fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return textOf(e.value[i]), nil
}

// AddText appends an entry given as text: the string itself for string
// lists, JSON for structured entries.
func (e *ListEditor[T]) AddText(ctx context.Context, text string) error {
	item, err := coerce[T](text, nil)
	if err != nil {
		return err
	}
	return e.Add(ctx, item)
}

// UpdateText replaces entry i with one given as text.
func (e *ListEditor[T]) UpdateText(ctx context.Context, i int, text string) error {
	item, err := coerce[T](text, nil)
	if err != nil {
		return err
	}
	return e.Update(ctx, i, item)
}

func replaceAt[T any](s []T, i int, item T) ([]T, error) {
	if i < 0 || i >= len(s) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	s[i] = item
	return s, nil
}

func removeAt[T any](s []T, i int) ([]T, error) {
	if i < 0 || i >= len(s) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	out := make([]T, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...), nil
}

func swap[T any](s []T, i, j int) ([]T, error) {
	if i < 0 || i >= len(s) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	if j < 0 || j >= len(s) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, j)
	}
	s[i], s[j] = s[j], s[i]
	return s, nil
}

// NewStringArrayEditor creates a STRING_ARRAY editor. Entries follow the
// descriptor pattern when one is set.
func NewStringArrayEditor(b Backend, d setting.Descriptor) *ListEditor[string] {
	item := NewStringEditor(b, d)
	return newListEditor(b, d, func(s string) string { return s }, func(v []string) error {
		for i, s := range v {
			if s == "" {
				return invalid("entry %d is empty", i+1)
			}
			if item.pattern != nil && !item.pattern.MatchString(s) {
				return invalid("entry %d does not match pattern %s", i+1, d.Pattern)
			}
		}
		return nil
	})
}

// NewProfileEditor creates a PROFILE editor. Profile ids must be unique.
func NewProfileEditor(b Backend, d setting.Descriptor) *ListEditor[string] {
	return newListEditor(b, d, func(s string) string { return s }, func(v []string) error {
		return unique(v, func(s string) string { return s }, "profile")
	})
}

// NewFormEditor creates a FORM editor. Field names must be unique.
func NewFormEditor(b Backend, d setting.Descriptor) *ListEditor[setting.FormRow] {
	return newListEditor(b, d, func(r setting.FormRow) string {
		label := r.Labels[""]
		if label == "" {
			return fmt.Sprintf("%s (%s)", r.Name, r.Type)
		}
		return fmt.Sprintf("%s (%s) %s", r.Name, r.Type, label)
	}, func(v []setting.FormRow) error {
		for _, r := range v {
			if r.Minimum > 0 && r.Maximum > 0 && r.Minimum > r.Maximum {
				return invalid("field %s: minimum length exceeds maximum", r.Name)
			}
		}
		return unique(v, func(r setting.FormRow) string { return r.Name }, "field")
	})
}

// NewActionEditor creates an ACTION editor.
func NewActionEditor(b Backend, d setting.Descriptor) *ListEditor[setting.ActionRow] {
	return newListEditor(b, d, func(r setting.ActionRow) string {
		target := r.URL
		if r.Type == "ldap" {
			target = r.Attribute
		}
		return strings.TrimSpace(fmt.Sprintf("%s [%s] %s", r.Name, r.Type, target))
	}, func(v []setting.ActionRow) error {
		for _, r := range v {
			switch r.Type {
			case "webservice", "ldap":
			default:
				return invalid("action %s: unknown type %q", r.Name, r.Type)
			}
		}
		return unique(v, func(r setting.ActionRow) string { return r.Name }, "action")
	})
}

// NewPermissionEditor creates a PERMISSION editor.
func NewPermissionEditor(b Backend, d setting.Descriptor) *ListEditor[setting.Permission] {
	return newListEditor(b, d, func(p setting.Permission) string {
		profile := p.ProfileID
		if profile == "" {
			profile = "all"
		}
		return fmt.Sprintf("%s %s: %s", p.Type, profile, p.Query)
	}, func(v []setting.Permission) error {
		for i, p := range v {
			if p.Query == "" {
				return invalid("permission %d has no query", i+1)
			}
		}
		return nil
	})
}

func unique[T any](v []T, name func(T) string, what string) error {
	seen := make(map[string]bool, len(v))
	for _, item := range v {
		n := name(item)
		if n == "" {
			return invalid("%s name is empty", what)
		}
		if seen[n] {
			return invalid("duplicate %s %q", what, n)
		}
		seen[n] = true
	}
	return nil
}
