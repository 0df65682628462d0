package editor

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dongho-jung/pwmcfg/internal/constants"
	"github.com/dongho-jung/pwmcfg/internal/logging"
	"github.com/dongho-jung/pwmcfg/internal/setting"
)

// StringEditor edits STRING and TEXT_AREA settings.
type StringEditor struct {
	*valueEditor[string]
	pattern *regexp.Regexp
}

// NewStringEditor creates a string editor. The descriptor pattern must match
// the whole value; Minimum and Maximum bound its length in characters.
func NewStringEditor(b Backend, d setting.Descriptor) *StringEditor {
	e := &StringEditor{valueEditor: newValueEditor[string](b, d)}
	if d.Pattern != "" {
		re, err := regexp.Compile(`^(?:` + d.Pattern + `)$`)
		if err != nil {
			logging.Warn("StringEditor: ignoring invalid pattern for %s: %v", d.Key, err)
		} else {
			e.pattern = re
		}
	}
	e.validate = e.check
	e.format = func(v string) []string {
		if d.HasFlag(setting.FlagSensitive) && v != "" {
			return []string{strings.Repeat("*", 8)}
		}
		return strings.Split(v, "\n")
	}
	return e
}

func (e *StringEditor) check(v string) error {
	d := e.desc
	if d.Required && v == "" {
		return invalid("%s is required", d.Label)
	}
	n := int64(utf8.RuneCountInString(v))
	if minLen, ok := d.IntProperty(setting.PropMinimum); ok && v != "" && n < minLen {
		return invalid("must be at least %d characters", minLen)
	}
	if maxLen, ok := d.IntProperty(setting.PropMaximum); ok && maxLen > 0 && n > maxLen {
		return invalid("must be at most %d characters", maxLen)
	}
	if e.pattern != nil && v != "" && !e.pattern.MatchString(v) {
		return invalid("does not match pattern %s", d.Pattern)
	}
	return nil
}

// NumericEditor edits NUMERIC settings.
type NumericEditor struct {
	*valueEditor[int64]
}

// NewNumericEditor creates a numeric editor bounded by the Minimum/Maximum
// (or MinValue/MaxValue) properties.
func NewNumericEditor(b Backend, d setting.Descriptor) *NumericEditor {
	e := &NumericEditor{valueEditor: newValueEditor[int64](b, d)}
	e.parse = func(s string) (int64, error) {
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, invalid("%q is not a number", s)
		}
		return v, nil
	}
	e.validate = func(v int64) error { return checkRange(d, v) }
	e.format = func(v int64) []string { return []string{strconv.FormatInt(v, 10)} }
	return e
}

// Write accepts any integer type in addition to the common forms.
func (e *NumericEditor) Write(ctx context.Context, value any) error {
	if v, ok := toInt64(value); ok {
		value = v
	}
	return e.valueEditor.Write(ctx, value)
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint32:
		return int64(v), true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	}
	return 0, false
}

func checkRange(d setting.Descriptor, v int64) error {
	lo, hasMin := d.IntProperty(setting.PropMinimum)
	if !hasMin {
		lo, hasMin = d.IntProperty(setting.PropMinValue)
	}
	hi, hasMax := d.IntProperty(setting.PropMaximum)
	if !hasMax {
		hi, hasMax = d.IntProperty(setting.PropMaxValue)
	}
	if hasMin && v < lo {
		return invalid("must be at least %d", lo)
	}
	if hasMax && hi > 0 && v > hi {
		return invalid("must be at most %d", hi)
	}
	return nil
}

// DurationEditor edits DURATION settings. Values are whole seconds.
type DurationEditor struct {
	*valueEditor[int64]
}

// NewDurationEditor creates a duration editor. Text input accepts plain
// seconds, Go durations ("90s", "1h30m") and days ("2d").
func NewDurationEditor(b Backend, d setting.Descriptor) *DurationEditor {
	e := &DurationEditor{valueEditor: newValueEditor[int64](b, d)}
	e.parse = ParseDuration
	e.validate = func(v int64) error {
		if v < 0 {
			return invalid("duration must not be negative")
		}
		return checkRange(d, v)
	}
	e.format = func(v int64) []string { return []string{FormatDuration(v)} }
	return e
}

// Write accepts time.Duration and integer seconds in addition to the common forms.
func (e *DurationEditor) Write(ctx context.Context, value any) error {
	if dur, ok := value.(time.Duration); ok {
		value = int64(dur / time.Second)
	} else if v, ok := toInt64(value); ok {
		value = v
	}
	return e.valueEditor.Write(ctx, value)
}

// ParseDuration parses a duration in seconds.
func ParseDuration(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, invalid("empty duration")
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	if strings.HasSuffix(s, "d") {
		days, err := strconv.ParseInt(strings.TrimSuffix(s, "d"), 10, 64)
		if err != nil {
			return 0, invalid("%q is not a duration", s)
		}
		return days * 86400, nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return 0, invalid("%q is not a duration", s)
	}
	return int64(dur / time.Second), nil
}

// FormatDuration renders seconds as "1d 2h 3m 4s".
func FormatDuration(seconds int64) string {
	if seconds == 0 {
		return "0s"
	}
	var parts []string
	units := []struct {
		suffix string
		size   int64
	}{{"d", 86400}, {"h", 3600}, {"m", 60}, {"s", 1}}
	rest := seconds
	if rest < 0 {
		rest = -rest
	}
	for _, u := range units {
		if n := rest / u.size; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
			rest %= u.size
		}
	}
	out := strings.Join(parts, " ")
	if seconds < 0 {
		out = "-" + out
	}
	return out
}

// BooleanEditor edits BOOLEAN settings.
type BooleanEditor struct {
	*valueEditor[bool]
}

// NewBooleanEditor creates a boolean editor.
func NewBooleanEditor(b Backend, d setting.Descriptor) *BooleanEditor {
	e := &BooleanEditor{valueEditor: newValueEditor[bool](b, d)}
	e.parse = func(s string) (bool, error) {
		v, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return false, invalid("%q is not a boolean", s)
		}
		return v, nil
	}
	e.format = func(v bool) []string { return []string{strconv.FormatBool(v)} }
	return e
}

// Toggle flips the value.
func (e *BooleanEditor) Toggle(ctx context.Context) error {
	return e.update(ctx, func(cur bool) (bool, error) { return !cur, nil })
}

// SelectEditor edits SELECT settings.
type SelectEditor struct {
	*valueEditor[string]
}

// NewSelectEditor creates a select editor restricted to the descriptor options.
func NewSelectEditor(b Backend, d setting.Descriptor) *SelectEditor {
	e := &SelectEditor{valueEditor: newValueEditor[string](b, d)}
	e.validate = func(v string) error {
		if _, ok := d.Options[v]; !ok {
			return invalid("%q is not one of %s", v, strings.Join(d.OptionKeys(), ", "))
		}
		return nil
	}
	e.format = func(v string) []string {
		if label, ok := d.Options[v]; ok && label != "" && label != v {
			return []string{fmt.Sprintf("%s (%s)", label, v)}
		}
		return []string{v}
	}
	return e
}

// Next selects the option after the current one.
func (e *SelectEditor) Next(ctx context.Context) error {
	return e.step(ctx, 1)
}

// Prev selects the option before the current one.
func (e *SelectEditor) Prev(ctx context.Context) error {
	return e.step(ctx, -1)
}

func (e *SelectEditor) step(ctx context.Context, delta int) error {
	keys := e.desc.OptionKeys()
	if len(keys) == 0 {
		return invalid("%s has no options", e.desc.Label)
	}
	return e.update(ctx, func(cur string) (string, error) {
		idx := sort.SearchStrings(keys, cur)
		if idx >= len(keys) || keys[idx] != cur {
			idx = -1
			if delta < 0 {
				idx = 0
			}
		}
		return keys[((idx+delta)%len(keys)+len(keys))%len(keys)], nil
	})
}

// OptionListEditor edits OPTIONLIST settings: a set of option keys.
type OptionListEditor struct {
	*valueEditor[[]string]
}

// NewOptionListEditor creates an option list editor.
func NewOptionListEditor(b Backend, d setting.Descriptor) *OptionListEditor {
	e := &OptionListEditor{valueEditor: newValueEditor[[]string](b, d)}
	e.validate = func(v []string) error {
		for _, o := range v {
			if _, ok := d.Options[o]; !ok {
				return invalid("%q is not a valid option", o)
			}
		}
		return nil
	}
	e.format = func(v []string) []string {
		lines := make([]string, 0, len(d.Options))
		selected := make(map[string]bool, len(v))
		for _, o := range v {
			selected[o] = true
		}
		for _, k := range d.OptionKeys() {
			mark := "[ ]"
			if selected[k] {
				mark = "[x]"
			}
			lines = append(lines, fmt.Sprintf("%s %s", mark, constants.TruncateWithWidth(d.Options[k], constants.MaxValueWidth)))
		}
		return lines
	}
	return e
}

// Toggle adds or removes option.
func (e *OptionListEditor) Toggle(ctx context.Context, option string) error {
	return e.update(ctx, func(cur []string) ([]string, error) {
		out := make([]string, 0, len(cur)+1)
		found := false
		for _, o := range cur {
			if o == option {
				found = true
				continue
			}
			out = append(out, o)
		}
		if !found {
			out = append(out, option)
		}
		sort.Strings(out)
		return out, nil
	})
}
