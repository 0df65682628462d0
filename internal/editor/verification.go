package editor

import (
	"context"
	"fmt"
	"sort"

	"github.com/dongho-jung/pwmcfg/internal/setting"
)

// VerificationEditor edits VERIFICATION_METHOD settings.
type VerificationEditor struct {
	*valueEditor[setting.VerificationMethods]
}

// NewVerificationEditor creates a verification method editor. Only methods
// listed in the descriptor options may be configured.
func NewVerificationEditor(b Backend, d setting.Descriptor) *VerificationEditor {
	e := &VerificationEditor{valueEditor: newValueEditor[setting.VerificationMethods](b, d)}
	e.validate = func(v setting.VerificationMethods) error {
		optional := 0
		for name, level := range v.Methods {
			if len(d.Options) > 0 {
				if _, ok := d.Options[name]; !ok {
					return invalid("unknown verification method %q", name)
				}
			}
			switch level {
			case setting.VerificationDisabled, setting.VerificationRequired:
			case setting.VerificationOptional:
				optional++
			default:
				return invalid("method %s: unknown level %q", name, level)
			}
		}
		if v.MinOptionalRequired < 0 || v.MinOptionalRequired > optional {
			return invalid("minimum optional methods must be between 0 and %d", optional)
		}
		return nil
	}
	e.format = func(v setting.VerificationMethods) []string {
		names := make([]string, 0, len(v.Methods))
		for name := range v.Methods {
			names = append(names, name)
		}
		sort.Strings(names)
		lines := make([]string, 0, len(names)+1)
		for _, name := range names {
			label := name
			if l := d.Options[name]; l != "" {
				label = l
			}
			lines = append(lines, fmt.Sprintf("%s: %s", label, v.Methods[name]))
		}
		return append(lines, fmt.Sprintf("min optional: %d", v.MinOptionalRequired))
	}
	return e
}

// SetMethod sets the level of one method.
func (e *VerificationEditor) SetMethod(ctx context.Context, name string, level setting.VerificationLevel) error {
	return e.update(ctx, func(cur setting.VerificationMethods) (setting.VerificationMethods, error) {
		if cur.Methods == nil {
			cur.Methods = make(map[string]setting.VerificationLevel)
		}
		cur.Methods[name] = level
		return cur, nil
	})
}

// SetMinOptional sets how many optional methods a user must pass.
func (e *VerificationEditor) SetMinOptional(ctx context.Context, n int) error {
	return e.update(ctx, func(cur setting.VerificationMethods) (setting.VerificationMethods, error) {
		cur.MinOptionalRequired = n
		return cur, nil
	})
}
