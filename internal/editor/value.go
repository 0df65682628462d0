package editor

import (
	"context"
	"encoding/json"

	"github.com/dongho-jung/pwmcfg/internal/logging"
	"github.com/dongho-jung/pwmcfg/internal/service"
	"github.com/dongho-jung/pwmcfg/internal/setting"
)

// valueEditor is an editor whose read value decodes into T.
type valueEditor[T any] struct {
	base
	value    T
	parse    func(string) (T, error)
	validate func(T) error
	format   func(T) []string
}

func newValueEditor[T any](b Backend, d setting.Descriptor) *valueEditor[T] {
	return &valueEditor[T]{base: base{backend: b, desc: d}}
}

// Value returns a copy of the rendered value.
func (e *valueEditor[T]) Value() T {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clone(e.value)
}

func (e *valueEditor[T]) Load(ctx context.Context) error {
	logging.Debug("-> Editor.Load(key=%s)", e.desc.Key)
	defer logging.Debug("<- Editor.Load(key=%s)", e.desc.Key)

	e.mu.Lock()
	if e.state == StateWriting || e.state == StateLoading {
		e.mu.Unlock()
		return ErrBusy
	}
	e.state = StateLoading
	e.mu.Unlock()

	r, err := e.backend.Read(ctx, e.desc.Key)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.settle()
		return err
	}
	if r.Stale && len(r.Value) == 0 {
		// no authoritative value to render; keep what is on screen
		e.settle()
		return ErrSuperseded
	}
	var v T
	if err := r.Decode(&v); err != nil {
		e.settle()
		return err
	}
	e.value = v
	e.modified = r.Modified()
	e.visible = r.Visible
	e.rendered = true
	e.state = StateRendered
	return nil
}

func (e *valueEditor[T]) Write(ctx context.Context, value any) error {
	v, err := coerce(value, e.parse)
	if err != nil {
		return err
	}
	return e.update(ctx, func(T) (T, error) { return v, nil })
}

// update computes the next value from the current one and writes it while
// holding the write slot, so the computation and the write are one step.
func (e *valueEditor[T]) update(ctx context.Context, fn func(cur T) (T, error)) error {
	e.mu.Lock()
	if err := e.acquire(); err != nil {
		e.mu.Unlock()
		return err
	}
	next, err := fn(clone(e.value))
	if err == nil && e.validate != nil {
		err = e.validate(next)
	}
	if err != nil {
		e.settle()
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	res, err := e.backend.Write(ctx, e.desc.Key, next)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.settle()
	if err != nil {
		return err
	}
	e.value = next
	e.modified = !res.IsDefault
	e.result = res
	return nil
}

// send writes a payload whose shape differs from the read value, then
// reloads so that the editor renders what the server stored. build runs while
// the write slot is held.
func (e *valueEditor[T]) send(ctx context.Context, build func(cur T) (any, error)) error {
	e.mu.Lock()
	if err := e.acquire(); err != nil {
		e.mu.Unlock()
		return err
	}
	payload, err := build(clone(e.value))
	if err != nil {
		e.settle()
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	res, err := e.backend.Write(ctx, e.desc.Key, payload)

	e.mu.Lock()
	e.settle()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.result = res
	e.modified = !res.IsDefault
	e.mu.Unlock()

	return e.Load(ctx)
}

func (e *valueEditor[T]) Reset(ctx context.Context) error {
	logging.Debug("-> Editor.Reset(key=%s)", e.desc.Key)
	defer logging.Debug("<- Editor.Reset(key=%s)", e.desc.Key)

	e.mu.Lock()
	if err := e.acquire(); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	err := e.backend.Reset(ctx, e.desc.Key)

	e.mu.Lock()
	e.settle()
	e.mu.Unlock()
	if err != nil {
		return err
	}
	return e.Load(ctx)
}

func (e *valueEditor[T]) Execute(ctx context.Context, function string, extraData any) (service.ExecResult, error) {
	e.mu.Lock()
	if err := e.acquire(); err != nil {
		e.mu.Unlock()
		return service.ExecResult{}, err
	}
	e.mu.Unlock()

	res, err := e.backend.Execute(ctx, e.desc.Key, function, extraData)

	e.mu.Lock()
	e.settle()
	e.mu.Unlock()
	if err != nil {
		return service.ExecResult{}, err
	}
	if err := e.Load(ctx); err != nil {
		return res, err
	}
	return res, nil
}

func (e *valueEditor[T]) Render() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.rendered {
		return nil
	}
	if e.format == nil {
		data, _ := json.Marshal(e.value)
		return []string{string(data)}
	}
	return e.format(e.value)
}

// coerce converts a caller-supplied value to T.
func coerce[T any](value any, parse func(string) (T, error)) (T, error) {
	var zero T
	switch v := value.(type) {
	case T:
		return v, nil
	case json.RawMessage:
		var out T
		if err := json.Unmarshal(v, &out); err != nil {
			return zero, invalid("%v", err)
		}
		return out, nil
	case string:
		if parse != nil {
			return parse(v)
		}
		var out T
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return zero, invalid("%v", err)
		}
		return out, nil
	default:
		return zero, invalid("unexpected value type %T", value)
	}
}

// textOf renders v the way coerce parses a string: strings as is, anything
// else as JSON.
func textOf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// clone deep-copies v through its JSON form.
func clone[T any](v T) T {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
