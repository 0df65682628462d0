package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dongho-jung/pwmcfg/internal/service"
)

// fakeBackend stores values in memory. A stored value equal to the key's
// default counts as default, like the server does.
type fakeBackend struct {
	mu       sync.Mutex
	values   map[string]json.RawMessage
	defaults map[string]json.RawMessage
	writes   []json.RawMessage
	execs    []string

	// readAs turns a stored write payload into the read shape.
	readAs   func(key string, stored json.RawMessage) json.RawMessage
	writeErr error
	started  chan struct{}
	release  chan struct{}
	// superseded makes Read answer like a read overtaken by a reset.
	superseded bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		values:   make(map[string]json.RawMessage),
		defaults: make(map[string]json.RawMessage),
	}
}

func (f *fakeBackend) setDefault(key string, v any) {
	data, _ := json.Marshal(v)
	f.defaults[key] = data
}

func (f *fakeBackend) Read(_ context.Context, key string) (service.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.superseded {
		return service.Reading{Key: key, IsDefault: true, Visible: true, Stale: true}, nil
	}
	def := f.defaults[key]
	v, ok := f.values[key]
	if !ok {
		v = def
	}
	isDefault := !ok || bytes.Equal(v, def)
	if ok && f.readAs != nil {
		v = f.readAs(key, v)
	}
	return service.Reading{Key: key, Value: v, IsDefault: isDefault, Visible: true}, nil
}

func (f *fakeBackend) Write(_ context.Context, key string, value any) (service.WriteResult, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	data, err := json.Marshal(value)
	if err != nil {
		return service.WriteResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, data)
	if f.writeErr != nil {
		return service.WriteResult{}, f.writeErr
	}
	f.values[key] = data
	return service.WriteResult{IsDefault: bytes.Equal(data, f.defaults[key])}, nil
}

func (f *fakeBackend) Reset(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return nil
}

func (f *fakeBackend) Execute(_ context.Context, key, function string, _ any) (service.ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, key+"."+function)
	if function == "clear" {
		delete(f.values, key)
	}
	return service.ExecResult{Message: "done"}, nil
}

func (f *fakeBackend) lastWrite() json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return nil
	}
	return f.writes[len(f.writes)-1]
}

var errBoom = errors.New("boom")
