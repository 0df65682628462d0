package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongho-jung/pwmcfg/internal/constants"
	"github.com/dongho-jung/pwmcfg/internal/transport"
)

func TestDebouncer_FiresOnceWithLatest(t *testing.T) {
	var mu sync.Mutex
	var fired []string
	d := NewDebouncer(30*time.Millisecond, func(term string) {
		mu.Lock()
		defer mu.Unlock()
		fired = append(fired, term)
	})
	defer d.Stop()

	for _, term := range []string{"p", "pa", "pas", "pass"} {
		d.Trigger(term)
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"pass"}, fired)
}

func TestDebouncer_CancelAndStop(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func(string) { calls.Add(1) })

	d.Trigger("a")
	d.Cancel()
	d.Stop()
	d.Trigger("b")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestController_KeystrokesWithinQuietPeriodSearchOnce(t *testing.T) {
	var requests atomic.Int32
	fn := func(ctx context.Context, term string) ([]Group, error) {
		requests.Add(1)
		return []Group{{Category: "Policy", Results: []Result{{Key: "passwordPolicy.minLength"}}}}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewController(ctx, fn, 40*time.Millisecond)
	defer c.Close()

	for _, term := range []string{"m", "mi", "min", "minL", "minLe", "minLen"} {
		c.Input(term)
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case out := <-c.Results():
		assert.Equal(t, "minLen", out.Term)
		require.NoError(t, out.Err)
		assert.Equal(t, 1, Count(out.Groups))
	case <-time.After(time.Second):
		t.Fatal("no search outcome")
	}

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), requests.Load())
}

func TestController_DiscardsWhenInputCleared(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(ctx context.Context, term string) ([]Group, error) {
		close(started)
		<-release
		return []Group{{Category: "x"}}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewController(ctx, fn, 10*time.Millisecond)

	c.Input("ldap")
	<-started
	c.Input("")
	close(release)
	c.Close()

	select {
	case out := <-c.Results():
		t.Fatalf("expected no outcome, got %+v", out)
	default:
	}
}

func TestController_EmptyInputNeverSearches(t *testing.T) {
	var requests atomic.Int32
	fn := func(ctx context.Context, term string) ([]Group, error) {
		requests.Add(1)
		return nil, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewController(ctx, fn, 10*time.Millisecond)
	defer c.Close()

	c.Input("a")
	c.Input("   ")
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), requests.Load())
}

func TestSearcher_GroupsByCategory(t *testing.T) {
	var body map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, constants.ActionSearch, r.URL.Query().Get(constants.ParamProcessAction))
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": false,
			"data": map[string]any{
				"User Interface":  []Result{{Key: "display.theme", Label: "Theme"}},
				"Password Policy": []Result{{Key: "passwordPolicy.minLength"}, {Key: "passwordPolicy.maxLength"}},
			},
		})
	}))
	defer server.Close()

	client, err := transport.New(transport.Options{BaseURL: server.URL})
	require.NoError(t, err)

	groups, err := NewSearcher(client).Search(context.Background(), "length")
	require.NoError(t, err)
	assert.Equal(t, "length", body["search"])
	require.Len(t, groups, 2)
	assert.Equal(t, "Password Policy", groups[0].Category)
	assert.Equal(t, "passwordPolicy.minLength", groups[0].Results[0].Key)
	assert.Equal(t, 3, Count(groups))
}
