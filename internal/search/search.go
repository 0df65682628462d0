package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dongho-jung/pwmcfg/internal/constants"
	"github.com/dongho-jung/pwmcfg/internal/logging"
	"github.com/dongho-jung/pwmcfg/internal/transport"
)

// Doer sends editor requests.
type Doer interface {
	Do(ctx context.Context, r transport.Request) (*transport.Response, error)
}

// Result is a single matching setting.
type Result struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Category    string `json:"category"`
	Profile     string `json:"profile,omitempty"`
	Description string `json:"description,omitempty"`
}

// Group holds the results of one category.
type Group struct {
	Category string
	Results  []Result
}

// Count returns the total number of results across groups.
func Count(groups []Group) int {
	n := 0
	for _, g := range groups {
		n += len(g.Results)
	}
	return n
}

// Searcher posts search requests.
type Searcher struct {
	client Doer
}

// NewSearcher creates a searcher.
func NewSearcher(client Doer) *Searcher {
	return &Searcher{client: client}
}

// Search returns the settings matching term grouped by category label.
// Groups are sorted by category; results keep the server's order.
func (s *Searcher) Search(ctx context.Context, term string) ([]Group, error) {
	logging.Debug("-> Searcher.Search(term=%q)", term)
	defer logging.Debug("<- Searcher.Search")

	resp, err := s.client.Do(ctx, transport.Request{
		Action: constants.ActionSearch,
		Method: "POST",
		Body:   map[string]string{"search": term},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search %q: %w", term, err)
	}

	var data map[string][]Result
	if err := resp.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to search %q: %w", term, err)
	}

	groups := make([]Group, 0, len(data))
	for category, results := range data {
		groups = append(groups, Group{Category: category, Results: results})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Category < groups[j].Category
	})
	return groups, nil
}

// Func performs one search.
type Func func(ctx context.Context, term string) ([]Group, error)

// Outcome is a completed search.
type Outcome struct {
	Term    string
	Groups  []Group
	Err     error
	Elapsed time.Duration
}

// Controller debounces keystrokes into searches. In-flight searches always
// run to completion; their outcome is dropped when the input is empty by the
// time they finish.
type Controller struct {
	ctx       context.Context
	search    Func
	debouncer *Debouncer
	results   chan Outcome

	mu    sync.Mutex
	input string
}

// NewController creates a controller that waits delay after the last
// keystroke before searching.
func NewController(ctx context.Context, fn Func, delay time.Duration) *Controller {
	c := &Controller{
		ctx:     ctx,
		search:  fn,
		results: make(chan Outcome, 16),
	}
	c.debouncer = NewDebouncer(delay, c.run)
	return c
}

// Input records the current contents of the search box.
func (c *Controller) Input(term string) {
	term = strings.TrimSpace(term)
	c.mu.Lock()
	c.input = term
	c.mu.Unlock()

	if term == "" {
		c.debouncer.Cancel()
		return
	}
	c.debouncer.Trigger(term)
}

// Current returns the current search box contents.
func (c *Controller) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// Results delivers completed searches.
func (c *Controller) Results() <-chan Outcome {
	return c.results
}

// Close stops debouncing and waits for an in-flight search. Cancel the
// controller's context first when nobody drains Results.
func (c *Controller) Close() {
	c.debouncer.Stop()
}

func (c *Controller) run(term string) {
	start := time.Now()
	groups, err := c.search(c.ctx, term)
	elapsed := time.Since(start)

	if c.Current() == "" {
		logging.Debug("Controller: discarding results for %q, search box is empty", term)
		return
	}

	select {
	case c.results <- Outcome{Term: term, Groups: groups, Err: err, Elapsed: elapsed}:
	case <-c.ctx.Done():
	}
}
