// Package transport issues requests against the configuration editor endpoint.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dongho-jung/pwmcfg/internal/constants"
	"github.com/dongho-jung/pwmcfg/internal/logging"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 16 << 20

// Options configures a Client.
type Options struct {
	BaseURL         string // scheme://host[:port]
	BasePath        string
	Timeout         time.Duration
	FormID          string
	FatalErrorCodes []int
	HTTPClient      *http.Client // optional; a client with a cookie jar is created when nil
}

// Request describes a single editor call.
type Request struct {
	Action  string
	Method  string     // http.MethodGet or http.MethodPost; POST when Body is set and Method is empty
	Query   url.Values // extra query parameters (key, profile, ...)
	Body    any        // JSON-encoded when non-nil
	Timeout time.Duration
}

// Response is a successful envelope.
type Response struct {
	Data           json.RawMessage
	SuccessMessage string
}

// Decode unmarshals the response data into v.
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// envelope is the wire shape of every editor response.
type envelope struct {
	Error          bool            `json:"error"`
	ErrorCode      int             `json:"errorCode,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	ErrorDetail    string          `json:"errorDetail,omitempty"`
	SuccessMessage string          `json:"successMessage,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// Client sends editor requests. It is safe for concurrent use.
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	fatal      map[int]bool
	busy       *Busy
	now        func() time.Time

	mu      sync.RWMutex
	formID  string
	onError func(*Error)
}

// New creates a Client for the given options.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		httpClient = &http.Client{Jar: jar}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultTimeout
	}

	basePath := opts.BasePath
	if basePath == "" {
		basePath = constants.DefaultBasePath
	}

	fatal := make(map[int]bool, len(opts.FatalErrorCodes))
	for _, code := range opts.FatalErrorCodes {
		fatal[code] = true
	}

	return &Client{
		endpoint:   strings.TrimSuffix(opts.BaseURL, "/") + basePath,
		timeout:    timeout,
		httpClient: httpClient,
		fatal:      fatal,
		busy:       &Busy{},
		now:        time.Now,
		formID:     opts.FormID,
	}, nil
}

// Busy returns the outstanding request counter.
func (c *Client) Busy() *Busy {
	return c.busy
}

// FormID returns the current anti-forgery id.
func (c *Client) FormID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.formID
}

// SetFormID replaces the anti-forgery id sent with every request.
func (c *Client) SetFormID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.formID = id
}

// OnError installs the default error handler. It is called for every failed
// request in addition to the error being returned.
func (c *Client) OnError(fn func(*Error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// Endpoint returns the editor endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Do sends the request and decodes the response envelope.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	logging.Debug("-> Client.Do(action=%s)", r.Action)
	defer logging.Debug("<- Client.Do(action=%s)", r.Action)

	done := c.busy.Begin()
	defer done()

	resp, err := c.do(ctx, r)
	if err != nil {
		var te *Error
		if errors.As(err, &te) {
			c.mu.RLock()
			handler := c.onError
			c.mu.RUnlock()
			if handler != nil {
				handler(te)
			}
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, r Request) (*Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
		if r.Body != nil {
			method = http.MethodPost
		}
	}

	var body io.Reader
	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", r.Action, err)
		}
		body = bytes.NewReader(data)
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(r), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", r.Action, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", constants.UserAgent)
	req.Header.Set(constants.RequestIDHd, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	timer := logging.StartTimer(fmt.Sprintf("%s %s [%s]", method, r.Action, requestID))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		timer.StopWithResult(false, err.Error())
		msg := "request failed"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "request timed out"
		}
		return nil, &Error{Kind: KindTransport, Action: r.Action, Message: msg, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		timer.StopWithResult(false, err.Error())
		return nil, &Error{Kind: KindTransport, Action: r.Action, Status: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		timer.StopWithResult(false, resp.Status)
		return nil, &Error{
			Kind:    KindTransport,
			Action:  r.Action,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("server returned status %d", resp.StatusCode),
		}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		timer.StopWithResult(false, "malformed envelope")
		return nil, &Error{Kind: KindTransport, Action: r.Action, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	logging.Trace("%s response: %s", r.Action, constants.TruncateWithWidth(string(data), 512))

	if env.Error {
		timer.StopWithResult(false, env.ErrorMessage)
		return nil, &Error{
			Kind:    KindApplication,
			Action:  r.Action,
			Status:  resp.StatusCode,
			Code:    env.ErrorCode,
			Message: env.ErrorMessage,
			Detail:  env.ErrorDetail,
			fatal:   c.fatal[env.ErrorCode],
		}
	}

	timer.StopWithResult(true, "")
	return &Response{Data: env.Data, SuccessMessage: env.SuccessMessage}, nil
}

func (c *Client) buildURL(r Request) string {
	q := url.Values{}
	for k, vs := range r.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set(constants.ParamProcessAction, r.Action)
	if id := c.FormID(); id != "" {
		q.Set(constants.ParamFormID, id)
	}
	q.Set(constants.ParamPreventCache, strconv.FormatInt(c.now().UnixMilli(), 10))
	return c.endpoint + "?" + q.Encode()
}
