// Package llm is a small client for OpenAI-compatible chat completion servers
// running on the local machine: LM Studio, Ollama, llama.cpp server, vLLM,
// Jan, LocalAI and similar.
//
// The client is stateless. Every call builds its own request, owns the
// response for the duration of the call, and returns errors classified as
// ErrConnection, ErrServer or ErrTimeout without retrying.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// DefaultBaseURL is where LM Studio listens by default.
const DefaultBaseURL = "http://localhost:1234"

// DefaultTimeout is the default inactivity window for a request.
const DefaultTimeout = 120 * time.Second

// Config describes how to reach an inference server.
type Config struct {
	// BaseURL is the server root, with or without the trailing /v1.
	BaseURL string
	// APIKey is sent as a bearer token when set. Most local servers ignore it.
	APIKey string
	// Model is passed through to the server. Empty means the server picks
	// whatever model is loaded.
	Model string
	// Timeout is the inactivity window: the call fails with ErrTimeout when no
	// response headers or body bytes arrive for this long. Zero disables it.
	Timeout time.Duration
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Headers are extra request headers.
	Headers map[string]string
	// HTTPClient overrides the transport (tests, custom TLS).
	HTTPClient *http.Client
}

// Request is one translation prompt.
type Request struct {
	// System is the instruction message. Empty sends only the user message.
	System string
	// User carries the text to translate.
	User string
	// Temperature is passed through unchanged.
	Temperature float64
}

// Client talks to one OpenAI-compatible endpoint.
type Client struct {
	cfg     Config
	apiBase string
	http    *http.Client
}

// New creates a client. Missing fields fall back to DefaultBaseURL.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = makeHTTPClient(cfg.Proxy)
	}
	return &Client{
		cfg:     cfg,
		apiBase: APIBase(cfg.BaseURL),
		http:    hc,
	}
}

// APIBase normalizes a server URL to its /v1 API root.
func APIBase(baseURL string) string {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if u == "" {
		u = DefaultBaseURL
	}
	if !strings.HasSuffix(u, "/v1") {
		u += "/v1"
	}
	return u
}

// Endpoint returns the chat completions URL used by the client.
func (c *Client) Endpoint() string {
	return c.apiBase + "/chat/completions"
}

// Model returns the configured model id (possibly empty).
func (c *Client) Model() string {
	return c.cfg.Model
}

// ---------------------------------------------------------------------------
// HTTP client with proxy support
// ---------------------------------------------------------------------------

// makeHTTPClient builds a client without a global timeout; the inactivity
// watchdog bounds each call instead, so long streams are never cut while
// tokens keep arriving.
func makeHTTPClient(proxyURL string) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{Transport: transport}
}

// ---------------------------------------------------------------------------
// Request building
// ---------------------------------------------------------------------------

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

func (c *Client) buildChatRequest(req Request, stream bool) ([]byte, error) {
	var msgs []chatMessage
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.User})

	return json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		Stream:      stream,
	})
}

// do sends one request. Non-2xx responses are drained and returned as
// ErrServer; the caller owns the body of a successful response.
func (c *Client) do(ctx context.Context, wd *watchdog, method, endpoint string, body []byte, accept string) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return nil, &Error{Kind: ErrConnection, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(ctx, wd, err)
	}
	wd.kick()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, &Error{Kind: ErrServer, StatusCode: resp.StatusCode, Detail: errorDetail(data)}
	}
	return resp, nil
}

// ---------------------------------------------------------------------------
// Blocking completion
// ---------------------------------------------------------------------------

// Complete sends req with stream=false and returns the whole reply.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	body, err := c.buildChatRequest(req, false)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wd := startWatchdog(c.cfg.Timeout, cancel)
	defer wd.stop()

	resp, err := c.do(ctx, wd, http.MethodPost, c.Endpoint(), body, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(&activityReader{r: resp.Body, wd: wd})
	if err != nil {
		return "", classify(ctx, wd, err)
	}
	return extractCompletion(data, resp.StatusCode)
}

// extractCompletion pulls the reply text out of a chat (or legacy text)
// completion body.
func extractCompletion(data []byte, status int) (string, error) {
	if !gjson.ValidBytes(data) {
		return "", &Error{Kind: ErrServer, StatusCode: status, Detail: "invalid JSON response: " + truncate(string(data), 200)}
	}
	if e := gjson.GetBytes(data, "error"); e.Exists() {
		return "", &Error{Kind: ErrServer, StatusCode: status, Detail: errorDetail(data)}
	}
	if content := gjson.GetBytes(data, "choices.0.message.content"); content.Exists() {
		return content.String(), nil
	}
	if text := gjson.GetBytes(data, "choices.0.text"); text.Exists() {
		return text.String(), nil
	}
	return "", &Error{Kind: ErrServer, StatusCode: status, Detail: "response has no choices: " + truncate(string(data), 200)}
}

// ---------------------------------------------------------------------------
// Model listing
// ---------------------------------------------------------------------------

// Models lists the model ids the server reports on GET /v1/models.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wd := startWatchdog(c.cfg.Timeout, cancel)
	defer wd.stop()

	resp, err := c.do(ctx, wd, http.MethodGet, c.apiBase+"/models", nil, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(&activityReader{r: resp.Body, wd: wd})
	if err != nil {
		return nil, classify(ctx, wd, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, &Error{Kind: ErrServer, StatusCode: resp.StatusCode, Detail: "invalid JSON response: " + truncate(string(data), 200)}
	}

	var ids []string
	for _, id := range gjson.GetBytes(data, "data.#.id").Array() {
		ids = append(ids, id.String())
	}
	return ids, nil
}

// truncate shortens s to at most maxLen bytes without splitting a UTF-8
// sequence.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
