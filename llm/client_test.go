package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Fake inference server helpers
// ---------------------------------------------------------------------------

func completionBody(content string) string {
	data, _ := json.Marshal(map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	return string(data)
}

func streamEvent(delta string) string {
	data, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"delta": map[string]any{"content": delta}}},
	})
	return "data: " + string(data) + "\n\n"
}

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

// unreachableURL returns the address of a listener that has been closed.
func unreachableURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return "http://" + addr
}

func collect(t *testing.T, c *Client, req Request) (string, error) {
	t.Helper()
	var sb strings.Builder
	for frag, err := range c.Stream(context.Background(), req) {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(frag)
	}
	return sb.String(), nil
}

// ---------------------------------------------------------------------------
// APIBase
// ---------------------------------------------------------------------------

func TestAPIBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "", want: "http://localhost:1234/v1"},
		{in: "http://localhost:1234", want: "http://localhost:1234/v1"},
		{in: "http://localhost:1234/", want: "http://localhost:1234/v1"},
		{in: "http://localhost:1234/v1", want: "http://localhost:1234/v1"},
		{in: " http://127.0.0.1:8080/v1/ ", want: "http://127.0.0.1:8080/v1"},
		{in: "http://gpu-box:11434", want: "http://gpu-box:11434/v1"},
	}
	for _, tc := range cases {
		if got := APIBase(tc.in); got != tc.want {
			t.Errorf("APIBase(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Complete
// ---------------------------------------------------------------------------

func TestComplete_Success(t *testing.T) {
	var got chatRequest
	var auth string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, completionBody("안녕하세요"))
	})

	c := New(Config{BaseURL: srv.URL, APIKey: "lm-studio", Model: "translategemma-12b-it", Timeout: time.Second})
	text, err := c.Complete(context.Background(), Request{System: "sys", User: "Hello", Temperature: 0.3})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if text != "안녕하세요" {
		t.Errorf("text = %q", text)
	}
	if auth != "Bearer lm-studio" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.Stream {
		t.Error("stream should be false for Complete")
	}
	if got.Model != "translategemma-12b-it" || got.Temperature != 0.3 {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "Hello" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestComplete_OmitsEmptyModelAndSystem(t *testing.T) {
	var raw map[string]any
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &raw)
		io.WriteString(w, completionBody("ok"))
	})

	c := New(Config{BaseURL: srv.URL})
	if _, err := c.Complete(context.Background(), Request{User: "x"}); err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if _, ok := raw["model"]; ok {
		t.Errorf("model should be omitted, body = %v", raw)
	}
	msgs, _ := raw["messages"].([]any)
	if len(msgs) != 1 {
		t.Errorf("want only the user message, got %v", msgs)
	}
}

func TestComplete_ServerError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":{"message":"No models loaded"}}`)
	})

	_, err := New(Config{BaseURL: srv.URL}).Complete(context.Background(), Request{User: "x"})
	if !errors.Is(err, ErrServer) {
		t.Fatalf("err = %v, want ErrServer", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.StatusCode != 500 || e.Detail != "No models loaded" {
		t.Fatalf("error detail = %+v", e)
	}
	if !strings.Contains(err.Error(), "No models loaded") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestComplete_ServerErrorKeepsUTF8(t *testing.T) {
	body := strings.Repeat("모델", 200)
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, body)
	})

	_, err := New(Config{BaseURL: srv.URL}).Complete(context.Background(), Request{User: "x"})
	var e *Error
	if !errors.As(err, &e) || e.Kind != ErrServer {
		t.Fatalf("err = %v, want ErrServer", err)
	}
	if !utf8.ValidString(e.Detail) {
		t.Fatalf("detail is not valid UTF-8: %q", e.Detail)
	}
	if !strings.HasSuffix(e.Detail, "...") || len(e.Detail) >= len(body) {
		t.Errorf("detail not truncated: %d bytes", len(e.Detail))
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{in: "short", max: 10, want: "short"},
		{in: "abcdef", max: 3, want: "abc..."},
		{in: "가나다", max: 9, want: "가나다"},
		{in: "가나다", max: 4, want: "가..."},
		{in: "가나다", max: 2, want: "..."},
		{in: "a가", max: 2, want: "a..."},
	}
	for _, tc := range cases {
		got := truncate(tc.in, tc.max)
		if got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) split a rune: %q", tc.in, tc.max, got)
		}
	}
}

func TestComplete_ErrorObjectWithSuccessStatus(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":"context length exceeded"}`)
	})
	_, err := New(Config{BaseURL: srv.URL}).Complete(context.Background(), Request{User: "x"})
	if !errors.Is(err, ErrServer) || !strings.Contains(err.Error(), "context length exceeded") {
		t.Fatalf("err = %v", err)
	}
}

func TestComplete_InvalidJSON(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>proxy error</html>")
	})
	_, err := New(Config{BaseURL: srv.URL}).Complete(context.Background(), Request{User: "x"})
	if !errors.Is(err, ErrServer) {
		t.Fatalf("err = %v, want ErrServer", err)
	}
}

func TestComplete_Unreachable(t *testing.T) {
	_, err := New(Config{BaseURL: unreachableURL(t), Timeout: time.Second}).Complete(context.Background(), Request{User: "x"})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("err = %v, want ErrConnection", err)
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrServer) {
		t.Fatalf("err matches more than one kind: %v", err)
	}
}

func TestComplete_Timeout(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	start := time.Now()
	_, err := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}).Complete(context.Background(), Request{User: "x"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestComplete_CallerCancel(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)
	_, err := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second}).Complete(ctx, Request{User: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnection) {
		t.Fatalf("cancellation should not be classified: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Stream
// ---------------------------------------------------------------------------

func TestStream_Fragments(t *testing.T) {
	var got chatRequest
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		io.WriteString(w, ": keep-alive\n\n")
		io.WriteString(w, `data: {"choices":[{"delta":{"role":"assistant"}}]}`+"\n\n")
		for _, d := range []string{"Bon", "jour", " le ", "monde"} {
			io.WriteString(w, streamEvent(d))
			fl.Flush()
		}
		io.WriteString(w, "data: [DONE]\n\n")
	})

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	var frags []string
	for frag, err := range c.Stream(context.Background(), Request{User: "Hello world"}) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		frags = append(frags, frag)
	}
	if !got.Stream {
		t.Error("stream flag not set")
	}
	if strings.Join(frags, "") != "Bonjour le monde" || len(frags) != 4 {
		t.Fatalf("fragments = %q", frags)
	}
}

func TestStream_MatchesComplete(t *testing.T) {
	const reply = "Der schnelle braune Fuchs."
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		if !req.Stream {
			io.WriteString(w, completionBody(reply))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, word := range strings.SplitAfter(reply, " ") {
			io.WriteString(w, streamEvent(word))
		}
		io.WriteString(w, "data: [DONE]\n\n")
	})

	c := New(Config{BaseURL: srv.URL})
	full, err := c.Complete(context.Background(), Request{User: "x"})
	if err != nil {
		t.Fatal(err)
	}
	streamed, err := collect(t, c, Request{User: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if full != streamed {
		t.Fatalf("Complete %q != Stream %q", full, streamed)
	}
}

func TestStream_JSONFallback(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		io.WriteString(w, completionBody("whole reply"))
	})
	text, err := collect(t, New(Config{BaseURL: srv.URL}), Request{User: "x"})
	if err != nil || text != "whole reply" {
		t.Fatalf("got %q, %v", text, err)
	}
}

func TestStream_IsLazy(t *testing.T) {
	calls := 0
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		io.WriteString(w, "data: [DONE]\n\n")
	})
	seq := New(Config{BaseURL: srv.URL}).Stream(context.Background(), Request{User: "x"})
	if calls != 0 {
		t.Fatalf("request sent before iteration")
	}
	for range seq {
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestStream_ServerStatus(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})
	_, err := collect(t, New(Config{BaseURL: srv.URL}), Request{User: "x"})
	if !errors.Is(err, ErrServer) {
		t.Fatalf("err = %v, want ErrServer", err)
	}
}

func TestStream_ErrorEvent(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, streamEvent("partial"))
		io.WriteString(w, `data: {"error":{"message":"model crashed"}}`+"\n\n")
	})
	text, err := collect(t, New(Config{BaseURL: srv.URL}), Request{User: "x"})
	if !errors.Is(err, ErrServer) || !strings.Contains(err.Error(), "model crashed") {
		t.Fatalf("err = %v", err)
	}
	if text != "partial" {
		t.Errorf("fragments before error = %q", text)
	}
}

func TestStream_Unreachable(t *testing.T) {
	_, err := collect(t, New(Config{BaseURL: unreachableURL(t)}), Request{User: "x"})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("err = %v, want ErrConnection", err)
	}
}

func TestStream_IdleTimeoutMidStream(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, streamEvent("first"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	text, err := collect(t, New(Config{BaseURL: srv.URL, Timeout: 80 * time.Millisecond}), Request{User: "x"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if text != "first" {
		t.Errorf("text before timeout = %q", text)
	}
}

func TestStream_ActivityKeepsLongStreamAlive(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		for i := 0; i < 8; i++ {
			io.WriteString(w, streamEvent(fmt.Sprintf("%d", i)))
			fl.Flush()
			time.Sleep(30 * time.Millisecond)
		}
		io.WriteString(w, "data: [DONE]\n\n")
	})

	// Total duration (~240ms) exceeds the window; every gap is below it.
	text, err := collect(t, New(Config{BaseURL: srv.URL, Timeout: 150 * time.Millisecond}), Request{User: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "01234567" {
		t.Errorf("text = %q", text)
	}
}

func TestStream_EarlyBreak(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 5; i++ {
			io.WriteString(w, streamEvent("x"))
		}
	})
	n := 0
	for _, err := range New(Config{BaseURL: srv.URL}).Stream(context.Background(), Request{User: "x"}) {
		if err != nil {
			t.Fatal(err)
		}
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("n = %d", n)
	}
}

func TestEventData(t *testing.T) {
	cases := []struct {
		line string
		want string
		ok   bool
	}{
		{line: "data: {\"a\":1}", want: "{\"a\":1}", ok: true},
		{line: "data:[DONE]\r", want: "[DONE]", ok: true},
		{line: ": comment", ok: false},
		{line: "event: message", ok: false},
		{line: "", ok: false},
		{line: "data: ", ok: false},
	}
	for _, tc := range cases {
		got, ok := eventData(tc.line)
		if got != tc.want || ok != tc.ok {
			t.Errorf("eventData(%q) = %q, %v; want %q, %v", tc.line, got, ok, tc.want, tc.ok)
		}
	}
}

// ---------------------------------------------------------------------------
// Models
// ---------------------------------------------------------------------------

func TestModels(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/models" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		io.WriteString(w, `{"object":"list","data":[{"id":"translategemma-12b-it"},{"id":"qwen2.5-7b-instruct"}]}`)
	})

	ids, err := New(Config{BaseURL: srv.URL + "/v1"}).Models(context.Background())
	if err != nil {
		t.Fatalf("Models error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "translategemma-12b-it" || ids[1] != "qwen2.5-7b-instruct" {
		t.Fatalf("ids = %v", ids)
	}
}

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  *Error
		want string
	}{
		{err: &Error{Kind: ErrServer, StatusCode: 503, Detail: "busy"}, want: "server error: status 503: busy"},
		{err: &Error{Kind: ErrServer, StatusCode: 404}, want: "server error: status 404"},
		{err: &Error{Kind: ErrTimeout, Detail: "no activity for 1s"}, want: "timeout: no activity for 1s"},
		{err: &Error{Kind: ErrConnection, Err: errors.New("refused")}, want: "connection error: refused"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
}
