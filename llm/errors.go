package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
)

// Error kinds. Test with errors.Is.
var (
	// ErrConnection: the server could not be reached or dropped the connection.
	ErrConnection = errors.New("connection error")
	// ErrServer: the server answered with a non-success status or an unusable body.
	ErrServer = errors.New("server error")
	// ErrTimeout: nothing was received within the inactivity window.
	ErrTimeout = errors.New("timeout")
)

// Error is a classified client failure.
type Error struct {
	// Kind is ErrConnection, ErrServer or ErrTimeout.
	Kind error
	// StatusCode is the HTTP status for ErrServer, 0 otherwise.
	StatusCode int
	// Detail is the server supplied message, if any.
	Detail string
	// Err is the underlying transport error, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("%v: status %d: %s", e.Kind, e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("%v: status %d", e.Kind, e.StatusCode)
	case e.Detail != "":
		return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// classify maps a transport error to an error kind. Cancellation by the
// caller is returned as the bare context error.
func classify(ctx context.Context, wd *watchdog, err error) error {
	if wd.expired() {
		return &Error{Kind: ErrTimeout, Detail: fmt.Sprintf("no activity for %v", wd.timeout)}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: ErrTimeout, Err: err}
	}
	return &Error{Kind: ErrConnection, Err: err}
}

// errorDetail extracts a readable message from an error body.
func errorDetail(body []byte) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
			return msg.String()
		}
		if e := gjson.GetBytes(body, "error"); e.Type == gjson.String {
			return e.String()
		}
		if d := gjson.GetBytes(body, "detail"); d.Exists() {
			return d.String()
		}
	}
	return truncate(strings.TrimSpace(string(body)), 500)
}

// ---------------------------------------------------------------------------
// Inactivity watchdog
// ---------------------------------------------------------------------------

// watchdog cancels a call when it sees no activity for timeout.
type watchdog struct {
	timeout time.Duration
	timer   *time.Timer
	fired   atomic.Bool
}

func startWatchdog(timeout time.Duration, cancel context.CancelFunc) *watchdog {
	w := &watchdog{timeout: timeout}
	if timeout <= 0 {
		return w
	}
	w.timer = time.AfterFunc(timeout, func() {
		w.fired.Store(true)
		cancel()
	})
	return w
}

func (w *watchdog) kick() {
	if w.timer != nil && !w.fired.Load() {
		w.timer.Reset(w.timeout)
	}
}

func (w *watchdog) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *watchdog) expired() bool {
	return w.fired.Load()
}

// activityReader kicks the watchdog on every successful read.
type activityReader struct {
	r  io.Reader
	wd *watchdog
}

func (a *activityReader) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	if n > 0 {
		a.wd.kick()
	}
	return n, err
}
