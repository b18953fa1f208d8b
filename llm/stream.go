package llm

import (
	"bufio"
	"context"
	"io"
	"iter"
	"mime"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// maxEventSize bounds a single server-sent event line.
const maxEventSize = 1 << 20

// Stream sends req with stream=true and returns the reply as a lazy sequence
// of text fragments. Nothing is sent until the sequence is ranged over.
// Concatenating every fragment gives the same text Complete would return.
//
// A failure is yielded once, as the final element, with an empty fragment.
// Breaking out of the loop early aborts the request.
func (c *Client) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		body, err := c.buildChatRequest(req, true)
		if err != nil {
			yield("", err)
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		wd := startWatchdog(c.cfg.Timeout, cancel)
		defer wd.stop()

		resp, err := c.do(ctx, wd, http.MethodPost, c.Endpoint(), body, "text/event-stream")
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		rdr := &activityReader{r: resp.Body, wd: wd}

		// Some servers ignore stream=true and answer with a plain completion.
		if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt == "application/json" {
			data, err := io.ReadAll(rdr)
			if err != nil {
				yield("", classify(ctx, wd, err))
				return
			}
			text, err := extractCompletion(data, resp.StatusCode)
			if err != nil {
				yield("", err)
				return
			}
			if text != "" {
				yield(text, nil)
			}
			return
		}

		scanner := bufio.NewScanner(rdr)
		scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
		for scanner.Scan() {
			data, ok := eventData(scanner.Text())
			if !ok {
				continue
			}
			if data == "[DONE]" {
				return
			}
			if !gjson.Valid(data) {
				yield("", &Error{Kind: ErrServer, StatusCode: resp.StatusCode, Detail: "malformed stream event: " + truncate(data, 200)})
				return
			}
			if e := gjson.Get(data, "error"); e.Exists() {
				yield("", &Error{Kind: ErrServer, StatusCode: resp.StatusCode, Detail: errorDetail([]byte(data))})
				return
			}
			delta := gjson.Get(data, "choices.0.delta.content").String()
			if delta == "" {
				continue
			}
			if !yield(delta, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", classify(ctx, wd, err))
		}
	}
}

// eventData returns the payload of an SSE "data:" line. Comments, blank lines
// and other fields report false.
func eventData(line string) (string, bool) {
	line = strings.TrimRight(line, "\r")
	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return "", false
	}
	data = strings.TrimSpace(data)
	return data, data != ""
}
