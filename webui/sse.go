package webui

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// eventWriter writes server-sent events and flushes after each one.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newEventWriter(w http.ResponseWriter) *eventWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ew := &eventWriter{w: w}
	ew.flusher, _ = w.(http.Flusher)
	return ew
}

// send writes one event. Write errors mean the client went away; the
// request context reports that to the pipeline.
func (e *eventWriter) send(event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte(`{}`)
	}
	fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, payload)
	if e.flusher != nil {
		e.flusher.Flush()
	}
}
