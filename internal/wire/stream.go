package wire

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/laiskydev/respgate/internal/apperr"
)

// SSEWriter frames outgoing events as `data: <json>\n\n`, flushing after
// every event so backpressure from the client socket is respected and no
// more than one event is buffered ahead of the wire (spec §4.1, §5).
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares w for event-stream output. It sets the
// Content-Type header; callers must not write a status code afterwards.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, apperr.New(apperr.KindTransformation, "response writer does not support flushing", nil)
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent marshals payload and writes one `data: ...\n\n` frame,
// flushing immediately afterward.
func (s *SSEWriter) WriteEvent(payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperr.New(apperr.KindTransformation, "marshal stream event", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", body); err != nil {
		return apperr.New(apperr.KindUpstreamNetwork, "write stream event", err)
	}
	s.flusher.Flush()
	return nil
}

// WriteDone writes the literal OpenAI-dialect terminator line.
func (s *SSEWriter) WriteDone() error {
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return apperr.New(apperr.KindUpstreamNetwork, "write stream terminator", err)
	}
	s.flusher.Flush()
	return nil
}
