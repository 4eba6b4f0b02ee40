package respond

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/laiskydev/respgate/internal/wire"
)

// flushRecorder adapts httptest.ResponseRecorder to http.Flusher so
// wire.NewSSEWriter accepts it, the way the teacher's handler tests stand
// up a fake streaming client.
type flushRecorder struct {
	*httptest.ResponseRecorder
}

func (f *flushRecorder) Flush() {}

type recordingSSE struct {
	t   *testing.T
	rec *flushRecorder
}

func newRecordingSSE(t *testing.T) *recordingSSE {
	t.Helper()
	return &recordingSSE{t: t, rec: &flushRecorder{httptest.NewRecorder()}}
}

func (r *recordingSSE) writer() *wire.SSEWriter {
	w, err := wire.NewSSEWriter(r.rec)
	require.NoError(r.t, err)
	return w
}

func (r *recordingSSE) raw() string { return r.rec.Body.String() }

func (r *recordingSSE) eventTypes() []string {
	var types []string
	for _, line := range strings.Split(r.raw(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			types = append(types, "[DONE]")
			continue
		}
		var event struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(payload), &event); err == nil {
			types = append(types, event.Type)
		}
	}
	return types
}
