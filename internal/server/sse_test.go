package server

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainWriter struct {
	http.ResponseWriter
}

func TestSSEWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := newSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Send("backups", map[string]int{"count": 2}))
	require.NoError(t, w.KeepAlive())

	pattern := regexp.MustCompile(`^event: backups\nid: [0-9a-f-]{36}\ndata: \{"count":2\}\n\n: ping\n\n$`)
	assert.Regexp(t, pattern, rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestSSEWriterRequiresFlusher(t *testing.T) {
	_, err := newSSEWriter(plainWriter{httptest.NewRecorder()})
	assert.ErrorContains(t, err, "does not support http.Flusher")
}

func TestSSEWriterMarshalError(t *testing.T) {
	w, err := newSSEWriter(httptest.NewRecorder())
	require.NoError(t, err)
	assert.ErrorContains(t, w.Send("bad", make(chan int)), "failed to marshal bad event")
}

func TestSetSSEHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSSEHeaders(rec)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}
