package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestSendSucceedsOnPrimaryEndpoint(t *testing.T) {
	var hitPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitPath = r.URL.Path
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", silentLogger())
	ok := c.Send(t.Context(), "966501234567", "hello")
	assert.True(t, ok)
	assert.True(t, strings.HasPrefix(hitPath, "/sendSessionMessage/"))
}

func TestSendFallsBackThroughEndpointOrder(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.HasPrefix(r.URL.Path, "/v1/sendSessionMessage/") {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", silentLogger())
	c.RetryPolicy.MaxAttempts = 1
	ok := c.Send(t.Context(), "966501234567", "hello")
	assert.True(t, ok)
	require.Len(t, paths, 3)
	assert.True(t, strings.HasPrefix(paths[0], "/sendSessionMessage/"))
	assert.Equal(t, "/sendMessage", paths[1])
	assert.True(t, strings.HasPrefix(paths[2], "/v1/sendSessionMessage/"))
}

func TestSendReturnsFalseWhenAllEndpointsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", silentLogger())
	c.RetryPolicy.MaxAttempts = 1
	ok := c.Send(t.Context(), "966501234567", "hello")
	assert.False(t, ok)
}
