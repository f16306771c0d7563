package agentclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageWithResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/voice/message", r.URL.Path)
		w.Write([]byte(`{"response":"Hello there"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	reply, err := c.SendMessage(context.Background(), "CA1", "+15550001", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", reply)
}

func TestSendMessageNoResponseField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	reply, err := c.SendMessage(context.Background(), "CA1", "+15550001", "hi")
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestSendMessageUnexpectedShapeIsNoReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"just a string"`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	reply, err := c.SendMessage(context.Background(), "CA1", "+15550001", "hi")
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestSendMessageHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.SendMessage(context.Background(), "CA1", "+15550001", "hi")
	require.Error(t, err)
}
