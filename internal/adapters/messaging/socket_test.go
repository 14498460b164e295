package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func collect(s *Socket) <-chan string {
	ch := make(chan string, 16)
	s.OnMessage(func(b []byte) { ch <- string(b) })
	return ch
}

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
		return ""
	}
}

func TestSocket_SendAndReceive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.WriteMessage(mt, append([]byte("echo:"), data...))
		}
	}))
	defer srv.Close()

	s := New(wsURL(srv))
	msgs := collect(s)
	require.NoError(t, s.Open(context.Background(), time.Second))
	defer s.Close()

	require.NoError(t, s.Send([]byte("hi")))
	assert.Equal(t, "echo:hi", recv(t, msgs))
}

func TestSocket_SendBeforeOpen(t *testing.T) {
	s := New("ws://127.0.0.1:1/none")
	assert.ErrorIs(t, s.Send([]byte("x")), ErrNotOpen)
}

func TestSocket_OpenFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	s := New(wsURL(srv))
	assert.Error(t, s.Open(context.Background(), time.Second))
}

func TestSocket_ReconnectsAfterServerDrop(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := dials.Add(1)
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		if n == 1 {
			// first connection drops right away
			_ = conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := New(wsURL(srv), WithReconnect(10*time.Millisecond, 50*time.Millisecond))
	msgs := collect(s)
	reconnected := make(chan int, 1)
	s.OnReconnect(func(attempt int) { reconnected <- attempt })

	require.NoError(t, s.Open(context.Background(), time.Second))
	defer s.Close()

	assert.Equal(t, "hello", recv(t, msgs))
	select {
	case attempt := <-reconnected:
		assert.GreaterOrEqual(t, attempt, 1)
	case <-time.After(3 * time.Second):
		t.Fatal("socket did not reconnect")
	}
	assert.Equal(t, "hello", recv(t, msgs))
	assert.Equal(t, int32(2), dials.Load())
	require.NoError(t, s.Send([]byte("after")))
}

func TestSocket_CloseStopsReconnecting(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		dials.Add(1)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := New(wsURL(srv), WithReconnect(10*time.Millisecond, 20*time.Millisecond))
	require.NoError(t, s.Open(context.Background(), time.Second))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), dials.Load())
	assert.ErrorIs(t, s.Send([]byte("x")), ErrClosed)
	assert.ErrorIs(t, s.Open(context.Background(), time.Second), ErrClosed)
}

func TestSocket_CloseFromCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 3; i++ {
			_ = conn.WriteMessage(websocket.TextMessage, []byte("bye"))
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := New(wsURL(srv))
	var calls atomic.Int32
	closed := make(chan error, 1)
	s.OnMessage(func([]byte) {
		if calls.Add(1) == 1 {
			closed <- s.Close()
		}
	})
	require.NoError(t, s.Open(context.Background(), time.Second))

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Close blocked inside a message callback")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.ErrorIs(t, s.Send([]byte("x")), ErrClosed)
}
