package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// newServer 启动测试服务端，handler 在升级后的连接上执行
func newServer(t *testing.T, handler func(*websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func runConn(c *Conn, onMessage func([]byte)) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- c.Run(onMessage)
	}()
	return done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestDial_SendAndReceive(t *testing.T) {
	received := make(chan string, 1)
	url := newServer(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(data)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"echo"}`))
		// 等待客户端关闭
		_, _, _ = conn.ReadMessage()
	})

	c, err := Dial(context.Background(), url)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)

	frames := make(chan string, 1)
	done := runConn(c, func(frame []byte) {
		frames <- string(frame)
	})

	require.NoError(t, c.SendJSON(map[string]string{"event": "hello"}))

	select {
	case got := <-received:
		assert.JSONEq(t, `{"event":"hello"}`, got)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not receive message")
	}

	select {
	case got := <-frames:
		assert.Equal(t, `{"event":"echo"}`, got)
	case <-time.After(5 * time.Second):
		t.Fatal("client did not receive message")
	}

	c.Close()
	assert.ErrorIs(t, waitErr(t, done), ErrConnectionClosed)
	assert.True(t, c.IsClosed())
	assert.ErrorIs(t, c.SendBytes([]byte("x")), ErrConnectionClosed)
}

func TestRun_PeerClose(t *testing.T) {
	url := newServer(t, func(conn *websocket.Conn) {
		msg := websocket.FormatCloseMessage(4001, "going away now")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_, _, _ = conn.ReadMessage()
	})

	c, err := Dial(context.Background(), url)
	require.NoError(t, err)

	err = waitErr(t, runConn(c, func([]byte) {}))
	var ce *CloseError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 4001, ce.Code)
	assert.Equal(t, "going away now", ce.Text)

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after Run returned")
	}
}

func TestSetPingInterval(t *testing.T) {
	pings := make(chan struct{}, 8)
	url := newServer(t, func(conn *websocket.Conn) {
		conn.SetPingHandler(func(data string) error {
			select {
			case pings <- struct{}{}:
			default:
			}
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c, err := Dial(context.Background(), url, WithPingInterval(time.Hour), WithPongWait(2*time.Hour))
	require.NoError(t, err)
	assert.Contains(t, c.RemoteAddr(), "127.0.0.1")

	assert.False(t, c.SetPingInterval(0))
	assert.False(t, c.SetPingInterval(2*time.Hour))

	done := runConn(c, func([]byte) {})
	select {
	case <-pings:
		t.Fatal("ping sent before interval changed")
	case <-time.After(50 * time.Millisecond):
	}

	require.True(t, c.SetPingInterval(20*time.Millisecond))
	select {
	case <-pings:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping after interval changed")
	}

	c.Close()
	waitErr(t, done)
}

func TestRun_Twice(t *testing.T) {
	url := newServer(t, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
	})

	c, err := Dial(context.Background(), url)
	require.NoError(t, err)

	done := runConn(c, func([]byte) {})
	// 等待第一次 Run 占用
	require.Eventually(t, func() bool { return c.running.Load() }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, c.Run(func([]byte) {}), ErrAlreadyRunning)

	c.Close()
	waitErr(t, done)
}

func TestClose_BeforeRun(t *testing.T) {
	url := newServer(t, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
	})

	c, err := Dial(context.Background(), url)
	require.NoError(t, err)

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Run(func([]byte) {}), ErrConnectionClosed)
}

func TestDial_HandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	var he *HandshakeError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusUnauthorized, he.StatusCode)
}

func TestDial_InvalidConfig(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1",
		WithPingInterval(time.Minute),
		WithPongWait(time.Second),
	)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSend_QueueFull(t *testing.T) {
	url := newServer(t, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
	})

	c, err := Dial(context.Background(), url, WithSendQueueSize(1))
	require.NoError(t, err)
	defer c.Close()

	m := &countingMetrics{}
	c.metrics = m

	// 未 Run 时没有写协程消费队列
	require.NoError(t, c.SendBytes([]byte("a")))
	assert.ErrorIs(t, c.SendBytes([]byte("b")), ErrChannelFull)
	assert.Equal(t, 1, m.dropped)
}

type countingMetrics struct {
	reads, writes, dropped int
}

func (m *countingMetrics) IncrementReadErrors()      { m.reads++ }
func (m *countingMetrics) IncrementWriteErrors()     { m.writes++ }
func (m *countingMetrics) IncrementDroppedMessages() { m.dropped++ }

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"zero handshake", func(c *Config) { c.HandshakeTimeout = 0 }, true},
		{"zero read buffer", func(c *Config) { c.ReadBufferSize = 0 }, true},
		{"pong not after ping", func(c *Config) { c.PongWait = c.PingInterval }, true},
		{"zero high queue", func(c *Config) { c.HighPriorityQueueSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
