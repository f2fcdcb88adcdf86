package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/salvo/internal/config"
	"github.com/zeusync/salvo/internal/core/battery"
	"github.com/zeusync/salvo/internal/core/events/bus"
	"github.com/zeusync/salvo/internal/core/observability/log"
)

// launchServer runs a server until the returned stop function is called. stop
// reports what Run returned, failing the test if it does not return in time.
func launchServer(t *testing.T, cfg config.Config) (*Server, func() error) {
	t.Helper()
	svc, err := NewService(cfg, log.Nop(), nil)
	require.NoError(t, err)
	srv := New(cfg.Server, svc, log.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server did not become ready")
	}

	var once sync.Once
	var runErr error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case runErr = <-done:
			case <-time.After(10 * time.Second):
				runErr = errors.New("server did not stop")
			}
		})
		return runErr
	}
	t.Cleanup(func() { assert.NoError(t, stop()) })
	return srv, stop
}

func startServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	srv, _ := launchServer(t, cfg)
	return srv
}

func dialQUIC(t *testing.T, srv *Server) *quic.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := quic.DialAddr(ctx, srv.QUICAddr().String(), &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPN},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseWithError(quic.ApplicationErrorCode(0), "") })
	return conn
}

type replyWire struct {
	ID     string          `json:"id"`
	Action string          `json:"action"`
	OK     bool            `json:"ok"`
	Error  string          `json:"error"`
	Data   json.RawMessage `json:"data"`
}

func quicRoundTrip(t *testing.T, conn *quic.Conn, cmds ...Command) []replyWire {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := conn.OpenStreamSync(ctx)
	require.NoError(t, err)
	require.NoError(t, stream.SetDeadline(time.Now().Add(5*time.Second)))

	enc := json.NewEncoder(stream)
	for _, cmd := range cmds {
		require.NoError(t, enc.Encode(cmd))
	}
	require.NoError(t, stream.Close())

	replies := make([]replyWire, 0, len(cmds))
	r := bufio.NewReader(stream)
	for range cmds {
		line, err := r.ReadBytes('\n')
		require.NoError(t, err)
		var reply replyWire
		require.NoError(t, json.Unmarshal(line, &reply))
		replies = append(replies, reply)
	}
	return replies
}

func TestServerQUICCommands(t *testing.T) {
	srv := startServer(t, testConfig())
	conn := dialQUIC(t, srv)

	shot := referenceShot()
	replies := quicRoundTrip(t, conn,
		Command{ID: "s1", Action: ActionSolve, Request: &shot},
		Command{ID: "st", Action: ActionStatus},
		Command{ID: "x", Action: "launch"},
	)
	require.Len(t, replies, 3)

	assert.Equal(t, "s1", replies[0].ID)
	assert.True(t, replies[0].OK)
	var res solveWire
	require.NoError(t, json.Unmarshal(replies[0].Data, &res))
	assert.InDelta(t, 11.552, res.Selection.AngleDeg, 0.01)

	assert.True(t, replies[1].OK)
	assert.False(t, replies[2].OK)
	assert.Contains(t, replies[2].Error, ErrUnknownAction.Error())
}

func TestServerQUICToken(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AuthToken = "s3cret"
	srv := startServer(t, cfg)
	conn := dialQUIC(t, srv)

	replies := quicRoundTrip(t, conn,
		Command{ID: "a", Action: ActionStatus},
		Command{ID: "b", Action: ActionStatus, Token: "s3cret"},
	)
	assert.False(t, replies[0].OK)
	assert.Equal(t, ErrUnauthorized.Error(), replies[0].Error)
	assert.True(t, replies[1].OK)
}

func TestServerRunsSalvo(t *testing.T) {
	srv := startServer(t, testConfig())

	completed := make(chan battery.Salvo, 1)
	_, err := srv.Service().Bus().Subscribe(battery.EventSalvoCompleted, func(e bus.Event) error {
		completed <- e.Data().(battery.Salvo)
		return nil
	})
	require.NoError(t, err)

	base := "http://" + srv.HTTPAddr().String()
	resp := doJSON(t, http.MethodPost, base+"/v1/mark", "", map[string]any{
		"target": map[string]float64{"z": 500},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doJSON(t, http.MethodPost, base+"/v1/fire", "", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case s := <-completed:
		assert.Len(t, s.Units, 3)
		assert.Equal(t, 3, s.Fired)
	case <-time.After(10 * time.Second):
		t.Fatal("salvo did not complete")
	}
}

func TestServerRejectsSecondRun(t *testing.T) {
	srv := startServer(t, testConfig())
	assert.ErrorIs(t, srv.Run(context.Background()), ErrServerAlreadyRunning)
}

func TestServerStopsWithOpenQUICStream(t *testing.T) {
	srv, stop := launchServer(t, testConfig())
	conn := dialQUIC(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := conn.OpenStreamSync(ctx)
	require.NoError(t, err)
	require.NoError(t, stream.SetDeadline(time.Now().Add(10*time.Second)))

	// One round trip, then leave the stream open.
	require.NoError(t, json.NewEncoder(stream).Encode(Command{ID: "1", Action: ActionStatus}))
	_, err = bufio.NewReader(stream).ReadBytes('\n')
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, stop())
	assert.Less(t, time.Since(start), shutdownTimeout)
}

func TestServerQUICOnly(t *testing.T) {
	cfg := testConfig()
	cfg.Server.HTTPAddr = ""
	srv := startServer(t, cfg)

	assert.Nil(t, srv.HTTPAddr())
	require.NotNil(t, srv.QUICAddr())

	replies := quicRoundTrip(t, dialQUIC(t, srv), Command{ID: "st", Action: ActionStatus})
	require.Len(t, replies, 1)
	assert.True(t, replies[0].OK)
}

func TestServerClosesWebSocketClientsOnStop(t *testing.T) {
	srv, stop := launchServer(t, testConfig())
	conn := dialWS(t, wsURL("http://"+srv.HTTPAddr().String()))

	require.NoError(t, conn.WriteJSON(Command{ID: "st", Action: ActionStatus}))
	readUntilReply(t, conn, "st")
	assert.Eventually(t, func() bool { return srv.ws.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, stop())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway) || !isTimeout(err),
			"client should see the server close, got %v", err)
		break
	}
	assert.Eventually(t, func() bool { return srv.ws.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
