package negotiator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/bookstore-consent-api/internal/system/error/serviceerror"
)

// startBridgeServer runs serve for every upgraded connection
func startBridgeServer(t *testing.T, serve func(*Bridge)) *websocket.Conn {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		bridge := NewBridge(conn, logger).WithOpenTimeout(time.Second)
		defer bridge.Shutdown()
		serve(bridge)
	}))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readCommand(t *testing.T, conn *websocket.Conn) BridgeCommand {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var cmd BridgeCommand
	require.NoError(t, conn.ReadJSON(&cmd))
	return cmd
}

func sendEvent(t *testing.T, conn *websocket.Conn, event BridgeEvent) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(event))
}

func TestBridge_FullNegotiation(t *testing.T) {
	results := make(chan Result, 4)

	conn := startBridgeServer(t, func(bridge *Bridge) {
		session, err := newTestNegotiator(&fakeIssuer{}).Start(context.Background(), bridge, Request{
			SubjectID: "user123",
			TenantID:  "mall001",
			Callback: func(result Result) {
				results <- result
				_ = bridge.SendResult(result)
			},
		})
		if err != nil {
			return
		}
		<-session.Done()
	})

	open := readCommand(t, conn)
	assert.Equal(t, CommandOpen, open.Command)
	assert.Equal(t, brokerOrigin+"/consent", open.URL)
	sendEvent(t, conn, BridgeEvent{Event: EventOpened})

	sendEvent(t, conn, BridgeEvent{Event: EventMessage, Origin: brokerOrigin, Data: json.RawMessage(`{"type":"ready"}`)})
	post := readCommand(t, conn)
	assert.Equal(t, CommandPost, post.Command)
	assert.Equal(t, brokerOrigin, post.TargetOrigin)
	data, ok := post.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, MessageTypeInitConsent, data["type"])
	assert.Equal(t, "auth-token-for-user123", data["token"])

	sendEvent(t, conn, BridgeEvent{Event: EventMessage, Origin: brokerOrigin, Data: json.RawMessage(`{"type":"consent_result","consentType":"always","token":"opaque"}`)})
	sendEvent(t, conn, BridgeEvent{Event: EventMessage, Origin: brokerOrigin, Data: json.RawMessage(`{"type":"consent_rejected"}`)})

	assert.Equal(t, CommandClose, readCommand(t, conn).Command)
	result := readCommand(t, conn)
	assert.Equal(t, CommandResult, result.Command)
	require.NotNil(t, result.Result)
	assert.True(t, result.Result.Agreed)
	assert.Equal(t, "opaque", result.Result.EmbeddedToken)

	select {
	case got := <-results:
		assert.True(t, got.Agreed)
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}
	assert.Empty(t, results)
}

func TestBridge_BlockedWindow(t *testing.T) {
	errs := make(chan error, 1)

	conn := startBridgeServer(t, func(bridge *Bridge) {
		_, err := newTestNegotiator(&fakeIssuer{}).Start(context.Background(), bridge, Request{SubjectID: "user123"})
		errs <- err
		if desc := serviceerror.Describe(err); desc != nil {
			_ = bridge.SendNotice(desc.Error, desc.ErrorDescription)
		}
	})

	assert.Equal(t, CommandOpen, readCommand(t, conn).Command)
	sendEvent(t, conn, BridgeEvent{Event: EventBlocked})

	notice := readCommand(t, conn)
	assert.Equal(t, CommandNotice, notice.Command)
	assert.Equal(t, serviceerror.PresentationBlockedError.Error, notice.Code)
	assert.NotEmpty(t, notice.Message)

	assert.ErrorIs(t, <-errs, serviceerror.ErrPresentationBlocked)
}

func TestBridge_ClosedWindowAbandons(t *testing.T) {
	states := make(chan State, 1)

	conn := startBridgeServer(t, func(bridge *Bridge) {
		session, err := newTestNegotiator(&fakeIssuer{}).Start(context.Background(), bridge, Request{SubjectID: "user123"})
		if err != nil {
			return
		}
		<-session.Done()
		states <- session.State()
	})

	assert.Equal(t, CommandOpen, readCommand(t, conn).Command)
	sendEvent(t, conn, BridgeEvent{Event: EventOpened})
	sendEvent(t, conn, BridgeEvent{Event: EventClosed})

	select {
	case state := <-states:
		assert.Equal(t, StateAbandoned, state)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
}
