package negotiator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/wso2/bookstore-consent-api/internal/system/error/serviceerror"
)

// Commands sent to the browser shim
const (
	CommandOpen   = "open"
	CommandPost   = "post"
	CommandClose  = "close"
	CommandResult = "result"
	CommandNotice = "notice"
)

// Events received from the browser shim
const (
	EventOpened  = "opened"
	EventBlocked = "blocked"
	EventMessage = "message"
	EventClosed  = "closed"
)

const (
	defaultOpenTimeout = 30 * time.Second
	writeTimeout       = 10 * time.Second
	maxEventBytes      = 64 * 1024
	inboundBuffer      = 16
)

// BridgeCommand is a server to browser frame
type BridgeCommand struct {
	Command      string  `json:"command"`
	URL          string  `json:"url,omitempty"`
	TargetOrigin string  `json:"targetOrigin,omitempty"`
	Data         any     `json:"data,omitempty"`
	Result       *Result `json:"result,omitempty"`
	Code         string  `json:"code,omitempty"`
	Message      string  `json:"message,omitempty"`
}

// BridgeEvent is a browser to server frame
type BridgeEvent struct {
	Event  string          `json:"event"`
	Origin string          `json:"origin,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Bridge relays the surface over a websocket to a browser shim that owns the
// real window. It is both the Opener and the opened Surface.
type Bridge struct {
	conn        *websocket.Conn
	openTimeout time.Duration
	logger      *logrus.Logger

	writeMu sync.Mutex

	opened  chan bool
	inbound chan Envelope
	done    chan struct{}
	stop    chan struct{}

	doneOnce     sync.Once
	stopOnce     sync.Once
	closeCmdOnce sync.Once
}

// NewBridge wraps an upgraded connection and starts reading events
func NewBridge(conn *websocket.Conn, logger *logrus.Logger) *Bridge {
	b := &Bridge{
		conn:        conn,
		openTimeout: defaultOpenTimeout,
		logger:      logger,
		opened:      make(chan bool, 1),
		inbound:     make(chan Envelope, inboundBuffer),
		done:        make(chan struct{}),
		stop:        make(chan struct{}),
	}
	conn.SetReadLimit(maxEventBytes)
	go b.readLoop()
	return b
}

// WithOpenTimeout sets how long Open waits for the shim to report the window
func (b *Bridge) WithOpenTimeout(timeout time.Duration) *Bridge {
	b.openTimeout = timeout
	return b
}

// Open asks the shim to open url. A blocked window, or no answer before the
// open timeout, is ErrPresentationBlocked.
func (b *Bridge) Open(ctx context.Context, url string) (Surface, error) {
	if err := b.write(BridgeCommand{Command: CommandOpen, URL: url}); err != nil {
		return nil, fmt.Errorf("failed to send open command: %w", err)
	}

	timer := time.NewTimer(b.openTimeout)
	defer timer.Stop()

	select {
	case ok := <-b.opened:
		if !ok {
			return nil, fmt.Errorf("%w: window was blocked by the browser", serviceerror.ErrPresentationBlocked)
		}
		return b, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: no response from browser after %s", serviceerror.ErrPresentationBlocked, b.openTimeout)
	case <-b.done:
		return nil, fmt.Errorf("%w: browser disconnected before the window opened", serviceerror.ErrPresentationBlocked)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Post asks the shim to postMessage data to the window, restricted to targetOrigin
func (b *Bridge) Post(_ context.Context, targetOrigin string, data any) error {
	return b.write(BridgeCommand{Command: CommandPost, TargetOrigin: targetOrigin, Data: data})
}

// Inbound delivers window messages relayed by the shim
func (b *Bridge) Inbound() <-chan Envelope {
	return b.inbound
}

// Done is closed when the window closes or the shim disconnects
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Close asks the shim to close the window. The connection stays open so a
// result or notice can still be sent.
func (b *Bridge) Close() error {
	var err error
	b.closeCmdOnce.Do(func() {
		err = b.write(BridgeCommand{Command: CommandClose})
	})
	return err
}

// SendResult reports the accepted decision to the shim
func (b *Bridge) SendResult(result Result) error {
	return b.write(BridgeCommand{Command: CommandResult, Result: &result})
}

// SendNotice reports a user-facing notice to the shim
func (b *Bridge) SendNotice(code, message string) error {
	return b.write(BridgeCommand{Command: CommandNotice, Code: code, Message: message})
}

// Shutdown closes the websocket
func (b *Bridge) Shutdown() {
	b.stopOnce.Do(func() {
		close(b.stop)
		b.writeMu.Lock()
		_ = b.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		b.writeMu.Unlock()
		_ = b.conn.Close()
	})
}

func (b *Bridge) write(cmd BridgeCommand) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if err := b.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return b.conn.WriteJSON(cmd)
}

func (b *Bridge) readLoop() {
	defer close(b.inbound)
	defer b.markDone()

	for {
		var event BridgeEvent
		if err := b.conn.ReadJSON(&event); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.WithError(err).Debug("Negotiation bridge read ended")
			}
			return
		}

		switch event.Event {
		case EventOpened, EventBlocked:
			select {
			case b.opened <- event.Event == EventOpened:
			default:
			}
		case EventMessage:
			select {
			case b.inbound <- Envelope{Origin: event.Origin, Data: event.Data}:
			case <-b.stop:
				return
			}
		case EventClosed:
			b.markDone()
		default:
			b.logger.WithField("event", event.Event).Debug("Ignored unknown bridge event")
		}
	}
}

func (b *Bridge) markDone() {
	b.doneOnce.Do(func() { close(b.done) })
}
