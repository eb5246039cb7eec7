package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/logging"
)

// Scan is a barcode delivered to a session.
type Scan struct {
	ID      string
	Barcode string
	Scanner string
}

// SessionClient is the session side of the bridge. Scans arrive on Scans
// and Vibrate sends haptic feedback to the scanner that produced the latest
// scan.
type SessionClient struct {
	ws      *websocket.Conn
	scans   chan Scan
	done    chan struct{}
	closing chan struct{}

	writeMu sync.Mutex
	once    sync.Once
	id      string
}

// DialSession connects to a bridge session endpoint. name, when set, is
// advertised so scanners can address this session.
func DialSession(ctx context.Context, rawURL, name string) (*SessionClient, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid bridge url: %w", err)
	}
	if name != "" {
		q := u.Query()
		q.Set("name", name)
		u.RawQuery = q.Encode()
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bridge %s: %w", u.Redacted(), err)
	}
	ws.SetReadLimit(maxMessageSize)

	c := &SessionClient{
		ws:      ws,
		scans:   make(chan Scan, sendBuffer),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}

	hello, err := c.readMessage()
	if err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("bridge handshake failed: %w", err)
	}
	if hello.Type != TypeHello {
		_ = ws.Close()
		return nil, fmt.Errorf("bridge handshake failed: unexpected %q", hello.Type)
	}
	c.id = hello.ID

	go c.readLoop()
	return c, nil
}

// ID is the identifier the bridge assigned to this session.
func (c *SessionClient) ID() string {
	return c.id
}

// Scans delivers incoming scans. It is closed when the connection ends.
func (c *SessionClient) Scans() <-chan Scan {
	return c.scans
}

// Done is closed when the connection ends.
func (c *SessionClient) Done() <-chan struct{} {
	return c.done
}

func (c *SessionClient) readMessage() (*Message, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return DecodeMessage(data)
}

func (c *SessionClient) readLoop() {
	defer func() {
		close(c.scans)
		close(c.done)
	}()
	for {
		msg, err := c.readMessage()
		if err != nil {
			if errors.Is(err, ErrInvalidMessage) {
				logging.Warn("Ignoring invalid bridge message", zap.Error(err))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Info("Bridge connection closed", zap.Error(err))
			}
			return
		}
		switch msg.Type {
		case TypeScan:
			select {
			case c.scans <- Scan{ID: msg.ID, Barcode: msg.Barcode, Scanner: msg.Scanner}:
			case <-c.closing:
				return
			}
		case TypeError:
			logging.Warn("Bridge rejected a message", zap.String("error", msg.Error))
		}
	}
}

// Vibrate asks the bridge to vibrate the last scanner. Errors are logged;
// haptics are best effort.
func (c *SessionClient) Vibrate(d time.Duration) {
	ms := int(d / time.Millisecond)
	if ms <= 0 {
		return
	}
	if err := c.write(&Message{Type: TypeVibrate, Ms: ms}); err != nil {
		logging.Debug("Vibrate request failed", zap.Error(err))
	}
}

func (c *SessionClient) write(msg *Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close ends the connection.
func (c *SessionClient) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closing)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// PushScan connects to a bridge scanner endpoint, sends one barcode and
// returns the acknowledgement. session, when set, targets a named session.
func PushScan(ctx context.Context, rawURL, barcode, session string) (*Message, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bridge: %w", err)
	}
	defer ws.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(deadline)
		_ = ws.SetWriteDeadline(deadline)
	}

	data, err := (&Message{Type: TypeScan, Barcode: barcode, Session: session}).Encode()
	if err != nil {
		return nil, err
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return nil, fmt.Errorf("failed to send scan: %w", err)
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read acknowledgement: %w", err)
		}
		msg, err := DecodeMessage(data)
		if err != nil {
			return nil, err
		}
		switch msg.Type {
		case TypeAck:
			return msg, nil
		case TypeError:
			return nil, fmt.Errorf("bridge rejected scan: %s", msg.Error)
		}
	}
}
