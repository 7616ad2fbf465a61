package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chathub/pkg/types"
)

const (
	writeBuffer  = 100
	writeTimeout = 5 * time.Second
)

type outbound struct {
	data      []byte
	closeCode int
	reason    string
}

// Connection implements the interfaces.Connection interface
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent race conditions
// so every frame goes through one writer goroutine fed by a buffered channel
type Connection struct {
	id            string
	conn          *websocket.Conn
	writeCh       chan outbound // FUNCTIONAL DISCOVERY: 100 buffer absorbs history bursts on join
	identity      types.Identity
	authenticated bool
	ctx           context.Context
	cancel        context.CancelFunc
	closeOnce     sync.Once
	mu            sync.RWMutex // protects identity fields
	logger        *zap.Logger
}

// NewConnection wraps conn and starts its writer.
func NewConnection(conn *websocket.Conn, logger *zap.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:      uuid.NewString(),
		conn:    conn,
		writeCh: make(chan outbound, writeBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.logger = logger.With(zap.String("conn_id", c.id))

	go c.writeLoop()
	return c
}

// ARCHITECTURAL DISCOVERY: the channel is never closed; the loop exits on cancel,
// so a late WriteJSON can never panic on a closed channel
func (c *Connection) writeLoop() {
	for {
		select {
		case msg := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				_ = c.Close()
				return
			}

			if msg.closeCode != 0 {
				frame := websocket.FormatCloseMessage(msg.closeCode, msg.reason)
				_ = c.conn.WriteMessage(websocket.CloseMessage, frame)
				_ = c.Close()
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				c.logger.Debug("write failed, closing connection", zap.Error(err))
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) ID() string { return c.id }

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

// WriteJSON queues v for the writer goroutine.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.enqueue(outbound{data: data})
}

// CloseWithReason flushes queued frames, sends a close frame and closes.
func (c *Connection) CloseWithReason(code int, reason string) error {
	return c.enqueue(outbound{closeCode: code, reason: reason})
}

func (c *Connection) enqueue(msg outbound) error {
	timer := time.NewTimer(writeTimeout)
	defer timer.Stop()

	select {
	case c.writeCh <- msg:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close is idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// SetIdentity binds the connection once; rebinding is refused.
func (c *Connection) SetIdentity(identity types.Identity) error {
	if identity.UserID <= 0 {
		return ErrInvalidIdentity
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authenticated && c.identity.UserID != identity.UserID {
		return ErrAlreadyBound
	}
	c.identity = identity
	c.authenticated = true
	return nil
}

func (c *Connection) Identity() types.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

func (c *Connection) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}
