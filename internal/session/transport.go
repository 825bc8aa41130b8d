package session

import (
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/janhae4/DATN-sub006/internal/dns"
	"github.com/janhae4/DATN-sub006/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Transport manages the websocket connection to signald. Incoming envelopes
// arrive on a channel that closes when the connection drops, which is how the
// session learns about a disconnect.
type Transport struct {
	conn      *websocket.Conn
	serverURL string
	incoming  chan *protocol.Envelope
	outgoing  chan *protocol.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

// NewTransport creates a transport for the given signald URL. Call Connect
// before use.
func NewTransport(serverURL string) *Transport {
	return &Transport{
		serverURL: serverURL,
		incoming:  make(chan *protocol.Envelope, 32),
		outgoing:  make(chan *protocol.Envelope, 32),
		done:      make(chan struct{}, 1),
	}
}

// Connect dials the server and starts the read and write pumps.
func (t *Transport) Connect() error {
	u, err := url.Parse(t.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := websocket.DefaultDialer
	dialer.NetDial = func(network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		resolved, err := dns.Lookup(host)
		if err != nil {
			return nil, fmt.Errorf("dns lookup failed: %w", err)
		}
		return net.Dial(network, net.JoinHostPort(resolved, port))
	}

	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	t.conn = conn

	t.conn.SetReadLimit(maxMessageSize)
	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go t.readPump()
	go t.writePump()
	return nil
}

func (t *Transport) readPump() {
	defer func() {
		t.conn.Close()
		close(t.incoming)
	}()

	t.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var env protocol.Envelope
		if err := t.conn.ReadJSON(&env); err != nil {
			return
		}
		t.incoming <- &env
	}
}

func (t *Transport) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		t.conn.Close()
	}()

	for {
		select {
		case env := <-t.outgoing:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteJSON(env); err != nil {
				return
			}

		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-t.done:
			// Drain queued envelopes so a final leave is not lost to the
			// close frame.
			for {
				select {
				case env := <-t.outgoing:
					t.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := t.conn.WriteJSON(env); err != nil {
						return
					}
				default:
					t.conn.SetWriteDeadline(time.Now().Add(writeWait))
					t.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

// Send queues an envelope for delivery.
func (t *Transport) Send(env *protocol.Envelope) {
	select {
	case t.outgoing <- env:
	case <-t.done:
	}
}

// Incoming returns the inbound envelope stream. The channel closes when the
// connection is gone.
func (t *Transport) Incoming() <-chan *protocol.Envelope {
	return t.incoming
}

// Close sends a close frame and tears the connection down. Safe to call from
// multiple goroutines; teardown can race a server-side disconnect.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		close(t.done)
	})
}
