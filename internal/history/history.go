// Package history notifies the call-history service of room lifecycle
// boundaries. Recording is strictly fire-and-forget: the signaling hub must
// never block on the broker, so events go through a bounded queue and are
// dropped when it is full.
package history

import (
	"log/slog"
	"time"

	"github.com/streadway/amqp"
	"github.com/vmihailenco/msgpack/v5"
)

// Event kinds published to the broker.
const (
	EventRoomCreated   = "room_created"
	EventRoomDestroyed = "room_destroyed"
)

// Event is the call-history record for one room boundary.
type Event struct {
	Kind      string    `msgpack:"kind"`
	RoomID    string    `msgpack:"room_id"`
	MemberID  string    `msgpack:"member_id,omitempty"`
	Members   int       `msgpack:"members"`
	Timestamp time.Time `msgpack:"timestamp"`
}

// Recorder receives room lifecycle notifications.
type Recorder interface {
	RoomCreated(roomID, ownerID string)
	RoomDestroyed(roomID string)
	Close()
}

// Nop is the Recorder used when no broker is configured.
type Nop struct{}

func (Nop) RoomCreated(string, string) {}
func (Nop) RoomDestroyed(string)       {}
func (Nop) Close()                     {}

// publisher is the slice of the AMQP channel API the recorder needs.
type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPRecorder publishes msgpack-encoded events to a queue.
type AMQPRecorder struct {
	conn  *amqp.Connection
	ch    publisher
	queue string
	out   chan Event
	done  chan struct{}
}

// queueDepth bounds the in-flight events; beyond it events are dropped.
const queueDepth = 256

// NewAMQPRecorder dials the broker and declares the call-history queue.
func NewAMQPRecorder(url, queue string) (*AMQPRecorder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	r := &AMQPRecorder{
		conn:  conn,
		ch:    ch,
		queue: queue,
		out:   make(chan Event, queueDepth),
		done:  make(chan struct{}),
	}
	go r.run()
	return r, nil
}

func (r *AMQPRecorder) run() {
	for {
		select {
		case ev := <-r.out:
			if err := r.publish(ev); err != nil {
				slog.Warn("history publish failed", "kind", ev.Kind, "room", ev.RoomID, "err", err)
			}
		case <-r.done:
			// Drain what is already queued, then stop.
			for {
				select {
				case ev := <-r.out:
					r.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *AMQPRecorder) publish(ev Event) error {
	body, err := msgpack.Marshal(ev)
	if err != nil {
		return err
	}
	return r.ch.Publish("", r.queue, false, false, amqp.Publishing{
		ContentType: "application/msgpack",
		Timestamp:   ev.Timestamp,
		Body:        body,
	})
}

func (r *AMQPRecorder) enqueue(ev Event) {
	select {
	case r.out <- ev:
	default:
		slog.Warn("history queue full, dropping event", "kind", ev.Kind, "room", ev.RoomID)
	}
}

func (r *AMQPRecorder) RoomCreated(roomID, ownerID string) {
	r.enqueue(Event{
		Kind:      EventRoomCreated,
		RoomID:    roomID,
		MemberID:  ownerID,
		Members:   1,
		Timestamp: time.Now().UTC(),
	})
}

func (r *AMQPRecorder) RoomDestroyed(roomID string) {
	r.enqueue(Event{
		Kind:      EventRoomDestroyed,
		RoomID:    roomID,
		Timestamp: time.Now().UTC(),
	})
}

// Close stops the publish loop and closes the connection.
func (r *AMQPRecorder) Close() {
	close(r.done)
	if r.conn != nil {
		r.conn.Close()
	}
}
