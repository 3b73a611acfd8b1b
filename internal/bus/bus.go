// Package bus implements the cross-process message-passing fabric: four
// typed channels (upstream, broadcast, stream, critical) plus a
// per-worker command inbox, the only way workers, the orchestrator and
// the (out-of-scope) endpoint talk to each other.
package bus

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BrunoKrugel/bikefit-vision/internal/logging"
)

const (
	upstreamCap  = 1000
	broadcastCap = 1000
	streamCap    = 10
	commandCap   = 100

	publishTimeout = 100 * time.Millisecond
)

// Event is the generic {type, payload} envelope carried on the upstream
// and broadcast channels.
type Event struct {
	Type    string
	Payload any
}

// Command is one instruction routed to a worker's pipeline engine (or
// consumed directly by the worker for SET_SALT/SET_CONFIG).
type Command struct {
	ID     uuid.UUID
	Target string
	Cmd    string
	Args   map[string]any
}

// Bus is the process-wide coordinator: the single instance every worker
// and the orchestrator share.
type Bus struct {
	log *logging.Logger

	upstream  chan Event
	broadcast chan Event
	stream    chan any
	critical  *unboundedQueue[Event]

	mu       sync.RWMutex
	commands map[int]chan Command
}

// New constructs an empty bus with all four channels allocated at their
// spec'd capacities.
func New() *Bus {
	return &Bus{
		log:       logging.For("bus"),
		upstream:  make(chan Event, upstreamCap),
		broadcast: make(chan Event, broadcastCap),
		stream:    make(chan any, streamCap),
		critical:  newUnboundedQueue[Event](),
		commands:  make(map[int]chan Command),
	}
}

// PublishStream pushes a stream-channel payload (a per-frame JSON-shaped
// sample). On a full channel, the oldest queued sample is dropped and the
// new one is retried once; persistent failure beyond that is tolerated
// silently, matching the channel's drop-oldest policy.
func (b *Bus) PublishStream(payload any) {
	select {
	case b.stream <- payload:
		return
	default:
	}
	select {
	case <-b.stream:
	default:
	}
	select {
	case b.stream <- payload:
	default:
	}
}

// PublishCritical enqueues a handshake (or other never-drop) message. The
// queue is unbounded, so this never blocks on capacity.
func (b *Bus) PublishCritical(e Event) {
	b.critical.Push(e)
}

var upstreamKinds = map[string]bool{
	"heartbeat":     true,
	"error":         true,
	"worker_status": true,
}

// PublishUpstream sends a worker->orchestrator event. Only heartbeat,
// error and worker_status are accepted; anything else is a programmer
// error and is dropped with a log line. Bounded by publishTimeout; on a
// full channel the event is dropped.
func (b *Bus) PublishUpstream(eventType string, payload any) {
	if !upstreamKinds[eventType] {
		b.log.Printf("dropped unsupported upstream event type %q", eventType)
		return
	}
	b.sendBounded(b.upstream, Event{Type: eventType, Payload: payload})
}

// PublishBroadcast sends an orchestrator->endpoint event, bounded by
// publishTimeout; dropped on a full channel.
func (b *Bus) PublishBroadcast(eventType string, payload any) {
	b.sendBounded(b.broadcast, Event{Type: eventType, Payload: payload})
}

func (b *Bus) sendBounded(ch chan Event, e Event) {
	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case ch <- e:
	case <-timer.C:
		b.log.Printf("dropped %q event: channel full after %s", e.Type, publishTimeout)
	}
}

// Upstream exposes the upstream channel for draining by the orchestrator.
func (b *Bus) Upstream() <-chan Event { return b.upstream }

// Broadcast exposes the broadcast channel for draining by the endpoint.
func (b *Bus) Broadcast() <-chan Event { return b.broadcast }

// Stream exposes the stream channel for draining by the endpoint.
func (b *Bus) Stream() <-chan any { return b.stream }

// NextCritical blocks until a critical message is available.
func (b *Bus) NextCritical() Event { return b.critical.Pop() }

// RegisterWorker allocates (or returns the existing) command inbox for a
// camera. Idempotent per camera id.
func (b *Bus) RegisterWorker(cameraID int) <-chan Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.commands[cameraID]; ok {
		return ch
	}
	ch := make(chan Command, commandCap)
	b.commands[cameraID] = ch
	b.log.Printf("registered command inbox for camera %d", cameraID)
	return ch
}

// SendCommand resolves target and delivers cmd/args to the matching
// worker inbox, or to every inbox if target does not resolve to a known
// camera id.
func (b *Bus) SendCommand(target string, cmd string, args map[string]any) {
	id := uuid.New()
	if camID, ok := resolveCameraID(target); ok {
		b.mu.RLock()
		_, known := b.commands[camID]
		b.mu.RUnlock()
		if known {
			b.sendToInbox(camID, Command{ID: id, Target: target, Cmd: cmd, Args: args})
			return
		}
	}

	b.mu.RLock()
	ids := make([]int, 0, len(b.commands))
	for camID := range b.commands {
		ids = append(ids, camID)
	}
	b.mu.RUnlock()

	for _, camID := range ids {
		b.sendToInbox(camID, Command{ID: id, Target: target, Cmd: cmd, Args: args})
	}
}

func (b *Bus) sendToInbox(cameraID int, cmd Command) {
	b.mu.RLock()
	ch, ok := b.commands[cameraID]
	b.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case ch <- cmd:
	default:
		b.log.Printf("command inbox full for camera %d, dropping %q", cameraID, cmd.Cmd)
	}
}

// resolveCameraID implements the target-resolution rule: "cam_<n>" /
// "camera_<n>", or a bare integer, resolve to a specific worker; anything
// else does not resolve (the caller then fans out to all workers).
func resolveCameraID(target string) (int, bool) {
	t := target
	switch {
	case strings.HasPrefix(t, "cam_"):
		t = strings.TrimPrefix(t, "cam_")
	case strings.HasPrefix(t, "camera_"):
		t = strings.TrimPrefix(t, "camera_")
	}
	n, err := strconv.Atoi(t)
	if err != nil {
		return 0, false
	}
	return n, true
}
