package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies a ProgressEvent (§3 Progress event).
type EventType int

const (
	EventStateChanged EventType = iota + 1
	EventTransferProgress
	EventFileOffer
	EventFileCompleted
	EventTransferComplete
	EventError
	EventConnectionTypeChanged
)

func (e EventType) String() string {
	switch e {
	case EventStateChanged:
		return "STATE_CHANGED"
	case EventTransferProgress:
		return "TRANSFER_PROGRESS"
	case EventFileOffer:
		return "FILE_OFFER"
	case EventFileCompleted:
		return "FILE_COMPLETED"
	case EventTransferComplete:
		return "TRANSFER_COMPLETE"
	case EventError:
		return "ERROR"
	case EventConnectionTypeChanged:
		return "CONNECTION_TYPE_CHANGED"
	default:
		return "UNKNOWN"
	}
}

// OfferedFile is the subset of FileDescriptor a UI needs to render an
// incoming offer (§3 FileOffer event).
type OfferedFile struct {
	Name string
	Size uint64
}

// ProgressEvent is the one shape every orchestrator event is reported
// as; only the fields relevant to Type are populated, mirroring the
// wire protocol.Message convention.
type ProgressEvent struct {
	SessionID uuid.UUID
	Type      EventType
	Timestamp time.Time

	State string // EventStateChanged

	BytesTransferred uint64  // EventTransferProgress
	BytesTotal       uint64  // EventTransferProgress
	SpeedBps         float64 // EventTransferProgress
	ETASeconds       float64 // EventTransferProgress
	CurrentFile      string  // EventTransferProgress
	Percent          float64 // EventTransferProgress

	Files []OfferedFile // EventFileOffer

	FileName string // EventFileCompleted

	ErrorKind    ErrorKind // EventError
	ErrorMessage string    // EventError

	Transport string // EventConnectionTypeChanged
}

// Subscription is one listener's feed of events, optionally scoped to
// a single session.
type Subscription struct {
	id              uuid.UUID
	sessionIDFilter uuid.UUID
	hasFilter       bool
	Channel         chan ProgressEvent
}

// Publisher fans ProgressEvents out to every subscriber whose filter
// matches, dropping events for subscribers that fall behind rather
// than blocking the transfer on a slow UI (§4.6 backpressure note:
// the progress stream is best-effort, unlike the chunk pipeline).
type Publisher struct {
	mu            sync.RWMutex
	subscriptions map[uuid.UUID]*Subscription
	bufferSize    int
}

// NewPublisher creates a publisher whose per-subscriber channel holds
// bufferSize pending events.
func NewPublisher(bufferSize int) *Publisher {
	return &Publisher{
		subscriptions: make(map[uuid.UUID]*Subscription),
		bufferSize:    bufferSize,
	}
}

// Subscribe opens a feed, optionally filtered to one session. An
// empty sessionID subscribes to every session.
func Subscribe(p *Publisher, sessionID uuid.UUID) *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub := &Subscription{
		id:              uuid.New(),
		sessionIDFilter: sessionID,
		hasFilter:       sessionID != uuid.Nil,
		Channel:         make(chan ProgressEvent, p.bufferSize),
	}
	p.subscriptions[sub.id] = sub
	return sub
}

// Unsubscribe closes and removes a subscription.
func (p *Publisher) Unsubscribe(sub *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subscriptions[sub.id]; ok {
		close(sub.Channel)
		delete(p.subscriptions, sub.id)
	}
}

// Publish delivers event to every matching subscriber.
func (p *Publisher) Publish(event ProgressEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, sub := range p.subscriptions {
		if sub.hasFilter && sub.sessionIDFilter != event.SessionID {
			continue
		}
		select {
		case sub.Channel <- event:
		default:
			// slow consumer, drop rather than block the transfer
		}
	}
}

// SubscriberCount reports the number of active subscriptions.
func (p *Publisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscriptions)
}
