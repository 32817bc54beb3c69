package report

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// Event is one progress notification of a generation run.
type Event struct {
	Type string         `json:"event"`
	Data map[string]any `json:"data"`
}

// Terminal reports whether no event follows e.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

const subscriberBuffer = 32

type topic struct {
	history []Event
	subs    map[chan Event]struct{}
	done    bool
}

// Broker fans progress events out to subscribers. A subscriber joining late
// first receives everything published so far for that report. Topics are
// forgotten some time after their terminal event.
type Broker struct {
	mu     sync.Mutex
	topics map[uuid.UUID]*topic
	retain time.Duration
}

func NewBroker(retain time.Duration) *Broker {
	return &Broker{topics: make(map[uuid.UUID]*topic), retain: retain}
}

// Reset starts a fresh topic for reportID, closing any previous one.
func (b *Broker) Reset(reportID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[reportID]; ok {
		closeAll(t)
	}
	b.topics[reportID] = &topic{subs: make(map[chan Event]struct{})}
}

// Publish records e and delivers it to every subscriber. A subscriber that
// cannot keep up is dropped.
func (b *Broker) Publish(reportID uuid.UUID, e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[reportID]
	if !ok {
		t = &topic{subs: make(map[chan Event]struct{})}
		b.topics[reportID] = t
	}
	if t.done {
		return
	}
	t.history = append(t.history, e)
	for ch := range t.subs {
		select {
		case ch <- e:
		default:
			delete(t.subs, ch)
			close(ch)
		}
	}
	if e.Terminal() {
		t.done = true
		closeAll(t)
		if b.retain > 0 {
			time.AfterFunc(b.retain, func() { b.forget(reportID, t) })
		}
	}
}

// Subscribe returns the events published so far and a channel of the ones
// that follow. The channel is closed after the terminal event. ok is false
// when nothing is known about reportID.
func (b *Broker) Subscribe(reportID uuid.UUID) (history []Event, events <-chan Event, cancel func(), ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, found := b.topics[reportID]
	if !found {
		return nil, nil, func() {}, false
	}
	history = append([]Event(nil), t.history...)
	ch := make(chan Event, subscriberBuffer)
	if t.done {
		close(ch)
		return history, ch, func() {}, true
	}
	t.subs[ch] = struct{}{}
	cancel = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := t.subs[ch]; ok {
			delete(t.subs, ch)
			close(ch)
		}
	}
	return history, ch, cancel, true
}

func (b *Broker) forget(reportID uuid.UUID, t *topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.topics[reportID] == t {
		delete(b.topics, reportID)
	}
}

func closeAll(t *topic) {
	for ch := range t.subs {
		close(ch)
	}
	t.subs = make(map[chan Event]struct{})
}
