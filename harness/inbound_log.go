package harness

import (
	"context"
	"sync"
	"time"
)

type MessageKind int

const (
	MessageText MessageKind = iota
	MessageBinary
)

func (k MessageKind) String() string {
	if k == MessageBinary {
		return "binary"
	}
	return "text"
}

// Payload is one inbound message exactly as it came off the wire.
type Payload struct {
	Kind       MessageKind
	Data       []byte
	ReceivedAt time.Time
}

func (p Payload) Text() string {
	return string(p.Data)
}

// InboundLog is the append-only record of everything a player received, in arrival order.
// The owning player goroutine is the only writer.
type InboundLog struct {
	mu      sync.RWMutex
	entries []Payload
	changed chan struct{}
}

func NewInboundLog() *InboundLog {
	return &InboundLog{changed: make(chan struct{})}
}

func (l *InboundLog) append(p Payload) {
	l.mu.Lock()
	l.entries = append(l.entries, p)
	close(l.changed)
	l.changed = make(chan struct{})
	l.mu.Unlock()
}

// Snapshot returns the entries received so far. Entries are never rewritten, so the
// returned prefix stays valid while the log keeps growing; the capped capacity keeps
// callers from appending into the shared backing array.
func (l *InboundLog) Snapshot() []Payload {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.entries)
	return l.entries[:n:n]
}

func (l *InboundLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// At returns the i-th received payload.
func (l *InboundLog) At(i int) (Payload, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.entries) {
		return Payload{}, false
	}
	return l.entries[i], true
}

// Texts renders every entry as a string. An empty log gives an empty, non-nil slice.
func (l *InboundLog) Texts() []string {
	snapshot := l.Snapshot()
	texts := make([]string, 0, len(snapshot))
	for _, p := range snapshot {
		texts = append(texts, p.Text())
	}
	return texts
}

// Since returns entries from index from onwards.
func (l *InboundLog) Since(from int) []Payload {
	snapshot := l.Snapshot()
	if from < 0 {
		from = 0
	}
	if from >= len(snapshot) {
		return []Payload{}
	}
	return snapshot[from:]
}

// Changed returns a channel closed on the next append.
func (l *InboundLog) Changed() <-chan struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.changed
}

// WaitFor blocks until pred accepts one of the entries, returning its index.
func (l *InboundLog) WaitFor(ctx context.Context, pred func(Payload) bool) (int, error) {
	return l.WaitForFrom(ctx, 0, pred)
}

// WaitForFrom is WaitFor ignoring entries before index from.
func (l *InboundLog) WaitForFrom(ctx context.Context, from int, pred func(Payload) bool) (int, error) {
	checked := max(from, 0)
	for {
		changed := l.Changed()
		snapshot := l.Snapshot()
		for i := checked; i < len(snapshot); i++ {
			if pred(snapshot[i]) {
				return i, nil
			}
		}
		checked = max(checked, len(snapshot))

		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-changed:
		}
	}
}
