package apiserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// broadcastRegistry tracks one Broadcaster per in-flight or recently
// completed execution, so GET /skill/stream/{execution_id} (SPEC_FULL.md
// §12, supplemented) can attach after the execution started. Adapted from
// the teacher's PipelineRegistry (internal/server/registry.go), narrowed to
// just the id->Broadcaster map it needs; the pipeline-specific
// Cancel/Interviewer/engine-snapshot fields that PipelineRegistry carried
// have no analogue here and are dropped.
type broadcastRegistry struct {
	mu           sync.Mutex
	broadcasters map[string]*Broadcaster
}

func newBroadcastRegistry() *broadcastRegistry {
	return &broadcastRegistry{broadcasters: map[string]*Broadcaster{}}
}

// getOrCreate returns the Broadcaster for executionID, creating one if this
// is the first caller to reference it.
func (r *broadcastRegistry) getOrCreate(executionID string) *Broadcaster {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.broadcasters[executionID]
	if !ok {
		b = NewBroadcaster()
		r.broadcasters[executionID] = b
	}
	return b
}

// forget drops a completed execution's broadcaster, once its consumers
// have had a chance to observe the terminal event.
func (r *broadcastRegistry) forget(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.broadcasters, executionID)
}

// Broadcaster fans out one execution's state-transition events (as sent by
// pollExecution, see handlers.go) to every client subscribed to
// GET /skill/stream/{execution_id}. One Broadcaster per execution;
// adapted from the teacher's internal/server/sse.go Broadcaster, which did
// the same job for a pipeline run's step events — the replay-then-live
// subscribe model and slow-client-drop behavior transfer over unchanged
// since fanning out one execution's lifecycle to N watchers is the same
// shape regardless of what's producing the events. Thread-safe.
type Broadcaster struct {
	mu      sync.Mutex
	history []map[string]any
	clients map[uint64]chan map[string]any
	nextID  uint64
	closed  bool
	doneCh  chan struct{} // closed only on real broadcaster Close(), not slow-client drops
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[uint64]chan map[string]any),
		doneCh:  make(chan struct{}),
	}
}

// Send records ev in history and fans it out to every subscribed client.
// Called by pollExecution once per observed execution state transition.
func (b *Broadcaster) Send(ev map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.history = append(b.history, ev)
	for id, ch := range b.clients {
		select {
		case ch <- ev:
		default:
			// Slow client: drop it rather than block the poller's send loop.
			close(ch)
			delete(b.clients, id)
		}
	}
}

// Subscribe returns an events channel, a done channel, and an unsubscribe
// function. The events channel receives a replay of all historical events,
// then live events. The done channel is closed only when the broadcaster
// itself is closed (the execution reached a terminal state), NOT when this
// client is dropped for being slow — that distinction matters to WriteSSE,
// which emits a final "done" SSE event only in the former case.
func (b *Broadcaster) Subscribe() (<-chan map[string]any, <-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan map[string]any, len(b.history)+256)
	id := b.nextID
	b.nextID++

	// Replay history. Channel is sized to fit all history plus live headroom,
	// so this never blocks while holding the mutex.
	for _, ev := range b.history {
		ch <- ev
	}

	if b.closed {
		close(ch)
		return ch, b.doneCh, func() {}
	}

	b.clients[id] = ch
	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.clients[id]; ok {
			delete(b.clients, id)
			close(ch)
		}
	}
	return ch, b.doneCh, unsub
}

// Close signals that the execution reached a terminal state and no more
// events will be sent. All client channels are closed.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	close(b.doneCh)
	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}
}

// History returns a copy of all events received so far.
func (b *Broadcaster) History() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, len(b.history))
	copy(out, b.history)
	return out
}

// WriteSSE streams a Broadcaster's events to an HTTP response as
// Server-Sent Events, replaying history before switching to live events,
// until the client disconnects or the execution reaches a terminal state.
func WriteSSE(w http.ResponseWriter, r *http.Request, b *Broadcaster) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx proxy compatibility
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, doneCh, unsub := b.Subscribe()
	defer unsub()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				// Channel closed. Only emit "done" if the broadcaster actually
				// finished (vs. this client being dropped for slowness).
				select {
				case <-doneCh:
					fmt.Fprintf(w, "event: done\ndata: {}\n\n")
					flusher.Flush()
				default:
					// Slow-client drop — just disconnect silently.
				}
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
