package streammux

import (
	"context"
	"net/http"
	"sync"
)

// DisabledStreamMux satisfies StreamMuxInterface without a device behind it.
// Replay and UDP gateway runs use it so the HTTP server and admin routes come
// up unchanged. Subscriber channels never carry fragments but are tracked so
// Unsubscribe and Close still close them, letting SSE tails and other readers
// unblock during shutdown.
type DisabledStreamMux struct {
	mu          sync.Mutex
	subscribers map[string]chan Fragment
	done        chan struct{}
}

func NewDisabledStreamMux() *DisabledStreamMux {
	return &DisabledStreamMux{
		subscribers: make(map[string]chan Fragment),
		done:        make(chan struct{}),
	}
}

// closed reports whether Close has run. Callers hold d.mu.
func (d *DisabledStreamMux) closed() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

func (d *DisabledStreamMux) Subscribe() (string, chan Fragment) {
	id := randomID()
	ch := make(chan Fragment)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed() {
		// hand back a closed channel so the caller's receive returns
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledStreamMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *DisabledStreamMux) SetHandler(FragmentHandler) {}

func (d *DisabledStreamMux) SendCommand(string) error { return nil }

func (d *DisabledStreamMux) Initialize() error { return nil }

// Monitor blocks until the context ends or the mux is closed. There is no
// port to read, so it produces nothing.
func (d *DisabledStreamMux) Monitor(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return nil
	}
}

func (d *DisabledStreamMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed() {
		return nil
	}
	close(d.done)
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

func (d *DisabledStreamMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/stream-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("stream disabled"))
	})
}
