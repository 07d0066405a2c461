package store

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// changeHub wakes watchers after every committed mutation. Signals are
// coalesced: a watcher that is still busy sees one pending wake-up.
type changeHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan struct{}
}

func newChangeHub() *changeHub {
	return &changeHub{subs: make(map[int]chan struct{})}
}

func (h *changeHub) subscribe() (int, <-chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan struct{}, 1)
	h.subs[id] = ch
	return id, ch
}

func (h *changeHub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

func (h *changeHub) notify() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// watch emits load's current result, then re-emits after every change until
// ctx is cancelled. The returned channel is closed on cancellation.
func watch[T any](ctx context.Context, hub *changeHub, log zerolog.Logger, load func(context.Context) (T, error)) <-chan T {
	out := make(chan T)
	id, wake := hub.subscribe()

	go func() {
		defer close(out)
		defer hub.unsubscribe(id)

		for {
			val, err := load(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Msg("watch query failed")
			} else {
				select {
				case out <- val:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-wake:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
