package observe

import "sync"

// Hub fans a value out to subscribers. Publish calls subscribers synchronously
// in subscription order, so it must not be called while holding a lock the
// subscribers might take.
type Hub[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(T)
	keys []int
}

// Subscribe registers fn and returns a function that removes it.
func (h *Hub[T]) Subscribe(fn func(T)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]func(T))
	}
	id := h.next
	h.next++
	h.subs[id] = fn
	h.keys = append(h.keys, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			for i, k := range h.keys {
				if k == id {
					h.keys = append(h.keys[:i], h.keys[i+1:]...)
					break
				}
			}
		})
	}
}

func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	fns := make([]func(T), 0, len(h.keys))
	for _, k := range h.keys {
		fns = append(fns, h.subs[k])
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
