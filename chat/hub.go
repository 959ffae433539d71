package chat

import "sync"

// hub fans out change notifications to the live subscriptions of each
// order's conversation. Notification channels hold a single token; a
// notification arriving while one is already pending is coalesced, so a slow
// subscriber never blocks a writer.
type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[int]chan struct{})}
}

func (h *hub) subscribe(orderID string) (int, chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan struct{}, 1)
	if h.subs[orderID] == nil {
		h.subs[orderID] = make(map[int]chan struct{})
	}
	h.subs[orderID][id] = ch
	return id, ch
}

func (h *hub) unsubscribe(orderID string, id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m := h.subs[orderID]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(h.subs, orderID)
		}
	}
}

func (h *hub) notify(orderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs[orderID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// subscriberCount is used by tests to observe teardown.
func (h *hub) subscriberCount(orderID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[orderID])
}
