package remote

import (
	"log"
	"os"
	"sync"
)

// subscriberBuffer is how many undelivered changes a subscriber may lag
// behind before the hub drops it.
const subscriberBuffer = 32

// Subscription receives the changes of one key from a Hub.
type Subscription struct {
	Key string
	C   <-chan Change

	ch   chan Change
	hub  *Hub
	once sync.Once
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub fans document changes out to subscribers, filtered by key equality.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
	logger *log.Logger
}

// NewHub creates an empty hub. If logger is nil, a stderr logger is used.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(os.Stderr, "[hub] ", log.LstdFlags)
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe registers interest in key.
func (h *Hub) Subscribe(key string) *Subscription {
	ch := make(chan Change, subscriberBuffer)
	sub := &Subscription{Key: key, C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		sub.once.Do(func() { close(ch) })
		return sub
	}
	if h.subs[key] == nil {
		h.subs[key] = make(map[*Subscription]struct{})
	}
	h.subs[key][sub] = struct{}{}
	return sub
}

// Publish delivers change to every subscriber of change.Key. Subscribers
// whose buffer is full are dropped; their channel is closed so they notice
// and reconnect.
func (h *Hub) Publish(change Change) {
	h.mu.RLock()
	var slow []*Subscription
	for sub := range h.subs[change.Key] {
		select {
		case sub.ch <- change:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.logger.Printf("Dropping slow subscriber for %s", change.Key)
		h.remove(sub)
	}
}

// SubscriberCount returns how many subscriptions exist for key.
func (h *Hub) SubscriberCount(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for key, subs := range h.subs {
		for sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
		delete(h.subs, key)
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.subs[sub.Key]; ok {
		if _, ok := subs[sub]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(h.subs, sub.Key)
			}
		}
	}
	sub.once.Do(func() { close(sub.ch) })
}
