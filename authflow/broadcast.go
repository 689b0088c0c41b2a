package authflow

import "sync"

// statusFeed fans Status transitions out to any number of subscribers with
// replay-none semantics: a new subscriber sees only future transitions.
// Delivery never blocks the publisher; a subscriber that falls behind loses
// the oldest buffered value so the latest one still lands.
type statusFeed struct {
	mu     sync.Mutex
	subs   map[int]chan Status
	nextID int
	closed bool
}

const subscriberBuffer = 8

func newStatusFeed() *statusFeed {
	return &statusFeed{subs: make(map[int]chan Status)}
}

// Subscribe registers a new listener and returns its channel plus a cancel
// function. The channel is closed on cancel or when the feed shuts down.
func (f *statusFeed) Subscribe() (<-chan Status, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan Status, subscriberBuffer)
	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if sub, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish delivers s to every subscriber without blocking.
func (f *statusFeed) Publish(s Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// Close shuts the feed down and closes every subscriber channel.
func (f *statusFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
