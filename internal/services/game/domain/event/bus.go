package event

// Subscriber receives notifications synchronously during Flush.
type Subscriber func(Notification)

// Bus is the notification channel.
//
// Emitted notifications are held until Flush, which delivers them to immediate
// subscribers within the same tick. Flushed notifications become visible to
// queued consumers through Drain only after the next Rotate, which the tick
// scheduler calls at tick boundaries.
type Bus struct {
	subscribers []Subscriber
	pending     []Notification
	staged      []Notification
	ready       []Notification
	emitted     uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers an immediate subscriber. Subscribers run in
// registration order.
func (b *Bus) Subscribe(fn Subscriber) {
	if fn == nil {
		return
	}
	b.subscribers = append(b.subscribers, fn)
}

// Emit queues a notification for the next Flush.
func (b *Bus) Emit(n Notification) {
	b.pending = append(b.pending, n.Clone())
	b.emitted++
}

// Flush delivers pending notifications to subscribers in emit order and
// returns how many were delivered. Notifications emitted by subscribers are
// delivered in the same flush, after the ones already pending.
func (b *Bus) Flush() int {
	delivered := 0
	for len(b.pending) > 0 {
		batch := b.pending
		b.pending = nil
		for _, n := range batch {
			for _, fn := range b.subscribers {
				fn(n.Clone())
			}
			b.staged = append(b.staged, n)
			delivered++
		}
	}
	return delivered
}

// Rotate makes notifications flushed during the previous tick available to
// Drain. Anything not drained since the last Rotate is discarded.
func (b *Bus) Rotate() {
	b.ready, b.staged = b.staged, b.ready[:0]
}

// Drain returns notifications flushed before the last Rotate and clears them.
func (b *Bus) Drain() []Notification {
	if len(b.ready) == 0 {
		return nil
	}
	out := make([]Notification, len(b.ready))
	copy(out, b.ready)
	b.ready = b.ready[:0]
	return out
}

// Pending returns how many notifications wait for Flush.
func (b *Bus) Pending() int {
	return len(b.pending)
}

// Emitted returns the total number of notifications emitted.
func (b *Bus) Emitted() uint64 {
	return b.emitted
}
