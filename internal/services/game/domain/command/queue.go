package command

// Queue is the double-buffered request channel. Commands pushed while a batch
// is being processed land in the next batch, so a handler never sees the
// requests it raises within the same pass.
type Queue struct {
	back    []Command
	front   []Command
	pushed  uint64
	drained uint64
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends cmd to the pending buffer.
func (q *Queue) Push(cmd Command) {
	q.back = append(q.back, cmd)
	q.pushed++
}

// Collect swaps the buffers and returns every command pushed before the call,
// in push order. The returned slice is valid until the next Collect.
func (q *Queue) Collect() []Command {
	q.front, q.back = q.back, q.front[:0]
	q.drained += uint64(len(q.front))
	return q.front
}

// Pending returns how many commands wait for the next Collect.
func (q *Queue) Pending() int {
	return len(q.back)
}

// Totals returns the number of commands pushed and collected so far.
func (q *Queue) Totals() (pushed, drained uint64) {
	return q.pushed, q.drained
}
