package queue

// Stats is a point-in-time snapshot of queue activity.
type Stats struct {
	// Running is the number of operations holding a slot.
	Running int
	// Pending is the number of operations waiting for a slot.
	Pending int
	// Completed counts operations that returned on their own, with or without error.
	Completed uint64
	// Rejected counts enqueues refused because the queue was full.
	Rejected uint64
	// TimedOut counts items that missed their deadline, pending or running.
	TimedOut uint64
	// Canceled counts items abandoned by their caller.
	Canceled uint64
}

// Stats returns current queue statistics.
func (q *RequestQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Running:   q.running,
		Pending:   len(q.pending),
		Completed: q.completed,
		Rejected:  q.rejected,
		TimedOut:  q.timedOut,
		Canceled:  q.canceled,
	}
}
