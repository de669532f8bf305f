package committer

// Committer decides when a processor's buffered output should be flushed.
// The runner reports handled events and flushes whenever C fires.
type Committer interface {
	C() chan struct{}
	EventsHandled(count int)
	Close()
}
