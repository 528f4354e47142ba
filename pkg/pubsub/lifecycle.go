package pubsub

import "sync"

// lifecycle tracks the end of a session: done closes exactly once and err
// keeps the first cause.
type lifecycle struct {
	done chan struct{}
	once sync.Once
	mu   sync.Mutex
	err  error
}

func newLifecycle() *lifecycle {
	return &lifecycle{done: make(chan struct{})}
}

// end records cause and closes done. It reports whether this call ended
// the session.
func (l *lifecycle) end(cause error) bool {
	first := false
	l.once.Do(func() {
		l.mu.Lock()
		l.err = cause
		l.mu.Unlock()
		close(l.done)
		first = true
	})
	return first
}

func (l *lifecycle) ended() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *lifecycle) Done() <-chan struct{} { return l.done }

func (l *lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
