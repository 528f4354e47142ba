package transport

import (
	"sync"

	"github.com/weiawesome/market-chat/pkg/log"
	"github.com/weiawesome/market-chat/pkg/pubsub"
)

// Subscription is a broker subscription tagged with the connection
// generation it was made on.
type Subscription struct {
	inner      pubsub.Subscription
	generation uint64
	once       sync.Once
}

func (s *Subscription) Destination() string { return s.inner.Destination() }

func (s *Subscription) Generation() uint64 { return s.generation }

// Unsubscribe cancels the subscription. Failures are logged; a handle on a
// lost connection is already dead.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if err := s.inner.Unsubscribe(); err != nil {
			l := log.L()
			l.Debug().Err(err).Str(log.FieldDestination, s.inner.Destination()).Msg("unsubscribe failed")
		}
	})
}
