package liveChat

import (
	"github.com/liveChat/backend"
)

// slot holds at most one live subscription. Every replace or release bumps
// gen, and a delivery is applied only while its gen is still current, so a
// listener that fires after its subscription was superseded changes nothing.
//
// A slot with a parent is only current while the parent has not moved on
// since the slot was opened.
type slot struct {
	name        string
	failMessage string
	flag        *bool
	parent      *slot
	// reset clears the state the slot feeds. It runs when the slot starts
	// following a different key.
	reset       func()

	key       string
	gen       uint64
	parentGen uint64
	sub       backend.Subscription
}

// The methods below must be called with Client.mu held.

func (s *slot) current(gen uint64) bool {
	if s.gen != gen {
		return false
	}
	return s.parent == nil || s.parent.gen == s.parentGen
}

func (s *slot) replace(key string, parentGen uint64) (uint64, backend.Subscription) {
	s.gen++
	old := s.sub
	s.sub = nil
	if s.key != key && s.reset != nil {
		s.reset()
	}
	s.key = key
	s.parentGen = parentGen
	if s.flag != nil {
		*s.flag = true
	}
	return s.gen, old
}

func (s *slot) release() backend.Subscription {
	s.gen++
	old := s.sub
	s.sub = nil
	s.key = ""
	if s.flag != nil {
		*s.flag = false
	}
	return old
}

func (s *slot) attach(gen uint64, sub backend.Subscription) bool {
	if !s.current(gen) {
		return false
	}
	s.sub = sub
	return true
}

// subscribe replaces whatever s holds with a live query. For a slot with a
// parent, parentGen must be the parent's generation the query was derived
// from; if the parent has moved on nothing is opened.
func (c *Client) subscribe(s *slot, key string, parentGen uint64, q backend.Query, apply func(gen uint64, docs []backend.Document)) error {
	c.mu.Lock()
	if s.parent != nil && s.parent.gen != parentGen {
		c.mu.Unlock()
		return nil
	}
	gen, old := s.replace(key, parentGen)
	c.mu.Unlock()

	c.cancel(s, old)
	c.changed()

	sub, err := c.backend.Subscribe(c.ctx, q, func(docs []backend.Document, err error) {
		if err != nil {
			c.subscriptionFailed(s, gen, err)
			return
		}
		apply(gen, docs)
	})
	if err != nil {
		c.mu.Lock()
		if s.current(gen) {
			s.key = ""
			if s.flag != nil {
				*s.flag = false
			}
		}
		c.mu.Unlock()
		return c.fail(newError(ErrPersistence, s.failMessage, err))
	}

	c.mu.Lock()
	attached := s.attach(gen, sub)
	c.mu.Unlock()

	if !attached {
		sub.Cancel()
		return nil
	}
	c.metrics.SubscriptionOpened(s.name)
	return nil
}

// ensure subscribes unless s already follows key.
func (c *Client) ensure(s *slot, key string, open func(string) error) {
	c.mu.RLock()
	following := s.key == key
	c.mu.RUnlock()

	if following {
		return
	}
	if err := open(key); err != nil {
		c.log.WithField("slot", s.name).Errorf("unable to subscribe: %s", err)
	}
}

func (c *Client) releaseSlot(s *slot) {
	c.mu.Lock()
	old := s.release()
	c.mu.Unlock()

	c.cancel(s, old)
}

func (c *Client) cancel(s *slot, sub backend.Subscription) {
	if sub == nil {
		return
	}
	sub.Cancel()
	c.metrics.SubscriptionClosed(s.name)
}

// commit applies fn to the client state if gen is still current for s.
func (c *Client) commit(s *slot, gen uint64, fn func()) bool {
	c.mu.Lock()
	if !s.current(gen) {
		c.mu.Unlock()
		c.metrics.DroppedStale(s.name)
		return false
	}
	fn()
	if s.flag != nil {
		*s.flag = false
	}
	c.mu.Unlock()

	c.metrics.Delivered(s.name)
	c.changed()
	return true
}

func (c *Client) subscriptionFailed(s *slot, gen uint64, err error) {
	c.mu.Lock()
	if !s.current(gen) {
		c.mu.Unlock()
		return
	}
	old := s.sub
	s.sub = nil
	s.key = ""
	if s.flag != nil {
		*s.flag = false
	}
	c.mu.Unlock()

	c.cancel(s, old)
	c.fail(newError(ErrPersistence, s.failMessage, err))
}
