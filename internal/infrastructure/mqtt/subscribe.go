package mqtt

import (
	"fmt"
	"sync"
)

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// subscriptions remembers what to replay after a reconnect, keyed by the
// exact topic filter.
type subscriptions struct {
	mu sync.RWMutex
	m  map[string]subscription
}

func (s *subscriptions) put(sub subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[string]subscription)
	}
	s.m[sub.topic] = sub
}

func (s *subscriptions) remove(topic string) {
	s.mu.Lock()
	delete(s.m, topic)
	s.mu.Unlock()
}

func (s *subscriptions) has(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[topic]
	return ok
}

func (s *subscriptions) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *subscriptions) snapshot() []subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]subscription, 0, len(s.m))
	for _, sub := range s.m {
		out = append(out, sub)
	}
	return out
}

// Subscribe registers handler for topic, which may use the + and #
// wildcards. The subscription is replayed on every reconnect until
// Unsubscribe.
//
// Parameters:
//   - topic: Topic filter, e.g. Topics().AllCommands()
//   - qos: Maximum QoS (0-2)
//   - handler: Called once per message on a paho goroutine
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected, or
//     ErrSubscribeFailed wrapping the broker's answer
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	case !c.IsConnected():
		return ErrNotConnected
	}

	// Recorded first so a reconnect racing the SUBACK still replays it.
	c.subs.put(subscription{topic: topic, qos: qos, handler: handler})
	if err := wait(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), defaultPublishTimeout); err != nil {
		c.subs.remove(topic)
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// Unsubscribe drops the subscription for the exact topic filter. Messages
// already in flight may still be delivered.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subs.remove(topic)
	if err := wait(c.client.Unsubscribe(topic), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}
	return nil
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	return c.subs.len()
}

// HasSubscription reports whether exactly topic is subscribed. Wildcards are
// not expanded.
func (c *Client) HasSubscription(topic string) bool {
	return c.subs.has(topic)
}
