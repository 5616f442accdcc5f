package airlock

import (
	"encoding/json"
	"sync"
)

// SubscriptionState is the lifecycle state of a Subscription. The only
// transition is Active -> Unsubscribed; there is no way back.
type SubscriptionState int

const (
	// SubscriptionActive means the registration is live and ParseEvents
	// appends matching diff payloads to the message list.
	SubscriptionActive SubscriptionState = iota
	// SubscriptionUnsubscribed means the registration has been torn down,
	// either by the caller (Unsubscribe) or by the ship (a quit event).
	// Queued messages remain poppable; no new ones arrive.
	SubscriptionUnsubscribed
)

func (s SubscriptionState) String() string {
	switch s {
	case SubscriptionActive:
		return "active"
	case SubscriptionUnsubscribed:
		return "unsubscribed"
	default:
		return "unknown"
	}
}

// Subscription is one (app, path) registration on a channel. The channel
// appends payloads during ParseEvents; the caller drains them with
// PopMessage. A subscription is created by Channel.Subscribe only.
type Subscription struct {
	channelUID string
	creationID uint64
	app        string
	path       string

	mu       sync.Mutex
	state    SubscriptionState
	messages []json.RawMessage
}

// CreationID returns the outbound action id that created this subscription.
// Inbound events carry it as their correlation id.
func (s *Subscription) CreationID() uint64 { return s.creationID }

// App returns the subscribed application name.
func (s *Subscription) App() string { return s.app }

// Path returns the subscribed path.
func (s *Subscription) Path() string { return s.path }

// ChannelUID returns the uid of the channel this subscription lives on.
func (s *Subscription) ChannelUID() string { return s.channelUID }

// State returns the current lifecycle state.
func (s *Subscription) State() SubscriptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PopMessage removes and returns the oldest undelivered payload. ok is false
// when the list is empty.
func (s *Subscription) PopMessage() (msg json.RawMessage, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return nil, false
	}
	msg = s.messages[0]
	s.messages = s.messages[1:]
	return msg, true
}

// Len returns the number of undelivered payloads.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *Subscription) push(msg json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func (s *Subscription) markUnsubscribed() (wasActive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasActive = s.state == SubscriptionActive
	s.state = SubscriptionUnsubscribed
	return wasActive
}
