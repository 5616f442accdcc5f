package airlock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/urbitgo/airlock/internal/eventsource"
	"github.com/urbitgo/airlock/internal/logctx"
)

// ChannelOption configures a Channel.
type ChannelOption func(*channelConfig)

type channelConfig struct {
	logger *slog.Logger
}

// WithChannelLogger sets the logger used by the channel and its event stream
// reader. If not provided, logs are discarded.
func WithChannelLogger(log *slog.Logger) ChannelOption {
	return func(c *channelConfig) { c.logger = log }
}

// Channel owns one outbound action sequence and one inbound event stream
// against a ship. It fans inbound events out to the correct subscription by
// correlation id. All exported methods are safe for concurrent use; the
// channel's mutex is the single writer boundary around the id counter and
// the subscription list.
type Channel struct {
	sess Session
	log  *slog.Logger

	uid  string
	path string

	reader *eventsource.Reader

	mu      sync.Mutex
	nextID  uint64
	subs    []*Subscription
	deleted bool
}

// NewChannel allocates a fresh channel uid, opens the ship's event stream
// for it and starts the background reader. No outbound action is sent;
// subscriptions and pokes establish themselves lazily through the first
// batch they put.
func NewChannel(ctx context.Context, sess Session, opts ...ChannelOption) (*Channel, error) {
	cfg := &channelConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	log := cfg.logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	uid := uuid.NewString()
	path := "/~/channel/" + uid

	body, err := sess.OpenEventStream(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}

	ch := &Channel{
		sess:   sess,
		log:    log,
		uid:    uid,
		path:   path,
		reader: eventsource.New(body, eventsource.WithLogger(log)),
		nextID: 1,
	}
	ch.log.DebugContext(ch.ctx(ctx), "channel created")
	return ch, nil
}

// UID returns the channel's unique identifier.
func (ch *Channel) UID() string { return ch.uid }

// Path returns the channel endpoint path, "/~/channel/<uid>".
func (ch *Channel) Path() string { return ch.path }

func (ch *Channel) ctx(ctx context.Context) context.Context {
	return logctx.WithChannelData(ctx, &logctx.ChannelData{UID: ch.uid})
}

// nextMessageID hands out the next outbound action id. Ids start at 1, are
// strictly increasing and are never reused, even when the action they were
// allocated for fails; the demultiplexer depends on their uniqueness.
// Callers must hold ch.mu.
func (ch *Channel) nextMessageID() uint64 {
	id := ch.nextID
	ch.nextID++
	return id
}

// Poke sends a one-shot command to an app. payload is marshalled to JSON.
// Success means the ship accepted the HTTP request, not that the poke was
// processed; the processing acknowledgment arrives later on the event stream
// and is only logged.
func (ch *Channel) Poke(ctx context.Context, app, mark string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal poke payload: %w", err)
	}

	ch.mu.Lock()
	if ch.deleted {
		ch.mu.Unlock()
		return ErrChannelDeleted
	}
	id := ch.nextMessageID()
	ch.mu.Unlock()

	ctx = ch.ctx(ctx)
	action := pokeAction(id, ch.sess.ShipName(), app, mark, raw)
	if err := ch.sess.PutActions(ctx, ch.path, []Action{action}); err != nil {
		return fmt.Errorf("poke %s/%s: %w", app, mark, err)
	}
	ch.log.DebugContext(ctx, "poked", slog.String("app", app), slog.String("mark", mark), slog.Uint64("id", id))
	return nil
}

// Subscribe registers a subscription for (app, path) and returns the
// outbound action id that identifies it. Events for the subscription may
// begin arriving before Subscribe returns; they sit in the reader's queue
// until the next ParseEvents.
//
// Nothing prevents two live subscriptions on the same (app, path); lookups
// return the first by insertion order, so avoiding duplicates is the
// caller's business.
func (ch *Channel) Subscribe(ctx context.Context, app, path string) (uint64, error) {
	ch.mu.Lock()
	if ch.deleted {
		ch.mu.Unlock()
		return 0, ErrChannelDeleted
	}
	id := ch.nextMessageID()
	ch.mu.Unlock()

	ctx = ch.ctx(ctx)
	action := subscribeAction(id, ch.sess.ShipName(), app, path)
	if err := ch.sess.PutActions(ctx, ch.path, []Action{action}); err != nil {
		return 0, fmt.Errorf("subscribe %s%s: %w", app, path, err)
	}

	sub := &Subscription{
		channelUID: ch.uid,
		creationID: id,
		app:        app,
		path:       path,
		state:      SubscriptionActive,
	}
	ch.mu.Lock()
	ch.subs = append(ch.subs, sub)
	ch.mu.Unlock()

	ch.log.DebugContext(logctx.WithSubscriptionData(ctx, &logctx.SubscriptionData{ID: id, App: app, Path: path}),
		"subscribed")
	return id, nil
}

// inboundEvent is the decoded body of one channel SSE frame.
type inboundEvent struct {
	ID       uint64          `json:"id"`
	Response string          `json:"response"` // "diff" | "poke" | "subscribe" | "quit"
	JSON     json.RawMessage `json:"json"`
	Err      string          `json:"err"`
}

// ParseEvents drains everything currently sitting in the reader's queue and
// routes each event: diff payloads are appended to the matching active
// subscription's message list in arrival order, quit events mark the
// matching subscription unsubscribed in place, action acknowledgments are
// logged, and events that correlate to nothing are discarded. It never
// blocks on the network beyond the best-effort acks it sends for processed
// diffs.
//
// Once the underlying stream has terminated and the queue is fully drained,
// ParseEvents returns an error wrapping ErrStreamClosed. Until then a quiet
// stream simply yields nil.
func (ch *Channel) ParseEvents(ctx context.Context) error {
	ch.mu.Lock()
	deleted := ch.deleted
	ch.mu.Unlock()
	if deleted {
		return ErrChannelDeleted
	}

	ctx = ch.ctx(ctx)
	for {
		ev, ok := ch.reader.TryNext()
		if !ok {
			break
		}
		ch.routeEvent(ctx, ev)
	}

	if err := ch.reader.Err(); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrStreamClosed
		}
		return fmt.Errorf("%w: %v", ErrStreamClosed, err)
	}
	return nil
}

func (ch *Channel) routeEvent(ctx context.Context, ev eventsource.Event) {
	var ie inboundEvent
	if err := json.Unmarshal([]byte(ev.Data), &ie); err != nil {
		ch.log.WarnContext(ctx, "undecodable event frame", slog.String("err", err.Error()))
		return
	}

	switch ie.Response {
	case "diff":
		sub, ok := ch.findByCreationID(ie.ID)
		if !ok || sub.State() != SubscriptionActive {
			// Expected race: messages in flight across an unsubscribe or
			// quit correlate to nothing and are dropped.
			ch.log.DebugContext(ctx, "discarding orphan event", slog.Uint64("correlation_id", ie.ID))
			return
		}
		sub.push(ie.JSON)
		ch.ackEvent(ctx, ev)
	case "quit":
		sub, ok := ch.findByCreationID(ie.ID)
		if !ok {
			ch.log.DebugContext(ctx, "quit for unknown subscription", slog.Uint64("correlation_id", ie.ID))
			return
		}
		sub.markUnsubscribed()
		ch.log.InfoContext(logctx.WithSubscriptionData(ctx, &logctx.SubscriptionData{ID: sub.creationID, App: sub.app, Path: sub.path}),
			"subscription quit by ship")
	case "poke", "subscribe":
		if ie.Err != "" {
			ch.log.WarnContext(ctx, "negative action acknowledgment",
				slog.String("action", ie.Response), slog.Uint64("id", ie.ID), slog.String("err", ie.Err))
			return
		}
		ch.log.DebugContext(ctx, "action acknowledged", slog.String("action", ie.Response), slog.Uint64("id", ie.ID))
	default:
		ch.log.DebugContext(ctx, "unknown event response kind", slog.String("response", ie.Response))
	}
}

// ackEvent acknowledges a processed diff so the ship can release it from the
// channel's replay log. Best effort: a failed ack is logged and otherwise
// ignored, the event has already been delivered locally.
func (ch *Channel) ackEvent(ctx context.Context, ev eventsource.Event) {
	eventID, err := strconv.ParseUint(ev.ID, 10, 64)
	if err != nil {
		return
	}

	ch.mu.Lock()
	if ch.deleted {
		ch.mu.Unlock()
		return
	}
	id := ch.nextMessageID()
	ch.mu.Unlock()

	if err := ch.sess.PutActions(ctx, ch.path, []Action{ackAction(id, eventID)}); err != nil {
		ch.log.WarnContext(ctx, "event ack failed", slog.Uint64("event_id", eventID), slog.String("err", err.Error()))
	}
}

func (ch *Channel) findByCreationID(id uint64) (*Subscription, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for _, sub := range ch.subs {
		if sub.creationID == id {
			return sub, true
		}
	}
	return nil, false
}

// FindSubscription returns the first subscription matching (app, path) by
// insertion order.
func (ch *Channel) FindSubscription(app, path string) (*Subscription, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for _, sub := range ch.subs {
		if sub.app == app && sub.path == path {
			return sub, true
		}
	}
	return nil, false
}

// Subscriptions returns the channel's subscriptions in insertion order.
func (ch *Channel) Subscriptions() []*Subscription {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make([]*Subscription, len(ch.subs))
	copy(out, ch.subs)
	return out
}

// Unsubscribe tears down the first subscription matching (app, path). It
// removes the subscription from the channel and, if the registration was
// still active, tells the ship using a freshly allocated action id (the
// unsubscribe is its own outbound action, distinct from the subscription's
// creation id). found reports whether any matching subscription existed.
//
// Events already in flight for the removed subscription are discarded by
// later ParseEvents calls.
func (ch *Channel) Unsubscribe(ctx context.Context, app, path string) (found bool, err error) {
	ch.mu.Lock()
	if ch.deleted {
		ch.mu.Unlock()
		return false, ErrChannelDeleted
	}
	idx := -1
	for i, sub := range ch.subs {
		if sub.app == app && sub.path == path {
			idx = i
			break
		}
	}
	if idx < 0 {
		ch.mu.Unlock()
		return false, nil
	}
	sub := ch.subs[idx]
	ch.subs = append(ch.subs[:idx], ch.subs[idx+1:]...)
	ch.mu.Unlock()

	if !sub.markUnsubscribed() {
		// The ship already quit this subscription; nothing to tell it.
		return true, nil
	}

	ch.mu.Lock()
	id := ch.nextMessageID()
	ch.mu.Unlock()

	ctx = ch.ctx(ctx)
	if err := ch.sess.PutActions(ctx, ch.path, []Action{unsubscribeAction(id, sub.creationID)}); err != nil {
		return true, fmt.Errorf("unsubscribe %s%s: %w", app, path, err)
	}
	ch.log.DebugContext(logctx.WithSubscriptionData(ctx, &logctx.SubscriptionData{ID: sub.creationID, App: app, Path: path}),
		"unsubscribed")
	return true, nil
}

// Delete sends the delete action for the channel, then cancels the
// background reader and waits for it to exit before returning. The channel
// is unusable afterwards; every further operation returns ErrChannelDeleted.
func (ch *Channel) Delete(ctx context.Context) error {
	ch.mu.Lock()
	if ch.deleted {
		ch.mu.Unlock()
		return ErrChannelDeleted
	}
	ch.deleted = true
	id := ch.nextMessageID()
	ch.mu.Unlock()

	ctx = ch.ctx(ctx)
	putErr := ch.sess.PutActions(ctx, ch.path, []Action{deleteAction(id)})

	// The reader is joined even when the delete action failed; the caller is
	// done with this channel either way.
	if err := ch.reader.Close(); err != nil && putErr == nil {
		putErr = err
	}
	if putErr != nil {
		return fmt.Errorf("delete channel: %w", putErr)
	}
	ch.log.DebugContext(ctx, "channel deleted")
	return nil
}
