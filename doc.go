// Package airlock is a client for the HTTP interface of an Urbit ship
// (Eyre). It maintains a long-lived, authenticated channel over which the
// caller issues one-shot commands ("pokes") and registers any number of
// concurrent subscriptions, each receiving its own ordered stream of
// demultiplexed messages.
//
// Layers & Roles
//
//	Client       -> authenticated HTTP surface (login, scry, spider, action batches)
//	Channel      -> outbound action id sequence + inbound SSE stream, fan-out by correlation id
//	Subscription -> one (app, path) registration with a FIFO message list
//
// A Channel owns exactly one background reader for its server-sent-event
// stream. The reader decodes frames into an ordered queue; the caller drains
// that queue by calling [Channel.ParseEvents] on whatever cadence suits it.
// Nothing is pushed to the caller: this is a cooperative polling model, which
// keeps the channel free of callback re-entrancy and of any locking beyond a
// single mutex around the channel's own state.
//
// Correlation works on outbound action ids. Every outbound action (poke,
// subscribe, unsubscribe, delete, ack) consumes the next id in a strictly
// increasing per-channel sequence. The id used by a subscribe action becomes
// that subscription's identity: inbound "diff" events carry it back, and
// ParseEvents routes each payload to the matching subscription in arrival
// order. Events that correlate to no live subscription are discarded; that is
// the expected race when messages are in flight across an unsubscribe.
//
// Minimal use:
//
//	client, err := airlock.Dial(ctx, "http://localhost:8080", code)
//	if err != nil { ... }
//	ch, err := client.CreateChannel(ctx)
//	if err != nil { ... }
//	defer ch.Delete(context.Background())
//
//	id, err := ch.Subscribe(ctx, "graph-store", "/updates")
//	if err != nil { ... }
//	for {
//		if err := ch.ParseEvents(ctx); err != nil {
//			break // stream closed
//		}
//		if sub, ok := ch.FindSubscription("graph-store", "/updates"); ok {
//			for msg, ok := sub.PopMessage(); ok; msg, ok = sub.PopMessage() {
//				handle(msg)
//			}
//		}
//		time.Sleep(500 * time.Millisecond)
//	}
//
// The graphstore and chat packages layer application conveniences on top of
// these primitives; they hold no privileged access to channel internals.
package airlock
