// Package chat layers a messaging surface over graph-store: Urbit chats are
// graphs whose nodes are messages. Like graphstore, this package only uses
// the exported airlock primitives.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urbitgo/airlock"
	"github.com/urbitgo/airlock/graphstore"
)

// Message builds a post's contents in chunks, so text, links and @p
// mentions can be mixed in one message.
type Message struct {
	contents []graphstore.Content
}

// NewMessage returns an empty message builder.
func NewMessage() *Message { return &Message{} }

// AddText appends a text chunk.
func (m *Message) AddText(text string) *Message {
	m.contents = append(m.contents, graphstore.Content{Text: text})
	return m
}

// AddURL appends a link chunk.
func (m *Message) AddURL(url string) *Message {
	m.contents = append(m.contents, graphstore.Content{URL: url})
	return m
}

// AddMention appends an @p mention chunk.
func (m *Message) AddMention(ship string) *Message {
	m.contents = append(m.contents, graphstore.Content{Mention: ship})
	return m
}

// Contents returns the accumulated chunks.
func (m *Message) Contents() []graphstore.Content { return m.contents }

// AuthoredMessage is a received message with its author, posting time and
// graph index attached.
type AuthoredMessage struct {
	Author   string
	Contents []graphstore.Content
	TimeSent time.Time
	Index    string
}

func authoredFromNode(n graphstore.Node) AuthoredMessage {
	return AuthoredMessage{
		Author:   n.Author,
		Contents: n.Contents,
		TimeSent: time.UnixMilli(int64(n.TimeSent)).UTC(),
		Index:    n.Index,
	}
}

// String renders the message as a single human-readable line.
func (am AuthoredMessage) String() string {
	var b strings.Builder
	for _, c := range am.Contents {
		switch {
		case c.Text != "":
			b.WriteString(" " + c.Text)
		case c.URL != "":
			b.WriteString(" " + c.URL)
		case c.Mention != "":
			b.WriteString(" " + c.Mention)
		}
	}
	return fmt.Sprintf("%s - %s:%s", am.TimeSent.Format("2006-01-02 15:04:05"), am.Author, b.String())
}

// Channel is the event surface Poll needs. Implemented by *airlock.Channel.
type Channel interface {
	ParseEvents(ctx context.Context) error
	FindSubscription(app, path string) (*airlock.Subscription, bool)
}

// Chat reads and writes one ship's chats.
type Chat struct {
	store   *graphstore.Store
	channel Channel
}

// New builds a Chat over a graph store and the channel it pokes through.
func New(store *graphstore.Store, channel Channel) *Chat {
	return &Chat{store: store, channel: channel}
}

// Send posts a message to a chat and returns the index of the node that was
// added.
func (c *Chat) Send(ctx context.Context, chat graphstore.Resource, m *Message) (string, error) {
	node := c.store.NewNode(m.Contents())
	if err := c.store.AddNode(ctx, chat, node); err != nil {
		return "", fmt.Errorf("send message to %s: %w", chat, err)
	}
	return node.Index, nil
}

// Messages fetches the chat's full message log, oldest first, skipping
// structural nodes with no contents.
func (c *Chat) Messages(ctx context.Context, chat graphstore.Resource) ([]AuthoredMessage, error) {
	g, err := c.store.GetGraph(ctx, chat)
	if err != nil {
		return nil, err
	}
	var out []AuthoredMessage
	for _, n := range g.Nodes {
		if len(n.Contents) == 0 {
			continue
		}
		out = append(out, authoredFromNode(n))
	}
	return out, nil
}

// Log fetches the chat's message log as formatted lines.
func (c *Chat) Log(ctx context.Context, chat graphstore.Resource) ([]string, error) {
	msgs, err := c.Messages(ctx, chat)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.String())
	}
	return out, nil
}

// Subscribe registers the graph-store /updates subscription that Poll
// drains. Call it once after the channel is created.
func (c *Chat) Subscribe(ctx context.Context) error {
	if _, err := c.store.SubscribeUpdates(ctx); err != nil {
		return err
	}
	return nil
}

// Poll drains the channel's queued events and returns any new messages for
// the given chat, oldest first. Updates for other resources are popped and
// dropped, matching the single-consumer queue model. Call Poll on a regular
// cadence.
//
// When the event stream has terminated, Poll returns the messages that were
// still queued together with an error wrapping airlock.ErrStreamClosed.
func (c *Chat) Poll(ctx context.Context, chat graphstore.Resource) ([]AuthoredMessage, error) {
	parseErr := c.channel.ParseEvents(ctx)
	if parseErr != nil && !errors.Is(parseErr, airlock.ErrStreamClosed) {
		return nil, parseErr
	}
	sub, ok := c.channel.FindSubscription("graph-store", "/updates")
	if !ok {
		return nil, fmt.Errorf("no graph-store /updates subscription; call Subscribe first")
	}

	var out []AuthoredMessage
	for {
		payload, ok := sub.PopMessage()
		if !ok {
			break
		}
		update, err := graphstore.ParseUpdate(payload)
		if err != nil {
			continue
		}
		if !sameResource(update.Resource, chat) {
			continue
		}
		for _, n := range update.Nodes {
			if len(n.Contents) == 0 {
				continue
			}
			out = append(out, authoredFromNode(n))
		}
	}
	return out, parseErr
}

// sameResource compares resources ignoring the optional leading sigil; the
// ship field arrives unsigiled in graph updates.
func sameResource(a, b graphstore.Resource) bool {
	return strings.TrimPrefix(a.Ship, "~") == strings.TrimPrefix(b.Ship, "~") && a.Name == b.Name
}
