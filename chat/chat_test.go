package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/urbitgo/airlock"
	"github.com/urbitgo/airlock/graphstore"
)

type fakeClient struct {
	scries map[string][]byte
}

func (f *fakeClient) ShipName() string { return "zod" }

func (f *fakeClient) Scry(ctx context.Context, app, path, mark string) ([]byte, error) {
	body, ok := f.scries[fmt.Sprintf("%s%s.%s", app, path, mark)]
	if !ok {
		return nil, errors.New("no fixture")
	}
	return body, nil
}

// fakeSession feeds a real airlock.Channel from an in-memory pipe so Poll
// can be exercised end to end.
type fakeSession struct {
	stream io.ReadCloser

	mu      sync.Mutex
	actions []airlock.Action
}

func newFakeSession() (*fakeSession, *io.PipeWriter) {
	pr, pw := io.Pipe()
	return &fakeSession{stream: pr}, pw
}

func (f *fakeSession) ShipName() string { return "zod" }

func (f *fakeSession) PutActions(ctx context.Context, channelPath string, actions []airlock.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, actions...)
	return nil
}

func (f *fakeSession) OpenEventStream(ctx context.Context, channelPath string) (io.ReadCloser, error) {
	return f.stream, nil
}

func TestMessageBuilder(t *testing.T) {
	m := NewMessage().AddText("hello").AddMention("~bus").AddURL("https://urbit.org")
	contents := m.Contents()
	if len(contents) != 3 {
		t.Fatalf("contents = %+v", contents)
	}
	if contents[0].Text != "hello" || contents[1].Mention != "~bus" || contents[2].URL != "https://urbit.org" {
		t.Errorf("contents = %+v", contents)
	}
}

func TestAuthoredMessageString(t *testing.T) {
	am := AuthoredMessage{
		Author:   "~zod",
		Contents: []graphstore.Content{{Text: "hi"}, {URL: "https://urbit.org"}},
		TimeSent: time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	got := am.String()
	if !strings.Contains(got, "~zod") || !strings.Contains(got, "hi") || !strings.Contains(got, "https://urbit.org") {
		t.Errorf("String() = %q", got)
	}
}

func TestMessagesSkipsEmptyNodes(t *testing.T) {
	body := `{"graph-update":{"add-graph":{"graph":{
		"1":{"post":{"index":"/1","author":"~zod","time-sent":1000,"signatures":[],"contents":[{"text":"hello"}],"hash":null},"children":null},
		"2":{"post":{"index":"/2","author":"~zod","time-sent":2000,"signatures":[],"contents":[],"hash":null},"children":null}
	}}}}`
	client := &fakeClient{scries: map[string][]byte{
		"graph-store/graph/~zod/chat.json": []byte(body),
	}}

	sess, pw := newFakeSession()
	defer pw.Close()
	ch, err := airlock.NewChannel(context.Background(), sess)
	if err != nil {
		t.Fatal(err)
	}
	defer ch.Delete(context.Background())

	c := New(graphstore.New(client, ch), ch)
	msgs, err := c.Messages(context.Background(), graphstore.Resource{Ship: "~zod", Name: "chat"})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Contents[0].Text != "hello" {
		t.Errorf("msgs = %+v", msgs)
	}
}

func TestSendPostsNodeAndReturnsIndex(t *testing.T) {
	sess, pw := newFakeSession()
	defer pw.Close()
	ch, err := airlock.NewChannel(context.Background(), sess)
	if err != nil {
		t.Fatal(err)
	}
	defer ch.Delete(context.Background())

	c := New(graphstore.New(&fakeClient{}, ch), ch)
	idx, err := c.Send(context.Background(), graphstore.Resource{Ship: "~zod", Name: "chat"},
		NewMessage().AddText("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(idx, "/") {
		t.Errorf("index = %q", idx)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.actions) != 1 || sess.actions[0].Action != "poke" || sess.actions[0].App != "graph-push-hook" {
		t.Errorf("actions = %+v", sess.actions)
	}
}

func TestPollDeliversOnlyMatchingResource(t *testing.T) {
	sess, pw := newFakeSession()
	ch, err := airlock.NewChannel(context.Background(), sess)
	if err != nil {
		t.Fatal(err)
	}

	c := New(graphstore.New(&fakeClient{}, ch), ch)
	if err := c.Subscribe(context.Background()); err != nil {
		t.Fatal(err)
	}

	update := func(name, text string) string {
		return fmt.Sprintf(`{"id":1,"response":"diff","json":{"graph-update":{"add-nodes":{"resource":{"ship":"zod","name":%q},"nodes":{"/1":{"post":{"index":"/1","author":"~zod","time-sent":1000,"signatures":[],"contents":[{"text":%q}],"hash":null},"children":null}}}}}}`, name, text)
	}
	go func() {
		fmt.Fprintf(pw, "id: 1\ndata: %s\n\n", update("other-chat", "wrong room"))
		fmt.Fprintf(pw, "id: 2\ndata: %s\n\n", update("my-chat", "right room"))
		pw.Close()
	}()

	// Poll until the closed stream surfaces, collecting messages as they
	// arrive.
	var got []AuthoredMessage
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msgs, err := c.Poll(context.Background(), graphstore.Resource{Ship: "~zod", Name: "my-chat"})
		got = append(got, msgs...)
		if errors.Is(err, airlock.ErrStreamClosed) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if len(got) != 1 || got[0].Contents[0].Text != "right room" {
		t.Errorf("polled = %+v", got)
	}
}

func TestPollWithoutSubscribe(t *testing.T) {
	sess, pw := newFakeSession()
	defer pw.Close()
	ch, err := airlock.NewChannel(context.Background(), sess)
	if err != nil {
		t.Fatal(err)
	}
	defer ch.Delete(context.Background())

	c := New(graphstore.New(&fakeClient{}, ch), ch)
	if _, err := c.Poll(context.Background(), graphstore.Resource{Ship: "~zod", Name: "chat"}); err == nil {
		t.Fatal("Poll without Subscribe should error")
	}
}
