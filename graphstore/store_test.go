package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

type fakeClient struct {
	ship    string
	scries  map[string][]byte
	lastURL string
}

func (f *fakeClient) ShipName() string { return f.ship }

func (f *fakeClient) Scry(ctx context.Context, app, path, mark string) ([]byte, error) {
	key := fmt.Sprintf("%s%s.%s", app, path, mark)
	f.lastURL = key
	body, ok := f.scries[key]
	if !ok {
		return nil, fmt.Errorf("no scry fixture for %s", key)
	}
	return body, nil
}

type fakeChannel struct {
	pokes []struct {
		App, Mark string
		Payload   any
	}
	subscribed []string
}

func (f *fakeChannel) Poke(ctx context.Context, app, mark string, payload any) error {
	f.pokes = append(f.pokes, struct {
		App, Mark string
		Payload   any
	}{app, mark, payload})
	return nil
}

func (f *fakeChannel) Subscribe(ctx context.Context, app, path string) (uint64, error) {
	f.subscribed = append(f.subscribed, app+path)
	return uint64(len(f.subscribed)), nil
}

func TestDaTimeOneSecondPastEpoch(t *testing.T) {
	// One second past the unix epoch is the epoch atom plus ~s1.
	got := DaTime(time.Unix(1, 0).UTC())
	if got.Cmp(daUnixEpoch) <= 0 {
		t.Fatal("@da for t>epoch must exceed the epoch atom")
	}
	diff := got.Sub(got, daUnixEpoch)
	if diff.Cmp(daSecond) != 0 {
		t.Errorf("1s past epoch: diff = %s, want %s", diff, daSecond)
	}
}

func TestDaIndexLeadingSlash(t *testing.T) {
	idx := DaIndex(time.Unix(0, 0).UTC())
	if idx != "/"+daUnixEpoch.String() {
		t.Errorf("DaIndex(epoch) = %s", idx)
	}
}

func TestNewNodeFillsBoilerplate(t *testing.T) {
	client := &fakeClient{ship: "zod"}
	store := New(client, &fakeChannel{})
	fixed := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	node := store.NewNode([]Content{{Text: "hello"}})
	if node.Author != "~zod" {
		t.Errorf("author = %q", node.Author)
	}
	if node.TimeSent != uint64(fixed.UnixMilli()) {
		t.Errorf("time sent = %d", node.TimeSent)
	}
	if node.Index != DaIndex(fixed) {
		t.Errorf("index = %q", node.Index)
	}
}

func TestAddNodeWireShape(t *testing.T) {
	ch := &fakeChannel{}
	store := New(&fakeClient{ship: "zod"}, ch)

	node := store.NewNode([]Content{{Text: "hi"}})
	if err := store.AddNode(context.Background(), Resource{Ship: "~zod", Name: "chat"}, node); err != nil {
		t.Fatal(err)
	}

	if len(ch.pokes) != 1 {
		t.Fatalf("pokes = %d", len(ch.pokes))
	}
	poke := ch.pokes[0]
	if poke.App != "graph-push-hook" || poke.Mark != "graph-update" {
		t.Errorf("poke target = %s/%s", poke.App, poke.Mark)
	}

	raw, err := json.Marshal(poke.Payload)
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		AddNodes struct {
			Resource Resource                   `json:"resource"`
			Nodes    map[string]json.RawMessage `json:"nodes"`
		} `json:"add-nodes"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("payload: %v\n%s", err, raw)
	}
	if decoded.AddNodes.Resource.Name != "chat" {
		t.Errorf("resource = %+v", decoded.AddNodes.Resource)
	}
	wire, ok := decoded.AddNodes.Nodes[node.Index]
	if !ok {
		t.Fatalf("nodes not keyed by index: %s", raw)
	}
	var post struct {
		Post struct {
			Author string `json:"author"`
		} `json:"post"`
	}
	if err := json.Unmarshal(wire, &post); err != nil || post.Post.Author != "~zod" {
		t.Errorf("node wire = %s (err %v)", wire, err)
	}
}

func TestGetGraphParsesAndOrders(t *testing.T) {
	body := `{"graph-update":{"add-graph":{"graph":{
		"170141184505617169802714997939541180416":{"post":{"index":"/2","author":"~bus","time-sent":2000,"signatures":[],"contents":[{"text":"second"}],"hash":null},"children":null},
		"170141184505617169784268443793548247040":{"post":{"index":"/1","author":"~zod","time-sent":1000,"signatures":[],"contents":[{"text":"first"}],"hash":null},"children":null}
	}}}}`
	client := &fakeClient{ship: "zod", scries: map[string][]byte{
		"graph-store/graph/~zod/chat.json": []byte(body),
	}}
	store := New(client, &fakeChannel{})

	g, err := store.GetGraph(context.Background(), Resource{Ship: "~zod", Name: "chat"})
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Nodes) != 2 {
		t.Fatalf("nodes = %d", len(g.Nodes))
	}
	if g.Nodes[0].Contents[0].Text != "first" || g.Nodes[1].Contents[0].Text != "second" {
		t.Errorf("order = %q, %q", g.Nodes[0].Contents[0].Text, g.Nodes[1].Contents[0].Text)
	}
}

func TestKeys(t *testing.T) {
	client := &fakeClient{ship: "zod", scries: map[string][]byte{
		"graph-store/keys.json": []byte(`{"graph-update":{"keys":[{"ship":"~zod","name":"chat"},{"ship":"~bus","name":"notes"}]}}`),
	}}
	store := New(client, &fakeChannel{})

	keys, err := store.Keys(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0].Name != "chat" || keys[1].Ship != "~bus" {
		t.Errorf("keys = %+v", keys)
	}
}

func TestParseUpdateAddNodes(t *testing.T) {
	payload := `{"graph-update":{"add-nodes":{"resource":{"ship":"zod","name":"chat"},"nodes":{
		"/1":{"post":{"index":"/1","author":"~zod","time-sent":1000,"signatures":[],"contents":[{"text":"hi"}],"hash":null},"children":null}
	}}}}`
	u, err := ParseUpdate([]byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	if u.Resource.Name != "chat" || len(u.Nodes) != 1 || u.Nodes[0].Author != "~zod" {
		t.Errorf("update = %+v", u)
	}
}

func TestParseUpdateOtherKindsYieldNoNodes(t *testing.T) {
	u, err := ParseUpdate([]byte(`{"graph-update":{"remove-nodes":{"resource":{"ship":"zod","name":"chat"},"indices":["/1"]}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(u.Nodes) != 0 {
		t.Errorf("nodes = %+v", u.Nodes)
	}
}

func TestSubscribeUpdates(t *testing.T) {
	ch := &fakeChannel{}
	store := New(&fakeClient{ship: "zod"}, ch)
	if _, err := store.SubscribeUpdates(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(ch.subscribed) != 1 || ch.subscribed[0] != "graph-store/updates" {
		t.Errorf("subscribed = %v", ch.subscribed)
	}
}
