// Package graphstore is a convenience layer over the channel primitives for
// Urbit's graph-store: building and posting nodes, fetching graphs, and
// subscribing to updates. It holds no privileged access to the channel; it
// is built entirely on the exported airlock surface, so anything it does the
// caller could do by hand.
package graphstore

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Resource identifies a graph on a ship, e.g. {"~zod", "my-chat"}. Ship
// carries the leading sigil.
type Resource struct {
	Ship string `json:"ship"`
	Name string `json:"name"`
}

func (r Resource) String() string {
	return r.Ship + "/" + r.Name
}

// Content is one chunk of a post's contents. Exactly one field should be
// set; the zero value marshals to an empty text chunk.
type Content struct {
	Text    string `json:"text,omitempty"`
	URL     string `json:"url,omitempty"`
	Mention string `json:"mention,omitempty"`
}

// Node is one entry in a graph. Children are nested nodes keyed under this
// node's index.
type Node struct {
	Index      string
	Author     string
	TimeSent   uint64 // milliseconds since the unix epoch
	Signatures []json.RawMessage
	Contents   []Content
	Hash       string
	Children   []Node
}

// Graph is a flat, time-ordered view of a graph's top-level nodes.
type Graph struct {
	Nodes []Node
}

// wire shapes for graph-update JSON.

type wirePost struct {
	Index      string            `json:"index"`
	Author     string            `json:"author"`
	TimeSent   uint64            `json:"time-sent"`
	Signatures []json.RawMessage `json:"signatures"`
	Contents   []Content         `json:"contents"`
	Hash       *string           `json:"hash"`
}

type wireNode struct {
	Post     wirePost            `json:"post"`
	Children map[string]wireNode `json:"children"`
}

func (n Node) toWire() wireNode {
	w := wireNode{
		Post: wirePost{
			Index:      n.Index,
			Author:     n.Author,
			TimeSent:   n.TimeSent,
			Signatures: n.Signatures,
			Contents:   n.Contents,
		},
	}
	if w.Post.Signatures == nil {
		w.Post.Signatures = []json.RawMessage{}
	}
	if w.Post.Contents == nil {
		w.Post.Contents = []Content{}
	}
	if n.Hash != "" {
		w.Post.Hash = &n.Hash
	}
	for _, child := range n.Children {
		if w.Children == nil {
			w.Children = make(map[string]wireNode)
		}
		w.Children[child.Index] = child.toWire()
	}
	return w
}

func nodeFromWire(w wireNode) Node {
	n := Node{
		Index:      w.Post.Index,
		Author:     w.Post.Author,
		TimeSent:   w.Post.TimeSent,
		Signatures: w.Post.Signatures,
		Contents:   w.Post.Contents,
	}
	if w.Post.Hash != nil {
		n.Hash = *w.Post.Hash
	}
	for _, child := range w.Children {
		n.Children = append(n.Children, nodeFromWire(child))
	}
	sortNodes(n.Children)
	return n
}

func sortNodes(nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].TimeSent != nodes[j].TimeSent {
			return nodes[i].TimeSent < nodes[j].TimeSent
		}
		return nodes[i].Index < nodes[j].Index
	})
}

// ParseGraph decodes the body of a graph scry
// ({"graph-update":{"add-graph":{"graph":{...}}}}) into a Graph with nodes
// sorted by time sent.
func ParseGraph(body []byte) (Graph, error) {
	var envelope struct {
		GraphUpdate struct {
			AddGraph struct {
				Graph map[string]wireNode `json:"graph"`
			} `json:"add-graph"`
		} `json:"graph-update"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Graph{}, fmt.Errorf("parse graph: %w", err)
	}

	var g Graph
	for _, w := range envelope.GraphUpdate.AddGraph.Graph {
		g.Nodes = append(g.Nodes, nodeFromWire(w))
	}
	sortNodes(g.Nodes)
	return g, nil
}

// Update is one decoded graph-update event from a /updates subscription. A
// zero Resource means the event was not an add-nodes update.
type Update struct {
	Resource Resource
	Nodes    []Node
}

// ParseUpdate decodes one subscription payload. Payloads that are not
// add-nodes updates decode to an Update with no nodes; the caller skips
// them.
func ParseUpdate(payload []byte) (Update, error) {
	var envelope struct {
		GraphUpdate struct {
			AddNodes struct {
				Resource Resource            `json:"resource"`
				Nodes    map[string]wireNode `json:"nodes"`
			} `json:"add-nodes"`
		} `json:"graph-update"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return Update{}, fmt.Errorf("parse graph update: %w", err)
	}

	u := Update{Resource: envelope.GraphUpdate.AddNodes.Resource}
	for _, w := range envelope.GraphUpdate.AddNodes.Nodes {
		u.Nodes = append(u.Nodes, nodeFromWire(w))
	}
	sortNodes(u.Nodes)
	return u, nil
}
