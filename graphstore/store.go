package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Client is the scry surface the store needs. Implemented by
// *airlock.Client.
type Client interface {
	ShipName() string
	Scry(ctx context.Context, app, path, mark string) ([]byte, error)
}

// Channel is the action surface the store needs. Implemented by
// *airlock.Channel.
type Channel interface {
	Poke(ctx context.Context, app, mark string, payload any) error
	Subscribe(ctx context.Context, app, path string) (uint64, error)
}

// Store exposes graph-store reads and writes over one client and one
// channel.
type Store struct {
	client  Client
	channel Channel
	now     func() time.Time
}

// New builds a Store. Reads go through client scries, writes through channel
// pokes.
func New(client Client, channel Channel) *Store {
	return &Store{client: client, channel: channel, now: time.Now}
}

// NewNode builds a node authored by the connected ship, indexed by the
// current @da time. This fills the boilerplate; the caller only supplies
// contents.
func (s *Store) NewNode(contents []Content) Node {
	now := s.now()
	return Node{
		Index:    DaIndex(now),
		Author:   "~" + s.client.ShipName(),
		TimeSent: uint64(now.UnixMilli()),
		Contents: contents,
	}
}

// AddNode posts a node to the resource's graph.
func (s *Store) AddNode(ctx context.Context, resource Resource, node Node) error {
	payload := map[string]any{
		"add-nodes": map[string]any{
			"resource": resource,
			"nodes": map[string]wireNode{
				node.Index: node.toWire(),
			},
		},
	}
	if err := s.channel.Poke(ctx, "graph-push-hook", "graph-update", payload); err != nil {
		return fmt.Errorf("add node to %s: %w", resource, err)
	}
	return nil
}

// RemoveNodes removes the nodes at the given indices from the resource's
// graph.
func (s *Store) RemoveNodes(ctx context.Context, resource Resource, indices []string) error {
	payload := map[string]any{
		"remove-nodes": map[string]any{
			"resource": resource,
			"indices":  indices,
		},
	}
	if err := s.channel.Poke(ctx, "graph-push-hook", "graph-update", payload); err != nil {
		return fmt.Errorf("remove nodes from %s: %w", resource, err)
	}
	return nil
}

// RemoveGraph deletes the resource's graph entirely.
func (s *Store) RemoveGraph(ctx context.Context, resource Resource) error {
	payload := map[string]any{
		"remove-graph": map[string]any{
			"resource": resource,
		},
	}
	if err := s.channel.Poke(ctx, "graph-push-hook", "graph-update", payload); err != nil {
		return fmt.Errorf("remove graph %s: %w", resource, err)
	}
	return nil
}

// GetGraph scries the full graph for a resource.
func (s *Store) GetGraph(ctx context.Context, resource Resource) (Graph, error) {
	path := fmt.Sprintf("/graph/%s/%s", resource.Ship, resource.Name)
	body, err := s.client.Scry(ctx, "graph-store", path, "json")
	if err != nil {
		return Graph{}, fmt.Errorf("get graph %s: %w", resource, err)
	}
	return ParseGraph(body)
}

// ArchiveGraph scries the archived form of a resource's graph and returns
// the raw body.
func (s *Store) ArchiveGraph(ctx context.Context, resource Resource) ([]byte, error) {
	path := fmt.Sprintf("/archive/%s/%s", resource.Ship, resource.Name)
	body, err := s.client.Scry(ctx, "graph-store", path, "json")
	if err != nil {
		return nil, fmt.Errorf("archive graph %s: %w", resource, err)
	}
	return body, nil
}

// Keys scries the resources graph-store currently holds.
func (s *Store) Keys(ctx context.Context) ([]Resource, error) {
	body, err := s.client.Scry(ctx, "graph-store", "/keys", "json")
	if err != nil {
		return nil, fmt.Errorf("get keys: %w", err)
	}
	var envelope struct {
		GraphUpdate struct {
			Keys []Resource `json:"keys"`
		} `json:"graph-update"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parse keys: %w", err)
	}
	return envelope.GraphUpdate.Keys, nil
}

// SubscribeUpdates registers a subscription to graph-store's /updates path
// on the store's channel and returns its creation id. Payloads arriving on
// it decode with ParseUpdate.
func (s *Store) SubscribeUpdates(ctx context.Context) (uint64, error) {
	return s.channel.Subscribe(ctx, "graph-store", "/updates")
}
