package airlock

import "encoding/json"

// Action is one entry in an outbound channel batch. Eyre accepts a JSON
// array of these on PUT to the channel endpoint. Which fields are present
// depends on the action kind; absent fields must be omitted entirely, not
// sent as empty strings, so everything optional carries omitempty.
type Action struct {
	ID     uint64 `json:"id"`
	Action string `json:"action"`
	Ship   string `json:"ship,omitempty"`
	App    string `json:"app,omitempty"`
	Mark   string `json:"mark,omitempty"`
	Path   string `json:"path,omitempty"`

	// JSON carries the poke payload. Present only for "poke".
	JSON json.RawMessage `json:"json,omitempty"`

	// Subscription names the creation id of the subscription being torn
	// down. Present only for "unsubscribe".
	Subscription uint64 `json:"subscription,omitempty"`

	// EventID names the inbound event being acknowledged. Present only for
	// "ack".
	EventID uint64 `json:"event-id,omitempty"`
}

const (
	actionPoke        = "poke"
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
	actionAck         = "ack"
	actionDelete      = "delete"
)

func pokeAction(id uint64, ship, app, mark string, payload json.RawMessage) Action {
	return Action{ID: id, Action: actionPoke, Ship: ship, App: app, Mark: mark, JSON: payload}
}

func subscribeAction(id uint64, ship, app, path string) Action {
	return Action{ID: id, Action: actionSubscribe, Ship: ship, App: app, Path: path}
}

func unsubscribeAction(id, subscription uint64) Action {
	return Action{ID: id, Action: actionUnsubscribe, Subscription: subscription}
}

func ackAction(id, eventID uint64) Action {
	return Action{ID: id, Action: actionAck, EventID: eventID}
}

func deleteAction(id uint64) Action {
	return Action{ID: id, Action: actionDelete}
}
