// Package eventsource decodes a server-sent-event byte stream into an
// ordered queue of events. It is the single background execution unit owned
// by a channel: one goroutine reads and frames the stream, the channel drains
// the queue from its own thread of control via TryNext. The two sides share
// nothing but the queue, which is guarded by one mutex.
//
// The queue is unbounded. If the owner never drains it, memory grows for as
// long as the stream stays open; the channel layer is expected to drain on a
// regular cadence.
package eventsource

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Event is one decoded SSE frame. Fields mirror the wire format: ID and Type
// come from the "id:" and "event:" fields, Data is the concatenation of all
// "data:" lines joined by newlines.
type Event struct {
	ID   string
	Type string
	Data string
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger used for frame-level diagnostics. If not
// provided, logs are discarded.
func WithLogger(log *slog.Logger) Option {
	return func(r *Reader) { r.log = log }
}

// Reader frames one SSE stream. Construct with New; the decode goroutine
// starts immediately and runs until the stream ends or Close is called.
type Reader struct {
	body io.ReadCloser
	log  *slog.Logger

	mu    sync.Mutex
	queue []Event
	err   error

	done chan struct{}

	closeOnce sync.Once
}

// New starts decoding body. The Reader takes ownership of body and closes it
// when the stream ends or when Close is called.
func New(body io.ReadCloser, opts ...Option) *Reader {
	r := &Reader{
		body: body,
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

// TryNext pops the oldest queued event. ok is false when the queue is
// currently empty; that is not end-of-stream, the queue refills as frames
// arrive. Use Err to distinguish an empty queue from a dead stream.
func (r *Reader) TryNext() (ev Event, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return Event{}, false
	}
	ev = r.queue[0]
	r.queue = r.queue[1:]
	return ev, true
}

// Err reports the terminal state of the stream. It returns nil while the
// decode goroutine is still running, io.EOF after a clean server close, and
// the transport error otherwise. Queued events remain poppable after Err
// becomes non-nil.
func (r *Reader) Err() error {
	select {
	case <-r.done:
	default:
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed when the decode goroutine has exited.
func (r *Reader) Done() <-chan struct{} {
	return r.done
}

// Close tears the stream down: it closes the underlying body, which unblocks
// the decode goroutine, and waits for that goroutine to exit before
// returning. Safe to call more than once.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		_ = r.body.Close()
	})
	<-r.done
	return nil
}

func (r *Reader) run() {
	defer close(r.done)
	defer r.closeOnce.Do(func() { _ = r.body.Close() })

	sc := bufio.NewScanner(r.body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cur Event
	var data []string
	flush := func() {
		if len(data) == 0 && cur.ID == "" && cur.Type == "" {
			return
		}
		cur.Data = strings.Join(data, "\n")
		r.mu.Lock()
		r.queue = append(r.queue, cur)
		r.mu.Unlock()
		cur = Event{}
		data = nil
	}

	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, ":"):
			// Comment / keepalive.
		default:
			field, value, found := strings.Cut(line, ":")
			if !found {
				// A field name with no colon has an empty value.
				field = line
			}
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "data":
				data = append(data, value)
			case "event":
				cur.Type = value
			case "id":
				cur.ID = value
			case "retry":
				// Reconnection hints are not acted on.
			default:
				r.log.Debug("ignoring unknown sse field", slog.String("field", field))
			}
		}
	}
	// A final frame without a trailing blank line still counts.
	flush()

	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.log.Debug("event stream terminated", slog.String("err", err.Error()))
}
