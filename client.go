package airlock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/elnormous/contenttype"
	"github.com/urbitgo/airlock/internal/logctx"
)

var (
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

// Session is the authenticated request surface a Channel relies on. It is
// implemented by Client; tests substitute fakes. Both methods surface
// transport failures immediately and never retry.
type Session interface {
	// ShipName returns the @p of the authenticated ship, without the leading
	// sigil (e.g. "zod").
	ShipName() string

	// PutActions posts an ordered batch of actions to the channel endpoint
	// atomically. A non-2xx response is an error.
	PutActions(ctx context.Context, channelPath string, actions []Action) error

	// OpenEventStream opens the long-lived SSE connection for the channel
	// endpoint and hands back its body. The caller owns the body.
	OpenEventStream(ctx context.Context, channelPath string) (io.ReadCloser, error)
}

var _ Session = (*Client)(nil)

// Option configures a Client.
type Option func(*newConfig)

type newConfig struct {
	logger     *slog.Logger
	httpClient *http.Client
}

// WithLogger sets the slog logger used by the client and every channel it
// creates. If not provided, logs are discarded.
func WithLogger(log *slog.Logger) Option {
	return func(c *newConfig) { c.logger = log }
}

// WithHTTPClient substitutes the http.Client used for every request,
// including the long-lived event stream GET. The default is a fresh
// http.Client with no timeout, because the stream connection must be allowed
// to live indefinitely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *newConfig) { c.httpClient = hc }
}

// Client holds an authenticated session with one ship. It implements the
// Session contract consumed by Channel and additionally exposes the one-shot
// request primitives (Scry, Spider) that need no channel.
type Client struct {
	baseURL  string
	shipName string
	cookie   *http.Cookie
	http     *http.Client
	log      *slog.Logger
}

// Dial logs into the ship at shipURL (e.g. "http://localhost:8080") using
// the +code password and returns an authenticated Client. The session cookie
// lives for the ship's session lifetime; there is no refresh machinery here.
func Dial(ctx context.Context, shipURL, code string, opts ...Option) (*Client, error) {
	cfg := &newConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var logHandler slog.Handler = slog.NewTextHandler(io.Discard, nil)
	if cfg.logger != nil {
		logHandler = cfg.logger.Handler()
	}
	log := slog.New(logctx.Handler{Handler: logHandler})

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{}
	}

	shipURL = strings.TrimSuffix(shipURL, "/")

	form := url.Values{"password": {code}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, shipURL+"/~/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrLoginFailed, resp.StatusCode)
	}

	cookie, shipName, err := sessionCookie(resp.Cookies())
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:  shipURL,
		shipName: shipName,
		cookie:   cookie,
		http:     hc,
		log:      log,
	}
	c.log.DebugContext(c.shipCtx(ctx), "logged in")
	return c, nil
}

// sessionCookie finds the urbauth session cookie and derives the ship name
// from it. Eyre names the cookie "urbauth-~<ship>".
func sessionCookie(cookies []*http.Cookie) (*http.Cookie, string, error) {
	for _, ck := range cookies {
		if name, ok := strings.CutPrefix(ck.Name, "urbauth-~"); ok {
			return ck, name, nil
		}
	}
	return nil, "", fmt.Errorf("%w: no urbauth cookie in response", ErrLoginFailed)
}

// ShipName implements Session.
func (c *Client) ShipName() string { return c.shipName }

// URL returns the base URL of the ship this client is authenticated with.
func (c *Client) URL() string { return c.baseURL }

func (c *Client) shipCtx(ctx context.Context) context.Context {
	return logctx.WithShipData(ctx, &logctx.ShipData{Name: c.shipName, URL: c.baseURL})
}

// PutActions implements Session.
func (c *Client) PutActions(ctx context.Context, channelPath string, actions []Action) error {
	body, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("marshal action batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+channelPath, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("build action request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(c.cookie)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("put actions: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: "put actions", Code: resp.StatusCode}
	}
	return nil
}

// OpenEventStream implements Session. It validates that the ship actually
// answered with an SSE stream before handing the body over; a channel that
// was never created with a preceding action batch answers 404 here.
func (c *Client) OpenEventStream(ctx context.Context, channelPath string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+channelPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", eventStreamMediaType.String())
	req.Header.Set("Cache-Control", "no-cache")
	req.AddCookie(c.cookie)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{Op: "open event stream", Code: resp.StatusCode}
	}

	if _, _, err := contenttype.GetAcceptableMediaTypeFromHeader(
		resp.Header.Get("Content-Type"), eventStreamMediaTypes); err != nil {
		resp.Body.Close()
		return nil, &NotStreamError{ContentType: resp.Header.Get("Content-Type")}
	}

	return resp.Body, nil
}

// Scry performs a one-shot read against the ship's namespace. path must
// begin with "/". The raw response body is returned; interpreting it is the
// caller's business.
func (c *Client) Scry(ctx context.Context, app, path, mark string) ([]byte, error) {
	scryURL := fmt.Sprintf("%s/~/scry/%s%s.%s", c.baseURL, app, path, mark)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build scry request: %w", err)
	}
	req.AddCookie(c.cookie)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scry %s%s: %w", app, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: "scry", Code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// Spider runs a one-shot thread on the ship. payload is marshalled to JSON
// and posted; the thread's output body is returned raw.
func (c *Client) Spider(ctx context.Context, inputMark, threadName, outputMark string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal spider payload: %w", err)
	}

	spiderURL := fmt.Sprintf("%s/spider/%s/%s/%s.json", c.baseURL, inputMark, threadName, outputMark)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, spiderURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("build spider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(c.cookie)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spider %s: %w", threadName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: "spider", Code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// CreateChannel opens a fresh channel against this client's ship. See
// NewChannel for the underlying mechanics.
func (c *Client) CreateChannel(ctx context.Context) (*Channel, error) {
	return NewChannel(c.shipCtx(ctx), c, WithChannelLogger(c.log))
}
