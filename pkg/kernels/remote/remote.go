// Package remote provides a kernel that executes code on a leapnb kernel
// server (see `leapnb serve`) over HTTP with server-sent events.
//
// Wire protocol: POST {url}/api/execute with a JSON Request body. The
// response is an SSE stream whose data lines carry "signals <json>" where
// the JSON is an Event: one per chunk with increasing Seq, then one with
// Done set. A stream that ends without a done event is a transport failure.
package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/kernel"
)

// Name is the registry name of the remote kernel.
const Name = "remote"

// DefaultURL is the address of a local `leapnb serve`.
const DefaultURL = "http://localhost:8787"

// maxEventSize bounds one SSE line (large tables).
const maxEventSize = 16 << 20

// Request is the body of an execute call.
type Request struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// Event is one signal on the execute stream.
type Event struct {
	Seq   int         `json:"seq,omitempty"`
	Chunk *core.Chunk `json:"chunk,omitempty"`
	Done  bool        `json:"done,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Settings is the decoded form of kernel.Options.Settings.
type Settings struct {
	URL string `mapstructure:"url"`
	// ConnectTimeout bounds dialing and response headers (0 means none).
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// Client is the remote transport.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client for the server at baseURL.
// A nil httpClient uses a client without overall timeout, since streams
// may run for as long as the cell does.
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

func init() {
	kernel.Register(Name, func(opts kernel.Options) (kernel.Transport, error) {
		s := Settings{URL: DefaultURL}
		if err := kernel.DecodeSettings(opts.Settings, &s); err != nil {
			return nil, err
		}
		if s.URL == "" {
			return nil, fmt.Errorf("remote kernel: url is required")
		}

		var hc *http.Client
		if s.ConnectTimeout > 0 {
			tr := http.DefaultTransport.(*http.Transport).Clone()
			tr.ResponseHeaderTimeout = s.ConnectTimeout
			hc = &http.Client{Transport: tr}
		}
		return New(s.URL, hc, opts.Logger), nil
	})
}

// Execute posts req to the server and relays the streamed chunks.
func (c *Client) Execute(ctx context.Context, req core.ExecutionRequest, onChunk core.ChunkFunc) error {
	body, err := json.Marshal(Request{Code: req.Code, Language: string(req.Language)})
	if err != nil {
		return c.fail("encode", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/execute", bytes.NewReader(body))
	if err != nil {
		return c.fail("request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return c.fail("connect", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return c.fail("execute", fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(msg))))
	}

	err = c.relay(resp.Body, onChunk)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// relay reads events until the done event.
func (c *Client) relay(r io.Reader, onChunk core.ChunkFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	next := 1
	for scanner.Scan() {
		ev, ok, err := parseLine(scanner.Text())
		if err != nil {
			return c.fail("decode", err)
		}
		if !ok {
			continue
		}

		if ev.Done {
			if ev.Error != "" {
				return c.fail("remote", errors.New(ev.Error))
			}
			return nil
		}
		if ev.Chunk == nil {
			continue
		}
		if ev.Seq != next {
			return c.fail("stream", fmt.Errorf("chunk %d arrived, expected %d", ev.Seq, next))
		}
		next++
		onChunk(*ev.Chunk)
	}

	if err := scanner.Err(); err != nil {
		return c.fail("stream", err)
	}
	return c.fail("stream", io.ErrUnexpectedEOF)
}

// parseLine extracts an Event from an SSE "data: signals {...}" line.
func parseLine(line string) (Event, bool, error) {
	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return Event{}, false, nil
	}
	payload, ok := strings.CutPrefix(strings.TrimLeft(data, " "), "signals ")
	if !ok {
		return Event{}, false, nil
	}

	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, false, fmt.Errorf("invalid event %q: %w", payload, err)
	}
	return ev, true, nil
}

func (c *Client) fail(op string, err error) error {
	c.logger.Debug("remote kernel failed", slog.String("op", op), slog.String("error", err.Error()))
	return &core.TransportError{Kernel: Name, Op: op, Err: err}
}

// Ensure Client implements kernel.Transport interface
var _ kernel.Transport = (*Client)(nil)
