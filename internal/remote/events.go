package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/h0rv/kanban/internal/fanout"
)

// Signal is one item of a board's event stream.
type Signal struct {
	// Connected is set when a stream has just been (re)established. Anything
	// may have changed while disconnected, so the board should be refetched.
	Connected bool
	Event     fanout.Event
	// Err is set on the final signal when the stream gives up for good,
	// for example because the user lost access to the board.
	Err error
}

// Subscribe follows a board's events until ctx ends, reconnecting with
// exponential backoff. The channel is closed when the subscription stops.
func (c *Client) Subscribe(ctx context.Context, boardID string) <-chan Signal {
	out := make(chan Signal, 16)
	go func() {
		defer close(out)
		delay := c.minBackoff
		for {
			connected, err := c.follow(ctx, boardID, out)
			if ctx.Err() != nil {
				return
			}
			if err != nil && permanent(err) {
				c.log.Warn("event stream closed", "board", boardID, "err", err)
				send(ctx, out, Signal{Err: err})
				return
			}
			if connected {
				delay = c.minBackoff
			}
			c.log.Info("event stream reconnecting", "board", boardID, "delay", delay, "err", err)

			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			delay = min(delay*2, c.maxBackoff)
		}
	}()
	return out
}

func send(ctx context.Context, out chan<- Signal, s Signal) bool {
	select {
	case out <- s:
		return true
	case <-ctx.Done():
		return false
	}
}

// follow runs one connection. connected reports whether the server accepted it.
func (c *Client) follow(ctx context.Context, boardID string, out chan<- Signal) (connected bool, err error) {
	path := "/api/boards/" + escape(boardID) + "/events?client_id=" + url.QueryEscape(c.clientID)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, decodeError(resp)
	}

	if !send(ctx, out, Signal{Connected: true}) {
		return true, ctx.Err()
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var ev fanout.Event
			if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
				c.log.Warn("bad event", "board", boardID, "err", err)
			} else if !send(ctx, out, Signal{Event: ev}) {
				return true, ctx.Err()
			}
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment or heartbeat
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return true, fmt.Errorf("read stream: %w", err)
	}
	return true, errors.New("stream ended")
}
