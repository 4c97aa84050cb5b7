package chain

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HeadFeed subscribes to newHeads over a websocket JSON-RPC endpoint and
// fans the head heights out to subscribers. It reconnects with backoff and
// keeps running until its context is done.
type HeadFeed struct {
	url    string
	dialer *websocket.Dialer
	log    *zap.Logger

	mu     sync.Mutex
	subs   map[int]chan uint64
	nextID int
}

func NewHeadFeed(url string, log *zap.Logger) *HeadFeed {
	return &HeadFeed{
		url: strings.TrimRight(url, "/"),
		dialer: &websocket.Dialer{
			HandshakeTimeout:  15 * time.Second,
			EnableCompression: true,
		},
		log:  log,
		subs: make(map[int]chan uint64, 4),
	}
}

// SubscribeHeads registers an observer for head heights. Delivery is
// non-blocking; a slow subscriber misses ticks rather than stalling the
// feed.
func (f *HeadFeed) SubscribeHeads(buf int) (<-chan uint64, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	ch := make(chan uint64, buf)
	f.subs[id] = ch
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *HeadFeed) broadcast(height uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- height:
		default:
		}
	}
}

// Run drives the connect/read loop until ctx is done.
func (f *HeadFeed) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		err := f.readLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			f.log.Warn("head feed disconnected", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *HeadFeed) readLoop(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	})

	sub := struct {
		JSONRPC string   `json:"jsonrpc"`
		ID      int      `json:"id"`
		Method  string   `json:"method"`
		Params  []string `json:"params"`
	}{JSONRPC: "2.0", ID: 1, Method: "eth_subscribe", Params: []string{"newHeads"}}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	go func() {
		t := time.NewTicker(20 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}()

	type notification struct {
		Method string `json:"method"`
		Params struct {
			Result struct {
				Number string `json:"number"`
			} `json:"result"`
		} `json:"params"`
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))

		var n notification
		if json.Unmarshal(data, &n) != nil || n.Method != "eth_subscription" {
			continue
		}
		height, err := parseHexUint(n.Params.Result.Number)
		if err != nil {
			continue
		}
		f.broadcast(height)
	}
}

func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	return strconv.ParseUint(s, 16, 64)
}
