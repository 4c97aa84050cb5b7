// Package feed publishes swap-session state transitions to redis, the
// surface an out-of-process presentation layer subscribes to.
package feed

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/redis/go-redis/v9"

	imetrics "github.com/you/swap-engine/internal/metrics"
)

// Update is one published state transition. Amounts travel as decimal
// strings to survive JSON without precision loss.
type Update struct {
	SessionID  string `json:"session_id"`
	Status     string `json:"status"`
	ErrorText  string `json:"error_text,omitempty"`
	FromSymbol string `json:"from_symbol,omitempty"`
	ToSymbol   string `json:"to_symbol,omitempty"`
	FromAmount string `json:"from_amount,omitempty"`
	ToAmount   string `json:"to_amount,omitempty"`
	Proceed    string `json:"proceed"`
	Approve    string `json:"approve"`
	TsMs       int64  `json:"ts_ms"`
}

type Options struct {
	Addr     string
	DB       int
	Username string
	Password string
	Channel  string
	StateNS  string
}

type Publisher struct {
	rdb     *redis.Client
	channel string
	stateNS string
}

func NewPublisher(opts Options) *Publisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		DB:       opts.DB,
		Username: opts.Username,
		Password: opts.Password,
	})
	channel := opts.Channel
	if channel == "" {
		channel = "swap:state"
	}
	ns := opts.StateNS
	if ns == "" {
		ns = "swap:session:"
	}
	return &Publisher{rdb: rdb, channel: channel, stateNS: ns}
}

// Publish stores the latest snapshot for the session and pushes the
// transition to the pubsub channel.
func (p *Publisher) Publish(ctx context.Context, u Update) error {
	key := p.stateNS + u.SessionID
	if err := p.rdb.HSet(ctx, key, map[string]interface{}{
		"status":      u.Status,
		"error_text":  u.ErrorText,
		"from_symbol": u.FromSymbol,
		"to_symbol":   u.ToSymbol,
		"from_amount": u.FromAmount,
		"to_amount":   u.ToAmount,
		"proceed":     u.Proceed,
		"approve":     u.Approve,
		"ts_ms":       u.TsMs,
	}).Err(); err != nil {
		imetrics.FeedPublishErrors.Inc()
		return err
	}

	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		imetrics.FeedPublishErrors.Inc()
		return err
	}
	return nil
}

// ReadState returns the last snapshot stored for sessionID.
func (p *Publisher) ReadState(ctx context.Context, sessionID string) (Update, error) {
	m, err := p.rdb.HGetAll(ctx, p.stateNS+sessionID).Result()
	if err != nil {
		return Update{}, err
	}
	if len(m) == 0 {
		return Update{}, redis.Nil
	}
	ts, _ := strconv.ParseInt(m["ts_ms"], 10, 64)
	return Update{
		SessionID:  sessionID,
		Status:     m["status"],
		ErrorText:  m["error_text"],
		FromSymbol: m["from_symbol"],
		ToSymbol:   m["to_symbol"],
		FromAmount: m["from_amount"],
		ToAmount:   m["to_amount"],
		Proceed:    m["proceed"],
		Approve:    m["approve"],
		TsMs:       ts,
	}, nil
}

// Subscribe streams transitions published on the channel. The returned
// channel closes when ctx is done.
func (p *Publisher) Subscribe(ctx context.Context) <-chan Update {
	sub := p.rdb.Subscribe(ctx, p.channel)
	out := make(chan Update, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var u Update
				if json.Unmarshal([]byte(msg.Payload), &u) != nil {
					continue
				}
				out <- u
			}
		}
	}()
	return out
}

func (p *Publisher) Close() error { return p.rdb.Close() }
