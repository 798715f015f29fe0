package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/goquant/tradesim/internal/book"
)

// ErrMaxReconnects is returned when the websocket client exhausts its
// reconnect budget.
var ErrMaxReconnects = errors.New("websocket: max reconnect attempts reached")

// wsBookMessage is the level-2 order book payload delivered by the feed.
// Price/size pairs arrive as strings.
type wsBookMessage struct {
	Symbol    string     `json:"symbol"`
	Asks      [][]string `json:"asks"`
	Bids      [][]string `json:"bids"`
	Timestamp string     `json:"timestamp"`
}

// WSClient streams level-2 order book updates from a websocket endpoint and
// normalizes them into ticks. On read or dial errors it reconnects with a
// fixed delay up to a bounded number of attempts.
type WSClient struct {
	url            string
	symbol         string
	logger         *zap.Logger
	ticks          chan book.Tick
	reconnectDelay time.Duration
	maxReconnects  int

	msgCount  int64
	dropCount int64
}

// NewWSClient creates a websocket tick source for one symbol.
func NewWSClient(url, symbol string, reconnectDelay time.Duration, maxReconnects int, logger *zap.Logger) *WSClient {
	return &WSClient{
		url:            url,
		symbol:         symbol,
		logger:         logger.With(zap.String("symbol", symbol)),
		ticks:          make(chan book.Tick, 1024),
		reconnectDelay: reconnectDelay,
		maxReconnects:  maxReconnects,
	}
}

// Ticks returns the normalized tick channel.
func (c *WSClient) Ticks() <-chan book.Tick {
	return c.ticks
}

// Run connects and reads until ctx is cancelled or the reconnect budget is
// exhausted. The tick channel is closed on return.
func (c *WSClient) Run(ctx context.Context) error {
	defer close(c.ticks)

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.readLoop(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return ctx.Err()
		}

		attempts++
		if attempts > c.maxReconnects {
			c.logger.Error("giving up on websocket feed",
				zap.Int("attempts", attempts-1),
				zap.Error(err),
			)
			return ErrMaxReconnects
		}

		c.logger.Warn("websocket disconnected, reconnecting",
			zap.Int("attempt", attempts),
			zap.Duration("delay", c.reconnectDelay),
			zap.Error(err),
		)
		select {
		case <-time.After(c.reconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *WSClient) readLoop(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer conn.Close()

	c.logger.Info("websocket connected", zap.String("url", c.url))

	// Unblock ReadMessage when the context is cancelled.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		tick, err := c.parse(data)
		if err != nil {
			c.logger.Warn("failed to parse feed message", zap.Error(err))
			continue
		}

		c.msgCount++
		select {
		case c.ticks <- tick:
		default:
			// Consumer is behind; dropping the oldest keeps the stream
			// fresh and per-symbol ordering intact.
			select {
			case <-c.ticks:
				c.dropCount++
			default:
			}
			c.ticks <- tick
		}
	}
}

// parse normalizes one level-2 message into a tick. Best bid/ask come from
// the first entries of each side; last price falls back to the mid.
func (c *WSClient) parse(data []byte) (book.Tick, error) {
	var m wsBookMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return book.Tick{}, fmt.Errorf("unmarshal: %w", err)
	}
	if len(m.Asks) == 0 && len(m.Bids) == 0 {
		return book.Tick{}, errors.New("message has no depth")
	}

	tick := book.Tick{
		Symbol:       c.symbol,
		TsUnixMillis: time.Now().UnixMilli(),
	}
	if m.Symbol != "" {
		tick.Symbol = m.Symbol
	}
	if m.Timestamp != "" {
		if ts, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil {
			tick.TsUnixMillis = ts
		}
	}

	var err error
	if tick.Asks, err = parseLevels(m.Asks); err != nil {
		return book.Tick{}, fmt.Errorf("asks: %w", err)
	}
	if tick.Bids, err = parseLevels(m.Bids); err != nil {
		return book.Tick{}, fmt.Errorf("bids: %w", err)
	}

	for _, lvl := range tick.Bids {
		if lvl.Size > 0 && lvl.Price > tick.Bid {
			tick.Bid = lvl.Price
		}
		tick.Volume += lvl.Size
	}
	bestAsk := 0.0
	for _, lvl := range tick.Asks {
		if lvl.Size > 0 && (bestAsk == 0 || lvl.Price < bestAsk) {
			bestAsk = lvl.Price
		}
		tick.Volume += lvl.Size
	}
	tick.Ask = bestAsk

	if tick.Bid > 0 && tick.Ask > 0 {
		tick.Last = (tick.Bid + tick.Ask) / 2
	}

	return tick, nil
}

func parseLevels(raw [][]string) ([]book.Level, error) {
	levels := make([]book.Level, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("level needs [price, size], got %d elements", len(pair))
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return nil, fmt.Errorf("bad price %q: %w", pair[0], err)
		}
		size, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bad size %q: %w", pair[1], err)
		}
		levels = append(levels, book.Level{Price: price, Size: size})
	}
	return levels, nil
}
