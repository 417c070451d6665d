package orderbook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/betbot/aquoter/internal/domain"
	"github.com/betbot/aquoter/internal/obslog"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	marketStreamPingInterval = 10 * time.Second
	marketStreamMaxBatch     = 100
	marketStreamMaxDialRetry = 3
)

// wireMessage mirrors Polymarket's market-channel wire shape; grounded on
// the teacher's websocket.MarketMessage.
type wireMessage struct {
	EventType string          `json:"event_type"`
	AssetID   string          `json:"asset_id"`
	Market    string          `json:"market"`
	Timestamp json.Number     `json:"timestamp"`
	Price     string          `json:"price"`
	Size      string          `json:"size"`
	Side      string          `json:"side"`
	Sequence  int64           `json:"sequence"`
	TickSize  string          `json:"tick_size"`
	Bids      json.RawMessage `json:"bids"`
	Asks      json.RawMessage `json:"asks"`
	Changes   json.RawMessage `json:"changes"`
}

type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Stream drives a single reconnecting websocket connection to the public
// market channel and feeds decoded events into a Manager. Structurally
// grounded on pkg/sdk/websocket.MarketClient's connect/readLoop/pingLoop
// split, generalized off the Polymarket-only URL and simplified to a
// single always-JSON message model.
type Stream struct {
	url    string
	assets []string
	mgr    *Manager

	connMu sync.Mutex
	conn   *websocket.Conn

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewStream(url string, assets []string, mgr *Manager) *Stream {
	return &Stream{
		url:    url,
		assets: assets,
		mgr:    mgr,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Run connects and blocks until ctx is cancelled or Stop is called,
// reconnecting with exponential backoff on any read/dial failure. On every
// reconnect it requires a fresh book snapshot before an asset's top-of-book
// is served again, per the "require a fresh book snapshot before serving
// stale assets" failure semantics.
func (s *Stream) Run(ctx context.Context) {
	defer close(s.doneCh)
	log := obslog.Component("orderbook.stream")

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		if err := s.connect(ctx); err != nil {
			attempt++
			delay := backoff(attempt)
			log.WithField("attempt", attempt).Warnf("dial failed: %v, retrying in %s", err, delay)
			s.mgr.MarkAllStale()
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0

		if err := s.subscribe(); err != nil {
			log.Warnf("subscribe failed: %v", err)
		}

		go s.pingLoop(ctx)
		s.readLoop(ctx, log)

		s.mgr.MarkAllStale()
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}
	}
}

func (s *Stream) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = s.conn.Close()
	}
	s.connMu.Unlock()
	<-s.doneCh
}

func (s *Stream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	headers := make(http.Header)
	headers.Set("User-Agent", "aquoter/1.0")

	var conn *websocket.Conn
	var err error
	for i := 0; i < marketStreamMaxDialRetry; i++ {
		conn, _, err = dialer.DialContext(ctx, s.url, headers)
		if err == nil {
			break
		}
	}
	if err != nil {
		return err
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

func (s *Stream) subscribe() error {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	for i := 0; i < len(s.assets); i += marketStreamMaxBatch {
		end := i + marketStreamMaxBatch
		if end > len(s.assets) {
			end = len(s.assets)
		}
		msg := map[string]any{"type": "market", "assets_ids": s.assets[i:end]}
		s.connMu.Lock()
		err := conn.WriteJSON(msg)
		s.connMu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(marketStreamPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.connMu.Lock()
			conn := s.conn
			var err error
			if conn != nil {
				err = conn.WriteMessage(websocket.TextMessage, []byte("PING"))
			}
			s.connMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *Stream) readLoop(ctx context.Context, log *logrus.Entry) {
	for {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.connMu.Lock()
			if s.conn != nil {
				_ = s.conn.Close()
				s.conn = nil
			}
			s.connMu.Unlock()
			return
		}

		if len(raw) > 0 && raw[0] != '{' && raw[0] != '[' {
			continue // PONG or other text frame
		}

		var one wireMessage
		if err := json.Unmarshal(raw, &one); err == nil && one.EventType != "" {
			s.dispatch(one)
			continue
		}
		var many []wireMessage
		if err := json.Unmarshal(raw, &many); err == nil {
			for _, m := range many {
				s.dispatch(m)
			}
			continue
		}
		log.Warnf("unparseable market message, len=%d", len(raw))
	}
}

func (s *Stream) dispatch(msg wireMessage) {
	ts := parseWireTimestamp(msg.Timestamp)
	ev := domain.MarketEvent{AssetID: msg.AssetID, Sequence: msg.Sequence, Timestamp: ts}

	switch msg.EventType {
	case "book":
		bids := decodeLevels(msg.Bids)
		asks := decodeLevels(msg.Asks)
		tick := decodeTick(msg.TickSize)
		ev.Kind = domain.EventBookSnapshot
		ev.Book = &domain.BookSnapshot{Bids: bids, Asks: asks, Tick: tick}
	case "price_change":
		side := domain.SideBuy
		if msg.Side == "sell" || msg.Side == "SELL" {
			side = domain.SideSell
		}
		ev.Kind = domain.EventPriceChange
		ev.PriceChange = &domain.PriceChangeDelta{
			Side:  side,
			Price: mustPrice(msg.Price),
			Size:  mustSize(msg.Size),
		}
	case "best_bid_ask":
		ev.Kind = domain.EventBestBidAsk
		ev.BestBidAsk = &domain.BestBidAsk{Tick: decodeTick(msg.TickSize)}
	case "last_trade_price":
		ev.Kind = domain.EventLastTradePrice
		ev.LastTradePrice = &domain.LastTradePrice{Price: mustPrice(msg.Price), Size: mustSize(msg.Size)}
	case "tick_size_change":
		ev.Kind = domain.EventTickSizeChange
		ev.TickSizeChange = &domain.TickSizeChange{NewTick: decodeTick(msg.TickSize)}
	default:
		return
	}

	s.mgr.Apply(ev)
}

func decodeLevels(raw json.RawMessage) []domain.PriceLevel {
	if len(raw) == 0 {
		return nil
	}
	var wl []wireLevel
	if err := json.Unmarshal(raw, &wl); err != nil {
		return nil
	}
	out := make([]domain.PriceLevel, 0, len(wl))
	for _, l := range wl {
		out = append(out, domain.PriceLevel{Price: mustPrice(l.Price), Size: mustSize(l.Size)})
	}
	return out
}

func decodeTick(s string) domain.Tick {
	if s == "" {
		return domain.TickFromFloat(0.01)
	}
	p, err := domain.PriceFromString(s)
	if err != nil {
		return domain.TickFromFloat(0.01)
	}
	return domain.NewTick(p.Decimal())
}

func mustPrice(s string) domain.Price {
	if s == "" {
		return domain.Price{}
	}
	p, err := domain.PriceFromString(s)
	if err != nil {
		return domain.Price{}
	}
	return p
}

func mustSize(s string) domain.Size {
	if s == "" {
		return domain.ZeroSize
	}
	p, err := domain.PriceFromString(s)
	if err != nil {
		return domain.ZeroSize
	}
	return domain.NewSize(p.Decimal())
}

func parseWireTimestamp(n json.Number) time.Time {
	if n == "" {
		return time.Time{}
	}
	v, err := strconv.ParseInt(string(n), 10, 64)
	if err != nil {
		return time.Time{}
	}
	if v > 1_000_000_000_000 {
		return time.UnixMilli(v)
	}
	return time.Unix(v, 0)
}

func backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * 2 * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
