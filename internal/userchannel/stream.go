package userchannel

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/betbot/aquoter/internal/domain"
	"github.com/betbot/aquoter/internal/exchange/wire"
	"github.com/betbot/aquoter/internal/obslog"
	"github.com/gorilla/websocket"
)

const userStreamPingInterval = 10 * time.Second

type wireOrderEvent struct {
	EventType     string `json:"event_type"`
	OrderID       string `json:"id"`
	AssetID       string `json:"asset_id"`
	Side          string `json:"side"`
	Price         string `json:"price"`
	OriginalSize  string `json:"original_size"`
	SizeMatched   string `json:"size_matched"`
	Status        string `json:"status"`
}

type wireFillEvent struct {
	EventType string `json:"event_type"`
	TradeID   string `json:"trade_id"`
	OrderID   string `json:"maker_order_id"`
	AssetID   string `json:"asset_id"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Fee       string `json:"fee_rate_bps"`
	Timestamp string `json:"match_time"`
}

// Stream drives the authenticated user-channel websocket connection,
// structurally identical to orderbook.Stream's connect/read loop (both
// descend from pkg/sdk/websocket.MarketClient) but decoding order/trade
// events into UserEvent and feeding Manager instead of a public book.
type Stream struct {
	url   string
	creds wire.ApiKeyCreds
	mgr   *Manager

	connMu sync.Mutex
	conn   *websocket.Conn

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewStream(url string, creds wire.ApiKeyCreds, mgr *Manager) *Stream {
	return &Stream{
		url:    url,
		creds:  creds,
		mgr:    mgr,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (s *Stream) Run(ctx context.Context) {
	defer close(s.doneCh)
	log := obslog.Component("userchannel.stream")

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
			delay := time.Duration(attempt) * 2 * time.Second
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}
			log.Warnf("dial failed: %v, retrying in %s", err, delay)
			s.mgr.OnDisconnect()
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

		go s.pingLoop(ctx)
		s.readLoop(ctx, log)

		s.mgr.OnDisconnect()
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
		_ = s.conn.Close()
	}
	s.connMu.Unlock()
	<-s.doneCh
}

func (s *Stream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	headers := make(http.Header)
	headers.Set("User-Agent", "aquoter/1.0")
	conn, _, err := dialer.DialContext(ctx, s.url, headers)
	if err != nil {
		return err
	}
	sub := map[string]any{
		"type":       "user",
		"markets":    []string{},
		"auth": map[string]string{
			"apiKey":     s.creds.Key,
			"secret":     s.creds.Secret,
			"passphrase": s.creds.Passphrase,
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return err
	}
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(userStreamPingInterval)
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

func (s *Stream) readLoop(ctx context.Context, log logWarner) {
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
		if len(raw) == 0 || (raw[0] != '{' && raw[0] != '[') {
			continue
		}
		s.dispatch(raw, log)
	}
}

type logWarner interface {
	Warnf(format string, args ...any)
}

func (s *Stream) dispatch(raw []byte, log logWarner) {
	var probe struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		log.Warnf("unparseable user message: %v", err)
		return
	}

	switch probe.EventType {
	case "order":
		var m wireOrderEvent
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		s.mgr.HandleOrderUpdate(decodeOrder(m))
	case "trade":
		var m wireFillEvent
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		s.mgr.HandleFill(decodeFill(m))
	}
}

func decodeOrder(m wireOrderEvent) *domain.Order {
	side := domain.SideBuy
	if m.Side == "SELL" || m.Side == "sell" {
		side = domain.SideSell
	}
	price, _ := domain.PriceFromString(m.Price)
	orig, _ := domain.PriceFromString(m.OriginalSize)
	matched, _ := domain.PriceFromString(m.SizeMatched)
	remaining := domain.NewSize(orig.Decimal().Sub(matched.Decimal()))

	return &domain.Order{
		OrderID:       m.OrderID,
		AssetID:       m.AssetID,
		Side:          side,
		Price:         price,
		OriginalSize:  domain.NewSize(orig.Decimal()),
		RemainingSize: remaining,
		Status:        decodeStatus(m.Status),
		UpdatedAt:     time.Now(),
	}
}

func decodeStatus(s string) domain.OrderStatus {
	switch s {
	case "LIVE":
		return domain.OrderStatusLive
	case "MATCHED", "FILLED":
		return domain.OrderStatusFilled
	case "CANCELLED", "CANCELED":
		return domain.OrderStatusCancelled
	case "EXPIRED":
		return domain.OrderStatusExpired
	default:
		return domain.OrderStatusPartial
	}
}

func decodeFill(m wireFillEvent) domain.Fill {
	side := domain.SideBuy
	if m.Side == "SELL" || m.Side == "sell" {
		side = domain.SideSell
	}
	price, _ := domain.PriceFromString(m.Price)
	size, _ := domain.PriceFromString(m.Size)
	fee, _ := domain.PriceFromString(m.Fee)
	return domain.Fill{
		TradeID:   m.TradeID,
		OrderID:   m.OrderID,
		AssetID:   m.AssetID,
		Side:      side,
		Price:     price,
		Size:      domain.NewSize(size.Decimal()),
		Fee:       fee,
		Timestamp: time.Now(),
	}
}
