// Package feed is a concrete Candle Event Source (C8): a reconnecting
// gorilla/websocket client that decodes upstream OHLC ticks into
// domain.CandleMessage and hands them to a callback — generalizing the
// surrounding bot's Polymarket/Binance WS feed readers to one bar format.
package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/algoforge/ordergroup/internal/domain"
)

const (
	reconnectDelay = 5 * time.Second
	pingInterval   = 30 * time.Second
)

// CandleHandler is called once per decoded candle tick, in the feed's own
// read goroutine. It should be fast and non-blocking (typically
// Manager.CheckProtectionLevels or Manager.HandleOrderRequest by way of a
// strategy layer).
type CandleHandler func(domain.CandleMessage)

// wireCandle is the upstream wire shape: price strings, Go-side conversion
// to decimal happens once per tick.
type wireCandle struct {
	OpenTime int64  `json:"open_time"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Closed   bool   `json:"closed"`
}

// CandleFeed manages one reconnecting WebSocket subscription.
type CandleFeed struct {
	mu      sync.RWMutex
	wsURL   string
	conn    *websocket.Conn
	running bool
	stopCh  chan struct{}

	onCandle CandleHandler
}

// New creates a feed that will dial wsURL and invoke onCandle for every
// decoded tick.
func New(wsURL string, onCandle CandleHandler) *CandleFeed {
	return &CandleFeed{
		wsURL:    wsURL,
		stopCh:   make(chan struct{}),
		onCandle: onCandle,
	}
}

// Start connects and begins processing in the background.
func (f *CandleFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.connectionLoop()
	log.Info().Str("url", f.wsURL).Msg("candle feed started")
}

// Stop closes the connection and halts reconnection.
func (f *CandleFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)
	if f.conn != nil {
		_ = f.conn.Close()
	}
}

func (f *CandleFeed) connectionLoop() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		if err := f.connect(); err != nil {
			log.Error().Err(err).Msg("candle feed: connection failed, retrying")
			time.Sleep(reconnectDelay)
			continue
		}

		f.readLoop()
		time.Sleep(reconnectDelay)
	}
}

func (f *CandleFeed) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	log.Info().Msg("candle feed: connected")
	go f.pingLoop()
	return nil
}

func (f *CandleFeed) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.mu.RLock()
			conn := f.conn
			f.mu.RUnlock()
			if conn != nil {
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

func (f *CandleFeed) readLoop() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("candle feed: read error")
			return
		}
		f.process(message)
	}
}

func (f *CandleFeed) process(data []byte) {
	var wc wireCandle
	if err := json.Unmarshal(data, &wc); err != nil {
		log.Warn().Err(err).Msg("candle feed: malformed tick dropped")
		return
	}

	candle, err := decodeCandle(wc)
	if err != nil {
		log.Warn().Err(err).Msg("candle feed: undecodable tick dropped")
		return
	}

	if f.onCandle != nil {
		f.onCandle(candle)
	}
}

func decodeCandle(wc wireCandle) (domain.CandleMessage, error) {
	open, err := decimal.NewFromString(wc.Open)
	if err != nil {
		return domain.CandleMessage{}, err
	}
	high, err := decimal.NewFromString(wc.High)
	if err != nil {
		return domain.CandleMessage{}, err
	}
	low, err := decimal.NewFromString(wc.Low)
	if err != nil {
		return domain.CandleMessage{}, err
	}
	close, err := decimal.NewFromString(wc.Close)
	if err != nil {
		return domain.CandleMessage{}, err
	}

	state := domain.CandleActive
	if wc.Closed {
		state = domain.CandleFinished
	}

	return domain.CandleMessage{
		OpenTime: wc.OpenTime,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		State:    state,
	}, nil
}
