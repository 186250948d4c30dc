package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/errors"
	"github.com/tradsys-core/engine/internal/ports"
)

// Client implements ports.MarketDataSource over an Upbit-shaped REST API.
// Every call is wrapped in a circuit breaker per the DOMAIN STACK
// mapping's "MarketDataSource client wrapper" entry, protecting the
// scheduler's tick budget from a degraded upstream instead of letting
// every tick retry against it.
type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	log        *zap.Logger
}

// NewClient builds a Client. baseURL defaults to Upbit's public API.
func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.upbit.com"
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "market-data-source",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		breaker:    cb,
		log:        log,
	}
}

type candleResponse struct {
	Market               string  `json:"market"`
	CandleDateTimeUTC    string  `json:"candle_date_time_utc"`
	CandleDateTimeKST    string  `json:"candle_date_time_kst"`
	OpeningPrice         float64 `json:"opening_price"`
	HighPrice            float64 `json:"high_price"`
	LowPrice             float64 `json:"low_price"`
	TradePrice           float64 `json:"trade_price"`
	CandleAccTradeVolume float64 `json:"candle_acc_trade_volume"`
	CandleAccTradePrice  float64 `json:"candle_acc_trade_price"`
	Unit                 int     `json:"unit"`
}

// Candles fetches the most recent `count` minute candles for market,
// index 0 most recent (the upstream API already returns newest-first).
func (c *Client) Candles(ctx context.Context, market string, granularityMins, count int) ([]candle.Candle, error) {
	path := fmt.Sprintf("/v1/candles/minutes/%d", granularityMins)
	q := url.Values{"market": {market}, "count": {strconv.Itoa(count)}}

	var raw []candleResponse
	if err := c.get(ctx, path, q, &raw); err != nil {
		return nil, err
	}

	out := make([]candle.Candle, 0, len(raw))
	for _, r := range raw {
		utcTime, _ := time.Parse("2006-01-02T15:04:05", r.CandleDateTimeUTC)
		kstTime, _ := time.Parse("2006-01-02T15:04:05", r.CandleDateTimeKST)
		out = append(out, candle.Candle{
			Market:          r.Market,
			TimestampUTC:    utcTime,
			TimestampKST:    kstTime,
			Open:            r.OpeningPrice,
			High:            r.HighPrice,
			Low:             r.LowPrice,
			Close:           r.TradePrice,
			Volume:          r.CandleAccTradeVolume,
			TradeValueKRW:   r.CandleAccTradePrice,
			GranularityMins: granularityMins,
		})
	}
	return out, nil
}

type tickerResponse struct {
	Market           string  `json:"market"`
	TradePrice       float64 `json:"trade_price"`
	SignedChangeRate float64 `json:"signed_change_rate"`
	AccTradePrice24h float64 `json:"acc_trade_price_24h"`
}

func (c *Client) Ticker(ctx context.Context, market string) (candle.Ticker, error) {
	var raw []tickerResponse
	if err := c.get(ctx, "/v1/ticker", url.Values{"markets": {market}}, &raw); err != nil {
		return candle.Ticker{}, err
	}
	if len(raw) == 0 {
		return candle.Ticker{}, errors.New(errors.KindNotFound, "exchange: no ticker returned for market")
	}
	r := raw[0]
	return candle.Ticker{
		Market:           r.Market,
		TradePrice:       r.TradePrice,
		Change24hRate:    r.SignedChangeRate,
		AccTradeValue24h: r.AccTradePrice24h,
	}, nil
}

type marketResponse struct {
	Market        string `json:"market"`
	KoreanName    string `json:"korean_name"`
	EnglishName   string `json:"english_name"`
	MarketWarning string `json:"market_warning"`
}

func (c *Client) Markets(ctx context.Context) ([]ports.MarketInfo, error) {
	var raw []marketResponse
	if err := c.get(ctx, "/v1/market/all", url.Values{"isDetails": {"true"}}, &raw); err != nil {
		return nil, err
	}
	out := make([]ports.MarketInfo, 0, len(raw))
	for _, r := range raw {
		out = append(out, ports.MarketInfo{
			Market:      r.Market,
			KoreanName:  r.KoreanName,
			EnglishName: r.EnglishName,
			Warning:     r.MarketWarning != "" && r.MarketWarning != "NONE",
		})
	}
	return out, nil
}

// get issues an unauthenticated GET through the circuit breaker and
// decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("exchange: %s returned status %d", path, resp.StatusCode)
		}
		return nil, json.NewDecoder(resp.Body).Decode(out)
	})
	if err != nil {
		c.log.Warn("market data request failed", zap.String("path", path), zap.Error(err))
		return errors.Wrap(errors.KindTransient, "exchange: market data request failed", err)
	}
	return nil
}
