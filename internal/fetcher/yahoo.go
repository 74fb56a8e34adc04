package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const chartPath = "/v8/finance/chart/"

// YahooOptions parameterise the chart API feed.
type YahooOptions struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerMinute int
	Retries           int
	RetryMin          time.Duration
	RetryMax          time.Duration
	// Aliases maps watchlist tickers to feed symbols, e.g. SPX to ^SPX.
	Aliases map[string]string
}

// Yahoo reads candles from the Yahoo Finance chart endpoint.
type Yahoo struct {
	opts    YahooOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewYahoo constructs the feed.
func NewYahoo(opts YahooOptions, logger zerolog.Logger) *Yahoo {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}

	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(opts.RequestsPerMinute) / 60)
	}
	if opts.RetryMin <= 0 {
		opts.RetryMin = 500 * time.Millisecond
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 5 * time.Second
	}
	aliases := make(map[string]string, len(opts.Aliases))
	for k, v := range opts.Aliases {
		aliases[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	opts.Aliases = aliases

	log := logger.With().Str("component", "yahoo_feed").Logger()
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "yahoo",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return !se.Temporary()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &Yahoo{
		opts:    opts,
		logger:  log,
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		limiter: rate.NewLimiter(limit, 1),
		breaker: breaker,
	}
}

// Symbol returns the feed symbol for a watchlist ticker.
func (y *Yahoo) Symbol(ticker string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if alias, ok := y.opts.Aliases[t]; ok && alias != "" {
		return alias
	}
	return t
}

// Bars fetches closes for one interval and range. Candles without a close
// are skipped.
func (y *Yahoo) Bars(ctx context.Context, ticker, interval, rng string) ([]Bar, error) {
	res, err := y.chart(ctx, y.Symbol(ticker), interval, rng)
	if err != nil {
		return nil, err
	}

	var closes []*float64
	if len(res.Indicators.Quote) > 0 {
		closes = res.Indicators.Quote[0].Close
	}
	bars := make([]Bar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		bars = append(bars, Bar{Time: time.Unix(ts, 0).UTC(), Close: *closes[i]})
	}
	return bars, nil
}

// LastPrice returns the regular market price reported with the daily chart.
func (y *Yahoo) LastPrice(ctx context.Context, ticker string) (float64, error) {
	symbol := y.Symbol(ticker)
	res, err := y.chart(ctx, symbol, "1d", "5d")
	if err != nil {
		return 0, err
	}
	if res.Meta.RegularMarketPrice == nil || *res.Meta.RegularMarketPrice <= 0 {
		return 0, fmt.Errorf("%w: %s: no market price", ErrFeedUnavailable, symbol)
	}
	return *res.Meta.RegularMarketPrice, nil
}

func (y *Yahoo) chart(ctx context.Context, symbol, interval, rng string) (*chartResult, error) {
	b := &backoff.Backoff{Min: y.opts.RetryMin, Max: y.opts.RetryMax, Factor: 2, Jitter: true}
	for attempt := 0; ; attempt++ {
		out, err := y.breaker.Execute(func() (any, error) {
			return y.fetch(ctx, symbol, interval, rng)
		})
		if err == nil {
			return out.(*chartResult), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt >= y.opts.Retries || !retryable(err) {
			return nil, fmt.Errorf("%w: %s %s/%s: %w", ErrFeedUnavailable, symbol, interval, rng, err)
		}

		wait := b.Duration()
		y.logger.Debug().Err(err).Str("symbol", symbol).Int("attempt", attempt+1).Dur("wait", wait).Msg("retrying chart request")
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var malformed *json.SyntaxError
	return !errors.As(err, &malformed)
}

func (y *Yahoo) fetch(ctx context.Context, symbol, interval, rng string) (*chartResult, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("interval", interval)
	q.Set("range", rng)
	endpoint := y.baseURL + chartPath + url.PathEscape(symbol) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(y.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "Mozilla/5.0 (flowscan)")
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var body chartResponse
	if resp.StatusCode != http.StatusOK {
		se := &StatusError{Code: resp.StatusCode}
		if json.Unmarshal(payload, &body) == nil && body.Chart.Error != nil {
			se.Message = body.Chart.Error.Description
		} else if len(payload) > 0 && len(payload) < 256 {
			se.Message = strings.TrimSpace(string(payload))
		}
		return nil, se
	}

	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode chart: %w", err)
	}
	if body.Chart.Error != nil {
		return nil, &StatusError{Code: http.StatusNotFound, Message: body.Chart.Error.Description}
	}
	if len(body.Chart.Result) == 0 {
		return nil, &StatusError{Code: http.StatusNotFound, Message: "empty chart result"}
	}
	return &body.Chart.Result[0], nil
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string   `json:"symbol"`
		RegularMarketPrice *float64 `json:"regularMarketPrice"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

var _ PriceFeed = (*Yahoo)(nil)
