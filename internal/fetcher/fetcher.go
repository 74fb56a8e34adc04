package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrFeedUnavailable wraps every failure to obtain price data.
var ErrFeedUnavailable = errors.New("price feed unavailable")

// Bar is one closed candle.
type Bar struct {
	Time  time.Time
	Close float64
}

// PriceFeed retrieves OHLC history and the latest traded price.
type PriceFeed interface {
	// Bars returns closes for interval (e.g. "5m", "1d") over rng (e.g. "5d",
	// "6mo") in ascending time order.
	Bars(ctx context.Context, ticker, interval, rng string) ([]Bar, error)
	LastPrice(ctx context.Context, ticker string) (float64, error)
}

// StatusError is a non-200 answer from the feed.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("feed api error (%d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("feed api error (%d)", e.Code)
}

// Temporary reports whether a retry may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == 429 || e.Code >= 500
}
