package flow

import "strings"

// ClassifySentiment reads an order insight such as "Bullish call sweep".
// Buying calls or selling puts is bullish; buying puts or selling calls is
// bearish. Anything else with text is neutral.
func ClassifySentiment(insight string, side Side) Sentiment {
	text := strings.ToLower(strings.TrimSpace(insight))
	if text == "" {
		return Unknown
	}

	isCall := strings.Contains(text, "call")
	isPut := strings.Contains(text, "put")
	bull := strings.Contains(text, "bullish")
	bear := strings.Contains(text, "bearish")

	switch side {
	case SideBuy:
		if isCall && bull {
			return Bullish
		}
		if isPut && bear {
			return Bearish
		}
	case SideSell:
		if isCall && bear {
			return Bearish
		}
		if isPut && bull {
			return Bullish
		}
	}
	return Neutral
}
