package connectors

import (
	"testing"
)

// TestFillFeedHandleMessage parses execution payloads into fills on the channel.
func TestFillFeedHandleMessage(t *testing.T) {
	feed := NewFillFeed("wss://example", "k", "s", "BTCUSDT", 4)

	raw := []byte(`{"orders_p":{"fills":[
		{"execID":"e1","orderID":"o1","symbol":"BTCUSDT","side":"Buy","execPriceRp":"59000","execQtyRq":"0.01","execFeeRv":"0.35","transactTimeNs":1700000000000000000},
		{"execID":"e2","orderID":"o2","symbol":"ETHUSDT","side":"Sell","execPriceRp":"3000","execQtyRq":"0.5"}
	]}}`)
	feed.handleMessage(raw)

	select {
	case fill := <-feed.Fills():
		if fill.TradeID != "e1" || fill.Side != "buy" || fill.Price != 59000 || fill.Size != 0.01 {
			t.Fatalf("unexpected fill: %+v", fill)
		}
	default:
		t.Fatalf("expected one fill on the channel")
	}

	select {
	case fill := <-feed.Fills():
		t.Fatalf("other-symbol execution must be filtered, got %+v", fill)
	default:
	}
}

// TestFillFeedIgnoresMalformedMessages drops unparseable payloads silently.
func TestFillFeedIgnoresMalformedMessages(t *testing.T) {
	feed := NewFillFeed("wss://example", "k", "s", "BTCUSDT", 4)

	feed.handleMessage([]byte(`not json`))
	feed.handleMessage([]byte(`{"other":"message"}`))

	select {
	case fill := <-feed.Fills():
		t.Fatalf("expected no fills, got %+v", fill)
	default:
	}
}

// TestFillFeedDropsWhenBufferFull keeps reading when the consumer lags.
func TestFillFeedDropsWhenBufferFull(t *testing.T) {
	feed := NewFillFeed("wss://example", "k", "s", "BTCUSDT", 1)

	msg := []byte(`{"orders_p":{"fills":[
		{"execID":"e1","symbol":"BTCUSDT","side":"Buy","execPriceRp":"1","execQtyRq":"1"},
		{"execID":"e2","symbol":"BTCUSDT","side":"Buy","execPriceRp":"2","execQtyRq":"1"}
	]}}`)
	feed.handleMessage(msg)

	fill := <-feed.Fills()
	if fill.TradeID != "e1" {
		t.Fatalf("expected first fill kept, got %+v", fill)
	}

	select {
	case fill := <-feed.Fills():
		t.Fatalf("second fill should have been dropped, got %+v", fill)
	default:
	}
}

// TestIsDuplicateClientOrderID recognizes the duplicate clOrdID bizError only.
func TestIsDuplicateClientOrderID(t *testing.T) {
	if !IsDuplicateClientOrderID(&APIError{Code: 11081}) {
		t.Fatalf("expected code 11081 to be recognized as duplicate")
	}
	if IsDuplicateClientOrderID(&APIError{Code: 11051}) {
		t.Fatalf("code 11051 is not a duplicate clOrdID error")
	}
	if IsDuplicateClientOrderID(assertError{}) {
		t.Fatalf("plain errors are not duplicates")
	}
}
