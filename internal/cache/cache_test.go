package cache

import (
	"testing"
)

func TestForecastKey(t *testing.T) {
	key := ForecastKey("AAPL", "1y", 7, "lstm", "v1")
	want := "forecast:AAPL:1y:7:lstm:v1"
	if key != want {
		t.Fatalf("got %q, want %q", key, want)
	}
}

func TestStrategyKey(t *testing.T) {
	key := StrategyKey("ema_crossover", "MSFT", "6mo", "v1")
	want := "strategy:ema_crossover:MSFT:6mo:v1"
	if key != want {
		t.Fatalf("got %q, want %q", key, want)
	}
}

func TestKeysDistinguishEveryDimension(t *testing.T) {
	base := ForecastKey("AAPL", "1y", 7, "lstm", "v1")
	variants := []string{
		ForecastKey("MSFT", "1y", 7, "lstm", "v1"),
		ForecastKey("AAPL", "2y", 7, "lstm", "v1"),
		ForecastKey("AAPL", "1y", 14, "lstm", "v1"),
		ForecastKey("AAPL", "1y", 7, "arima", "v1"),
		ForecastKey("AAPL", "1y", 7, "lstm", "v2"),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collides with base key %q", i, base)
		}
	}
}
