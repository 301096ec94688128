package assistant

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stock-prediction-api/config"
	"stock-prediction-api/internal/marketdata"
)

func TestSearchKnowledgeRanksByOverlap(t *testing.T) {
	hits := SearchKnowledge("what does the RSI indicator mean, overbought or oversold?", 3)
	if len(hits) == 0 {
		t.Fatal("expected at least one hit")
	}
	if hits[0].Topic != "RSI" {
		t.Errorf("expected RSI to rank first, got %q", hits[0].Topic)
	}
}

func TestSearchKnowledgeNoMatch(t *testing.T) {
	if hits := SearchKnowledge("recette de ratatouille", 3); len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
	if hits := SearchKnowledge("", 3); len(hits) != 0 {
		t.Errorf("empty query must return nothing, got %d", len(hits))
	}
}

func TestSearchKnowledgeHonoursLimit(t *testing.T) {
	hits := SearchKnowledge("trend momentum rsi macd volume forecast strategy risk", 2)
	if len(hits) > 2 {
		t.Errorf("limit not honoured: %d hits", len(hits))
	}
}

func TestDetectSymbol(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"what do you think about AAPL today?", "AAPL"},
		{"quote for $TSLA please", "TSLA"},
		{"is the RSI above 70?", ""},
		{"should I buy anything?", ""},
		{"compare MSFT and GOOGL", "MSFT"},
		{"tell me about NVDA.", "NVDA"},
		{"what is an ETF?", ""},
	}
	for _, tt := range tests {
		if got := detectSymbol(tt.message); got != tt.want {
			t.Errorf("detectSymbol(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func TestIsAdviceShaped(t *testing.T) {
	advice := []string{
		"Should I buy AAPL?",
		"is TSLA worth it right now",
		"what would you recommend for my portfolio",
		"when to sell NVDA",
	}
	for _, q := range advice {
		if !isAdviceShaped(q) {
			t.Errorf("%q should be advice-shaped", q)
		}
	}

	informational := []string{
		"what is the MACD indicator?",
		"how does walk-forward evaluation work",
	}
	for _, q := range informational {
		if isAdviceShaped(q) {
			t.Errorf("%q should not be advice-shaped", q)
		}
	}
}

func newTestService() *Service {
	cfg := config.AssistantConfig{
		Enabled:        true,
		ChatModel:      "gpt-4o-mini",
		MaxTokens:      256,
		RequestTimeout: 5,
	}
	return NewService(cfg, marketdata.NewMockSource(), nil, zerolog.Nop())
}

func TestChatRetrievalOnlyWithoutAPIKey(t *testing.T) {
	svc := newTestService()

	resp, err := svc.Chat(context.Background(), uuid.Nil, "how do Bollinger Bands work?")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Answer == "" {
		t.Fatal("expected a retrieval-only answer")
	}
	if !strings.Contains(resp.Answer, "Bollinger") {
		t.Errorf("answer does not reference the matched topic: %q", resp.Answer)
	}
	if strings.Contains(resp.Answer, Disclaimer) {
		t.Error("informational answer must not carry the disclaimer")
	}
}

func TestChatAppendsDisclaimerVerbatim(t *testing.T) {
	svc := newTestService()

	resp, err := svc.Chat(context.Background(), uuid.Nil, "should I buy AAPL?")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if !strings.HasSuffix(resp.Answer, Disclaimer) {
		t.Error("advice-shaped answer must end with the verbatim disclaimer")
	}
}

func TestChatAttachesQuoteForSymbol(t *testing.T) {
	svc := newTestService()

	resp, err := svc.Chat(context.Background(), uuid.Nil, "what do you think about AAPL momentum?")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Quote == nil {
		t.Fatal("expected a quote for the detected symbol")
	}
	if resp.Quote.Symbol != "AAPL" {
		t.Errorf("wrong symbol: %q", resp.Quote.Symbol)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Chat(context.Background(), uuid.Nil, "   "); err == nil {
		t.Fatal("expected an error for an empty message")
	}
}
