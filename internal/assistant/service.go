package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stock-prediction-api/config"
	"stock-prediction-api/internal/database"
	"stock-prediction-api/internal/marketdata"
)

// Disclaimer is appended verbatim to every advice-shaped answer
const Disclaimer = "This is not financial advice. All information is provided for educational purposes only; always do your own research and consider consulting a licensed financial advisor before making investment decisions."

const systemPrompt = "You are a stock-market assistant for a prediction service. " +
	"Answer using the provided context: knowledge-base excerpts, an optional live quote " +
	"and optional recent headlines. Be concise and factual. Never recommend buying or " +
	"selling a specific security."

const (
	maxKnowledgeHits   = 3
	maxHeadlines       = 3
	conversationWindow = 10
)

// ChatRequest is the body of POST /api/assistant/chat
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

// ChatResponse is the assistant's answer plus the context it drew on
type ChatResponse struct {
	Answer    string            `json:"answer"`
	Topics    []string          `json:"topics,omitempty"`
	Quote     *marketdata.Quote `json:"quote,omitempty"`
	Headlines []Headline        `json:"headlines,omitempty"`
}

// Service orchestrates the assistant surface: retrieval, the quote and news
// tools, the chat provider call and conversation persistence. Every
// collaborator degrades independently; the service always produces an answer.
type Service struct {
	chat   *ChatClient
	news   *NewsClient
	source marketdata.PriceSource
	repo   *database.Repository
	logger zerolog.Logger
}

// NewService wires the assistant from configuration. repo may be nil, in
// which case conversations are not persisted.
func NewService(cfg config.AssistantConfig, source marketdata.PriceSource, repo *database.Repository, logger zerolog.Logger) *Service {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	return &Service{
		chat:   NewChatClient(cfg.ChatBaseURL, cfg.ChatAPIKey, cfg.ChatModel, cfg.MaxTokens, timeout),
		news:   NewNewsClient(cfg.NewsAPIKey, timeout),
		source: source,
		repo:   repo,
		logger: logger.With().Str("component", "assistant").Logger(),
	}
}

// Chat answers one user message. The user ID scopes conversation history;
// uuid.Nil skips persistence and history.
func (s *Service) Chat(ctx context.Context, userID uuid.UUID, message string) (*ChatResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("empty message")
	}

	entries := SearchKnowledge(message, maxKnowledgeHits)
	topics := make([]string, len(entries))
	for i, e := range entries {
		topics[i] = e.Topic
	}

	var quote *marketdata.Quote
	if symbol := detectSymbol(message); symbol != "" {
		q, err := s.source.GetQuote(ctx, symbol)
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("quote lookup failed, answering without it")
		} else {
			quote = &q
		}
	}

	var headlines []Headline
	if s.news.Enabled() && quote != nil {
		h, err := s.news.Headlines(ctx, quote.Symbol, maxHeadlines)
		if err != nil {
			s.logger.Warn().Err(err).Msg("news enrichment failed, skipping")
		} else {
			headlines = h
		}
	}

	answer, err := s.compose(ctx, userID, message, entries, quote, headlines)
	if err != nil {
		return nil, err
	}

	if isAdviceShaped(message) {
		answer = answer + "\n\n" + Disclaimer
	}

	s.persist(ctx, userID, message, answer)

	return &ChatResponse{
		Answer:    answer,
		Topics:    topics,
		Quote:     quote,
		Headlines: headlines,
	}, nil
}

// compose produces the answer text, via the chat provider when a key is
// configured and from retrieval alone otherwise.
func (s *Service) compose(ctx context.Context, userID uuid.UUID, message string, entries []KnowledgeEntry, quote *marketdata.Quote, headlines []Headline) (string, error) {
	if !s.chat.Enabled() {
		return retrievalAnswer(entries, quote, headlines), nil
	}

	messages := s.history(ctx, userID)
	prompt := buildPrompt(message, entries, quote, headlines)
	messages = append(messages, ChatMessage{Role: "user", Content: prompt})

	answer, err := s.chat.Complete(ctx, systemPrompt, messages)
	if err != nil {
		s.logger.Warn().Err(err).Msg("chat provider failed, falling back to retrieval-only answer")
		return retrievalAnswer(entries, quote, headlines), nil
	}
	return answer, nil
}

// history loads the recent conversation for context. Failures degrade to an
// empty history.
func (s *Service) history(ctx context.Context, userID uuid.UUID) []ChatMessage {
	if s.repo == nil || userID == uuid.Nil {
		return nil
	}
	stored, err := s.repo.RecentMessages(ctx, userID, conversationWindow)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load conversation history")
		return nil
	}
	messages := make([]ChatMessage, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return messages
}

func (s *Service) persist(ctx context.Context, userID uuid.UUID, message, answer string) {
	if s.repo == nil || userID == uuid.Nil {
		return
	}
	if _, err := s.repo.AppendMessage(ctx, userID, database.RoleUser, message); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist user message")
		return
	}
	if _, err := s.repo.AppendMessage(ctx, userID, database.RoleAssistant, answer); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist assistant message")
	}
}

// buildPrompt folds the retrieved context into a single user prompt
func buildPrompt(message string, entries []KnowledgeEntry, quote *marketdata.Quote, headlines []Headline) string {
	var b strings.Builder
	if len(entries) > 0 {
		b.WriteString("Context:\n")
		for _, e := range entries {
			fmt.Fprintf(&b, "- [%s] %s\n", e.Topic, e.Content)
		}
	}
	if quote != nil {
		fmt.Fprintf(&b, "Live quote: %s trading at %.2f (%+.2f, %+.2f%%) as of %s.\n",
			quote.Symbol, quote.Price, quote.Change, quote.ChangePercent, quote.Time.Format("2006-01-02 15:04 MST"))
	}
	if len(headlines) > 0 {
		b.WriteString("Recent headlines:\n")
		for _, h := range headlines {
			fmt.Fprintf(&b, "- %s (%s, %s)\n", h.Title, h.Source, h.PublishedAt.Format("2006-01-02"))
		}
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString("Question: ")
	b.WriteString(message)
	return b.String()
}

// retrievalAnswer produces a best-effort answer without a chat provider
func retrievalAnswer(entries []KnowledgeEntry, quote *marketdata.Quote, headlines []Headline) string {
	var b strings.Builder
	if quote != nil {
		fmt.Fprintf(&b, "%s is trading at %.2f (%+.2f%%).\n\n", quote.Symbol, quote.Price, quote.ChangePercent)
	}
	if len(entries) > 0 {
		for i, e := range entries {
			if i > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(e.Content)
		}
	} else if quote == nil {
		b.WriteString("I could not match your question against my knowledge base. " +
			"Try asking about indicators (RSI, MACD, Bollinger Bands), forecasting models " +
			"(ARIMA, Prophet, XGBoost, LSTM), trading strategies, or a stock quote.")
	}
	if len(headlines) > 0 {
		b.WriteString("\n\nRecent headlines:")
		for _, h := range headlines {
			fmt.Fprintf(&b, "\n- %s (%s)", h.Title, h.Source)
		}
	}
	return b.String()
}

// commonWords are uppercase tokens that are never treated as ticker symbols
var commonWords = map[string]bool{
	"A": true, "I": true, "OK": true, "US": true, "IT": true, "IS": true,
	"ETF": true, "IPO": true, "CEO": true, "USD": true, "AI": true,
	"RSI": true, "MACD": true, "SMA": true, "EMA": true, "ADX": true,
	"VWAP": true, "ARIMA": true, "LSTM": true, "THE": true, "AND": true,
	"BUY": true, "SELL": true, "HOLD": true, "PE": true, "EPS": true,
}

// detectSymbol extracts the first plausible ticker from the message: a token
// of 1-5 uppercase letters, optionally prefixed with $, that is not a common
// English word or indicator name.
func detectSymbol(message string) string {
	for _, raw := range strings.Fields(message) {
		token := strings.Trim(raw, ".,!?;:()\"'")
		dollar := strings.HasPrefix(token, "$")
		token = strings.TrimPrefix(token, "$")
		if len(token) < 1 || len(token) > 5 {
			continue
		}
		upper := true
		for _, r := range token {
			if r < 'A' || r > 'Z' {
				upper = false
				break
			}
		}
		if !upper {
			continue
		}
		if dollar {
			return token
		}
		if !commonWords[token] && len(token) >= 2 {
			return token
		}
	}
	return ""
}

// adviceMarkers flag queries that are really requests for a recommendation
var adviceMarkers = []string{
	"should i", "buy", "sell", "invest", "recommend", "advice",
	"worth it", "good idea", "portfolio", "put my money",
}

// isAdviceShaped reports whether the query asks for a recommendation rather
// than information.
func isAdviceShaped(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range adviceMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
