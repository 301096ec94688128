package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const newsBaseURL = "https://newsapi.org/v2/everything"

// NewsClient fetches recent headlines for a symbol. A missing API key makes
// Enabled report false and the assistant skips enrichment entirely.
type NewsClient struct {
	apiKey     string
	httpClient *http.Client
}

// NewNewsClient creates a news client
func NewNewsClient(apiKey string, timeout time.Duration) *NewsClient {
	return &NewsClient{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Enabled reports whether an API key is configured
func (n *NewsClient) Enabled() bool {
	return n.apiKey != ""
}

// Headline is one news item attached to an assistant answer
type Headline struct {
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	URL         string    `json:"url"`
}

type newsResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string    `json:"title"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

// Headlines returns up to limit recent headlines mentioning the query term
func (n *NewsClient) Headlines(ctx context.Context, query string, limit int) ([]Headline, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("sortBy", "publishedAt")
	params.Set("language", "en")
	params.Set("pageSize", fmt.Sprintf("%d", limit))

	req, err := http.NewRequestWithContext(ctx, "GET", newsBaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", n.apiKey)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var newsResp newsResponse
	if err := json.Unmarshal(body, &newsResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if newsResp.Status != "ok" {
		return nil, fmt.Errorf("news API error: %s - %s", newsResp.Code, newsResp.Message)
	}

	headlines := make([]Headline, 0, len(newsResp.Articles))
	for _, a := range newsResp.Articles {
		headlines = append(headlines, Headline{
			Title:       a.Title,
			Source:      a.Source.Name,
			PublishedAt: a.PublishedAt,
			URL:         a.URL,
		})
	}
	return headlines, nil
}
