package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"metaapi-trading-bot/config"
)

// Sentiment values
const (
	SentimentBullish = "bullish"
	SentimentBearish = "bearish"
	SentimentNeutral = "neutral"
)

// DefaultNewsURL is the NewsAPI endpoint base
const DefaultNewsURL = "https://newsapi.org"

// News is the sentiment summary for one commodity
type News struct {
	Sentiment string  `json:"sentiment"`
	Score     float64 `json:"score"`
	Articles  int     `json:"articles"`
}

// NeutralNews is used when news is disabled or unavailable
func NeutralNews() News {
	return News{Sentiment: SentimentNeutral}
}

var newsQueries = map[string]string{
	"GOLD":        "gold prices OR gold market",
	"SILVER":      "silver prices OR silver market",
	"WTI_CRUDE":   "oil prices OR crude oil OR WTI",
	"BRENT_CRUDE": "brent oil OR oil prices",
	"PLATINUM":    "platinum prices",
	"PALLADIUM":   "palladium prices",
	"WHEAT":       "wheat prices OR grain market",
	"CORN":        "corn prices OR grain market",
	"SOYBEANS":    "soybean prices",
	"COFFEE":      "coffee prices",
}

var (
	positiveWords = []string{"surge", "rally", "rise", "gain", "up", "bullish", "high", "jump", "climb", "strong"}
	negativeWords = []string{"fall", "drop", "decline", "loss", "down", "bearish", "low", "plunge", "weak", "crash"}
)

// Article is the subset of a NewsAPI article used for scoring
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PublishedAt string `json:"publishedAt"`
}

type newsResponse struct {
	Status   string    `json:"status"`
	Articles []Article `json:"articles"`
}

// NewsClient fetches headlines from NewsAPI and scores them
type NewsClient struct {
	client  *resty.Client
	enabled bool
	logger  zerolog.Logger
}

// NewNewsClient creates a news client. Without an API key every lookup is neutral.
func NewNewsClient(cfg config.NewsConfig, logger zerolog.Logger) *NewsClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultNewsURL
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(10 * time.Second)
	client.SetHeader("X-Api-Key", cfg.APIKey)

	return &NewsClient{
		client:  client,
		enabled: cfg.Enabled && cfg.APIKey != "",
		logger:  logger.With().Str("component", "News").Logger(),
	}
}

// Sentiment returns the news sentiment for a commodity. Failures are logged
// and reported as neutral.
func (n *NewsClient) Sentiment(ctx context.Context, commodity string) News {
	if n == nil || !n.enabled {
		return NeutralNews()
	}

	articles, err := n.fetch(ctx, commodity)
	if err != nil {
		n.logger.Warn().Err(err).Str("commodity", commodity).Msg("News fetch failed")
		return NeutralNews()
	}

	news := ScoreArticles(articles)
	n.logger.Debug().
		Str("commodity", commodity).
		Int("articles", news.Articles).
		Str("sentiment", news.Sentiment).
		Float64("score", news.Score).
		Msg("News sentiment")
	return news
}

func (n *NewsClient) fetch(ctx context.Context, commodity string) ([]Article, error) {
	query, ok := newsQueries[commodity]
	if !ok {
		query = commodity
	}

	var body newsResponse
	resp, err := n.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":        query,
			"language": "en",
			"sortBy":   "publishedAt",
			"pageSize": "20",
		}).
		SetResult(&body).
		Get("/v2/everything")
	if err != nil {
		return nil, fmt.Errorf("newsapi request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("newsapi returned status %d", resp.StatusCode())
	}
	return body.Articles, nil
}

// ScoreArticles scores the ten newest articles by keyword matches
func ScoreArticles(articles []Article) News {
	if len(articles) == 0 {
		return NeutralNews()
	}

	scored := articles
	if len(scored) > 10 {
		scored = scored[:10]
	}

	raw := 0
	for _, a := range scored {
		text := strings.ToLower(a.Title + " " + a.Description)
		for _, w := range positiveWords {
			if strings.Contains(text, w) {
				raw++
			}
		}
		for _, w := range negativeWords {
			if strings.Contains(text, w) {
				raw--
			}
		}
	}

	score := float64(raw) / float64(len(scored))
	sentiment := SentimentNeutral
	switch {
	case score > 0.3:
		sentiment = SentimentBullish
	case score < -0.3:
		sentiment = SentimentBearish
	}

	return News{Sentiment: sentiment, Score: score, Articles: len(articles)}
}
