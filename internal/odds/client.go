// Package odds fetches decimal odds from an aggregator API and blends the
// books into one consensus price per outcome, weighted toward the sharpest
// book when it quotes the event.
package odds

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// The consensus blend leans on Pinnacle when present.
const (
	sharpBook   = "pinnacle"
	sharpWeight = 0.6
)

// Outcome is one side of a bookmaker market.
type Outcome struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"` // decimal odds
}

// Market is one market (h2h for match winner) at one bookmaker.
type Market struct {
	Key      string    `json:"key"`
	Outcomes []Outcome `json:"outcomes"`
}

// Bookmaker is one book's markets for an event.
type Bookmaker struct {
	Key     string   `json:"key"`
	Title   string   `json:"title"`
	Markets []Market `json:"markets"`
}

// Event is one upcoming match with odds from every covering book.
type Event struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	CommenceTime time.Time   `json:"commence_time"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Bookmakers   []Bookmaker `json:"bookmakers"`
}

// MatchOdds is the blended consensus for one match. DrawOdds is zero for
// two-way markets.
type MatchOdds struct {
	HomeOdds float64
	AwayOdds float64
	DrawOdds float64
	HasDraw  bool
}

// Client fetches odds from the aggregator REST API.
type Client struct {
	http   *resty.Client
	apiKey string
	logger *zap.Logger
}

// Config holds odds client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Logger  *zap.Logger
}

// New creates an odds client.
func New(cfg *Config) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &Client{
		http:   httpClient,
		apiKey: cfg.APIKey,
		logger: cfg.Logger,
	}
}

// Events fetches the upcoming events with h2h odds for one sport.
func (c *Client) Events(ctx context.Context, sportKey string) ([]Event, error) {
	var events []Event
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"apiKey":     c.apiKey,
			"regions":    "eu",
			"markets":    "h2h",
			"oddsFormat": "decimal",
		}).
		SetResult(&events).
		Get("/v4/sports/" + sportKey + "/odds")
	if err != nil {
		RequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch odds: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		RequestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode())).Inc()
		return nil, fmt.Errorf("fetch odds: status %d: %s", resp.StatusCode(), resp.String())
	}

	RequestsTotal.WithLabelValues("ok").Inc()
	return events, nil
}

// EventOdds fetches and blends the odds for one event.
func (c *Client) EventOdds(ctx context.Context, sportKey, eventID string) (*MatchOdds, error) {
	events, err := c.Events(ctx, sportKey)
	if err != nil {
		return nil, err
	}

	for i := range events {
		if events[i].ID == eventID {
			blended, err := Blend(&events[i])
			if err != nil {
				return nil, err
			}
			RefreshesTotal.Inc()
			return blended, nil
		}
	}

	return nil, fmt.Errorf("event %s not found in %s feed", eventID, sportKey)
}

// Blend combines every book's h2h quotes into one consensus per outcome:
// sharpWeight on the sharp book, the rest on the average of the others. An
// outcome the sharp book skips falls back to the plain average, and vice
// versa.
func Blend(event *Event) (*MatchOdds, error) {
	var sharp map[string]float64
	others := make(map[string][]float64)

	for _, book := range event.Bookmakers {
		outcomes := h2hOutcomes(&book)
		if outcomes == nil {
			continue
		}
		if book.Key == sharpBook {
			sharp = outcomes
			continue
		}
		for name, price := range outcomes {
			others[name] = append(others[name], price)
		}
	}

	home, err := blendOutcome(event.HomeTeam, sharp, others)
	if err != nil {
		return nil, err
	}
	away, err := blendOutcome(event.AwayTeam, sharp, others)
	if err != nil {
		return nil, err
	}

	odds := &MatchOdds{HomeOdds: home, AwayOdds: away}

	if draw, err := blendOutcome("Draw", sharp, others); err == nil {
		odds.DrawOdds = draw
		odds.HasDraw = true
	}

	return odds, nil
}

func h2hOutcomes(book *Bookmaker) map[string]float64 {
	for _, market := range book.Markets {
		if market.Key != "h2h" {
			continue
		}
		outcomes := make(map[string]float64, len(market.Outcomes))
		for _, o := range market.Outcomes {
			if o.Price > 1 {
				outcomes[o.Name] = o.Price
			}
		}
		return outcomes
	}
	return nil
}

func blendOutcome(name string, sharp map[string]float64, others map[string][]float64) (float64, error) {
	sharpPrice, hasSharp := sharp[name]

	var avg float64
	if prices := others[name]; len(prices) > 0 {
		for _, p := range prices {
			avg += p
		}
		avg /= float64(len(prices))
	}

	switch {
	case hasSharp && avg > 0:
		return sharpWeight*sharpPrice + (1-sharpWeight)*avg, nil
	case hasSharp:
		return sharpPrice, nil
	case avg > 0:
		return avg, nil
	default:
		return 0, fmt.Errorf("no odds for outcome %q", name)
	}
}
