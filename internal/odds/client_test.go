package odds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func book(key string, outcomes ...Outcome) Bookmaker {
	return Bookmaker{
		Key:     key,
		Markets: []Market{{Key: "h2h", Outcomes: outcomes}},
	}
}

func TestBlend_SharpWeighted(t *testing.T) {
	event := &Event{
		HomeTeam: "Team A",
		AwayTeam: "Team B",
		Bookmakers: []Bookmaker{
			book("pinnacle", Outcome{"Team A", 2.0}, Outcome{"Team B", 2.0}),
			book("bet365", Outcome{"Team A", 2.2}, Outcome{"Team B", 1.9}),
			book("unibet", Outcome{"Team A", 1.8}, Outcome{"Team B", 2.1}),
		},
	}

	odds, err := Blend(event)
	require.NoError(t, err)

	// 0.6*2.0 + 0.4*avg(2.2, 1.8)
	assert.InDelta(t, 2.0, odds.HomeOdds, 1e-9)
	// 0.6*2.0 + 0.4*avg(1.9, 2.1)
	assert.InDelta(t, 2.0, odds.AwayOdds, 1e-9)
	assert.False(t, odds.HasDraw)
}

func TestBlend_NoSharpBookFallsBackToAverage(t *testing.T) {
	event := &Event{
		HomeTeam: "Team A",
		AwayTeam: "Team B",
		Bookmakers: []Bookmaker{
			book("bet365", Outcome{"Team A", 2.4}, Outcome{"Team B", 1.6}),
			book("unibet", Outcome{"Team A", 2.0}, Outcome{"Team B", 1.8}),
		},
	}

	odds, err := Blend(event)
	require.NoError(t, err)

	assert.InDelta(t, 2.2, odds.HomeOdds, 1e-9)
	assert.InDelta(t, 1.7, odds.AwayOdds, 1e-9)
}

func TestBlend_SharpOnly(t *testing.T) {
	event := &Event{
		HomeTeam: "Team A",
		AwayTeam: "Team B",
		Bookmakers: []Bookmaker{
			book("pinnacle", Outcome{"Team A", 1.5}, Outcome{"Team B", 2.8}),
		},
	}

	odds, err := Blend(event)
	require.NoError(t, err)

	assert.InDelta(t, 1.5, odds.HomeOdds, 1e-9)
	assert.InDelta(t, 2.8, odds.AwayOdds, 1e-9)
}

func TestBlend_ThreeWay(t *testing.T) {
	event := &Event{
		HomeTeam: "Team A",
		AwayTeam: "Team B",
		Bookmakers: []Bookmaker{
			book("pinnacle",
				Outcome{"Team A", 2.5}, Outcome{"Team B", 3.0}, Outcome{"Draw", 3.2}),
			book("bet365",
				Outcome{"Team A", 2.4}, Outcome{"Team B", 3.1}, Outcome{"Draw", 3.4}),
		},
	}

	odds, err := Blend(event)
	require.NoError(t, err)

	require.True(t, odds.HasDraw)
	assert.InDelta(t, 0.6*3.2+0.4*3.4, odds.DrawOdds, 1e-9)
}

func TestBlend_MissingOutcome(t *testing.T) {
	event := &Event{
		HomeTeam: "Team A",
		AwayTeam: "Team B",
		Bookmakers: []Bookmaker{
			book("pinnacle", Outcome{"Team A", 2.0}),
		},
	}

	_, err := Blend(event)
	assert.Error(t, err)
}

func TestClient_EventOdds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v4/sports/soccer_epl/odds", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("apiKey"))
		assert.Equal(t, "h2h", r.URL.Query().Get("markets"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"ev1","sport_key":"soccer_epl","home_team":"Team A","away_team":"Team B",
			 "bookmakers":[{"key":"pinnacle","markets":[{"key":"h2h","outcomes":[
				{"name":"Team A","price":2.0},{"name":"Team B","price":2.0}]}]}]}
		]`))
	}))
	defer server.Close()

	client := New(&Config{BaseURL: server.URL, APIKey: "test-key", Logger: zap.NewNop()})

	odds, err := client.EventOdds(context.Background(), "soccer_epl", "ev1")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, odds.HomeOdds, 1e-9)

	_, err = client.EventOdds(context.Background(), "soccer_epl", "missing")
	assert.Error(t, err)
}
